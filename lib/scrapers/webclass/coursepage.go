package webclass

import (
	"kadai-backend/lib/datetext"
	"kadai-backend/lib/htmlutil"
	"kadai-backend/lib/textutil"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	contentSelector      = "div.cl-contentsList_content"
	contentNameSelector  = "h4.cm-contentsList_contentName"
	categorySelector     = "div.cl-contentsList_categoryLabel"
	contentDatesSelector = "div.cl-contentsList_contentInfo div.cm-contentsList_contentDetailListItemData"

	loggedOutMessageSelector = "p.logout-screen-bottom-message"
	alertSelector            = "div.alert"
	otherCourseNotice        = "別のコースへのアクセス"
)

// CourseEntry is one material listed on a course page.
type CourseEntry struct {
	htmlutil.Anchor
	Category string
	Dates    datetext.Range
}

// ParseCoursePage lists the materials of a course page. Href is empty for
// materials that are listed without a link (typically closed ones).
func ParseCoursePage(doc *goquery.Document, base *url.URL) []CourseEntry {
	var entries []CourseEntry
	doc.Find(contentSelector).Each(func(_ int, content *goquery.Selection) {
		nameSel := content.Find(contentNameSelector).First()
		entry := CourseEntry{
			Anchor:   htmlutil.Anchor{Name: htmlutil.SelectionText(nameSel)},
			Category: htmlutil.SelectionText(content.Find(categorySelector).First()),
		}
		if entry.Name == "" {
			return
		}

		if href, ok := nameSel.Find("a[href]").First().Attr("href"); ok && href != "" && href != "#" {
			entry.Href = href
			if base != nil {
				if u, err := base.Parse(href); err == nil {
					entry.Href = u.String()
				}
			}
		}

		content.Find(contentDatesSelector).EachWithBreak(func(_ int, detail *goquery.Selection) bool {
			dates, err := datetext.ParseSlashRange(htmlutil.SelectionText(detail))
			if err != nil {
				return true
			}
			entry.Dates = dates
			return false
		})
		entries = append(entries, entry)
	})
	return entries
}

// IsLoggedOut reports whether the portal replaced the page with its logout
// screen or login form, or refused it because another course is open in
// the session.
func IsLoggedOut(doc *goquery.Document) bool {
	if doc.Find(loggedOutMessageSelector).Length() > 0 || doc.Find(loginBtnSelector).Length() > 0 {
		return true
	}
	found := false
	doc.Find(alertSelector).EachWithBreak(func(_ int, alert *goquery.Selection) bool {
		found = strings.Contains(alert.Text(), otherCourseNotice)
		return !found
	})
	return found
}

// MatchLink picks the anchor whose name best matches a dashboard material
// name, returning -1 when none does.
func MatchLink(name string, anchors []htmlutil.Anchor) int {
	names := make([]string, len(anchors))
	for i, a := range anchors {
		names[i] = a.Name
	}
	return textutil.BestMatch(name, names)
}
