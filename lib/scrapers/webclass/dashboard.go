package webclass

import (
	"fmt"
	"kadai-backend/lib/htmlutil"
	"kadai-backend/lib/textutil"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

const (
	courseWrapperSelector = "main > section.mt-5 > section.mt-2 > div.mt-2, " +
		"main > section.mt-5 > div.mt-2, " +
		"main > section.mt-2 > div.mt-2"
	courseTitleSelector = "div[class*='bg-blue-100'] a.font-semibold"
	courseTableSelector = "table[data-v-8c172e70], table.table-fixed"
	loadingIconSelector = "span.loading-icon"
	emptyCourseMessage  = "登録されている教材がありません"
)

// column headers of the dashboard score table
const (
	HeaderName     = "教材"
	HeaderDue      = "締切"
	HeaderTakenOn  = "実施日"
	HeaderBest     = "最高点"
	HeaderStatus   = "状態"
	completedMark  = "完了"
	notTakenMarker = "-"
)

var fallbackHeaders = []string{HeaderName, HeaderDue, HeaderTakenOn, HeaderBest, HeaderStatus}

// rows whose normalized name is shorter than this are layout filler
const MinNameLength = 1

var submittableKeywords = []string{
	"課題", "レポート", "小テスト", "テスト", "アンケート",
	"assignment", "report", "quiz", "survey",
}

var courseHrefRegex = regexp.MustCompile(`/webclass/course\.php/`)

type Row struct {
	Name  string
	Cells map[string]string
}

func (r Row) Cell(header string) string {
	return r.Cells[header]
}

// Submittable reports whether the material is something a student hands in.
func (r Row) Submittable() bool {
	return textutil.MatchName(r.Name, submittableKeywords)
}

// Submitted is true once the status reads complete or the row carries a
// date it was taken on.
func (r Row) Submitted() bool {
	if strings.Contains(r.Cell(HeaderStatus), completedMark) {
		return true
	}
	takenOn := strings.TrimSpace(r.Cell(HeaderTakenOn))
	return takenOn != "" && takenOn != notTakenMarker
}

type DashboardCourse struct {
	Title string
	Url   string
	Rows  []Row
}

func tableHeaders(table *goquery.Selection) []string {
	var headers []string
	table.Find("thead th").Each(func(_ int, th *goquery.Selection) {
		if a := th.Find("a"); a.Length() > 0 {
			headers = append(headers, htmlutil.SelectionText(a.First()))
			return
		}
		headers = append(headers, htmlutil.SelectionText(th))
	})
	if len(headers) == 0 {
		return fallbackHeaders
	}
	return headers
}

func cellText(td *goquery.Selection) string {
	if span := td.Find("span"); span.Length() > 0 {
		return htmlutil.SelectionText(span.First())
	}
	return htmlutil.SelectionText(td)
}

func parseRows(table *goquery.Selection) []Row {
	headers := tableHeaders(table)
	var rows []Row
	table.Find("tbody tr").Each(func(_ int, tr *goquery.Selection) {
		if tr.Find(loadingIconSelector).Length() > 0 {
			return
		}
		cells := tr.Find("td")
		if cells.Length() == 0 || cells.Length() < len(headers) {
			return
		}
		row := Row{Cells: map[string]string{}}
		cells.Each(func(i int, td *goquery.Selection) {
			if i >= len(headers) {
				return
			}
			row.Cells[headers[i]] = cellText(td)
		})
		row.Name = row.Cells[HeaderName]
		if utf8.RuneCountInString(textutil.NormalizeTitle(row.Name)) < MinNameLength {
			return
		}
		rows = append(rows, row)
	})
	return rows
}

func isCourseHref(href string) bool {
	return courseHrefRegex.MatchString(href) && !strings.HasSuffix(href, "/Info")
}

// ParseDashboard reads the course wrappers out of the rendered dashboard
// app. A course with no score table (or the "no materials" notice) comes
// back with no rows.
func ParseDashboard(html string, base *url.URL) ([]DashboardCourse, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("webclass: parse dashboard: %w", err)
	}

	var courses []DashboardCourse
	doc.Find(courseWrapperSelector).Each(func(_ int, wrapper *goquery.Selection) {
		var link *goquery.Selection
		wrapper.Find(courseTitleSelector).EachWithBreak(func(_ int, a *goquery.Selection) bool {
			if isCourseHref(a.AttrOr("href", "")) {
				link = a
				return false
			}
			return true
		})
		if link == nil {
			return
		}
		title := htmlutil.SelectionText(link)
		if title == "" {
			return
		}

		href := link.AttrOr("href", "")
		if base != nil {
			if u, err := base.Parse(href); err == nil {
				href = u.String()
			}
		}
		course := DashboardCourse{Title: title, Url: href}

		table := wrapper.Find(courseTableSelector).First()
		if table.Length() > 0 && !strings.Contains(htmlutil.SelectionText(table), emptyCourseMessage) {
			course.Rows = parseRows(table)
		}
		courses = append(courses, course)
	})
	return courses, nil
}
