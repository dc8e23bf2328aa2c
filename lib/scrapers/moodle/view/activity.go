package view

import (
	"context"
	"fmt"
	"kadai-backend/lib/datetext"
	"kadai-backend/lib/htmlutil"
	"kadai-backend/lib/portal"
	"kadai-backend/lib/scrapers/moodle/core"
	"strings"
)

const (
	activityNameSelector  = "div.activity-information[data-activityname]"
	descriptionSelector   = "div.activity-description"
	datesSelector         = "div.activity-dates"
	assignSubmittedMarker = "div.submissionstatustable td.submissionstatussubmitted"
	quizFeedbackMarker    = "div#feedback"
)

// ParseActivity extracts an item from an assignment or quiz page. Owner and
// course are left for the caller to fill in.
func ParseActivity(ctx context.Context, page core.Page, lang string) (portal.Item, error) {
	ctx, span := tracer.Start(ctx, "ParseActivity")
	defer span.End()

	doc := page.Doc
	title := strings.TrimSpace(doc.Find(activityNameSelector).First().AttrOr("data-activityname", ""))
	if title == "" {
		title = htmlutil.SelectionText(doc.Find("div[role=main] h2, #region-main h2").First())
	}
	if title == "" {
		return portal.Item{}, fmt.Errorf("no activity title on %s", page.Url)
	}

	item := portal.Item{
		Title:     htmlutil.CleanText(title),
		Content:   strings.Join(htmlutil.SelectionLines(doc.Find(descriptionSelector)), "\n"),
		Url:       page.Url.String(),
		Submitted: isSubmitted(page),
		Platform:  portal.PlatformMoodle,
	}

	dates := strings.Join(htmlutil.SelectionLines(doc.Find(datesSelector)), "\n")
	if dates != "" {
		parsed := datetext.ParseRange(ctx, dates, lang)
		item.Start = parsed.Start
		item.Due = parsed.End
	}

	return item, nil
}

// the portal renders no machine readable status, the submitted cell class
// on assignments and the feedback block on quizzes are the only tells
func isSubmitted(page core.Page) bool {
	path := page.Url.Path
	switch {
	case strings.Contains(path, "/mod/assign/"):
		return page.Doc.Find(assignSubmittedMarker).Length() > 0
	case strings.Contains(path, "/mod/quiz/"):
		return page.Doc.Find(quizFeedbackMarker).Length() > 0
	}
	return false
}
