package webclass

import (
	"context"
	"errors"
	"kadai-backend/lib/datetext"
	"kadai-backend/lib/htmlutil"
	"kadai-backend/lib/portal"
	"kadai-backend/lib/telemetry"
	"kadai-backend/lib/timezone"
	"log/slog"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Browser is the part of a logged in session the crawler drives. *Session
// implements it.
type Browser interface {
	Dashboard(ctx context.Context) (string, error)
	VisitAuxiliary(ctx context.Context, href string, fn func(doc *goquery.Document, pageUrl *url.URL) error) error
}

type CrawlerOptions struct {
	BaseUrl *url.URL
	// defaults to timezone.Now
	Now func() time.Time
}

// Crawler turns the dashboard score table into items, one auxiliary course
// page visit per submittable row. Everything runs on the calling goroutine.
type Crawler struct {
	browser Browser
	opts    CrawlerOptions
}

func NewCrawler(browser Browser, opts CrawlerOptions) *Crawler {
	if opts.Now == nil {
		opts.Now = timezone.Now
	}
	return &Crawler{browser: browser, opts: opts}
}

func (c *Crawler) Crawl(ctx context.Context, owner string) ([]portal.Item, error) {
	var items []portal.Item
	err := c.CrawlEach(ctx, owner, func(item portal.Item) {
		items = append(items, item)
	})
	return items, err
}

// CrawlEach emits items as they are resolved. Rows that cannot be matched
// to a course page link or time out are skipped; session level failures
// stop the crawl.
func (c *Crawler) CrawlEach(ctx context.Context, owner string, emit func(portal.Item)) error {
	ctx, span := tracer.Start(ctx, "crawler:Crawl")
	defer span.End()

	markup, err := c.browser.Dashboard(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open dashboard")
		return err
	}
	courses, err := ParseDashboard(markup, c.opts.BaseUrl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse dashboard")
		return err
	}
	span.SetAttributes(attribute.Int("courses", len(courses)))
	slog.InfoContext(ctx, "webclass courses listed", "count", len(courses))

	for _, course := range courses {
		for _, row := range course.Rows {
			if !row.Submittable() {
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}

			item, ok, err := c.resolveRow(ctx, course, row)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "crawl aborted")
				return err
			}
			if !ok {
				continue
			}
			item.Owner = owner
			emit(item)
			telemetry.RecordItemEmitted(ctx, string(portal.PlatformWebClass))
			slog.DebugContext(ctx, "webclass item extracted", "item", item)
		}
	}
	return nil
}

func (c *Crawler) resolveRow(ctx context.Context, course DashboardCourse, row Row) (portal.Item, bool, error) {
	ctx, span := tracer.Start(ctx, "crawler:resolveRow")
	defer span.End()
	span.SetAttributes(
		attribute.String("course", course.Title),
		attribute.String("name", row.Name),
	)

	var item portal.Item
	var found bool
	err := c.browser.VisitAuxiliary(ctx, course.Url, func(doc *goquery.Document, pageUrl *url.URL) error {
		item, found = c.buildItem(ctx, course, row, ParseCoursePage(doc, pageUrl))
		return nil
	})
	switch {
	case err == nil:
	case portal.IsSessionLevel(err):
		return portal.Item{}, false, err
	default:
		reason := "visit_failed"
		if errors.Is(err, portal.ErrElementTimeout) {
			reason = "element_timeout"
		}
		telemetry.RecordItemSkipped(ctx, string(portal.PlatformWebClass), reason)
		slog.WarnContext(ctx, "skipping dashboard row", "course", course.Title, "name", row.Name, "err", err)
		return portal.Item{}, false, nil
	}

	if !found {
		telemetry.RecordItemSkipped(ctx, string(portal.PlatformWebClass), "unresolved")
		slog.WarnContext(ctx, "no course page link matches dashboard row", "course", course.Title, "name", row.Name)
	}
	return item, found, nil
}

func (c *Crawler) buildItem(ctx context.Context, course DashboardCourse, row Row, entries []CourseEntry) (portal.Item, bool) {
	anchors := make([]htmlutil.Anchor, len(entries))
	for i, e := range entries {
		anchors[i] = e.Anchor
	}
	idx := MatchLink(row.Name, anchors)
	if idx < 0 {
		return portal.Item{}, false
	}
	entry := entries[idx]

	item := portal.Item{
		CourseTitle: course.Title,
		Title:       entry.Name,
		Content:     entry.Category,
		Url:         entry.Href,
		Start:       entry.Dates.Start,
		Due:         entry.Dates.End,
		Submitted:   row.Submitted(),
		Platform:    portal.PlatformWebClass,
	}

	now := c.opts.Now()
	if entry.Dates.Empty() {
		due, err := datetext.ParseMonthDayDue(row.Cell(HeaderDue), now)
		if err == nil {
			item.Due = &due
		} else if row.Cell(HeaderDue) != "" && row.Cell(HeaderDue) != notTakenMarker {
			slog.DebugContext(ctx, "unparsed due cell", "value", row.Cell(HeaderDue), "err", err)
		}
	}

	// closed materials lose their link, the course page is the best we have.
	// the url is part of the stored key, so a past due date must not change it
	if item.Url == "" {
		item.Url = course.Url
	}
	return item, true
}
