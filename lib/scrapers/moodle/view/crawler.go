package view

import (
	"context"
	"errors"
	"kadai-backend/lib/htmlutil"
	"kadai-backend/lib/portal"
	"kadai-backend/lib/scrapers/moodle/core"
	"kadai-backend/lib/scrapers/pageshape"
	"kadai-backend/lib/telemetry"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

var tracer = telemetry.Tracer("kadai.lib.scrapers.moodle.view")

const (
	courseListSelector    = `section[data-block="course_list"] ul.unlist a`
	myCoursesSelector     = `a.aalink.coursename`
	anyCourseLinkSelector = `a[href*="/course/view.php?id="]`
	activityLinkSelector  = `li.modtype_assign a.aalink, li.modtype_quiz a.aalink`
	tabLinkSelector       = `div.tabs-wrapper a.nav-link, div#tabs-tree-start a, ul.nav-tabs a.nav-link`
	defaultMaxConcurrency = 4
	myCoursesPath         = "/my/courses.php"
)

type Course htmlutil.Anchor

type Options struct {
	// upper bound on page fetches in flight at once
	MaxConcurrency int
}

// Crawler walks one authenticated Moodle session from the course list down
// to assignment and quiz pages.
type Crawler struct {
	client *core.Client
	opts   Options
}

func NewCrawler(client *core.Client, opts Options) *Crawler {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = defaultMaxConcurrency
	}
	return &Crawler{client: client, opts: opts}
}

func (c *Crawler) homeEndpoint() string {
	if c.client.HomeUrl != nil {
		return c.client.HomeUrl.String()
	}
	return "/my/"
}

func courseName(sel *goquery.Selection) string {
	if title, ok := sel.Find("span.multiline[title]").Attr("title"); ok && strings.TrimSpace(title) != "" {
		return htmlutil.CleanText(title)
	}
	// "Course name" screen reader prefixes are not part of the title
	clone := sel.Clone()
	clone.Find(".sr-only, .accesshide").Remove()
	return htmlutil.SelectionText(clone)
}

func coursesFromSelection(ctx context.Context, sel *goquery.Selection, base *url.URL) []Course {
	seen := map[string]bool{}
	var courses []Course
	sel.Each(func(_ int, a *goquery.Selection) {
		anchors := htmlutil.GetAnchors(ctx, a, base)
		if len(anchors) == 0 || seen[anchors[0].Href] {
			return
		}
		name := courseName(a)
		if name == "" {
			return
		}
		seen[anchors[0].Href] = true
		courses = append(courses, Course{Name: name, Href: anchors[0].Href})
	})
	return courses
}

// Courses lists the courses of the logged in user, trying the dashboard
// course block first and the "my courses" page second.
func (c *Crawler) Courses(ctx context.Context) ([]Course, error) {
	ctx, span := tracer.Start(ctx, "crawler:Courses")
	defer span.End()

	home, err := c.client.Fetch(ctx, c.homeEndpoint())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch home page")
		return nil, err
	}
	courses := coursesFromSelection(ctx, home.Doc.Find(courseListSelector), home.Url)
	if len(courses) > 0 {
		return courses, nil
	}

	mine, err := c.client.Fetch(ctx, myCoursesPath)
	if err != nil && errors.Is(err, portal.ErrSessionExpired) {
		return nil, err
	}
	if err == nil {
		courses = coursesFromSelection(ctx, mine.Doc.Find(myCoursesSelector), mine.Url)
		if len(courses) > 0 {
			return courses, nil
		}
	} else {
		slog.WarnContext(ctx, "failed to fetch my courses page", "err", err)
	}

	return coursesFromSelection(ctx, home.Doc.Find(anyCourseLinkSelector), home.Url), nil
}

// Crawl collects every assignment and quiz reachable from the course list.
func (c *Crawler) Crawl(ctx context.Context, owner string) ([]portal.Item, error) {
	var items []portal.Item
	err := c.CrawlEach(ctx, owner, func(item portal.Item) {
		items = append(items, item)
	})
	return items, err
}

// CrawlEach calls emit once per extracted item. emit is never called
// concurrently. Per-page failures are logged and skipped; only session
// level failures (expiry, cancellation) are returned.
func (c *Crawler) CrawlEach(ctx context.Context, owner string, emit func(portal.Item)) error {
	ctx, span := tracer.Start(ctx, "crawler:Crawl")
	defer span.End()

	courses, err := c.Courses(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list courses")
		return err
	}
	span.SetAttributes(attribute.Int("courses", len(courses)))
	slog.InfoContext(ctx, "moodle courses listed", "count", len(courses))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(c.opts.MaxConcurrency)

	w := &walk{
		crawler: c,
		owner:   owner,
		group:   group,
		visited: newVisitedSet(),
		emit:    emit,
	}
	for _, course := range courses {
		group.Go(func() error {
			return w.coursePage(groupCtx, course, course.Href)
		})
	}

	err = group.Wait()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "crawl aborted")
		return err
	}
	return ctx.Err()
}

type walk struct {
	crawler *Crawler
	owner   string
	group   *errgroup.Group
	visited *visitedSet

	emitLock sync.Mutex
	emit     func(portal.Item)
}

// a branch that cannot get a slot runs inline, so parents waiting on a
// full group never deadlock against their own children
func (w *walk) spawn(fn func() error) error {
	if w.group.TryGo(fn) {
		return nil
	}
	return fn()
}

func (w *walk) sameHost(href string) bool {
	u, err := url.Parse(href)
	if err != nil {
		return false
	}
	return u.Host == "" || u.Host == w.crawler.client.BaseUrl.Host
}

// fetch returns ok=false for pages that should be skipped, and an error only
// when the crawl has to stop.
func (w *walk) fetch(ctx context.Context, href string) (core.Page, bool, error) {
	if ctx.Err() != nil {
		return core.Page{}, false, ctx.Err()
	}
	page, err := w.crawler.client.Fetch(ctx, href)
	if err != nil {
		if portal.IsSessionLevel(err) {
			return core.Page{}, false, err
		}
		slog.WarnContext(ctx, "skipping page", "url", href, "err", err)
		return core.Page{}, false, nil
	}
	return page, true, nil
}

func (w *walk) coursePage(ctx context.Context, course Course, href string) error {
	if !w.visited.add(href) {
		return nil
	}
	ctx, span := tracer.Start(ctx, "crawler:coursePage")
	defer span.End()
	span.SetAttributes(
		attribute.String("course", course.Name),
		attribute.String("url", href),
	)

	page, ok, err := w.fetch(ctx, href)
	if !ok {
		return err
	}

	shape := pageshape.Classify(page.Doc)
	span.SetAttributes(attribute.String("shape", shape.String()))
	switch shape {
	case pageshape.Unrecognized:
		span.RecordError(portal.ErrPageShapeUnrecognized)
		slog.WarnContext(ctx, "unrecognized course page, no items taken", "course", course.Name, "url", href)
		return nil
	case pageshape.DashboardTable:
		slog.DebugContext(ctx, "dashboard table on moodle course page, no items taken", "url", href)
		return nil
	}

	for _, activity := range htmlutil.GetAnchors(ctx, page.Doc.Find(activityLinkSelector), page.Url) {
		err := w.spawn(func() error {
			return w.activityPage(ctx, course, activity)
		})
		if err != nil {
			return err
		}
	}

	if shape == pageshape.TabbedNav {
		for _, tab := range htmlutil.GetAnchors(ctx, page.Doc.Find(tabLinkSelector), page.Url) {
			if !w.sameHost(tab.Href) {
				continue
			}
			err := w.spawn(func() error {
				return w.coursePage(ctx, course, tab.Href)
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *walk) activityPage(ctx context.Context, course Course, activity htmlutil.Anchor) error {
	if !w.visited.add(activity.Href) {
		return nil
	}

	page, ok, err := w.fetch(ctx, activity.Href)
	if !ok {
		if err == nil {
			telemetry.RecordItemSkipped(ctx, string(portal.PlatformMoodle), "fetch_failed")
		}
		return err
	}

	item, err := ParseActivity(ctx, page, w.crawler.client.Lang)
	if err != nil {
		telemetry.RecordItemSkipped(ctx, string(portal.PlatformMoodle), "parse_failed")
		slog.WarnContext(ctx, "skipping activity", "url", activity.Href, "err", err)
		return nil
	}
	item.Owner = w.owner
	item.CourseTitle = course.Name
	if item.Title == "" {
		item.Title = activity.Name
	}

	w.emitLock.Lock()
	defer w.emitLock.Unlock()
	w.emit(item)
	telemetry.RecordItemEmitted(ctx, string(portal.PlatformMoodle))
	slog.DebugContext(ctx, "moodle item extracted", "item", item)
	return nil
}
