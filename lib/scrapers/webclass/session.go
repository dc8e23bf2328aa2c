package webclass

import (
	"context"
	"errors"
	"fmt"
	"kadai-backend/lib/portal"
	"kadai-backend/lib/telemetry"
	"log/slog"
	"net/http"
	"net/url"
	"os/exec"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = telemetry.Tracer("kadai.lib.scrapers.webclass")

const (
	loginPath     = "/webclass/login.php"
	dashboardPath = "/webclass/ip_mods.php/plugin/score_summary_table/dashboard"

	usernameSelector  = "#username"
	passwordSelector  = "#password"
	loginBtnSelector  = "#LoginBtn"
	logoutLinkSelect  = "a[href*='logout']"
	dashboardIframe   = "#ip-iframe"
	dashboardApp      = "#app"
	firstCourseLink   = "main section.mt-2 div.mt-2 a.font-semibold"
	coursePageMarkers = "div.cl-contentsList_content, p.logout-screen-bottom-message, div.alert, #LoginBtn"
)

type Options struct {
	BaseUrl string
	// path to a chrome or chromium binary, searched on PATH when empty
	ExecPath string
	// shows the browser window when set
	Headful bool
	// how long a single element wait may take, defaults to 20s
	ElementTimeout time.Duration
	// settle delays after the dashboard renders, default 2s and 750ms
	RenderSettle  time.Duration
	LoadingSettle time.Duration
}

// Session is one browser logged into WebClass. Its methods must not be
// called concurrently.
type Session struct {
	BaseUrl *url.URL
	opts    Options

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// FindChrome returns the first chrome-like binary on PATH.
func FindChrome() (string, bool) {
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser"} {
		if path, err := exec.LookPath(name); err == nil {
			return path, true
		}
	}
	return "", false
}

func NewSession(ctx context.Context, opts Options) (*Session, error) {
	baseUrl, err := url.Parse(strings.TrimSuffix(opts.BaseUrl, "/"))
	if err != nil {
		return nil, err
	}
	if baseUrl.Scheme == "" || baseUrl.Host == "" {
		return nil, fmt.Errorf("webclass: base url %q must be absolute", opts.BaseUrl)
	}
	if opts.ElementTimeout <= 0 {
		opts.ElementTimeout = 20 * time.Second
	}
	if opts.RenderSettle <= 0 {
		opts.RenderSettle = 2 * time.Second
	}
	if opts.LoadingSettle <= 0 {
		opts.LoadingSettle = 750 * time.Millisecond
	}

	allocOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", !opts.Headful),
		chromedp.Flag("disable-gpu", true),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	} else if path, ok := FindChrome(); ok {
		allocOpts = append(allocOpts, chromedp.ExecPath(path))
	}

	// the browser outlives the ctx given here, it is torn down by Close
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(
		allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			slog.Debug(fmt.Sprintf(format, args...))
		}),
	)
	s := &Session{
		BaseUrl:       baseUrl,
		opts:          opts,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}

	err = chromedp.Run(browserCtx)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("webclass: start browser: %w", err)
	}
	return s, nil
}

// Close shuts the browser down. It is safe to call more than once.
func (s *Session) Close() {
	s.browserCancel()
	s.allocCancel()
}

func (s *Session) resolve(endpoint string) string {
	u, err := s.BaseUrl.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	return u.String()
}

// run executes actions on target with a deadline, aborting early when ctx is
// canceled. A deadline hit on the run itself is reported as
// portal.ErrElementTimeout.
func (s *Session) run(ctx context.Context, target context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(target, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", portal.ErrElementTimeout, err)
	}
	return err
}

func (s *Session) navigate(ctx context.Context, target context.Context, endpoint string) error {
	runCtx, cancel := context.WithTimeout(target, s.opts.ElementTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	res, err := chromedp.RunResponse(runCtx, chromedp.Navigate(s.resolve(endpoint)))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: navigate %s", portal.ErrElementTimeout, endpoint)
		}
		return err
	}
	if res != nil && res.Status == http.StatusUnauthorized {
		return fmt.Errorf("webclass: navigate %s: %w", endpoint, portal.ErrSessionExpired)
	}
	return nil
}

// Login fills the login form and waits for the logout link to show up.
func (s *Session) Login(ctx context.Context, cred portal.Credential) error {
	ctx, span := tracer.Start(ctx, "session:Login")
	defer span.End()

	err := s.navigate(ctx, s.browserCtx, loginPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open login page")
		return err
	}
	err = s.run(
		ctx, s.browserCtx, s.opts.ElementTimeout,
		chromedp.WaitVisible(usernameSelector, chromedp.ByQuery),
		chromedp.SendKeys(usernameSelector, cred.Identifier, chromedp.ByQuery),
		chromedp.SendKeys(passwordSelector, cred.Secret, chromedp.ByQuery),
		chromedp.Click(loginBtnSelector, chromedp.ByQuery),
	)
	if errors.Is(err, portal.ErrElementTimeout) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "login form never rendered")
		return fmt.Errorf("webclass: %w: login form: %w", portal.ErrAuthenticationFailed, err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to submit login form")
		return fmt.Errorf("webclass: submit login: %w", err)
	}

	err = s.run(ctx, s.browserCtx, s.opts.ElementTimeout, chromedp.WaitReady(logoutLinkSelect, chromedp.ByQuery))
	if errors.Is(err, portal.ErrElementTimeout) {
		span.SetStatus(codes.Error, portal.ErrAuthenticationFailed.Error())
		return fmt.Errorf("webclass: %w: no logout link after login: %w", portal.ErrAuthenticationFailed, err)
	}
	if err != nil {
		span.RecordError(err)
		return err
	}
	slog.DebugContext(ctx, "webclass login succeeded", "user", cred.Identifier)
	return nil
}

// a login form or logout screen in the top document means the session is gone
func (s *Session) checkLoggedOut(ctx context.Context, target context.Context) error {
	var gone bool
	err := s.run(ctx, target, s.opts.ElementTimeout, chromedp.Evaluate(
		`document.querySelector("#LoginBtn, p.logout-screen-bottom-message") !== null`,
		&gone,
	))
	if err != nil {
		return err
	}
	if gone {
		return portal.ErrSessionExpired
	}
	return nil
}

// Dashboard opens the score summary dashboard and returns the rendered
// markup of the app inside its iframe. Not finding a single course link in
// time fails with portal.ErrElementTimeout.
func (s *Session) Dashboard(ctx context.Context) (string, error) {
	ctx, span := tracer.Start(ctx, "session:Dashboard")
	defer span.End()

	err := s.navigate(ctx, s.browserCtx, dashboardPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open dashboard")
		return "", err
	}

	var frames []*cdp.Node
	err = s.run(
		ctx, s.browserCtx, s.opts.ElementTimeout,
		chromedp.WaitReady(dashboardIframe, chromedp.ByQuery),
		chromedp.Nodes(dashboardIframe, &frames, chromedp.ByQuery),
	)
	if err != nil {
		if expired := s.checkLoggedOut(ctx, s.browserCtx); errors.Is(expired, portal.ErrSessionExpired) {
			err = expired
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "dashboard iframe never appeared")
		return "", fmt.Errorf("webclass: dashboard iframe: %w", err)
	}
	frame := chromedp.FromNode(frames[0])

	err = s.run(
		ctx, s.browserCtx, s.opts.ElementTimeout,
		chromedp.WaitReady(dashboardApp, chromedp.ByQuery, frame),
		chromedp.WaitReady(firstCourseLink, chromedp.ByQuery, frame),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dashboard courses never rendered")
		return "", fmt.Errorf("webclass: dashboard courses: %w", err)
	}

	err = s.run(ctx, s.browserCtx, s.opts.RenderSettle+time.Second, chromedp.Sleep(s.opts.RenderSettle))
	if err != nil {
		return "", err
	}
	// scores load per course after the list renders, a stuck spinner only
	// costs that course its rows
	err = s.run(ctx, s.browserCtx, s.opts.ElementTimeout, chromedp.WaitNotPresent(loadingIconSelector, chromedp.ByQuery, frame))
	if err != nil && !errors.Is(err, portal.ErrElementTimeout) {
		return "", err
	}
	if err != nil {
		slog.WarnContext(ctx, "dashboard still loading, continuing", "err", err)
	}

	var markup string
	err = s.run(
		ctx, s.browserCtx, s.opts.ElementTimeout,
		chromedp.Sleep(s.opts.LoadingSettle),
		chromedp.OuterHTML(dashboardApp, &markup, chromedp.ByQuery, frame),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read dashboard")
		return "", err
	}
	span.SetAttributes(attribute.Int("markup_size", len(markup)))
	return markup, nil
}

// openTab attaches a new tab to the browser. The first Run on a tab binds
// its event loop to the ctx of that Run, so it must not carry a deadline or
// every later action on the tab hangs.
func (s *Session) openTab() (context.Context, context.CancelFunc, error) {
	tabCtx, closeTab := chromedp.NewContext(s.browserCtx)
	err := chromedp.Run(tabCtx)
	if err != nil {
		closeTab()
		return nil, nil, fmt.Errorf("webclass: open tab: %w", err)
	}
	return tabCtx, closeTab, nil
}

// VisitAuxiliary opens href in a separate tab, hands its parsed document to
// fn and closes the tab on every path out. The dashboard tab is left as is.
func (s *Session) VisitAuxiliary(ctx context.Context, href string, fn func(doc *goquery.Document, pageUrl *url.URL) error) error {
	ctx, span := tracer.Start(ctx, "session:VisitAuxiliary")
	defer span.End()
	span.SetAttributes(attribute.String("url", href))

	tabCtx, closeTab, err := s.openTab()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open tab")
		return err
	}
	defer closeTab()

	err = s.navigate(ctx, tabCtx, href)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to open auxiliary page")
		return err
	}

	var markup string
	var location string
	err = s.run(
		ctx, tabCtx, s.opts.ElementTimeout,
		chromedp.WaitReady(coursePageMarkers, chromedp.ByQuery),
		chromedp.OuterHTML("html", &markup, chromedp.ByQuery),
		chromedp.Location(&location),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "auxiliary page never rendered")
		return err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return err
	}
	if IsLoggedOut(doc) {
		span.SetStatus(codes.Error, portal.ErrSessionExpired.Error())
		return fmt.Errorf("webclass: visit %s: %w", href, portal.ErrSessionExpired)
	}

	pageUrl, err := url.Parse(location)
	if err != nil || location == "" {
		pageUrl, _ = url.Parse(s.resolve(href))
	}
	return fn(doc, pageUrl)
}
