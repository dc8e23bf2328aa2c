package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"kadai-backend/lib/datetext"
	"kadai-backend/lib/htmlutil"
	"kadai-backend/lib/portal"
	"kadai-backend/lib/restyutil"
	"kadai-backend/lib/telemetry"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

const loginPath = "/login/index.php"

// selectors present on a page only when the visitor is authenticated, and
// selectors that betray a forced logout
const (
	authenticatedMarker = "div.usermenu"
	loggedOutMarkers    = "body#page-login-index, form#login, div.usermenu span.login"
	loginErrorSelector  = "div.alert-danger, #loginerrormessage"
	langMenuSelector    = "div.langmenu a.dropdown-toggle, div.container-fluid a.dropdown-toggle.nav-link"
)

type Client struct {
	BaseUrl *url.URL
	Http    *resty.Client
	Sesskey string
	// HomeUrl is where the portal landed after login.
	HomeUrl *url.URL
	// Lang is the locale code detected from the language menu.
	Lang string

	limiter *rate.Limiter
}

type ClientOptions struct {
	BaseUrl string
	// requests per second against the portal host, defaults to 2
	RateLimit float64
	Burst     int
	Timeout   time.Duration
	// when set, request/response pairs are dumped here in debug mode
	DebugOutput restyutil.InstrumentOutput
}

func NewClient(ctx context.Context, opts ClientOptions) (*Client, error) {
	baseUrl, err := url.Parse(strings.TrimSuffix(opts.BaseUrl, "/"))
	if err != nil {
		return nil, err
	}
	if baseUrl.Scheme == "" || baseUrl.Host == "" {
		return nil, fmt.Errorf("moodle: base url %q must be absolute", opts.BaseUrl)
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 2
	}
	if opts.Burst <= 0 {
		opts.Burst = 2
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Second * 30
	}

	client := resty.New()
	client.SetBaseURL(baseUrl.String())
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseUrl.Hostname()))
	client.SetTimeout(opts.Timeout)

	c := &Client{
		BaseUrl: baseUrl,
		Http:    client,
		Lang:    datetext.DefaultLang,
		limiter: rate.NewLimiter(rate.Limit(opts.RateLimit), opts.Burst),
	}
	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return c.limiter.Wait(req.Context())
	})
	telemetry.InstrumentResty(client, "kadai.lib.scrapers.moodle.http")
	restyutil.InstrumentClient(client, opts.DebugOutput)

	return c, nil
}

// Close releases pooled connections held by the session.
func (c *Client) Close() {
	c.Http.GetClient().CloseIdleConnections()
}

var moodleConfigRegex = regexp.MustCompile(`(?m)M\.cfg *= *(.+?);`)

func getSesskey(ctx context.Context, doc *goquery.Document) string {
	ctx, span := tracer.Start(ctx, "getSesskey")
	defer span.End()

	// htmlutil skips script bodies, so read the raw text node
	for _, script := range doc.Find("script").Nodes {
		if script.FirstChild == nil {
			continue
		}
		text := script.FirstChild.Data
		groups := moodleConfigRegex.FindStringSubmatch(text)
		if len(groups) < 2 {
			continue
		}

		var cfg struct {
			Sesskey string `json:"sesskey"`
		}
		err := json.Unmarshal([]byte(groups[1]), &cfg)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to unmarshal moodle config")
			return ""
		}
		return cfg.Sesskey
	}

	return ""
}

func finalUrl(res *resty.Response) *url.URL {
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		return res.RawResponse.Request.URL
	}
	u, _ := url.Parse(res.Request.URL)
	return u
}

func isAuthenticated(doc *goquery.Document) bool {
	return doc.Find(authenticatedMarker).Length() > 0 &&
		doc.Find("div.usermenu span.login").Length() == 0
}

// Login submits the login form. Portals answer 200 either way, so success
// is decided by the user menu being rendered on the resulting page.
func (c *Client) Login(ctx context.Context, username, password string) error {
	ctx, span := tracer.Start(ctx, "client:Login")
	defer span.End()

	res, err := c.Http.R().
		SetContext(ctx).
		Get(loginPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch login page")
		return fmt.Errorf("moodle: fetch login page: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		span.SetStatus(codes.Error, "failed to parse login page")
		return err
	}

	logintoken := doc.Find("input[name=logintoken]").AttrOr("value", "")
	if logintoken == "" {
		span.SetStatus(codes.Error, "failed to find login token")
		return fmt.Errorf("moodle: %w: login token not found", portal.ErrAuthenticationFailed)
	}

	res, err = c.Http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"logintoken": logintoken,
			"username":   username,
			"password":   password,
		}).
		Post(loginPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to make login request")
		return fmt.Errorf("moodle: submit login: %w", err)
	}
	doc, err = goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse login response")
		return err
	}

	if !isAuthenticated(doc) {
		reason := htmlutil.SelectionText(doc.Find(loginErrorSelector))
		span.SetStatus(codes.Error, portal.ErrAuthenticationFailed.Error())
		if reason != "" {
			return fmt.Errorf("moodle: %w: %s", portal.ErrAuthenticationFailed, reason)
		}
		return fmt.Errorf("moodle: %w", portal.ErrAuthenticationFailed)
	}

	c.HomeUrl = finalUrl(res)
	c.Sesskey = getSesskey(ctx, doc)
	c.Lang = datetext.DetectLang(htmlutil.SelectionText(doc.Find(langMenuSelector).First()))
	span.SetAttributes(
		attribute.String("home_url", c.HomeUrl.String()),
		attribute.String("lang", c.Lang),
	)
	slog.DebugContext(ctx, "moodle login succeeded", "home", c.HomeUrl.String(), "lang", c.Lang)

	return nil
}

// Logout ends the portal session, a no-op when login never happened or no
// sesskey was found on the home page.
func (c *Client) Logout(ctx context.Context) error {
	if c.Sesskey == "" {
		return nil
	}
	ctx, span := tracer.Start(ctx, "client:Logout")
	defer span.End()

	res, err := c.Http.R().
		SetContext(ctx).
		SetQueryParam("sesskey", c.Sesskey).
		Get("/login/logout.php")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to log out")
		return err
	}
	if res.IsError() {
		err = fmt.Errorf("moodle: logout: status %d", res.StatusCode())
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	c.Sesskey = ""
	return nil
}

type Page struct {
	Url *url.URL
	Doc *goquery.Document
}

// Fetch retrieves an authenticated page. A 401, a redirect back to the
// login form or a logged-out user menu yields portal.ErrSessionExpired.
func (c *Client) Fetch(ctx context.Context, endpoint string) (Page, error) {
	ctx, span := tracer.Start(ctx, "client:Fetch")
	defer span.End()
	span.SetAttributes(attribute.String("url", endpoint))

	res, err := c.Http.R().
		SetContext(ctx).
		Get(endpoint)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch")
		return Page{}, err
	}

	if res.StatusCode() == http.StatusUnauthorized {
		span.SetStatus(codes.Error, portal.ErrSessionExpired.Error())
		return Page{}, fmt.Errorf("moodle: fetch %s: %w", endpoint, portal.ErrSessionExpired)
	}
	if res.IsError() {
		span.SetStatus(codes.Error, res.Status())
		return Page{}, fmt.Errorf("moodle: fetch %s: %s", endpoint, res.Status())
	}

	landed := finalUrl(res)
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse html")
		return Page{}, err
	}

	if strings.HasSuffix(landed.Path, loginPath) || doc.Find(loggedOutMarkers).Length() > 0 {
		span.SetStatus(codes.Error, portal.ErrSessionExpired.Error())
		return Page{}, fmt.Errorf("moodle: fetch %s: %w", endpoint, portal.ErrSessionExpired)
	}

	return Page{Url: landed, Doc: doc}, nil
}
