package webclass

import (
	"context"
	"errors"
	"fmt"
	devenv "kadai-backend/dev/env"
	"kadai-backend/lib/portal"
	"kadai-backend/lib/telemetry"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mazen160/go-random"
	"github.com/stretchr/testify/require"
)

// fakePortal serves just enough of WebClass for the browser flow: a login
// form, the dashboard with its iframe and one course page.
type fakePortal struct {
	*httptest.Server
	password string

	mutex    sync.Mutex
	sessions map[string]bool
}

const fakeLoginPage = `<!DOCTYPE html><html><body>
<form method="post" action="/webclass/login.php">
	<input id="username" name="username" type="text">
	<input id="password" name="password" type="password">
	<button id="LoginBtn" type="submit">ログイン</button>
</form>
</body></html>`

func newFakePortal(t *testing.T, password string) *fakePortal {
	p := &fakePortal{password: password, sessions: map[string]bool{}}
	frame := strings.Replace(dashboardHtml, `<tr><td colspan="5"><span class="loading-icon"></span></td></tr>`, "", 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/webclass/login.php", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "text/html; charset=utf-8")
		if r.Method != http.MethodPost {
			fmt.Fprint(w, fakeLoginPage)
			return
		}
		if r.FormValue("password") != p.password {
			fmt.Fprint(w, fakeLoginPage)
			return
		}
		session, err := random.String(24)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		p.mutex.Lock()
		p.sessions[session] = true
		p.mutex.Unlock()
		http.SetCookie(w, &http.Cookie{Name: "WCSESSID", Value: session, Path: "/"})
		http.Redirect(w, r, "/webclass/", http.StatusSeeOther)
	})
	mux.HandleFunc("/webclass/", p.authenticated(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><a href="/webclass/logout.php">ログアウト</a></body></html>`)
	}))
	mux.HandleFunc(dashboardPath, p.authenticated(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><iframe id="ip-iframe" src="/webclass/ip_mods.php/frame"></iframe></body></html>`)
	}))
	mux.HandleFunc("/webclass/ip_mods.php/frame", p.authenticated(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body>%s</body></html>`, frame)
	}))
	mux.HandleFunc("/webclass/course.php/", p.authenticated(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, coursePageHtml)
	}))

	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Close)
	return p
}

func (p *fakePortal) authenticated(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "text/html; charset=utf-8")
		cookie, err := r.Cookie("WCSESSID")
		p.mutex.Lock()
		ok := err == nil && p.sessions[cookie.Value]
		p.mutex.Unlock()
		if !ok {
			http.Redirect(w, r, "/webclass/login.php", http.StatusSeeOther)
			return
		}
		handler(w, r)
	}
}

func (p *fakePortal) expire() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.sessions = map[string]bool{}
}

func newTestSession(t *testing.T, baseUrl string) *Session {
	if _, ok := FindChrome(); !ok {
		t.Skip("no chrome or chromium binary on PATH")
	}
	session, err := NewSession(context.Background(), Options{
		BaseUrl:        baseUrl,
		ElementTimeout: 5 * time.Second,
		RenderSettle:   100 * time.Millisecond,
		LoadingSettle:  50 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(session.Close)
	return session
}

func TestSessionAgainstFakePortal(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/webclass")
	defer cleanup()

	server := newFakePortal(t, "hunter2")
	ctx := context.Background()

	t.Run("wrong password", func(t *testing.T) {
		session := newTestSession(t, server.URL)
		err := session.Login(ctx, portal.Credential{Identifier: "s123", Secret: "nope"})
		require.True(t, errors.Is(err, portal.ErrAuthenticationFailed))
	})

	t.Run("crawl", func(t *testing.T) {
		session := newTestSession(t, server.URL)
		require.NoError(t, session.Login(ctx, portal.Credential{Identifier: "s123", Secret: "hunter2"}))

		crawler := NewCrawler(session, CrawlerOptions{BaseUrl: session.BaseUrl, Now: fixedNow})
		items, err := crawler.Crawl(ctx, "s123")
		require.NoError(t, err)
		require.Len(t, items, 3)
		require.Equal(t, server.URL+"/webclass/do_contents.php?set_contents_id=aaa111&reset_status=1", items[0].Url)

		server.expire()
		_, err = crawler.Crawl(ctx, "s123")
		require.True(t, errors.Is(err, portal.ErrSessionExpired), "got %v", err)
	})
}

func TestVisitAuxiliaryKeepsTabAlive(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/webclass")
	defer cleanup()

	server := newFakePortal(t, "hunter2")
	session := newTestSession(t, server.URL)
	ctx := context.Background()
	require.NoError(t, session.Login(ctx, portal.Credential{Identifier: "s123", Secret: "hunter2"}))

	// each visit navigates, then waits on and reads the tab in later runs,
	// which only works while the tab's event loop outlives the navigation
	for range 3 {
		var titles []string
		started := time.Now()
		err := session.VisitAuxiliary(ctx, server.URL+"/webclass/course.php/ab12cd/login?acs_=1", func(doc *goquery.Document, pageUrl *url.URL) error {
			titles = append(titles, strings.TrimSpace(doc.Find("h4.cm-contentsList_contentName").First().Text()))
			require.Equal(t, "/webclass/course.php/ab12cd/login", pageUrl.Path)
			return nil
		})
		require.NoError(t, err)
		require.Len(t, titles, 1)
		require.NotEmpty(t, titles[0])
		require.Less(t, time.Since(started), 5*time.Second)
	}
}

func TestLoginWithoutForm(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/webclass")
	defer cleanup()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><body>maintenance</body></html>`)
	}))
	t.Cleanup(server.Close)

	session := newTestSession(t, server.URL)
	err := session.Login(context.Background(), portal.Credential{Identifier: "s123", Secret: "hunter2"})
	require.ErrorIs(t, err, portal.ErrAuthenticationFailed)
	require.ErrorIs(t, err, portal.ErrElementTimeout)
}

func TestSessionLive(t *testing.T) {
	config, err := devenv.GetStateConfig[devenv.WebClassTestConfig]("webclass_config.json5")
	if err != nil {
		t.Skip("no live webclass config:", err)
	}
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/webclass")
	defer cleanup()

	session, err := NewSession(context.Background(), Options{
		BaseUrl:  config.BaseUrl,
		ExecPath: config.ChromeExecPath,
	})
	require.NoError(t, err)
	defer session.Close()

	ctx := context.Background()
	err = session.Login(ctx, portal.Credential{Identifier: config.Username, Secret: config.Password})
	require.NoError(t, err)

	items, err := NewCrawler(session, CrawlerOptions{BaseUrl: session.BaseUrl}).Crawl(ctx, config.Username)
	require.NoError(t, err)
	for _, item := range items {
		t.Log(item.CourseTitle, item.Title, item.Url)
	}
}
