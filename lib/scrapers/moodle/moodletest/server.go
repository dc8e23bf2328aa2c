// Package moodletest serves a minimal fake Moodle site for scraper tests.
package moodletest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/mazen160/go-random"
)

const (
	sessionCookie = "MoodleSession"
	sesskey       = "s3ssk3y"
)

type Site struct {
	Username string
	Password string
	// login token embedded in the login form, random when empty
	Token string
	// language menu label, e.g. "日本語 (ja)"
	LangMenu string
	// authenticated pages keyed by request uri, the body is wrapped in the
	// logged-in page chrome
	Pages map[string]string
}

type Server struct {
	*httptest.Server
	Site Site

	mutex    sync.Mutex
	sessions map[string]bool
	hits     map[string]int
	logouts  int
}

func NewServer(t testing.TB, site Site) *Server {
	if site.Token == "" {
		token, err := random.String(16)
		if err != nil {
			t.Fatal(err)
		}
		site.Token = token
	}
	if site.LangMenu == "" {
		site.LangMenu = "日本語 ‎(ja)‎"
	}

	s := &Server{
		Site:     site,
		sessions: map[string]bool{},
		hits:     map[string]int{},
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// Hits returns how many times an authenticated page was served.
func (s *Server) Hits(uri string) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.hits[uri]
}

// Expire invalidates every session, the next page fetch bounces to login.
func (s *Server) Expire() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.sessions = map[string]bool{}
}

// Logouts counts sessions ended through /login/logout.php.
func (s *Server) Logouts() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.logouts
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil || r.URL.Query().Get("sesskey") != sesskey {
		fmt.Fprint(w, s.loginPage(""))
		return
	}
	s.mutex.Lock()
	if s.sessions[cookie.Value] {
		delete(s.sessions, cookie.Value)
		s.logouts++
	}
	s.mutex.Unlock()
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) loggedIn(r *http.Request) bool {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return false
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.sessions[cookie.Value]
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("content-type", "text/html; charset=utf-8")

	if r.URL.Path == "/login/index.php" {
		s.handleLogin(w, r)
		return
	}
	if r.URL.Path == "/login/logout.php" {
		s.handleLogout(w, r)
		return
	}
	if r.URL.Path == "/unauthorized" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if !s.loggedIn(r) {
		http.Redirect(w, r, "/login/index.php", http.StatusSeeOther)
		return
	}

	body, ok := s.Site.Pages[r.URL.RequestURI()]
	if !ok && r.URL.Path == "/my/" {
		body, ok = "<h1>Dashboard</h1>", true
	}
	if !ok {
		http.NotFound(w, r)
		return
	}
	s.mutex.Lock()
	s.hits[r.URL.RequestURI()]++
	s.mutex.Unlock()

	fmt.Fprint(w, s.chrome(body))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		fmt.Fprint(w, s.loginPage(""))
		return
	}

	err := r.ParseForm()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if r.PostForm.Get("logintoken") != s.Site.Token ||
		r.PostForm.Get("username") != s.Site.Username ||
		r.PostForm.Get("password") != s.Site.Password {
		fmt.Fprint(w, s.loginPage("Invalid login, please try again"))
		return
	}

	session, err := random.String(24)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.mutex.Lock()
	s.sessions[session] = true
	s.mutex.Unlock()

	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: session, Path: "/"})
	http.Redirect(w, r, "/my/", http.StatusSeeOther)
}

func (s *Server) loginPage(errorMessage string) string {
	alert := ""
	if errorMessage != "" {
		alert = fmt.Sprintf(`<div class="alert alert-danger" role="alert">%s</div>`, errorMessage)
	}
	return fmt.Sprintf(`<!DOCTYPE html>
<html><body id="page-login-index">
<div class="usermenu"><span class="login">You are not logged in.</span></div>
%s
<form id="login" method="post" action="/login/index.php">
	<input type="hidden" name="logintoken" value="%s">
	<input type="text" name="username">
	<input type="password" name="password">
</form>
</body></html>`, alert, s.Site.Token)
}

func (s *Server) chrome(body string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html><head>
<script>
//<![CDATA[
M.cfg = {"wwwroot":"%s","sesskey":"%s","themerev":"1"};
//]]>
</script>
</head><body>
<nav class="navbar"><div class="container-fluid">
	<div class="langmenu"><a class="dropdown-toggle nav-link" href="#">%s</a></div>
	<div class="usermenu"><a class="dropdown-toggle" href="#"><span class="avatar current">A</span></a></div>
</div></nav>
<div id="page">%s</div>
</body></html>`, s.URL, sesskey, s.Site.LangMenu, body)
}
