package view

import (
	"context"
	"errors"
	"kadai-backend/lib/portal"
	"kadai-backend/lib/scrapers/moodle/core"
	"kadai-backend/lib/scrapers/moodle/moodletest"
	"kadai-backend/lib/telemetry"
	"kadai-backend/lib/timezone"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
)

const dashboardPage = `<section data-block="course_list"><ul class="unlist">
	<li><a href="/course/view.php?id=1">プログラミング演習</a></li>
	<li><a href="/course/view.php?id=2">情報数学</a></li>
	<li><a href="/course/view.php?id=3">お知らせ</a></li>
</ul></section>`

const topicCoursePage = `<ul class="topics" data-for="course_sectionlist"><li class="section main"><ul>
	<li class="activity modtype_assign"><a class="aalink" href="/mod/assign/view.php?id=11">レポート1 課題</a></li>
	<li class="activity modtype_quiz"><a class="aalink" href="/mod/quiz/view.php?id=12">小テスト1</a></li>
	<li class="activity modtype_assign"><a class="aalink" href="/mod/assign/view.php?id=404">消えた課題</a></li>
	<li class="activity modtype_resource"><a class="aalink" href="/mod/resource/view.php?id=13">資料</a></li>
</ul></li></ul>`

// tab 1 and tab 2 link to each other and back to the course root
const tabbedCourseRoot = `<div class="tabs-wrapper"><ul class="nav nav-tabs">
	<li><a class="nav-link" href="/course/view.php?id=2&section=1">第1週</a></li>
</ul></div>`

const tabOne = `<div class="tabs-wrapper"><ul class="nav nav-tabs">
	<li><a class="nav-link" href="/course/view.php?id=2">概要</a></li>
	<li><a class="nav-link" href="/course/view.php?section=2&id=2">第2週</a></li>
</ul></div>
<ul class="topics"><li class="section main"><ul>
	<li class="activity modtype_assign"><a class="aalink" href="/mod/assign/view.php?id=21">課題A</a></li>
</ul></li></ul>`

const tabTwo = `<div class="tabs-wrapper"><ul class="nav nav-tabs">
	<li><a class="nav-link" href="/course/view.php?id=2&section=1#top">第1週</a></li>
</ul></div>
<ul class="topics"><li class="section main"><ul>
	<li class="activity modtype_assign"><a class="aalink" href="/mod/assign/view.php?id=21">課題A</a></li>
	<li class="activity modtype_assign"><a class="aalink" href="/mod/assign/view.php?id=22">課題B</a></li>
</ul></li></ul>`

const assignSubmitted = `<div role="main">
<div class="activity-information" data-activityname="レポート1">
	<div class="activity-dates">
		<div><strong>開始:</strong> 2025年 06月 1日(日曜日) 9:00</div>
		<div><strong>期限:</strong> 2025年 06月 8日(日曜日) 23:59</div>
	</div>
</div>
<div class="activity-description"><p>A4 一枚で</p><p>PDF で提出</p></div>
<div class="submissionstatustable"><table><tr><td class="submissionstatussubmitted">提出済み</td></tr></table></div>
</div>`

const quizWithFeedback = `<div role="main">
<div class="activity-information" data-activityname="小テスト1"></div>
<div id="feedback"><h3>総合フィードバック</h3></div>
</div>`

const assignA = `<div role="main">
<div class="activity-information" data-activityname="課題A"></div>
<div class="submissionstatustable"><table><tr><td class="submissionstatus">未提出</td></tr></table></div>
</div>`

const assignB = `<div role="main"><h2>課題B</h2>
<div class="activity-dates"><div>期限: 2025年7月1日 12:00</div></div>
</div>`

func ptr(t time.Time) *time.Time {
	return &t
}

func setupSite(t *testing.T, pages map[string]string) (*moodletest.Server, *core.Client) {
	server := moodletest.NewServer(t, moodletest.Site{
		Username: "alice",
		Password: "pw",
		Pages:    pages,
	})
	client, err := core.NewClient(context.Background(), core.ClientOptions{
		BaseUrl:   server.URL,
		RateLimit: 1000,
		Burst:     100,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)
	require.NoError(t, client.Login(context.Background(), "alice", "pw"))
	return server, client
}

func TestCrawl(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/moodle/view")
	defer cleanup()

	server, client := setupSite(t, map[string]string{
		"/my/":                            dashboardPage,
		"/course/view.php?id=1":           topicCoursePage,
		"/course/view.php?id=2":           tabbedCourseRoot,
		"/course/view.php?id=2&section=1": tabOne,
		"/course/view.php?section=2&id=2": tabTwo,
		"/course/view.php?id=3":           `<p>maintenance</p>`,
		"/mod/assign/view.php?id=11":      assignSubmitted,
		"/mod/quiz/view.php?id=12":        quizWithFeedback,
		"/mod/assign/view.php?id=21":      assignA,
		"/mod/assign/view.php?id=22":      assignB,
	})

	crawler := NewCrawler(client, Options{MaxConcurrency: 2})
	items, err := crawler.Crawl(context.Background(), "s123")
	require.NoError(t, err)

	expect := []portal.Item{
		{
			Owner:       "s123",
			CourseTitle: "プログラミング演習",
			Title:       "レポート1",
			Content:     "A4 一枚で\nPDF で提出",
			Url:         server.URL + "/mod/assign/view.php?id=11",
			Start:       ptr(timezone.Date(2025, time.June, 1, 9, 0)),
			Due:         ptr(timezone.Date(2025, time.June, 8, 23, 59)),
			Submitted:   true,
			Platform:    portal.PlatformMoodle,
		},
		{
			Owner:       "s123",
			CourseTitle: "プログラミング演習",
			Title:       "小テスト1",
			Url:         server.URL + "/mod/quiz/view.php?id=12",
			Submitted:   true,
			Platform:    portal.PlatformMoodle,
		},
		{
			Owner:       "s123",
			CourseTitle: "情報数学",
			Title:       "課題A",
			Url:         server.URL + "/mod/assign/view.php?id=21",
			Platform:    portal.PlatformMoodle,
		},
		{
			Owner:       "s123",
			CourseTitle: "情報数学",
			Title:       "課題B",
			Url:         server.URL + "/mod/assign/view.php?id=22",
			Due:         ptr(timezone.Date(2025, time.July, 1, 12, 0)),
			Platform:    portal.PlatformMoodle,
		},
	}
	diff := cmp.Diff(expect, items, cmpopts.SortSlices(func(a, b portal.Item) bool {
		return a.Url < b.Url
	}))
	if diff != "" {
		t.Fatal(diff)
	}

	// the cyclic tab graph is walked exactly once per page
	require.Equal(t, 1, server.Hits("/course/view.php?id=2"))
	require.Equal(t, 1, server.Hits("/course/view.php?id=2&section=1"))
	require.Equal(t, 1, server.Hits("/course/view.php?section=2&id=2"))
	require.Equal(t, 1, server.Hits("/mod/assign/view.php?id=21"))
}

func TestCrawlStopsOnSessionExpiry(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/moodle/view")
	defer cleanup()

	_, client := setupSite(t, map[string]string{
		"/my/": dashboardPage,
		"/course/view.php?id=1": `<ul class="topics"><li class="section main"><ul>
			<li class="activity modtype_assign"><a class="aalink" href="/unauthorized">課題</a></li>
		</ul></li></ul>`,
		"/course/view.php?id=2": topicCoursePage,
		"/course/view.php?id=3": topicCoursePage,
	})

	_, err := NewCrawler(client, Options{MaxConcurrency: 1}).Crawl(context.Background(), "s123")
	require.Error(t, err)
	require.True(t, errors.Is(err, portal.ErrSessionExpired))
}

func TestCrawlHonorsCancellation(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/moodle/view")
	defer cleanup()

	_, client := setupSite(t, map[string]string{
		"/my/":                  dashboardPage,
		"/course/view.php?id=1": topicCoursePage,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewCrawler(client, Options{}).Crawl(ctx, "s123")
	require.True(t, errors.Is(err, context.Canceled))
}

func TestCoursesFallsBackToMyCourses(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/moodle/view")
	defer cleanup()

	_, client := setupSite(t, map[string]string{
		"/my/": `<h1>Dashboard</h1>`,
		"/my/courses.php": `<div class="card">
			<a class="aalink coursename" href="/course/view.php?id=7">
				<span class="sr-only">Course name</span>
				<span class="multiline" title="線形代数 (2025)">線形代数 (2025)</span>
			</a></div>`,
	})

	courses, err := NewCrawler(client, Options{}).Courses(context.Background())
	require.NoError(t, err)
	require.Len(t, courses, 1)
	require.Equal(t, "線形代数 (2025)", courses[0].Name)
}
