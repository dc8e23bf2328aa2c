package htmlutil

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const fixture = `<html><body>
<div class="activity-dates"><div><strong>開始:</strong> 2025年6月1日 9:00</div><div><strong>期限:</strong> 2025年6月8日 23:59</div></div>
<div class="links">
	<a href="/mod/assign/view.php?id=3">  課題 1
	  (レポート) </a>
	<a href="https://other.example.com/x">external</a>
	<a href="#top">skip</a>
	<a>no href</a>
	<a href="javascript:void(0)">script</a>
</div>
<script>var x = "hidden";</script>
</body></html>`

func TestGetAnchors(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fixture))
	require.NoError(t, err)
	base, err := url.Parse("https://moodle.example.ac.jp/course/view.php?id=1")
	require.NoError(t, err)

	anchors := GetAnchors(context.Background(), doc.Find("div.links a"), base)
	expect := []Anchor{
		{Name: "課題 1 (レポート)", Href: "https://moodle.example.ac.jp/mod/assign/view.php?id=3"},
		{Name: "external", Href: "https://other.example.com/x"},
	}
	if diff := cmp.Diff(expect, anchors); diff != "" {
		t.Fatal(diff)
	}
}

func TestSelectionLines(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fixture))
	require.NoError(t, err)

	lines := SelectionLines(doc.Find("div.activity-dates"))
	require.Equal(t, []string{
		"開始: 2025年6月1日 9:00",
		"期限: 2025年6月8日 23:59",
	}, lines)
}

func TestSelectionTextSkipsScripts(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fixture))
	require.NoError(t, err)

	text := SelectionText(doc.Find("body"))
	require.NotContains(t, text, "hidden")
	require.Contains(t, text, "課題 1 (レポート)")
}

func TestCleanText(t *testing.T) {
	require.Equal(t, "a b c", CleanText("‎ a \n\t b   c ‎"))
}
