package htmlutil

import (
	"bytes"
	"context"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var tracer = otel.Tracer("kadai.lib.htmlutil")

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer, false)
	return buffer.String()
}

// BlockText is like GetText but breaks lines at block-level elements, so a
// container of <div>s reads as one line per child.
func BlockText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer, true)
	return buffer.String()
}

var blockElements = map[atom.Atom]bool{
	atom.Div:   true,
	atom.P:     true,
	atom.Br:    true,
	atom.Li:    true,
	atom.Tr:    true,
	atom.H1:    true,
	atom.H2:    true,
	atom.H3:    true,
	atom.H4:    true,
	atom.H5:    true,
	atom.H6:    true,
	atom.Dd:    true,
	atom.Dt:    true,
	atom.Table: true,
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer, blocks bool) {
	if node == nil {
		return
	}
	switch node.Type {
	case html.TextNode:
		buffer.WriteString(node.Data)
		return
	case html.ElementNode:
		if node.DataAtom == atom.Script || node.DataAtom == atom.Style {
			return
		}
	}

	isBlock := blocks && node.Type == html.ElementNode && blockElements[node.DataAtom]
	if isBlock {
		buffer.WriteByte('\n')
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer, blocks)
		child = child.NextSibling
	}
	if isBlock {
		buffer.WriteByte('\n')
	}
}

// SelectionText flattens every node of a selection into a single string
// with collapsed whitespace.
func SelectionText(sel *goquery.Selection) string {
	var out strings.Builder
	for _, n := range sel.Nodes {
		out.WriteString(GetText(n))
		out.WriteByte(' ')
	}
	return CleanText(out.String())
}

// SelectionLines returns the block text of a selection, one trimmed
// non-empty line per entry.
func SelectionLines(sel *goquery.Selection) []string {
	var lines []string
	for _, n := range sel.Nodes {
		for _, line := range strings.Split(BlockText(n), "\n") {
			line = CleanText(line)
			if line != "" {
				lines = append(lines, line)
			}
		}
	}
	return lines
}

type Anchor struct {
	Name string
	Href string
}

var innerWhitespace = regexp.MustCompile(`\s+`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) || unicode.IsSpace(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// CleanText drops invisible characters and collapses runs of whitespace.
func CleanText(s string) string {
	s = removeNonPrintable(s)
	s = strings.TrimSpace(s)
	s = innerWhitespace.ReplaceAllString(s, " ")
	return s
}

// GetAnchors collects the anchors in sel, resolving hrefs against base when
// it is non-nil. Anchors with an empty or unparsable href are dropped.
func GetAnchors(ctx context.Context, sel *goquery.Selection, base *url.URL) []Anchor {
	ctx, span := tracer.Start(ctx, "GetAnchors")
	defer span.End()

	anchors := []Anchor{}
	for _, n := range sel.Nodes {
		href := ""
		for _, a := range n.Attr {
			if a.Key == "href" {
				href = strings.TrimSpace(a.Val)
				break
			}
		}
		if href == "" || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "#") {
			continue
		}

		link, err := url.Parse(href)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "got error while parsing url")
			continue
		}
		if base != nil {
			link = base.ResolveReference(link)
		}

		name := CleanText(GetText(n))

		linkStr := link.String()
		anchors = append(anchors, Anchor{
			Name: name,
			Href: linkStr,
		})
		span.AddEvent("anchor", trace.WithAttributes(
			attribute.String("name", name),
			attribute.String("url", linkStr),
		))
	}

	return anchors
}
