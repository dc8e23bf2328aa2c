// Package pageshape sniffs which known layout a fetched portal page has.
package pageshape

import (
	"github.com/PuerkitoBio/goquery"
)

// Shape is the closed set of page layouts the crawlers know how to
// extract from.
type Shape int

const (
	Unrecognized Shape = iota
	TopicWeekList
	TabbedNav
	DashboardTable
)

func (s Shape) String() string {
	switch s {
	case TopicWeekList:
		return "topic_week_list"
	case TabbedNav:
		return "tabbed_nav"
	case DashboardTable:
		return "dashboard_table"
	}
	return "unrecognized"
}

// checked in order, the first shape with a matching marker wins
var shapeMarkers = []struct {
	shape    Shape
	selector string
}{
	{DashboardTable, "table[data-v-8c172e70], table.table-fixed, iframe#ip-iframe"},
	{TabbedNav, "div#tabs-tree-start, div.tabs-wrapper a.nav-link, ul.nav-tabs a.nav-link"},
	{TopicWeekList, "ul[data-for='course_sectionlist'], ul.topics, ul.weeks, li.section.main"},
}

// Classify never fails: a page without any known marker is Unrecognized.
func Classify(doc *goquery.Document) Shape {
	if doc == nil {
		return Unrecognized
	}
	for _, m := range shapeMarkers {
		if doc.Find(m.selector).Length() > 0 {
			return m.shape
		}
	}
	return Unrecognized
}
