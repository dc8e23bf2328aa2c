package datetext

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"kadai-backend/lib/portal"
	"kadai-backend/lib/timezone"
)

type Range struct {
	Start *time.Time
	End   *time.Time
}

func (r Range) Empty() bool {
	return r.Start == nil && r.End == nil
}

type lineKind int

const (
	lineNone lineKind = iota
	lineStart
	lineEnd
)

func containsAny(line string, keywords []string) bool {
	lower := strings.ToLower(line)
	for _, k := range keywords {
		if strings.Contains(lower, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

func hasDigit(s string) bool {
	return strings.ContainsAny(s, "0123456789")
}

func classifyLine(loc Locale, line string) lineKind {
	if containsAny(line, loc.StartKeywords) {
		return lineStart
	}
	if containsAny(line, loc.EndKeywords) {
		return lineEnd
	}
	return lineNone
}

// ParseRange extracts the start and due instants from a (possibly multi-line)
// date block printed in the given language. Lines that carry no date, or no
// start/end keyword, are ignored; when the same kind appears twice the last
// one wins.
func ParseRange(ctx context.Context, text, lang string) Range {
	loc := LookupLocale(lang)

	var out Range
	// a label printed on its own line ("Due:") applies to the next dated line
	pending := lineNone
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		kind := classifyLine(loc, line)
		if kind == lineNone {
			kind = pending
		}
		if kind == lineNone {
			continue
		}
		parsed, err := ParseLine(loc, line)
		if err != nil {
			if !hasDigit(line) {
				pending = kind
				continue
			}
			slog.WarnContext(ctx, "skipping unparseable date line", "line", line, "lang", loc.Code, "err", err)
			pending = lineNone
			continue
		}
		pending = lineNone
		switch kind {
		case lineStart:
			out.Start = &parsed
		case lineEnd:
			out.End = &parsed
		}
	}
	return out
}

var meridiems = map[string]bool{
	"am": false,
	"pm": true,
	"오전": false,
	"오후": true,
}

// ParseLine matches a single line against the locale pattern and assembles
// the instant in the institution's timezone.
func ParseLine(loc Locale, line string) (time.Time, error) {
	groups := loc.Pattern.FindStringSubmatch(line)
	if groups == nil {
		return time.Time{}, fmt.Errorf("%w: no match for locale %s", portal.ErrDateParseFailure, loc.Code)
	}

	var year, day, hour, minute int
	var month time.Month
	var meridiem string
	for i, field := range loc.Order {
		if i+1 >= len(groups) {
			break
		}
		value := groups[i+1]

		var err error
		switch field {
		case FieldYear:
			year, err = strconv.Atoi(value)
		case FieldMonth:
			var m int
			m, err = strconv.Atoi(value)
			month = time.Month(m)
		case FieldMonthName:
			m, ok := loc.Months[strings.ToLower(value)]
			if !ok {
				err = fmt.Errorf("unknown month name %q", value)
			}
			month = m
		case FieldDay:
			day, err = strconv.Atoi(value)
		case FieldHour:
			hour, err = strconv.Atoi(value)
		case FieldMinute:
			minute, err = strconv.Atoi(value)
		case FieldMeridiem:
			meridiem = strings.ToLower(value)
		}
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %s", portal.ErrDateParseFailure, err.Error())
		}
	}

	if meridiem != "" {
		hour = To24Hour(hour, meridiems[meridiem])
	}
	return checkedDate(year, month, day, hour, minute, line)
}

// checkedDate builds the instant and rejects any field time.Date would
// silently normalize, so "2月31日" fails instead of becoming 3 March.
func checkedDate(year int, month time.Month, day, hour, minute int, text string) (time.Time, error) {
	t := timezone.Date(year, month, day, hour, minute)
	if t.Year() != year || t.Month() != month || t.Day() != day || t.Hour() != hour || t.Minute() != minute {
		return time.Time{}, fmt.Errorf("%w: out of range date in %q", portal.ErrDateParseFailure, text)
	}
	return t, nil
}

// To24Hour converts a 12-hour clock value: 12 AM is midnight, PM adds 12
// except for noon.
func To24Hour(hour int, pm bool) int {
	if !pm && hour == 12 {
		return 0
	}
	if pm && hour != 12 {
		return hour + 12
	}
	return hour
}

var monthDayRegex = regexp.MustCompile(`(\d{1,2})/(\d{1,2})\s+(\d{1,2}):(\d{2})`)

// ParseMonthDayDue parses the compact "MM/DD HH:MM" due string of the
// dashboard table, assuming the calendar year of now.
func ParseMonthDayDue(text string, now time.Time) (time.Time, error) {
	groups := monthDayRegex.FindStringSubmatch(text)
	if groups == nil {
		return time.Time{}, fmt.Errorf("%w: %q is not MM/DD HH:MM", portal.ErrDateParseFailure, text)
	}
	month, _ := strconv.Atoi(groups[1])
	day, _ := strconv.Atoi(groups[2])
	hour, _ := strconv.Atoi(groups[3])
	minute, _ := strconv.Atoi(groups[4])
	year := now.In(timezone.Location).Year()
	return checkedDate(year, time.Month(month), day, hour, minute, text)
}

var slashDateRegex = regexp.MustCompile(`(\d{4})/(\d{1,2})/(\d{1,2})\s+(\d{1,2}):(\d{2})`)

// ParseSlashRange parses "YYYY/MM/DD HH:MM - YYYY/MM/DD HH:MM". A single
// date is taken as the end of the range.
func ParseSlashRange(text string) (Range, error) {
	matches := slashDateRegex.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return Range{}, fmt.Errorf("%w: %q has no YYYY/MM/DD HH:MM date", portal.ErrDateParseFailure, text)
	}

	dates := make([]time.Time, 0, len(matches))
	for _, groups := range matches {
		nums := make([]int, 5)
		for i := range nums {
			nums[i], _ = strconv.Atoi(groups[i+1])
		}
		date, err := checkedDate(nums[0], time.Month(nums[1]), nums[2], nums[3], nums[4], groups[0])
		if err != nil {
			return Range{}, err
		}
		dates = append(dates, date)
	}

	if len(dates) == 1 {
		return Range{End: &dates[0]}, nil
	}
	return Range{Start: &dates[0], End: &dates[len(dates)-1]}, nil
}
