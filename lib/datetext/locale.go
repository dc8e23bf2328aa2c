package datetext

import (
	"regexp"
	"strings"
	"time"
)

type Field int

const (
	FieldYear Field = iota
	FieldMonth
	FieldMonthName
	FieldDay
	FieldHour
	FieldMinute
	FieldMeridiem
)

// Locale describes how one portal language prints activity dates.
type Locale struct {
	Code          string
	Pattern       *regexp.Regexp
	Order         []Field
	Months        map[string]time.Month
	StartKeywords []string
	EndKeywords   []string
}

const DefaultLang = "ja"

var englishMonths = map[string]time.Month{
	"january":   time.January,
	"february":  time.February,
	"march":     time.March,
	"april":     time.April,
	"may":       time.May,
	"june":      time.June,
	"july":      time.July,
	"august":    time.August,
	"september": time.September,
	"october":   time.October,
	"november":  time.November,
	"december":  time.December,
}

const englishMonthAlt = `January|February|March|April|May|June|July|August|September|October|November|December`

var cjkPattern = regexp.MustCompile(`(\d{4})年\s*(\d{1,2})月\s*(\d{1,2})日.*?(\d{1,2}):(\d{2})`)
var cjkOrder = []Field{FieldYear, FieldMonth, FieldDay, FieldHour, FieldMinute}

var Locales = map[string]Locale{
	"en": {
		Code: "en",
		Pattern: regexp.MustCompile(
			`(?i)(?:[\p{L}]+,\s+)?(\d{1,2})\s+(` + englishMonthAlt + `)\s+(\d{4}),\s+(\d{1,2}):(\d{2})(?:\s*(AM|PM))?`,
		),
		Order:         []Field{FieldDay, FieldMonthName, FieldYear, FieldHour, FieldMinute, FieldMeridiem},
		Months:        englishMonths,
		StartKeywords: []string{"Open"},
		EndKeywords:   []string{"Due", "Close"},
	},
	"en_us": {
		Code: "en_us",
		Pattern: regexp.MustCompile(
			`(?i)(?:[\p{L}]+,\s+)?(` + englishMonthAlt + `)\s+(\d{1,2}),\s+(\d{4}),\s+(\d{1,2}):(\d{2})(?:\s*(AM|PM))?`,
		),
		Order:         []Field{FieldMonthName, FieldDay, FieldYear, FieldHour, FieldMinute, FieldMeridiem},
		Months:        englishMonths,
		StartKeywords: []string{"Open"},
		EndKeywords:   []string{"Due", "Close"},
	},
	"vi": {
		Code: "vi",
		Pattern: regexp.MustCompile(
			`(?i)(?:(?:Thứ|Chủ)\s+[\p{L}]+,\s*)?(\d{1,2})\s+tháng\s+(\d{1,2})\s+(\d{4}),\s*(\d{1,2}):(\d{2})(?:\s*(AM|PM))?`,
		),
		Order:         []Field{FieldDay, FieldMonth, FieldYear, FieldHour, FieldMinute, FieldMeridiem},
		StartKeywords: []string{"Open", "Mở"},
		EndKeywords:   []string{"Due", "Close", "Hạn", "Đóng"},
	},
	"zh_tw": {
		Code:          "zh_tw",
		Pattern:       cjkPattern,
		Order:         cjkOrder,
		StartKeywords: []string{"開始", "開啟"},
		EndKeywords:   []string{"到期", "關閉", "結束"},
	},
	"ja": {
		Code:          "ja",
		Pattern:       cjkPattern,
		Order:         cjkOrder,
		StartKeywords: []string{"開始"},
		EndKeywords:   []string{"期限", "終了"},
	},
	"zh_cn": {
		Code:          "zh_cn",
		Pattern:       cjkPattern,
		Order:         cjkOrder,
		StartKeywords: []string{"打开", "已打开"},
		EndKeywords:   []string{"到期日", "关闭", "已关闭"},
	},
	"ko": {
		Code: "ko",
		Pattern: regexp.MustCompile(
			`(?i)(?:[\p{L}]+,\s+)?(\d{1,2})\s+(\d{1,2})월\s+(\d{4}),\s+(\d{1,2}):(\d{2})(?:\s*(AM|PM|오전|오후))?`,
		),
		Order:         []Field{FieldDay, FieldMonth, FieldYear, FieldHour, FieldMinute, FieldMeridiem},
		StartKeywords: []string{"Opened", "열기", "열림"},
		EndKeywords:   []string{"Due", "닫기", "닫힘"},
	},
}

// LookupLocale falls back to the default locale for unknown codes.
func LookupLocale(lang string) Locale {
	loc, ok := Locales[normalizeLang(lang)]
	if !ok {
		return Locales[DefaultLang]
	}
	return loc
}

func normalizeLang(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	return strings.ReplaceAll(lang, "-", "_")
}

var langCodeRegex = regexp.MustCompile(`\(([a-zA-Z\-_]+)\)`)

// DetectLang reads the trailing bracketed code of a language menu label
// such as "日本語 (ja)" and returns a known locale code.
func DetectLang(menuText string) string {
	matches := langCodeRegex.FindAllStringSubmatch(menuText, -1)
	if len(matches) == 0 {
		return DefaultLang
	}
	code := normalizeLang(matches[len(matches)-1][1])
	if _, ok := Locales[code]; !ok {
		return DefaultLang
	}
	return code
}
