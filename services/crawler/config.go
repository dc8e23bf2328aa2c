package crawler

import (
	"time"
)

type MoodleConfig struct {
	BaseUrl string `json:"base_url"`
	// requests per second against the portal, defaults to 2
	RateLimit      float64 `json:"rate_limit"`
	Burst          int     `json:"burst"`
	MaxConcurrency int     `json:"max_concurrency"`
	// dumps every http exchange here while debug logging is on
	DebugDir string `json:"debug_dir"`
}

type WebClassConfig struct {
	BaseUrl               string `json:"base_url"`
	ChromeExecPath        string `json:"chrome_exec_path"`
	Headful               bool   `json:"headful"`
	ElementTimeoutSeconds int    `json:"element_timeout_seconds"`
}

type Config struct {
	Moodle   MoodleConfig   `json:"moodle"`
	WebClass WebClassConfig `json:"webclass"`
	// how often a crawl that hit an expired session is restarted from
	// login, nil means once
	RetrySessionExpired *int `json:"retry_session_expired"`
	// how long the last outcomes of an owner are remembered, defaults to a day
	OutcomeTtlMinutes int `json:"outcome_ttl_minutes"`
}

func (c Config) sessionRetries() int {
	if c.RetrySessionExpired == nil {
		return 1
	}
	return max(*c.RetrySessionExpired, 0)
}

func (c Config) outcomeTtl() time.Duration {
	if c.OutcomeTtlMinutes <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.OutcomeTtlMinutes) * time.Minute
}

func (c WebClassConfig) elementTimeout() time.Duration {
	return time.Duration(c.ElementTimeoutSeconds) * time.Second
}
