package devenv

// MoodleTestConfig points live-portal tests at a real account. It lives in
// <dev_state>/moodle_config.json5 and is never committed.
type MoodleTestConfig struct {
	BaseUrl  string `json:"base_url"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type WebClassTestConfig struct {
	BaseUrl        string `json:"base_url"`
	Username       string `json:"username"`
	Password       string `json:"password"`
	ChromeExecPath string `json:"chrome_exec_path"`
}
