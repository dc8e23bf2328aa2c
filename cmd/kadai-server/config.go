package main

import (
	configlibsql "kadai-backend/lib/configutil/libsql"
	"kadai-backend/lib/notify"
	"kadai-backend/services/crawler"
)

type Config struct {
	Port int `json:"port"`
	// bearer token callers must present, no check when empty
	AccessToken string              `json:"access_token"`
	Crawler     crawler.Config      `json:"crawler"`
	Database    configlibsql.Struct `json:"database"`
	Smtp        *notify.SmtpConfig  `json:"smtp"`
}
