package commands

import (
	"context"
	"database/sql"
	"kadai-backend/lib/configutil"
	configlibsql "kadai-backend/lib/configutil/libsql"
	"kadai-backend/lib/notify"
	"kadai-backend/services/assignments/db"
	"kadai-backend/services/crawler"
)

type Config struct {
	Crawler  crawler.Config      `json:"crawler"`
	Database configlibsql.Struct `json:"database"`
	Smtp     *notify.SmtpConfig  `json:"smtp"`
}

const defaultDatabase = "<dev_state>/kadai.db"

// readConfig tolerates a missing file, every setting has a usable default.
func readConfig() (Config, error) {
	cfg, err := configutil.ReadOptional[Config](configPath)
	if err != nil {
		return Config{}, err
	}
	if cfg.Database.File == "" && cfg.Database.Url == "" {
		cfg.Database.File = defaultDatabase
	}
	return cfg, nil
}

func openDatabase(ctx context.Context, cfg Config) (*sql.DB, error) {
	database, err := cfg.Database.OpenDB()
	if err != nil {
		return nil, err
	}
	err = db.Migrate(ctx, database)
	if err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}
