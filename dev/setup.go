package main

import (
	"context"
	"database/sql"
	"fmt"
	devenv "kadai-backend/dev/env"
	assignmentsdb "kadai-backend/services/assignments/db"
	"log/slog"
	"os"
	"path/filepath"
)

func createDb(filename string, migrate func(context.Context, *sql.DB) error) error {
	path, err := devenv.ResolvePath(filepath.Join("<dev_state>", filename))
	if err != nil {
		return err
	}

	_, err = os.Stat(path)
	if err == nil {
		fmt.Println("database already created at", path)
		return nil
	}

	fmt.Println("creating database at", path)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return err
	}
	defer db.Close()
	return migrate(context.Background(), db)
}

func CreateEmptyServiceDBs() error {
	return createDb("kadai.db", assignmentsdb.Migrate)
}

func PrintConfigLocations() {
	state, err := devenv.ResolvePath("<dev_state>")
	if err != nil {
		return
	}
	slog.Info(
		"live portal tests are skipped unless their config files exist",
		"moodle", filepath.Join(state, "moodle_config.json5"),
		"webclass", filepath.Join(state, "webclass_config.json5"),
	)
}
