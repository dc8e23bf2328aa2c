package main

import (
	"flag"
	"fmt"
	devenv "kadai-backend/dev/env"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// templates for the live portal tests, left blank so the tests keep
// skipping until someone fills in an account
var liveConfigTemplates = map[string]string{
	"moodle_config.json5": `{
	// base_url: "https://moodle.example.ac.jp",
	// username: "",
	// password: "${KADAI_MOODLE_SECRET}",
}
`,
	"webclass_config.json5": `{
	// base_url: "https://els.example.ac.jp",
	// username: "",
	// password: "${KADAI_WEBCLASS_SECRET}",
	// chrome_exec_path: "",
}
`,
}

func writeTemplates(state string) error {
	for name, contents := range liveConfigTemplates {
		path := filepath.Join(state, name)
		_, err := os.Stat(path)
		if err == nil {
			continue
		}
		err = os.WriteFile(path, []byte(contents), 0600)
		if err != nil {
			return err
		}
		fmt.Println("wrote template", path)
	}
	return nil
}

func create(recreate bool) error {
	_, err := devenv.GetWorkspaceRoot()
	if err != nil {
		return fmt.Errorf("the dev environment must be created inside the kadai-backend checkout")
	}
	state, err := devenv.StateDir()
	if err != nil {
		return err
	}

	if recreate {
		err = os.RemoveAll(state)
		if err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	err = os.MkdirAll(state, 0777)
	if err != nil {
		return err
	}

	err = CreateEmptyServiceDBs()
	if err != nil {
		return err
	}
	err = writeTemplates(state)
	if err != nil {
		return err
	}
	PrintConfigLocations()
	return nil
}

func main() {
	recreate := flag.Bool("recreate", false, "wipe dev/.state before creating it again")
	flag.Parse()

	err := create(*recreate)
	if err != nil {
		slog.Error("failed to create dev environment", "err", err)
		os.Exit(1)
	}
	slog.Info("dev environment ready")
}
