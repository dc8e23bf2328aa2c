package configutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	BaseUrl  string `json:"base_url"`
	Limit    int    `json:"limit"`
	Password string `json:"password"`
}

func TestReadConfigMergesLocal(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("KADAI_TEST_PASSWORD", "hunter2")

	err := os.WriteFile(filepath.Join(dir, "config.json5"), []byte(`{
		// comments are allowed
		base_url: "https://moodle.example.ac.jp",
		limit: 4,
	}`), 0600)
	require.NoError(t, err)
	err = os.WriteFile(filepath.Join(dir, "config.local.json5"), []byte(`{
		limit: 8,
		password: "${KADAI_TEST_PASSWORD}",
	}`), 0600)
	require.NoError(t, err)

	config, err := ReadConfig[testConfig](filepath.Join(dir, "config.json5"))
	require.NoError(t, err)
	require.Equal(t, testConfig{
		BaseUrl:  "https://moodle.example.ac.jp",
		Limit:    8,
		Password: "hunter2",
	}, config)
}

func TestReadConfigMissing(t *testing.T) {
	_, err := ReadConfig[testConfig](filepath.Join(t.TempDir(), "config.json5"))
	require.True(t, os.IsNotExist(err))
}

func TestReadOptional(t *testing.T) {
	config, err := ReadOptional[testConfig](filepath.Join(t.TempDir(), "config.json5"))
	require.NoError(t, err)
	require.Zero(t, config)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json5"), []byte(`{ limit: `), 0600))
	_, err = ReadOptional[testConfig](filepath.Join(dir, "config.json5"))
	require.Error(t, err)
}

func TestReadRecursively(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "telemetry.json5"), []byte(`{ limit: 3 }`), 0600))
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0777))
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(nested))
	t.Cleanup(func() { os.Chdir(wd) })

	config, err := ReadRecursively[testConfig]("telemetry.json5")
	require.NoError(t, err)
	require.Equal(t, 3, config.Limit)
}
