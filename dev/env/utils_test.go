package devenv

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFindWorkspaceRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "go.mod"), []byte("module kadai-backend\n\ngo 1.22.2\n"), 0666))
	nested := filepath.Join(root, "lib", "scrapers", "moodle")
	require.NoError(t, os.MkdirAll(nested, 0777))

	found, err := findWorkspaceRoot(nested)
	require.NoError(t, err)
	require.Equal(t, root, found)

	other := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(other, "go.mod"), []byte("module something-else\n"), 0666))
	_, err = findWorkspaceRoot(other)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestResolvePath(t *testing.T) {
	state := filepath.Join(t.TempDir(), "state")
	t.Setenv("KADAI_STATE_DIR", state)

	path, err := ResolvePath("<dev_state>/kadai.db")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(state, "kadai.db"), path)
	require.DirExists(t, state)

	path, err = ResolvePath("<dev_state>")
	require.NoError(t, err)
	require.Equal(t, state, path)

	path, err = ResolvePath("/var/lib/kadai.db")
	require.NoError(t, err)
	require.Equal(t, "/var/lib/kadai.db", path)

	path, err = ResolvePath("<dev_state>x.db")
	require.NoError(t, err)
	require.Equal(t, "<dev_state>x.db", path)
}

func TestGetStateConfig(t *testing.T) {
	state := t.TempDir()
	t.Setenv("KADAI_STATE_DIR", state)

	_, err := GetStateConfig[MoodleTestConfig]("moodle_config.json5")
	require.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(state, "moodle_config.json5"), []byte(`{
		// a comment
		base_url: "https://moodle.example.ac.jp",
		username: "s123",
		password: "hunter2",
	}`), 0666))
	config, err := GetStateConfig[MoodleTestConfig]("moodle_config.json5")
	require.NoError(t, err)
	require.Equal(t, MoodleTestConfig{
		BaseUrl:  "https://moodle.example.ac.jp",
		Username: "s123",
		Password: "hunter2",
	}, config)
}
