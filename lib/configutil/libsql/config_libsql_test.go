package configlibsql

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenDBFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kadai.db")
	db, err := Struct{File: path}.OpenDB()
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec("create table t (id integer primary key)")
	require.NoError(t, err)
	require.FileExists(t, path)
}

func TestOpenDBRequiresTarget(t *testing.T) {
	_, err := Struct{}.OpenDB()
	require.Error(t, err)
}
