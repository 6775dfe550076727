package migrations

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindMigrationFiles_Embedded(t *testing.T) {
	files, err := NewMigrator(nil).FindMigrationFiles()
	require.NoError(t, err)

	require.Len(t, files, 2)
	assert.Equal(t, "001", files[0].Version)
	assert.Equal(t, "audit_runs", files[0].Name)
	assert.NotEmpty(t, files[0].DownPath)
	assert.Equal(t, "002", files[1].Version)
}

func TestFindMigrationFiles_PairsAndSorts(t *testing.T) {
	fsys := fstest.MapFS{
		"010_later.up.sql":    {Data: []byte("SELECT 1;")},
		"002_second.up.sql":   {Data: []byte("SELECT 1;")},
		"002_second.down.sql": {Data: []byte("SELECT 1;")},
		"001_first.up.sql":    {Data: []byte("SELECT 1;")},
		"README.md":           {Data: []byte("notes")},
		"nounderscore.up.sql": {Data: []byte("SELECT 1;")},
	}

	files, err := NewMigratorFS(nil, fsys).FindMigrationFiles()
	require.NoError(t, err)

	versions := make([]string, len(files))
	for i, f := range files {
		versions[i] = f.Version
	}
	assert.Equal(t, []string{"001", "002", "010"}, versions)
	assert.Equal(t, "002_second.down.sql", files[1].DownPath)
	assert.Empty(t, files[0].DownPath)
}

func TestFindMigrationFiles_OrphanDown(t *testing.T) {
	fsys := fstest.MapFS{
		"003_orphan.down.sql": {Data: []byte("SELECT 1;")},
	}

	_, err := NewMigratorFS(nil, fsys).FindMigrationFiles()
	assert.ErrorContains(t, err, "no up script")
}

func TestCalculateChecksum(t *testing.T) {
	a := calculateChecksum([]byte("CREATE TABLE x ();"))
	b := calculateChecksum([]byte("CREATE TABLE x ();"))
	c := calculateChecksum([]byte("CREATE TABLE y ();"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
