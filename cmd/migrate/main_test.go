package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeMigration(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestLoadMigrationFilesOrdersByVersion(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "0002_second.sql", "CREATE TABLE second ();")
	writeMigration(t, dir, "0001_first.sql", "CREATE TABLE first ();")
	writeMigration(t, dir, "readme.md", "not a migration")

	files, err := loadMigrationFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)
	require.Equal(t, 1, files[0].version)
	require.Equal(t, "0001_first.sql", files[0].filename)
	require.Equal(t, 2, files[1].version)
}

func TestLoadMigrationFilesChecksumChangesWithContent(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "0001_a.sql", "CREATE TABLE a ();")
	first, err := loadMigrationFiles(dir)
	require.NoError(t, err)

	writeMigration(t, dir, "0001_a.sql", "CREATE TABLE a (id INT);")
	second, err := loadMigrationFiles(dir)
	require.NoError(t, err)

	require.NotEqual(t, first[0].checksum, second[0].checksum)
}

func TestPendingMigrationsSkipsAlreadyApplied(t *testing.T) {
	files := []migrationFile{
		{version: 1, filename: "0001_a.sql", checksum: "aaa"},
		{version: 2, filename: "0002_b.sql", checksum: "bbb"},
	}
	applied := map[int]string{1: "aaa"}

	pending, err := pendingMigrations(files, applied)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "0002_b.sql", pending[0].filename)
}

func TestPendingMigrationsRejectsChecksumMismatch(t *testing.T) {
	files := []migrationFile{{version: 1, filename: "0001_a.sql", checksum: "deadbeef"}}
	applied := map[int]string{1: "other-checksum"}

	_, err := pendingMigrations(files, applied)
	require.ErrorContains(t, err, "checksum mismatch")
}
