// Command migrate applies the SQL files under migrations/ to the
// configured database in version order, recording each applied file's
// checksum so a modified file is caught on the next run instead of
// silently reapplied.
package main

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	_ "github.com/jackc/pgx/v5/stdlib"

	"mm-engine/internal/config"
)

var versionPattern = regexp.MustCompile(`^(\d+)_.*\.sql$`)

type migrationFile struct {
	version  int
	filename string
	path     string
	checksum string
}

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "path to the YAML config file")
	dir := flag.String("dir", "migrations", "path to the migrations directory")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	files, err := loadMigrationFiles(*dir)
	if err != nil {
		log.Fatalf("scan migrations: %v", err)
	}

	db, err := sql.Open("pgx", cfg.Database.DSN())
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if err := run(db, files); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	log.Printf("migrate: %d migration file(s) applied or already recorded", len(files))
}

func loadMigrationFiles(dir string) ([]migrationFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []migrationFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := versionPattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		version, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, fmt.Errorf("%s: bad version prefix: %w", e.Name(), err)
		}
		path := filepath.Join(dir, e.Name())
		body, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		sum := sha256.Sum256(body)
		files = append(files, migrationFile{
			version:  version,
			filename: e.Name(),
			path:     path,
			checksum: hex.EncodeToString(sum[:]),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files, nil
}

// run ensures the schema_migrations bookkeeping table exists, then applies
// every file whose version is not yet recorded. Any already-applied
// file whose checksum no longer matches aborts the run before anything new
// is applied.
func run(db *sql.DB, files []migrationFile) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		filename TEXT NOT NULL,
		checksum TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	applied := map[int]string{}
	rows, err := db.Query(`SELECT version, checksum FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("load applied versions: %w", err)
	}
	for rows.Next() {
		var version int
		var checksum string
		if err := rows.Scan(&version, &checksum); err != nil {
			rows.Close()
			return err
		}
		applied[version] = checksum
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	pending, err := pendingMigrations(files, applied)
	if err != nil {
		return err
	}

	for _, f := range pending {
		if err := applyOne(db, f); err != nil {
			return fmt.Errorf("%s: %w", f.filename, err)
		}
		log.Printf("migrate: applied %s", f.filename)
	}
	return nil
}

// pendingMigrations returns the files not yet recorded in applied, in
// order. It refuses to proceed if any already-applied file's checksum no
// longer matches what's on disk.
func pendingMigrations(files []migrationFile, applied map[int]string) ([]migrationFile, error) {
	var pending []migrationFile
	for _, f := range files {
		checksum, ok := applied[f.version]
		if !ok {
			pending = append(pending, f)
			continue
		}
		if checksum != f.checksum {
			return nil, fmt.Errorf("%s: checksum mismatch, file changed since it was applied", f.filename)
		}
	}
	return pending, nil
}

func applyOne(db *sql.DB, f migrationFile) error {
	body, err := os.ReadFile(f.path)
	if err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(string(body)); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations (version, filename, checksum) VALUES ($1, $2, $3)`,
		f.version, f.filename, f.checksum); err != nil {
		return err
	}
	return tx.Commit()
}
