// Package migrate brings a labelline workspace database up to the current
// schema. Steps are embedded SQL files named NN_description.sql and run in a
// single transaction whenever the workspace opens; there is no standalone
// migrate command.
package migrate

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
)

//go:embed sql/*.sql
var schemaFS embed.FS

type step struct {
	version int
	name    string
	stmts   string
}

func loadSteps() ([]step, error) {
	entries, err := fs.ReadDir(schemaFS, "sql")
	if err != nil {
		return nil, err
	}
	steps := make([]step, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		prefix, _, ok := strings.Cut(e.Name(), "_")
		if !ok {
			return nil, fmt.Errorf("schema file %s: want NN_description.sql", e.Name())
		}
		v, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("schema file %s: %w", e.Name(), err)
		}
		data, err := schemaFS.ReadFile("sql/" + e.Name())
		if err != nil {
			return nil, err
		}
		steps = append(steps, step{version: v, name: e.Name(), stmts: string(data)})
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].version < steps[j].version })
	return steps, nil
}

// Migrate applies any pending schema steps and returns the schema version the
// workspace ends up at. Applied steps are recorded in schema_version, so
// running it on every open is a no-op once the workspace is current.
func Migrate(db *sql.DB) (int, error) {
	steps, err := loadSteps()
	if err != nil {
		return 0, err
	}
	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`CREATE TABLE IF NOT EXISTS schema_version(version INTEGER NOT NULL);`); err != nil {
		return 0, fmt.Errorf("create schema_version: %w", err)
	}
	var current int
	err = tx.QueryRow(`SELECT version FROM schema_version LIMIT 1`).Scan(&current)
	if err == sql.ErrNoRows {
		if _, err := tx.Exec(`INSERT INTO schema_version(version) VALUES (0)`); err != nil {
			return 0, fmt.Errorf("init schema_version: %w", err)
		}
	} else if err != nil {
		return 0, fmt.Errorf("read schema_version: %w", err)
	}

	for _, s := range steps {
		if s.version <= current {
			continue
		}
		if _, err := tx.Exec(s.stmts); err != nil {
			return 0, fmt.Errorf("apply %s: %w", s.name, err)
		}
		if _, err := tx.Exec(`UPDATE schema_version SET version=?`, s.version); err != nil {
			return 0, fmt.Errorf("record %s: %w", s.name, err)
		}
		current = s.version
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return current, nil
}
