package db

import (
	"fmt"
)

// postColumns lists the posts columns added after the first schema, with
// their definitions.
var postColumns = []struct {
	name       string
	definition string
}{
	{"description", "TEXT DEFAULT ''"},
	{"slides", "BLOB"},
	{"published", "INTEGER NOT NULL DEFAULT 0"},
}

// MigrateSchema adds the posts columns missing from databases created by
// older releases. It returns the names of the columns it added.
func MigrateSchema(d DB) ([]string, error) {
	existing, err := columns(d, "posts")
	if err != nil {
		return nil, err
	}

	var added []string
	for _, c := range postColumns {
		if existing[c.name] {
			continue
		}
		if _, err := d.Exec(fmt.Sprintf("ALTER TABLE posts ADD COLUMN %s %s", c.name, c.definition)); err != nil {
			return added, fmt.Errorf("error adding column %s: %w", c.name, err)
		}
		dbLogger.Info().Str("column", c.name).Msg("Column added")
		added = append(added, c.name)
	}
	return added, nil
}

func columns(d DB, table string) (map[string]bool, error) {
	rows, err := d.Query("SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return nil, fmt.Errorf("error reading %s columns: %w", table, err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("error reading %s columns: %w", table, err)
		}
		out[name] = true
	}
	return out, rows.Err()
}
