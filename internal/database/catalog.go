package database

import (
	"fmt"
	"strings"

	"github.com/micproject/newsetl/internal/artifact"
)

// TableColumns reads a table's column set from the catalog in ordinal
// order. Workers project parsed records onto this list, so the schema can
// evolve without touching the parsers.
func (db *DB) TableColumns(table string) ([]artifact.ColumnSpec, error) {
	rows, err := db.Query("SELECT name, type FROM pragma_table_info(?) ORDER BY cid", table)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog for %s: %w", table, err)
	}
	defer rows.Close()

	var specs []artifact.ColumnSpec
	for rows.Next() {
		var name, typ string
		if err := rows.Scan(&name, &typ); err != nil {
			return nil, fmt.Errorf("failed to scan catalog row for %s: %w", table, err)
		}
		specs = append(specs, artifact.ColumnSpec{Name: name, Kind: columnKind(typ)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read catalog for %s: %w", table, err)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("table %s has no columns, does it exist?", table)
	}
	return specs, nil
}

// DataColumns is TableColumns without the id column, which the loader
// assigns itself.
func (db *DB) DataColumns(table string) ([]artifact.ColumnSpec, error) {
	specs, err := db.TableColumns(table)
	if err != nil {
		return nil, err
	}
	out := specs[:0]
	for _, s := range specs {
		if !strings.EqualFold(s.Name, "id") {
			out = append(out, s)
		}
	}
	return out, nil
}

func columnKind(sqlType string) artifact.Kind {
	t := strings.ToUpper(sqlType)
	switch {
	case strings.Contains(t, "INT"):
		return artifact.KindInteger
	case t == "DATE":
		return artifact.KindDate
	default:
		return artifact.KindText
	}
}
