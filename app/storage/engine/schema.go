package engine

import (
	"fmt"
	"strings"
)

// Schema describes a table with its dialect specific CREATE statements and indexes
type Schema struct {
	Table    string
	Sqlite   string
	Postgres string
	Indexes  []string // CREATE INDEX statements, same for all dialects
}

// createStatement returns CREATE TABLE statement for the dialect
func (s Schema) createStatement(dbType Type) (string, error) {
	if s.Table == "" {
		return "", fmt.Errorf("schema without table name")
	}
	var stmt string
	switch dbType {
	case Sqlite:
		stmt = s.Sqlite
	case Postgres:
		stmt = s.Postgres
	default:
		return "", fmt.Errorf("unsupported database type %q", dbType)
	}
	if strings.TrimSpace(stmt) == "" {
		return "", fmt.Errorf("no %s create statement for %s", dbType, s.Table)
	}
	return stmt, nil
}
