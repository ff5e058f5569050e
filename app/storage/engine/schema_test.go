package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchema_createStatement(t *testing.T) {
	tests := []struct {
		name    string
		schema  Schema
		dbType  Type
		want    string
		wantErr string
	}{
		{name: "sqlite", schema: itemsSchema, dbType: Sqlite, want: itemsSchema.Sqlite},
		{name: "postgres", schema: itemsSchema, dbType: Postgres, want: itemsSchema.Postgres},
		{name: "unknown db type", schema: itemsSchema, dbType: Unknown, wantErr: "unsupported database type"},
		{name: "no table name", schema: Schema{Sqlite: "CREATE TABLE x (id INTEGER)"}, dbType: Sqlite,
			wantErr: "schema without table name"},
		{name: "no dialect statement", schema: Schema{Table: "items", Sqlite: itemsSchema.Sqlite}, dbType: Postgres,
			wantErr: "no postgres create statement for items"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.schema.createStatement(tt.dbType)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
