package database

import (
	"testing"

	"github.com/huandu/go-sqlbuilder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONB(t *testing.T) {
	value, err := NewJSONB(map[string]string{"name": "Ada"}).Value()
	require.NoError(t, err)
	assert.Equal(t, `{"name":"Ada"}`, value)

	tests := []struct {
		name string
		src  any
		want []string
	}{
		{name: "bytes", src: []byte(`["a","b"]`), want: []string{"a", "b"}},
		{name: "string", src: `["c"]`, want: []string{"c"}},
		{name: "null", src: nil, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var j JSONB[[]string]
			require.NoError(t, j.Scan(tt.src))
			assert.Equal(t, tt.want, j.Data)
		})
	}

	var j JSONB[[]string]
	assert.Error(t, j.Scan(42))
}

func TestConfig_DSN(t *testing.T) {
	cfg := Config{Host: "db", Port: "5432", UserName: "clover", Password: "secret", Name: "clover", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=clover password=secret dbname=clover sslmode=disable", cfg.DSN())
}

func TestMigrationFilesEmbedded(t *testing.T) {
	entries, err := migrationFiles.ReadDir("migrations")
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestUpsert(t *testing.T) {
	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto("batches").Cols("id", "status").Values("b1", "PENDING")
	Upsert(ib, "id", "status")

	query, args := ib.Build()
	assert.Contains(t, query, "VALUES ($1, $2)")
	assert.Contains(t, query, "ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status")
	assert.Equal(t, []any{"b1", "PENDING"}, args)
}
