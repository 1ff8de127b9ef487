package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEveryMigrationHasUpAndDown(t *testing.T) {
	entries, err := fs.ReadDir(FS, ".")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	assert.Equal(t, ups, downs)
}

func TestSchemaCoversStoredTables(t *testing.T) {
	var all strings.Builder
	err := fs.WalkDir(FS, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".up.sql") {
			return err
		}
		raw, err := fs.ReadFile(FS, path)
		if err != nil {
			return err
		}
		all.Write(raw)
		return nil
	})
	require.NoError(t, err)

	for _, table := range []string{"appointments", "customers", "phone_points", "services", "outbox", "processed_events", "appointment_audit_events", "point_awards"} {
		assert.Contains(t, all.String(), "CREATE TABLE IF NOT EXISTS "+table+" (", table)
	}
}

func TestDeliveryClaimColumns(t *testing.T) {
	raw, err := fs.ReadFile(FS, "000006_delivery_claims.up.sql")
	require.NoError(t, err)
	sql := string(raw)
	assert.Contains(t, sql, "locked_until")
	assert.Contains(t, sql, "completed_at")
}
