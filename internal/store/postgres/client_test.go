package postgres

import (
	"fmt"
	"testing"
	"testing/fstest"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	require.Equal(t, "postgres://u:p@db:5432/pl?sslmode=disable",
		DSN(ClientConfig{Host: "db", Database: "pl", User: "u", Password: "p"}))
	require.Equal(t, "postgres://x", DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}))
}

func TestMigrationNames(t *testing.T) {
	fsys := fstest.MapFS{
		"m/010_late.sql":  {Data: []byte("SELECT 1;")},
		"m/002_b.sql":     {Data: []byte("SELECT 1;")},
		"m/README.md":     {Data: []byte("docs")},
		"m/001_a.sql":     {Data: []byte("SELECT 1;")},
		"m/sub/003_x.sql": {Data: []byte("SELECT 1;")},
	}
	names, err := migrationNames(fsys, "m")
	require.NoError(t, err)
	require.Equal(t, []string{"001_a.sql", "002_b.sql", "010_late.sql"}, names)

	embedded, err := migrationNames(migrationsFS, "migrations")
	require.NoError(t, err)
	require.Equal(t, []string{"001_market.sql", "002_events.sql"}, embedded)
}

func TestParseNumeric(t *testing.T) {
	v, err := parseNumeric("1000000000000000000000")
	require.NoError(t, err)
	require.Equal(t, "1000000000000000000000", v.String())

	_, err = parseNumeric("1.5")
	require.Error(t, err)
}

// fakeRow feeds fixed values to Scan in column order.
type fakeRow []any

func (r fakeRow) Scan(dest ...any) error {
	if len(dest) != len(r) {
		return fmt.Errorf("scan: %d destinations for %d columns", len(dest), len(r))
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *int64:
			*p = r[i].(int64)
		case *string:
			*p = r[i].(string)
		case *bool:
			*p = r[i].(bool)
		case *time.Time:
			*p = r[i].(time.Time)
		default:
			return fmt.Errorf("scan: unsupported destination %T", d)
		}
	}
	return nil
}

func TestScanItem(t *testing.T) {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600))
	row := fakeRow{
		int64(7), "ipfs://seven",
		"0x00000000000000000000000000000000000000c1",
		"0x00000000000000000000000000000000000000b1",
		"2500000000000000000",
		true, true, true, int64(3), int64(1),
		created, created,
	}

	it, err := scanItem(row)
	require.NoError(t, err)
	require.Equal(t, uint64(7), it.TokenID)
	require.Equal(t, common.HexToAddress("0xc1"), it.Creator)
	require.Equal(t, common.HexToAddress("0xb1"), it.Owner)
	require.Equal(t, "2500000000000000000", it.Price.String())
	require.True(t, it.Reselling)
	require.Equal(t, uint64(3), it.Likes)
	require.Equal(t, uint64(1), it.Dislikes)
	require.Equal(t, time.UTC, it.CreatedAt.Location())
}
