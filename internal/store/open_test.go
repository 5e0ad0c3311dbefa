package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayulink/herbtrace/internal/config"
	"github.com/ayulink/herbtrace/internal/ledger"
	"github.com/ayulink/herbtrace/internal/ledger/ledgertest"
	"github.com/ayulink/herbtrace/internal/store/boltstore"
	"github.com/ayulink/herbtrace/internal/store/sqlstore"
)

func TestOpenDrivers(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		cfg      config.StoreConfig
		wantType any
	}{
		{config.StoreConfig{Driver: config.DriverMemory}, &ledger.MemoryStore{}},
		{config.StoreConfig{Driver: config.DriverSQLite, Path: filepath.Join(dir, "l.db"), AutoMigrate: true}, &sqlstore.Store{}},
		{config.StoreConfig{Driver: config.DriverBolt, Path: filepath.Join(dir, "l.bolt")}, &boltstore.Store{}},
	}
	for _, tt := range tests {
		t.Run(tt.cfg.Driver, func(t *testing.T) {
			s, err := Open(tt.cfg, nil)
			require.NoError(t, err)
			defer s.Close()
			assert.IsType(t, tt.wantType, s)
			assert.NoError(t, Ping(context.Background(), s))

			l := ledger.New(s)
			b, err := l.CreateBatch(context.Background(), ledgertest.SampleInput(), 5)
			require.NoError(t, err)
			_, err = l.Get(context.Background(), b.BatchID)
			require.NoError(t, err)
		})
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(config.StoreConfig{Driver: "mongo"}, nil)
	assert.ErrorContains(t, err, "unknown store driver")
}

func TestMigrate(t *testing.T) {
	assert.ErrorIs(t, Migrate(ledger.NewMemoryStore()), ErrNotMigratable)

	s, err := Open(config.StoreConfig{Driver: config.DriverSQLite, Path: ":memory:"}, nil)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, Migrate(s))
}
