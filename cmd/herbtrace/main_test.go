package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayulink/herbtrace/internal/ledger"
	"github.com/ayulink/herbtrace/internal/ledger/ledgertest"
	"github.com/ayulink/herbtrace/internal/store/boltstore"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func seedBolt(t *testing.T) (string, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "herbtrace.bolt")
	s, err := boltstore.Open(path)
	require.NoError(t, err)
	defer s.Close()
	b, err := ledger.New(s).CreateBatch(context.Background(), ledgertest.SampleInput(), 8.9)
	require.NoError(t, err)
	return path, b.BatchID
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, version+"\n", out)
}

func TestVerifyCommand(t *testing.T) {
	path, id := seedBolt(t)

	out, err := run(t, "verify", id, "--store-driver", "bolt", "--store-path", path, "--log-level", "error")
	require.NoError(t, err)

	var report struct {
		BatchID   string           `json:"batchId"`
		Events    int              `json:"events"`
		Integrity ledger.Integrity `json:"integrity"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, id, report.BatchID)
	assert.Equal(t, 1, report.Events)
	assert.True(t, report.Integrity.Valid)
}

func TestVerifyUnknownBatch(t *testing.T) {
	path, _ := seedBolt(t)
	_, err := run(t, "verify", "BATCH-NOPE", "--store-driver", "bolt", "--store-path", path, "--log-level", "error")
	var nf *ledger.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestStatsCommand(t *testing.T) {
	path, _ := seedBolt(t)
	out, err := run(t, "stats", "--store-driver", "bolt", "--store-path", path, "--log-level", "error")
	require.NoError(t, err)

	var stats ledger.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, ledger.Stats{TotalBatches: 1, ActiveFarmers: 1, HerbVarieties: 1, VerificationRate: "0.0%"}, stats)
}

func TestMigrateSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "herbtrace.db")
	_, err := run(t, "migrate", "--store-driver", "sqlite", "--store-path", path, "--log-level", "error")
	require.NoError(t, err)

	_, err = run(t, "migrate", "--store-driver", "memory", "--log-level", "error")
	require.NoError(t, err)
}

func TestUnknownDriverRejected(t *testing.T) {
	_, err := run(t, "stats", "--store-driver", "redis")
	assert.ErrorContains(t, err, "unknown store.driver")
}

func TestStoreDSNOpensBoltFile(t *testing.T) {
	path, id := seedBolt(t)
	out, err := run(t, "verify", id, "--store-driver", "bolt", "--store-dsn", path, "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, id)
}
