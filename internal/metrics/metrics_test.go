package metrics_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmerrifield20/fieldledger/internal/ledger"
	"github.com/jmerrifield20/fieldledger/internal/metrics"
)

func TestRecorder_countsAppendsAndVerifications(t *testing.T) {
	rec := metrics.NewRecorder()
	l := ledger.New(ledger.WithObserver(rec))

	for _, c := range []ledger.Category{"SR", "SR", "BE"} {
		_, err := l.Append(c, "Foundation", nil)
		require.NoError(t, err)
	}
	l.VerifyChain()

	count, err := testutil.GatherAndCount(rec.Registry(), "fieldledger_events_appended_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one series per category")

	families, err := rec.Registry().Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			for _, lp := range m.GetLabel() {
				key += "/" + lp.GetValue()
			}
			switch {
			case m.GetCounter() != nil:
				values[key] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				values[key] = m.GetGauge().GetValue()
			}
		}
	}

	assert.Equal(t, 2.0, values["fieldledger_events_appended_total/SR"])
	assert.Equal(t, 1.0, values["fieldledger_events_appended_total/BE"])
	assert.Equal(t, 1.0, values["fieldledger_chain_verifications_total/valid"])
	assert.Equal(t, 3.0, values["fieldledger_chain_verified_events"])
	assert.Equal(t, -1.0, values["fieldledger_chain_broken_index"])
}

func TestRecorder_brokenChain(t *testing.T) {
	rec := metrics.NewRecorder()
	rec.ChainVerified(ledger.Result{Valid: false, Index: 4, Verified: 4})

	families, err := rec.Registry().Gather()
	require.NoError(t, err)
	var broken float64
	for _, mf := range families {
		if mf.GetName() == "fieldledger_chain_broken_index" {
			broken = mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	assert.Equal(t, 4.0, broken)
}

func TestRecorder_WriteTextfile(t *testing.T) {
	rec := metrics.NewRecorder()
	rec.EventAppended(ledger.Event{Category: "CE"})

	path := filepath.Join(t.TempDir(), "fieldledger.prom")
	require.NoError(t, rec.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `fieldledger_events_appended_total{category="CE"} 1`)
}

func TestRecorder_independentRegistries(t *testing.T) {
	a, b := metrics.NewRecorder(), metrics.NewRecorder()
	a.EventAppended(ledger.Event{Category: "SR"})

	n, err := testutil.GatherAndCount(b.Registry(), "fieldledger_events_appended_total")
	require.NoError(t, err)
	assert.Zero(t, n)
}
