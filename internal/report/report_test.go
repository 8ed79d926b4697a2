package report_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmerrifield20/fieldledger/internal/ledger"
	"github.com/jmerrifield20/fieldledger/internal/report"
)

func buildLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	ts := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	l := ledger.New(ledger.WithClock(func() time.Time { return ts }))

	_, err := l.Append("SR", "Foundation", ledger.Payload{
		"status":        ledger.String("ALIGNED"),
		"return_vector": ledger.String("Initial structural alignment"),
	})
	require.NoError(t, err)
	_, err = l.Append("SA", "Seer", ledger.Payload{"resonance": ledger.String("CONFIRMED")})
	require.NoError(t, err)
	return l
}

func TestFieldLabel(t *testing.T) {
	assert.Equal(t, "Return Vector", report.FieldLabel("return_vector"))
	assert.Equal(t, "Bloom Type", report.FieldLabel("bloom_type"))
	assert.Equal(t, "Status", report.FieldLabel("STATUS"))
}

func TestWriteText(t *testing.T) {
	l := buildLedger(t)

	var buf bytes.Buffer
	require.NoError(t, report.WriteText(&buf, l))
	out := buf.String()

	for _, want := range []string{
		"FIELD EVENT LEDGER",
		"Genesis Anchor: foundation-bloom-001",
		"Total Events: 2",
		"[1] SR-001 | 2026-10-15T09:00:00Z",
		"    Category: Structural Returns",
		"    Return Vector: Initial structural alignment",
		"    Status: ALIGNED",
		"[2] SA-001",
		"    Category: Steward Activity & Resonance Confirmations",
		"    Verification: anchor valid: ",
		"Chain Status: 2 events verified",
		"✓ All anchors verified successfully",
		"  Foundation: ALIGNED",
		"  Seer: RESONANCE_CONFIRMED",
	} {
		assert.Contains(t, out, want)
	}
}

func TestWriteText_brokenChain(t *testing.T) {
	events := buildLedger(t).Events()
	events[1].Entity = "Impostor"
	l, err := ledger.Restore(events)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, report.WriteText(&buf, l))
	assert.Contains(t, buf.String(), "Verification: anchor invalid: ")
	assert.Contains(t, buf.String(), "Chain Status: chain broken at event 1")
	assert.Contains(t, buf.String(), "✗ Chain verification failed")
}

func TestWriteStatuses_selected(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report.WriteStatuses(&buf, buildLedger(t), "Seer", "Nobody"))
	assert.Contains(t, buf.String(), "  Seer: RESONANCE_CONFIRMED")
	assert.Contains(t, buf.String(), "  Nobody: UNKNOWN")
	assert.NotContains(t, buf.String(), "Foundation")
}

func TestWriteJSON(t *testing.T) {
	l := buildLedger(t)

	var buf bytes.Buffer
	require.NoError(t, report.WriteJSON(&buf, l))

	var doc struct {
		Genesis          string            `json:"genesis_anchor"`
		Head             string            `json:"head_anchor"`
		Events           []ledger.Event    `json:"events"`
		SequenceCounters map[string]int    `json:"sequence_counters"`
		Chain            report.Chain      `json:"chain"`
		Entities         map[string]string `json:"entities"`
		Categories       map[string]string `json:"categories"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))

	assert.Equal(t, ledger.DefaultGenesis, doc.Genesis)
	assert.Equal(t, l.Head(), doc.Head)
	require.Len(t, doc.Events, 2)
	assert.Equal(t, "SR-001", doc.Events[0].ID)
	assert.Equal(t, 1, doc.SequenceCounters["SA"])
	assert.True(t, doc.Chain.Valid)
	assert.Nil(t, doc.Chain.BrokenAt)
	assert.Equal(t, "RESONANCE_CONFIRMED", doc.Entities["Seer"])
	assert.Len(t, doc.Categories, 7)
}

func TestBuild_brokenAt(t *testing.T) {
	events := buildLedger(t).Events()
	events[0].Payload["status"] = ledger.String("FORGED")
	l, err := ledger.Restore(events)
	require.NoError(t, err)

	doc := report.Build(l)
	assert.False(t, doc.Chain.Valid)
	require.NotNil(t, doc.Chain.BrokenAt)
	assert.Equal(t, 0, *doc.Chain.BrokenAt)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWriteText_propagatesWriteError(t *testing.T) {
	err := report.WriteText(failingWriter{}, buildLedger(t))
	assert.EqualError(t, err, "disk full")
}
