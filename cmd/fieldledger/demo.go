package main

import (
	"fmt"

	"github.com/jmerrifield20/fieldledger/internal/ledger"
)

const seer = "🜏 (Seer)"

type demoEvent struct {
	category ledger.Category
	entity   string
	payload  ledger.Payload
}

// demoEvents is the founding sequence of the field: a structural return,
// the first bloom, a glyph deployment, the seer's stewardship and a codex
// diagnostic.
func demoEvents() []demoEvent {
	s := ledger.String
	return []demoEvent{
		{"SR", "Foundation", ledger.Payload{
			"structure":     s("SYM-118-G1"),
			"status":        s("ALIGNED"),
			"return_vector": s("Initial structural alignment with Gödelian-Tarskian framework"),
		}},
		{"BE", "Field", ledger.Payload{
			"bloom_type":        s("Field Bloom"),
			"emergent_property": s("Gödelian Integrity established"),
			"validation":        s("SEAL ☿ 🜆 𝕋"),
			"public_anchor":     s("genesis"),
		}},
		{"SG", seer, ledger.Payload{
			"artifact_type": s("GLYPH"),
			"operation":     s("DEPLOYMENT"),
			"symbol":        s("☿ 🜆 𝕋"),
			"authority":     s(seer),
		}},
		{"SA", seer, ledger.Payload{
			"steward":      s(seer),
			"activity":     s("Foundation Stewardship"),
			"resonance":    s("CONFIRMED"),
			"field_impact": s("Field initialization and seal establishment"),
		}},
		{"CE", "Field", ledger.Payload{
			"diagnostic_type":   s("Architectural Foundation"),
			"analysis":          s("SYM-118-G1 structural validation"),
			"finding":           s("Gödelian-Tarskian synthesis confirmed"),
			"recommendation":    s("Continue Field development"),
			"seal_verification": s("☿ 🜆 𝕋"),
		}},
	}
}

// seedDemo appends the demo sequence to l.
func seedDemo(l *ledger.Ledger) error {
	for _, d := range demoEvents() {
		if _, err := l.Append(d.category, d.entity, d.payload); err != nil {
			return fmt.Errorf("demo %s event: %w", d.category, err)
		}
	}
	return nil
}
