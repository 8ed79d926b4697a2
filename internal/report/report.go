// Package report renders a ledger for people (text) and tools (JSON).
// It only reads ledger state.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jmerrifield20/fieldledger/internal/ledger"
)

const rule = "================================================================================"

// FieldLabel turns a payload key such as "return_vector" into "Return Vector".
func FieldLabel(key string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(key, "_", " "))
}

// errWriter keeps the first write error so rendering code can stay linear.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func (ew *errWriter) section(title string) {
	ew.printf("\n%s\n%s\n%s\n", rule, title, rule)
}

// WriteText writes the full ledger report: every event with its
// verification, the chain verification and the status of every entity.
func WriteText(w io.Writer, l *ledger.Ledger) error {
	ew := &errWriter{w: w}
	events := l.Events()
	categories := l.Categories()

	ew.section("FIELD EVENT LEDGER")
	ew.printf("Genesis Anchor: %s\n", l.Genesis())
	ew.printf("Total Events: %d\n", len(events))
	ew.printf("%s\n\n", rule)

	for i, e := range events {
		ew.printf("[%d] %s | %s\n", i+1, e.ID, e.Timestamp.Format(time.RFC3339Nano))
		ew.printf("    Entity: %s\n", e.Entity)
		ew.printf("    Category: %s\n", categories.Label(e.Category))
		for _, k := range sortedKeys(e.Payload) {
			ew.printf("    %s: %s\n", FieldLabel(k), e.Payload[k])
		}
		ew.printf("    Anchor: %s\n", e.Anchor)
		ew.printf("    Verification: %s\n\n", l.VerifyEvent(i).Detail)
	}

	writeChain(ew, l.VerifyChain())
	writeStatuses(ew, l)
	return ew.err
}

// WriteVerification writes only the chain verification section.
func WriteVerification(w io.Writer, r ledger.Result) error {
	ew := &errWriter{w: w}
	writeChain(ew, r)
	return ew.err
}

// WriteStatuses writes the status of the given entities, or of every entity
// in the ledger when none are given.
func WriteStatuses(w io.Writer, l *ledger.Ledger, entities ...string) error {
	ew := &errWriter{w: w}
	writeStatuses(ew, l, entities...)
	return ew.err
}

func writeChain(ew *errWriter, r ledger.Result) {
	ew.section("ANCHOR CHAIN VERIFICATION")
	ew.printf("\nChain Status: %s\n", r.Detail)
	if r.Valid {
		ew.printf("✓ All anchors verified successfully\n")
	} else {
		ew.printf("✗ Chain verification failed\n")
	}
}

func writeStatuses(ew *errWriter, l *ledger.Ledger, entities ...string) {
	if len(entities) == 0 {
		entities = l.Entities()
	}
	ew.section("ENTITY ALIGNMENT STATUS")
	for _, entity := range entities {
		ew.printf("  %s: %s\n", entity, l.EntityStatus(entity))
	}
}

// Document is the JSON form of a ledger report.
type Document struct {
	Genesis          string                     `json:"genesis_anchor"`
	Head             string                     `json:"head_anchor"`
	Events           []ledger.Event             `json:"events"`
	SequenceCounters map[ledger.Category]int    `json:"sequence_counters"`
	Chain            Chain                      `json:"chain"`
	Entities         map[string]string          `json:"entities"`
	Categories       map[ledger.Category]string `json:"categories"`
}

// Chain is the JSON form of a chain verification.
type Chain struct {
	Valid    bool   `json:"valid"`
	Verified int    `json:"verified"`
	BrokenAt *int   `json:"broken_at,omitempty"`
	Detail   string `json:"detail"`
}

// Build assembles the report document for l.
func Build(l *ledger.Ledger) Document {
	r := l.VerifyChain()
	chain := Chain{Valid: r.Valid, Verified: r.Verified, Detail: r.Detail}
	if !r.Valid {
		idx := r.Index
		chain.BrokenAt = &idx
	}

	entities := make(map[string]string)
	for _, e := range l.Entities() {
		entities[e] = l.EntityStatus(e)
	}

	categories := make(map[ledger.Category]string)
	set := l.Categories()
	for _, c := range set.Codes() {
		categories[c] = set.Label(c)
	}

	return Document{
		Genesis:          l.Genesis(),
		Head:             l.Head(),
		Events:           l.Events(),
		SequenceCounters: l.SequenceCounters(),
		Chain:            chain,
		Entities:         entities,
		Categories:       categories,
	}
}

// WriteJSON writes Build(l) as indented JSON.
func WriteJSON(w io.Writer, l *ledger.Ledger) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(Build(l))
}

func sortedKeys(p ledger.Payload) []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
