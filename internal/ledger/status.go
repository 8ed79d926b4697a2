package ledger

// Status projection labels and the payload fields they are derived from.
const (
	StatusUnknown   = "UNKNOWN"
	StatusAligned   = "ALIGNED"
	ResonancePrefix = "RESONANCE_"

	FieldStatus    = "status"
	FieldResonance = "resonance"
)

// EntityStatus projects the current status of entity from its events,
// newest first: the first "status" value wins, otherwise the first
// "resonance" value as RESONANCE_<value>. An entity with events but neither
// field is ALIGNED; one with no events is UNKNOWN.
func (l *Ledger) EntityStatus(entity string) string {
	events := l.snapshot()
	seen := false
	for i := len(events) - 1; i >= 0; i-- {
		e := events[i]
		if e.Entity != entity {
			continue
		}
		seen = true
		if v, ok := e.Payload[FieldStatus]; ok {
			return v.String()
		}
		if v, ok := e.Payload[FieldResonance]; ok {
			return ResonancePrefix + v.String()
		}
	}
	if !seen {
		return StatusUnknown
	}
	return StatusAligned
}
