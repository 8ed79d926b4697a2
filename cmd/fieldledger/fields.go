package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jmerrifield20/fieldledger/internal/ledger"
)

// parseFields builds a payload from command-line arguments.
//
//	key=value     string value, taken verbatim
//	key:=json     JSON literal: a number, true/false or a quoted string
func parseFields(args []string) (ledger.Payload, error) {
	payload := make(ledger.Payload, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("field %q: expected key=value or key:=json", arg)
		}

		var v ledger.Value
		if k, isJSON := strings.CutSuffix(key, ":"); isJSON {
			key = k
			if err := json.Unmarshal([]byte(raw), &v); err != nil {
				return nil, fmt.Errorf("field %q: %w", key, err)
			}
		} else {
			v = ledger.String(raw)
		}

		if key == "" {
			return nil, fmt.Errorf("field %q: empty key", arg)
		}
		if _, dup := payload[key]; dup {
			return nil, fmt.Errorf("field %q given more than once", key)
		}
		payload[key] = v
	}
	return payload, nil
}
