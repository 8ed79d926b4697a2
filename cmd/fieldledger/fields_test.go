package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmerrifield20/fieldledger/internal/ledger"
)

func TestParseFields(t *testing.T) {
	got, err := parseFields([]string{
		"status=ALIGNED",
		"note=a=b",
		"empty=",
		"strength:=0.75",
		"count:=3",
		"public:=true",
		`quoted:="x:=y"`,
	})
	require.NoError(t, err)

	assert.Equal(t, ledger.Payload{
		"status":   ledger.String("ALIGNED"),
		"note":     ledger.String("a=b"),
		"empty":    ledger.String(""),
		"strength": ledger.Number(0.75),
		"count":    ledger.Int(3),
		"public":   ledger.Bool(true),
		"quoted":   ledger.String("x:=y"),
	}, got)
}

func TestParseFields_errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no separator", []string{"status"}},
		{"empty key", []string{"=x"}},
		{"empty json key", []string{":=1"}},
		{"duplicate key", []string{"a=1", "a=2"}},
		{"invalid json", []string{"n:=nope"}},
		{"json null", []string{"n:=null"}},
		{"json object", []string{`n:={"a":1}`}},
		{"json array", []string{"n:=[1]"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseFields(tt.args)
			assert.Error(t, err)
		})
	}
}

func TestParseFields_none(t *testing.T) {
	got, err := parseFields(nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSeedDemo(t *testing.T) {
	l := ledger.New()
	require.NoError(t, seedDemo(l))

	events := l.Events()
	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	assert.Equal(t, []string{"SR-001", "BE-001", "SG-001", "SA-001", "CE-001"}, ids)
	assert.True(t, l.VerifyChain().Valid)
	assert.Equal(t, []string{"Foundation", "Field", seer}, l.Entities())
}

func TestSeedDemo_missingCategory(t *testing.T) {
	cats, err := ledger.NewCategorySet(ledger.CategoryDef{Code: "SR"})
	require.NoError(t, err)
	l := ledger.New(ledger.WithCategories(cats))

	err = seedDemo(l)
	assert.ErrorIs(t, err, ledger.ErrInvalidCategory)
	assert.Equal(t, 1, l.Len())
}
