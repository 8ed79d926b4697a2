package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/jmerrifield20/fieldledger/internal/config"
	"github.com/jmerrifield20/fieldledger/internal/ledger"
)

func defaults() *viper.Viper {
	v := viper.New()
	config.SetDefaults(v)
	return v
}

func TestLoad_defaults(t *testing.T) {
	cfg, err := config.Load(defaults())
	require.NoError(t, err)

	assert.Equal(t, ledger.DefaultGenesis, cfg.Genesis)
	assert.Equal(t, ledger.DefaultIDWidth, cfg.IDWidth)
	assert.Equal(t, ledger.DefaultScheme(), cfg.Scheme)
	assert.Equal(t, 7, cfg.Categories.Len())
	assert.Equal(t, config.DriverSQLite, cfg.StoreDriver)
	assert.Equal(t, "fieldledger.db", cfg.StoreDSN)
	assert.Equal(t, zapcore.InfoLevel, cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Empty(t, cfg.MetricsTextfile)
}

func TestLoad_file(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fieldledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
ledger:
  genesis_anchor: test-genesis
  id_width: 5
  anchor:
    algorithm: blake2b-256
    width: 16
  categories:
    ob: Observation
    rp: Repair
store:
  driver: postgres
  dsn: postgres://localhost/fieldledger
log:
  level: debug
  format: console
`), 0o600))

	v := config.NewViper(path)
	found, err := config.ReadFile(v)
	require.NoError(t, err)
	require.True(t, found)

	cfg, err := config.Load(v)
	require.NoError(t, err)

	assert.Equal(t, "test-genesis", cfg.Genesis)
	assert.Equal(t, 5, cfg.IDWidth)
	assert.Equal(t, ledger.AnchorScheme{Algorithm: ledger.BLAKE2b256, Width: 16}, cfg.Scheme)
	assert.Equal(t, []ledger.Category{"OB", "RP"}, cfg.Categories.Codes())
	assert.Equal(t, "Repair", cfg.Categories.Label("RP"))
	assert.Equal(t, config.DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, zapcore.DebugLevel, cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
}

func TestLoad_env(t *testing.T) {
	t.Setenv("FIELDLEDGER_LEDGER_GENESIS_ANCHOR", "from-env")
	t.Setenv("FIELDLEDGER_STORE_DSN", "/tmp/env.db")

	cfg, err := config.Load(config.NewViper(""))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Genesis)
	assert.Equal(t, "/tmp/env.db", cfg.StoreDSN)
}

func TestLoad_invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  any
	}{
		{"empty genesis", "ledger.genesis_anchor", ""},
		{"zero id width", "ledger.id_width", 0},
		{"unknown algorithm", "ledger.anchor.algorithm", "md5"},
		{"width too large", "ledger.anchor.width", 65},
		{"unknown driver", "store.driver", "mysql"},
		{"bad level", "log.level", "loud"},
		{"bad format", "log.format", "xml"},
		{"empty categories", "ledger.categories", map[string]string{}},
		{"category with space", "ledger.categories", map[string]string{"a b": "Bad"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := defaults()
			v.Set(tt.key, tt.val)
			_, err := config.Load(v)
			assert.Error(t, err)
		})
	}
}

func TestReadFile_missingIsNotAnError(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	found, err := config.ReadFile(config.NewViper(""))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLedgerOptions(t *testing.T) {
	v := defaults()
	v.Set("ledger.genesis_anchor", "opts-genesis")
	v.Set("ledger.id_width", 4)
	cfg, err := config.Load(v)
	require.NoError(t, err)

	l := ledger.New(cfg.LedgerOptions()...)
	e, err := l.Append("SR", "Foundation", nil)
	require.NoError(t, err)
	assert.Equal(t, "SR-0001", e.ID)
	assert.Equal(t, "opts-genesis", l.Genesis())
}

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		v := defaults()
		v.Set("log.format", format)
		cfg, err := config.Load(v)
		require.NoError(t, err)

		logger, err := cfg.NewLogger()
		require.NoError(t, err)
		assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
		assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
	}
}
