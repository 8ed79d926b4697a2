// Package config loads fieldledger settings from file, environment and
// flags through viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jmerrifield20/fieldledger/internal/ledger"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the validated configuration.
type Config struct {
	Genesis    string
	IDWidth    int
	Scheme     ledger.AnchorScheme
	Categories ledger.CategorySet

	StoreDriver string
	StoreDSN    string

	LogLevel  zapcore.Level
	LogFormat string

	MetricsTextfile string
}

// SetDefaults registers every key with its default value.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("ledger.genesis_anchor", ledger.DefaultGenesis)
	v.SetDefault("ledger.id_width", ledger.DefaultIDWidth)
	v.SetDefault("ledger.anchor.algorithm", string(ledger.SHA256))
	v.SetDefault("ledger.anchor.width", 0)
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.dsn", "fieldledger.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("metrics.textfile", "")
}

// NewViper returns a viper instance with defaults, the FIELDLEDGER_ env
// prefix and the standard config search path. cfgFile, when set, replaces
// the search path.
func NewViper(cfgFile string) *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("fieldledger")
		v.SetConfigType("yaml")
		v.AddConfigPath("configs")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".fieldledger"))
		}
	}

	v.SetEnvPrefix("fieldledger")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// ReadFile reads the config file into v. A missing file found through the
// search path is not an error; it reports whether a file was read.
func ReadFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("read config: %w", err)
	}
	return true, nil
}

// Load validates the settings held by v.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Genesis: v.GetString("ledger.genesis_anchor"),
		IDWidth: v.GetInt("ledger.id_width"),
		Scheme: ledger.AnchorScheme{
			Algorithm: ledger.Algorithm(v.GetString("ledger.anchor.algorithm")),
			Width:     v.GetInt("ledger.anchor.width"),
		},
		StoreDriver:     strings.ToLower(v.GetString("store.driver")),
		StoreDSN:        v.GetString("store.dsn"),
		LogFormat:       strings.ToLower(v.GetString("log.format")),
		MetricsTextfile: v.GetString("metrics.textfile"),
	}

	if cfg.Genesis == "" {
		return Config{}, fmt.Errorf("ledger.genesis_anchor must not be empty")
	}
	if cfg.IDWidth < 1 {
		return Config{}, fmt.Errorf("ledger.id_width must be at least 1, got %d", cfg.IDWidth)
	}
	if err := cfg.Scheme.Validate(); err != nil {
		return Config{}, fmt.Errorf("ledger.anchor: %w", err)
	}

	cats, err := categories(v)
	if err != nil {
		return Config{}, err
	}
	cfg.Categories = cats

	switch cfg.StoreDriver {
	case DriverSQLite, DriverPostgres:
	default:
		return Config{}, fmt.Errorf("unknown store.driver %q", cfg.StoreDriver)
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(v.GetString("log.level"))); err != nil {
		return Config{}, fmt.Errorf("log.level: %w", err)
	}
	switch cfg.LogFormat {
	case "json", "console":
	default:
		return Config{}, fmt.Errorf("unknown log.format %q", cfg.LogFormat)
	}
	return cfg, nil
}

// categories reads ledger.categories, a map of code to label. Codes are
// upper-cased and sorted since map order carries no meaning. Without the
// key the default set is used.
func categories(v *viper.Viper) (ledger.CategorySet, error) {
	if !v.IsSet("ledger.categories") {
		return ledger.DefaultCategories(), nil
	}
	raw := v.GetStringMapString("ledger.categories")
	if len(raw) == 0 {
		return ledger.CategorySet{}, fmt.Errorf("ledger.categories must not be empty")
	}

	codes := make([]string, 0, len(raw))
	for code := range raw {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	defs := make([]ledger.CategoryDef, 0, len(codes))
	for _, code := range codes {
		defs = append(defs, ledger.CategoryDef{
			Code:  ledger.Category(strings.ToUpper(code)),
			Label: raw[code],
		})
	}
	set, err := ledger.NewCategorySet(defs...)
	if err != nil {
		return ledger.CategorySet{}, fmt.Errorf("ledger.categories: %w", err)
	}
	return set, nil
}

// LedgerOptions converts the ledger settings into ledger options.
func (c Config) LedgerOptions() []ledger.Option {
	return []ledger.Option{
		ledger.WithGenesis(c.Genesis),
		ledger.WithIDWidth(c.IDWidth),
		ledger.WithAnchorScheme(c.Scheme),
		ledger.WithCategories(c.Categories),
	}
}

// NewLogger builds the process logger: JSON production output or a
// human-readable console encoder, both on stderr.
func (c Config) NewLogger() (*zap.Logger, error) {
	var zc zap.Config
	if c.LogFormat == "console" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(c.LogLevel)
	return zc.Build()
}
