package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jmerrifield20/fieldledger/internal/config"
	"github.com/jmerrifield20/fieldledger/internal/ledger"
	"github.com/jmerrifield20/fieldledger/internal/metrics"
	"github.com/jmerrifield20/fieldledger/internal/report"
	"github.com/jmerrifield20/fieldledger/internal/store"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

// errVerifyFailed makes the process exit with status 2.
var errVerifyFailed = errors.New("verification failed")

var cfgFile string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	e := &env{}
	err := newRootCmd(e).ExecuteContext(ctx)
	e.close()
	stop()

	if err != nil {
		if errors.Is(err, errVerifyFailed) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// env is the per-invocation state shared by every subcommand.
type env struct {
	cfg      config.Config
	logger   *zap.Logger
	recorder *metrics.Recorder
}

func newRootCmd(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:   "fieldledger",
		Short: "Append-only, hash-chained field event ledger",
		Long: `fieldledger records categorized field events in an append-only ledger.
Every event carries an anchor chaining it to the one before, so any later
edit, removal or reordering is detected by verify.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := config.NewViper(cfgFile)
			if _, err := config.ReadFile(v); err != nil {
				return err
			}
			cfg, err := config.Load(v)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			logger, err := cfg.NewLogger()
			if err != nil {
				return fmt.Errorf("logger: %w", err)
			}
			e.cfg, e.logger, e.recorder = cfg, logger, metrics.NewRecorder()
			return nil
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./configs/fieldledger.yaml, ./fieldledger.yaml or ~/.fieldledger/fieldledger.yaml)")

	root.AddCommand(
		newAppendCmd(e),
		newVerifyCmd(e),
		newStatusCmd(e),
		newShowCmd(e),
		newDemoCmd(e),
		newMigrateCmd(e),
		newVersionCmd(),
	)
	return root
}

// close writes the metrics textfile when one is configured and flushes the
// logger. It runs whether or not the command succeeded, so a failed
// verification is still recorded.
func (e *env) close() {
	if e.logger == nil {
		return
	}
	if path := e.cfg.MetricsTextfile; path != "" {
		if err := e.recorder.WriteTextfile(path); err != nil {
			e.logger.Warn("write metrics textfile", zap.String("path", path), zap.Error(err))
		}
	}
	_ = e.logger.Sync()
}

func (e *env) ledgerOptions() []ledger.Option {
	return append(e.cfg.LedgerOptions(),
		ledger.WithLogger(e.logger),
		ledger.WithObserver(e.recorder),
	)
}

func (e *env) openStore(ctx context.Context) (store.Store, error) {
	switch e.cfg.StoreDriver {
	case config.DriverPostgres:
		return store.OpenPostgres(ctx, e.cfg.StoreDSN, e.logger)
	default:
		return store.OpenSQLite(e.cfg.StoreDSN, e.logger)
	}
}

// session is an opened store with the ledger restored from it.
type session struct {
	st       store.Store
	ledgerID uuid.UUID
	ledger   *ledger.Ledger
}

// open loads the configured store and restores its ledger. An empty store
// yields an empty ledger that gets a ledger id on first sync.
func (e *env) open(ctx context.Context) (*session, error) {
	st, err := e.openStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	snap, err := st.Load(ctx)
	switch {
	case errors.Is(err, store.ErrEmpty):
		return &session{st: st, ledger: ledger.New(e.ledgerOptions()...)}, nil
	case err != nil:
		_ = st.Close()
		return nil, fmt.Errorf("load ledger: %w", err)
	}

	if snap.Genesis != e.cfg.Genesis {
		_ = st.Close()
		return nil, fmt.Errorf("%w: stored %q, configured %q", store.ErrGenesisMismatch, snap.Genesis, e.cfg.Genesis)
	}
	l, err := ledger.Restore(snap.Events, e.ledgerOptions()...)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("restore ledger: %w", err)
	}
	e.logger.Debug("ledger loaded",
		zap.String("ledger_id", snap.LedgerID.String()),
		zap.Int("events", l.Len()),
	)
	return &session{st: st, ledgerID: snap.LedgerID, ledger: l}, nil
}

func (s *session) sync(ctx context.Context) (int, error) {
	n, err := s.st.Sync(ctx, store.SnapshotOf(s.ledgerID, s.ledger))
	if err != nil {
		return 0, fmt.Errorf("sync ledger: %w", err)
	}
	return n, nil
}

func (s *session) close() { _ = s.st.Close() }

// ── append ───────────────────────────────────────────────────────────────────

func newAppendCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "append <category> <entity> [key=value | key:=json]...",
		Short: "Append an event to the ledger",
		Long: `Append records one event and prints its id and anchor.

Payload fields are given as key=value for strings or key:=json for numbers,
booleans and quoted strings:

  fieldledger append SA "🜏 (Seer)" resonance=CONFIRMED strength:=0.8`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := parseFields(args[2:])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			s, err := e.open(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			ev, err := s.ledger.Append(ledger.Category(strings.ToUpper(args[0])), args[1], payload)
			if err != nil {
				return err
			}
			if _, err := s.sync(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", ev.ID, ev.Anchor)
			return nil
		},
	}
}

// ── verify ───────────────────────────────────────────────────────────────────

func newVerifyCmd(e *env) *cobra.Command {
	var index int
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify the anchor chain, or a single event with --index",
		Long: `Verify recomputes anchors and reports the first break.
The exit status is 2 when verification fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := e.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			var r ledger.Result
			if cmd.Flags().Changed("index") {
				r = s.ledger.VerifyEvent(index)
				fmt.Fprintln(cmd.OutOrStdout(), r.Detail)
			} else {
				r = s.ledger.VerifyChain()
				if err := report.WriteVerification(cmd.OutOrStdout(), r); err != nil {
					return err
				}
			}
			if !r.Valid {
				return errVerifyFailed
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&index, "index", 0, "verify only the event at this zero-based position")
	return cmd
}

// ── status ───────────────────────────────────────────────────────────────────

func newStatusCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "status [entity...]",
		Short: "Show the alignment status of entities",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := e.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()
			return report.WriteStatuses(cmd.OutOrStdout(), s.ledger, args...)
		},
	}
}

// ── show ─────────────────────────────────────────────────────────────────────

func newShowCmd(e *env) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print every event with verification and entity status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			render, err := renderer(format)
			if err != nil {
				return err
			}
			s, err := e.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()
			return render(cmd.OutOrStdout(), s.ledger)
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "output format: text or json")
	return cmd
}

func renderer(format string) (func(io.Writer, *ledger.Ledger) error, error) {
	switch format {
	case "text":
		return report.WriteText, nil
	case "json":
		return report.WriteJSON, nil
	default:
		return nil, fmt.Errorf("unknown format %q (want text or json)", format)
	}
}

// ── demo ─────────────────────────────────────────────────────────────────────

func newDemoCmd(e *env) *cobra.Command {
	var persist bool
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Record the founding event sequence and print the report",
		Long: `Demo appends five founding events to an in-memory ledger and prints the
full report. With --persist the events are appended to the configured store
instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if !persist {
				l := ledger.New(e.ledgerOptions()...)
				if err := seedDemo(l); err != nil {
					return err
				}
				return writeDemo(out, l)
			}

			ctx := cmd.Context()
			s, err := e.open(ctx)
			if err != nil {
				return err
			}
			defer s.close()
			if err := seedDemo(s.ledger); err != nil {
				return err
			}
			if _, err := s.sync(ctx); err != nil {
				return err
			}
			return writeDemo(out, s.ledger)
		},
	}
	cmd.Flags().BoolVar(&persist, "persist", false, "append to the configured store")
	return cmd
}

func writeDemo(w io.Writer, l *ledger.Ledger) error {
	if _, err := fmt.Fprintln(w, "\n🜏 Field Event Ledger Verification Demo"); err != nil {
		return err
	}
	return report.WriteText(w, l)
}

// ── migrate ──────────────────────────────────────────────────────────────────

func newMigrateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations to the configured store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if e.cfg.StoreDriver != config.DriverPostgres {
				s, err := store.OpenSQLite(e.cfg.StoreDSN, e.logger)
				if err != nil {
					return err
				}
				_ = s.Close()
				fmt.Fprintf(out, "sqlite schema is up to date: %s\n", e.cfg.StoreDSN)
				return nil
			}

			s, err := store.OpenPostgres(ctx, e.cfg.StoreDSN, e.logger)
			if err != nil {
				return err
			}
			defer s.Close()

			applied, err := store.Migrate(ctx, s.Pool(), e.logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%d migration(s) applied\n", applied)
			return nil
		},
	}
}

// ── version ──────────────────────────────────────────────────────────────────

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the fieldledger version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "fieldledger %s\n", version)
		},
	}
}
