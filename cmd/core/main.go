// Command namazpro inspects and drives the offline event queue from a shell:
// record an event, look at what is pending, force a sync or a purge.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ahmed11551/namazpro24/internal/config"
	"github.com/ahmed11551/namazpro24/internal/logging"
	syncpkg "github.com/ahmed11551/namazpro24/internal/sync"
	"github.com/ahmed11551/namazpro24/internal/sync/connectivity"
	"github.com/ahmed11551/namazpro24/internal/sync/queue"
	"github.com/ahmed11551/namazpro24/internal/sync/status"
)

// Version is set at build time
var Version = "0.1.0"

// ValidFormats are the accepted --format values.
var ValidFormats = []string{"text", "json"}

// RootOptions holds the global flags.
type RootOptions struct {
	ConfigPath string
	DataDir    string
	RemoteURL  string
	Format     string
	Verbose    bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "namazpro: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "namazpro",
		Short: "NamazPro24 offline queue tool",
		Long:  "Inspect and drive the NamazPro24 offline event queue and its sync to the remote API.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range ValidFormats {
				if f == opts.Format {
					return nil
				}
			}
			return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default ./namazpro.yaml if present)")
	cmd.PersistentFlags().StringVar(&opts.DataDir, "data-dir", "", "override data_dir")
	cmd.PersistentFlags().StringVar(&opts.RemoteURL, "remote", "", "override remote.base_url")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log at debug level")

	cmd.AddCommand(newEnqueueCommand(opts))
	cmd.AddCommand(newPendingCommand(opts))
	cmd.AddCommand(newSyncCommand(opts))
	cmd.AddCommand(newPurgeCommand(opts))
	cmd.AddCommand(newStatusCommand(opts))
	cmd.AddCommand(newVersionCommand(opts))

	return cmd
}

// loadConfig applies flag overrides on top of the loaded configuration and
// points the logger at stderr so stdout carries only command output.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.DataDir != "" {
		cfg.DataDir = opts.DataDir
	}
	if opts.RemoteURL != "" {
		cfg.Remote.BaseURL = opts.RemoteURL
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	if opts.Verbose {
		level = logging.LevelDebug
	}
	logging.Init(os.Stderr, level)
	logging.SetLevel(level)
	return cfg, nil
}

// session is everything a command needs to talk to the queue.
type session struct {
	cfg     *config.Config
	store   *queue.Store
	monitor *connectivity.Monitor
	facade  *status.Facade
}

// openSession opens the store and wires the facade. Connectivity comes from a
// single probe of remote.health_url; without one the remote is assumed reachable.
func openSession(ctx context.Context, opts *RootOptions, handler syncpkg.SyncEventHandler) (*session, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	monitor := connectivity.NewMonitor(true)
	if cfg.Remote.HealthURL != "" {
		prober := connectivity.NewProber(monitor, cfg.Remote.HealthURL, cfg.Sync.ProbeInterval, cfg.Sync.ProbeTimeout)
		monitor.Set(prober.Probe(ctx))
	}

	store := queue.NewStore(cfg.DataDir)
	facadeOpts := []status.Option{
		status.WithSyncInterval(cfg.Sync.Interval),
		status.WithDispatchTimeout(cfg.Sync.DispatchTimeout),
		status.WithMaxRetries(cfg.Sync.MaxRetries),
		status.WithRetention(cfg.Sync.Retention),
	}
	if handler != nil {
		facadeOpts = append(facadeOpts, status.WithEventHandler(handler))
	}
	facade := status.New(store, monitor, syncpkg.NewRemoteClient(cfg.Remote.BaseURL), facadeOpts...)

	if err := facade.Init(ctx); err != nil {
		facade.Close()
		store.Close()
		return nil, err
	}
	return &session{cfg: cfg, store: store, monitor: monitor, facade: facade}, nil
}

func (s *session) Close() {
	s.facade.Close()
	if err := s.store.Close(); err != nil {
		logging.Warn("closing store", map[string]interface{}{"error": err.Error()})
	}
}

// commandContext bounds a one-shot command.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, 5*time.Minute)
}

// writeResult prints v as indented JSON, or text otherwise.
func writeResult(w io.Writer, opts *RootOptions, v interface{}, text string) error {
	if opts.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(w, text)
	return err
}
