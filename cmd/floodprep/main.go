package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/airbusgeo/godal"
	"github.com/airbusgeo/osio"
	osioGcs "github.com/airbusgeo/osio/gcs"
	"github.com/floodsnet/floodprep/acquisition"
	"github.com/floodsnet/floodprep/pipeline"
	"github.com/floodsnet/floodprep/registry"
	"github.com/floodsnet/floodprep/service/log"
	"github.com/floodsnet/floodprep/syncwait"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type config struct {
	Dataset  string          `yaml:"dataset"`
	Registry registry.Config `yaml:",inline"`
	Pipeline pipeline.Config `yaml:",inline"`

	EEProject    string `yaml:"ee_project"`
	EEEndpoint   string `yaml:"ee_endpoint"`
	ExportBucket string `yaml:"export_bucket"`

	Landing     string `yaml:"landing"`
	SyncCommand string `yaml:"sync_command"`

	Journal    string `yaml:"journal"`
	PsProject  string `yaml:"ps_project"`
	PsTopic    string `yaml:"ps_topic"`
	StatusAddr string `yaml:"status_addr"`
	Publish    string `yaml:"publish"`

	Verbose bool `yaml:"verbose"`
}

var (
	cfg        config
	configFile string
)

var rootCmd = &cobra.Command{
	Use:           "floodprep",
	Short:         "Prepare flood training data",
	Long:          "floodprep aligns the ground truth of the flood datasets with optical, radar and water history layers, exporting the missing layers from the remote imagery service.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(cmd); err != nil {
			return err
		}
		if !cfg.Verbose {
			os.Setenv("LOGLEVEL", "info")
			log.Structured()
		}
		if cfg.usesGCS() {
			if err := registerGCSHandler(cmd.Context()); err != nil {
				return err
			}
		}
		godal.RegisterAll()
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "yaml configuration file (flags override its values)")
	flags.StringVarP(&cfg.Dataset, "dataset", "d", "all", "dataset to prepare: all, world_floods, sen1_floods11, usgs or unosat")
	flags.StringVarP(&cfg.Registry.OutputDir, "out", "o", "", "output directory")
	flags.StringVarP(&cfg.Registry.InputRoot, "path", "p", "", "root of the downloaded datasets")
	flags.StringVarP(&cfg.Registry.GeneratedRoot, "generated", "g", "", "root of the generated assets (default: --path)")
	flags.StringVar(&cfg.Registry.TileIndex, "tile-index", "", "tile grid (GeoJSON, local path or http(s) url)")
	flags.BoolVarP(&cfg.Verbose, "verbose", "v", false, "debug logs, human readable")

	runFlags := runCmd.Flags()
	runFlags.BoolVar(&cfg.Pipeline.Acquire, "acquire", true, "export the missing layers with the remote imagery service")
	runFlags.StringVar(&cfg.EEProject, "ee-project", "", "cloud project of the remote imagery service")
	runFlags.StringVar(&cfg.EEEndpoint, "ee-endpoint", "", "endpoint of the remote imagery service")
	runFlags.StringVar(&cfg.ExportBucket, "export-bucket", "", "gcs bucket of the exports (gs://bucket/prefix). Exports are written in drive folders named after the raw directories otherwise")
	runFlags.StringVar(&cfg.Landing, "landing", "", "gs://bucket/prefix where the exports land (default: --export-bucket, or the local raw directories kept in sync with drive by --sync-command)")
	runFlags.StringVar(&cfg.SyncCommand, "sync-command", "", "shell command run before each probe of the local landing")
	runFlags.DurationVar(&cfg.Pipeline.PollInterval, "poll-interval", syncwait.DefaultPollInterval, "interval between two probes of the landing area")
	runFlags.DurationVar(&cfg.Pipeline.MaxWait, "max-wait", syncwait.DefaultMaxWait, "maximum wait for an export to land and be readable")
	runFlags.DurationVar(&cfg.Pipeline.TaskPollInterval, "task-poll-interval", acquisition.DefaultPollInterval, "interval between two polls of the remote jobs")
	runFlags.IntVar(&cfg.Pipeline.HistoryMaxYear, "history-max-year", 0, "latest flood year of the water history (0: no cap)")
	runFlags.StringVar(&cfg.Journal, "journal", "", "journal of the run: sqlite file or postgres connection string")
	runFlags.StringVar(&cfg.PsProject, "ps-project", "", "pubsub project of the notifications")
	runFlags.StringVar(&cfg.PsTopic, "ps-topic", "", "pubsub topic of the notifications")
	runFlags.StringVar(&cfg.StatusAddr, "status-addr", "", "address of the status and metrics server (e.g. :8080)")
	runFlags.BoolVar(&cfg.Pipeline.Bundle, "bundle", false, "zip the outputs of each event")
	runFlags.StringVar(&cfg.Publish, "publish", "", "storage uri where the outputs are published (local directory or gs://bucket/prefix)")
	runFlags.BoolVar(&cfg.Pipeline.RenameKeys, "rename", false, "rename the outputs of hashed keys with the names of their layers")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(indexCmd)
}

// loadConfig reads the configuration file. Flags set on the command line override its values.
func loadConfig(cmd *cobra.Command) error {
	if configFile == "" {
		return nil
	}
	changed := map[string]string{}
	cmd.Flags().Visit(func(f *pflag.Flag) {
		changed[f.Name] = f.Value.String()
	})
	b, err := os.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("loadConfig: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return fmt.Errorf("loadConfig[%s]: %w", configFile, err)
	}
	for name, value := range changed {
		if err := cmd.Flags().Set(name, value); err != nil {
			return fmt.Errorf("loadConfig.Set[%s]: %w", name, err)
		}
	}
	return nil
}

// registerGCSHandler lets the raster library read gs:// uris
func registerGCSHandler(ctx context.Context) error {
	gcsr, err := osioGcs.Handle(ctx)
	if err != nil {
		return fmt.Errorf("osioGcs.Handle: %w", err)
	}
	adapter, err := osio.NewAdapter(gcsr, osio.BlockSize("512k"), osio.NumCachedBlocks(500))
	if err != nil {
		return fmt.Errorf("osio.NewAdapter: %w", err)
	}
	if err := godal.RegisterVSIHandler("gs://", adapter); err != nil {
		return fmt.Errorf("godal.RegisterVSIHandler: %w", err)
	}
	return nil
}

func (c config) usesGCS() bool {
	for _, uri := range []string{c.Landing, c.ExportBucket, c.Publish} {
		if strings.HasPrefix(uri, "gs://") {
			return true
		}
	}
	return false
}

func (c config) registryConfig() (registry.Config, error) {
	rc := c.Registry
	if rc.InputRoot == "" || rc.OutputDir == "" {
		return rc, fmt.Errorf("--path and --out are required")
	}
	if rc.GeneratedRoot == "" {
		rc.GeneratedRoot = rc.InputRoot
	}
	if err := os.MkdirAll(rc.OutputDir, 0755); err != nil {
		return rc, fmt.Errorf("registryConfig: %w", err)
	}
	return rc, nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	start := time.Now()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Fatal("error", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
	}
}
