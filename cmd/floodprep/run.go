package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/airbusgeo/geocube/interface/messaging/pubsub"
	"github.com/airbusgeo/geocube/interface/storage/gcs"
	"github.com/floodsnet/floodprep/common"
	"github.com/floodsnet/floodprep/interface/database/sqldb"
	"github.com/floodsnet/floodprep/interface/imagery"
	"github.com/floodsnet/floodprep/interface/imagery/earthengine"
	"github.com/floodsnet/floodprep/interface/imagery/memory"
	"github.com/floodsnet/floodprep/interface/landing"
	"github.com/floodsnet/floodprep/pipeline"
	"github.com/floodsnet/floodprep/registry"
	"github.com/floodsnet/floodprep/service"
	"github.com/floodsnet/floodprep/service/log"
	"github.com/gorilla/handlers"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Prepare the datasets",
	Long:  "Discover the events of the datasets, export their missing layers and align every layer on the grid of the event.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), cfg)
	},
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Print the keys whose layers are missing",
	Long:  "Discover the events of the datasets and print, per layer kind, the keys that would be submitted to the remote imagery service.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return index(cmd.Context(), cfg)
	},
}

func run(ctx context.Context, config config) error {
	rc, err := config.registryConfig()
	if err != nil {
		return err
	}
	reg := registry.New(rc)
	datasets, err := reg.Datasets(config.Dataset)
	if err != nil {
		return err
	}

	svc, err := newImageryService(ctx, config)
	if err != nil {
		return err
	}
	land, err := newLanding(ctx, config)
	if err != nil {
		return err
	}

	var options []pipeline.Option
	if config.Journal != "" {
		journal, err := sqldb.New(ctx, config.Journal)
		if err != nil {
			return fmt.Errorf("journal: %w", err)
		}
		defer journal.Close()
		options = append(options, pipeline.WithJournal(journal))
	}
	if config.PsTopic != "" {
		topic, err := pubsub.NewPublisher(ctx, config.PsProject, config.PsTopic, pubsub.WithMaxRetries(5))
		if err != nil {
			return fmt.Errorf("pubsub.NewPublisher: %w", err)
		}
		defer topic.Stop()
		options = append(options, pipeline.WithNotifier(topic))
	}
	if config.Publish != "" {
		storage, err := service.NewStorageStrategy(ctx, config.Publish)
		if err != nil {
			return fmt.Errorf("storage %s: %w", config.Publish, err)
		}
		options = append(options, pipeline.WithPublisher(storage))
	}

	p := pipeline.New(reg, svc, land, config.Pipeline, options...)
	ctx = log.With(ctx, "run", p.RunID())
	log.Logger(ctx).Sugar().Infof("preparing %v (acquire: %t)", datasets, config.Pipeline.Acquire)

	var summary pipeline.Summary
	wg, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})
	if config.StatusAddr != "" {
		headersOk := handlers.AllowedHeaders([]string{"*"})
		originsOk := handlers.AllowedOrigins([]string{"*"})
		methodsOk := handlers.AllowedMethods([]string{"GET", "OPTIONS"})
		s := http.Server{
			Addr:    config.StatusAddr,
			Handler: handlers.CORS(originsOk, headersOk, methodsOk)(p.NewHandler()),
		}
		wg.Go(func() error {
			if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("status.ListenAndServe: %w", err)
			}
			return nil
		})
		wg.Go(func() error {
			select {
			case <-done:
			case <-gctx.Done():
			}
			sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return s.Shutdown(sctx)
		})
	}
	wg.Go(func() error {
		defer close(done)
		var err error
		summary, err = p.Run(gctx, datasets)
		return err
	})
	if err := wg.Wait(); err != nil {
		return err
	}

	logSummary(log.Logger(ctx), summary)
	return nil
}

// logSummary reports the outcome of a run that went to its end. Failed events do not fail the run.
func logSummary(logger *zap.Logger, s pipeline.Summary) {
	if s.Complete() {
		logger.Info(s.String())
		return
	}
	logger.Warn(s.String(), zap.Int("failed_events", s.Events[common.EventFailed]))
}

// newImageryService returns the client of the remote service. Without project, nothing can be exported.
func newImageryService(ctx context.Context, config config) (imagery.Service, error) {
	if config.EEProject == "" {
		if config.Pipeline.Acquire {
			return nil, fmt.Errorf("--ee-project is required to acquire the missing layers (or --acquire=false)")
		}
		return memory.New(nil), nil
	}
	var dst earthengine.Destination
	if config.ExportBucket != "" {
		bucket, prefix, err := gcs.Parse(config.ExportBucket)
		if err != nil {
			return nil, fmt.Errorf("export bucket: %w", err)
		}
		dst = earthengine.Destination{Bucket: bucket, Prefix: prefix}
	}
	client, err := earthengine.New(ctx, config.EEEndpoint, config.EEProject, dst)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func newLanding(ctx context.Context, config config) (landing.Landing, error) {
	uri := config.Landing
	if uri == "" {
		uri = config.ExportBucket
	}
	if uri == "" {
		return landing.Local{SyncCommand: config.SyncCommand}, nil
	}
	if !strings.HasPrefix(uri, "gs://") {
		return nil, fmt.Errorf("landing %s: only gs:// uris are supported", uri)
	}
	b, err := landing.NewBucket(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("landing: %w", err)
	}
	return b, nil
}

func index(ctx context.Context, config config) error {
	rc, err := config.registryConfig()
	if err != nil {
		return err
	}
	reg := registry.New(rc)
	datasets, err := reg.Datasets(config.Dataset)
	if err != nil {
		return err
	}
	p := pipeline.New(reg, memory.New(nil), landing.Local{}, config.Pipeline)

	report := map[string]map[string][]string{}
	for _, d := range datasets {
		missing, err := p.Index(ctx, d)
		if err != nil {
			return err
		}
		kinds := map[string][]string{}
		for kind, keys := range missing {
			sort.Strings(keys)
			kinds[kind.String()] = keys
		}
		report[d.String()] = kinds
	}
	enc := yaml.NewEncoder(os.Stdout)
	defer enc.Close()
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("index.Encode: %w", err)
	}
	return nil
}
