package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"

	"github.com/ekisa-team/lerobot-preview/internal/cache"
	"github.com/ekisa-team/lerobot-preview/internal/config"
	"github.com/ekisa-team/lerobot-preview/internal/dataset"
	"github.com/ekisa-team/lerobot-preview/internal/env"
	"github.com/ekisa-team/lerobot-preview/internal/gcs"
	"github.com/ekisa-team/lerobot-preview/internal/loader"
	"github.com/ekisa-team/lerobot-preview/internal/logger"
	"github.com/ekisa-team/lerobot-preview/internal/viewer"
	"github.com/ekisa-team/lerobot-preview/internal/watch"
)

type options struct {
	bucket      string
	prefix      string
	episode     string
	project     string
	noSpawn     bool
	follow      bool
	recordingID string
}

func main() {
	var (
		flagProject     = flag.String("project", "", "GCP project billed for requests (requester-pays buckets)")
		flagConfigPath  = flag.String("config", path.Join(config.DefaultConfigPath(), "config.yaml"), "Path to config file")
		flagSchemaPath  = flag.String("schema", "", "Path to config schema file (default: embedded schema)")
		flagNoSpawn     = flag.Bool("no-spawn", false, "Download into the cache but do not launch the viewer")
		flagFollow      = flag.Bool("follow", false, "Keep running and send newly cached episode files to the viewer")
		flagRecordingID = flag.String("recording-id", "", "Rerun recording ID (default: a fresh UUID)")
	)
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 3 {
		usage()
		os.Exit(2)
	}

	explicitConfig := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			explicitConfig = true
		}
	})

	cfg, err := config.Load(*flagConfigPath, *flagSchemaPath, explicitConfig)
	if err != nil {
		slog.Error("Failed to load config", "config", *flagConfigPath, "error", err)
		os.Exit(1)
	}

	logFile := cfg.Logging.File
	if logFile == "" {
		logFile = filepath.Join(cfg.Cache.Root, "logs", "lerobot-preview.log")
	}

	slog.SetDefault(
		logger.New(env.FromEnv(),
			logger.WithLogToFile(cfg.LogToFile()),
			logger.WithLogFile(logFile),
		),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := options{
		bucket:      flag.Arg(0),
		prefix:      flag.Arg(1),
		episode:     flag.Arg(2),
		project:     *flagProject,
		noSpawn:     *flagNoSpawn,
		follow:      *flagFollow,
		recordingID: *flagRecordingID,
	}

	if err := run(ctx, cfg, opts); err != nil {
		slog.Error("Preview failed", "episode", opts.episode, "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, opts options) error {
	store, err := gcs.Open(ctx, opts.bucket, gcs.WithProject(opts.project))
	if err != nil {
		return err
	}
	defer store.Close()

	ds := cache.New(cfg.Cache.Root).Dataset(opts.bucket, opts.prefix)
	slog.Info("Using dataset cache", "bucket", opts.bucket, "prefix", opts.prefix, "dir", ds.Dir())

	ldr := loader.New(store, ds, opts.prefix, loader.Options{
		MaxRetries: cfg.Download.MaxRetries,
		RetryDelay: cfg.Download.RetryDelay.Std(),
		Timeout:    cfg.Download.Timeout.Std(),
		Workers:    cfg.Download.Workers,
	})

	if _, err := ldr.SyncMetadata(ctx); err != nil {
		return err
	}

	if info, err := dataset.LoadInfo(ds.MetaPath(dataset.InfoFile)); err == nil {
		slog.Info("Dataset metadata",
			"codebase_version", info.CodebaseVersion,
			"robot_type", info.RobotType,
			"fps", info.FPS,
			"total_episodes", info.TotalEpisodes,
		)
	}

	if err := ldr.FetchEpisode(ctx, opts.episode); err != nil {
		return err
	}
	slog.Info("Episode cached", "episode", opts.episode, "dir", ds.Dir())

	if opts.noSpawn {
		return nil
	}

	recordingID := opts.recordingID
	if recordingID == "" {
		recordingID = uuid.NewString()
	}

	v, err := viewer.New(cfg.Viewer.Binary)
	if err != nil {
		return err
	}

	if !opts.follow {
		// Detach: the viewer outlives this invocation.
		_, err := v.Spawn(context.WithoutCancel(ctx), ds.Dir(), recordingID)
		return err
	}

	wait, err := v.Spawn(ctx, ds.Dir(), recordingID)
	if err != nil {
		return err
	}

	watcher, err := watch.New(ds.Dir(), func(paths []string) {
		if err := v.Send(ctx, recordingID, paths...); err != nil {
			slog.Error("Failed to forward files to viewer", "error", err)
		}
	})
	if err != nil {
		return err
	}
	defer watcher.Close()

	slog.Info("Following cache directory", "dir", ds.Dir())

	done := make(chan error, 1)
	go func() { done <- wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return nil
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: lerobot-preview [flags] <BUCKET> <PATH_TO_DATASET> <EXACT_EPISODE_NAME>

Downloads one episode of a LeRobot dataset from a GCS bucket into the local
cache and opens it in the Rerun Viewer. Authentication uses your ambient
Google credentials.

Flags:
`)
	flag.PrintDefaults()
}
