package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/podscribe/podscribe/internal/database"
	"github.com/podscribe/podscribe/internal/services/download"
	"github.com/podscribe/podscribe/internal/services/episodes"
	"github.com/podscribe/podscribe/internal/services/podcasts"
	"github.com/podscribe/podscribe/internal/services/users"
	"github.com/podscribe/podscribe/internal/services/youtube"
	"github.com/podscribe/podscribe/pkg/config"
	dl "github.com/podscribe/podscribe/pkg/download"
	"github.com/podscribe/podscribe/pkg/feedparse"
)

// app bundles the configuration, database handle and repositories every
// command needs. Commands construct the services they use on top of it.
type app struct {
	cfg      *config.Config
	db       *database.DB
	episodes episodes.Repository
	podcasts podcasts.Repository
	users    users.Repository
}

// openApp loads config, opens the database and applies migrations.
func openApp() (*app, error) {
	cfg, err := config.GetConfig()
	if err != nil {
		return nil, err
	}

	db, err := database.Initialize(cfg.Database.Path, cfg.Database.Verbose)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	return &app{
		cfg:      cfg,
		db:       db,
		episodes: episodes.NewRepository(db.DB),
		podcasts: podcasts.NewRepository(db.DB),
		users:    users.NewRepository(db.DB),
	}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		log.Printf("[WARN] Closing database: %v", err)
	}
}

// youtubeClient returns the YouTube client, or nil when no API key is
// configured. RSS-only deployments run without one.
func (a *app) youtubeClient(ctx context.Context) (*youtube.Client, error) {
	if a.cfg.YouTube.APIKey == "" {
		return nil, nil
	}
	client, err := youtube.NewClient(ctx, a.cfg.YouTube)
	if err != nil {
		return nil, fmt.Errorf("creating youtube client: %w", err)
	}
	return client, nil
}

// podcastService wires the feed parser and optional YouTube syncer.
func (a *app) podcastService(ctx context.Context) (*podcasts.Service, error) {
	parser := feedparse.NewParser(a.cfg.Download.Timeout, a.cfg.Download.UserAgent)

	client, err := a.youtubeClient(ctx)
	if err != nil {
		return nil, err
	}
	var syncer podcasts.SourceSyncer
	if client != nil {
		syncer = client
	}
	return podcasts.NewService(a.podcasts, a.episodes, parser, syncer), nil
}

// downloadService wires the HTTP fetcher and optional caption fetcher.
func (a *app) downloadService(ctx context.Context) (*download.Service, error) {
	fetcher := dl.NewFetcher(dl.Options{
		Timeout:       a.cfg.Download.Timeout,
		MaxSize:       a.cfg.Download.MaxFileSize,
		UserAgent:     a.cfg.Download.UserAgent,
		RetryAttempts: a.cfg.Download.RetryAttempts,
		RetryBackoff:  a.cfg.Download.RetryBackoff,
	})

	client, err := a.youtubeClient(ctx)
	if err != nil {
		return nil, err
	}
	var captions download.CaptionFetcher
	if client != nil {
		captions = client
	}
	return download.NewService(a.episodes, a.podcasts, fetcher, captions, a.cfg.Storage.AudioDir, a.cfg.Pipeline.DownloadWorkers), nil
}
