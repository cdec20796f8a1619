package main

import (
	"context"
	"fmt"
	"os"

	"github.com/bryan-buckman/instapress/internal/config"
	"github.com/bryan-buckman/instapress/internal/database"
	"github.com/bryan-buckman/instapress/internal/instagram"
	"github.com/bryan-buckman/instapress/internal/metrics"
	"github.com/bryan-buckman/instapress/internal/wordpress"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type options struct {
	fetchOnly  bool
	postOnly   bool
	verbose    bool
	testPost   bool
	resetMedia bool
	noMetrics  bool
	dbPath     string
	mediaDir   string
}

func main() {
	var opts options

	root := &cobra.Command{
		Use:           "instapress",
		Short:         "Sync Instagram posts to WordPress",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}
	root.Flags().BoolVar(&opts.fetchOnly, "fetch-only", false, "Only fetch from Instagram")
	root.Flags().BoolVar(&opts.postOnly, "post-only", false, "Only post to WordPress")
	root.Flags().BoolVar(&opts.verbose, "verbose", false, "Show detailed progress")
	root.Flags().BoolVar(&opts.testPost, "test-post", false, "Post one pending post without marking it as posted")
	root.Flags().BoolVar(&opts.resetMedia, "reset-media", false, "Reset media upload records")
	root.Flags().BoolVar(&opts.noMetrics, "no-metrics", false, "Disable Prometheus metrics pushing")
	root.Flags().StringVar(&opts.dbPath, "db", "", "Path to the sync database (overrides DB_PATH)")
	root.Flags().StringVar(&opts.mediaDir, "media-dir", "", "Directory for downloaded media (overrides MEDIA_DIR)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	zcfg := zap.NewProductionConfig()
	if opts.verbose {
		zcfg = zap.NewDevelopmentConfig()
	}
	zl, err := zcfg.Build()
	if err != nil {
		return err
	}
	defer zl.Sync()
	log := zl.Sugar()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if opts.dbPath != "" {
		cfg.DBPath = opts.dbPath
	}
	if opts.mediaDir != "" {
		cfg.MediaDir = opts.mediaDir
	}
	if err := os.MkdirAll(cfg.MediaDir, 0o755); err != nil {
		return fmt.Errorf("create media dir: %w", err)
	}

	db, err := database.New(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()
	fetch := !opts.postOnly
	post := !opts.fetchOnly
	newPosts := 0
	published := 0

	if fetch {
		tokens := instagram.NewTokenManager(db, cfg.InstagramAccessToken, log)
		token, err := tokens.ActiveToken(ctx)
		if err != nil {
			return err
		}
		log.Infow("fetching new posts from Instagram")
		fetcher := instagram.NewFetcher(db, cfg.MediaDir, log)
		newPosts, err = fetcher.FetchAndStore(ctx, token)
		if err != nil {
			return err
		}
	}

	if post {
		if opts.resetMedia {
			n, err := db.ResetMediaUploads()
			if err != nil {
				return err
			}
			log.Infow("reset all media upload records", "count", n)
		}
		log.Infow("posting pending posts to WordPress")
		client := wordpress.NewClient(cfg.WordPressSiteURL, cfg.WordPressUsername, cfg.WordPressAppPassword, log)
		publisher := wordpress.NewPublisher(db, client, cfg.CategoryID, log)
		published, err = publisher.PublishPending(ctx, opts.testPost)
		if err != nil {
			return err
		}
	}

	if !opts.noMetrics && cfg.PushGatewayURL != "" {
		metrics.Push(cfg.PushGatewayURL, newPosts, published, log)
	}
	return nil
}
