package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"media-cache/internal/cache"
	"media-cache/internal/media"
	"media-cache/internal/pipeline"
	"media-cache/internal/startup"

	"github.com/spf13/cobra"
)

const flagConfig = "config"

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "media-cache",
		Short: "Multi-tier thumbnail and image cache for a media library",
		Long: `media-cache keeps thumbnails, metadata and decoded images of a media
library close at hand: a tagged memory pool, a persistent thumbnail vault,
a deduplicating image pipeline with a byte-budgeted disk cache, and an
intent-driven prefetcher.

  media-cache serve          # index the library and serve the HTTP API
  media-cache warm           # render every thumbnail ahead of time
  media-cache clear          # wipe the thumbnail vault and image cache

Configuration comes from environment variables, optionally overlaid by the
YAML file given with --config or MEDIA_CACHE_CONFIG.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if configPath != "" {
				return os.Setenv(startup.ConfigFileEnv, configPath)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, flagConfig, "", "YAML config file overlaying the environment")

	root.AddCommand(newServeCmd(), newWarmCmd(), newClearCmd(), newVersionCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Index the library and serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func newWarmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "warm",
		Short: "Scan the library and render every thumbnail into the vault",
		Long: `warm scans the library once and renders a thumbnail for every asset
at THUMBNAIL_SIZE. Thumbnails are cached per asset, so assets that already
have one keep it; run clear first to re-render at a new size.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			config, err := startup.Resolve()
			if err != nil {
				return err
			}
			if err := config.Prepare(); err != nil {
				return err
			}
			return runWarm(cmd.Context(), config, cmd)
		},
	}
}

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove the thumbnail vault and the image disk cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			config, err := startup.Resolve()
			if err != nil {
				return err
			}
			return runClear(config, cmd)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			info := startup.GetBuildInfo()
			cmd.Printf("media-cache %s (commit %s, built %s, %s %s/%s)\n",
				info.Version, info.Commit, info.BuildTime, info.GoVersion, info.OS, info.Arch)
		},
	}
}

// runWarm indexes the library once and renders thumbnails for every asset.
func runWarm(ctx context.Context, config *startup.Config, cmd *cobra.Command) error {
	a, err := newApp(ctx, config)
	if err != nil {
		return err
	}
	defer a.stop()

	start := time.Now()
	if err := a.indexer.Index(ctx); err != nil {
		return fmt.Errorf("library scan failed: %w", err)
	}

	all, err := a.db.AllAssets(ctx)
	if err != nil {
		return err
	}
	ids := make([]string, len(all))
	for i, m := range all {
		ids[i] = m.ID
	}
	assets := a.library.Resolve(ids)

	before := a.coord.Vault().Len()
	edge := config.ThumbnailSize
	a.coord.WarmThumbnails(ctx, assets, media.Size{Width: edge, Height: edge})
	if err := ctx.Err(); err != nil {
		return err
	}

	cmd.Printf("warmed %d assets at %dpx in %v (%d vault descriptors, was %d)\n",
		len(assets), edge, time.Since(start).Truncate(time.Millisecond), a.coord.Vault().Len(), before)
	return nil
}

// runClear wipes both persistent cache tiers without touching the database.
func runClear(config *startup.Config, cmd *cobra.Command) error {
	vault, err := cache.OpenDiskVault(config.VaultDir, nil)
	if err != nil {
		return err
	}
	descriptors := vault.Len()
	vault.Clear()

	images, err := pipeline.NewDiskCache(config.ImageCacheDir, config.ImageCacheBudget)
	if err != nil {
		return err
	}
	usage := images.Usage()
	images.Clear()

	cmd.Printf("cleared %d vault descriptors and %d bytes of cached images\n", descriptors, usage)
	return nil
}
