package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/johns/chatlog/internal/catalog"
	"github.com/johns/chatlog/internal/config"
)

const version = "0.1.0"

// deps bundles everything a command needs: the loaded config, the project
// identity of the working directory, and the optional header cache.
type deps struct {
	cfg         config.Config
	log         *logrus.Logger
	projectHash string
	sessionDir  string
	archiveDir  string
	cache       *catalog.Cache
}

func (d *deps) close() {
	if d.cache != nil {
		d.cache.Close()
	}
}

func loadDeps() (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log := logrus.New()
	log.SetOutput(os.Stderr)
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("determine working directory: %w", err)
	}
	hash := catalog.ProjectHash(cwd)

	d := &deps{
		cfg:         cfg,
		log:         log,
		projectHash: hash,
		sessionDir:  cfg.SessionDir(hash),
		archiveDir:  cfg.ArchiveDir(hash),
	}
	if cfg.Cache.Enabled {
		if cache, err := catalog.OpenCache(cfg.CachePath()); err == nil {
			d.cache = cache
		} else {
			log.WithError(err).Warn("header cache unavailable, listings fall back to full scans")
		}
	}
	return d, nil
}

func (d *deps) catalog() *catalog.Catalog {
	return &catalog.Catalog{
		Dir:         d.sessionDir,
		ProjectHash: d.projectHash,
		Cache:       d.cache,
		Log:         d.log,
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "chatlog",
		Short:         "Record, replay, and manage conversation session logs",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newListCmd())
	root.AddCommand(newShowCmd())
	root.AddCommand(newStatsCmd())
	root.AddCommand(newExportCmd())
	root.AddCommand(newResumeCmd())
	root.AddCommand(newDeleteCmd())
	root.AddCommand(newArchiveCmd())
	root.AddCommand(newRestoreCmd())
	root.AddCommand(newCleanupLocksCmd())
	root.AddCommand(newWatchCmd())
	root.AddCommand(newCheckCmd())
	root.AddCommand(newInitCmd())

	return root
}
