package dev

import (
	"path/filepath"

	"github.com/vango-dev/devpack/internal/config"
)

// CollectWatchPaths returns a normalized list of watch paths for the project:
// the root, plus publicDir and the config file directory when they live
// outside it.
func CollectWatchPaths(cfg *config.Config) []string {
	root := cfg.RootPath()
	paths := []string{root, cfg.PublicPath()}
	if file := cfg.File(); file != "" {
		paths = append(paths, filepath.Dir(file))
	}

	unique := make([]string, 0, len(paths))
	for _, path := range paths {
		if path == "" {
			continue
		}
		clean := filepath.Clean(path)
		covered := false
		for _, p := range unique {
			if isWithinDir(clean, p) {
				covered = true
				break
			}
		}
		if !covered {
			unique = append(unique, clean)
		}
	}
	return unique
}

// CollectIgnore returns the ignore patterns for the project: the defaults,
// the output directory and server.watch.ignored.
func CollectIgnore(cfg *config.Config) []string {
	ignore := append([]string{}, DefaultIgnore...)
	if rel, err := filepath.Rel(cfg.RootPath(), cfg.OutputPath()); err == nil && rel != "." {
		ignore = append(ignore, filepath.ToSlash(rel))
	}
	return append(ignore, cfg.Server.Watch.Ignored...)
}
