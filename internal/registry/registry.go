// Package registry assembles the provider and addon catalog from data files
// and built-ins.
package registry

import (
	"errors"
	"io/fs"

	"github.com/sirupsen/logrus"

	"github.com/tdh8316/socialhunt/internal/addons"
	"github.com/tdh8316/socialhunt/internal/config"
	"github.com/tdh8316/socialhunt/internal/data"
	"github.com/tdh8316/socialhunt/internal/netsafe"
	"github.com/tdh8316/socialhunt/internal/providers"
	"github.com/tdh8316/socialhunt/internal/scan"
)

// Load builds a catalog. Later sources replace earlier ones by name:
// Sherlock database, providers file, plugin dir, built-in providers.
func Load(cfg *config.Config, guard *netsafe.Guard, log logrus.FieldLogger) (*scan.Catalog, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	cat := &scan.Catalog{Providers: map[string]scan.Provider{}}

	if cfg.SherlockFile != "" {
		sites, err := data.LoadSites(cfg.SherlockFile, func(site string, err error) {
			log.WithError(err).WithField("site", site).Debug("skipping sherlock site")
		})
		if err != nil {
			return nil, err
		}
		for _, p := range providers.SherlockProviders(sites) {
			cat.Providers[p.Name()] = p
		}
		log.WithField("sites", len(sites)).Debug("sherlock database loaded")
	}

	specs, err := data.LoadProviderFile(cfg.ProvidersFile)
	switch {
	case err == nil:
		for name, spec := range specs {
			cat.Providers[name] = providers.NewPattern(name, spec)
		}
	case errors.Is(err, fs.ErrNotExist) || cfg.ProvidersFile == "":
	default:
		return nil, err
	}

	plugins, err := data.LoadProviderDir(cfg.PluginDir, func(path string, err error) {
		log.WithError(err).WithField("file", path).Warn("skipping provider pack")
	})
	if err != nil {
		return nil, err
	}
	for name, spec := range plugins {
		cat.Providers[name] = providers.NewPattern(name, spec)
	}

	for _, p := range providers.Builtin() {
		cat.Providers[p.Name()] = p
	}

	cat.Addons = addons.Builtin(guard)
	enabled, err := enabledAddons(cfg)
	if err != nil {
		return nil, err
	}
	for _, name := range enabled {
		if _, ok := cat.Addons[name]; !ok {
			log.WithField("addon", name).Warn("unknown addon enabled")
			continue
		}
		cat.Enabled = append(cat.Enabled, name)
	}

	log.WithFields(logrus.Fields{
		"providers": len(cat.Providers),
		"addons":    len(cat.Enabled),
	}).Info("catalog loaded")
	return cat, nil
}

func enabledAddons(cfg *config.Config) ([]string, error) {
	if cfg.AddonsFile != "" {
		names, ok, err := data.LoadEnabledAddons(cfg.AddonsFile)
		if err != nil {
			return nil, err
		}
		if ok {
			return names, nil
		}
	}
	if len(cfg.EnabledAddons) > 0 {
		return cfg.EnabledAddons, nil
	}
	return addons.DefaultEnabled, nil
}
