package data

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ProviderSpec is one entry of a providers.yaml pack:
//
//	github:
//	  url: https://github.com/{username}
//	  error_patterns: ["not found"]
type ProviderSpec struct {
	URL             string   `yaml:"url"`
	Timeout         int      `yaml:"timeout"`
	UAProfile       string   `yaml:"ua_profile"`
	SuccessPatterns []string `yaml:"success_patterns"`
	ErrorPatterns   []string `yaml:"error_patterns"`
	RegexCheck      string   `yaml:"regex_check"`
	Claimed         string   `yaml:"username_claimed"`
	Unclaimed       string   `yaml:"username_unclaimed"`
	Note            string   `yaml:"note"`
}

// LoadProviderFile parses a provider pack. Entries without a url are skipped.
func LoadProviderFile(path string) (map[string]ProviderSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var entries map[string]yaml.Node
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	out := make(map[string]ProviderSpec, len(entries))
	for name, node := range entries {
		if node.Kind != yaml.MappingNode {
			continue
		}
		var spec ProviderSpec
		if err := node.Decode(&spec); err != nil {
			return nil, fmt.Errorf("%s: provider %q: %w", path, name, err)
		}
		if strings.TrimSpace(spec.URL) == "" {
			continue
		}
		out[name] = spec
	}
	return out, nil
}

// LoadProviderDir merges every *.yml / *.yaml pack in dir, in file name
// order; later files override earlier ones. Broken packs are reported via
// onError and skipped. A missing dir yields an empty map.
func LoadProviderDir(dir string, onError func(path string, err error)) (map[string]ProviderSpec, error) {
	out := map[string]ProviderSpec{}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return out, nil
		}
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yml", ".yaml":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	for _, f := range files {
		specs, err := LoadProviderFile(f)
		if err != nil {
			if onError != nil {
				onError(f, err)
			}
			continue
		}
		for k, v := range specs {
			out[k] = v
		}
	}
	return out, nil
}

type addonsFile struct {
	Addons []string `yaml:"addons"`
}

// LoadEnabledAddons reads the ordered addon list of an addons.yaml:
//
//	addons:
//	  - bio_links
//	  - avatar_fingerprint
//
// ok is false when the file does not exist.
func LoadEnabledAddons(path string) (names []string, ok bool, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var f addonsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, true, fmt.Errorf("parse %s: %w", path, err)
	}
	for _, n := range f.Addons {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	return names, true, nil
}
