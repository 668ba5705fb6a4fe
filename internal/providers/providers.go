// Package providers holds the probes the scan engine can run: YAML pattern
// packs, Sherlock data.json sites and a few API-backed built-ins.
package providers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/pkg/errors"

	"github.com/tdh8316/socialhunt/internal/httpx"
	"github.com/tdh8316/socialhunt/internal/scan"
)

// Builtin returns the Go providers. They win over pack entries with the
// same name.
func Builtin() []scan.Provider {
	return []scan.Provider{NewGitHub(), NewReddit()}
}

// Compiled regexCheck expressions, shared by every provider.
var (
	regexCache    sync.Map // expr -> *regexp2.Regexp
	regexErrCache sync.Map // expr -> error
)

func compileCached(expr string) (*regexp2.Regexp, error) {
	if v, ok := regexCache.Load(expr); ok {
		return v.(*regexp2.Regexp), nil
	}
	if v, ok := regexErrCache.Load(expr); ok {
		return nil, v.(error)
	}

	re, err := regexp2.Compile(expr, 0)
	if err != nil {
		regexErrCache.Store(expr, err)
		return nil, err
	}
	re.MatchTimeout = time.Second
	regexCache.Store(expr, re)
	return re, nil
}

// matchUsername reports whether username satisfies expr. An empty expr
// accepts everything.
func matchUsername(expr, username string) (bool, error) {
	if expr == "" {
		return true, nil
	}
	re, err := compileCached(expr)
	if err != nil {
		return false, errors.Wrap(err, "invalid regex check")
	}
	ok, err := re.MatchString(username)
	if err != nil {
		return false, errors.Wrap(err, "regex check")
	}
	return ok, nil
}

func get(ctx context.Context, client httpx.Doer, url string, headers http.Header) (*http.Response, error) {
	req, err := httpx.NewRequest(ctx, http.MethodGet, url, nil, headers)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "request")
	}
	return resp, nil
}

// compact drops nil and empty-string values.
func compact(m map[string]any) map[string]any {
	for k, v := range m {
		switch t := v.(type) {
		case nil:
			delete(m, k)
		case string:
			if t == "" {
				delete(m, k)
			}
		}
	}
	return m
}
