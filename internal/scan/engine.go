package scan

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/tdh8316/socialhunt/internal/httpx"
	"github.com/tdh8316/socialhunt/internal/ratelimit"
)

const (
	DefaultMaxConcurrency = 6
	DefaultTimeout        = 10 * time.Second
)

var ErrEmptyIdentifier = errors.New("identifier is empty")

type Engine struct {
	client  httpx.Doer
	cfg     Config
	limiter *ratelimit.HostLimiter
	log     logrus.FieldLogger

	catalog atomic.Pointer[Catalog]

	// Redact, when set, rewrites results on their way out: streamed copies
	// and the final list. Addons always see the raw data.
	Redact func(*Result)
}

func NewEngine(client httpx.Doer, catalog *Catalog, cfg Config, log logrus.FieldLogger) *Engine {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultMaxConcurrency
	}
	if cfg.MinHostInterval < 0 {
		cfg.MinHostInterval = 0
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultTimeout
	}
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		log = l
	}

	e := &Engine{
		client:  client,
		cfg:     cfg,
		limiter: ratelimit.NewHostLimiter(cfg.MinHostInterval),
		log:     log,
	}
	e.SetCatalog(catalog)
	return e
}

// SetCatalog swaps the provider and addon registries. Scans already running
// keep the snapshot they started with.
func (e *Engine) SetCatalog(c *Catalog) {
	if c == nil {
		c = &Catalog{}
	}
	e.catalog.Store(c)
}

func (e *Engine) Catalog() *Catalog {
	return e.catalog.Load()
}

func (e *Engine) Limiter() *ratelimit.HostLimiter {
	return e.limiter
}

type ScanOptions struct {
	// Providers restricts the scan; empty means every registered provider.
	Providers []string
	// ExtraAddons run after the enabled addons, for this scan only.
	ExtraAddons []Addon
	// OnResult is called once per provider as probes complete, before
	// addons run. Calls are never concurrent.
	OnResult func(*Result)
}

// Scan probes every selected provider for identifier, runs the addons over
// the aggregate and returns one result per provider sorted by name.
func (e *Engine) Scan(ctx context.Context, identifier string, opts ScanOptions) ([]*Result, error) {
	if strings.TrimSpace(identifier) == "" {
		return nil, ErrEmptyIdentifier
	}

	cat := e.Catalog()
	names := selectProviders(cat.Providers, opts.Providers)
	log := e.log.WithField("identifier", identifier)
	log.WithField("providers", len(names)).Debug("scan started")

	results := e.probe(ctx, identifier, cat, names, opts.OnResult)

	addons := addonsToRun(cat, opts.ExtraAddons)
	for _, a := range addons {
		e.runAddon(ctx, a, identifier, results, log)
	}

	SortResults(results)
	if e.Redact != nil {
		for _, r := range results {
			e.Redact(r)
		}
	}
	log.WithField("results", len(results)).Debug("scan finished")
	return results, nil
}

type indexed struct {
	i   int
	res *Result
}

func (e *Engine) probe(ctx context.Context, identifier string, cat *Catalog, names []string, onResult func(*Result)) []*Result {
	results := make([]*Result, len(names))
	if len(names) == 0 {
		return results
	}

	gate := semaphore.NewWeighted(int64(e.cfg.MaxConcurrency))
	done := make(chan indexed, len(names))

	var wg sync.WaitGroup
	wg.Add(len(names))
	for i, name := range names {
		go func() {
			defer wg.Done()
			done <- indexed{i: i, res: e.runProvider(ctx, gate, identifier, name, cat.Providers[name])}
		}()
	}

	go func() {
		defer close(done)
		wg.Wait()
	}()

	for d := range done {
		results[d.i] = d.res
		if onResult != nil {
			onResult(e.outgoing(d.res))
		}
	}
	return results
}

// outgoing returns the copy of r handed to stream consumers.
func (e *Engine) outgoing(r *Result) *Result {
	if e.Redact == nil {
		return r
	}
	c := r.Clone()
	e.Redact(c)
	return c
}

func (e *Engine) runProvider(ctx context.Context, gate *semaphore.Weighted, identifier, name string, p Provider) (res *Result) {
	start := time.Now()
	url := ""

	defer func() {
		if r := recover(); r != nil {
			res = ErrorResult(name, identifier, url, pkgerrors.Errorf("provider panic: %v", r))
		}
		res.Provider = name
		if res.Username == "" {
			res.Username = identifier
		}
		if res.URL == "" {
			res.URL = url
		}
		if res.ElapsedMS == 0 && res.Status == StatusError {
			res.Since(start)
		}
		res.Normalize()
		e.log.WithFields(logrus.Fields{
			"provider":   name,
			"status":     res.Status,
			"elapsed_ms": res.ElapsedMS,
		}).Debug("probe finished")
	}()

	url = p.BuildURL(identifier)
	headers := HeadersFor(p)

	if err := e.limiter.Wait(ctx, url); err != nil {
		return ErrorResult(name, identifier, url, fmt.Errorf("rate limiter: %w", err))
	}
	if err := gate.Acquire(ctx, 1); err != nil {
		return ErrorResult(name, identifier, url, fmt.Errorf("concurrency gate: %w", err))
	}
	defer gate.Release(1)

	timeout := p.Timeout()
	if timeout <= 0 {
		timeout = e.cfg.DefaultTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := p.Check(cctx, identifier, e.client, headers)
	if err != nil {
		return ErrorResult(name, identifier, url, err)
	}
	if out == nil {
		return ErrorResult(name, identifier, url, errors.New("provider returned no result"))
	}
	return out
}

func (e *Engine) runAddon(ctx context.Context, a Addon, identifier string, results []*Result, log logrus.FieldLogger) {
	log = log.WithField("addon", a.Name())
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.WithError(pkgerrors.Errorf("addon panic: %v", r)).Warn("addon failed")
		}
	}()

	if e.cfg.AddonTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.AddonTimeout)
		defer cancel()
	}

	if err := a.Run(ctx, identifier, results, e.client, e.limiter); err != nil {
		log.WithError(err).Warn("addon failed")
		return
	}
	log.WithField("elapsed_ms", time.Since(start).Milliseconds()).Debug("addon finished")
}

// selectProviders resolves the requested names against the registry. Exact
// matches win; otherwise names match case-insensitively. Unknown and
// repeated names are dropped.
func selectProviders(reg map[string]Provider, requested []string) []string {
	if len(requested) == 0 {
		return sortedKeys(reg)
	}

	lut := make(map[string]string, len(reg))
	for name := range reg {
		lut[strings.ToLower(name)] = name
	}

	seen := make(map[string]struct{}, len(requested))
	out := make([]string, 0, len(requested))
	for _, n := range requested {
		n = strings.TrimSpace(n)
		actual := ""
		if _, ok := reg[n]; ok {
			actual = n
		} else if v, ok := lut[strings.ToLower(n)]; ok {
			actual = v
		}
		if actual == "" {
			continue
		}
		if _, dup := seen[actual]; dup {
			continue
		}
		seen[actual] = struct{}{}
		out = append(out, actual)
	}
	return out
}

func addonsToRun(cat *Catalog, extra []Addon) []Addon {
	var out []Addon
	seen := make(map[string]struct{}, len(cat.Enabled))
	for _, name := range cat.Enabled {
		a, ok := cat.Addons[name]
		if !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, a)
	}
	for _, a := range extra {
		if a != nil {
			out = append(out, a)
		}
	}
	return out
}

// SortResults orders results by provider name, case-insensitively.
func SortResults(results []*Result) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := strings.ToLower(results[i].Provider), strings.ToLower(results[j].Provider)
		if a != b {
			return a < b
		}
		return results[i].Provider < results[j].Provider
	})
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// HeadersFor resolves the request headers a provider is checked with.
func HeadersFor(p Provider) http.Header {
	return httpx.HeadersFor(p.UAProfile())
}
