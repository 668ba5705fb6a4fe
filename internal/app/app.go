// Package app wires configuration, logging, the provider catalog and the scan
// engine behind the cli commands.
package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"github.com/tdh8316/socialhunt/internal/addons"
	"github.com/tdh8316/socialhunt/internal/api"
	"github.com/tdh8316/socialhunt/internal/cli"
	"github.com/tdh8316/socialhunt/internal/config"
	"github.com/tdh8316/socialhunt/internal/data"
	"github.com/tdh8316/socialhunt/internal/demo"
	"github.com/tdh8316/socialhunt/internal/httpx"
	"github.com/tdh8316/socialhunt/internal/jobs"
	"github.com/tdh8316/socialhunt/internal/logging"
	"github.com/tdh8316/socialhunt/internal/netsafe"
	"github.com/tdh8316/socialhunt/internal/output"
	"github.com/tdh8316/socialhunt/internal/registry"
	"github.com/tdh8316/socialhunt/internal/scan"
)

// Run executes the command line and returns the process exit code.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := cli.NewRoot(&runner{stdout: stdout, stderr: stderr}, stdout, stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, cli.ErrUsage):
		fmt.Fprintln(stderr, err.Error())
		fmt.Fprintln(stderr, "run 'socialhunt --help' for usage")
		return 2
	case errors.Is(err, context.Canceled):
		return 130
	default:
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
}

type runner struct {
	stdout io.Writer
	stderr io.Writer
}

// env is everything a command needs after configuration is loaded.
type env struct {
	cfg    *config.Config
	log    *logrus.Logger
	closer io.Closer
	client httpx.Doer
	guard  *netsafe.Guard
}

func (r *runner) setup(g cli.Global) (*env, error) {
	color.NoColor = color.NoColor || g.NoColor

	cfg, err := config.Load(g.ConfigPath)
	if err != nil {
		return nil, err
	}
	if g.WithTor {
		cfg.Tor.Enabled = true
	}

	log, closer, err := logging.New(cfg.Log, r.stderr)
	if err != nil {
		return nil, err
	}

	client, err := httpx.NewClient(httpx.ClientConfig{
		Timeout:     cfg.RequestTimeout,
		WithTor:     cfg.Tor.Enabled,
		TorProxyURL: cfg.Tor.ProxyURL,
	})
	if err != nil {
		closer.Close()
		return nil, fmt.Errorf("failed to initialize HTTP client: %w", err)
	}

	return &env{cfg: cfg, log: log, closer: closer, client: client, guard: &netsafe.Guard{}}, nil
}

func (e *env) Close() error { return e.closer.Close() }

func (e *env) engine() (*scan.Engine, error) {
	cat, err := registry.Load(e.cfg, e.guard, e.log)
	if err != nil {
		return nil, err
	}
	eng := scan.NewEngine(e.client, cat, scan.Config{
		MaxConcurrency:  e.cfg.MaxConcurrency,
		MinHostInterval: e.cfg.MinHostInterval,
		DefaultTimeout:  e.cfg.ProviderTimeout,
		AddonTimeout:    e.cfg.AddonTimeout,
	}, e.log)
	if e.cfg.DemoMode {
		eng.Redact = demo.Redact
	}
	return eng, nil
}

func (r *runner) Scan(ctx context.Context, opts cli.ScanOptions) error {
	e, err := r.setup(opts.Global)
	if err != nil {
		return err
	}
	defer e.Close()

	if opts.MaxConcurrency > 0 {
		e.cfg.MaxConcurrency = opts.MaxConcurrency
	}
	eng, err := e.engine()
	if err != nil {
		return err
	}

	var extra []scan.Addon
	if len(opts.MatchImages) > 0 {
		m, err := addons.NewAvatarMatch(addons.NewAvatarFingerprint(e.guard), opts.MatchImages...)
		if err != nil {
			return fmt.Errorf("%w: --match-image: %v", cli.ErrUsage, err)
		}
		extra = append(extra, m)
	}

	if unknown := unknownProviders(eng.Catalog(), opts.Providers); len(unknown) > 0 {
		notice(r.stdout, "!", "Unknown providers ignored: "+strings.Join(unknown, ", "))
	}

	for _, username := range opts.Usernames {
		fmt.Fprintf(r.stdout, "\nInvestigating %s on:\n", color.HiGreenString(username))

		// Buffer for out.txt, one per username.
		var buf strings.Builder
		printer := output.NewPrinter(r.stdout, opts.Global.NoColor, opts.Verbose, &buf)

		results, err := eng.Scan(ctx, username, scan.ScanOptions{
			Providers:   opts.Providers,
			ExtraAddons: extra,
			OnResult:    printer.Result,
		})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			fmt.Fprintf(r.stderr, "scan error for %q: %v\n", username, err)
			continue
		}
		printer.Summary(username, results)

		if opts.NoOutput {
			continue
		}
		if err := writeResults(filepath.Join(opts.ResultsDir, username), opts.Format, buf.String(), results); err != nil {
			return err
		}
	}
	return nil
}

func unknownProviders(cat *scan.Catalog, requested []string) []string {
	var unknown []string
	for _, name := range requested {
		if len(cat.Select([]string{name})) == 0 {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

func writeResults(dir, format, text string, results []*scan.Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create results dir %q: %w", dir, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "out.txt"), []byte(text), 0o600); err != nil {
		return err
	}

	var out bytes.Buffer
	write := output.WriteCSV
	if format == "json" {
		write = output.WriteJSON
	}
	if err := write(&out, results); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "results."+format), out.Bytes(), 0o600)
}

func (r *runner) Serve(ctx context.Context, opts cli.ServeOptions) error {
	e, err := r.setup(opts.Global)
	if err != nil {
		return err
	}
	defer e.Close()

	eng, err := e.engine()
	if err != nil {
		return err
	}

	store, err := jobs.OpenSQLite(e.cfg.Server.JobsDB)
	if err != nil {
		return err
	}
	manager := jobs.NewManager(eng, store, e.log)
	defer manager.Close()

	reload := func() (*scan.Catalog, error) {
		return registry.Load(e.cfg, e.guard, e.log)
	}
	srv := api.New(eng, manager, reload, api.Options{
		AdminToken:     e.cfg.Server.AdminToken,
		MaxUsernameLen: e.cfg.Server.MaxUsernameLen,
		DemoMode:       e.cfg.DemoMode,
		Guard:          e.guard,
	}, e.log)

	listen := opts.Listen
	if listen == "" {
		listen = e.cfg.Server.Listen
	}
	return srv.ListenAndServe(ctx, listen)
}

func (r *runner) Providers(_ context.Context, g cli.Global) error {
	e, err := r.setup(g)
	if err != nil {
		return err
	}
	defer e.Close()

	cat, err := registry.Load(e.cfg, e.guard, e.log)
	if err != nil {
		return err
	}
	for _, name := range cat.ProviderNames() {
		item(r.stdout, g.NoColor, "+", name)
	}
	fmt.Fprintf(r.stdout, "%d provider(s)\n", len(cat.Providers))
	return nil
}

func (r *runner) Addons(_ context.Context, g cli.Global) error {
	e, err := r.setup(g)
	if err != nil {
		return err
	}
	defer e.Close()

	cat, err := registry.Load(e.cfg, e.guard, e.log)
	if err != nil {
		return err
	}
	enabled := map[string]bool{}
	for _, n := range cat.Enabled {
		enabled[n] = true
	}
	for _, name := range cat.AddonNames() {
		if enabled[name] {
			item(r.stdout, g.NoColor, "+", name+" (enabled)")
		} else {
			item(r.stdout, g.NoColor, "-", name)
		}
	}
	return nil
}

func (r *runner) Validate(ctx context.Context, g cli.Global) error {
	e, err := r.setup(g)
	if err != nil {
		return err
	}
	defer e.Close()

	eng, err := e.engine()
	if err != nil {
		return err
	}

	notice(r.stdout, "i", "Checking provider validity...")
	count, err := eng.Validate(ctx, func(f scan.ValidationFailure) {
		if f.Used.Status == scan.StatusError || f.Unused.Status == scan.StatusError {
			var parts []string
			for _, res := range []*scan.Result{f.Used, f.Unused} {
				if msg := res.ErrorText(); msg != "" {
					parts = append(parts, "["+msg+"]")
				}
			}
			item(r.stdout, g.NoColor, "-", fmt.Sprintf("%s: Failed with error %s", f.Provider, strings.Join(parts, "")))
			return
		}
		item(r.stdout, g.NoColor, "-", fmt.Sprintf(
			"%s: Not working (%s: expected found, result is %s | %s: expected not_found, result is %s)",
			f.Provider, f.Claimed, f.Used.Status, f.Unclaimed, f.Unused.Status,
		))
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(r.stdout, "\nThese %d providers did not pass self-validation.\n", count)
	return nil
}

func (r *runner) Update(ctx context.Context, g cli.Global, dest string) error {
	e, err := r.setup(g)
	if err != nil {
		return err
	}
	defer e.Close()

	if dest == "" {
		dest = e.cfg.SherlockFile
	}
	if dest == "" {
		dest = "data.json"
	}

	notice(r.stdout, "!", "Update database: Downloading...")
	if err := data.UpdateFromRemote(ctx, e.client, httpx.DefaultUserAgent, dest); err != nil {
		return fmt.Errorf("failed to update database: %w", err)
	}
	notice(r.stdout, "i", "Saved "+dest)
	return nil
}

func notice(w io.Writer, tag, msg string) {
	if color.NoColor {
		fmt.Fprintf(w, "[%s] %s\n", tag, msg)
		return
	}
	fmt.Fprintf(w, "[%s] %s\n", color.HiBlueString(tag), color.HiYellowString(msg))
}

func item(w io.Writer, noColor bool, tag, msg string) {
	if noColor {
		fmt.Fprintf(w, "[%s] %s\n", tag, msg)
		return
	}
	marker := color.HiGreenString(tag)
	if tag != "+" {
		marker = color.HiRedString(tag)
	}
	fmt.Fprintf(w, "[%s] %s\n", marker, msg)
}
