// Package cli defines the socialhunt command tree. Commands parse flags and
// hand off to a Runner.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// ErrUsage marks errors caused by bad invocation (exit code 2).
var ErrUsage = errors.New("usage error")

type Global struct {
	ConfigPath string
	WithTor    bool
	NoColor    bool
}

type ScanOptions struct {
	Global

	Usernames      []string
	Providers      []string
	Format         string
	ResultsDir     string
	NoOutput       bool
	Verbose        bool
	MaxConcurrency int
	MatchImages    []string
}

type ServeOptions struct {
	Global
	Listen string
}

// Runner executes parsed commands.
type Runner interface {
	Scan(ctx context.Context, opts ScanOptions) error
	Serve(ctx context.Context, opts ServeOptions) error
	Providers(ctx context.Context, g Global) error
	Addons(ctx context.Context, g Global) error
	Validate(ctx context.Context, g Global) error
	Update(ctx context.Context, g Global, dest string) error
}

func NewRoot(r Runner, stdout, stderr io.Writer) *cobra.Command {
	var g Global

	root := &cobra.Command{
		Use:           "socialhunt",
		Short:         "Investigate usernames across social networks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	})

	pf := root.PersistentFlags()
	pf.StringVar(&g.ConfigPath, "config", "", "config file (default ./config.yaml if present)")
	pf.BoolVarP(&g.WithTor, "tor", "t", false, "route requests through the tor proxy")
	pf.BoolVar(&g.NoColor, "no-color", false, "disable colored stdout output")

	root.AddCommand(
		scanCommand(r, &g),
		serveCommand(r, &g),
		simpleCommand("providers", "List registered providers", func(ctx context.Context) error { return r.Providers(ctx, g) }),
		simpleCommand("addons", "List available and enabled addons", func(ctx context.Context) error { return r.Addons(ctx, g) }),
		simpleCommand("validate", "Self-test providers with their claimed/unclaimed usernames", func(ctx context.Context) error { return r.Validate(ctx, g) }),
		updateCommand(r, &g),
	)
	return root
}

func scanCommand(r Runner, g *Global) *cobra.Command {
	var (
		opts      ScanOptions
		providers string
	)
	cmd := &cobra.Command{
		Use:   "scan USERNAME [USERNAMES...]",
		Short: "Scan one or more usernames",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Global = *g
			opts.Usernames = nil
			for _, a := range args {
				if a = strings.TrimSpace(a); a != "" {
					opts.Usernames = append(opts.Usernames, a)
				}
			}
			if len(opts.Usernames) == 0 {
				return fmt.Errorf("%w: at least one username is required", ErrUsage)
			}
			switch opts.Format {
			case "csv", "json":
			default:
				return fmt.Errorf("%w: --format must be csv or json, got %q", ErrUsage, opts.Format)
			}
			if opts.MaxConcurrency < 0 {
				return fmt.Errorf("%w: --max-concurrency must not be negative", ErrUsage)
			}
			opts.Providers = SplitList(providers)
			return r.Scan(cmd.Context(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&providers, "providers", "", "comma-separated providers to scan (default: all)")
	f.StringVar(&opts.Format, "format", "csv", "export format: csv or json")
	f.StringVar(&opts.ResultsDir, "results", "results", "output directory")
	f.BoolVar(&opts.NoOutput, "no-output", false, "disable file output")
	f.BoolVarP(&opts.Verbose, "verbose", "v", false, "show results that were not found")
	f.IntVar(&opts.MaxConcurrency, "max-concurrency", 0, "override concurrent provider probes")
	f.StringArrayVar(&opts.MatchImages, "match-image", nil, "reference image compared against found avatars (repeatable)")
	return cmd
}

func serveCommand(r Runner, g *Global) *cobra.Command {
	var opts ServeOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.Global = *g
			return r.Serve(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (default from config)")
	return cmd
}

func updateCommand(r Runner, g *Global) *cobra.Command {
	var dest string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Download the Sherlock site database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.Update(cmd.Context(), *g, dest)
		},
	}
	cmd.Flags().StringVar(&dest, "dest", "", "destination file (default: sherlock_file from config, else data.json)")
	return cmd
}

func simpleCommand(use, short string, run func(context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context())
		},
	}
}

// SplitList splits a comma-separated flag value, dropping blanks.
func SplitList(csv string) []string {
	var out []string
	for _, s := range strings.Split(csv, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
