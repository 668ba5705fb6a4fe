package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	scan   *ScanOptions
	serve  *ServeOptions
	called string
	global Global
	dest   string
}

func (r *recorder) Scan(_ context.Context, o ScanOptions) error {
	r.scan = &o
	return nil
}
func (r *recorder) Serve(_ context.Context, o ServeOptions) error {
	r.serve = &o
	return nil
}
func (r *recorder) Providers(_ context.Context, g Global) error {
	r.called, r.global = "providers", g
	return nil
}
func (r *recorder) Addons(_ context.Context, g Global) error {
	r.called, r.global = "addons", g
	return nil
}
func (r *recorder) Validate(_ context.Context, g Global) error {
	r.called, r.global = "validate", g
	return nil
}
func (r *recorder) Update(_ context.Context, g Global, dest string) error {
	r.called, r.global, r.dest = "update", g, dest
	return nil
}

func execute(t *testing.T, args ...string) (*recorder, error) {
	t.Helper()
	r := &recorder{}
	var out bytes.Buffer
	root := NewRoot(r, &out, &out)
	root.SetArgs(args)
	return r, root.ExecuteContext(context.Background())
}

func TestScan_Flags(t *testing.T) {
	r, err := execute(t, "--tor", "--config", "c.yaml", "scan", "alice", " ", "bob",
		"--providers", "github, reddit,,", "--format", "json", "--no-output", "-v",
		"--max-concurrency", "3", "--match-image", "a.png", "--match-image", "b.png")
	require.NoError(t, err)
	require.NotNil(t, r.scan)

	o := r.scan
	assert.True(t, o.WithTor)
	assert.Equal(t, "c.yaml", o.ConfigPath)
	assert.Equal(t, []string{"alice", "bob"}, o.Usernames)
	assert.Equal(t, []string{"github", "reddit"}, o.Providers)
	assert.Equal(t, "json", o.Format)
	assert.True(t, o.NoOutput)
	assert.True(t, o.Verbose)
	assert.Equal(t, 3, o.MaxConcurrency)
	assert.Equal(t, []string{"a.png", "b.png"}, o.MatchImages)
	assert.Equal(t, "results", o.ResultsDir)
}

func TestScan_UsageErrors(t *testing.T) {
	for _, args := range [][]string{
		{"scan"},
		{"scan", "alice", "--format", "xml"},
		{"scan", "alice", "--max-concurrency", "-1"},
		{"scan", "alice", "--bogus"},
	} {
		_, err := execute(t, args...)
		assert.True(t, errors.Is(err, ErrUsage), "%v: %v", args, err)
	}
}

func TestSimpleCommands(t *testing.T) {
	for _, name := range []string{"providers", "addons", "validate"} {
		r, err := execute(t, "--no-color", name)
		require.NoError(t, err)
		assert.Equal(t, name, r.called)
		assert.True(t, r.global.NoColor)
	}

	r, err := execute(t, "update", "--dest", "db.json")
	require.NoError(t, err)
	assert.Equal(t, "update", r.called)
	assert.Equal(t, "db.json", r.dest)

	r, err = execute(t, "serve", "--listen", ":9000")
	require.NoError(t, err)
	assert.Equal(t, ":9000", r.serve.Listen)
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, SplitList(""))
	assert.Equal(t, []string{"a", "b"}, SplitList(" a ,, b,"))
}
