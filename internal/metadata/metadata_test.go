package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOpenGraph(t *testing.T) {
	html := `<html><head>
		<title>ignored</title>
		<meta property="og:title" content=" Alice Example ">
		<meta name="twitter:description" content="hacker, cat person">
		<meta property="og:image" content="https://cdn.example/a.png">
		<meta property="og:url" content="https://site.example/alice">
	</head></html>`

	og := OpenGraph(html)
	assert.Equal(t, "Alice Example", og["display_name"])
	assert.Equal(t, "hacker, cat person", og["description"])
	assert.Equal(t, "https://cdn.example/a.png", og["avatar_url"])
	assert.Equal(t, "https://site.example/alice", og["canonical_url"])
}

func TestOpenGraph_TitleFallback(t *testing.T) {
	og := OpenGraph(`<html><head><title> alice </title></head><body></body></html>`)
	assert.Equal(t, map[string]any{"display_name": "alice"}, og)
}

func TestJSONLD(t *testing.T) {
	html := `<script type="application/ld+json">{not json}</script>
	<script type="application/ld+json">[
		{"@type": "WebSite"},
		{"@type": "Person", "name": "Bob", "image": {"url": "https://cdn.example/b.png"}, "url": "https://site.example/bob"}
	]</script>`

	ld := JSONLD(html)
	assert.Equal(t, "Bob", ld["display_name"])
	assert.Equal(t, "https://cdn.example/b.png", ld["avatar_url"])
	assert.Equal(t, "https://site.example/bob", ld["canonical_url"])
}

func TestJSONLD_ImageArray(t *testing.T) {
	ld := JSONLD(`<script type="application/ld+json">{"image": ["https://cdn.example/1.png", "https://cdn.example/2.png"]}</script>`)
	assert.Equal(t, map[string]any{"avatar_url": "https://cdn.example/1.png"}, ld)
}

func TestExtract_JSONLDFillsGaps(t *testing.T) {
	html := `<html><head>
		<meta property="og:title" content="Carol">
		<script type="application/ld+json">{"name": "Other", "image": "https://cdn.example/c.png"}</script>
	</head><body>1,234 Followers · 56 following</body></html>`

	md := Extract(html)
	assert.Equal(t, "Carol", md["display_name"])
	assert.Equal(t, "https://cdn.example/c.png", md["avatar_url"])
	assert.Equal(t, int64(1234), md["followers"])
	assert.Equal(t, int64(56), md["following"])
}

func TestExtract_Empty(t *testing.T) {
	assert.Empty(t, Extract(""))
	assert.Empty(t, Extract("   "))
}

func TestCounts(t *testing.T) {
	c := Counts("12.3k followers and 4m subscribers, 7 members")
	assert.Equal(t, int64(12300), c["followers"])
	assert.Equal(t, int64(4_000_000), c["subscribers"])
	assert.Equal(t, int64(7), c["members"])
	assert.NotContains(t, c, "following")

	assert.Empty(t, Counts(""))
}

func TestParseHumanInt(t *testing.T) {
	cases := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"1,234", 1234, true},
		{"12.3K", 12300, true},
		{"12.3k", 12300, true},
		{"4M", 4_000_000, true},
		{" 1.5 m ", 1_500_000, true},
		{"42", 42, true},
		{"about 99 or so", 99, true},
		{"", 0, false},
		{"many", 0, false},
	}
	for _, c := range cases {
		got, ok := ParseHumanInt(c.in)
		assert.Equal(t, c.ok, ok, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
}
