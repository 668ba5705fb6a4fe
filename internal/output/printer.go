package output

import (
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/fatih/color"

	"github.com/tdh8316/socialhunt/internal/scan"
)

type Printer struct {
	noColor bool
	verbose bool

	logger *log.Logger
	stream *log.Logger // optional (writes to buffer)
}

func NewPrinter(stdout io.Writer, noColor, verbose bool, buf *strings.Builder) *Printer {
	p := &Printer{
		noColor: noColor,
		verbose: verbose,
		logger:  log.New(stdout, "", 0),
	}
	if buf != nil {
		p.stream = log.New(buf, "", 0)
	}
	return p
}

func (p *Printer) Logger() *log.Logger {
	return p.logger
}

// Marker is the one-character status tag used in front of each line.
func Marker(s scan.Status) string {
	switch s {
	case scan.StatusFound:
		return "+"
	case scan.StatusNotFound:
		return "-"
	case scan.StatusError:
		return "!"
	default:
		return "~"
	}
}

func (p *Printer) colorMarker(s scan.Status) string {
	m := Marker(s)
	if p.noColor {
		return m
	}
	switch s {
	case scan.StatusFound:
		return color.HiGreenString(m)
	case scan.StatusNotFound, scan.StatusError:
		return color.HiRedString(m)
	default:
		return color.HiYellowString(m)
	}
}

// Result prints one line per result. Only found results are shown unless
// the printer is verbose.
func (p *Printer) Result(r *scan.Result) {
	if r == nil || (r.Status != scan.StatusFound && !p.verbose) {
		return
	}

	// File output is always plain.
	if p.stream != nil {
		p.stream.Printf("[%s] %s: %s", Marker(r.Status), r.Provider, plainDetail(r))
	}

	if p.noColor {
		p.logger.Printf("[%s] %s: %s", Marker(r.Status), r.Provider, plainDetail(r))
		return
	}

	switch r.Status {
	case scan.StatusFound:
		p.logger.Printf("[%s] %s: %s%s", p.colorMarker(r.Status), color.HiWhiteString(r.Provider), r.URL, extras(r))
	case scan.StatusError:
		p.logger.Printf("[%s] %s: %s: %s",
			p.colorMarker(r.Status),
			r.Provider,
			color.HiMagentaString("ERROR"),
			color.HiRedString(r.ErrorText()),
		)
	case scan.StatusNotFound:
		p.logger.Printf("[%s] %s: %s", p.colorMarker(r.Status), r.Provider, color.HiYellowString("Not Found!"))
	default:
		p.logger.Printf("[%s] %s: %s (%s)", p.colorMarker(r.Status), r.Provider, color.YellowString(string(r.Status)), r.URL)
	}
}

func plainDetail(r *scan.Result) string {
	switch r.Status {
	case scan.StatusFound:
		return r.URL + extras(r)
	case scan.StatusError:
		return "ERROR: " + r.ErrorText()
	case scan.StatusNotFound:
		return "Not Found!"
	default:
		return fmt.Sprintf("%s (%s)", r.Status, r.URL)
	}
}

func extras(r *scan.Result) string {
	var parts []string
	if name, ok := r.ProfileString("display_name"); ok {
		parts = append(parts, name)
	}
	if n, ok := r.Profile["followers"]; ok && n != nil {
		parts = append(parts, fmt.Sprintf("%v followers", n))
	}
	if id, ok := r.ProfileString("avatar_cluster_id"); ok {
		parts = append(parts, id)
	}
	if len(parts) == 0 {
		return ""
	}
	return " (" + strings.Join(parts, ", ") + ")"
}

// Summary prints the found/failed tally of a finished scan.
func (p *Printer) Summary(username string, results []*scan.Result) {
	s := scan.Summarize(results)
	line := fmt.Sprintf("%s: %d found, %d not found or failed, %d checked", username, s.Found, s.Failed, s.Results)
	if p.stream != nil {
		p.stream.Print(line)
	}
	if p.noColor {
		p.logger.Print(line)
		return
	}
	p.logger.Printf("%s: %s found, %d not found or failed, %d checked",
		color.HiGreenString(username), color.HiWhiteString(fmt.Sprint(s.Found)), s.Failed, s.Results)
}
