package downloader

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type LogLevel int

const (
	LogInfo LogLevel = iota
	LogWarn
	LogError
)

// Printer writes human-readable progress to stderr. All output honors the
// quiet flag except errors.
type Printer struct {
	quiet      bool
	color      bool
	columns    int
	statusOpen bool
}

func newPrinter(opts Options) *Printer {
	columns := terminalColumns()
	if columns <= 0 {
		columns = 100
	}
	return &Printer{
		quiet:   opts.Quiet,
		color:   supportsColor(),
		columns: columns,
	}
}

func (p *Printer) Log(level LogLevel, msg string) {
	if p.quiet && level < LogError {
		return
	}
	p.endStatus()
	switch level {
	case LogWarn:
		fmt.Fprintf(os.Stderr, "%s %s\n", p.colorize("warn:", colorYellow), msg)
	case LogError:
		fmt.Fprintf(os.Stderr, "%s %s\n", p.colorize("error:", colorRed), msg)
	default:
		fmt.Fprintln(os.Stderr, msg)
	}
}

// Status overwrites the current line in place, for the login poll loop.
func (p *Printer) Status(msg string) {
	if p.quiet {
		return
	}
	p.statusOpen = true
	fmt.Fprintf(os.Stderr, "\r%-*s", p.columns-1, truncateText(msg, p.columns-1))
}

// StatusEnd terminates an in-place status line.
func (p *Printer) StatusEnd() {
	p.endStatus()
}

func (p *Printer) endStatus() {
	if p.statusOpen {
		p.statusOpen = false
		fmt.Fprint(os.Stderr, "\n")
	}
}

func (p *Printer) progressLine(prefix string, current, total int64, elapsed time.Duration) string {
	speed := ""
	if elapsed > 0 {
		speed = humanBytes(int64(float64(current)/elapsed.Seconds())) + "/s"
	}

	if total > 0 {
		percent := float64(current) * 100 / float64(total)
		return fmt.Sprintf("%s %6.2f%% %s / %s %s",
			prefix,
			percent,
			padLeft(humanBytes(current), 9),
			padLeft(humanBytes(total), 9),
			padLeft(speed, 10),
		)
	}

	return fmt.Sprintf("%s %s %s",
		prefix,
		padLeft(humanBytes(current), 9),
		padLeft(speed, 10),
	)
}

func (p *Printer) writeProgressLine(line string) {
	if p.quiet {
		return
	}
	p.statusOpen = true
	fmt.Fprintf(os.Stderr, "\r%s", truncateText(line, p.columns-1))
}

func (p *Printer) Result(label string, bytes int64, path string) {
	if p.quiet {
		return
	}
	p.endStatus()
	fmt.Fprintf(os.Stderr, "%s %s %s %s\n",
		p.colorize("OK", colorGreen), label, padLeft(humanBytes(bytes), 9), path)
}

func (p *Printer) colorize(text, color string) string {
	if !p.color || color == "" {
		return text
	}
	return color + text + colorReset
}

func padLeft(value string, width int) string {
	if len(value) >= width {
		return value
	}
	return strings.Repeat(" ", width-len(value)) + value
}

func truncateText(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}
	if max <= 3 {
		return text[:max]
	}
	return text[:max-3] + "..."
}

func terminalColumns() int {
	if columns := os.Getenv("COLUMNS"); columns != "" {
		if val, err := strconv.Atoi(columns); err == nil && val > 0 {
			return val
		}
	}
	return 0
}

func supportsColor() bool {
	if os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" {
		return false
	}
	if os.Getenv("FORCE_COLOR") != "" || os.Getenv("CLICOLOR_FORCE") != "" {
		return true
	}
	if os.Getenv("CLICOLOR") == "0" {
		return false
	}
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

const (
	colorReset  = "\x1b[0m"
	colorGreen  = "\x1b[32m"
	colorRed    = "\x1b[31m"
	colorYellow = "\x1b[33m"
)
