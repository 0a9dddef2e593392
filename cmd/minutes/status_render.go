package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"minutes/internal/pipeline"
	"minutes/internal/tasks"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
	progressBarWidth = 24
)

var titleCaser = cases.Title(language.English)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := statusKindLabel(kind)
	if message != "" {
		statusText = fmt.Sprintf("[%s] %s", statusText, message)
	} else {
		statusText = fmt.Sprintf("[%s]", statusText)
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// stageLabel is the display name of the stage running at progress.
func stageLabel(progress int) string {
	stage := pipeline.StageAt(progress)
	if stage == "" {
		return "Done"
	}
	return titleCaser.String(stage)
}

func taskStatusLabel(status tasks.Status) string {
	return titleCaser.String(string(status))
}

func taskStatusKind(status tasks.Status) statusKind {
	switch status {
	case tasks.StatusCompleted:
		return statusOK
	case tasks.StatusFailed:
		return statusError
	case tasks.StatusProcessing:
		return statusWarn
	default:
		return statusInfo
	}
}

// progressPrinter renders pipeline progress. On a terminal it redraws one
// bar in place; otherwise it prints a line whenever the stage changes.
type progressPrinter struct {
	out io.Writer
	tty bool

	mu        sync.Mutex
	lastLabel string
	drawn     bool
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	return &progressPrinter{out: out, tty: shouldColorize(out)}
}

func (p *progressPrinter) update(progress int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	label := stageLabel(progress)
	if p.tty {
		fmt.Fprintf(p.out, "\r%s %3d%% %-12s", renderProgressBar(progress, progressBarWidth), progress, label)
		p.drawn = true
		return
	}
	if label == p.lastLabel {
		return
	}
	p.lastLabel = label
	fmt.Fprintf(p.out, "[%3d%%] %s\n", progress, label)
}

func (p *progressPrinter) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tty && p.drawn {
		fmt.Fprintln(p.out)
		p.drawn = false
	}
}

func renderProgressBar(progress, width int) string {
	progress = min(max(progress, 0), 100)
	filled := progress * width / 100
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}
