package main

import (
	"fmt"
	"os"
)

// ANSI styling for CLI feedback. All feedback goes to stderr so command
// output (advice text, config values) stays pipeable on stdout.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor || os.Getenv("NO_COLOR") != "" {
		return text
	}
	return color + text + colorReset
}

// marked prints a colored, symbol-prefixed line to stderr.
func marked(color, mark, format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(color, mark+" "+fmt.Sprintf(format, args...)))
}

func printSuccess(format string, args ...any) { marked(colorGreen, "✓", format, args...) }
func printError(format string, args ...any)   { marked(colorRed, "✗", format, args...) }
func printWarning(format string, args ...any) { marked(colorYellow, "⚠", format, args...) }
func printStep(format string, args ...any)    { marked(colorCyan, "→", format, args...) }

// printStatus renders an indented "Label: value" line, label in bold.
func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	fmt.Fprintf(os.Stderr, "  %s %s\n", colorize(colorBold, label+":"), val)
}
