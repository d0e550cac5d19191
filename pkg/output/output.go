package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
)

const bannerRule = "=================================================="

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warnColor    = color.New(color.FgYellow)
)

// Fprintf writes plain progress output.
func Fprintf(w io.Writer, format string, a ...interface{}) {
	_, _ = fmt.Fprintf(w, format, a...)
}

// SuccessBanner writes the framed success banner.
func SuccessBanner(w io.Writer, message string) {
	_, _ = fmt.Fprintln(w, bannerRule)
	_, _ = successColor.Fprintf(w, "✅ SUCCESS: %s\n", message)
	_, _ = fmt.Fprintln(w, bannerRule)
}

// Success writes a one-line success message.
func Success(w io.Writer, format string, a ...interface{}) {
	_, _ = successColor.Fprintf(w, "✓ "+format+"\n", a...)
}

func Error(w io.Writer, format string, a ...interface{}) {
	_, _ = errorColor.Fprintf(w, "✗ "+format+"\n", a...)
}

func Warn(w io.Writer, format string, a ...interface{}) {
	_, _ = warnColor.Fprintf(w, "⚠ "+format+"\n", a...)
}

// JSON writes v as indented JSON.
func JSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
