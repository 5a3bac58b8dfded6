package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	clrBrand = lipgloss.Color("69") // blue-violet
	clrGreen = lipgloss.Color("114")
	clrRed   = lipgloss.Color("203")
	clrCyan  = lipgloss.Color("81")
	clrDim   = lipgloss.Color("245")
	clrWhite = lipgloss.Color("255")
)

// styles wraps lipgloss renderers that respect TTY detection. When output is
// not a terminal, styling is disabled and raw text is emitted.
type styles struct {
	enabled bool

	Brand lipgloss.Style
	Green lipgloss.Style
	Red   lipgloss.Style
	Dim   lipgloss.Style

	Header lipgloss.Style
	Key    lipgloss.Style
	Value  lipgloss.Style
	URL    lipgloss.Style
	Error  lipgloss.Style
}

func newStyles(w io.Writer) styles {
	enabled := false
	if f, ok := w.(*os.File); ok {
		enabled = term.IsTerminal(int(f.Fd()))
	}

	s := styles{enabled: enabled}
	if !enabled {
		noop := lipgloss.NewStyle()
		s.Brand, s.Green, s.Red, s.Dim = noop, noop, noop, noop
		s.Header, s.Key, s.Value, s.URL, s.Error = noop, noop, noop, noop, noop
		return s
	}

	s.Brand = lipgloss.NewStyle().Foreground(clrBrand)
	s.Green = lipgloss.NewStyle().Foreground(clrGreen)
	s.Red = lipgloss.NewStyle().Foreground(clrRed)
	s.Dim = lipgloss.NewStyle().Foreground(clrDim)

	s.Header = lipgloss.NewStyle().Bold(true).Foreground(clrBrand)
	s.Key = lipgloss.NewStyle().Foreground(clrDim)
	s.Value = lipgloss.NewStyle().Foreground(clrWhite)
	s.URL = lipgloss.NewStyle().Foreground(clrCyan).Underline(true)
	s.Error = lipgloss.NewStyle().Foreground(clrRed).Bold(true)

	return s
}

func (s styles) banner() string {
	if !s.enabled {
		return "el2mcp"
	}
	return s.Brand.Render("el2mcp")
}

// kv formats a key-value pair like "  Key:  value".
func (s styles) kv(key, value string) string {
	if !s.enabled {
		return fmt.Sprintf("  %-14s %s", key+":", value)
	}
	return fmt.Sprintf("  %s %s",
		s.Key.Render(fmt.Sprintf("%-14s", key+":")),
		s.Value.Render(value),
	)
}

func (s styles) url(text string) string {
	if !s.enabled {
		return text
	}
	return s.URL.Render(text)
}

func (s styles) errPrefix() string {
	if !s.enabled {
		return "ERROR:"
	}
	return s.Error.Render("ERROR:")
}
