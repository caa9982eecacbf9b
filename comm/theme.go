package comm

import (
	"os"
	"runtime"
	"strings"
)

// Theme contains the signs printed in front of operations and stats
type Theme struct {
	OpSign   string
	StatSign string
}

var themes = map[string]*Theme{
	"unicode": {"•", "✓"},
	"ascii":   {">", "<"},
	"cp437":   {"∙", "√"},
}

func getCharset() string {
	if runtime.GOOS == "windows" && os.Getenv("OS") != "CYGWIN" {
		return "cp437"
	}

	var utf8 = ".UTF-8"
	if strings.Contains(os.Getenv("LC_ALL"), utf8) ||
		os.Getenv("LC_CTYPE") == "UTF-8" ||
		strings.Contains(os.Getenv("LANG"), utf8) {
		return "unicode"
	}

	return "ascii"
}

var theme = themes[getCharset()]

// GetTheme returns the theme used to prefix output
func GetTheme() *Theme {
	return theme
}
