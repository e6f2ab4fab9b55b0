package utils

import (
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxFilenameLength caps sanitized names (in bytes, extension included).
const MaxFilenameLength = 120

const fallbackFilename = "file"

var reservedFilenames = map[string]bool{
	"con": true, "prn": true, "aux": true, "nul": true,
	"com1": true, "com2": true, "com3": true, "com4": true, "com5": true,
	"com6": true, "com7": true, "com8": true, "com9": true,
	"lpt1": true, "lpt2": true, "lpt3": true, "lpt4": true, "lpt5": true,
	"lpt6": true, "lpt7": true, "lpt8": true, "lpt9": true,
}

// SanitizeFilename turns a client-supplied name into a single safe path element:
// directories are stripped, control and shell-hostile characters dropped, leading dots
// removed (no hidden or relative names), reserved device names prefixed, and the length capped
// while keeping the extension.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}

	name = strings.Map(func(r rune) rune {
		switch {
		case r == utf8.RuneError, unicode.IsControl(r):
			return -1
		case strings.ContainsRune(`<>:"|?*`, r):
			return '_'
		case unicode.IsSpace(r):
			return ' '
		}
		return r
	}, name)

	name = strings.Trim(name, " .")
	if name == "" {
		return fallbackFilename
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if stem == "" {
		stem = fallbackFilename
	}
	if reservedFilenames[strings.ToLower(stem)] {
		stem = "_" + stem
	}

	if len(ext) > 16 {
		ext = ""
	}
	stem = truncateUTF8(stem, MaxFilenameLength-len(ext))
	return stem + strings.ToLower(ext)
}

func truncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return strings.TrimRight(s[:max], " .")
}
