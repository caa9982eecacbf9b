package archive

import (
	"path"
	"path/filepath"
	"strings"
)

func CleanFileName(fileName string) string {
	// clean returns the shortest possible path,
	// resolving `..`, double separators etc.
	cleanedNative := filepath.Clean(fileName)

	// clean's output uses the native separator, so
	// `\` on windows.
	// output path should always use `/` separator
	cleanedSlash := filepath.ToSlash(cleanedNative)

	return cleanedSlash
}

// EntryName normalizes a raw entry name as found in a container:
// `/` separators, no trailing slash. Unlike CleanFileName, it doesn't
// resolve `..` so entries can be written back under their original name.
func EntryName(raw string) string {
	name := strings.Replace(raw, `\`, "/", -1)
	for strings.HasSuffix(name, "/") && len(name) > 1 {
		name = strings.TrimSuffix(name, "/")
	}
	return name
}

// NormalizeName resolves `.`, `..` and duplicate separators in an entry
// name and drops leading and trailing slashes: "./x//y/" => "x/y"
func NormalizeName(name string) string {
	return strings.Trim(path.Clean("/"+EntryName(name)), "/")
}

// Ancestors returns every directory prefix of name, outermost first,
// followed by name itself: "a/b/c" => ["a", "a/b", "a/b/c"]
func Ancestors(name string) []string {
	name = NormalizeName(name)
	if name == "" {
		return nil
	}

	var res []string
	for i, c := range name {
		if c == '/' {
			res = append(res, name[:i])
		}
	}
	return append(res, name)
}

// RelativePath turns an entry name into a package-relative path,
// dropping a synthetic top-level bracketed segment like "[root]/"
// that multi-root containers use.
func RelativePath(name string) string {
	name = strings.TrimPrefix(EntryName(name), "/")
	if strings.HasPrefix(name, "[") {
		if i := strings.Index(name, "/"); i > 0 && name[i-1] == ']' {
			return name[i+1:]
		}
	}
	return name
}
