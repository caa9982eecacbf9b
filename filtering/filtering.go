package filtering

import (
	"os"
	"path"
	"path/filepath"
)

// IgnoredPaths are OS and VCS leftovers that are never
// packages, nor meaningful package content.
var IgnoredPaths = []string{
	".git",
	".hg",
	".svn",
	".DS_Store",
	"__MACOSX",
	"._*",
	"Thumbs.db",
	"desktop.ini",
	"*.curator-tmp",
}

// FilterPaths filters out known bad folder/files
// which curator should just ignore when scanning
func FilterPaths(fileInfo os.FileInfo) bool {
	return keep(fileInfo.Name())
}

// FilterEntry is like FilterPaths, for entry names inside a
// container: any ignored segment excludes the entry.
func FilterEntry(name string) bool {
	for name != "" && name != "." && name != "/" {
		if !keep(path.Base(name)) {
			return false
		}
		name = path.Dir(name)
	}
	return true
}

func keep(name string) bool {
	for _, pattern := range IgnoredPaths {
		match, _ := filepath.Match(pattern, name)
		if match {
			return false
		}
	}
	return true
}
