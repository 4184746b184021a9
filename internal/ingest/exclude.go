package ingest

import (
	"path"
	"path/filepath"
	"strings"
)

// matchesAnyExclude reports whether relPath matches one of globs. Globs use
// "/" separators, "**" spans any number of segments and a trailing "/"
// matches everything below a directory.
func matchesAnyExclude(relPath string, globs []string) bool {
	target := cleanGlobPath(relPath)
	if target == "" {
		return false
	}
	isDir := strings.HasSuffix(target, "/")
	target = strings.TrimSuffix(target, "/")
	for _, glob := range globs {
		pattern := cleanGlobPath(glob)
		if pattern == "" {
			continue
		}
		if strings.HasSuffix(pattern, "/") {
			if isDir && matchSegments(strings.Split(strings.TrimSuffix(pattern, "/"), "/"), strings.Split(target, "/")) {
				return true
			}
			pattern += "**"
		}
		if matchSegments(strings.Split(pattern, "/"), strings.Split(target, "/")) {
			return true
		}
	}
	return false
}

func matchSegments(pattern, value []string) bool {
	for len(pattern) > 0 {
		if pattern[0] == "**" {
			rest := pattern[1:]
			if len(rest) == 0 {
				return true
			}
			for i := 0; i <= len(value); i++ {
				if matchSegments(rest, value[i:]) {
					return true
				}
			}
			return false
		}
		if len(value) == 0 {
			return false
		}
		if ok, err := path.Match(pattern[0], value[0]); err != nil || !ok {
			return false
		}
		pattern, value = pattern[1:], value[1:]
	}
	return len(value) == 0
}

func cleanGlobPath(raw string) string {
	raw = filepath.ToSlash(strings.TrimSpace(raw))
	raw = strings.TrimPrefix(raw, "./")
	return strings.TrimPrefix(raw, "/")
}
