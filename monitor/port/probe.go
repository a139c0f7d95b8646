package port

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// matchExists reports whether a file matches probe. Only the last element
// of probe may hold * and ? wildcards, which match the way the Windows
// file system matches them: * any run of characters, ? any single one.
func matchExists(probe string) bool {
	base := filepath.Base(probe)
	if !strings.ContainsAny(base, "*?") {
		_, err := os.Lstat(probe)
		return err == nil
	}
	entries, err := os.ReadDir(filepath.Dir(probe))
	if err != nil {
		return false
	}
	fold := runtime.GOOS == "windows"
	for _, e := range entries {
		if wildcardMatch(base, e.Name(), fold) {
			return true
		}
	}
	return false
}

func wildcardMatch(pat, name string, fold bool) bool {
	if fold {
		pat = strings.ToLower(pat)
		name = strings.ToLower(name)
	}
	p, n := []rune(pat), []rune(name)
	pi, ni := 0, 0
	star, mark := -1, 0
	for ni < len(n) {
		switch {
		case pi < len(p) && (p[pi] == '?' || p[pi] == n[ni]):
			pi++
			ni++
		case pi < len(p) && p[pi] == '*':
			star, mark = pi, ni
			pi++
		case star >= 0:
			pi = star + 1
			mark++
			ni = mark
		default:
			return false
		}
	}
	for pi < len(p) && p[pi] == '*' {
		pi++
	}
	return pi == len(p)
}
