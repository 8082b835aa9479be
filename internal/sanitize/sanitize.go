// Package sanitize turns arbitrary job/task names into filesystem-safe paths.
package sanitize

import (
	"path/filepath"
	"strings"
)

const invalidChars = `<>"/\|?*`

// Name applies the artifact-layout sanitization rules: ':' becomes ' -',
// and the characters in invalidChars are stripped outright.
func Name(s string) string {
	s = strings.ReplaceAll(s, ":", " -")
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(invalidChars, r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}

// Stem returns the sanitized name without its file extension, used to derive
// the ".downloading" parts-folder name alongside the final artifact.
func Stem(filename string) string {
	sanitized := Name(filename)
	ext := filepath.Ext(sanitized)
	return strings.TrimSuffix(sanitized, ext)
}

// PartsFolderName returns the sibling directory name segments are downloaded
// into before reassembly.
func PartsFolderName(filename string) string {
	return Stem(filename) + ".downloading"
}
