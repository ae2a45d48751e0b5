// Package util holds small helpers shared by the codematch packages.
package util

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
)

// DefaultContentType is the tag used when nothing better can be inferred.
const DefaultContentType = "text"

// wellKnownFiles maps extension-less file names to a fence tag.
var wellKnownFiles = map[string]string{
	"makefile":    "makefile",
	"dockerfile":  "dockerfile",
	"gemfile":     "ruby",
	"rakefile":    "ruby",
	"jenkinsfile": "groovy",
	"vagrantfile": "ruby",
}

// ContentType infers a content-type tag for an artifact identifier from its
// file extension, or from the file name for well-known extension-less files.
// The tag is suitable as a Markdown code fence info string.
func ContentType(id string) string {
	base := filepath.Base(strings.ReplaceAll(id, `\`, "/"))
	if tag, ok := wellKnownFiles[strings.ToLower(base)]; ok {
		return tag
	}

	ext := strings.TrimPrefix(filepath.Ext(base), ".")
	// A leading dot marks a hidden file, not an extension.
	if ext == "" || "."+ext == base {
		return DefaultContentType
	}
	return strings.ToLower(ext)
}

// HashText returns a short, stable hex key for text.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:16]
}
