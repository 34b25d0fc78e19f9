package objectclient

import (
	"fmt"
	"path"
	"strings"

	"github.com/markdave123-py/Ledgerlens/internal/internalerr"
)

// assetKey joins namespace and name into a slash-separated key. Both parts
// must be single, non-empty path segments.
func assetKey(namespace, name string) (string, error) {
	for _, part := range []string{namespace, name} {
		if part == "" || part == "." || part == ".." || strings.ContainsAny(part, `/\`) {
			return "", fmt.Errorf("%w: bad asset path segment %q", internalerr.ErrInvalidInput, part)
		}
	}
	return path.Join(namespace, name), nil
}

// ContentTypeFor guesses a content type from the key's extension.
func ContentTypeFor(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".pdf":
		return "application/pdf"
	case ".html", ".htm":
		return "text/html"
	case ".md", ".markdown":
		return "text/markdown"
	case ".txt":
		return "text/plain"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	}
	return "application/octet-stream"
}
