package ingestion_engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"

	"github.com/markdave123-py/Ledgerlens/internal/core/parser"
)

// documentNamespace scopes name-based document ids.
var documentNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("ledgerlens/documents"))

// DocumentID is the stable id of a file within a quarter.
func DocumentID(quarter, filename string) string {
	return uuid.NewSHA1(documentNamespace, []byte(quarter+"/"+filename)).String()
}

// QuarterFromPath names the quarter after the file's parent directory.
func QuarterFromPath(path string) string {
	dir := filepath.Base(filepath.Dir(path))
	if dir == "." || dir == string(filepath.Separator) {
		return ""
	}
	return dir
}

// DiscoverSources lists supported files under root matching a doublestar
// pattern such as "**/*.pdf", sorted by path.
func DiscoverSources(root, pattern string) ([]Source, error) {
	if pattern == "" {
		pattern = "**/*.pdf"
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("bad source pattern %q", pattern)
	}
	matches, err := doublestar.Glob(os.DirFS(root), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	sort.Strings(matches)

	out := make([]Source, 0, len(matches))
	for _, m := range matches {
		if !parser.IsSupportedExtension(m) {
			continue
		}
		path := filepath.Join(root, filepath.FromSlash(m))
		quarter := QuarterFromPath(path)
		name := filepath.Base(path)
		out = append(out, Source{
			DocumentID: DocumentID(quarter, name),
			FileName:   name,
			Quarter:    quarter,
			Path:       path,
			SourceType: SourceBatch,
		})
	}
	return out, nil
}
