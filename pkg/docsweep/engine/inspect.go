package engine

import (
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/charlievieth/fastwalk"

	"github.com/jamesainslie/docsweep/pkg/docsweep/types"
)

// maxEstimateSize bounds the files EstimatePages will read.
const maxEstimateSize = 256 * types.MiB

var (
	pageObject  = regexp.MustCompile(`/Type\s*/Page\b`)
	pagesReport = regexp.MustCompile(`(?i)\b(\d+)\s+pages?\b`)
)

var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// EstimatePages counts page objects in a PDF. It returns 0 for other files,
// unreadable files and files larger than 256 MiB.
func EstimatePages(path string) int {
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		return 0
	}
	info, err := os.Stat(path)
	if err != nil || info.Size() > maxEstimateSize {
		return 0
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	return len(pageObject.FindAllIndex(data, -1))
}

// ParsePages returns the last "<n> pages" count the engine printed, or 0.
func ParsePages(outputs ...[]byte) int {
	pages := 0
	for _, out := range outputs {
		for _, m := range pagesReport.FindAllSubmatch(out, -1) {
			if n, err := strconv.Atoi(string(m[1])); err == nil {
				pages = n
			}
		}
	}
	return pages
}

// CountImages counts image files anywhere under dir.
func CountImages(dir string) int {
	var count atomic.Int64
	conf := fastwalk.Config{Follow: false}
	_ = fastwalk.Walk(&conf, dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() && imageExts[strings.ToLower(filepath.Ext(d.Name()))] {
			count.Add(1)
		}
		return nil
	})
	return int(count.Load())
}
