// Package csvfile persists listing sequences as delimited UTF-8 rows.
package csvfile

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/listingharvest/crawler/internal/crawler"
)

var header = []string{"name", "website", "phone", "categories", "region", "relocated"}

// Writer saves listings to a single CSV file with a fixed column order.
type Writer struct {
	path   string
	logger *zap.Logger
}

// NewWriter returns a Writer targeting path. Parent directories are created
// on write.
func NewWriter(path string, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{path: path, logger: logger}
}

// Write persists the listings, replacing any existing file at the target
// path. One header row precedes the data rows.
func (w *Writer) Write(ctx context.Context, listings []crawler.Listing) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
	}
	if dir := filepath.Dir(w.path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create output dir %s: %w", dir, err)
		}
	}

	f, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("create %s: %w", w.path, err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, l := range listings {
		row := []string{l.Name, l.Website, l.Phone, l.Categories, l.Region, strconv.FormatBool(l.Relocated)}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row for %q: %w", l.Name, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", w.path, err)
	}

	w.logger.Info("saved listings", zap.String("path", w.path), zap.Int("count", len(listings)))
	return nil
}
