package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/afero"

	xerrors "meteorite-explorer/internal/errors"
	"meteorite-explorer/internal/meteorite"
	"meteorite-explorer/pkg/logger"
)

// DefaultBatchSize is the number of records handed to the target at once.
const DefaultBatchSize = 500

// Target receives parsed records. *meteorite.Service implements it.
type Target interface {
	Import(ctx context.Context, records []meteorite.Meteorite, origin string, skipped int) error
	Count(ctx context.Context) (int64, error)
}

// Importer loads CSV files from a filesystem into a Target.
type Importer struct {
	fs        afero.Fs
	target    Target
	batchSize int
	log       *slog.Logger
}

// ImporterOption customizes an Importer.
type ImporterOption func(*Importer)

// WithFs replaces the OS filesystem.
func WithFs(fs afero.Fs) ImporterOption {
	return func(i *Importer) {
		if fs != nil {
			i.fs = fs
		}
	}
}

// WithBatchSize sets how many records go into one Import call.
func WithBatchSize(n int) ImporterOption {
	return func(i *Importer) {
		if n > 0 {
			i.batchSize = n
		}
	}
}

// NewImporter creates an Importer writing into target.
func NewImporter(target Target, opts ...ImporterOption) *Importer {
	i := &Importer{
		fs:        afero.NewOsFs(),
		target:    target,
		batchSize: DefaultBatchSize,
		log:       logger.Named("ingest"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(i)
		}
	}
	return i
}

// Load parses the CSV at path without importing it.
func (i *Importer) Load(path string) ([]meteorite.Meteorite, Report, error) {
	file, err := i.fs.Open(path)
	if err != nil {
		return nil, Report{Origin: path}, xerrors.Wrap(meteorite.CodeImportFailure, err, fmt.Sprintf("open %s", path))
	}
	defer file.Close()

	records, report, err := Parse(file)
	report.Origin = path
	if err != nil {
		return nil, report, xerrors.Wrap(meteorite.CodeImportFailure, err, fmt.Sprintf("parse %s", path))
	}
	return records, report, nil
}

// ImportFile parses path and imports its records in batches. Rejected rows
// are counted in the report and do not fail the import.
func (i *Importer) ImportFile(ctx context.Context, path string) (Report, error) {
	records, report, err := i.Load(path)
	if err != nil {
		return report, err
	}

	for start := 0; start < len(records); start += i.batchSize {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		end := min(start+i.batchSize, len(records))
		skipped := 0
		if end == len(records) {
			skipped = report.Skipped
		}
		if err := i.target.Import(ctx, records[start:end], path, skipped); err != nil {
			return report, err
		}
		report.Imported = end
	}

	attrs := []any{
		slog.String("path", path),
		slog.Int("rows", report.Rows),
		slog.Int("imported", report.Imported),
		slog.Int("skipped", report.Skipped),
	}
	if rowErr := report.Err(); rowErr != nil {
		i.log.WarnContext(ctx, "import finished with rejected rows", append(attrs, slog.Any("error", rowErr))...)
	} else {
		i.log.InfoContext(ctx, "import finished", attrs...)
	}
	return report, nil
}

// ImportIfEmpty imports path only when the target holds no records. It
// reports whether an import ran.
func (i *Importer) ImportIfEmpty(ctx context.Context, path string) (bool, Report, error) {
	count, err := i.target.Count(ctx)
	if err != nil {
		return false, Report{Origin: path}, err
	}
	if count > 0 {
		i.log.InfoContext(ctx, "dataset already loaded, skipping startup import", slog.Int64("records", count))
		return false, Report{Origin: path}, nil
	}
	report, err := i.ImportFile(ctx, path)
	return err == nil, report, err
}
