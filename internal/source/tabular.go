package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/nitesh/exchange_reviews/internal/config"
	"github.com/nitesh/exchange_reviews/internal/logger"
	"github.com/nitesh/exchange_reviews/pkg/models"
)

const (
	fieldEntity = "entity_name"
	fieldRegion = "region"
	fieldText   = "free_text"
	fieldKind   = "source_kind"
)

// Tabular reads a CSV export whose first row holds the column headers.
type Tabular struct {
	path    string
	columns map[string]string
	log     *logger.Logger
}

func NewTabular(cfg config.TabularConfig, log *logger.Logger) *Tabular {
	if log == nil {
		log = logger.Nop()
	}
	columns := map[string]string{}
	for _, f := range []string{fieldEntity, fieldRegion, fieldText, fieldKind} {
		columns[f] = f
	}
	renames := cfg.Columns
	if renames == nil {
		renames = config.DefaultColumns()
	}
	for header, field := range renames {
		columns[normalizeHeader(header)] = field
	}
	return &Tabular{path: cfg.Path, columns: columns, log: log.With("source", "tabular")}
}

func (t *Tabular) Name() string { return "tabular" }

func (t *Tabular) Produce(ctx context.Context) ([]models.RawReview, error) {
	f, err := os.Open(t.path)
	if err != nil {
		return []models.RawReview{}, fmt.Errorf("%w: open %s: %v", models.ErrSourceUnavailable, t.path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return []models.RawReview{}, fmt.Errorf("%w: read header of %s: %v", models.ErrSourceUnavailable, t.path, err)
	}
	index := map[string]int{}
	for i, h := range header {
		if field, ok := t.columns[normalizeHeader(h)]; ok {
			if _, dup := index[field]; !dup {
				index[field] = i
			}
		}
	}
	if _, ok := index[fieldText]; !ok {
		return []models.RawReview{}, fmt.Errorf("%w: %s has no free text column", models.ErrSourceUnavailable, t.path)
	}

	out := []models.RawReview{}
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return []models.RawReview{}, err
		}
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return []models.RawReview{}, fmt.Errorf("%w: %s line %d: %v", models.ErrSourceUnavailable, t.path, line, err)
		}

		rec := models.RawReview{
			EntityName: cell(row, index, fieldEntity),
			Region:     cell(row, index, fieldRegion),
			FreeText:   cell(row, index, fieldText),
			SourceKind: models.SourceSurvey,
		}
		if kind := models.SourceKind(cell(row, index, fieldKind)); kind.Valid() {
			rec.SourceKind = kind
		}
		out = append(out, rec)
	}

	t.log.Debug("tabular source read", "path", t.path, "rows", len(out))
	return out, nil
}

func cell(row []string, index map[string]int, field string) string {
	i, ok := index[field]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
}
