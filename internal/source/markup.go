package source

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nitesh/exchange_reviews/internal/config"
	"github.com/nitesh/exchange_reviews/internal/logger"
	"github.com/nitesh/exchange_reviews/pkg/models"
)

// Markup extracts review cards from a saved HTML page.
type Markup struct {
	cfg config.MarkupConfig
	log *logger.Logger
}

func NewMarkup(cfg config.MarkupConfig, log *logger.Logger) *Markup {
	if log == nil {
		log = logger.Nop()
	}
	return &Markup{cfg: cfg, log: log.With("source", "markup")}
}

func (m *Markup) Name() string { return "markup" }

func (m *Markup) Produce(ctx context.Context) ([]models.RawReview, error) {
	f, err := os.Open(m.cfg.Path)
	if err != nil {
		return []models.RawReview{}, fmt.Errorf("%w: open %s: %v", models.ErrSourceUnavailable, m.cfg.Path, err)
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return []models.RawReview{}, fmt.Errorf("%w: parse %s: %v", models.ErrSourceUnavailable, m.cfg.Path, err)
	}
	if err := ctx.Err(); err != nil {
		return []models.RawReview{}, err
	}
	return m.extract(doc), nil
}

func (m *Markup) extract(doc *goquery.Document) []models.RawReview {
	out := []models.RawReview{}
	skipped := 0

	doc.Find(m.cfg.Container).Each(func(i int, card *goquery.Selection) {
		entity := text(card, m.cfg.Entity)
		body := text(card, m.cfg.Body)
		if entity == "" || body == "" {
			skipped++
			return
		}
		out = append(out, models.RawReview{
			EntityName: entity,
			Region:     text(card, m.cfg.Region),
			FreeText:   body,
			SourceKind: models.SourceScraped,
		})
	})

	m.log.Debug("markup source read", "path", m.cfg.Path, "cards", len(out), "skipped", skipped)
	return out
}

func text(card *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.TrimSpace(card.Find(selector).First().Text())
}
