// Package services maps inbound text to catalog service links and renders
// the interactive service menu.
package services

import (
	"log/slog"

	"github.com/omalmisr/omal-responder/internal/catalog"
	"github.com/omalmisr/omal-responder/internal/models"
	"github.com/omalmisr/omal-responder/pkg/textutil"
)

type bucket struct {
	service models.ServicePointer
	phrases []textutil.Phrase
}

// Detector finds the first service whose keyword bucket matches.
type Detector struct {
	buckets []bucket
	ignore  []textutil.Phrase
	logger  *slog.Logger
}

// NewDetector compiles the catalog's service keyword buckets in order.
// Buckets are resolved against the service tree once; the catalog is
// validated so every bucket has a target with a URL.
func NewDetector(cat *catalog.Catalog, logger *slog.Logger) *Detector {
	d := &Detector{
		ignore: textutil.CompilePhrases(cat.DetectionIgnore),
		logger: logger,
	}
	for _, b := range cat.ServiceKeywords {
		svc, ok := cat.Service(b.Service)
		if !ok {
			logger.Warn("service bucket without target", "service", b.Service)
			continue
		}
		svc.Submenu = nil
		d.buckets = append(d.buckets, bucket{service: svc, phrases: textutil.CompilePhrases(b.Keywords)})
	}
	return d
}

// Detect returns the service for the first matching bucket, or nil.
func (d *Detector) Detect(text string) *models.ServicePointer {
	tokens := textutil.StripPhrases(textutil.Tokenize(text), d.ignore)
	for _, b := range d.buckets {
		if p, ok := textutil.FirstMatch(tokens, b.phrases); ok {
			svc := b.service
			d.logger.Debug("service detected", "service", svc.ID, "keyword", p.Raw)
			return &svc
		}
	}
	return nil
}
