package figures

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/groundtruth/internal/document"
	"github.com/dgallion1/groundtruth/internal/llm"
)

// DefaultConcurrency bounds simultaneous vision calls.
const DefaultConcurrency = 6

const notAFigure = "NOT_A_FIGURE"

// Describer turns embedded images into figure descriptions.
type Describer struct {
	vision      llm.Vision
	filter      FilterConfig
	concurrency int
	log         *slog.Logger
}

func NewDescriber(vision llm.Vision, filter FilterConfig, concurrency int, log *slog.Logger) *Describer {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if log == nil {
		log = slog.Default()
	}
	return &Describer{vision: vision, filter: filter, concurrency: concurrency, log: log}
}

// Describe sends each usable image to the vision model. Images the model
// rejects as non-figures are dropped. A failed call drops only that image;
// complete is false when any call failed. Results are ordered by image index.
func (d *Describer) Describe(ctx context.Context, images []document.Image) (descs []document.FigureDescription, complete bool) {
	kept := FilterImages(images, d.filter)
	if skipped := len(images) - len(kept); skipped > 0 {
		d.log.Info("skipped non-figure images", "skipped", skipped, "kept", len(kept))
	}
	if len(kept) == 0 {
		return nil, true
	}

	ctx = llm.WithOperation(ctx, "vision")

	var (
		mu     sync.Mutex
		out    []document.FigureDescription
		failed int
	)
	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for _, img := range kept {
		img := img
		g.Go(func() error {
			text, err := d.vision.DescribeImage(ctx, img.Data, img.Caption)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				d.log.Warn("figure description failed", "index", img.Index, "page", img.Page, "error", err)
				return nil
			}
			if strings.Contains(text, notAFigure) {
				d.log.Info("vision model rejected image", "index", img.Index, "page", img.Page)
				return nil
			}
			out = append(out, document.FigureDescription{
				Index:       img.Index,
				Page:        img.Page,
				Caption:     img.Caption,
				Description: text,
			})
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	d.log.Info("described figures", "described", len(out), "failed", failed, "total", len(kept))
	return out, failed == 0
}
