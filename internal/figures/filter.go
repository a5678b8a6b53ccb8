package figures

import "github.com/dgallion1/groundtruth/internal/document"

// FilterConfig drops decorative images before they reach the vision model.
// Zero values disable a check.
type FilterConfig struct {
	MinWidth       int
	MinHeight      int
	MinBytes       int
	MaxAspectRatio float64
}

// DefaultFilter skips bullets, dots, rules and tiny icons.
func DefaultFilter() FilterConfig {
	return FilterConfig{
		MinWidth:       50,
		MinHeight:      50,
		MinBytes:       2000,
		MaxAspectRatio: 12,
	}
}

// FilterImages returns the images worth describing, in input order. Images
// without data, or with duplicate indices, are skipped. Unknown dimensions
// (zero) pass the size checks.
func FilterImages(images []document.Image, cfg FilterConfig) []document.Image {
	seen := make(map[int]bool, len(images))
	var out []document.Image
	for _, img := range images {
		if len(img.Data) == 0 || seen[img.Index] {
			continue
		}
		if cfg.MinBytes > 0 && len(img.Data) < cfg.MinBytes {
			continue
		}
		if img.Width > 0 && img.Height > 0 {
			if img.Width < cfg.MinWidth || img.Height < cfg.MinHeight {
				continue
			}
			long, short := max(img.Width, img.Height), max(min(img.Width, img.Height), 1)
			if cfg.MaxAspectRatio > 0 && float64(long)/float64(short) > cfg.MaxAspectRatio {
				continue
			}
		}
		seen[img.Index] = true
		out = append(out, img)
	}
	return out
}
