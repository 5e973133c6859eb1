package transform

import (
	"bytes"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"pixelmill/internal/config"
	"pixelmill/internal/logging"
)

// Transformer decodes source images, scales them down to a bounded width, and
// re-encodes them as reduced-quality JPEGs in the output directory.
type Transformer struct {
	outputDir string
	maxWidth  int
	quality   int
	logger    *slog.Logger
}

// NewTransformer builds a transformer from the configured image parameters.
func NewTransformer(cfg *config.Config, logger *slog.Logger) *Transformer {
	return &Transformer{
		outputDir: cfg.Paths.OutputDir,
		maxWidth:  cfg.Images.MaxWidth,
		quality:   cfg.Images.JPEGQuality,
		logger:    logging.NewComponentLogger(logger, "transform"),
	}
}

// OutputName builds the deterministic filename for one source image. Encoding
// batch, serial, and index into the name keeps concurrent items from
// colliding and makes re-runs overwrite their own previous output.
func OutputName(batchID, serialNumber string, index int) string {
	return fmt.Sprintf("%s_%s_%d.jpg", sanitizeSegment(batchID), sanitizeSegment(serialNumber), index)
}

// Transform decodes data, resizes it so width does not exceed the configured
// maximum while preserving aspect ratio, and writes it as a JPEG under
// filename. It returns the full path of the written file. Decode and encode
// failures (corrupt input, unsupported format) are returned as error values.
func (t *Transformer) Transform(data []byte, filename string) (string, error) {
	src, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	var processed image.Image = src
	if src.Bounds().Dx() > t.maxWidth {
		// Zero height lets imaging preserve the aspect ratio.
		processed = imaging.Resize(src, t.maxWidth, 0, imaging.Lanczos)
	}

	path := filepath.Join(t.outputDir, filename)
	if err := imaging.Save(processed, path, imaging.JPEGQuality(t.quality)); err != nil {
		return "", fmt.Errorf("save image: %w", err)
	}

	t.logger.Debug("image transformed",
		logging.String("file", filename),
		logging.Int("width", processed.Bounds().Dx()),
		logging.Int("height", processed.Bounds().Dy()),
	)
	return path, nil
}

func sanitizeSegment(value string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_':
			return r
		default:
			return '-'
		}
	}, strings.TrimSpace(value))
}
