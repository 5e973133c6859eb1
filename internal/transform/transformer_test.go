package transform_test

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	"pixelmill/internal/logging"
	"pixelmill/internal/testsupport"
	"pixelmill/internal/transform"
)

func newTransformer(t *testing.T) *transform.Transformer {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	return transform.NewTransformer(cfg, logging.NewNop())
}

func decodeDimensions(t *testing.T, path string) (int, int) {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer file.Close()
	cfg, _, err := image.DecodeConfig(file)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	return cfg.Width, cfg.Height
}

func TestTransformResizesWideImages(t *testing.T) {
	tr := newTransformer(t)
	data := testsupport.JPEGBytes(t, 1600, 400)

	path, err := tr.Transform(data, transform.OutputName("batch-1", "7", 0))
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	if filepath.Base(path) != "batch-1_7_0.jpg" {
		t.Fatalf("unexpected output name: %s", path)
	}

	width, height := decodeDimensions(t, path)
	if width != 800 {
		t.Fatalf("expected width 800, got %d", width)
	}
	if height != 200 {
		t.Fatalf("expected aspect preserved (height 200), got %d", height)
	}
}

func TestTransformKeepsSmallImages(t *testing.T) {
	tr := newTransformer(t)
	data := testsupport.JPEGBytes(t, 300, 150)

	path, err := tr.Transform(data, transform.OutputName("batch-1", "7", 1))
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	width, height := decodeDimensions(t, path)
	if width != 300 || height != 150 {
		t.Fatalf("expected original dimensions, got %dx%d", width, height)
	}
}

func TestTransformRejectsCorruptInput(t *testing.T) {
	tr := newTransformer(t)
	if _, err := tr.Transform([]byte("this is not an image"), "bad.jpg"); err == nil {
		t.Fatal("expected decode error for corrupt input")
	}
}

func TestTransformOverwritesDeterministically(t *testing.T) {
	tr := newTransformer(t)
	name := transform.OutputName("batch-1", "7", 0)

	first, err := tr.Transform(testsupport.JPEGBytes(t, 1600, 400), name)
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	second, err := tr.Transform(testsupport.JPEGBytes(t, 300, 150), name)
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	if first != second {
		t.Fatalf("expected identical output path, got %s and %s", first, second)
	}
	width, _ := decodeDimensions(t, second)
	if width != 300 {
		t.Fatalf("expected second write to win, got width %d", width)
	}
}

func TestOutputNameSanitizesSegments(t *testing.T) {
	name := transform.OutputName("batch/1", "s no. 2", 3)
	if name != "batch-1_s-no--2_3.jpg" {
		t.Fatalf("unexpected sanitized name: %s", name)
	}
}
