package templates

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"ktxmacro.dev/ktx-macro-go/internal/models"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 20), G: uint8(y * 20), B: 128, A: 255})
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer file.Close()
	if err := png.Encode(file, img); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}

func writeLibraryFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const sampleLibrary = `templates:
  - name: ok_button
    path: buttons/ok.png
    threshold: 0.9
    preload: true
  - name: close_icon
    path: icons/close.png
    region:
      x1: 2
      y1: 2
      x2: 10
      y2: 10
`

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "buttons", "ok.png"), 12, 8)
	writePNG(t, filepath.Join(dir, "icons", "close.png"), 12, 12)
	path := writeLibraryFile(t, dir, "library.yaml", sampleLibrary)

	library := NewLibrary(dir)
	if err := library.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	if library.Count() != 2 {
		t.Fatalf("Count = %d, want 2", library.Count())
	}

	ok, found := library.Get("ok_button")
	if !found {
		t.Fatal("ok_button not registered")
	}
	if ok.Threshold != 0.9 {
		t.Errorf("threshold = %v, want 0.9", ok.Threshold)
	}
	if ok.Path != filepath.Join(dir, "buttons", "ok.png") {
		t.Errorf("path = %q, want it resolved against the base path", ok.Path)
	}

	closeIcon, _ := library.Get("close_icon")
	if closeIcon.Threshold != defaultThreshold {
		t.Errorf("threshold = %v, want the default %v", closeIcon.Threshold, defaultThreshold)
	}
	if closeIcon.Region == nil || closeIcon.Region.X2 != 10 {
		t.Errorf("region = %+v, want the crop preserved", closeIcon.Region)
	}

	names := library.List()
	if len(names) != 2 || names[0] != "close_icon" || names[1] != "ok_button" {
		t.Errorf("List = %v, want sorted names", names)
	}
}

func TestLoadFromFileValidation(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"missing name", "templates:\n  - path: a.png\n"},
		{"missing path", "templates:\n  - name: a\n"},
		{"bad yaml", "templates: [\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			path := writeLibraryFile(t, dir, "bad.yaml", tc.content)
			if err := NewLibrary(dir).LoadFromFile(path); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestLoadFromDirectory(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), 4, 4)
	writeLibraryFile(t, dir, "one.yaml", "templates:\n  - name: a\n    path: a.png\n")
	writeLibraryFile(t, dir, "two.yml", "templates:\n  - name: b\n    path: a.png\n")
	writeLibraryFile(t, dir, "ignored.txt", "not yaml")

	library := NewLibrary(dir)
	if err := library.LoadFromDirectory(dir); err != nil {
		t.Fatalf("LoadFromDirectory: %v", err)
	}
	if library.Count() != 2 {
		t.Errorf("Count = %d, want 2", library.Count())
	}
}

func TestImportInto(t *testing.T) {
	library := NewLibrary(t.TempDir()).WithoutImageCache()
	library.Register(Definition{Name: "ok_button", Path: "ok.png"})
	library.Register(Definition{Name: "cancel_button", Path: "cancel.png"})

	config := models.NewMacroConfig()
	config.AddImageTemplate(models.NewImageTemplate("ok_button", "existing.png", 0.7))

	added := library.ImportInto(config)
	if added != 1 {
		t.Errorf("ImportInto added %d templates, want 1", added)
	}
	if len(config.ImageTemplates) != 2 {
		t.Errorf("config has %d templates, want 2", len(config.ImageTemplates))
	}
}

func TestImageCacheLifecycle(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "ok.png"), 6, 6)

	cache := NewImageCache()
	if err := cache.Register(Definition{Name: "ok", Path: filepath.Join(dir, "ok.png")}, false); err != nil {
		t.Fatalf("Register: %v", err)
	}

	first, _, err := cache.Get("ok")
	if err != nil {
		t.Fatalf("first Get: %v", err)
	}
	second, _, err := cache.Get("ok")
	if err != nil {
		t.Fatalf("second Get: %v", err)
	}
	if first != second {
		t.Error("second Get returned a different buffer, want the cached one")
	}

	stats := cache.Stats()
	if stats.Loads != 1 || stats.Hits != 1 {
		t.Errorf("stats = %+v, want one load and one hit", stats)
	}

	cache.Release("ok")
	if got := cache.Stats().Unloads; got != 1 {
		t.Errorf("Unloads = %d, want 1", got)
	}

	third, _, err := cache.Get("ok")
	if err != nil {
		t.Fatalf("Get after release: %v", err)
	}
	if third == nil {
		t.Fatal("nil image after reload")
	}
}

func TestImageCacheScale(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "big.png"), 10, 10)

	cache := NewImageCache()
	cache.Register(Definition{Name: "big", Path: filepath.Join(dir, "big.png"), Scale: 0.5}, false)

	img, _, err := cache.Get("big")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got := img.Bounds().Dx(); got != 5 {
		t.Errorf("scaled width = %d, want 5", got)
	}
}

func TestPreloadAll(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "ok.png"), 4, 4)

	t.Run("loads marked entries", func(t *testing.T) {
		cache := NewImageCache()
		cache.Register(Definition{Name: "ok", Path: filepath.Join(dir, "ok.png")}, true)
		cache.Register(Definition{Name: "lazy", Path: filepath.Join(dir, "ok.png")}, false)

		if err := cache.PreloadAll(); err != nil {
			t.Fatalf("PreloadAll: %v", err)
		}
		if got := cache.Stats().Loads; got != 1 {
			t.Errorf("Loads = %d, want 1 (only the preload entry)", got)
		}
	})

	t.Run("reports missing files", func(t *testing.T) {
		cache := NewImageCache()
		cache.Register(Definition{Name: "gone", Path: filepath.Join(dir, "gone.png")}, true)

		if err := cache.PreloadAll(); err == nil {
			t.Error("expected an error for a missing file")
		}
		if got := cache.Stats().PreloadFailures; got != 1 {
			t.Errorf("PreloadFailures = %d, want 1", got)
		}
	})
}
