package cv

import (
	"image"
	"image/color"
	"math"
	"testing"
)

// newFilledRGBA returns a w by h image with every pixel set to c.
func newFilledRGBA(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// pasteAt copies src into dst with its top-left corner at (x, y).
func pasteAt(dst, src *image.RGBA, x, y int) {
	b := src.Bounds()
	for sy := 0; sy < b.Dy(); sy++ {
		for sx := 0; sx < b.Dx(); sx++ {
			dst.SetRGBA(x+sx, y+sy, src.RGBAAt(b.Min.X+sx, b.Min.Y+sy))
		}
	}
}

// twoToneTemplate returns a template whose left half is dark and right half
// is light, giving the Otsu mask a clean foreground split.
func twoToneTemplate(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	dark := color.RGBA{R: 40, G: 60, B: 80, A: 255}
	light := color.RGBA{R: 200, G: 220, B: 240, A: 255}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x < w/2 {
				img.SetRGBA(x, y, dark)
			} else {
				img.SetRGBA(x, y, light)
			}
		}
	}
	return img
}

func TestMatchTemplateFindsEmbeddedTemplate(t *testing.T) {
	template := twoToneTemplate(8, 6)
	screenshot := newFilledRGBA(40, 30, color.RGBA{R: 90, G: 90, B: 90, A: 255})
	pasteAt(screenshot, template, 12, 9)

	result := MatchTemplate(screenshot, template, 0.99)

	if !result.Found {
		t.Fatalf("expected match, got confidence %.4f", result.Confidence)
	}
	if got, want := result.TopLeft, (image.Point{X: 12, Y: 9}); got != want {
		t.Errorf("TopLeft = %v, want %v", got, want)
	}
	if got, want := result.BottomRight, (image.Point{X: 20, Y: 15}); got != want {
		t.Errorf("BottomRight = %v, want %v", got, want)
	}
	if got, want := result.Center, (image.Point{X: 16, Y: 12}); got != want {
		t.Errorf("Center = %v, want %v", got, want)
	}
	if got, want := result.TemplateSize, (image.Point{X: 8, Y: 6}); got != want {
		t.Errorf("TemplateSize = %v, want %v", got, want)
	}
}

func TestMatchTemplateThresholdInclusive(t *testing.T) {
	template := twoToneTemplate(8, 6)
	screenshot := newFilledRGBA(40, 30, color.RGBA{R: 90, G: 90, B: 90, A: 255})
	pasteAt(screenshot, template, 5, 5)

	probe := MatchTemplate(screenshot, template, 0.5)
	if !probe.Found || probe.Confidence < 0.99 {
		t.Fatalf("probe match failed, confidence %.4f", probe.Confidence)
	}

	atThreshold := MatchTemplate(screenshot, template, probe.Confidence)
	if !atThreshold.Found {
		t.Errorf("confidence exactly at threshold should match")
	}

	aboveThreshold := MatchTemplate(screenshot, template, math.Nextafter(probe.Confidence, 2))
	if aboveThreshold.Found {
		t.Errorf("threshold above achieved confidence should not match")
	}
	if aboveThreshold.Confidence != probe.Confidence {
		t.Errorf("miss should still report achieved confidence %.6f, got %.6f", probe.Confidence, aboveThreshold.Confidence)
	}
}

func TestMatchTemplateMissReportsConfidence(t *testing.T) {
	template := twoToneTemplate(8, 6)
	screenshot := newFilledRGBA(40, 30, color.RGBA{R: 90, G: 90, B: 90, A: 255})

	result := MatchTemplate(screenshot, template, 0.999)

	if result.Found {
		t.Fatalf("expected miss, got match at %v", result.TopLeft)
	}
	if result.Confidence <= 0 || result.Confidence >= 0.999 {
		t.Errorf("miss confidence = %.4f, want in (0, 0.999)", result.Confidence)
	}
	if result.TopLeft != (image.Point{}) || result.Center != (image.Point{}) {
		t.Errorf("miss should carry zero geometry, got %v / %v", result.TopLeft, result.Center)
	}
}

func TestMatchTemplateRejectsBadDimensions(t *testing.T) {
	small := newFilledRGBA(4, 4, color.RGBA{R: 10, G: 10, B: 10, A: 255})
	large := newFilledRGBA(16, 16, color.RGBA{R: 10, G: 10, B: 10, A: 255})

	tests := []struct {
		name       string
		screenshot *image.RGBA
		template   *image.RGBA
	}{
		{"template larger than screenshot", small, large},
		{"nil screenshot", nil, small},
		{"nil template", small, nil},
		{"empty template", small, image.NewRGBA(image.Rect(0, 0, 0, 0))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := MatchTemplate(tt.screenshot, tt.template, 0.5)
			if result.Found {
				t.Errorf("expected no match")
			}
			if result.Confidence != 0 {
				t.Errorf("confidence = %.4f, want 0", result.Confidence)
			}
		})
	}
}

func TestMatchTemplateDegenerateMaskFallsBackUnmasked(t *testing.T) {
	// A uniform template yields an empty Otsu mask; matching must still work
	// over all pixels.
	template := newFilledRGBA(6, 4, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	screenshot := newFilledRGBA(20, 12, color.RGBA{R: 90, G: 30, B: 60, A: 255})
	pasteAt(screenshot, template, 7, 3)

	result := MatchTemplate(screenshot, template, 0.99)

	if !result.Found {
		t.Fatalf("expected unmasked fallback match, got confidence %.4f", result.Confidence)
	}
	if got, want := result.TopLeft, (image.Point{X: 7, Y: 3}); got != want {
		t.Errorf("TopLeft = %v, want %v", got, want)
	}
}

func TestMatchTemplateZeroDenominatorScoresZero(t *testing.T) {
	template := newFilledRGBA(6, 4, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	screenshot := newFilledRGBA(20, 12, color.RGBA{A: 255})

	result := MatchTemplate(screenshot, template, 0.8)

	if result.Found {
		t.Fatalf("expected miss on black screenshot")
	}
	if result.Confidence != 0 {
		t.Errorf("confidence = %.4f, want 0", result.Confidence)
	}
}

func TestMatchTemplateSquaredDiff(t *testing.T) {
	template := twoToneTemplate(8, 6)
	screenshot := newFilledRGBA(40, 30, color.RGBA{R: 90, G: 90, B: 90, A: 255})
	pasteAt(screenshot, template, 22, 11)

	result := MatchTemplate(screenshot, template, 0.99, WithMethod(MethodSquaredDiff))

	if !result.Found {
		t.Fatalf("expected match, got confidence %.4f", result.Confidence)
	}
	if got, want := result.TopLeft, (image.Point{X: 22, Y: 11}); got != want {
		t.Errorf("TopLeft = %v, want %v", got, want)
	}
}

func TestMatchTemplateUnmaskedOption(t *testing.T) {
	template := twoToneTemplate(8, 6)
	screenshot := newFilledRGBA(40, 30, color.RGBA{R: 90, G: 90, B: 90, A: 255})
	pasteAt(screenshot, template, 3, 14)

	result := MatchTemplate(screenshot, template, 0.99, Unmasked())

	if !result.Found {
		t.Fatalf("expected match, got confidence %.4f", result.Confidence)
	}
	if got, want := result.TopLeft, (image.Point{X: 3, Y: 14}); got != want {
		t.Errorf("TopLeft = %v, want %v", got, want)
	}
}

func TestOtsuThreshold(t *testing.T) {
	t.Run("bimodal", func(t *testing.T) {
		var hist [256]int
		hist[50] = 100
		hist[200] = 100
		if got := otsuThreshold(&hist, 200); got != 50 {
			t.Errorf("threshold = %d, want 50", got)
		}
	})

	t.Run("uniform", func(t *testing.T) {
		var hist [256]int
		hist[128] = 64
		if got := otsuThreshold(&hist, 64); got != 0 {
			t.Errorf("threshold = %d, want 0", got)
		}
	})

	t.Run("empty", func(t *testing.T) {
		var hist [256]int
		if got := otsuThreshold(&hist, 0); got != 0 {
			t.Errorf("threshold = %d, want 0", got)
		}
	})
}

func TestBuildTemplateMask(t *testing.T) {
	template := twoToneTemplate(8, 6)
	mask := buildTemplateMask(template)

	// The dark half binarizes to foreground on every channel.
	if mask.count != 4*6 {
		t.Errorf("mask count = %d, want %d", mask.count, 4*6)
	}
	for y := 0; y < 6; y++ {
		for x := 0; x < 8; x++ {
			want := uint8(0)
			if x < 4 {
				want = 255
			}
			if got := mask.combined[y*8+x]; got != want {
				t.Errorf("combined[%d,%d] = %d, want %d", x, y, got, want)
			}
		}
	}
}

func TestBuildTemplateMaskUniform(t *testing.T) {
	template := newFilledRGBA(5, 5, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	mask := buildTemplateMask(template)
	if mask.count != 0 {
		t.Errorf("uniform template mask count = %d, want 0", mask.count)
	}
}

func TestCropImage(t *testing.T) {
	src := newFilledRGBA(10, 10, color.RGBA{R: 10, G: 10, B: 10, A: 255})
	src.SetRGBA(2, 3, color.RGBA{R: 200, G: 100, B: 50, A: 255})

	tests := []struct {
		name   string
		region Region
		ok     bool
		width  int
		height int
	}{
		{"inside bounds", NewRegion(2, 3, 7, 9), true, 5, 6},
		{"clamped to bounds", NewRegion(8, 8, 20, 20), true, 2, 2},
		{"negative origin clamped", NewRegion(-3, -3, 2, 2), true, 2, 2},
		{"empty region", NewRegion(5, 5, 5, 9), false, 0, 0},
		{"inverted region", NewRegion(7, 7, 3, 3), false, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, ok := CropImage(src, tt.region)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if out.Bounds().Dx() != tt.width || out.Bounds().Dy() != tt.height {
				t.Errorf("size = %dx%d, want %dx%d", out.Bounds().Dx(), out.Bounds().Dy(), tt.width, tt.height)
			}
		})
	}

	t.Run("pixels preserved", func(t *testing.T) {
		out, ok := CropImage(src, NewRegion(2, 3, 7, 9))
		if !ok {
			t.Fatal("crop failed")
		}
		if got := out.RGBAAt(0, 0); got != (color.RGBA{R: 200, G: 100, B: 50, A: 255}) {
			t.Errorf("crop origin pixel = %v", got)
		}
	})
}

func TestScaleImage(t *testing.T) {
	src := newFilledRGBA(4, 4, color.RGBA{R: 120, G: 130, B: 140, A: 255})

	t.Run("identity factor returns original", func(t *testing.T) {
		if got := ScaleImage(src, 1.0); got != src {
			t.Errorf("expected original image back")
		}
	})

	t.Run("invalid factor returns original", func(t *testing.T) {
		if got := ScaleImage(src, 0); got != src {
			t.Errorf("expected original image back")
		}
	})

	t.Run("doubles dimensions", func(t *testing.T) {
		out := ScaleImage(src, 2.0)
		if out.Bounds().Dx() != 8 || out.Bounds().Dy() != 8 {
			t.Errorf("size = %dx%d, want 8x8", out.Bounds().Dx(), out.Bounds().Dy())
		}
	})
}
