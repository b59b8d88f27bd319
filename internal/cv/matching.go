package cv

import (
	"image"
	"math"
)

// MatchResult contains template matching results. Geometry fields are only
// populated when Found is true; a miss still reports the best confidence
// achieved anywhere in the screenshot.
type MatchResult struct {
	Found        bool
	Confidence   float64
	TopLeft      image.Point
	BottomRight  image.Point
	Center       image.Point
	TemplateSize image.Point
}

// MatchMethod defines the template matching algorithm
type MatchMethod int

const (
	// MethodCorrelation - masked normalized cross-correlation, no mean
	// subtraction. Higher scores are better. This is the default.
	MethodCorrelation MatchMethod = iota
	// MethodSquaredDiff - masked normalized squared difference. Lower scores
	// are better; confidence is reported as 1 minus the best score.
	MethodSquaredDiff
)

// Option configures a match call
type Option func(*matchOptions)

type matchOptions struct {
	method   MatchMethod
	unmasked bool
}

func defaultMatchOptions() matchOptions {
	return matchOptions{method: MethodCorrelation}
}

// WithMethod selects the matching method
func WithMethod(m MatchMethod) Option {
	return func(opts *matchOptions) {
		opts.method = m
	}
}

// Unmasked disables the Otsu template mask and scores every template pixel
func Unmasked() Option {
	return func(opts *matchOptions) {
		opts.unmasked = true
	}
}

// maskedPixel is one template sample participating in the correlation.
type maskedPixel struct {
	dx, dy  int
	r, g, b float64
}

// MatchTemplate slides the template over the screenshot and reports the best
// match. The template is binarized per channel with inverted Otsu thresholds
// and the OR-combined mask selects which pixels are scored; original pixel
// values are used for the scores themselves. An empty mask (uniform template)
// falls back to scoring every pixel. Found is true when the confidence
// reaches the threshold, inclusive.
func MatchTemplate(screenshot, template *image.RGBA, threshold float64, opts ...Option) *MatchResult {
	options := defaultMatchOptions()
	for _, opt := range opts {
		opt(&options)
	}

	if screenshot == nil || template == nil {
		return &MatchResult{Found: false}
	}

	shotBounds := screenshot.Bounds()
	tplBounds := template.Bounds()
	tplWidth := tplBounds.Dx()
	tplHeight := tplBounds.Dy()

	if tplWidth == 0 || tplHeight == 0 {
		return &MatchResult{Found: false}
	}
	if tplWidth > shotBounds.Dx() || tplHeight > shotBounds.Dy() {
		return &MatchResult{Found: false}
	}

	var combined []uint8
	if !options.unmasked {
		mask := buildTemplateMask(template)
		if mask.count > 0 {
			combined = mask.combined
		}
	}
	pixels, sumTT := collectTemplatePixels(template, combined)
	if len(pixels) == 0 {
		return &MatchResult{Found: false}
	}

	confidence, location := scanScores(screenshot, pixels, sumTT, tplWidth, tplHeight, options.method)

	if confidence < threshold {
		return &MatchResult{Found: false, Confidence: confidence}
	}

	topLeft := location
	bottomRight := image.Point{X: topLeft.X + tplWidth, Y: topLeft.Y + tplHeight}
	center := image.Point{X: topLeft.X + tplWidth/2, Y: topLeft.Y + tplHeight/2}

	return &MatchResult{
		Found:        true,
		Confidence:   confidence,
		TopLeft:      topLeft,
		BottomRight:  bottomRight,
		Center:       center,
		TemplateSize: image.Point{X: tplWidth, Y: tplHeight},
	}
}

// collectTemplatePixels flattens the template samples selected by the mask
// into a scan list and precomputes the template's squared sum. A nil mask
// selects every pixel.
func collectTemplatePixels(template *image.RGBA, mask []uint8) ([]maskedPixel, float64) {
	bounds := template.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()

	var pixels []maskedPixel
	if mask == nil {
		pixels = make([]maskedPixel, 0, w*h)
	}

	var sumTT float64
	for y := 0; y < h; y++ {
		row := template.PixOffset(bounds.Min.X, bounds.Min.Y+y)
		for x := 0; x < w; x++ {
			if mask != nil && mask[y*w+x] == 0 {
				continue
			}
			idx := row + x*4
			r := float64(template.Pix[idx])
			g := float64(template.Pix[idx+1])
			b := float64(template.Pix[idx+2])
			pixels = append(pixels, maskedPixel{dx: x, dy: y, r: r, g: g, b: b})
			sumTT += r*r + g*g + b*b
		}
	}

	return pixels, sumTT
}

// scanScores evaluates the match score at every anchor and returns the best
// confidence with its location. Correlation tracks the maximum score;
// squared difference tracks the minimum and reports 1 minus it.
func scanScores(screenshot *image.RGBA, pixels []maskedPixel, sumTT float64, tplWidth, tplHeight int, method MatchMethod) (float64, image.Point) {
	shotBounds := screenshot.Bounds()
	maxX := shotBounds.Dx() - tplWidth
	maxY := shotBounds.Dy() - tplHeight

	bestScore := math.Inf(-1)
	if method == MethodSquaredDiff {
		bestScore = math.Inf(1)
	}
	bestLocation := image.Point{}

	for y := 0; y <= maxY; y++ {
		for x := 0; x <= maxX; x++ {
			var sumTI, sumII float64
			for i := range pixels {
				p := &pixels[i]
				idx := screenshot.PixOffset(shotBounds.Min.X+x+p.dx, shotBounds.Min.Y+y+p.dy)
				r := float64(screenshot.Pix[idx])
				g := float64(screenshot.Pix[idx+1])
				b := float64(screenshot.Pix[idx+2])
				sumTI += p.r*r + p.g*g + p.b*b
				sumII += r*r + g*g + b*b
			}

			denom := math.Sqrt(sumTT * sumII)

			var score float64
			switch method {
			case MethodSquaredDiff:
				if denom == 0 {
					score = 1
				} else {
					score = (sumTT - 2*sumTI + sumII) / denom
				}
				if score < bestScore {
					bestScore = score
					bestLocation = image.Point{X: x, Y: y}
				}
			default:
				if denom == 0 {
					score = 0
				} else {
					score = sumTI / denom
				}
				if score > bestScore {
					bestScore = score
					bestLocation = image.Point{X: x, Y: y}
				}
			}
		}
	}

	if method == MethodSquaredDiff {
		return 1 - bestScore, bestLocation
	}
	return bestScore, bestLocation
}

// ToRGBA converts any image to RGBA, returning the original when it already
// is one.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	bounds := img.Bounds()
	rgba := image.NewRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			rgba.Set(x, y, img.At(x, y))
		}
	}
	return rgba
}
