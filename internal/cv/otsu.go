package cv

import "image"

// templateMask holds the binary mask derived from a template image.
// Each color channel is thresholded independently with Otsu's method in
// inverted form (values at or below the threshold become foreground), and
// the channel masks are OR-combined into a single mask that selects which
// template pixels participate in matching.
type templateMask struct {
	width, height int
	thresholds    [3]uint8   // per-channel Otsu thresholds
	channels      [3][]uint8 // per-channel inverted binaries (255 = foreground)
	combined      []uint8    // OR of the channel binaries
	count         int        // foreground pixels in combined
}

// buildTemplateMask computes the per-channel Otsu masks for a template and
// their OR-combination. A uniform template produces an empty combined mask;
// callers fall back to unmasked matching in that case.
func buildTemplateMask(tpl *image.RGBA) *templateMask {
	bounds := tpl.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()

	m := &templateMask{
		width:    w,
		height:   h,
		combined: make([]uint8, w*h),
	}

	for c := 0; c < 3; c++ {
		var hist [256]int
		for y := 0; y < h; y++ {
			row := tpl.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			for x := 0; x < w; x++ {
				hist[tpl.Pix[row+x*4+c]]++
			}
		}

		m.thresholds[c] = otsuThreshold(&hist, w*h)

		bin := make([]uint8, w*h)
		for y := 0; y < h; y++ {
			row := tpl.PixOffset(bounds.Min.X, bounds.Min.Y+y)
			for x := 0; x < w; x++ {
				if tpl.Pix[row+x*4+c] <= m.thresholds[c] {
					bin[y*w+x] = 255
				}
			}
		}
		m.channels[c] = bin

		for i, v := range bin {
			if v != 0 {
				m.combined[i] = 255
			}
		}
	}

	for _, v := range m.combined {
		if v != 0 {
			m.count++
		}
	}

	return m
}

// otsuThreshold selects the threshold that maximizes between-class variance
// over a 256-bin histogram. A histogram with a single occupied bin yields no
// separable classes and the threshold stays at zero.
func otsuThreshold(hist *[256]int, total int) uint8 {
	if total == 0 {
		return 0
	}

	var sum float64
	for i, count := range hist {
		sum += float64(i) * float64(count)
	}

	var sumB, weightB float64
	var bestVariance float64
	var threshold uint8

	for t := 0; t < 256; t++ {
		weightB += float64(hist[t])
		if weightB == 0 {
			continue
		}
		weightF := float64(total) - weightB
		if weightF == 0 {
			break
		}

		sumB += float64(t) * float64(hist[t])
		meanB := sumB / weightB
		meanF := (sum - sumB) / weightF

		variance := weightB * weightF * (meanB - meanF) * (meanB - meanF)
		if variance > bestVariance {
			bestVariance = variance
			threshold = uint8(t)
		}
	}

	return threshold
}

// binarizeWithThresholds applies a template's per-channel thresholds to
// another image in the same inverted form. Only used for debug artifacts.
func binarizeWithThresholds(img *image.RGBA, thresholds [3]uint8) *image.RGBA {
	bounds := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))

	for y := 0; y < bounds.Dy(); y++ {
		srcRow := img.PixOffset(bounds.Min.X, bounds.Min.Y+y)
		dstRow := out.PixOffset(0, y)
		for x := 0; x < bounds.Dx(); x++ {
			for c := 0; c < 3; c++ {
				if img.Pix[srcRow+x*4+c] <= thresholds[c] {
					out.Pix[dstRow+x*4+c] = 255
				}
			}
			out.Pix[dstRow+x*4+3] = 255
		}
	}

	return out
}

// channelsImage merges the per-channel binaries back into one RGBA image,
// mirroring the thresholded-template debug artifact.
func (m *templateMask) channelsImage() *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, m.width, m.height))
	for y := 0; y < m.height; y++ {
		row := out.PixOffset(0, y)
		for x := 0; x < m.width; x++ {
			idx := y*m.width + x
			out.Pix[row+x*4] = m.channels[0][idx]
			out.Pix[row+x*4+1] = m.channels[1][idx]
			out.Pix[row+x*4+2] = m.channels[2][idx]
			out.Pix[row+x*4+3] = 255
		}
	}
	return out
}

// grayImage renders the combined mask as a grayscale image.
func (m *templateMask) grayImage() *image.Gray {
	out := image.NewGray(image.Rect(0, 0, m.width, m.height))
	for y := 0; y < m.height; y++ {
		copy(out.Pix[y*out.Stride:y*out.Stride+m.width], m.combined[y*m.width:(y+1)*m.width])
	}
	return out
}
