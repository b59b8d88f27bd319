package cv

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
)

// Debug artifact file names, matching the historical dump layout.
const (
	artifactTemplate   = "template.png"
	artifactScreenshot = "screenshot.png"
	artifactThTemplate = "th_template.png"
	artifactThScreen   = "th_screen.png"
	artifactMask       = "mask.png"
)

// WriteMatchArtifacts dumps a match call's inputs and thresholded
// intermediates into dir for offline inspection: the raw template and
// screenshot, both binarized with the template's per-channel Otsu
// thresholds, and the OR-combined mask.
func WriteMatchArtifacts(dir string, screenshot, template *image.RGBA) error {
	if screenshot == nil || template == nil {
		return ErrInvalidImage
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create artifact dir: %w", err)
	}

	mask := buildTemplateMask(template)

	artifacts := []struct {
		name string
		img  image.Image
	}{
		{artifactTemplate, template},
		{artifactScreenshot, screenshot},
		{artifactThTemplate, mask.channelsImage()},
		{artifactThScreen, binarizeWithThresholds(screenshot, mask.thresholds)},
		{artifactMask, mask.grayImage()},
	}

	for _, a := range artifacts {
		if err := savePNG(filepath.Join(dir, a.name), a.img); err != nil {
			return err
		}
	}
	return nil
}

func savePNG(path string, img image.Image) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()

	if err := png.Encode(file, img); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return nil
}
