package cv

import (
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	_ "image/jpeg"
	_ "image/png"

	"ktxmacro.dev/ktx-macro-go/internal/logging"
)

var (
	// ErrTemplateNotFound indicates the template file does not exist on disk
	ErrTemplateNotFound = errors.New("template file not found")
	// ErrInvalidImage indicates a nil or undecodable image was supplied
	ErrInvalidImage = errors.New("invalid image")
)

// CacheInfo describes the current template cache contents
type CacheInfo struct {
	Count int
	Paths []string
}

// Matcher performs template matching against screenshots. Decoded template
// images are cached by path and only evicted through ClearCache.
type Matcher struct {
	cache    map[string]*image.RGBA
	debugDir string
	logger   *logging.Logger
	mu       sync.RWMutex
}

// NewMatcher creates a new template matcher
func NewMatcher() *Matcher {
	return &Matcher{
		cache:  make(map[string]*image.RGBA),
		logger: logging.NewLogger("cv"),
	}
}

// WithDebugDir enables debug artifact dumps into the given directory
func (m *Matcher) WithDebugDir(dir string) *Matcher {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.debugDir = dir
	return m
}

// LoadTemplate returns the decoded template image for a path, loading and
// caching it on first use. Repeat calls return the same buffer until the
// cache is cleared.
func (m *Matcher) LoadTemplate(path string) (*image.RGBA, error) {
	m.mu.RLock()
	if img, ok := m.cache[path]; ok {
		m.mu.RUnlock()
		return img, nil
	}
	m.mu.RUnlock()

	img, err := DecodeImageFile(path)
	if err != nil {
		m.logger.Error("template load failed", err)
		return nil, err
	}

	m.mu.Lock()
	if existing, ok := m.cache[path]; ok {
		m.mu.Unlock()
		return existing, nil
	}
	m.cache[path] = img
	m.mu.Unlock()

	bounds := img.Bounds()
	m.logger.DebugWithContext("template loaded", map[string]interface{}{
		"path":   path,
		"width":  bounds.Dx(),
		"height": bounds.Dy(),
	})
	return img, nil
}

// ClearCache drops every cached template image
func (m *Matcher) ClearCache() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache = make(map[string]*image.RGBA)
	m.logger.Debug("template cache cleared")
}

// CacheInfo reports how many templates are cached and their paths
func (m *Matcher) CacheInfo() CacheInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info := CacheInfo{
		Count: len(m.cache),
		Paths: make([]string, 0, len(m.cache)),
	}
	for path := range m.cache {
		info.Paths = append(info.Paths, path)
	}
	return info
}

// MatchTemplate matches a template image against a screenshot, writing debug
// artifacts first when a debug directory is configured.
func (m *Matcher) MatchTemplate(screenshot, template *image.RGBA, threshold float64, opts ...Option) *MatchResult {
	if dir := m.debugDirSnapshot(); dir != "" {
		if err := WriteMatchArtifacts(dir, screenshot, template); err != nil {
			m.logger.Error("debug artifact dump failed", err)
		}
	}

	result := MatchTemplate(screenshot, template, threshold, opts...)

	if result.Found {
		m.logger.DebugWithContext("template matched", map[string]interface{}{
			"confidence": result.Confidence,
			"center_x":   result.Center.X,
			"center_y":   result.Center.Y,
		})
	} else {
		m.logger.DebugWithContext("template not matched", map[string]interface{}{
			"confidence": result.Confidence,
			"threshold":  threshold,
		})
	}
	return result
}

// FindInScreenshot loads a template by path and matches it against the
// screenshot. A region crops the template before matching and the resulting
// coordinates are shifted back by the crop origin when it is positive. Load
// failures and empty crops report a plain miss.
func (m *Matcher) FindInScreenshot(screenshot *image.RGBA, templatePath string, region *Region, threshold float64) *MatchResult {
	template, err := m.LoadTemplate(templatePath)
	if err != nil {
		return &MatchResult{Found: false}
	}

	offsetX, offsetY := 0, 0
	if region != nil {
		cropped, ok := CropImage(template, *region)
		if !ok {
			m.logger.WarnWithContext("template region is empty", map[string]interface{}{
				"path":   templatePath,
				"region": fmt.Sprintf("(%d,%d)-(%d,%d)", region.X1, region.Y1, region.X2, region.Y2),
			})
			return &MatchResult{Found: false}
		}
		template = cropped
		offsetX, offsetY = region.X1, region.Y1
	}

	result := m.MatchTemplate(screenshot, template, threshold)

	if result.Found && (offsetX > 0 || offsetY > 0) {
		offset := image.Point{X: offsetX, Y: offsetY}
		result.TopLeft = result.TopLeft.Add(offset)
		result.BottomRight = result.BottomRight.Add(offset)
		result.Center = result.Center.Add(offset)
	}
	return result
}

func (m *Matcher) debugDirSnapshot() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.debugDir
}

// DecodeImageFile reads an image file from disk and converts it to RGBA
func DecodeImageFile(path string) (*image.RGBA, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, path)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image %s: %w", path, err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidImage, path, err)
	}

	return ToRGBA(img), nil
}
