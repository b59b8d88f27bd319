package templates

import (
	"fmt"
	"image"
	"sync"

	"ktxmacro.dev/ktx-macro-go/internal/cv"
)

// cachedImage holds one decoded library image and its load state
type cachedImage struct {
	mu      sync.Mutex
	def     Definition
	img     *image.RGBA
	preload bool
}

// ImageCache keeps decoded template images in memory so repeated matches
// against the same library entry do not re-read the file. Entries marked
// preload are decoded eagerly by PreloadAll; everything else loads on
// first use.
type ImageCache struct {
	mu     sync.RWMutex
	images map[string]*cachedImage
	stats  CacheStats
}

// CacheStats counts cache activity
type CacheStats struct {
	Hits            int64
	Misses          int64
	Loads           int64
	Unloads         int64
	PreloadFailures int64
}

// NewImageCache creates an empty image cache
func NewImageCache() *ImageCache {
	return &ImageCache{
		images: make(map[string]*cachedImage),
	}
}

// Register adds a library entry to the cache without loading it
func (ic *ImageCache) Register(def Definition, preload bool) error {
	if def.Name == "" {
		return fmt.Errorf("cannot cache a template without a name")
	}

	ic.mu.Lock()
	ic.images[def.Name] = &cachedImage{def: def, preload: preload}
	ic.mu.Unlock()
	return nil
}

// Get returns the decoded image for an entry, loading it on first use
func (ic *ImageCache) Get(name string) (*image.RGBA, Definition, error) {
	ic.mu.RLock()
	entry, ok := ic.images[name]
	ic.mu.RUnlock()

	if !ok {
		ic.countMiss()
		return nil, Definition{}, fmt.Errorf("template '%s' is not registered in the cache", name)
	}

	img, loaded, err := entry.getOrLoad()
	if err != nil {
		ic.countMiss()
		return nil, entry.def, err
	}

	ic.mu.Lock()
	if loaded {
		ic.stats.Loads++
		ic.stats.Misses++
	} else {
		ic.stats.Hits++
	}
	ic.mu.Unlock()

	return img, entry.def, nil
}

// Release drops an entry's decoded image but keeps its registration
func (ic *ImageCache) Release(name string) {
	ic.mu.Lock()
	entry, ok := ic.images[name]
	ic.mu.Unlock()
	if !ok {
		return
	}

	entry.mu.Lock()
	unloaded := entry.img != nil
	entry.img = nil
	entry.mu.Unlock()

	if unloaded {
		ic.mu.Lock()
		ic.stats.Unloads++
		ic.mu.Unlock()
	}
}

// PreloadAll decodes every entry marked for preloading. Entries that fail
// to load are counted and reported together; the rest stay usable.
func (ic *ImageCache) PreloadAll() error {
	ic.mu.RLock()
	pending := make([]*cachedImage, 0, len(ic.images))
	for _, entry := range ic.images {
		if entry.preload {
			pending = append(pending, entry)
		}
	}
	ic.mu.RUnlock()

	var failures []string
	for _, entry := range pending {
		if _, loaded, err := entry.getOrLoad(); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", entry.def.Name, err))
			ic.mu.Lock()
			ic.stats.PreloadFailures++
			ic.mu.Unlock()
		} else if loaded {
			ic.mu.Lock()
			ic.stats.Loads++
			ic.mu.Unlock()
		}
	}

	if len(failures) > 0 {
		return fmt.Errorf("failed to preload %d templates: %v", len(failures), failures)
	}
	return nil
}

// UnloadAll drops every decoded image, keeping the registrations
func (ic *ImageCache) UnloadAll() {
	ic.mu.Lock()
	defer ic.mu.Unlock()

	for _, entry := range ic.images {
		entry.mu.Lock()
		if entry.img != nil {
			entry.img = nil
			ic.stats.Unloads++
		}
		entry.mu.Unlock()
	}
}

// Stats returns a copy of the activity counters
func (ic *ImageCache) Stats() CacheStats {
	ic.mu.RLock()
	defer ic.mu.RUnlock()
	return ic.stats
}

func (ic *ImageCache) countMiss() {
	ic.mu.Lock()
	ic.stats.Misses++
	ic.mu.Unlock()
}

// getOrLoad returns the entry's image, decoding it on first call. loaded
// reports whether this call performed the decode.
func (ci *cachedImage) getOrLoad() (img *image.RGBA, loaded bool, err error) {
	ci.mu.Lock()
	defer ci.mu.Unlock()

	if ci.img != nil {
		return ci.img, false, nil
	}

	decoded, err := cv.DecodeImageFile(ci.def.Path)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load template '%s': %w", ci.def.Name, err)
	}
	if ci.def.Scale > 0 && ci.def.Scale != 1.0 {
		decoded = cv.ScaleImage(decoded, ci.def.Scale)
	}

	ci.img = decoded
	return ci.img, true, nil
}
