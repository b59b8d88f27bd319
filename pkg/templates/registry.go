package templates

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"ktxmacro.dev/ktx-macro-go/internal/models"
)

// defaultThreshold applies to library entries that do not set their own
const defaultThreshold = 0.8

// Definition is one template entry in a library YAML file
type Definition struct {
	Name      string     `yaml:"name"`
	Path      string     `yaml:"path"`
	Threshold float64    `yaml:"threshold"`
	Region    *RegionDef `yaml:"region,omitempty"`
	Scale     float64    `yaml:"scale,omitempty"`
	Preload   bool       `yaml:"preload,omitempty"`
}

// RegionDef is a template crop rectangle in a library YAML file
type RegionDef struct {
	X1 int `yaml:"x1"`
	Y1 int `yaml:"y1"`
	X2 int `yaml:"x2"`
	Y2 int `yaml:"y2"`
}

// libraryFile is the structure of a template library YAML file
type libraryFile struct {
	Templates []Definition `yaml:"templates"`
}

// Library is a named collection of reusable image templates described in
// YAML files. It feeds the macro configuration with ready-made templates
// and optionally keeps their decoded images warm in an ImageCache.
type Library struct {
	mu       sync.RWMutex
	entries  map[string]Definition
	basePath string
	cache    *ImageCache
}

// NewLibrary creates an empty library. basePath is the root directory the
// entries' relative image paths resolve against.
func NewLibrary(basePath string) *Library {
	return &Library{
		entries:  make(map[string]Definition),
		basePath: basePath,
		cache:    NewImageCache(),
	}
}

// WithoutImageCache disables image caching for this library
func (l *Library) WithoutImageCache() *Library {
	l.cache = nil
	return l
}

// LoadFromFile reads a library YAML file and registers its entries.
// Image paths are resolved against the library's base path.
func (l *Library) LoadFromFile(filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read template library %s: %w", filePath, err)
	}

	var file libraryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse template library %s: %w", filePath, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for i, def := range file.Templates {
		if def.Name == "" {
			return fmt.Errorf("template %d: name cannot be empty", i+1)
		}
		if def.Path == "" {
			return fmt.Errorf("template %d (%s): path cannot be empty", i+1, def.Name)
		}

		def.Path = filepath.Join(l.basePath, def.Path)
		if def.Threshold == 0 {
			def.Threshold = defaultThreshold
		}

		l.entries[def.Name] = def

		if l.cache != nil {
			if err := l.cache.Register(def, def.Preload); err != nil {
				// Preload failures are not fatal; the image can still be
				// loaded on demand
				fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
			}
		}
	}

	return nil
}

// LoadFromDirectory loads every .yaml/.yml file in a directory
func (l *Library) LoadFromDirectory(dirPath string) error {
	dirEntries, err := os.ReadDir(dirPath)
	if err != nil {
		return fmt.Errorf("failed to read template directory %s: %w", dirPath, err)
	}

	var loadErrors []error
	for _, entry := range dirEntries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		if err := l.LoadFromFile(filepath.Join(dirPath, entry.Name())); err != nil {
			loadErrors = append(loadErrors, fmt.Errorf("file %s: %w", entry.Name(), err))
		}
	}

	if len(loadErrors) > 0 {
		return fmt.Errorf("failed to load %d library files (first error): %w", len(loadErrors), loadErrors[0])
	}
	return nil
}

// Get retrieves an entry by name
func (l *Library) Get(name string) (Definition, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	def, ok := l.entries[name]
	return def, ok
}

// Has checks whether an entry exists
func (l *Library) Has(name string) bool {
	_, ok := l.Get(name)
	return ok
}

// List returns all entry names, sorted
func (l *Library) List() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	names := make([]string, 0, len(l.entries))
	for name := range l.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of entries
func (l *Library) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Register adds an entry programmatically
func (l *Library) Register(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("template name cannot be empty")
	}
	if def.Threshold == 0 {
		def.Threshold = defaultThreshold
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[def.Name] = def
	return nil
}

// Remove drops an entry and releases its cached image
func (l *Library) Remove(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.entries[name]; !ok {
		return false
	}
	delete(l.entries, name)
	if l.cache != nil {
		l.cache.Release(name)
	}
	return true
}

// ToImageTemplate converts a library entry into a macro config template
func (d Definition) ToImageTemplate() *models.ImageTemplate {
	return models.NewImageTemplate(d.Name, d.Path, d.Threshold)
}

// ToRegion converts the entry's crop rectangle, or nil when none is set
func (d Definition) ToRegion() *models.Region {
	if d.Region == nil {
		return nil
	}
	return &models.Region{X1: d.Region.X1, Y1: d.Region.Y1, X2: d.Region.X2, Y2: d.Region.Y2}
}

// ImportInto registers every library entry that the config does not already
// carry (matched by template name) and returns how many were added
func (l *Library) ImportInto(config *models.MacroConfig) int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	existing := make(map[string]bool, len(config.ImageTemplates))
	for _, template := range config.ImageTemplates {
		existing[template.Name] = true
	}

	added := 0
	for _, def := range l.entries {
		if existing[def.Name] {
			continue
		}
		config.AddImageTemplate(def.ToImageTemplate())
		added++
	}
	return added
}

// ImageCache returns the library's image cache, or nil when disabled
func (l *Library) ImageCache() *ImageCache {
	return l.cache
}

// PreloadAll loads every entry marked for preloading
func (l *Library) PreloadAll() error {
	if l.cache == nil {
		return fmt.Errorf("image cache not enabled")
	}
	return l.cache.PreloadAll()
}

// CacheStats returns the image cache counters
func (l *Library) CacheStats() CacheStats {
	if l.cache == nil {
		return CacheStats{}
	}
	return l.cache.Stats()
}
