package capture

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-vgo/robotgo"
	"github.com/kbinani/screenshot"

	"ktxmacro.dev/ktx-macro-go/internal/logging"
)

// ErrNoDisplay indicates no display could be found to capture
var ErrNoDisplay = errors.New("no display available")

// displayProvider abstracts the screen queries behind the service so tests
// can run without a display.
type displayProvider interface {
	NumDisplays() int
	DisplayBounds(id int) image.Rectangle
	CaptureRect(rect image.Rectangle) (*image.RGBA, error)
	LogicalSize() (width, height int)
}

// systemDisplay is the real provider backed by the OS.
type systemDisplay struct{}

func (systemDisplay) NumDisplays() int                    { return screenshot.NumActiveDisplays() }
func (systemDisplay) DisplayBounds(id int) image.Rectangle { return screenshot.GetDisplayBounds(id) }
func (systemDisplay) CaptureRect(rect image.Rectangle) (*image.RGBA, error) {
	return screenshot.CaptureRect(rect)
}
func (systemDisplay) LogicalSize() (int, int) { return robotgo.GetScreenSize() }

// Service captures screen content and tracks display geometry. Monitor
// information and the display scale factor are computed once and cached.
type Service struct {
	display     displayProvider
	logger      *logging.Logger
	monitors    []Monitor
	primary     *Monitor
	scaleFactor float64
	mu          sync.Mutex
}

// NewService creates a screen capture service backed by the OS displays
func NewService() *Service {
	return newService(systemDisplay{})
}

func newService(display displayProvider) *Service {
	return &Service{
		display: display,
		logger:  logging.NewLogger("capture"),
	}
}

// CaptureFullScreen captures a full monitor. Without an argument the primary
// monitor is captured; an invalid monitor id logs a warning and falls back
// to the primary.
func (s *Service) CaptureFullScreen(monitorID ...int) (*image.RGBA, error) {
	if len(monitorID) > 0 {
		id := monitorID[0]
		monitors := s.GetMonitors()
		if id >= 0 && id < len(monitors) {
			return s.captureRect(monitors[id].Bounds())
		}
		s.logger.WarnWithContext("invalid monitor id, capturing primary", map[string]interface{}{
			"monitor_id": id,
			"monitors":   len(monitors),
		})
	}

	primary := s.PrimaryMonitor()
	if primary == nil {
		return nil, ErrNoDisplay
	}
	return s.captureRect(primary.Bounds())
}

func (s *Service) captureRect(rect image.Rectangle) (*image.RGBA, error) {
	img, err := s.display.CaptureRect(rect)
	if err != nil {
		s.logger.Error("screen capture failed", err)
		return nil, fmt.Errorf("failed to capture %v: %w", rect, err)
	}
	return img, nil
}

// SaveScreenshot encodes a captured image as PNG, creating parent
// directories as needed.
func SaveScreenshot(img image.Image, path string) error {
	if img == nil {
		return errors.New("nil image")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create screenshot dir: %w", err)
		}
	}

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
