package capture

import (
	"fmt"
	"image"
)

// Monitor describes one attached display
type Monitor struct {
	ID        int
	Name      string
	X         int
	Y         int
	Width     int
	Height    int
	IsPrimary bool
}

// Bounds returns the monitor's pixel rectangle in virtual screen coordinates
func (m Monitor) Bounds() image.Rectangle {
	return image.Rect(m.X, m.Y, m.X+m.Width, m.Y+m.Height)
}

// GetMonitors enumerates the attached displays. The list is built once and
// cached; when enumeration yields nothing a single default monitor with the
// logical screen size is reported so capture can still proceed.
func (s *Service) GetMonitors() []Monitor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.monitorsLocked()
}

// PrimaryMonitor returns the primary display, falling back to the first
// enumerated monitor. Nil only when no monitor could be determined at all.
func (s *Service) PrimaryMonitor() *Monitor {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.monitorsLocked()
	return s.primary
}

// RefreshMonitors drops the cached monitor list so the next query
// re-enumerates the displays.
func (s *Service) RefreshMonitors() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.monitors = nil
	s.primary = nil
}

func (s *Service) monitorsLocked() []Monitor {
	if s.monitors != nil {
		return s.monitors
	}

	count := s.display.NumDisplays()
	monitors := make([]Monitor, 0, count)
	for i := 0; i < count; i++ {
		bounds := s.display.DisplayBounds(i)
		monitors = append(monitors, Monitor{
			ID:        i,
			Name:      fmt.Sprintf("Monitor %d", i+1),
			X:         bounds.Min.X,
			Y:         bounds.Min.Y,
			Width:     bounds.Dx(),
			Height:    bounds.Dy(),
			IsPrimary: i == 0,
		})
	}

	if len(monitors) == 0 {
		width, height := s.display.LogicalSize()
		monitors = append(monitors, Monitor{
			ID:        0,
			Name:      "Default Monitor",
			Width:     width,
			Height:    height,
			IsPrimary: true,
		})
		s.logger.Warn("no displays enumerated, using logical screen size")
	}

	s.monitors = monitors
	for i := range monitors {
		if monitors[i].IsPrimary {
			s.primary = &monitors[i]
			break
		}
	}
	if s.primary == nil {
		s.primary = &monitors[0]
	}

	s.logger.DebugWithContext("monitors detected", map[string]interface{}{
		"count": len(monitors),
	})
	return monitors
}
