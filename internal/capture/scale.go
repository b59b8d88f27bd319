package capture

// GetScaleFactor returns the ratio between captured pixels and logical
// screen points on the primary display. It is computed once and cached; any
// failure to determine it yields 1.0.
func (s *Service) GetScaleFactor() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scaleFactor != 0 {
		return s.scaleFactor
	}
	s.scaleFactor = s.computeScaleFactorLocked()
	s.logger.InfoWithContext("display scale factor", map[string]interface{}{
		"scale": s.scaleFactor,
	})
	return s.scaleFactor
}

func (s *Service) computeScaleFactorLocked() float64 {
	logicalWidth, _ := s.display.LogicalSize()
	if logicalWidth <= 0 {
		s.logger.Warn("logical screen size unavailable, assuming scale 1.0")
		return 1.0
	}

	s.monitorsLocked()
	if s.primary == nil || s.primary.Width <= 0 {
		return 1.0
	}

	return float64(s.primary.Width) / float64(logicalWidth)
}
