package models

import (
	"encoding/json"
	"fmt"
	"image"
)

// Point is a screen coordinate pair. It serializes as a two-element
// JSON array to stay compatible with existing config files.
type Point struct {
	X int
	Y int
}

func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]int{p.X, p.Y})
}

func (p *Point) UnmarshalJSON(data []byte) error {
	var coords []int
	if err := json.Unmarshal(data, &coords); err != nil {
		return fmt.Errorf("invalid point: %w", err)
	}
	if len(coords) != 2 {
		return fmt.Errorf("invalid point: expected 2 coordinates, got %d", len(coords))
	}
	p.X, p.Y = coords[0], coords[1]
	return nil
}

// Region is a rectangular area given as two corner points (x1,y1)-(x2,y2).
// It serializes as a four-element JSON array.
type Region struct {
	X1 int
	Y1 int
	X2 int
	Y2 int
}

func (r Region) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]int{r.X1, r.Y1, r.X2, r.Y2})
}

func (r *Region) UnmarshalJSON(data []byte) error {
	var coords []int
	if err := json.Unmarshal(data, &coords); err != nil {
		return fmt.Errorf("invalid region: %w", err)
	}
	if len(coords) != 4 {
		return fmt.Errorf("invalid region: expected 4 coordinates, got %d", len(coords))
	}
	r.X1, r.Y1, r.X2, r.Y2 = coords[0], coords[1], coords[2], coords[3]
	return nil
}

// Width returns the region width in pixels
func (r Region) Width() int {
	return r.X2 - r.X1
}

// Height returns the region height in pixels
func (r Region) Height() int {
	return r.Y2 - r.Y1
}

// ToRectangle converts the region to a standard image.Rectangle
func (r Region) ToRectangle() image.Rectangle {
	return image.Rect(r.X1, r.Y1, r.X2, r.Y2)
}

// IsValid checks that the region has positive area
func (r Region) IsValid() bool {
	return r.X2 > r.X1 && r.Y2 > r.Y1
}
