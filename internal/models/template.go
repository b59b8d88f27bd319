package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ImageTemplate references a stored bitmap used as a search target
type ImageTemplate struct {
	ID        string
	Name      string
	FilePath  string
	Threshold float64
	CreatedAt time.Time
}

// NewImageTemplate creates a template with a generated ID
func NewImageTemplate(name, filePath string, threshold float64) *ImageTemplate {
	if threshold <= 0 {
		threshold = DefaultMatchThreshold
	}
	return &ImageTemplate{
		ID:        uuid.NewString(),
		Name:      name,
		FilePath:  filePath,
		Threshold: threshold,
		CreatedAt: time.Now(),
	}
}

type wireTemplate struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	FilePath  string   `json:"file_path"`
	Threshold *float64 `json:"threshold"`
	CreatedAt string   `json:"created_at"`
}

func (t *ImageTemplate) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireTemplate{
		ID:        t.ID,
		Name:      t.Name,
		FilePath:  t.FilePath,
		Threshold: floatPtr(t.Threshold),
		CreatedAt: formatTimestamp(t.CreatedAt),
	})
}

func (t *ImageTemplate) UnmarshalJSON(data []byte) error {
	var w wireTemplate
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	if w.ID == "" {
		return fmt.Errorf("image template missing id")
	}

	createdAt, err := parseTimestamp(w.CreatedAt)
	if err != nil {
		return fmt.Errorf("image template %s: %w", w.ID, err)
	}

	t.ID = w.ID
	t.Name = w.Name
	t.FilePath = w.FilePath
	// Files from earlier releases may omit the threshold; they matched
	// at 0.8
	t.Threshold = floatOr(w.Threshold, 0.8)
	t.CreatedAt = createdAt

	return nil
}
