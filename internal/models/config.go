package models

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is where the macro configuration is stored unless
// overridden
const DefaultConfigPath = "config/macro_config.json"

// TelegramConfig holds the notification credentials
type TelegramConfig struct {
	BotToken           string `json:"bot_token"`
	ChatID             string `json:"chat_id"`
	Enabled            bool   `json:"enabled"`
	UseFinishedMessage bool   `json:"use_finished_message"`
}

// MacroConfig is the root aggregate persisted as a single JSON document
type MacroConfig struct {
	Version        string
	ImageTemplates []*ImageTemplate
	MacroSequence  *MacroSequence
	TelegramConfig TelegramConfig

	ScreenshotSavePath       string
	AutoSaveInterval         int
	MatchConfidenceThreshold float64
	ActionDelay              float64
}

// NewMacroConfig creates a config with an empty default sequence
func NewMacroConfig() *MacroConfig {
	return &MacroConfig{
		Version:                  "0.1.0",
		ImageTemplates:           []*ImageTemplate{},
		MacroSequence:            NewMacroSequence("Main Sequence", "Default macro sequence"),
		ScreenshotSavePath:       "assets/screenshots",
		AutoSaveInterval:         30,
		MatchConfidenceThreshold: 0.7,
		ActionDelay:              0.5,
	}
}

// AddImageTemplate registers a template
func (c *MacroConfig) AddImageTemplate(template *ImageTemplate) {
	c.ImageTemplates = append(c.ImageTemplates, template)
}

// RemoveImageTemplate removes a template by ID. Actions referencing the
// removed template are left in place and fail at dispatch time.
func (c *MacroConfig) RemoveImageTemplate(templateID string) bool {
	for i, template := range c.ImageTemplates {
		if template.ID == templateID {
			c.ImageTemplates = append(c.ImageTemplates[:i], c.ImageTemplates[i+1:]...)
			return true
		}
	}
	return false
}

// GetImageTemplate returns the template with the given ID, or nil
func (c *MacroConfig) GetImageTemplate(templateID string) *ImageTemplate {
	for _, template := range c.ImageTemplates {
		if template.ID == templateID {
			return template
		}
	}
	return nil
}

type wireConfig struct {
	Version                  string           `json:"version"`
	ImageTemplates           []*ImageTemplate `json:"image_templates"`
	MacroSequence            *MacroSequence   `json:"macro_sequence"`
	TelegramConfig           *TelegramConfig  `json:"telegram_config"`
	ScreenshotSavePath       *string          `json:"screenshot_save_path"`
	AutoSaveInterval         *int             `json:"auto_save_interval"`
	MatchConfidenceThreshold *float64         `json:"match_confidence_threshold"`
	ActionDelay              *float64         `json:"action_delay"`
}

func (c *MacroConfig) MarshalJSON() ([]byte, error) {
	templates := c.ImageTemplates
	if templates == nil {
		templates = []*ImageTemplate{}
	}
	sequence := c.MacroSequence
	if sequence == nil {
		sequence = NewMacroSequence("Main Sequence", "Default macro sequence")
	}
	telegram := c.TelegramConfig
	return json.Marshal(wireConfig{
		Version:                  c.Version,
		ImageTemplates:           templates,
		MacroSequence:            sequence,
		TelegramConfig:           &telegram,
		ScreenshotSavePath:       &c.ScreenshotSavePath,
		AutoSaveInterval:         &c.AutoSaveInterval,
		MatchConfidenceThreshold: &c.MatchConfidenceThreshold,
		ActionDelay:              &c.ActionDelay,
	})
}

func (c *MacroConfig) UnmarshalJSON(data []byte) error {
	var w wireConfig
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	c.Version = w.Version
	if c.Version == "" {
		c.Version = "0.1.0"
	}

	c.ImageTemplates = w.ImageTemplates
	if c.ImageTemplates == nil {
		c.ImageTemplates = []*ImageTemplate{}
	}

	c.MacroSequence = w.MacroSequence
	if c.MacroSequence == nil {
		c.MacroSequence = NewMacroSequence("Main Sequence", "Default macro sequence")
	}

	if w.TelegramConfig != nil {
		c.TelegramConfig = *w.TelegramConfig
	} else {
		c.TelegramConfig = TelegramConfig{}
	}

	c.ScreenshotSavePath = stringOr(w.ScreenshotSavePath, "assets/screenshots")
	c.AutoSaveInterval = intOr(w.AutoSaveInterval, 30)
	c.MatchConfidenceThreshold = floatOr(w.MatchConfidenceThreshold, 0.7)
	c.ActionDelay = floatOr(w.ActionDelay, 0.5)

	return nil
}

// SaveToFile writes the config as indented JSON, creating parent
// directories as needed
func (c *MacroConfig) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadConfigFromFile reads a config document. A missing file is not an
// error; it yields a fresh default config.
func LoadConfigFromFile(path string) (*MacroConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewMacroConfig(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := &MacroConfig{}
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}
