package models

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestConfigRoundTrip(t *testing.T) {
	created := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	modified := time.Date(2025, 6, 2, 8, 15, 30, 500000000, time.UTC)

	sequence := &MacroSequence{
		Name:        "nightly-checks",
		Description: "checks the dashboard every night",
		Actions:     []*MacroAction{},
		LoopCount:   3,
		LoopDelay:   2.5,
		CreatedAt:   created,
		ModifiedAt:  modified,
	}
	for _, kind := range allActionKinds() {
		sequence.Actions = append(sequence.Actions, actionOfKind(t, kind))
	}

	original := &MacroConfig{
		Version: "0.1.0",
		ImageTemplates: []*ImageTemplate{
			{
				ID:        "tmpl-1",
				Name:      "ok button",
				FilePath:  "assets/screenshots/ok_button.png",
				Threshold: 0.92,
				CreatedAt: created,
			},
		},
		MacroSequence: sequence,
		TelegramConfig: TelegramConfig{
			BotToken:           "123456:ABCDEF",
			ChatID:             "-100200300",
			Enabled:            true,
			UseFinishedMessage: true,
		},
		ScreenshotSavePath:       "captures",
		AutoSaveInterval:         60,
		MatchConfidenceThreshold: 0.75,
		ActionDelay:              0.25,
	}

	path := filepath.Join(t.TempDir(), "macro_config.json")
	if err := original.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}

	loaded, err := LoadConfigFromFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFromFile failed: %v", err)
	}

	if !reflect.DeepEqual(original, loaded) {
		t.Errorf("Round trip mismatch\noriginal: %+v\nloaded:   %+v", original, loaded)
		for i := range original.MacroSequence.Actions {
			o := original.MacroSequence.Actions[i]
			l := loaded.MacroSequence.Actions[i]
			if !reflect.DeepEqual(o, l) {
				t.Errorf("action %d (%s)\noriginal params: %+v\nloaded params:   %+v",
					i, o.Kind(), o.Params, l.Params)
			}
		}
	}
}

func TestLoadMissingConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does_not_exist.json")

	config, err := LoadConfigFromFile(path)
	if err != nil {
		t.Fatalf("Missing file should yield defaults, got error: %v", err)
	}

	if config.Version != "0.1.0" {
		t.Errorf("Version = %s, want 0.1.0", config.Version)
	}
	if config.MacroSequence == nil || config.MacroSequence.Name != "Main Sequence" {
		t.Errorf("Expected default sequence, got %+v", config.MacroSequence)
	}
	if len(config.ImageTemplates) != 0 {
		t.Errorf("Expected no templates, got %d", len(config.ImageTemplates))
	}
	if config.MatchConfidenceThreshold != 0.7 {
		t.Errorf("MatchConfidenceThreshold = %v, want 0.7", config.MatchConfidenceThreshold)
	}
	if config.ScreenshotSavePath != "assets/screenshots" {
		t.Errorf("ScreenshotSavePath = %s", config.ScreenshotSavePath)
	}
}

func TestLoadCorruptConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadConfigFromFile(path); err == nil {
		t.Error("Corrupt file should return an error")
	}
}

func TestConfigDecodeDefaults(t *testing.T) {
	config := &MacroConfig{}
	if err := json.Unmarshal([]byte("{}"), config); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if config.Version != "0.1.0" {
		t.Errorf("Version = %s", config.Version)
	}
	if config.MacroSequence == nil {
		t.Fatal("Expected a default sequence")
	}
	if config.AutoSaveInterval != 30 {
		t.Errorf("AutoSaveInterval = %d, want 30", config.AutoSaveInterval)
	}
	if config.ActionDelay != 0.5 {
		t.Errorf("ActionDelay = %v, want 0.5", config.ActionDelay)
	}
	if config.TelegramConfig.Enabled {
		t.Error("Telegram should default to disabled")
	}
}

func TestTemplateLegacyThresholdDefault(t *testing.T) {
	data := []byte(`{"id": "t1", "name": "button", "file_path": "a.png", "created_at": "2025-01-15T10:30:00.123456"}`)

	template := &ImageTemplate{}
	if err := json.Unmarshal(data, template); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if template.Threshold != 0.8 {
		t.Errorf("Threshold = %v, want legacy default 0.8", template.Threshold)
	}
	if template.CreatedAt.Year() != 2025 || template.CreatedAt.Month() != time.January {
		t.Errorf("Naive timestamp not parsed: %v", template.CreatedAt)
	}
}

func TestTemplateCRUD(t *testing.T) {
	config := NewMacroConfig()

	template := NewImageTemplate("start button", "assets/start.png", 0.9)
	config.AddImageTemplate(template)

	if got := config.GetImageTemplate(template.ID); got != template {
		t.Errorf("GetImageTemplate returned %+v", got)
	}
	if got := config.GetImageTemplate("nope"); got != nil {
		t.Errorf("Unknown ID should return nil, got %+v", got)
	}

	if !config.RemoveImageTemplate(template.ID) {
		t.Error("RemoveImageTemplate returned false for existing template")
	}
	if config.RemoveImageTemplate(template.ID) {
		t.Error("RemoveImageTemplate returned true for removed template")
	}
	if got := config.GetImageTemplate(template.ID); got != nil {
		t.Error("Template still retrievable after removal")
	}
}

func TestSequenceMutation(t *testing.T) {
	sequence := NewMacroSequence("edit-test", "")

	a1, _ := NewAction(ActionWait)
	a2, _ := NewAction(ActionClick)
	a3, _ := NewAction(ActionTypeText)

	before := sequence.ModifiedAt
	time.Sleep(10 * time.Millisecond)

	sequence.AddAction(a1)
	sequence.AddAction(a2)
	sequence.AddAction(a3)

	if !sequence.ModifiedAt.After(before) {
		t.Error("AddAction should bump ModifiedAt")
	}
	if len(sequence.Actions) != 3 {
		t.Fatalf("Expected 3 actions, got %d", len(sequence.Actions))
	}

	t.Run("GetAction", func(t *testing.T) {
		if got := sequence.GetAction(a2.ID); got != a2 {
			t.Errorf("GetAction returned %+v", got)
		}
		if got := sequence.GetAction("missing"); got != nil {
			t.Errorf("Unknown ID should return nil")
		}
	})

	t.Run("MoveAction", func(t *testing.T) {
		if !sequence.MoveAction(a3.ID, 0) {
			t.Fatal("MoveAction returned false")
		}
		if sequence.Actions[0] != a3 || sequence.Actions[1] != a1 || sequence.Actions[2] != a2 {
			t.Errorf("Order after move: %s %s %s", sequence.Actions[0].ID, sequence.Actions[1].ID, sequence.Actions[2].ID)
		}

		if sequence.MoveAction(a3.ID, 5) {
			t.Error("Out-of-range move should return false")
		}
		if sequence.MoveAction("missing", 0) {
			t.Error("Unknown ID move should return false")
		}
	})

	t.Run("RemoveAction", func(t *testing.T) {
		if !sequence.RemoveAction(a1.ID) {
			t.Fatal("RemoveAction returned false")
		}
		if len(sequence.Actions) != 2 {
			t.Errorf("Expected 2 actions after removal, got %d", len(sequence.Actions))
		}
		if sequence.RemoveAction(a1.ID) {
			t.Error("Removing twice should return false")
		}
	})

	t.Run("Snapshot", func(t *testing.T) {
		snapshot := sequence.SnapshotActions()
		sequence.RemoveAction(snapshot[0].ID)

		if len(snapshot) != 2 {
			t.Errorf("Snapshot length changed after mutation: %d", len(snapshot))
		}
		if snapshot[0] == nil {
			t.Error("Snapshot entry lost after mutation")
		}
	})
}

func TestLoopSpec(t *testing.T) {
	tests := []struct {
		name      string
		loopCount int
		want      LoopSpec
	}{
		{"RunOnce", 1, LoopSpec{Count: 1}},
		{"RunSeveral", 5, LoopSpec{Count: 5}},
		{"ZeroMeansForever", 0, LoopSpec{Forever: true}},
		{"NegativeMeansForever", -2, LoopSpec{Forever: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sequence := NewMacroSequence("loops", "")
			sequence.LoopCount = tt.loopCount

			if got := sequence.Loops(); got != tt.want {
				t.Errorf("Loops() = %+v, want %+v", got, tt.want)
			}
		})
	}

	t.Run("StoredValuePreserved", func(t *testing.T) {
		sequence := NewMacroSequence("loops", "")
		sequence.LoopCount = 0

		data, err := json.Marshal(sequence)
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}

		decoded := &MacroSequence{}
		if err := json.Unmarshal(data, decoded); err != nil {
			t.Fatalf("Unmarshal failed: %v", err)
		}

		if decoded.LoopCount != 0 {
			t.Errorf("Stored loop count = %d, want 0 preserved", decoded.LoopCount)
		}
		if !decoded.Loops().Forever {
			t.Error("Zero loop count should resolve to forever")
		}
	})
}
