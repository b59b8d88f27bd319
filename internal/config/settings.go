package config

import (
	"fmt"

	"gopkg.in/ini.v1"
)

// Settings holds the application-level settings that live outside the
// macro document: file locations, pacing, hotkeys and diagnostics. The
// macro sequence itself is persisted separately as JSON.
type Settings struct {
	// Paths
	MacroConfigPath    string
	DatabasePath       string
	LogDirectory       string
	ScreenshotSavePath string
	TemplateLibrary    string
	DebugArtifactDir   string

	// Engine
	ActionDelay      float64
	LoopDelay        float64
	MatchConfidence  float64
	SelectedMonitor  int
	AutoSaveInterval int
	RecordRunHistory bool
	PreloadTemplates bool

	// Hotkeys
	HotkeysEnabled bool
	RunHotkey      string
	StopHotkey     string
	PauseHotkey    string

	// Telegram (tokens normally arrive via the environment, see env.go)
	TelegramEnabled         bool
	TelegramBotToken        string
	TelegramChatID          string
	TelegramFinishedMessage bool

	// Diagnostics
	LogLevel       string
	LoggingEnabled bool
	DebugMatching  bool
}

// LoadFromINI loads application settings from a Settings.ini file
func LoadFromINI(path string) (*Settings, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings file: %w", err)
	}

	settings := &Settings{}

	paths := cfg.Section("Paths")
	settings.MacroConfigPath = paths.Key("macroConfigPath").MustString("config/macro_config.json")
	settings.DatabasePath = paths.Key("databasePath").MustString("data/run_history.db")
	settings.LogDirectory = paths.Key("logDirectory").MustString("logs")
	settings.ScreenshotSavePath = paths.Key("screenshotSavePath").MustString("assets/screenshots")
	settings.TemplateLibrary = paths.Key("templateLibrary").MustString("")
	settings.DebugArtifactDir = paths.Key("debugArtifactDir").MustString("")

	engine := cfg.Section("Engine")
	settings.ActionDelay = engine.Key("actionDelay").MustFloat64(0.5)
	settings.LoopDelay = engine.Key("loopDelay").MustFloat64(1.0)
	settings.MatchConfidence = engine.Key("matchConfidence").MustFloat64(0.7)
	settings.SelectedMonitor = engine.Key("selectedMonitor").MustInt(0)
	settings.AutoSaveInterval = engine.Key("autoSaveInterval").MustInt(30)
	settings.RecordRunHistory = engine.Key("recordRunHistory").MustBool(true)
	settings.PreloadTemplates = engine.Key("preloadTemplates").MustBool(false)

	hotkeys := cfg.Section("Hotkeys")
	settings.HotkeysEnabled = hotkeys.Key("enabled").MustBool(true)
	settings.RunHotkey = hotkeys.Key("run").MustString("f6")
	settings.StopHotkey = hotkeys.Key("stop").MustString("f7")
	settings.PauseHotkey = hotkeys.Key("pause").MustString("f8")

	telegram := cfg.Section("Telegram")
	settings.TelegramEnabled = telegram.Key("enabled").MustBool(false)
	settings.TelegramBotToken = telegram.Key("botToken").MustString("")
	settings.TelegramChatID = telegram.Key("chatId").MustString("")
	settings.TelegramFinishedMessage = telegram.Key("finishedMessage").MustBool(false)

	debug := cfg.Section("Debug")
	settings.LogLevel = debug.Key("logLevel").MustString("INFO")
	settings.LoggingEnabled = debug.Key("loggingEnabled").MustBool(true)
	settings.DebugMatching = debug.Key("debugMatching").MustBool(false)

	return settings, nil
}

// NewDefaultSettings returns settings with every key at its default
func NewDefaultSettings() *Settings {
	return &Settings{
		MacroConfigPath:    "config/macro_config.json",
		DatabasePath:       "data/run_history.db",
		LogDirectory:       "logs",
		ScreenshotSavePath: "assets/screenshots",
		ActionDelay:        0.5,
		LoopDelay:          1.0,
		MatchConfidence:    0.7,
		AutoSaveInterval:   30,
		RecordRunHistory:   true,
		HotkeysEnabled:     true,
		RunHotkey:          "f6",
		StopHotkey:         "f7",
		PauseHotkey:        "f8",
		LogLevel:           "INFO",
		LoggingEnabled:     true,
	}
}

// SaveToINI saves application settings to an INI file
func SaveToINI(settings *Settings, path string) error {
	cfg := ini.Empty()

	paths := cfg.Section("Paths")
	paths.Key("macroConfigPath").SetValue(settings.MacroConfigPath)
	paths.Key("databasePath").SetValue(settings.DatabasePath)
	paths.Key("logDirectory").SetValue(settings.LogDirectory)
	paths.Key("screenshotSavePath").SetValue(settings.ScreenshotSavePath)
	paths.Key("templateLibrary").SetValue(settings.TemplateLibrary)
	paths.Key("debugArtifactDir").SetValue(settings.DebugArtifactDir)

	engine := cfg.Section("Engine")
	engine.Key("actionDelay").SetValue(fmt.Sprintf("%g", settings.ActionDelay))
	engine.Key("loopDelay").SetValue(fmt.Sprintf("%g", settings.LoopDelay))
	engine.Key("matchConfidence").SetValue(fmt.Sprintf("%g", settings.MatchConfidence))
	engine.Key("selectedMonitor").SetValue(fmt.Sprintf("%d", settings.SelectedMonitor))
	engine.Key("autoSaveInterval").SetValue(fmt.Sprintf("%d", settings.AutoSaveInterval))
	engine.Key("recordRunHistory").SetValue(fmt.Sprintf("%t", settings.RecordRunHistory))
	engine.Key("preloadTemplates").SetValue(fmt.Sprintf("%t", settings.PreloadTemplates))

	hotkeys := cfg.Section("Hotkeys")
	hotkeys.Key("enabled").SetValue(fmt.Sprintf("%t", settings.HotkeysEnabled))
	hotkeys.Key("run").SetValue(settings.RunHotkey)
	hotkeys.Key("stop").SetValue(settings.StopHotkey)
	hotkeys.Key("pause").SetValue(settings.PauseHotkey)

	telegram := cfg.Section("Telegram")
	telegram.Key("enabled").SetValue(fmt.Sprintf("%t", settings.TelegramEnabled))
	telegram.Key("botToken").SetValue(settings.TelegramBotToken)
	telegram.Key("chatId").SetValue(settings.TelegramChatID)
	telegram.Key("finishedMessage").SetValue(fmt.Sprintf("%t", settings.TelegramFinishedMessage))

	debug := cfg.Section("Debug")
	debug.Key("logLevel").SetValue(settings.LogLevel)
	debug.Key("loggingEnabled").SetValue(fmt.Sprintf("%t", settings.LoggingEnabled))
	debug.Key("debugMatching").SetValue(fmt.Sprintf("%t", settings.DebugMatching))

	return cfg.SaveTo(path)
}
