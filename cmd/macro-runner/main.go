package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"ktxmacro.dev/ktx-macro-go/internal/capture"
	appconfig "ktxmacro.dev/ktx-macro-go/internal/config"
	"ktxmacro.dev/ktx-macro-go/internal/cv"
	"ktxmacro.dev/ktx-macro-go/internal/engine"
	"ktxmacro.dev/ktx-macro-go/internal/events"
	"ktxmacro.dev/ktx-macro-go/internal/hotkeys"
	"ktxmacro.dev/ktx-macro-go/internal/input"
	"ktxmacro.dev/ktx-macro-go/internal/logging"
	"ktxmacro.dev/ktx-macro-go/internal/models"
	"ktxmacro.dev/ktx-macro-go/internal/notify"
	"ktxmacro.dev/ktx-macro-go/internal/storage"
	"ktxmacro.dev/ktx-macro-go/pkg/templates"
)

func main() {
	// Load application settings, with environment overrides on top
	settings, err := appconfig.LoadFromINI("Settings.ini")
	if err != nil {
		log.Printf("Warning: failed to load Settings.ini: %v", err)
		settings = appconfig.NewDefaultSettings()
	}
	if overrides, err := appconfig.LoadEnvOverrides(); err != nil {
		log.Printf("Warning: failed to read env overrides: %v", err)
	} else {
		overrides.Apply(settings)
	}

	logger := logging.NewLogger("runner").SetMinLevel(logging.ParseLevel(settings.LogLevel))

	// Load the macro document; a missing file yields an empty config
	macroConfig, err := models.LoadConfigFromFile(settings.MacroConfigPath)
	if err != nil {
		logger.Fatal("macro config is corrupt", err)
		os.Exit(1)
	}
	if settings.TelegramBotToken != "" {
		macroConfig.TelegramConfig.BotToken = settings.TelegramBotToken
	}
	if settings.TelegramChatID != "" {
		macroConfig.TelegramConfig.ChatID = settings.TelegramChatID
	}
	if settings.TelegramEnabled {
		macroConfig.TelegramConfig.Enabled = true
	}
	if settings.TelegramFinishedMessage {
		macroConfig.TelegramConfig.UseFinishedMessage = true
	}

	// Optional template library import
	if settings.TemplateLibrary != "" {
		library := templates.NewLibrary(settings.TemplateLibrary)
		if err := library.LoadFromDirectory(settings.TemplateLibrary); err != nil {
			logger.Error("template library load failed", err)
		} else {
			added := library.ImportInto(macroConfig)
			logger.InfoWithContext("template library loaded", map[string]interface{}{
				"entries":  library.Count(),
				"imported": added,
			})
			if settings.PreloadTemplates {
				if err := library.PreloadAll(); err != nil {
					logger.Error("template preload failed", err)
				}
			}
		}
	}

	bus := events.NewEventBus(64)
	defer bus.Stop()

	if settings.LoggingEnabled {
		eventLogger, err := logging.NewEventLogger(bus, settings.LogDirectory)
		if err != nil {
			logger.Error("event log unavailable", err)
		} else {
			defer eventLogger.Close()
		}
	}

	// Assemble the engine and its collaborators
	matcher := cv.NewMatcher()
	if settings.DebugMatching && settings.DebugArtifactDir != "" {
		matcher.WithDebugDir(settings.DebugArtifactDir)
	}

	screen := capture.NewService()
	controller := input.NewController()
	notifier := notify.NewTelegram(macroConfig.TelegramConfig)

	macroEngine := engine.New(macroConfig, screen, matcher, controller, notifier, bus)

	if settings.RecordRunHistory {
		store, err := storage.Open(settings.DatabasePath)
		if err != nil {
			logger.Error("run history store unavailable", err)
		} else {
			defer store.Close()
			macroEngine.SetRecorder(store)
		}
	}

	// Global hotkeys for run/stop/pause control
	var keys *hotkeys.Manager
	if settings.HotkeysEnabled {
		keys = hotkeys.NewManager()
		keys.Register(settings.RunHotkey, "start macro", func() {
			macroEngine.ExecuteSequenceAsync()
		})
		keys.Register(settings.StopHotkey, "stop macro", func() {
			go macroEngine.StopExecution()
		})
		keys.Register(settings.PauseHotkey, "pause or resume macro", func() {
			if !macroEngine.Pause() {
				macroEngine.Resume()
			}
		})
		if keys.Start() {
			logger.InfoWithContext("hotkeys active", map[string]interface{}{
				"run":   settings.RunHotkey,
				"stop":  settings.StopHotkey,
				"pause": settings.PauseHotkey,
			})
			defer keys.Stop()
		} else {
			logger.Warn("hotkey listener failed to start")
		}
	}

	logger.InfoWithContext("macro runner ready", map[string]interface{}{
		"sequence": macroConfig.MacroSequence.Name,
		"actions":  len(macroConfig.MacroSequence.Actions),
	})

	// Run until interrupted
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	<-sigs

	logger.Info("shutting down")
	macroEngine.StopExecution()
}
