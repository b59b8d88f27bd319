// Package hotkeys provides system-wide hotkey registration backed by an
// OS-level keyboard hook. Callbacks fire regardless of which window has
// focus, which is how the run and stop keys keep working while a macro
// drives the mouse elsewhere.
package hotkeys

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	hook "github.com/robotn/gohook"

	"ktxmacro.dev/ktx-macro-go/internal/logging"
)

// eventSource abstracts the OS keyboard hook for testing.
type eventSource interface {
	start() chan hook.Event
	end()
	keyName(ev hook.Event) string
}

// systemHook is the production event source backed by gohook.
type systemHook struct{}

func (systemHook) start() chan hook.Event { return hook.Start() }

func (systemHook) end() { hook.End() }

func (systemHook) keyName(ev hook.Event) string {
	return hook.RawcodetoKeychar(ev.Rawcode)
}

// Binding describes one registered hotkey.
type Binding struct {
	Key         string
	Description string
}

type binding struct {
	callback    func()
	description string
}

// Manager owns a set of hotkey bindings and the listener goroutine that
// dispatches them. Keys may be registered or removed while the listener
// is running.
type Manager struct {
	source   eventSource
	logger   *logging.Logger
	bindings map[string]binding

	listening bool
	stop      chan struct{}
	done      chan struct{}
	mu        sync.RWMutex
}

// NewManager creates a hotkey manager bound to the system keyboard hook.
func NewManager() *Manager {
	return newManager(systemHook{})
}

func newManager(source eventSource) *Manager {
	return &Manager{
		source:   source,
		logger:   logging.NewLogger("hotkeys"),
		bindings: make(map[string]binding),
	}
}

// Register binds a callback to a key. Key names follow gohook naming
// ("f10", "esc", "a"); angle brackets from other conventions are
// tolerated. Returns false if the key is already taken.
func (m *Manager) Register(key string, description string, callback func()) bool {
	name := normalizeKey(key)
	if name == "" || callback == nil {
		m.logger.WarnWithContext("Invalid hotkey registration", map[string]interface{}{
			"key": key,
		})
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.bindings[name]; exists {
		m.logger.WarnWithContext("Hotkey already registered", map[string]interface{}{
			"key": name,
		})
		return false
	}

	m.bindings[name] = binding{callback: callback, description: description}
	m.logger.InfoWithContext("Registered global hotkey", map[string]interface{}{
		"key":         name,
		"description": description,
	})
	return true
}

// Unregister removes a key binding. Returns false if it was not registered.
func (m *Manager) Unregister(key string) bool {
	name := normalizeKey(key)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.bindings[name]; !exists {
		m.logger.WarnWithContext("Hotkey not registered", map[string]interface{}{
			"key": name,
		})
		return false
	}

	delete(m.bindings, name)
	m.logger.InfoWithContext("Unregistered global hotkey", map[string]interface{}{
		"key": name,
	})
	return true
}

// Registered returns the current bindings sorted by key.
func (m *Manager) Registered() []Binding {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Binding, 0, len(m.bindings))
	for key, b := range m.bindings {
		out = append(out, Binding{Key: key, Description: b.description})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// IsListening reports whether the listener goroutine is running.
func (m *Manager) IsListening() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listening
}

// Start launches the listener goroutine. At least one hotkey must be
// registered first. Calling Start while already listening is a no-op.
func (m *Manager) Start() bool {
	m.mu.Lock()
	if m.listening {
		m.mu.Unlock()
		m.logger.Warn("Hotkey listener already running")
		return true
	}
	if len(m.bindings) == 0 {
		m.mu.Unlock()
		m.logger.Warn("No hotkeys registered, listener not started")
		return false
	}

	count := len(m.bindings)
	stop := make(chan struct{})
	done := make(chan struct{})
	m.stop = stop
	m.done = done
	m.listening = true
	m.mu.Unlock()

	go m.listen(stop, done)

	m.logger.InfoWithContext("Global hotkey listener started", map[string]interface{}{
		"hotkeys": count,
	})
	return true
}

// Stop shuts the listener down and waits for the hook to release.
// Safe to call when not listening.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.listening {
		m.mu.Unlock()
		return
	}
	stop := m.stop
	done := m.done
	m.listening = false
	m.stop = nil
	m.done = nil
	m.mu.Unlock()

	close(stop)
	<-done

	m.logger.Info("Global hotkey listener stopped")
}

func (m *Manager) listen(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	events := m.source.start()
	defer m.source.end()

	// Tracks keys currently held so auto-repeat does not re-fire a
	// binding before the key is released.
	held := make(map[uint16]bool)

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Kind {
			case hook.KeyDown, hook.KeyHold:
				if held[ev.Rawcode] {
					continue
				}
				held[ev.Rawcode] = true
				m.dispatch(ev)
			case hook.KeyUp:
				delete(held, ev.Rawcode)
			}
		case <-stop:
			return
		}
	}
}

func (m *Manager) dispatch(ev hook.Event) {
	name := normalizeKey(m.source.keyName(ev))
	if name == "" {
		return
	}

	m.mu.RLock()
	b, exists := m.bindings[name]
	m.mu.RUnlock()
	if !exists {
		return
	}

	m.logger.InfoWithContext("Global hotkey triggered", map[string]interface{}{
		"key":         name,
		"description": b.description,
	})
	m.invoke(name, b.callback)
}

// invoke runs a callback with panic isolation so a faulty handler
// cannot kill the listener goroutine.
func (m *Manager) invoke(key string, callback func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.ErrorWithContext("Hotkey callback panicked", fmt.Errorf("%v", r), map[string]interface{}{
				"key": key,
			})
		}
	}()
	callback()
}

func normalizeKey(key string) string {
	key = strings.TrimSpace(strings.ToLower(key))
	key = strings.TrimPrefix(key, "<")
	key = strings.TrimSuffix(key, ">")
	return key
}
