package input

import (
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/go-vgo/robotgo"

	"ktxmacro.dev/ktx-macro-go/internal/logging"
)

// moveTolerance is the accepted cursor error in pixels after a move.
const moveTolerance = 3

// driver abstracts the OS input layer so the controller can be tested
// without moving a real cursor.
type driver interface {
	Move(x, y int)
	MoveSmooth(x, y int)
	Location() (x, y int)
	Click(button string, double bool)
	MouseToggle(button, direction string) error
	Scroll(horizontal, vertical int)
	KeyTap(key string, modifiers ...string) error
	KeyToggle(key, direction string) error
	WriteClipboard(text string) error
	ScreenSize() (width, height int)
	CaptureSize() (width, height int, err error)
}

// robotgoDriver is the real driver backed by robotgo.
type robotgoDriver struct{}

func (robotgoDriver) Move(x, y int)       { robotgo.Move(x, y) }
func (robotgoDriver) MoveSmooth(x, y int) { robotgo.MoveSmooth(x, y) }
func (robotgoDriver) Location() (int, int) { return robotgo.Location() }
func (robotgoDriver) Click(button string, double bool) { robotgo.Click(button, double) }
func (robotgoDriver) MouseToggle(button, direction string) error {
	return robotgo.Toggle(button, direction)
}
func (robotgoDriver) Scroll(horizontal, vertical int) { robotgo.Scroll(horizontal, vertical) }
func (robotgoDriver) KeyTap(key string, modifiers ...string) error {
	args := make([]interface{}, len(modifiers))
	for i, m := range modifiers {
		args[i] = m
	}
	return robotgo.KeyTap(key, args...)
}
func (robotgoDriver) KeyToggle(key, direction string) error {
	return robotgo.KeyToggle(key, direction)
}
func (robotgoDriver) WriteClipboard(text string) error { return robotgo.WriteAll(text) }
func (robotgoDriver) ScreenSize() (int, int)           { return robotgo.GetScreenSize() }
func (robotgoDriver) CaptureSize() (int, int, error) {
	img, err := robotgo.CaptureImg()
	if err != nil {
		return 0, 0, err
	}
	bounds := img.Bounds()
	return bounds.Dx(), bounds.Dy(), nil
}

// Delays bundles the pacing applied around input actions.
type Delays struct {
	Default   time.Duration
	Click     time.Duration
	Key       time.Duration
	MouseMove time.Duration
}

// Controller drives mouse and keyboard input. Screen coordinates are given
// in captured pixels and divided by the display scale factor before acting,
// so callers can work directly with match results.
type Controller struct {
	driver      driver
	logger      *logging.Logger
	scaleFactor float64
	delays      Delays
	mu          sync.RWMutex
}

// NewController creates an input controller and detects the display scale
// factor by comparing a captured frame against the logical screen size.
func NewController() *Controller {
	return newController(robotgoDriver{})
}

func newController(d driver) *Controller {
	c := &Controller{
		driver: d,
		logger: logging.NewLogger("input"),
	}
	c.scaleFactor = c.detectScaleFactor()
	c.logger.InfoWithContext("input scale factor", map[string]interface{}{
		"scale": c.scaleFactor,
	})
	return c
}

func (c *Controller) detectScaleFactor() float64 {
	logicalWidth, _ := c.driver.ScreenSize()
	if logicalWidth <= 0 {
		c.logger.Warn("logical screen size unavailable, assuming scale 1.0")
		return 1.0
	}
	pixelWidth, _, err := c.driver.CaptureSize()
	if err != nil || pixelWidth <= 0 {
		c.logger.Warn("scale factor detection failed, assuming scale 1.0")
		return 1.0
	}
	return float64(pixelWidth) / float64(logicalWidth)
}

// GetScaleFactor returns the scale factor currently applied to coordinates
func (c *Controller) GetScaleFactor() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.scaleFactor
}

// SetScaleFactor overrides the detected scale factor
func (c *Controller) SetScaleFactor(scale float64) {
	if scale <= 0 {
		return
	}
	c.mu.Lock()
	c.scaleFactor = scale
	c.mu.Unlock()
}

// SetDelays replaces the pacing configuration
func (c *Controller) SetDelays(d Delays) {
	c.mu.Lock()
	c.delays = d
	c.mu.Unlock()
}

// GetDelays returns the current pacing configuration
func (c *Controller) GetDelays() Delays {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.delays
}

// AdjustCoordinates converts captured pixel coordinates into logical screen
// coordinates by dividing through the scale factor.
func (c *Controller) AdjustCoordinates(x, y int) (int, int) {
	scale := c.GetScaleFactor()
	if scale == 1.0 || scale <= 0 {
		return x, y
	}
	return int(float64(x) / scale), int(float64(y) / scale)
}

// MoveMouse moves the cursor to the given captured coordinates and verifies
// the final position, retrying once when the cursor lands more than a few
// pixels off target.
func (c *Controller) MoveMouse(x, y int) (ok bool) {
	defer c.recoverOp("move_mouse", &ok)

	targetX, targetY := c.AdjustCoordinates(x, y)

	const maxAttempts = 2
	var finalX, finalY int
	for attempt := 0; attempt < maxAttempts; attempt++ {
		c.driver.Move(targetX, targetY)
		finalX, finalY = c.driver.Location()
		if abs(finalX-targetX) <= moveTolerance && abs(finalY-targetY) <= moveTolerance {
			return true
		}
		c.logger.DebugWithContext("mouse move retry", map[string]interface{}{
			"attempt":  attempt + 1,
			"target_x": targetX,
			"target_y": targetY,
			"actual_x": finalX,
			"actual_y": finalY,
		})
	}

	c.logger.WarnWithContext("mouse move inaccurate", map[string]interface{}{
		"target_x": targetX,
		"target_y": targetY,
		"actual_x": finalX,
		"actual_y": finalY,
	})
	return false
}

// Click presses the left mouse button, at a screen position when two
// coordinates are given or at the current cursor position otherwise.
func (c *Controller) Click(pos ...int) bool {
	return c.click("left", false, pos)
}

// DoubleClick double-presses the left mouse button
func (c *Controller) DoubleClick(pos ...int) bool {
	return c.click("left", true, pos)
}

// RightClick presses the right mouse button
func (c *Controller) RightClick(pos ...int) bool {
	return c.click("right", false, pos)
}

func (c *Controller) click(button string, double bool, pos []int) (ok bool) {
	defer c.recoverOp("click", &ok)

	if len(pos) >= 2 {
		if !c.MoveMouse(pos[0], pos[1]) {
			return false
		}
		c.pause(c.GetDelays().Click)
	}

	c.driver.Click(button, double)
	c.pause(c.GetDelays().Default)
	return true
}

// ClickAdjusted clicks at coordinates that have already been converted to
// logical screen space, skipping coordinate adjustment and move
// verification.
func (c *Controller) ClickAdjusted(x, y int) (ok bool) {
	defer c.recoverOp("click_adjusted", &ok)

	c.driver.Move(x, y)
	c.pause(c.GetDelays().Click)
	c.driver.Click("left", false)
	c.pause(c.GetDelays().Default)
	return true
}

// Drag presses the left button at the start position, drags to the end
// position and releases.
func (c *Controller) Drag(fromX, fromY, toX, toY int) (ok bool) {
	defer c.recoverOp("drag", &ok)

	if !c.MoveMouse(fromX, fromY) {
		return false
	}
	c.pause(c.GetDelays().Click)

	targetX, targetY := c.AdjustCoordinates(toX, toY)
	if err := c.driver.MouseToggle("left", "down"); err != nil {
		c.logger.Error("drag press failed", err)
		return false
	}
	c.driver.MoveSmooth(targetX, targetY)
	if err := c.driver.MouseToggle("left", "up"); err != nil {
		c.logger.Error("drag release failed", err)
		return false
	}

	c.pause(c.GetDelays().Default)
	return true
}

// Scroll scrolls the wheel in the given direction. Up and right scroll with
// a positive amount, down and left with a negative one. An unknown direction
// is a no-op.
func (c *Controller) Scroll(direction string, amount int) (ok bool) {
	defer c.recoverOp("scroll", &ok)

	scrollAmount := amount
	if direction != "up" && direction != "right" {
		scrollAmount = -amount
	}

	switch direction {
	case "up", "down":
		c.driver.Scroll(0, scrollAmount)
	case "left", "right":
		c.driver.Scroll(scrollAmount, 0)
	}

	c.pause(c.GetDelays().Default)
	return true
}

// TypeText types text by placing it on the clipboard and sending the paste
// shortcut, which keeps non-ASCII text intact. Empty text succeeds without
// doing anything.
func (c *Controller) TypeText(text string) (ok bool) {
	defer c.recoverOp("type_text", &ok)

	if text == "" {
		return true
	}

	if err := c.driver.WriteClipboard(text); err != nil {
		c.logger.Error("clipboard write failed", err)
		return false
	}

	modifier := "control"
	if runtime.GOOS == "darwin" {
		modifier = "command"
	}
	if err := c.driver.KeyTap("v", modifier); err != nil {
		c.logger.Error("paste failed", err)
		return false
	}

	c.pause(c.GetDelays().Default)
	return true
}

// PressKey taps a key, optionally multiple times
func (c *Controller) PressKey(key string, presses ...int) (ok bool) {
	defer c.recoverOp("press_key", &ok)

	count := 1
	if len(presses) > 0 && presses[0] > 0 {
		count = presses[0]
	}

	normalized := normalizeKey(key)
	for i := 0; i < count; i++ {
		if err := c.driver.KeyTap(normalized); err != nil {
			c.logger.ErrorWithContext("key press failed", err, map[string]interface{}{
				"key": key,
			})
			return false
		}
		if i < count-1 {
			c.pause(c.GetDelays().Key)
		}
	}

	c.pause(c.GetDelays().Default)
	return true
}

// KeyCombination presses a chord. A single key is a plain tap; with more
// keys the last one is tapped while the preceding keys are held as
// modifiers. An empty list succeeds.
func (c *Controller) KeyCombination(keys []string) (ok bool) {
	defer c.recoverOp("key_combination", &ok)

	if len(keys) == 0 {
		return true
	}
	if len(keys) == 1 {
		return c.PressKey(keys[0])
	}

	main := normalizeKey(keys[len(keys)-1])
	modifiers := make([]string, 0, len(keys)-1)
	for _, k := range keys[:len(keys)-1] {
		modifiers = append(modifiers, normalizeModifier(k))
	}

	if err := c.driver.KeyTap(main, modifiers...); err != nil {
		c.logger.ErrorWithContext("key combination failed", err, map[string]interface{}{
			"keys": strings.Join(keys, "+"),
		})
		return false
	}

	c.pause(c.GetDelays().Default)
	return true
}

// HoldKey keeps a key pressed for the given duration
func (c *Controller) HoldKey(key string, duration time.Duration) (ok bool) {
	defer c.recoverOp("hold_key", &ok)

	normalized := normalizeKey(key)
	if err := c.driver.KeyToggle(normalized, "down"); err != nil {
		c.logger.Error("key hold failed", err)
		return false
	}
	time.Sleep(duration)
	if err := c.driver.KeyToggle(normalized, "up"); err != nil {
		c.logger.Error("key release failed", err)
		return false
	}

	c.pause(c.GetDelays().Default)
	return true
}

// Wait sleeps for the given number of seconds. Non-positive durations return
// immediately.
func (c *Controller) Wait(seconds float64) bool {
	if seconds <= 0 {
		return true
	}
	time.Sleep(time.Duration(seconds * float64(time.Second)))
	return true
}

// MousePosition returns the current cursor position in logical coordinates
func (c *Controller) MousePosition() (int, int) {
	return c.driver.Location()
}

func (c *Controller) pause(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}

func (c *Controller) recoverOp(op string, ok *bool) {
	if r := recover(); r != nil {
		c.logger.ErrorWithContext("input operation panicked", fmt.Errorf("%v", r), map[string]interface{}{
			"op": op,
		})
		*ok = false
	}
}

// normalizeKey maps common key aliases onto the names robotgo understands.
func normalizeKey(key string) string {
	switch strings.ToLower(key) {
	case "escape":
		return "esc"
	case "return":
		return "enter"
	default:
		return strings.ToLower(key)
	}
}

// normalizeModifier maps modifier aliases onto robotgo modifier names.
func normalizeModifier(mod string) string {
	switch strings.ToLower(mod) {
	case "command", "cmd", "super":
		return "command"
	case "control", "ctrl":
		return "control"
	case "alt", "option":
		return "alt"
	case "shift":
		return "shift"
	default:
		return strings.ToLower(mod)
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
