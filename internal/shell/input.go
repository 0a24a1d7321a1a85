package shell

import (
	"log/slog"
	"strings"
)

// Modifier is a bitmask of keyboard modifiers held during an input event
type Modifier uint8

const (
	ModShift Modifier = 1 << iota
	ModControl
	ModAlt
)

func (m Modifier) String() string {
	var parts []string
	if m&ModShift != 0 {
		parts = append(parts, "shift")
	}
	if m&ModControl != 0 {
		parts = append(parts, "control")
	}
	if m&ModAlt != 0 {
		parts = append(parts, "alt")
	}
	return strings.Join(parts, "+")
}

// Key routes a key press to the shell. Nothing is bound yet; the press is
// logged and the return value reports whether it was the space bar, the
// key reserved for play/pause.
func (s *Shell) Key(name string, mods Modifier) bool {
	space := strings.EqualFold(name, "space") || name == " "
	slog.Info("Key pressed",
		"key", name,
		"modifiers", mods.String(),
		"space", space,
	)
	return space
}

// Click routes a pointer press at canvas coordinates. Reports whether the
// point lies on the canvas.
func (s *Shell) Click(x, y, button int) bool {
	w, h := s.canvas.Size()
	inside := x >= 0 && y >= 0 && x < w && y < h
	slog.Info("Canvas clicked", "x", x, "y", y, "button", button, "inside", inside)
	return inside
}
