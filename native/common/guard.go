package common

import "errors"

// ErrModulePaused is returned when a mutating entry point is invoked while
// governance has paused the module.
var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a native module is currently paused.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects the call when the module is paused. A nil view means pauses
// are not wired and everything is allowed.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
