package state

import "strings"

// IsPaused implements the native pause view. Read errors report the module
// as running.
func (m *Manager) IsPaused(module string) bool {
	paused, err := m.flag(joinKey(pausePrefix, []byte(strings.TrimSpace(module))))
	return err == nil && paused
}

// SetModulePaused records the pause flag of module.
func (m *Manager) SetModulePaused(module string, paused bool) error {
	return m.setFlag(joinKey(pausePrefix, []byte(strings.TrimSpace(module))), paused)
}
