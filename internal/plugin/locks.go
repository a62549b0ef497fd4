// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MPPS Contributors

package plugin

// Lock order: loadedMu, then runningMu, then callbacksMu. A path that holds
// more than one acquires them in that order and releases in reverse.

func (m *Manager) lockAll() {
	m.loadedMu.Lock()
	m.runningMu.Lock()
	m.callbacksMu.Lock()
}

func (m *Manager) unlockAll() {
	m.callbacksMu.Unlock()
	m.runningMu.Unlock()
	m.loadedMu.Unlock()
}

// lockRunning acquires runningMu and callbacksMu.
func (m *Manager) lockRunning() {
	m.runningMu.Lock()
	m.callbacksMu.Lock()
}

func (m *Manager) unlockRunning() {
	m.callbacksMu.Unlock()
	m.runningMu.Unlock()
}
