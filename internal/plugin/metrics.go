// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MPPS Contributors

package plugin

// Metrics receives supervisor events. Implementations must be safe for
// concurrent use.
type Metrics interface {
	PluginStarted(name string)
	PluginStopped(name string)
	MessageRelayed(name, status string)
	CallbackDelivered(name string)
	CallbackBackpressure(name string)
	Operation(op, result string)
}

type noopMetrics struct{}

func (noopMetrics) PluginStarted(string)          {}
func (noopMetrics) PluginStopped(string)          {}
func (noopMetrics) MessageRelayed(string, string) {}
func (noopMetrics) CallbackDelivered(string)      {}
func (noopMetrics) CallbackBackpressure(string)   {}
func (noopMetrics) Operation(string, string)      {}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
