package combatlog

import "fmt"

// PluginPanicError records a plugin that panicked during Ingest. The
// Manager logs it, disables the plugin, and continues with the remaining
// plugins for the same event (§4.8 "Plugin exceptions/panics").
type PluginPanicError struct {
	PluginID   uint16
	PluginName string
	Recovered  any
}

func (e *PluginPanicError) Error() string {
	return fmt.Sprintf("plugin %d (%s) panicked: %v", e.PluginID, e.PluginName, e.Recovered)
}
