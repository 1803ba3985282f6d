// Package configfile loads the YAML manifest that tells a combatlog host
// which plugins to register, in what order, and whether Wasm-sandboxed
// plugins should be loaded from disk (§4.7 "Plugin registration").
package configfile

// ManifestFile is the top-level structure of a plugin manifest YAML file.
//
// Example:
//
//	version: 1
//	plugins:
//	  - id: statsplugin
//	    kind: builtin
//	    priority: 1000
//	  - id: threat-tracker
//	    kind: wasm
//	    path: ./plugins/threat-tracker.wasm
//	    priority: 50
//	    enabled: true
type ManifestFile struct {
	// Version is the manifest format version. Currently only version 1
	// is supported.
	Version int `yaml:"version"`

	// Plugins is the ordered list of plugin entries. Manager.RegisterPlugin
	// stable-sorts by Priority, so order in the file affects dispatch order
	// only among plugins of equal Priority; it also sets registration-id
	// assignment, which is monotone in registration order.
	Plugins []PluginEntry `yaml:"plugins"`
}

// PluginKind distinguishes a manifest entry that names a built-in
// (compiled into the host binary) from one that names an external Wasm
// module to sandbox and load (§6 "Plugin ABI").
type PluginKind string

const (
	KindBuiltin PluginKind = "builtin"
	KindWasm    PluginKind = "wasm"
)

// PluginEntry is a single plugin registration directive.
type PluginEntry struct {
	// ID identifies this entry within the manifest (e.g. "statsplugin").
	// For KindBuiltin it must match a name the host's builtin registry
	// recognizes; for KindWasm it is a label only.
	ID string `yaml:"id"`

	// Kind is "builtin" or "wasm". Defaults to "wasm" if empty and Path
	// is set, "builtin" otherwise.
	Kind PluginKind `yaml:"kind"`

	// Path is the Wasm module file path. Required when Kind == KindWasm.
	Path string `yaml:"path"`

	// Priority is the dispatch priority of a Wasm plugin, its only
	// source of priority, since the ABI carries none. It is ignored for
	// built-in plugins, which keep their own priority.
	Priority int `yaml:"priority"`

	// Enabled sets the plugin's initial enabled state. Defaults to true
	// when the key is absent, via PluginEntry.IsEnabled.
	Enabled *bool `yaml:"enabled"`
}

// IsEnabled reports the entry's effective enabled state, defaulting to
// true when the YAML key was not present.
func (p PluginEntry) IsEnabled() bool {
	if p.Enabled == nil {
		return true
	}
	return *p.Enabled
}

// EffectiveKind resolves Kind's default per the field doc above.
func (p PluginEntry) EffectiveKind() PluginKind {
	if p.Kind != "" {
		return p.Kind
	}
	if p.Path != "" {
		return KindWasm
	}
	return KindBuiltin
}
