package wasmplugin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/combatlog/combatlog/pkg/combatlog"
	"github.com/combatlog/combatlog/pkg/combatlog/event"
)

const (
	// DefaultTimeout is the default timeout for an ingest_event call.
	DefaultTimeout = 50 * time.Millisecond

	// MaxOutputSize bounds get_plugin_info/ingest_event output (1MB), to
	// prevent memory exhaustion from a malicious or buggy plugin.
	MaxOutputSize = 1 * 1024 * 1024
)

// PluginInfo is the Go projection of the ABI's get_plugin_info result
// (§6 "{ name, version, author, description, api_version }").
type PluginInfo struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Author      string `json:"author"`
	Description string `json:"description"`
	APIVersion  int    `json:"api_version"`
}

// Plugin is a sandboxed WebAssembly module that implements
// combatlog.Plugin. Each call to Ingest/Reset/Close instantiates a
// fresh guest module instance (the same goroutine-safety approach as
// the pre-Plugin-ABI WasmParser), keyed by the one opaque handle
// create_plugin returned when the module was loaded.
type Plugin struct {
	compiled *CompiledWasm
	info     PluginInfo
	handle   uint64

	priority int
	enabled  atomic.Bool

	timeout       atomic.Int64
	logger        *slog.Logger
	moduleCounter atomic.Uint64
}

// Load loads a Wasm plugin module from path, validates its ABI exports,
// creates one plugin instance via create_plugin, and reads its metadata
// via get_plugin_info. priority is assigned by the caller (the config
// file or host), since the ABI carries no priority field.
func Load(ctx context.Context, path string, priority int, logger *slog.Logger) (*Plugin, error) {
	compiled, err := LoadWasm(ctx, path, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load wasm: %w", err)
	}

	modConfig := wazero.NewModuleConfig().WithName("plugin-init")
	mod, err := compiled.runtime.InstantiateModule(ctx, compiled.compiled, modConfig)
	if err != nil {
		cleanupCtx := context.Background()
		compiled.Close(cleanupCtx)
		return nil, &WasmRuntimeError{Operation: "initial module instantiation", Err: err}
	}
	defer mod.Close(context.Background())

	info, err := readPluginInfo(ctx, mod)
	if err != nil {
		cleanupCtx := context.Background()
		compiled.Close(cleanupCtx)
		return nil, err
	}
	if info.APIVersion != PluginAPIVersion {
		cleanupCtx := context.Background()
		compiled.Close(cleanupCtx)
		return nil, ErrABIVersionMismatch
	}

	createFn := mod.ExportedFunction("create_plugin")
	results, err := createFn.Call(ctx)
	if err != nil {
		cleanupCtx := context.Background()
		compiled.Close(cleanupCtx)
		return nil, &WasmRuntimeError{Operation: "create_plugin call", Err: err}
	}
	var handle uint64
	if len(results) > 0 {
		handle = results[0]
	}

	p := &Plugin{
		compiled: compiled,
		info:     info,
		handle:   handle,
		priority: priority,
		logger:   logger,
	}
	p.enabled.Store(true)
	p.timeout.Store(int64(DefaultTimeout))
	return p, nil
}

// Info returns the plugin's metadata, per get_plugin_info.
func (p *Plugin) Info() PluginInfo { return p.info }

func (p *Plugin) Name() string  { return p.info.Name }
func (p *Plugin) Priority() int { return p.priority }
func (p *Plugin) Enabled() bool { return p.enabled.Load() }

// SetEnabled implements the manager-visible half of the disable switch;
// a panic or guest trap inside Ingest still force-disables at the
// Manager level independently of this flag (§4.8).
func (p *Plugin) SetEnabled(v bool) { p.enabled.Store(v) }

// SetTimeout sets the ingest_event execution timeout. Goroutine-safe.
func (p *Plugin) SetTimeout(timeout time.Duration) {
	p.timeout.Store(int64(timeout))
}

// readPluginInfo instantiates the guest module's get_plugin_info export
// and decodes its JSON-over-shared-memory result, the same wire
// convention parse_line used before the Plugin ABI rework: a packed
// (len<<32 | ptr) return value pointing at a buffer in guest memory.
func readPluginInfo(ctx context.Context, mod api.Module) (PluginInfo, error) {
	fn := mod.ExportedFunction("get_plugin_info")
	if fn == nil {
		return PluginInfo{}, &ABIError{Function: "get_plugin_info", Reason: "not exported"}
	}
	results, err := fn.Call(ctx)
	if err != nil {
		return PluginInfo{}, &WasmRuntimeError{Operation: "get_plugin_info call", Err: err}
	}
	if len(results) == 0 {
		return PluginInfo{}, &ABIError{Function: "get_plugin_info", Reason: "no return value"}
	}

	out, err := readPacked(mod, results[0])
	if err != nil {
		return PluginInfo{}, err
	}

	var info PluginInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return PluginInfo{}, fmt.Errorf("failed to unmarshal plugin info: %w", err)
	}
	return info, nil
}

// Ingest runs ev through the guest module's ingest_event export.
// Implements combatlog.Plugin.
func (p *Plugin) Ingest(ctx *combatlog.PluginContext, ev *event.CombatEvent) {
	if err := p.ingest(context.Background(), ev); err != nil {
		if p.logger != nil {
			p.logger.Warn("wasm plugin ingest failed", "plugin", p.info.Name, "error", err)
		}
		panic(err)
	}
}

func (p *Plugin) ingest(ctx context.Context, ev *event.CombatEvent) error {
	if p.compiled == nil {
		return ErrClosed
	}

	timeout := time.Duration(p.timeout.Load())
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	name := fmt.Sprintf("plugin-%d", p.moduleCounter.Add(1))
	modConfig := wazero.NewModuleConfig().WithName(name)
	mod, err := p.compiled.runtime.InstantiateModule(ctx, p.compiled.compiled, modConfig)
	if err != nil {
		return &WasmRuntimeError{Operation: "module instantiation", Err: err}
	}
	defer mod.Close(context.Background())

	payload, err := combatlog.ToJSON(*ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if len(payload) > IORegionSize {
		return fmt.Errorf("event payload too large: %d bytes (max %d)", len(payload), IORegionSize)
	}

	memSize := mod.Memory().Size()
	if IORegion+uint32(len(payload)) > memSize {
		return fmt.Errorf("I/O region (0x%x) + payload size (%d) exceeds wasm memory size (%d bytes)", IORegion, len(payload), memSize)
	}
	if !mod.Memory().Write(IORegion, payload) {
		return fmt.Errorf("failed to write event payload to wasm memory")
	}

	fn := mod.ExportedFunction("ingest_event")
	if fn == nil {
		return &ABIError{Function: "ingest_event", Reason: "not exported"}
	}
	results, err := fn.Call(ctx, p.handle, uint64(IORegion), uint64(len(payload)))
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return ErrTimeout
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &WasmRuntimeError{Operation: "ingest_event call", Err: err}
	}
	if len(results) == 0 {
		return nil
	}

	out, err := readPacked(mod, results[0])
	if err != nil || len(out) == 0 {
		return err
	}

	var resp struct {
		Ok    bool    `json:"ok"`
		Error *string `json:"error,omitempty"`
		Code  *string `json:"code,omitempty"`
	}
	if err := json.Unmarshal(out, &resp); err != nil {
		return fmt.Errorf("failed to unmarshal ingest_event result: %w", err)
	}
	if !resp.Ok {
		msg := "unknown error"
		if resp.Error != nil {
			msg = *resp.Error
		}
		code := ""
		if resp.Code != nil {
			code = *resp.Code
		}
		return &PluginError{Code: code, Message: msg}
	}
	return nil
}

// Reset implements combatlog.Plugin by calling the guest's reset_plugin
// export (parse_plugin::reset in the original host).
func (p *Plugin) Reset() {
	if p.compiled == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(p.timeout.Load()))
	defer cancel()

	name := fmt.Sprintf("plugin-reset-%d", p.moduleCounter.Add(1))
	modConfig := wazero.NewModuleConfig().WithName(name)
	mod, err := p.compiled.runtime.InstantiateModule(ctx, p.compiled.compiled, modConfig)
	if err != nil {
		if p.logger != nil {
			p.logger.Warn("wasm plugin reset: instantiation failed", "plugin", p.info.Name, "error", err)
		}
		return
	}
	defer mod.Close(context.Background())

	fn := mod.ExportedFunction("reset_plugin")
	if fn == nil {
		return
	}
	if _, err := fn.Call(ctx, p.handle); err != nil && p.logger != nil {
		p.logger.Warn("wasm plugin reset_plugin call failed", "plugin", p.info.Name, "error", err)
	}
}

// Close destroys the guest plugin instance and releases the module.
// Safe to call multiple times.
func (p *Plugin) Close() error {
	if p.compiled == nil {
		return nil
	}
	ctx := context.Background()
	modConfig := wazero.NewModuleConfig().WithName("plugin-destroy")
	if mod, err := p.compiled.runtime.InstantiateModule(ctx, p.compiled.compiled, modConfig); err == nil {
		if fn := mod.ExportedFunction("destroy_plugin"); fn != nil {
			_, _ = fn.Call(ctx, p.handle)
		}
		mod.Close(ctx)
	}
	err := p.compiled.Close(ctx)
	p.compiled = nil
	return err
}

var _ combatlog.Plugin = (*Plugin)(nil)

// readPacked decodes a (len<<32 | ptr) packed return value into its
// referenced memory, copying it before the caller's deferred module
// close can invalidate the view, and frees the guest-side buffer.
func readPacked(mod api.Module, packed uint64) ([]byte, error) {
	ptr := uint32(packed & 0xFFFFFFFF)
	length := uint32(packed >> 32)
	if length == 0 {
		return nil, nil
	}
	if length > MaxOutputSize {
		return nil, fmt.Errorf("plugin output too large: %d bytes (max %d)", length, MaxOutputSize)
	}

	out, ok := mod.Memory().Read(ptr, length)
	if !ok {
		return nil, errors.New("failed to read output from wasm memory")
	}
	cp := make([]byte, len(out))
	copy(cp, out)

	if freeFn := mod.ExportedFunction("free"); freeFn != nil {
		_, _ = freeFn.Call(context.Background(), uint64(ptr), uint64(length))
	}
	return cp, nil
}
