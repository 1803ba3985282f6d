// Package wasmplugin sandboxes external Plugin implementations as
// WebAssembly modules, loaded and run through wazero (§6 "Plugin ABI").
// A module must export the three stable entry points spec.md names —
// create_plugin, destroy_plugin, get_plugin_info — plus the ingest_event
// and reset_plugin exports an ingesting plugin needs to actually
// participate in the pipeline (parse_plugin::ingest/reset in the
// original host).
package wasmplugin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/combatlog/combatlog/internal/safefile"
)

const (
	// MaxWasmFileSize is the maximum size of a Wasm file (10MB).
	MaxWasmFileSize = 10 * 1024 * 1024

	// PluginAPIVersion is the ABI version a plugin module's get_plugin_info
	// must report (§6 "api_version must equal the host's PLUGIN_API_VERSION").
	PluginAPIVersion = 1

	// IORegion is the fixed memory region where the host writes call
	// input and reads call output. 64KB offset, clear of TinyGo's heap.
	IORegion = 0x10000

	// IORegionSize is the size of the I/O region (8KB).
	IORegionSize = 8192
)

// CompiledWasm represents a compiled Wasm module ready for instantiation.
type CompiledWasm struct {
	runtime       wazero.Runtime
	compiled      wazero.CompiledModule
	cache         wazero.CompilationCache
	hostFunctions *hostFunctions
}

// Close releases resources held by the compiled Wasm.
// Resources are closed in reverse order of creation: cache, compiled module, runtime.
// Safe to call multiple times.
func (c *CompiledWasm) Close(ctx context.Context) error {
	var firstErr error

	if c.cache != nil {
		if err := c.cache.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		c.cache = nil
	}

	if c.compiled != nil {
		if err := c.compiled.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		c.compiled = nil
	}

	if c.runtime != nil {
		if err := c.runtime.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		c.runtime = nil
	}

	return firstErr
}

// LoadWasm loads and compiles a Wasm plugin module.
func LoadWasm(ctx context.Context, path string, logger *slog.Logger) (*CompiledWasm, error) {
	f, info, err := safefile.OpenRegular(path)
	if err != nil {
		if errors.Is(err, safefile.ErrNotRegularFile) {
			return nil, fmt.Errorf("wasm path is not a regular file: %w", err)
		}
		return nil, fmt.Errorf("failed to open wasm file: %w", err)
	}
	defer f.Close()

	if info.Size() > MaxWasmFileSize {
		return nil, ErrFileTooLarge
	}

	wasmBytes, err := io.ReadAll(io.LimitReader(f, MaxWasmFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read wasm file: %w", err)
	}
	if int64(len(wasmBytes)) > MaxWasmFileSize {
		return nil, ErrFileTooLarge
	}

	rtConfig := wazero.NewRuntimeConfig().
		WithCloseOnContextDone(true)

	cacheDir, err := getCacheDir()
	var cache wazero.CompilationCache
	if err == nil {
		cache, err = wazero.NewCompilationCacheWithDir(cacheDir)
		if err == nil {
			rtConfig = rtConfig.WithCompilationCache(cache)
			if logger != nil {
				logger.Debug("using wasm compilation cache", "dir", cacheDir)
			}
		} else if logger != nil {
			logger.Warn("failed to create compilation cache, continuing without cache", "error", err)
		}
	}

	rt := wazero.NewRuntimeWithConfig(ctx, rtConfig)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		cleanupCtx := context.Background()
		rt.Close(cleanupCtx)
		if cache != nil {
			cache.Close(cleanupCtx)
		}
		return nil, &WasmRuntimeError{Operation: "wasi instantiation", Err: err}
	}

	hf := newHostFunctions(logger)

	envBuilder := rt.NewHostModuleBuilder("env")

	// log: (level, ptr, len) -> void
	envBuilder = envBuilder.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, m api.Module, level, ptr, msgLen uint32) {
			hf.log(ctx, m, level, ptr, msgLen)
		}).
		Export("log")

	// now_ms: () -> i64
	envBuilder = envBuilder.NewFunctionBuilder().
		WithFunc(func() int64 {
			return hf.nowMs()
		}).
		Export("now_ms")

	if _, err := envBuilder.Instantiate(ctx); err != nil {
		cleanupCtx := context.Background()
		rt.Close(cleanupCtx)
		if cache != nil {
			cache.Close(cleanupCtx)
		}
		return nil, &WasmRuntimeError{Operation: "host functions registration", Err: err}
	}

	compiled, err := rt.CompileModule(ctx, wasmBytes)
	if err != nil {
		cleanupCtx := context.Background()
		rt.Close(cleanupCtx)
		if cache != nil {
			cache.Close(cleanupCtx)
		}
		return nil, &WasmRuntimeError{Operation: "wasm compilation", Err: err}
	}

	if err := validateABI(compiled); err != nil {
		cleanupCtx := context.Background()
		compiled.Close(cleanupCtx)
		rt.Close(cleanupCtx)
		if cache != nil {
			cache.Close(cleanupCtx)
		}
		return nil, err
	}

	return &CompiledWasm{
		runtime:       rt,
		compiled:      compiled,
		cache:         cache,
		hostFunctions: hf,
	}, nil
}

// validateABI checks that the Wasm module exports the plugin's required
// entry points. The three named in §6 (create_plugin, destroy_plugin,
// get_plugin_info) plus the two an ingesting plugin needs to do anything
// (ingest_event, reset_plugin). Actual api_version compatibility is
// checked in Load() by calling get_plugin_info().
func validateABI(compiled wazero.CompiledModule) error {
	requiredExports := []string{
		"create_plugin", "destroy_plugin", "get_plugin_info",
		"ingest_event", "reset_plugin",
	}

	exportedFunctions := compiled.ExportedFunctions()
	exportMap := make(map[string]bool, len(exportedFunctions))
	for name := range exportedFunctions {
		exportMap[name] = true
	}

	for _, name := range requiredExports {
		if !exportMap[name] {
			return &ABIError{
				Function: name,
				Reason:   "missing required export",
			}
		}
	}

	return nil
}

// getCacheDir returns the wazero compilation cache directory.
// It follows the XDG Base Directory specification.
func getCacheDir() (string, error) {
	cacheHome := os.Getenv("XDG_CACHE_HOME")
	if cacheHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		cacheHome = filepath.Join(home, ".cache")
	}
	dir := filepath.Join(cacheHome, "combatlog", "wasm")

	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}

	return dir, nil
}
