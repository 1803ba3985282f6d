package wasmplugin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/combatlog/combatlog/pkg/combatlog/event"
)

func minimalEvent() *event.CombatEvent {
	return &event.CombatEvent{
		Time:   event.TimeField{CombatMs: 1000, EpochMs: event.EpochUnset},
		Source: event.Entity{Kind: event.EntityPlayer, ID: 1, Name: "Alice"},
		Target: event.Entity{Kind: event.EntityPlayer, ID: 1, Name: "Alice"},
		Desc:   event.EventDesc{TypeName: "Event", ActionName: "Damage"},
		Tail:   event.Trailing{Kind: event.TrailingNumeric, Numeric: event.NumericValue{Amount: 50}},
	}
}

// skipIfNoWasm skips the test when the compiled fixture isn't present;
// testdata/*/main.go are TinyGo sources, built out-of-band (there is no
// go:generate here since the Go toolchain is not invoked by this
// package's own build).
func skipIfNoWasm(t *testing.T, wasmName string) string {
	t.Helper()
	wasmPath := filepath.Join("testdata", wasmName)
	if _, err := os.Stat(wasmPath); os.IsNotExist(err) {
		t.Skipf("Wasm file %s not found; compile testdata/%s first", wasmName, strings.TrimSuffix(wasmName, ".wasm"))
	}
	return wasmPath
}

func TestLoad_Success(t *testing.T) {
	wasmPath := skipIfNoWasm(t, "echoplugin.wasm")

	ctx := context.Background()
	p, err := Load(ctx, wasmPath, 10, nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	defer p.Close()

	if p.Info().APIVersion != PluginAPIVersion {
		t.Errorf("api_version = %d, want %d", p.Info().APIVersion, PluginAPIVersion)
	}
	if p.Priority() != 10 {
		t.Errorf("Priority() = %d, want 10", p.Priority())
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	ctx := context.Background()
	_, err := Load(ctx, "testdata/nonexistent.wasm", 0, nil)
	if err == nil {
		t.Fatal("expected error for nonexistent file")
	}
	if !strings.Contains(err.Error(), "failed to") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_InvalidWasm(t *testing.T) {
	tmpDir := t.TempDir()
	invalidWasm := filepath.Join(tmpDir, "invalid.wasm")
	if err := os.WriteFile(invalidWasm, []byte("not a wasm file"), 0644); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	_, err := Load(ctx, invalidWasm, 0, nil)
	if err == nil {
		t.Fatal("expected error for invalid wasm")
	}
}

// TestLoad_ABIVersionMismatch is skipped: producing a fixture whose
// get_plugin_info reports a mismatched api_version requires a second
// TinyGo build target, not worth the fixture-maintenance cost. The
// comparison itself is exercised directly in Load's code path above.

func TestPlugin_EnabledToggle(t *testing.T) {
	wasmPath := skipIfNoWasm(t, "echoplugin.wasm")

	ctx := context.Background()
	p, err := Load(ctx, wasmPath, 0, nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	defer p.Close()

	if !p.Enabled() {
		t.Fatal("expected plugin to start enabled")
	}
	p.SetEnabled(false)
	if p.Enabled() {
		t.Fatal("expected plugin to be disabled")
	}
}

func TestPlugin_Timeout(t *testing.T) {
	wasmPath := skipIfNoWasm(t, "slowplugin.wasm")

	ctx := context.Background()
	p, err := Load(ctx, wasmPath, 0, nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	defer p.Close()

	p.SetTimeout(10 * time.Millisecond)

	if err := p.ingest(ctx, minimalEvent()); err != ErrTimeout {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
}

func TestPlugin_Close_Multiple(t *testing.T) {
	wasmPath := skipIfNoWasm(t, "echoplugin.wasm")

	ctx := context.Background()
	p, err := Load(ctx, wasmPath, 0, nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if err := p.Close(); err != nil {
		t.Errorf("first Close failed: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestPlugin_IngestConcurrent(t *testing.T) {
	wasmPath := skipIfNoWasm(t, "echoplugin.wasm")

	ctx := context.Background()
	p, err := Load(ctx, wasmPath, 0, nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	defer p.Close()

	var wg sync.WaitGroup
	errCh := make(chan error, 100)

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if err := p.ingest(ctx, minimalEvent()); err != nil {
				errCh <- fmt.Errorf("call %d: %w", n, err)
			}
		}(i)
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Errorf("concurrent error: %v", err)
	}
}
