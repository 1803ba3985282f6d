//go:build tinygo

package main

import (
	"encoding/json"
	"unsafe"
)

const (
	IORegion     = 0x10000
	IORegionSize = 8192
)

var heapPtr uintptr = 0x20000

//export alloc
func alloc(size uint32) uint32 {
	ptr := uint32(heapPtr)
	heapPtr += uintptr(size)
	return ptr
}

//export free
func free(ptr, size uint32) {
	// Bump allocator doesn't free individual allocations.
}

//export create_plugin
func createPlugin() uint64 {
	return 1
}

//export destroy_plugin
func destroyPlugin(handle uint64) {}

//export get_plugin_info
func getPluginInfo() uint64 {
	info := map[string]interface{}{
		"name":        "echoplugin",
		"version":     "1.0.0",
		"author":      "test",
		"description": "answers ok to every ingested event",
		"api_version": 1,
	}
	return encodeJSON(info)
}

//export ingest_event
func ingestEvent(handle, ptr, length uint32) uint64 {
	_ = unsafe.Slice((*byte)(unsafe.Pointer(uintptr(ptr))), length)
	return encodeJSON(map[string]interface{}{"ok": true})
}

//export reset_plugin
func resetPlugin(handle uint64) {}

func encodeJSON(v interface{}) uint64 {
	out, err := json.Marshal(v)
	if err != nil {
		out, _ = json.Marshal(map[string]interface{}{"ok": false, "error": "marshal failed"})
	}
	outPtr := alloc(uint32(len(out)))
	outSlice := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(outPtr))), len(out))
	copy(outSlice, out)
	return (uint64(len(out)) << 32) | uint64(outPtr)
}

func main() {}
