//go:build tinygo

package main

import (
	"encoding/json"
	"unsafe"
)

var heapPtr uintptr = 0x20000

//export alloc
func alloc(size uint32) uint32 {
	ptr := uint32(heapPtr)
	heapPtr += uintptr(size)
	return ptr
}

//export free
func free(ptr, size uint32) {}

//export create_plugin
func createPlugin() uint64 { return 1 }

//export destroy_plugin
func destroyPlugin(handle uint64) {}

//export get_plugin_info
func getPluginInfo() uint64 {
	out, _ := json.Marshal(map[string]interface{}{
		"name": "slowplugin", "version": "1.0.0", "author": "test",
		"description": "never returns, used to exercise timeout handling",
		"api_version": 1,
	})
	outPtr := alloc(uint32(len(out)))
	outSlice := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(outPtr))), len(out))
	copy(outSlice, out)
	return (uint64(len(out)) << 32) | uint64(outPtr)
}

//export ingest_event
func ingestEvent(handle, ptr, length uint32) uint64 {
	for {
		// Busy loop to test timeout handling.
	}
}

//export reset_plugin
func resetPlugin(handle uint64) {}

func main() {}
