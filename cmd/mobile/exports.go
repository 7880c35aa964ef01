//go:build cgo

package main

/*
#include <stdlib.h>
*/
import "C"
import (
	"unsafe"
)

// Every returned string is allocated with malloc and must be released with
// FreeString.

//export NamazInit
func NamazInit(configPath, dataDir *C.char, online C.int) *C.char {
	err := bridge.open(C.GoString(configPath), C.GoString(dataDir), online != 0, nil)
	return C.CString(bridge.respond(nil, err))
}

//export NamazClose
func NamazClose() *C.char {
	return C.CString(bridge.respond(nil, bridge.close()))
}

//export NamazEnqueue
func NamazEnqueue(eventType, payload *C.char) *C.char {
	return C.CString(bridge.respond(bridge.enqueue(C.GoString(eventType), C.GoString(payload))))
}

//export NamazStatus
func NamazStatus() *C.char {
	return C.CString(bridge.respond(bridge.status()))
}

//export NamazTriggerSync
func NamazTriggerSync() *C.char {
	return C.CString(bridge.respond(bridge.triggerSync()))
}

//export NamazRefreshPendingCount
func NamazRefreshPendingCount() *C.char {
	return C.CString(bridge.respond(bridge.refresh()))
}

//export NamazSetOnline
func NamazSetOnline(online C.int) *C.char {
	return C.CString(bridge.respond(bridge.setOnline(online != 0)))
}

//export NamazPurge
func NamazPurge() *C.char {
	return C.CString(bridge.respond(bridge.purge()))
}

//export NamazLastError
func NamazLastError() *C.char {
	return C.CString(bridge.lastError())
}

//export FreeString
func FreeString(s *C.char) {
	if s != nil {
		C.free(unsafe.Pointer(s))
	}
}
