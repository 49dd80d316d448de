//go:build windows

package keystate

import (
	"golang.org/x/sys/windows"
)

var (
	user32               = windows.NewLazySystemDLL("user32.dll")
	procGetAsyncKeyState = user32.NewProc("GetAsyncKeyState")
)

// platformKeyDown reports whether any of the virtual-key codes is down.
// GetAsyncKeyState sets the high bit while the key is physically held.
func platformKeyDown(rawcodes []uint16) bool {
	for _, vk := range rawcodes {
		state, _, _ := procGetAsyncKeyState.Call(uintptr(vk))
		if state&0x8000 != 0 {
			return true
		}
	}
	return false
}
