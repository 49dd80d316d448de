//go:build windows

package main

import "golang.org/x/sys/windows"

// enableDPIAwareness opts the process into per-monitor DPI awareness so
// window coordinates match the physical pixels the capture sees.
func enableDPIAwareness() {
	// Shcore is Win 8.1+; fall back to the Vista-era call when missing.
	shcore := windows.NewLazySystemDLL("Shcore.dll")
	setProcessDpiAwareness := shcore.NewProc("SetProcessDpiAwareness")
	const processPerMonitorDPIAware = 2
	if err := setProcessDpiAwareness.Find(); err == nil {
		setProcessDpiAwareness.Call(uintptr(processPerMonitorDPIAware))
		return
	}
	user32 := windows.NewLazySystemDLL("user32.dll")
	setProcessDPIAware := user32.NewProc("SetProcessDPIAware")
	if err := setProcessDPIAware.Find(); err == nil {
		setProcessDPIAware.Call()
	}
}
