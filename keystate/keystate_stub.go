//go:build !windows

package keystate

// platformKeyDown has no non-windows implementation; callers on other
// platforms must inject a KeyStateFunc. Reporting "released" keeps a
// watcher from spinning forever if one slips through.
func platformKeyDown(rawcodes []uint16) bool {
	return false
}
