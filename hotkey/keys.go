package hotkey

import (
	"fmt"
	"strings"
)

// Accelerator is a parsed hotkey combination. Primary is the non-modifier
// key whose physical state the speech release watcher polls.
type Accelerator struct {
	Raw       string
	Keys      []string
	Modifiers []string
	Primary   string
}

// specialRawcodes maps non-alphanumeric key names to Windows virtual-key
// rawcodes. Modifiers list both left and right variants.
var specialRawcodes = map[string][]uint16{
	"ctrl":      {162, 163}, // VK_LCONTROL, VK_RCONTROL
	"alt":       {164, 165}, // VK_LMENU, VK_RMENU
	"shift":     {160, 161}, // VK_LSHIFT, VK_RSHIFT
	"cmd":       {91, 92},   // VK_LWIN, VK_RWIN
	"space":     {32},
	"enter":     {13},
	"esc":       {27},
	"tab":       {9},
	"backspace": {8},
	"delete":    {46},
	"insert":    {45},
	"home":      {36},
	"end":       {35},
	"pageup":    {33},
	"pagedown":  {34},
	"left":      {37},
	"up":        {38},
	"right":     {39},
	"down":      {40},
}

var keyAliases = map[string]string{
	"win":    "cmd",
	"super":  "cmd",
	"return": "enter",
	"escape": "esc",
	"del":    "delete",
	"ins":    "insert",
	"pgup":   "pageup",
	"pgdn":   "pagedown",
}

// ParseAccelerator normalizes a combination like "Ctrl+Alt+Q". Every key
// must map to at least one rawcode and at least one non-modifier key must be
// present.
func ParseAccelerator(raw string) (Accelerator, error) {
	parts := strings.Split(strings.ToLower(raw), "+")
	acc := Accelerator{Raw: raw}
	for _, part := range parts {
		key := normalizeKey(part)
		if key == "" {
			continue
		}
		if len(KeyRawcodes(key)) == 0 {
			return Accelerator{}, fmt.Errorf("unknown key %q in accelerator %q", key, raw)
		}
		acc.Keys = append(acc.Keys, key)
		if isModifier(key) {
			acc.Modifiers = append(acc.Modifiers, key)
		} else {
			acc.Primary = key
		}
	}
	if len(acc.Keys) == 0 {
		return Accelerator{}, fmt.Errorf("empty accelerator %q", raw)
	}
	if acc.Primary == "" {
		return Accelerator{}, fmt.Errorf("accelerator %q has no non-modifier key", raw)
	}
	return acc, nil
}

// KeyRawcodes maps a normalized key name to its virtual-key rawcodes.
// Single letters, digits and F1-F24 are computed; everything else comes from
// the special table. Unknown keys return nil.
func KeyRawcodes(key string) []uint16 {
	key = normalizeKey(key)
	if codes, ok := specialRawcodes[key]; ok {
		return codes
	}
	if len(key) == 1 {
		c := key[0]
		if c >= 'a' && c <= 'z' {
			return []uint16{uint16(c - 'a' + 0x41)}
		}
		if c >= '0' && c <= '9' {
			return []uint16{uint16(c - '0' + 0x30)}
		}
	}
	if strings.HasPrefix(key, "f") {
		var n int
		if _, err := fmt.Sscanf(key, "f%d", &n); err == nil && n >= 1 && n <= 24 {
			return []uint16{uint16(0x70 + n - 1)} // VK_F1..VK_F24
		}
	}
	return nil
}

// PrimaryRawcodes returns the rawcodes of the accelerator's primary key.
func (a Accelerator) PrimaryRawcodes() []uint16 {
	return KeyRawcodes(a.Primary)
}

func normalizeKey(part string) string {
	key := strings.TrimSpace(strings.ToLower(part))
	if alias, ok := keyAliases[key]; ok {
		return alias
	}
	return key
}

func isModifier(key string) bool {
	switch key {
	case "ctrl", "alt", "shift", "cmd":
		return true
	}
	return false
}
