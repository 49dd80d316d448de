// Package clipboard writes analyzer results to the system clipboard and
// optionally pastes them into the previously focused window.
package clipboard

import (
	"fmt"
	"log"
	"time"

	"github.com/micmonay/keybd_event"
	"golang.design/x/clipboard"
)

// pasteDelay gives the capture window time to close and focus to return to
// the target application before the keystroke fires.
const pasteDelay = 150 * time.Millisecond

// Init prepares the clipboard. Must be called once before Write.
func Init() error {
	return clipboard.Init()
}

// Write puts text on the clipboard.
func Write(text string) error {
	clipboard.Write(clipboard.FmtText, []byte(text))
	return nil
}

// WriteAndPaste puts text on the clipboard, waits for focus to settle and
// simulates a paste keystroke in whatever window holds focus.
func WriteAndPaste(text string) error {
	if err := Write(text); err != nil {
		return err
	}

	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return fmt.Errorf("init key simulation: %w", err)
	}
	kb.SetKeys(keybd_event.VK_V)
	kb.HasCTRL(true)

	time.Sleep(pasteDelay)
	if err := kb.Launching(); err != nil {
		return fmt.Errorf("simulate paste: %w", err)
	}
	log.Printf("clipboard: pasted %d chars", len(text))
	return nil
}
