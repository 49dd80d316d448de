// Package tray puts the resident status icon in the system tray. The menu
// exposes the selection actions and quit; the tooltip reflects whether an
// analysis is running.
package tray

import (
	"log"

	"github.com/getlantern/systray"

	"snip-assist/session"
)

// Handlers receives menu actions.
type Handlers struct {
	// OnAction starts a selection for the given analyzer kind.
	OnAction func(kind session.AnalyzerKind)
	// OnQuit shuts the application down.
	OnQuit func()
}

var (
	handlers Handlers
	ready    = make(chan struct{})
)

// Run blocks on the systray main loop. Call from the main goroutine; quit
// through systray.Quit.
func Run(h Handlers) {
	handlers = h
	systray.Run(onReady, onExit)
}

// SetBusy switches the tooltip between idle and working states.
func SetBusy(busy bool) {
	select {
	case <-ready:
	default:
		return
	}
	if busy {
		systray.SetTooltip("snip-assist (analyzing...)")
	} else {
		systray.SetTooltip("snip-assist")
	}
}

// Quit stops the tray loop.
func Quit() {
	systray.Quit()
}

func onReady() {
	systray.SetIcon(iconData)
	systray.SetTitle("snip-assist")
	systray.SetTooltip("snip-assist")
	close(ready)

	mPrompt := systray.AddMenuItem("Score region...", "Select a region and score it against your instructions")
	mImage := systray.AddMenuItem("Describe region...", "Select a region and describe it")
	mText := systray.AddMenuItem("Grab text...", "Select a region and extract its text")
	systray.AddSeparator()
	mQuit := systray.AddMenuItem("Quit", "Exit snip-assist")

	go func() {
		for {
			select {
			case <-mPrompt.ClickedCh:
				fire(session.KindPrompt)
			case <-mImage.ClickedCh:
				fire(session.KindImage)
			case <-mText.ClickedCh:
				fire(session.KindTextgrab)
			case <-mQuit.ClickedCh:
				systray.Quit()
				return
			}
		}
	}()
}

func fire(kind session.AnalyzerKind) {
	if handlers.OnAction != nil {
		handlers.OnAction(kind)
	} else {
		log.Printf("tray: no handler for %s", kind)
	}
}

func onExit() {
	if handlers.OnQuit != nil {
		handlers.OnQuit()
	}
}
