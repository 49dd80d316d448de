//go:build windows

package popup

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"syscall"
	"time"
	"unsafe"

	"github.com/lxn/win"
)

const (
	popupWidth  = 420
	popupHeight = 160
	popupMargin = 24

	// Result popups dismiss themselves; the speech indicator stays until
	// closed by the controller.
	resultLifetime = 8 * time.Second
)

type windowsPresenter struct{}

func newPlatformPresenter() Presenter { return &windowsPresenter{} }

type nativeWindow struct {
	hwnd  win.HWND
	alive atomic.Bool
	done  chan struct{}
}

func (w *nativeWindow) Close() {
	if w.alive.Load() {
		win.PostMessage(w.hwnd, win.WM_CLOSE, 0, 0)
	}
}

func (w *nativeWindow) Alive() bool { return w.alive.Load() }

// Present opens a topmost window in the bottom-right corner of the primary
// display. The window runs its own message loop on a dedicated goroutine so
// the event loop never blocks on painting.
func (p *windowsPresenter) Present(kind Kind, text string) (Window, error) {
	w := &nativeWindow{done: make(chan struct{})}
	errCh := make(chan error, 1)

	go func() {
		// The message queue is bound to the creating OS thread; the
		// goroutine must stay put until the window is gone.
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		className := syscall.StringToUTF16Ptr(fmt.Sprintf("SnipPopup_%d", time.Now().UnixNano()))
		wndClass := win.WNDCLASSEX{
			CbSize:        uint32(unsafe.Sizeof(win.WNDCLASSEX{})),
			LpfnWndProc:   syscall.NewCallback(popupWndProc),
			HInstance:     win.GetModuleHandle(nil),
			HCursor:       win.LoadCursor(0, win.MAKEINTRESOURCE(win.IDC_ARROW)),
			HbrBackground: win.HBRUSH(win.GetStockObject(win.WHITE_BRUSH)),
			LpszClassName: className,
		}
		if win.RegisterClassEx(&wndClass) == 0 {
			errCh <- fmt.Errorf("register popup class failed")
			return
		}

		screenW := win.GetSystemMetrics(win.SM_CXSCREEN)
		screenH := win.GetSystemMetrics(win.SM_CYSCREEN)
		x := screenW - popupWidth - popupMargin
		y := screenH - popupHeight - 2*popupMargin

		currentPopupText = syscall.StringToUTF16(text)
		hwnd := win.CreateWindowEx(
			win.WS_EX_TOPMOST|win.WS_EX_TOOLWINDOW|win.WS_EX_NOACTIVATE,
			className,
			syscall.StringToUTF16Ptr("snip-assist"),
			win.WS_POPUP|win.WS_BORDER,
			x, y, popupWidth, popupHeight,
			0, 0, wndClass.HInstance, nil)
		if hwnd == 0 {
			errCh <- fmt.Errorf("create popup window failed")
			return
		}

		w.hwnd = hwnd
		w.alive.Store(true)
		errCh <- nil

		// SWP_NOACTIVATE keeps focus in the window the user was typing in.
		win.SetWindowPos(hwnd, win.HWND_TOPMOST, 0, 0, 0, 0,
			win.SWP_NOMOVE|win.SWP_NOSIZE|win.SWP_NOACTIVATE|win.SWP_SHOWWINDOW)

		if kind == KindResult {
			win.SetTimer(hwnd, 1, uint32(resultLifetime.Milliseconds()), 0)
		}

		var msg win.MSG
		for win.GetMessage(&msg, 0, 0, 0) > 0 {
			win.TranslateMessage(&msg)
			win.DispatchMessage(&msg)
		}
		w.alive.Store(false)
		close(w.done)
	}()

	if err := <-errCh; err != nil {
		return nil, err
	}
	return w, nil
}

// currentPopupText is read by WM_PAINT. One popup exists at a time, so a
// single slot suffices.
var currentPopupText []uint16

func popupWndProc(hwnd win.HWND, msg uint32, wParam, lParam uintptr) uintptr {
	switch msg {
	case win.WM_PAINT:
		var ps win.PAINTSTRUCT
		hdc := win.BeginPaint(hwnd, &ps)
		var rect win.RECT
		win.GetClientRect(hwnd, &rect)
		rect.Left += 12
		rect.Top += 12
		rect.Right -= 12
		rect.Bottom -= 12
		if len(currentPopupText) > 0 {
			win.DrawTextEx(hdc, &currentPopupText[0], int32(len(currentPopupText)-1),
				&rect, win.DT_WORDBREAK|win.DT_LEFT, nil)
		}
		win.EndPaint(hwnd, &ps)
		return 0

	case win.WM_LBUTTONUP, win.WM_TIMER:
		win.DestroyWindow(hwnd)
		return 0

	case win.WM_DESTROY:
		win.PostQuitMessage(0)
		return 0
	}
	return win.DefWindowProc(hwnd, msg, wParam, lParam)
}
