//go:build windows

package overlay

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"sync"
	"syscall"
	"time"
	"unsafe"

	"github.com/lxn/win"

	"snip-assist/coords"
	"snip-assist/display"
)

const (
	keyPollTimerID    = 1
	keyPollIntervalMs = 25
	minDragSpan       = 5
)

var (
	user32               = syscall.NewLazyDLL("user32.dll")
	procGetAsyncKeyState = user32.NewProc("GetAsyncKeyState")
)

// Selection runs on the win32 message loop of the calling goroutine. The
// selector mutex admits one Select at a time, so the package state needs
// no further locking; a superseded Select must be cancelled via its
// context before the next one can take the window over.
var (
	ovHwnd     win.HWND
	ovDragging bool
	ovStartX   int32
	ovStartY   int32
	ovEndX     int32
	ovEndY     int32
	ovOriginX  int32
	ovOriginY  int32
	ovEscDown  bool
	ovResult   chan selectionResult
)

type selectionResult struct {
	rect      coords.Rect
	cancelled bool
}

type windowsSelector struct {
	mu sync.Mutex
}

func newPlatformSelector() Selector { return &windowsSelector{} }

func (s *windowsSelector) Select(ctx context.Context, disp display.Display) (coords.Rect, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return coords.Rect{}, true, nil
	}

	// The message queue is bound to the creating OS thread; the goroutine
	// must not migrate while the window lives.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	ovResult = make(chan selectionResult, 1)
	ovDragging = false
	ovEscDown = false
	ovOriginX = int32(disp.Bounds.Min.X)
	ovOriginY = int32(disp.Bounds.Min.Y)

	className := syscall.StringToUTF16Ptr(fmt.Sprintf("SnipOverlay_%d", time.Now().UnixNano()))
	wndClass := win.WNDCLASSEX{
		CbSize:        uint32(unsafe.Sizeof(win.WNDCLASSEX{})),
		Style:         win.CS_HREDRAW | win.CS_VREDRAW,
		LpfnWndProc:   syscall.NewCallback(overlayWndProc),
		HInstance:     win.GetModuleHandle(nil),
		HCursor:       win.LoadCursor(0, win.MAKEINTRESOURCE(win.IDC_CROSS)),
		LpszClassName: className,
	}
	if win.RegisterClassEx(&wndClass) == 0 {
		return coords.Rect{}, false, fmt.Errorf("register overlay class failed")
	}

	ovHwnd = win.CreateWindowEx(
		win.WS_EX_LAYERED|win.WS_EX_TOPMOST|win.WS_EX_TOOLWINDOW,
		className,
		syscall.StringToUTF16Ptr(""),
		win.WS_POPUP,
		ovOriginX, ovOriginY,
		int32(disp.Bounds.Dx()), int32(disp.Bounds.Dy()),
		0, 0, wndClass.HInstance, nil)
	if ovHwnd == 0 {
		return coords.Rect{}, false, fmt.Errorf("create overlay window failed")
	}

	// Dim the screen so the user sees the overlay is active.
	win.SetLayeredWindowAttributes(ovHwnd, 0, 90, win.LWA_ALPHA)
	win.ShowWindow(ovHwnd, win.SW_SHOW)
	win.SetForegroundWindow(ovHwnd)
	win.SetTimer(ovHwnd, keyPollTimerID, keyPollIntervalMs, 0)

	log.Printf("overlay: selection window open over display %d", disp.ID)

	var msg win.MSG
	for {
		select {
		case res := <-ovResult:
			drainMessages()
			return res.rect, res.cancelled, nil
		case <-ctx.Done():
			win.DestroyWindow(ovHwnd)
			drainMessages()
			return coords.Rect{}, true, nil
		default:
		}
		if win.GetMessage(&msg, 0, 0, 0) <= 0 {
			return coords.Rect{}, true, nil
		}
		win.TranslateMessage(&msg)
		win.DispatchMessage(&msg)
	}
}

func drainMessages() {
	var msg win.MSG
	for win.PeekMessage(&msg, 0, 0, 0, win.PM_REMOVE) {
		win.TranslateMessage(&msg)
		win.DispatchMessage(&msg)
	}
}

func overlayWndProc(hwnd win.HWND, msg uint32, wParam, lParam uintptr) uintptr {
	switch msg {
	case win.WM_LBUTTONDOWN:
		ovDragging = true
		ovStartX = win.GET_X_LPARAM(lParam)
		ovStartY = win.GET_Y_LPARAM(lParam)
		ovEndX, ovEndY = ovStartX, ovStartY
		return 0

	case win.WM_MOUSEMOVE:
		if ovDragging {
			ovEndX = win.GET_X_LPARAM(lParam)
			ovEndY = win.GET_Y_LPARAM(lParam)
			win.InvalidateRect(hwnd, nil, true)
		}
		return 0

	case win.WM_LBUTTONUP:
		if !ovDragging {
			return 0
		}
		ovDragging = false
		rect := dragRect()
		win.KillTimer(hwnd, keyPollTimerID)
		win.DestroyWindow(hwnd)
		if rect.Width < minDragSpan || rect.Height < minDragSpan {
			ovResult <- selectionResult{cancelled: true}
		} else {
			ovResult <- selectionResult{rect: rect}
		}
		return 0

	case win.WM_TIMER:
		if wParam == keyPollTimerID {
			// ESC arrives here rather than via WM_KEYDOWN: the overlay
			// may lose keyboard focus to the window it covers.
			state, _, _ := procGetAsyncKeyState.Call(uintptr(win.VK_ESCAPE))
			down := state&0x8000 != 0
			if down && !ovEscDown {
				win.KillTimer(hwnd, keyPollTimerID)
				win.DestroyWindow(hwnd)
				ovResult <- selectionResult{cancelled: true}
			}
			ovEscDown = down
		}
		return 0

	case win.WM_PAINT:
		var ps win.PAINTSTRUCT
		hdc := win.BeginPaint(hwnd, &ps)
		if ovDragging {
			drawSelectionBorder(hdc)
		}
		win.EndPaint(hwnd, &ps)
		return 0

	case win.WM_DESTROY:
		return 0
	}
	return win.DefWindowProc(hwnd, msg, wParam, lParam)
}

func dragRect() coords.Rect {
	x1, x2 := ovStartX, ovEndX
	if x1 > x2 {
		x1, x2 = x2, x1
	}
	y1, y2 := ovStartY, ovEndY
	if y1 > y2 {
		y1, y2 = y2, y1
	}
	return coords.Rect{X: int(x1), Y: int(y1), Width: int(x2 - x1), Height: int(y2 - y1)}
}

func drawSelectionBorder(hdc win.HDC) {
	pen := win.CreatePen(win.PS_SOLID, 2, 0x00FFFFFF)
	old := win.SelectObject(hdc, win.HGDIOBJ(pen))
	brush := win.GetStockObject(win.NULL_BRUSH)
	oldBrush := win.SelectObject(hdc, brush)

	x1, x2 := ovStartX, ovEndX
	if x1 > x2 {
		x1, x2 = x2, x1
	}
	y1, y2 := ovStartY, ovEndY
	if y1 > y2 {
		y1, y2 = y2, y1
	}
	win.Rectangle_(hdc, x1, y1, x2, y2)

	win.SelectObject(hdc, oldBrush)
	win.SelectObject(hdc, old)
	win.DeleteObject(win.HGDIOBJ(pen))
}
