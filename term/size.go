package term

import (
	"os"

	"golang.org/x/sys/unix"
	xterm "golang.org/x/term"
)

// WindowSize is the terminal size in cells and pixels. Pixel sizes are 0
// when the terminal does not report them.
type WindowSize struct {
	Cols, Rows        int
	WidthPx, HeightPx int
}

// CellSize returns the pixel size of one cell, or 0, 0 when unknown.
func (s WindowSize) CellSize() (w, h int) {
	if s.Cols == 0 || s.Rows == 0 || s.WidthPx == 0 || s.HeightPx == 0 {
		return 0, 0
	}
	return s.WidthPx / s.Cols, s.HeightPx / s.Rows
}

// GetWindowSize queries the terminal attached to f.
func GetWindowSize(f *os.File) (WindowSize, error) {
	ws, err := unix.IoctlGetWinsize(int(f.Fd()), unix.TIOCGWINSZ)
	if err != nil {
		return WindowSize{}, err
	}
	return WindowSize{
		Cols:     int(ws.Col),
		Rows:     int(ws.Row),
		WidthPx:  int(ws.Xpixel),
		HeightPx: int(ws.Ypixel),
	}, nil
}

// IsTerminal reports whether f is a terminal.
func IsTerminal(f *os.File) bool {
	return xterm.IsTerminal(int(f.Fd()))
}
