package pipeline

import (
	"time"

	"github.com/njyeung/conreel/grid"
)

// Default cell size used for aspect fitting when the terminal reports no
// pixel size.
const (
	DefaultCellWidth  = 8
	DefaultCellHeight = 18
)

// Settings are the read-only playback options. Volume is only the initial
// value; the live value is in State.
type Settings struct {
	Color      grid.ColorMode
	Proc       grid.ColorProc
	Charset    grid.Charset
	Brightness int

	Scaling ScalingMode
	Sync    SyncMode

	// Scanlines splits each frame into bands drawn one part per frame.
	// Values below 2 disable interlacing.
	Scanlines      int
	ScanlineHeight int

	// Width and Height override the measured grid when both are set.
	Width  int
	Height int
	Fill   bool

	Preload bool
	NoAudio bool
	Volume  float64

	QueueSize      int
	AudioQueueSize int
	Poll           time.Duration
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	cs, _ := grid.ParseCharset(grid.DefaultCharset)
	return Settings{
		Color:          grid.ColorRGB,
		Proc:           grid.ProcBoth,
		Charset:        cs,
		Scaling:        ScaleBicubic,
		Sync:           SyncEnabled,
		ScanlineHeight: 1,
		Volume:         0.5,
		QueueSize:      QueueSize,
		AudioQueueSize: AudioQueueSize,
		Poll:           QueuePoll,
	}
}

func (s Settings) interlaced() bool {
	return s.Scanlines > 1
}

func (s Settings) pixelFormat() grid.PixelFormat {
	if s.Color == grid.ColorGray {
		return grid.Gray8
	}
	return grid.RGB24
}

// FitGrid returns the grid a videoW x videoH picture occupies inside avail,
// preserving the picture's aspect ratio unless s.Fill is set.
func FitGrid(videoW, videoH int, avail GridSize, s Settings) (cols, rows int) {
	cols, rows = avail.Cols, avail.Rows
	if s.Width > 0 && s.Height > 0 {
		cols, rows = s.Width, s.Height
	}
	cols, rows = max(cols, 1), max(rows, 1)
	if s.Fill || videoW <= 0 || videoH <= 0 {
		return cols, rows
	}

	cw, ch := avail.CellWidth, avail.CellHeight
	if cw <= 0 || ch <= 0 {
		cw, ch = DefaultCellWidth, DefaultCellHeight
	}
	vidRatio := float64(videoW) / float64(videoH)
	conRatio := float64(cols*cw) / float64(rows*ch)
	if vidRatio > conRatio {
		rows = int(conRatio / vidRatio * float64(rows))
	} else {
		cols = int(vidRatio / conRatio * float64(cols))
	}
	return max(cols, 1), max(rows, 1)
}

// sizeTracker adopts a new grid size only after it was measured twice in a
// row. The first measurement is adopted immediately.
type sizeTracker struct {
	cols, rows int
	pendCols   int
	pendRows   int
	pending    bool
	started    bool
}

func (t *sizeTracker) observe(cols, rows int) bool {
	if !t.started {
		t.cols, t.rows, t.started = cols, rows, true
		return true
	}
	if cols == t.cols && rows == t.rows {
		t.pending = false
		return false
	}
	if t.pending && cols == t.pendCols && rows == t.pendRows {
		t.cols, t.rows, t.pending = cols, rows, false
		return true
	}
	t.pendCols, t.pendRows, t.pending = cols, rows, true
	return false
}
