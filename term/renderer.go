package term

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/njyeung/conreel/pipeline"
)

const (
	syncBegin   = "\x1b[?2026h"
	syncEnd     = "\x1b[?2026l"
	resetColor  = "\x1b[0m"
	clearScreen = "\x1b[2J"
	clearLine   = "\x1b[2K"
	hideCursor  = "\x1b[?25l"
	showCursor  = "\x1b[?25h"
	cursorHome  = "\x1b[H"
)

// StatusDuration is how long a status message stays on screen.
const StatusDuration = 1500 * time.Millisecond

var statusStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("205"))

// Options configure a Renderer.
type Options struct {
	// NoClear keeps the screen when the grid size changes.
	NoClear bool

	// CellWidth and CellHeight are used when the terminal does not report
	// its pixel size.
	CellWidth  int
	CellHeight int
}

// Renderer draws encoded grids centered on a terminal. Every frame is
// written with a single Write inside a synchronized update.
type Renderer struct {
	mu sync.Mutex

	out     io.Writer
	measure func() (WindowSize, error)
	opts    Options
	now     func() time.Time

	buf      bytes.Buffer
	lastCols int
	lastRows int
	term     WindowSize

	status      string
	statusUntil time.Time
	statusShown bool
	help        string
	started     bool
}

// NewRenderer returns a Renderer writing to out and measuring the terminal
// on f.
func NewRenderer(out io.Writer, f *os.File, opts Options) *Renderer {
	return newRenderer(out, func() (WindowSize, error) { return GetWindowSize(f) }, opts)
}

func newRenderer(out io.Writer, measure func() (WindowSize, error), opts Options) *Renderer {
	if opts.CellWidth <= 0 || opts.CellHeight <= 0 {
		opts.CellWidth, opts.CellHeight = pipeline.DefaultCellWidth, pipeline.DefaultCellHeight
	}
	return &Renderer{out: out, measure: measure, opts: opts, now: time.Now}
}

// Start hides the cursor and clears the screen.
func (r *Renderer) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := io.WriteString(r.out, hideCursor+resetColor+clearScreen+cursorHome)
	r.started = err == nil
	return err
}

// Stop restores the cursor and clears the screen.
func (r *Renderer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = false
	_, err := io.WriteString(r.out, resetColor+clearScreen+cursorHome+showCursor)
	return err
}

// MeasureGrid implements pipeline.Renderer. The bottom row is kept for the
// status line.
func (r *Renderer) MeasureGrid() (pipeline.GridSize, error) {
	ws, err := r.measure()
	if err != nil {
		return pipeline.GridSize{}, fmt.Errorf("measure terminal: %w", err)
	}
	if ws.Cols == 0 || ws.Rows == 0 {
		return pipeline.GridSize{}, fmt.Errorf("measure terminal: empty window")
	}
	r.mu.Lock()
	r.term = ws
	r.mu.Unlock()

	cw, ch := ws.CellSize()
	if cw == 0 || ch == 0 {
		cw, ch = r.opts.CellWidth, r.opts.CellHeight
	}
	return pipeline.GridSize{
		Cols:       ws.Cols,
		Rows:       max(ws.Rows-1, 1),
		CellWidth:  cw,
		CellHeight: ch,
	}, nil
}

// ShowStatus displays msg on the bottom row for StatusDuration.
func (r *Renderer) ShowStatus(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = msg
	r.statusUntil = r.now().Add(StatusDuration)
	r.flushStatus()
}

// ShowHelp keeps msg on the bottom row until it is replaced or cleared with
// "". A status message shows over it while active.
func (r *Renderer) ShowHelp(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.help = msg
	r.flushStatus()
}

// flushStatus redraws the status row at once so it updates while no frames
// are drawn, e.g. when paused.
func (r *Renderer) flushStatus() {
	if !r.started {
		return
	}
	buf := &r.buf
	buf.Reset()
	buf.WriteString(syncBegin)
	r.drawStatus(buf)
	buf.WriteString(syncEnd)
	_, _ = r.out.Write(buf.Bytes())
}

// Draw implements pipeline.Renderer.
func (r *Renderer) Draw(g pipeline.Grid, rows []pipeline.RowRange) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	buf := &r.buf
	buf.Reset()
	buf.WriteString(syncBegin)

	resized := g.Cols != r.lastCols || g.Rows != r.lastRows
	if resized {
		if !r.opts.NoClear {
			buf.WriteString(resetColor + clearScreen)
		}
		r.lastCols, r.lastRows = g.Cols, g.Rows
		// a resized frame must be drawn whole
		rows = []pipeline.RowRange{{Start: 0, End: g.Rows}}
	}

	top, left := r.origin(g)
	for _, rr := range rows {
		for y := rr.Start; y < min(rr.End, g.Rows); y++ {
			moveTo(buf, top+y, left)
			buf.Write(g.Row(y))
		}
	}
	buf.WriteString(resetColor)
	r.drawStatus(buf)
	buf.WriteString(syncEnd)

	_, err := r.out.Write(buf.Bytes())
	return err
}

// origin returns the 1-indexed cell of the grid's top left corner.
func (r *Renderer) origin(g pipeline.Grid) (row, col int) {
	row, col = 1, 1
	if r.term.Cols > g.Cols {
		col = (r.term.Cols-g.Cols)/2 + 1
	}
	if avail := r.term.Rows - 1; avail > g.Rows {
		row = (avail-g.Rows)/2 + 1
	}
	return row, col
}

func (r *Renderer) drawStatus(buf *bytes.Buffer) {
	if r.term.Rows == 0 {
		return
	}
	text := r.help
	if r.status != "" && r.now().Before(r.statusUntil) {
		text = r.status
	}
	if text == "" && !r.statusShown {
		return
	}
	moveTo(buf, r.term.Rows, 1)
	buf.WriteString(clearLine)
	if text != "" {
		buf.WriteString(statusStyle.Render(text))
		buf.WriteString(resetColor)
	}
	r.statusShown = text != ""
}

func moveTo(buf *bytes.Buffer, row, col int) {
	buf.WriteString("\x1b[")
	buf.WriteString(strconv.Itoa(row))
	buf.WriteByte(';')
	buf.WriteString(strconv.Itoa(col))
	buf.WriteByte('H')
}
