// Package vt100 implements the ASCII-NVT fallback parser spec.md §4.5 step 5
// requires: a line-oriented VT100-ish byte stream that updates the Screen
// Buffer via cursor moves, character writes, and erase, for sessions whose
// host never negotiates TN3270E or BINARY+EOR. The state machine (Ground /
// Escape / CSI, byte-at-a-time dispatch) is grounded on stlalpha-vision3's
// internal/terminal ANSIParser, trimmed to the small operation set spec.md
// scenario S3 actually exercises: cursor positioning, erase display/line,
// and printable-character echo.
package vt100

import (
	"strconv"
	"strings"

	"github.com/go3270/pure3270/internal/screen"
)

type parserState int

const (
	stateGround parserState = iota
	stateEscape
	stateCSI
)

// Parser decodes an ASCII-NVT byte stream directly into a screen.Buffer.
// One Parser serves exactly one session's fallback stream; it is not safe
// for concurrent use.
type Parser struct {
	buf   *screen.Buffer
	state parserState

	params  []int
	current strings.Builder
	private bool

	row, col   int
	rows, cols int
}

// New returns a Parser that writes into buf, whose current dimensions are
// captured as the VT100 screen size.
func New(buf *screen.Buffer) *Parser {
	rows, cols := buf.Dimensions()
	return &Parser{buf: buf, rows: rows, cols: cols}
}

// Feed processes one chunk of inbound bytes, updating the buffer in place.
func (p *Parser) Feed(data []byte) {
	for _, b := range data {
		p.feedByte(b)
	}
}

func (p *Parser) feedByte(b byte) {
	switch p.state {
	case stateGround:
		p.ground(b)
	case stateEscape:
		p.escape(b)
	case stateCSI:
		p.csi(b)
	}
}

func (p *Parser) ground(b byte) {
	switch b {
	case 0x1B: // ESC
		p.state = stateEscape
	case 0x08: // backspace
		if p.col > 0 {
			p.col--
		}
	case 0x09: // tab, to the next multiple of 8
		p.col = ((p.col / 8) + 1) * 8
		if p.col >= p.cols {
			p.col = p.cols - 1
		}
	case 0x0A: // line feed
		p.newline()
	case 0x0D: // carriage return
		p.col = 0
	case 0x07: // bell: no visible effect on the buffer
	default:
		if b >= 0x20 && b <= 0x7E {
			p.writeChar(b)
		}
	}
}

func (p *Parser) escape(b byte) {
	switch b {
	case '[':
		p.state = stateCSI
		p.params = p.params[:0]
		p.current.Reset()
		p.private = false
	default:
		// Unrecognized escape sequence; spec.md's fallback mode only
		// requires the small operation set this package implements, so
		// anything else is dropped and parsing resumes at ground state.
		p.state = stateGround
	}
}

func (p *Parser) csi(b byte) {
	switch {
	case b >= '0' && b <= '9':
		p.current.WriteByte(b)
		return
	case b == ';':
		p.params = append(p.params, p.paramValue())
		p.current.Reset()
		return
	case b == '?':
		p.private = true
		return
	}
	// Final byte: flush the last parameter and dispatch.
	p.params = append(p.params, p.paramValue())
	p.dispatchCSI(b, p.params)
	p.state = stateGround
}

func (p *Parser) paramValue() int {
	if p.current.Len() == 0 {
		return 0
	}
	n, err := strconv.Atoi(p.current.String())
	if err != nil {
		return 0
	}
	return n
}

func (p *Parser) dispatchCSI(final byte, params []int) {
	param := func(i, def int) int {
		if i < len(params) && params[i] != 0 {
			return params[i]
		}
		return def
	}
	switch final {
	case 'H', 'f': // CUP: cursor position (1-based row;col)
		p.row = clamp(param(0, 1)-1, 0, p.rows-1)
		p.col = clamp(param(1, 1)-1, 0, p.cols-1)
	case 'A': // CUU: cursor up
		p.row = clamp(p.row-param(0, 1), 0, p.rows-1)
	case 'B': // CUD: cursor down
		p.row = clamp(p.row+param(0, 1), 0, p.rows-1)
	case 'C': // CUF: cursor forward
		p.col = clamp(p.col+param(0, 1), 0, p.cols-1)
	case 'D': // CUB: cursor backward
		p.col = clamp(p.col-param(0, 1), 0, p.cols-1)
	case 'J': // ED: erase in display
		p.eraseDisplay(param(0, 0))
	case 'K': // EL: erase in line
		p.eraseLine(param(0, 0))
	}
}

func (p *Parser) writeChar(b byte) {
	addr := p.row*p.cols + p.col
	enc := p.buf.Codepage().Encode(string(rune(b)))
	if len(enc) == 0 {
		enc = []byte{0x40}
	}
	p.buf.WriteChar(addr, enc[0], false)
	p.col++
	if p.col >= p.cols {
		p.newline()
	}
}

func (p *Parser) newline() {
	p.col = 0
	p.row++
	if p.row >= p.rows {
		p.row = p.rows - 1
	}
}

func (p *Parser) eraseDisplay(mode int) {
	switch mode {
	case 0: // cursor to end of screen
		p.eraseRange(p.row*p.cols+p.col, p.rows*p.cols)
	case 1: // start of screen to cursor
		p.eraseRange(0, p.row*p.cols+p.col+1)
	case 2: // entire screen
		p.eraseRange(0, p.rows*p.cols)
		p.row, p.col = 0, 0
	}
}

func (p *Parser) eraseLine(mode int) {
	lineStart := p.row * p.cols
	switch mode {
	case 0:
		p.eraseRange(lineStart+p.col, lineStart+p.cols)
	case 1:
		p.eraseRange(lineStart, lineStart+p.col+1)
	case 2:
		p.eraseRange(lineStart, lineStart+p.cols)
	}
}

func (p *Parser) eraseRange(start, end int) {
	for addr := start; addr < end; addr++ {
		p.buf.WriteChar(addr, 0x00, false)
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
