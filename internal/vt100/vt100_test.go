package vt100

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/go3270/pure3270/internal/screen"
)

func TestFeedPlainTextAdvancesCursor(t *testing.T) {
	buf := screen.New(5, 10)
	p := New(buf)

	p.Feed([]byte("HI"))

	assert.Equal(t, "HI", buf.Codepage().Decode([]byte{buf.CellAt(0).CharByte, buf.CellAt(1).CharByte}))
	assert.Equal(t, 2, p.col)
	assert.Equal(t, 0, p.row)
}

func TestFeedCarriageReturnLineFeed(t *testing.T) {
	buf := screen.New(5, 10)
	p := New(buf)

	p.Feed([]byte("AB\r\nC"))

	assert.Equal(t, 1, p.row)
	assert.Equal(t, 1, p.col)
	assert.Equal(t, "C", buf.Codepage().Decode([]byte{buf.CellAt(10).CharByte}))
}

func TestFeedCursorPositionEscapeSequence(t *testing.T) {
	buf := screen.New(24, 80)
	p := New(buf)

	p.Feed([]byte("\x1b[3;5H"))

	assert.Equal(t, 2, p.row)
	assert.Equal(t, 4, p.col)
}

func TestFeedEraseEntireDisplay(t *testing.T) {
	buf := screen.New(2, 4)
	p := New(buf)
	p.Feed([]byte("ABCDEFGH"))

	p.Feed([]byte("\x1b[2J"))

	for i := 0; i < buf.Size(); i++ {
		assert.Equal(t, byte(0x00), buf.CellAt(i).CharByte)
	}
	assert.Equal(t, 0, p.row)
	assert.Equal(t, 0, p.col)
}

func TestFeedEraseToEndOfLine(t *testing.T) {
	buf := screen.New(1, 5)
	p := New(buf)
	p.Feed([]byte("ABCDE"))
	p.row, p.col = 0, 2

	p.Feed([]byte("\x1b[K"))

	assert.NotEqual(t, byte(0x00), buf.CellAt(0).CharByte)
	assert.NotEqual(t, byte(0x00), buf.CellAt(1).CharByte)
	assert.Equal(t, byte(0x00), buf.CellAt(2).CharByte)
	assert.Equal(t, byte(0x00), buf.CellAt(4).CharByte)
}

func TestFeedBackspaceMovesCursorLeft(t *testing.T) {
	buf := screen.New(5, 10)
	p := New(buf)
	p.Feed([]byte("AB"))

	p.Feed([]byte{0x08})

	assert.Equal(t, 1, p.col)
}
