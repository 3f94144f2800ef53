package dsparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go3270/pure3270/internal/screen"
)

func TestParseBasicEraseWriteWithRepeatTo(t *testing.T) {
	// Scenario S1 (spec.md §8): EW, WCC, SBA to 0, SF protected at 0, RA to 9
	// repeating EBCDIC '0'. The SF attribute byte is 0x60, the codes[] wire
	// encoding of the 6-bit "protected" value (0x20) per addr.go's
	// EncodeAttributeByte/DecodeAttributeByte pair, not spec.md's illustrative
	// 0xC0 (which is not a valid 12-bit I/O code and would abort the parse).
	buf := screen.New(24, 80)
	cursorBefore := buf.GetCursor()

	record := []byte{0xF5, 0xC3, 0x11, 0x00, 0x00, 0x1D, 0x60, 0x3C, 0x40, 0xC9, 0xF0}
	res, err := Parse(buf, record)
	require.NoError(t, err)

	assert.True(t, buf.CellAt(0).IsAttribute())
	assert.True(t, buf.CellAt(0).Protected())
	for addr := 1; addr <= 8; addr++ {
		assert.Equal(t, byte(0xF0), buf.CellAt(addr).CharByte, "cell %d", addr)
	}
	assert.Equal(t, cursorBefore, buf.GetCursor())

	var sawAlarm bool
	for _, ev := range res.Events {
		if ev.Kind == "alarm" {
			sawAlarm = true
		}
	}
	assert.True(t, sawAlarm)
}

func TestParseMalformedOrderAbortsRecordAndKeepsPriorWrites(t *testing.T) {
	// Scenario S6 (spec.md §8): SF truncated before its attribute byte.
	buf := screen.New(24, 80)
	// W, WCC=0, data byte 'A' (0xC1) written literally at buffer_address 0,
	// then a truncated SF.
	record := []byte{CmdWrite, 0x00, 0xC1, OrderSF}
	res, err := Parse(buf, record)
	require.NoError(t, err)

	assert.Equal(t, byte(0xC1), buf.CellAt(0).CharByte)

	var sawParseError bool
	for _, ev := range res.Events {
		if ev.Kind == "parse_error" {
			sawParseError = true
		}
	}
	assert.True(t, sawParseError)
}

func TestParseNOPIsNoop(t *testing.T) {
	buf := screen.New(24, 80)
	before := buf.CellAt(0)
	_, err := Parse(buf, []byte{CmdNOP})
	require.NoError(t, err)
	assert.Equal(t, before, buf.CellAt(0))
}

func TestParseReadModifiedSetsReadRequested(t *testing.T) {
	buf := screen.New(24, 80)
	res, err := Parse(buf, []byte{CmdReadModified})
	require.NoError(t, err)
	assert.True(t, res.ReadRequested)
	assert.False(t, res.ReadAll)

	res, err = Parse(buf, []byte{CmdReadModifiedAll})
	require.NoError(t, err)
	assert.True(t, res.ReadRequested)
	assert.True(t, res.ReadAll)
}

func TestParseUnknownSFIDIsSkippedByLength(t *testing.T) {
	buf := screen.New(24, 80)
	// A structured field with an unrecognized SFID (0xFE) and 2 bytes of
	// payload, followed by a second, recognized field (read-partition query,
	// zero-length payload) that must still be processed.
	record := []byte{
		CmdWriteStructured,
		0x00, 0x05, 0xFE, 0xAA, 0xBB, // length=5: 2 len bytes + sfid + 2 payload bytes
		0x00, 0x03, sfidReadPartition,
	}
	res, err := Parse(buf, record)
	require.NoError(t, err)

	var sawUnknown bool
	for _, ev := range res.Events {
		if ev.Kind == "unknown_sfid" {
			sawUnknown = true
		}
	}
	assert.True(t, sawUnknown)
}

func TestParseEmptyRecordIsError(t *testing.T) {
	buf := screen.New(24, 80)
	_, err := Parse(buf, nil)
	assert.Error(t, err)
}

func TestParseWriteLiteralDataByte(t *testing.T) {
	buf := screen.New(24, 80)
	_, err := Parse(buf, []byte{CmdWrite, 0x00, 0xC8, 0xC9})
	require.NoError(t, err)
	assert.Equal(t, byte(0xC8), buf.CellAt(0).CharByte)
	assert.Equal(t, byte(0xC9), buf.CellAt(1).CharByte)
}
