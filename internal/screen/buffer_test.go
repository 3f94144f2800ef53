package screen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBuffer() *Buffer { return New(24, 80) }

func TestUnformattedBufferIsOneImplicitField(t *testing.T) {
	b := newTestBuffer()
	fields := b.Fields()
	require.Len(t, fields, 1)
	assert.True(t, isUnformatted(fields))
	assert.False(t, fields[0].Protected())
}

func TestWriteAttributeCreatesField(t *testing.T) {
	b := newTestBuffer()
	b.WriteAttribute(0, attrProtected)
	fields := b.Fields()
	require.Len(t, fields, 1)
	assert.True(t, fields[0].Protected())
	assert.Equal(t, 0, fields[0].Start)
}

func TestFieldsAreBoundedByAttributeCells(t *testing.T) {
	// Property 4 (spec.md §8): every Field is bounded by field-attribute
	// cells (or the whole-buffer implicit field).
	b := newTestBuffer()
	b.WriteAttribute(0, attrProtected)
	b.WriteAttribute(10, 0)
	b.WriteAttribute(20, attrProtected)

	fields := b.Fields()
	require.Len(t, fields, 3)
	for _, f := range fields {
		assert.True(t, b.CellAt(f.Start).IsAttribute())
	}
	assert.Equal(t, 10, fields[0].End)
	assert.Equal(t, 20, fields[1].End)
	assert.Equal(t, 0, fields[2].End) // wraps to the first field's start
}

func TestWriteCharSetsMDTOnlyForUnprotectedUserWrites(t *testing.T) {
	// Property 5 (spec.md §8): user-key writes to an unprotected field set
	// its MDT; host-originated writes (markModified=false) never do.
	b := newTestBuffer()
	b.WriteAttribute(0, 0) // unprotected field covering 1..1919

	b.WriteChar(1, 0xC8, false) // host write, no MDT
	assert.False(t, b.FieldAt(1).MDT())

	b.WriteChar(2, 0xC8, true) // user write, sets MDT
	assert.True(t, b.FieldAt(2).MDT())
}

func TestWriteCharNeverSetsMDTOnProtectedField(t *testing.T) {
	b := newTestBuffer()
	b.WriteAttribute(0, attrProtected)
	b.WriteChar(1, 0xC8, true)
	assert.False(t, b.FieldAt(1).MDT())
}

func TestWriteAttributeReplacesInPlaceNoZeroLengthField(t *testing.T) {
	b := newTestBuffer()
	b.WriteAttribute(5, 0)
	b.WriteAttribute(10, attrProtected)
	require.Len(t, b.Fields(), 2)

	// Replace the first attribute cell; still two fields, not three, and
	// no field has zero length.
	b.WriteAttribute(5, attrProtected)
	fields := b.Fields()
	require.Len(t, fields, 2)
	for _, f := range fields {
		assert.NotEqual(t, f.Start, f.End)
	}
}

func TestRepeatToWrapFull(t *testing.T) {
	// Property 8 (spec.md §8): RA with addr == buffer_address fills the
	// entire buffer.
	b := newTestBuffer()
	b.SetBufferAddress(5)
	b.RepeatTo(5, 0xF0)
	for i := 0; i < b.Size(); i++ {
		assert.Equal(t, byte(0xF0), b.CellAt(i).CharByte)
	}
}

func TestRepeatToOrdinaryRange(t *testing.T) {
	b := newTestBuffer()
	b.SetBufferAddress(0)
	b.RepeatTo(9, 0xF0)
	for i := 0; i < 9; i++ {
		assert.Equal(t, byte(0xF0), b.CellAt(i).CharByte)
	}
	assert.Equal(t, byte(0), b.CellAt(9).CharByte)
	assert.Equal(t, 9, b.GetBufferAddress())
}

func TestEraseAllUnprotectedResetsMDTAndMovesCursor(t *testing.T) {
	b := newTestBuffer()
	b.WriteAttribute(0, attrProtected)
	b.WriteAttribute(10, 0) // unprotected field 11..1919 (wraps to the attribute at 0)
	b.WriteChar(11, 0xC8, true)
	require.True(t, b.FieldAt(11).MDT())

	b.EraseAllUnprotected()
	assert.False(t, b.FieldAt(11).MDT())
	assert.Equal(t, byte(0), b.CellAt(11).CharByte)
	assert.Equal(t, 11, b.GetCursor())
}

func TestEraseAllUnprotectedUnformattedGoesToZero(t *testing.T) {
	b := newTestBuffer()
	b.WriteChar(5, 0xC8, false)
	b.EraseAllUnprotected()
	assert.Equal(t, 0, b.GetCursor())
	assert.Equal(t, byte(0), b.CellAt(5).CharByte)
}

func TestCursorAndBufferAddressStayInRange(t *testing.T) {
	// Property 6 (spec.md §8).
	b := newTestBuffer()
	err := b.SetCursor(b.Size())
	assert.Error(t, err)
	err = b.SetCursor(-1)
	assert.Error(t, err)
	err = b.SetCursor(b.Size() - 1)
	assert.NoError(t, err)
}

func TestToTextRendersAttributeCellsAsSpaceAndWrapsLines(t *testing.T) {
	b := New(2, 3)
	b.WriteAttribute(0, 0)
	b.WriteChar(1, codepageEncodeByte('H'), false)
	b.WriteChar(2, codepageEncodeByte('I'), false)
	text := b.ToText()
	lines := splitLines(text)
	require.Len(t, lines, 2)
	assert.Equal(t, " HI", lines[0])
}

func TestModifiedFieldsExcludeTrailingNulls(t *testing.T) {
	b := newTestBuffer()
	b.WriteAttribute(0, 0)
	b.WriteChar(1, codepageEncodeByte('H'), true)
	b.WriteChar(2, codepageEncodeByte('I'), true)
	// cells 3.. remain null (trailing), so ModifiedFields should trim them.
	mf := b.ModifiedFields(false)
	require.Len(t, mf, 1)
	assert.Equal(t, 1, mf[0].Addr)
	assert.Equal(t, []byte{codepageEncodeByte('H'), codepageEncodeByte('I')}, mf[0].Content)
}

// codepageEncodeByte and splitLines are tiny test helpers kept local to
// avoid importing internal/codepage just for one character's worth of
// EBCDIC in assertions (CP037 'H' is 0xC8, 'I' is 0xC9).
func codepageEncodeByte(r rune) byte {
	switch r {
	case 'H':
		return 0xC8
	case 'I':
		return 0xC9
	}
	panic("unsupported test rune")
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}
