// Package screen implements the addressable 3270 screen buffer and its
// derived field list, per spec.md §3 and §4.2. Cells are mutated
// exclusively through these methods by internal/dsparse (inbound orders)
// and the Session (user-facing clear/erase operations), matching the
// lifecycle spec.md describes.
package screen

import (
	"strings"

	"github.com/go3270/pure3270/internal/codepage"
)

// Buffer is a rows*cols grid of Cells plus the cursor/buffer-address/field
// state spec.md §3 defines.
type Buffer struct {
	rows, cols int
	cells      []Cell

	cursorAddr int
	bufferAddr int

	aidPending byte
	wccLast    byte

	fields      []Field
	fieldsValid bool

	fourteenBit bool
	codepage    *codepage.Table
}

// New creates a Buffer sized rows*cols, addressed in 12-bit mode by default
// and using codepage.Default for ToText.
func New(rows, cols int) *Buffer {
	b := &Buffer{
		rows:     rows,
		cols:     cols,
		cells:    make([]Cell, rows*cols),
		codepage: codepage.Default,
	}
	b.invalidateFields()
	return b
}

// Size returns rows*cols.
func (b *Buffer) Size() int { return b.rows * b.cols }

// Codepage returns the table used to decode/encode cell bytes, so callers
// outside this package (e.g. internal/vt100) can translate text into the
// same EBCDIC cell representation ToText decodes from.
func (b *Buffer) Codepage() *codepage.Table { return b.codepage }

// Dimensions returns rows, cols.
func (b *Buffer) Dimensions() (rows, cols int) { return b.rows, b.cols }

// Resize replaces the buffer with a new rows*cols grid (all cells cleared),
// per spec.md §3's "resized only on accepted dynamic sizing" lifecycle rule.
// Callers (internal/dsparse, on a BIND-IMAGE structured field) are
// responsible for deciding when a resize is accepted.
func (b *Buffer) Resize(rows, cols int) {
	b.rows, b.cols = rows, cols
	b.cells = make([]Cell, rows*cols)
	b.cursorAddr = 0
	b.bufferAddr = 0
	b.invalidateFields()
}

// SetFourteenBit sets the buffer-address encoding mode used by ReadModified
// and ReadBuffer, per spec.md §4.4 ("14-bit if the host set the
// corresponding BIND bit, else 12-bit").
func (b *Buffer) SetFourteenBit(on bool) { b.fourteenBit = on }

// SetCodepage sets the EBCDIC code page used by ToText.
func (b *Buffer) SetCodepage(t *codepage.Table) { b.codepage = t }

func wrap(addr, size int) int {
	addr %= size
	if addr < 0 {
		addr += size
	}
	return addr
}

// GetCursor returns the cursor address.
func (b *Buffer) GetCursor() int { return b.cursorAddr }

// SetCursor sets the cursor address. Returns AddressError if addr is out of
// range — this is a user-facing API boundary, per spec.md §4.2's failure
// semantics ("out-of-range address raises AddressError").
func (b *Buffer) SetCursor(addr int) error {
	if addr < 0 || addr >= b.Size() {
		return &AddressError{Addr: addr, Size: b.Size()}
	}
	b.cursorAddr = addr
	return nil
}

// GetBufferAddress returns the data-stream write cursor.
func (b *Buffer) GetBufferAddress() int { return b.bufferAddr }

// SetBufferAddress sets the data-stream write cursor (the SBA order).
func (b *Buffer) SetBufferAddress(addr int) error {
	if addr < 0 || addr >= b.Size() {
		return &AddressError{Addr: addr, Size: b.Size()}
	}
	b.bufferAddr = addr
	return nil
}

// Advance moves the buffer address forward n cells, wrapping modulo Size().
// Internal orders that "consume and advance" (SF, data bytes, ...) use this
// instead of SetBufferAddress so they never need to pre-validate.
func (b *Buffer) Advance(n int) {
	b.bufferAddr = wrap(b.bufferAddr+n, b.Size())
}

// AIDPending / WCCLast are the last AID awaiting a reply and the last WCC
// byte processed, surfaced for the Session and tests.
func (b *Buffer) AIDPending() byte    { return b.aidPending }
func (b *Buffer) SetAIDPending(a byte) { b.aidPending = a }
func (b *Buffer) WCCLast() byte       { return b.wccLast }
func (b *Buffer) SetWCCLast(w byte)   { b.wccLast = w }

// CellAt returns the cell at addr (no bounds error: addr is always wrapped,
// matching spec.md's "Address arithmetic wraps modulo rows*cols").
func (b *Buffer) CellAt(addr int) Cell {
	return b.cells[wrap(addr, b.Size())]
}

func (b *Buffer) invalidateFields() { b.fieldsValid = false }

func (b *Buffer) ensureFields() {
	if b.fieldsValid {
		return
	}
	b.fields = rebuildFields(b.cells)
	b.fieldsValid = true
}

// Fields returns the current field list, rebuilding it if any
// field-attribute cell changed since the last call.
func (b *Buffer) Fields() []Field {
	b.ensureFields()
	return b.fields
}

// FieldAt returns the field containing addr, or nil if the buffer is
// unformatted (or, in principle, addr somehow belongs to no field, which
// cannot happen once at least one attribute cell exists, since every
// content cell belongs to exactly one field).
func (b *Buffer) FieldAt(addr int) *Field {
	b.ensureFields()
	addr = wrap(addr, b.Size())
	if isUnformatted(b.fields) {
		return &b.fields[0]
	}
	for i := range b.fields {
		if b.fields[i].contains(addr, b.Size()) {
			return &b.fields[i]
		}
	}
	return nil
}

// WriteChar writes a data byte at addr, advances the buffer address, and
// (when markModified is true) sets MDT on the containing field if addr is
// not itself a field-attribute cell and the field is unprotected. Inbound
// host orders pass markModified=false (per spec.md §4.2, MDT is set "by any
// keyboard/data-stream modification" — data-stream modification here means
// a WCC/order that explicitly requests it, which the caller threads through
// as markModified); Session-level user edits pass markModified=true.
func (b *Buffer) WriteChar(addr int, char byte, markModified bool) {
	addr = wrap(addr, b.Size())
	c := &b.cells[addr]
	wasAttr := c.IsAttribute()
	*c = Cell{CharByte: char}
	if wasAttr {
		b.invalidateFields()
	}
	if markModified {
		if f := b.FieldAt(addr); f != nil && !f.Protected() {
			b.setFieldMDT(f.Start, true)
		}
	}
	b.Advance(1)
}

// setFieldMDT sets the MDT bit on the attribute cell at attrAddr. attrAddr
// of -1 means the implicit whole-buffer field of an unformatted screen,
// which has no attribute cell to tag; MDT is meaningless there and the call
// is a no-op, matching "a screen with zero field-attribute cells... behaves
// as one implicit unprotected field" without pretending it has MDT state.
func (b *Buffer) setFieldMDT(attrAddr int, set bool) {
	if attrAddr < 0 {
		return
	}
	b.cells[attrAddr].setMDT(set)
	b.invalidateFields()
}

// WriteAttribute installs a field-attribute cell at addr from a raw basic
// attribute byte, invalidating the field list. Per spec.md §4.2: "Writing a
// field-attribute cell at addr where one already exists replaces it and
// does not create a zero-length field" — replacing in place naturally
// satisfies this since the field list is derived fresh from cell contents.
func (b *Buffer) WriteAttribute(addr int, attr byte) {
	addr = wrap(addr, b.Size())
	b.cells[addr] = makeAttributeCell(attr)
	b.invalidateFields()
}

// SetExtendedAttribute updates one extended-attribute plane of the cell at
// addr, per spec.md §4.2 set_extended_attributes and the SA/SFE orders.
func (b *Buffer) SetExtendedAttribute(addr int, typ, value byte) {
	addr = wrap(addr, b.Size())
	c := &b.cells[addr]
	c.AttrExtended = typ
	switch typ {
	case ExtTypeHighlighting:
		c.AttrHighlight = value
	case ExtTypeForeground, ExtTypeBackground:
		c.AttrColor = value
	case ExtTypeCharset:
		c.AttrCharset = value
	}
}

// RepeatTo fills from the buffer address (inclusive) to addr (exclusive),
// wrapping, with fill. addr == buffer address fills the entire buffer
// (spec.md §8 property 8: "RA with addr == buffer_address fills the entire
// buffer (wrap full)"). The buffer address is left at addr.
func (b *Buffer) RepeatTo(addr int, fill byte) {
	addr = wrap(addr, b.Size())
	start := b.bufferAddr
	n := addr - start
	if n <= 0 {
		n += b.Size()
	}
	touchedAttr := false
	for i := 0; i < n; i++ {
		pos := wrap(start+i, b.Size())
		if b.cells[pos].IsAttribute() {
			touchedAttr = true
		}
		b.cells[pos] = Cell{CharByte: fill}
	}
	if touchedAttr {
		b.invalidateFields()
	}
	b.bufferAddr = addr
}

// EraseUnprotectedToAddress clears unprotected, non-attribute cells from the
// buffer address (inclusive) to addr (exclusive), wrapping, preserving field
// attributes (the EUA order).
func (b *Buffer) EraseUnprotectedToAddress(addr int) {
	addr = wrap(addr, b.Size())
	start := b.bufferAddr
	n := addr - start
	if n <= 0 {
		n += b.Size()
	}
	for i := 0; i < n; i++ {
		pos := wrap(start+i, b.Size())
		if b.cells[pos].IsAttribute() {
			continue
		}
		if f := b.FieldAt(pos); f == nil || !f.Protected() {
			b.cells[pos] = Cell{}
			if f != nil {
				b.setFieldMDT(f.Start, false)
			}
		}
	}
	b.bufferAddr = addr
}

// EraseAllUnprotected clears all unprotected fields' content, resets every
// MDT, and moves the cursor to the first unprotected position (or 0 if the
// screen is unformatted), per spec.md §4.2.
func (b *Buffer) EraseAllUnprotected() {
	b.ensureFields()
	if isUnformatted(b.fields) {
		for i := range b.cells {
			b.cells[i] = Cell{}
		}
		b.cursorAddr = 0
		b.bufferAddr = 0
		return
	}

	firstUnprotected := -1
	for _, f := range b.fields {
		b.setFieldMDT(f.Start, false)
		if f.Protected() {
			continue
		}
		contentStart := wrap(f.Start+1, b.Size())
		pos := contentStart
		for pos != f.End {
			b.cells[pos] = Cell{}
			pos = wrap(pos+1, b.Size())
		}
		if firstUnprotected == -1 {
			firstUnprotected = contentStart
		}
	}
	if firstUnprotected == -1 {
		firstUnprotected = 0
	}
	b.cursorAddr = firstUnprotected
	b.bufferAddr = firstUnprotected
}

// ResetAllMDT clears the MDT bit on every field-attribute cell without
// touching field content, for the WCC reset-MDT bit (spec.md §4.3) — unlike
// EraseAllUnprotected, which also blanks unprotected cell content.
func (b *Buffer) ResetAllMDT() {
	b.ensureFields()
	if isUnformatted(b.fields) {
		return
	}
	for _, f := range b.fields {
		b.setFieldMDT(f.Start, false)
	}
}

// Cells returns a copy of the full cell grid, in screen order, for
// internal/dsbuild's ReadBuffer dump.
func (b *Buffer) Cells() []Cell {
	out := make([]Cell, len(b.cells))
	copy(out, b.cells)
	return out
}

// FourteenBit reports the current buffer-address encoding mode.
func (b *Buffer) FourteenBit() bool { return b.fourteenBit }

// Clear resets every cell to its zero value (used by EW/EWA before applying
// the new screen's orders).
func (b *Buffer) Clear() {
	for i := range b.cells {
		b.cells[i] = Cell{}
	}
	b.cursorAddr = 0
	b.bufferAddr = 0
	b.invalidateFields()
}

// ModifiedField is one span of content internal/dsbuild turns into an SBA
// plus field-content order pair for a Read Modified/Read Buffer reply.
// Addr is -1 for the unformatted case, meaning "no SBA, this is the whole
// buffer's content starting at 0".
type ModifiedField struct {
	Addr    int
	Content []byte
}

// ModifiedFields returns, in screen order, the content of each field with
// MDT set (or, if includeAllUnprotected is true — the RMA/EAU-all-unprotected
// case — every unprotected field regardless of MDT). Trailing null bytes
// are trimmed from each field's content; interior nulls are preserved.
func (b *Buffer) ModifiedFields(includeAllUnprotected bool) []ModifiedField {
	b.ensureFields()
	if isUnformatted(b.fields) {
		content := make([]byte, len(b.cells))
		for i, c := range b.cells {
			content[i] = c.CharByte
		}
		return []ModifiedField{{Addr: -1, Content: trimTrailingNulls(content)}}
	}

	var out []ModifiedField
	for _, f := range b.fields {
		if !includeAllUnprotected && !f.MDT() {
			continue
		}
		if includeAllUnprotected && f.Protected() {
			continue
		}
		contentStart := wrap(f.Start+1, b.Size())
		var content []byte
		pos := contentStart
		for pos != f.End {
			content = append(content, b.cells[pos].CharByte)
			pos = wrap(pos+1, b.Size())
		}
		content = trimTrailingNulls(content)
		out = append(out, ModifiedField{Addr: contentStart, Content: content})
	}
	return out
}

func trimTrailingNulls(b []byte) []byte {
	end := len(b)
	for end > 0 && b[end-1] == 0x00 {
		end--
	}
	return b[:end]
}

// ToText renders the buffer (or, if region is non-nil, cells
// [region[0],region[1])) as decoded text with a line break every cols
// positions and field-attribute cells rendered as a space.
func (b *Buffer) ToText(region ...[2]int) string {
	start, end := 0, b.Size()
	if len(region) > 0 {
		start, end = region[0][0], region[0][1]
	}

	var sb strings.Builder
	lineBytes := make([]byte, 0, b.cols)
	col := start % b.cols
	flush := func() {
		sb.WriteString(b.codepage.Decode(lineBytes))
		lineBytes = lineBytes[:0]
	}
	for addr := start; addr < end; addr++ {
		c := b.cells[wrap(addr, b.Size())]
		switch {
		case c.IsAttribute():
			lineBytes = append(lineBytes, 0x40) // EBCDIC space
		case c.CharByte == 0x00:
			// Trailing/unwritten nulls decode as spaces (spec.md §4.2).
			lineBytes = append(lineBytes, 0x40)
		default:
			lineBytes = append(lineBytes, c.CharByte)
		}
		col++
		if col == b.cols {
			flush()
			if addr != end-1 {
				sb.WriteByte('\n')
			}
			col = 0
		}
	}
	if len(lineBytes) > 0 {
		flush()
	}
	return sb.String()
}
