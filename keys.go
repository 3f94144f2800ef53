package pure3270

import "github.com/go3270/pure3270/internal/screen"

// Key is a symbolic key name from the closed catalog spec.md §6 defines.
// Unknown names produce UnknownKey.
type Key string

const (
	KeyEnter Key = "Enter"
	KeyClear Key = "Clear"
	KeyPA1   Key = "PA1"
	KeyPA2   Key = "PA2"
	KeyPA3   Key = "PA3"
	KeyPF1   Key = "PF1"
	KeyPF2   Key = "PF2"
	KeyPF3   Key = "PF3"
	KeyPF4   Key = "PF4"
	KeyPF5   Key = "PF5"
	KeyPF6   Key = "PF6"
	KeyPF7   Key = "PF7"
	KeyPF8   Key = "PF8"
	KeyPF9   Key = "PF9"
	KeyPF10  Key = "PF10"
	KeyPF11  Key = "PF11"
	KeyPF12  Key = "PF12"
	KeyPF13  Key = "PF13"
	KeyPF14  Key = "PF14"
	KeyPF15  Key = "PF15"
	KeyPF16  Key = "PF16"
	KeyPF17  Key = "PF17"
	KeyPF18  Key = "PF18"
	KeyPF19  Key = "PF19"
	KeyPF20  Key = "PF20"
	KeyPF21  Key = "PF21"
	KeyPF22  Key = "PF22"
	KeyPF23  Key = "PF23"
	KeyPF24  Key = "PF24"

	KeyTab     Key = "Tab"
	KeyBackTab Key = "BackTab"
	KeyHome    Key = "Home"
	KeyUp      Key = "Up"
	KeyDown    Key = "Down"
	KeyLeft    Key = "Left"
	KeyRight   Key = "Right"
	KeyNewline Key = "Newline"

	KeyBackspace           Key = "Backspace"
	KeyDelete              Key = "Delete"
	KeyEraseEOF            Key = "EraseEOF"
	KeyEraseInput          Key = "EraseInput"
	KeyEraseAllUnprotected Key = "EraseAllUnprotected"

	KeyInsert Key = "Insert"
	KeySysReq Key = "SysReq"
)

// keyAIDs maps the AID-sending keys to their AID byte, per spec.md §6: "all
// send AID".
var keyAIDs = map[Key]AID{
	KeyEnter: AIDEnter,
	KeyClear: AIDClear,
	KeyPA1:   AIDPA1,
	KeyPA2:   AIDPA2,
	KeyPA3:   AIDPA3,
	KeyPF1:   AIDPF1,
	KeyPF2:   AIDPF2,
	KeyPF3:   AIDPF3,
	KeyPF4:   AIDPF4,
	KeyPF5:   AIDPF5,
	KeyPF6:   AIDPF6,
	KeyPF7:   AIDPF7,
	KeyPF8:   AIDPF8,
	KeyPF9:   AIDPF9,
	KeyPF10:  AIDPF10,
	KeyPF11:  AIDPF11,
	KeyPF12:  AIDPF12,
	KeyPF13:  AIDPF13,
	KeyPF14:  AIDPF14,
	KeyPF15:  AIDPF15,
	KeyPF16:  AIDPF16,
	KeyPF17:  AIDPF17,
	KeyPF18:  AIDPF18,
	KeyPF19:  AIDPF19,
	KeyPF20:  AIDPF20,
	KeyPF21:  AIDPF21,
	KeyPF22:  AIDPF22,
	KeyPF23:  AIDPF23,
	KeyPF24:  AIDPF24,
}

// localKeys is the set of keys that mutate the Screen Buffer or move the
// cursor without sending an AID, plus the Insert toggle and SysReq, which
// need Session-level state and are handled directly by Session.Key.
var localKeys = map[Key]bool{
	KeyTab: true, KeyBackTab: true, KeyHome: true,
	KeyUp: true, KeyDown: true, KeyLeft: true, KeyRight: true, KeyNewline: true,
	KeyBackspace: true, KeyDelete: true,
	KeyEraseEOF: true, KeyEraseInput: true, KeyEraseAllUnprotected: true,
}

// applyLocalKey performs a local (non-AID) key's effect on buf. k must be a
// key in localKeys; callers dispatch KeyInsert/KeySysReq separately.
func applyLocalKey(buf *screen.Buffer, k Key) error {
	switch k {
	case KeyTab:
		return moveToField(buf, true)
	case KeyBackTab:
		return moveToField(buf, false)
	case KeyHome:
		return moveHome(buf)
	case KeyUp:
		return moveCursorBy(buf, -1, 0)
	case KeyDown:
		return moveCursorBy(buf, 1, 0)
	case KeyLeft:
		return moveCursorBy(buf, 0, -1)
	case KeyRight:
		return moveCursorBy(buf, 0, 1)
	case KeyNewline:
		return moveNewline(buf)
	case KeyBackspace:
		return backspace(buf)
	case KeyDelete:
		return deleteChar(buf)
	case KeyEraseEOF:
		return eraseEOF(buf)
	case KeyEraseInput, KeyEraseAllUnprotected:
		buf.EraseAllUnprotected()
		return nil
	}
	return &UnknownKey{Name: string(k)}
}

// fieldContentRange returns the [start,end) content span of f, handling the
// unformatted implicit whole-buffer field (f.Start == -1).
func fieldContentRange(f screen.Field, size int) (start, end int) {
	if f.Start == -1 {
		return 0, size
	}
	return (f.Start + 1) % size, f.End
}

// moveToField moves the cursor to the content start of the next (forward)
// or previous (backward) unprotected field, wrapping around the buffer.
func moveToField(buf *screen.Buffer, forward bool) error {
	fields := buf.Fields()
	size := buf.Size()
	cursor := buf.GetCursor()

	var starts []int
	for _, f := range fields {
		if f.Protected() {
			continue
		}
		start, _ := fieldContentRange(f, size)
		starts = append(starts, start)
	}
	if len(starts) == 0 {
		return nil
	}

	if forward {
		best := starts[0]
		for _, s := range starts {
			if s > cursor && (best <= cursor || s < best) {
				best = s
			}
		}
		return buf.SetCursor(best)
	}
	best := starts[len(starts)-1]
	for _, s := range starts {
		if s < cursor && (best >= cursor || s > best) {
			best = s
		}
	}
	return buf.SetCursor(best)
}

// moveHome moves the cursor to the content start of the first unprotected
// field, or address 0 if the buffer is unformatted or has none.
func moveHome(buf *screen.Buffer) error {
	size := buf.Size()
	for _, f := range buf.Fields() {
		if !f.Protected() {
			start, _ := fieldContentRange(f, size)
			return buf.SetCursor(start)
		}
	}
	return buf.SetCursor(0)
}

func moveCursorBy(buf *screen.Buffer, drow, dcol int) error {
	rows, cols := buf.Dimensions()
	cursor := buf.GetCursor()
	row, col := cursor/cols, cursor%cols
	row = (row + drow + rows) % rows
	col = (col + dcol + cols) % cols
	return buf.SetCursor(row*cols + col)
}

func moveNewline(buf *screen.Buffer) error {
	rows, cols := buf.Dimensions()
	cursor := buf.GetCursor()
	row := cursor / cols
	row = (row + 1) % rows
	return buf.SetCursor(row * cols)
}

// backspace moves the cursor back one position and, if it lands in an
// unprotected cell, blanks it.
func backspace(buf *screen.Buffer) error {
	size := buf.Size()
	addr := (buf.GetCursor() - 1 + size) % size
	if err := buf.SetCursor(addr); err != nil {
		return err
	}
	if f := buf.FieldAt(addr); f != nil && !f.Protected() && !buf.CellAt(addr).IsAttribute() {
		buf.WriteChar(addr, 0x00, true)
	}
	return nil
}

// deleteChar shifts the remainder of the current field one cell to the
// left, starting at the cursor, blanking the field's last content cell.
// WriteChar's buffer-address advance is a host-data-stream bookkeeping
// side effect, distinct from the cursor this function leaves untouched.
func deleteChar(buf *screen.Buffer) error {
	addr := buf.GetCursor()
	f := buf.FieldAt(addr)
	if f == nil || f.Protected() {
		return nil
	}
	size := buf.Size()
	_, end := fieldContentRange(*f, size)
	for a := addr; (a+1)%size != end%size; a = (a + 1) % size {
		next := (a + 1) % size
		buf.WriteChar(a, buf.CellAt(next).CharByte, false)
	}
	last := (end - 1 + size) % size
	buf.WriteChar(last, 0x00, true)
	return nil
}

// insertShiftRight shifts the content of the field containing addr one
// cell to the right, starting from the field's last content cell down to
// addr, dropping whatever was in the last cell and blanking addr. Used by
// Session.InsertText when Insert mode is toggled on, mirroring deleteChar's
// left shift.
func insertShiftRight(buf *screen.Buffer, addr int) {
	f := buf.FieldAt(addr)
	if f == nil || f.Protected() {
		return
	}
	size := buf.Size()
	_, end := fieldContentRange(*f, size)
	last := (end - 1 + size) % size
	for a := last; a != addr; a = (a - 1 + size) % size {
		prev := (a - 1 + size) % size
		buf.WriteChar(a, buf.CellAt(prev).CharByte, false)
	}
	buf.WriteChar(addr, 0x00, false)
}

// eraseEOF blanks from the cursor to the end of the current unprotected
// field, per the standard 3270 EraseEOF key.
func eraseEOF(buf *screen.Buffer) error {
	addr := buf.GetCursor()
	f := buf.FieldAt(addr)
	if f == nil || f.Protected() {
		return nil
	}
	size := buf.Size()
	_, end := fieldContentRange(*f, size)
	for a := addr; ; {
		buf.WriteChar(a, 0x00, a == addr)
		a = (a + 1) % size
		if a == end%size {
			break
		}
	}
	return nil
}
