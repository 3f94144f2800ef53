package screen

// Field is a span of cells delimited by field-attribute cells, per
// spec.md §3.
type Field struct {
	// Start is the address of the field-attribute cell itself.
	Start int
	// End is the address one past the field's last content cell
	// (exclusive), wrapping past the end of the buffer back to Start if the
	// field wraps around.
	End int
	// Attr is the attribute cell's Cell value, so callers can inspect
	// Protected/Numeric/Intensified/NonDisplay/MDT without a second lookup.
	Attr Cell
}

// Protected reports whether this field is protected.
func (f Field) Protected() bool { return f.Attr.Protected() }

// MDT reports whether this field's modified-data-tag bit is set.
func (f Field) MDT() bool { return f.Attr.MDT() }

// contains reports whether addr lies within [contentStart, f.End), wrapping
// the same way the field itself wraps.
func (f Field) contains(addr, size int) bool {
	contentStart := (f.Start + 1) % size
	if contentStart == f.End {
		// Zero-length field (attribute cell immediately followed by the
		// next attribute cell): contains nothing.
		return false
	}
	if contentStart < f.End {
		return addr >= contentStart && addr < f.End
	}
	// Wraps around the end of the buffer.
	return addr >= contentStart || addr < f.End
}

// rebuildFields scans cells for field-attribute cells and derives the
// ordered Field list, per spec.md §3: "the field spans from just after its
// attribute cell to just before the next attribute cell (wrapping from end
// to start of buffer). A screen with zero field-attribute cells is
// 'unformatted' and behaves as one implicit unprotected field covering the
// whole buffer."
func rebuildFields(cells []Cell) []Field {
	size := len(cells)
	var starts []int
	for i, c := range cells {
		if c.IsAttribute() {
			starts = append(starts, i)
		}
	}
	if len(starts) == 0 {
		return []Field{{Start: -1, End: size, Attr: Cell{}}}
	}
	fields := make([]Field, len(starts))
	for i, start := range starts {
		var end int
		if i+1 < len(starts) {
			end = starts[i+1]
		} else {
			end = starts[0]
		}
		fields[i] = Field{Start: start, End: end, Attr: cells[start]}
	}
	return fields
}

// isUnformatted reports whether fields represents the implicit whole-buffer
// field used when the screen has no field-attribute cells at all.
func isUnformatted(fields []Field) bool {
	return len(fields) == 1 && fields[0].Start == -1
}
