// Package dsparse implements the inbound 3270 Data-Stream Parser: it decodes
// a single already-EOR-delimited record into Screen Buffer mutations, per
// spec.md §4.3. It is modeled as a pull function over a byte slice rather
// than a generator (spec.md §9's "generators/iterators in the parser" design
// note) — Parse walks the record with a plain index, recovering from a
// malformed order by aborting the record rather than unwinding.
package dsparse

import (
	"github.com/go3270/pure3270/internal/screen"
)

// Command bytes, per spec.md §4.3.
const (
	CmdWrite               byte = 0xF1
	CmdEraseWrite          byte = 0xF5
	CmdEraseWriteAlternate byte = 0x7E
	CmdEraseAllUnprotected byte = 0x6F
	CmdReadBuffer          byte = 0xF6
	CmdReadModified        byte = 0xF2
	CmdReadModifiedAll     byte = 0x6E
	CmdNOP                 byte = 0x03
	CmdWriteStructured     byte = 0xF3
)

// Order bytes, per spec.md §4.3.
const (
	OrderSBA byte = 0x11
	OrderSF  byte = 0x1D
	OrderSFE byte = 0x29
	OrderSA  byte = 0x28
	OrderRA  byte = 0x3C
	OrderEUA byte = 0x12
	OrderIC  byte = 0x13
	OrderPT  byte = 0x05
	OrderGE  byte = 0x08
	OrderTRN byte = 0x3F
)

// WCC bits, per spec.md §4.3. Bit assignment matches scenario S1's worked
// example (WCC 0xC3 = reset-MDT | restore-kbd | sound-alarm); bit 0x80 is
// reserved and carries no behavior here.
const (
	WCCSoundAlarm     byte = 0x01
	WCCRestoreKbd     byte = 0x02
	WCCResetPartition byte = 0x04
	WCCStartPrinter   byte = 0x08
	WCCResetMDT       byte = 0x40
)

// Event is one occurrence a Parse call wants surfaced to the caller (the
// Session's telemetry sink): an alarm from WCC, a warning about a skipped
// unknown structured field, or a ParseError on a malformed order.
type Event struct {
	Kind    string // "alarm", "unknown_sfid", "parse_error"
	Message string
}

// ParseError is the Go error Parse returns for a record it cannot apply at
// all (an empty record). A malformed order mid-record is not reported through
// this type: it becomes a "parse_error" Event, the record is aborted at the
// point of failure, and cells written before it are left intact, per
// spec.md §7's "Parse errors are recovered locally" policy and scenario S6.
type ParseError struct {
	Offset  int
	Message string
}

func (e *ParseError) Error() string { return e.Message }

// Result is what one Parse call produces beyond its Screen Buffer mutations.
type Result struct {
	Command byte
	WCC     byte
	Events  []Event
	// ReadRequested is set when Command is a Read-family command (RB, RM,
	// RMA); the Session is responsible for invoking the Builder and writing
	// the reply.
	ReadRequested bool
	ReadAll       bool // RMA: include all unprotected fields regardless of MDT
}

// Parse applies one record's worth of 3270 data stream to buf, per
// spec.md §4.3's command dispatch table. It never returns a Go error for a
// malformed order — that is reported as a ParseError Event per spec.md §7,
// with the record aborted at the failure point — but does return an error
// for a record too short to even carry a command byte, which cannot be
// partially applied.
func Parse(buf *screen.Buffer, record []byte) (Result, error) {
	if len(record) == 0 {
		return Result{}, &ParseError{Offset: 0, Message: "empty record"}
	}

	cmd := record[0]
	res := Result{Command: cmd}
	p := &parser{buf: buf, record: record, pos: 1}

	switch cmd {
	case CmdNOP:
		return res, nil
	case CmdEraseAllUnprotected:
		buf.EraseAllUnprotected()
		return res, nil
	case CmdReadBuffer:
		res.ReadRequested = true
		return res, nil
	case CmdReadModified:
		res.ReadRequested = true
		return res, nil
	case CmdReadModifiedAll:
		res.ReadRequested = true
		res.ReadAll = true
		return res, nil
	case CmdEraseWrite, CmdEraseWriteAlternate:
		buf.Clear()
		fallthrough
	case CmdWrite:
		wcc, ok := p.byteAt()
		if !ok {
			res.Events = append(res.Events, Event{Kind: "parse_error", Message: "record ended before WCC byte"})
			return res, nil
		}
		res.WCC = wcc
		p.applyWCC(wcc, &res)
		p.runOrders(&res)
		return res, nil
	case CmdWriteStructured:
		p.runStructuredFields(&res)
		return res, nil
	default:
		res.Events = append(res.Events, Event{Kind: "parse_error", Message: "unknown command byte"})
		return res, nil
	}
}

type parser struct {
	buf    *screen.Buffer
	record []byte
	pos    int
}

func (p *parser) byteAt() (byte, bool) {
	if p.pos >= len(p.record) {
		return 0, false
	}
	b := p.record[p.pos]
	p.pos++
	return b, true
}

func (p *parser) take(n int) ([]byte, bool) {
	if p.pos+n > len(p.record) {
		return nil, false
	}
	out := p.record[p.pos : p.pos+n]
	p.pos += n
	return out, true
}

func (p *parser) applyWCC(wcc byte, res *Result) {
	p.buf.SetWCCLast(wcc)
	if wcc&WCCResetMDT != 0 {
		// Applying reset-MDT repeatedly is idempotent: resetAllMDT's
		// MDT-clearing is the same whether WCC-reset-MDT has already fired,
		// per spec.md §8 property 3.
		resetAllMDT(p.buf)
	}
	if wcc&WCCSoundAlarm != 0 {
		res.Events = append(res.Events, Event{Kind: "alarm", Message: "WCC sound-alarm"})
	}
}

// resetAllMDT clears the MDT bit on every field without touching content,
// unlike EraseAllUnprotected which also clears unprotected cell data. Applied
// for the WCC reset-MDT bit alone, per spec.md §4.3's WCC bit list. Clearing
// an already-clear MDT is a no-op, so calling this twice in a row (the same
// WCC applied again) leaves the buffer identically reset, per spec.md §8
// property 3.
func resetAllMDT(buf *screen.Buffer) {
	buf.ResetAllMDT()
}

func decodeAddr(b [2]byte, fourteenBit bool) (int, bool) {
	addr, _, ok := screen.DecodeBufferAddress(b)
	return addr, ok
}

func (p *parser) runOrders(res *Result) {
	for p.pos < len(p.record) {
		b, _ := p.byteAt()
		switch b {
		case OrderSBA:
			raw, ok := p.take(2)
			if !ok {
				p.abort(res, "truncated SBA")
				return
			}
			addr, ok := decodeAddr([2]byte{raw[0], raw[1]}, p.buf.FourteenBit())
			if !ok {
				p.abort(res, "invalid SBA address code")
				return
			}
			if err := p.buf.SetBufferAddress(addr); err != nil {
				p.abort(res, err.Error())
				return
			}
		case OrderSF:
			raw, ok := p.byteAt()
			if !ok {
				p.abort(res, "truncated SF")
				return
			}
			attr, ok := screen.DecodeAttributeByte(raw)
			if !ok {
				p.abort(res, "invalid SF attribute code")
				return
			}
			p.buf.WriteAttribute(p.buf.GetBufferAddress(), attr)
			p.buf.Advance(1)
		case OrderSFE:
			count, ok := p.byteAt()
			if !ok {
				p.abort(res, "truncated SFE")
				return
			}
			pairs, ok := p.take(int(count) * 2)
			if !ok {
				p.abort(res, "truncated SFE pairs")
				return
			}
			var basic byte
			addr := p.buf.GetBufferAddress()
			for i := 0; i+1 < len(pairs); i += 2 {
				typ, val := pairs[i], pairs[i+1]
				if typ == screen.ExtTypeBasic3270 {
					decoded, ok := screen.DecodeAttributeByte(val)
					if !ok {
						p.abort(res, "invalid SFE basic attribute code")
						return
					}
					basic = decoded
					continue
				}
				p.buf.SetExtendedAttribute(addr, typ, val)
			}
			p.buf.WriteAttribute(addr, basic)
			p.buf.Advance(1)
		case OrderSA:
			pair, ok := p.take(2)
			if !ok {
				p.abort(res, "truncated SA")
				return
			}
			p.buf.SetExtendedAttribute(p.buf.GetBufferAddress(), pair[0], pair[1])
		case OrderRA:
			raw, ok := p.take(2)
			if !ok {
				p.abort(res, "truncated RA address")
				return
			}
			fill, ok := p.byteAt()
			if !ok {
				p.abort(res, "truncated RA fill byte")
				return
			}
			addr, ok := decodeAddr([2]byte{raw[0], raw[1]}, p.buf.FourteenBit())
			if !ok {
				p.abort(res, "invalid RA address code")
				return
			}
			p.buf.RepeatTo(addr, fill)
		case OrderEUA:
			raw, ok := p.take(2)
			if !ok {
				p.abort(res, "truncated EUA")
				return
			}
			addr, ok := decodeAddr([2]byte{raw[0], raw[1]}, p.buf.FourteenBit())
			if !ok {
				p.abort(res, "invalid EUA address code")
				return
			}
			p.buf.EraseUnprotectedToAddress(addr)
		case OrderIC:
			p.buf.SetCursor(p.buf.GetBufferAddress()) //nolint:errcheck // buffer address is always in range
		case OrderPT:
			advanceToNextUnprotectedField(p.buf)
		case OrderGE:
			ch, ok := p.byteAt()
			if !ok {
				p.abort(res, "truncated GE")
				return
			}
			p.buf.WriteChar(p.buf.GetBufferAddress(), ch, false)
		case OrderTRN:
			count, ok := p.byteAt()
			if !ok {
				p.abort(res, "truncated TRN count")
				return
			}
			if _, ok := p.take(int(count)); !ok {
				p.abort(res, "truncated TRN payload")
				return
			}
			// Transparent data is consumed and discarded: it does not
			// mutate the 3270 screen buffer and is not surfaced in the
			// Result.
		default:
			// Any other byte in order position is written literally, per
			// spec.md §4.3's final dispatch rule.
			p.buf.WriteChar(p.buf.GetBufferAddress(), b, false)
		}
	}
}

func (p *parser) abort(res *Result, msg string) {
	res.Events = append(res.Events, Event{Kind: "parse_error", Message: msg})
}

func advanceToNextUnprotectedField(buf *screen.Buffer) {
	fields := buf.Fields()
	if len(fields) == 0 {
		return
	}
	cur := buf.GetCursor()
	n := len(fields)
	start := 0
	for i, f := range fields {
		if f.Start > cur || f.Start == -1 {
			start = i
			break
		}
		start = (i + 1) % n
	}
	for i := 0; i < n; i++ {
		f := fields[(start+i)%n]
		if !f.Protected() {
			target := (f.Start + 1) % buf.Size()
			buf.SetCursor(target) //nolint:errcheck // derived address always in range
			buf.SetBufferAddress(target) //nolint:errcheck
			return
		}
	}
}

// Structured field SFIDs this parser understands; everything else is skipped
// by its advertised length with an "unknown_sfid" event, per spec.md §4.3.
const (
	sfidReadPartition  = 0x01
	sfidEraseReset     = 0x03
	sfidBindImage      = 0x0D
	sfidOutbound3270DS = 0x40
	sfidQueryReply     = 0x81
)

func (p *parser) runStructuredFields(res *Result) {
	for p.pos < len(p.record) {
		lenBytes, ok := p.take(2)
		if !ok {
			p.abort(res, "truncated structured field length")
			return
		}
		length := int(lenBytes[0])<<8 | int(lenBytes[1])
		if length < 3 {
			p.abort(res, "invalid structured field length")
			return
		}
		body, ok := p.take(length - 2)
		if !ok {
			p.abort(res, "truncated structured field body")
			return
		}
		sfid := body[0]
		payload := body[1:]
		switch sfid {
		case sfidBindImage:
			applyBindImage(p.buf, payload)
		case sfidOutbound3270DS:
			if sub, err := Parse(p.buf, payload); err == nil {
				res.Events = append(res.Events, sub.Events...)
			}
		case sfidEraseReset:
			p.buf.Clear()
		case sfidQueryReply, sfidReadPartition:
			// Recognized and consumed without error; the buffer is left
			// unchanged and no reply is generated.
		default:
			res.Events = append(res.Events, Event{Kind: "unknown_sfid", Message: "skipped unrecognized structured field"})
		}
	}
}

// applyBindImage extracts rows/cols from a BIND-IMAGE payload and resizes
// buf, per spec.md §4.5 step 6 and scenario S5. The BIND-IMAGE structured
// field's query-reply-like TLV layout carries rows at payload[allowed two
// bytes]; this implementation reads the two "presentation space size" bytes
// the spec names (rows, cols) at a fixed conservative offset matching the
// common BIND-IMAGE layout used by 3270 hosts.
func applyBindImage(buf *screen.Buffer, payload []byte) {
	if len(payload) < 2 {
		return
	}
	rows, cols := int(payload[0]), int(payload[1])
	if rows <= 0 || cols <= 0 {
		return
	}
	buf.Resize(rows, cols)
}
