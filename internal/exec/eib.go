package exec

import (
	"time"

	"github.com/xandr001/qwics/pkg/field"
)

// Exec-interface block offsets. Time and date are packed decimal, the
// response pair big-endian binary.
const (
	eibTimeOff  = 0  // 4 bytes packed, hhmmss
	eibDateOff  = 4  // 4 bytes packed, (year-1900)*1000 + zero-based day of year
	eibTrnidOff = 8  // 4 characters, space padded
	eibTaskOff  = 12 // 4 bytes packed
	eibTermOff  = 16 // 4 characters, zero padded
	eibReqidOff = 43 // 8 characters, space padded
	eibRespOff  = 76 // 4 bytes big-endian
	eibResp2Off = 80 // 4 bytes big-endian
)

// handleEibcalen serves the first EIBCALEN access at link depth zero: the
// caller-area length arrives from the client and lands in the field using
// its binary encoding.
func (t *Task) handleEibcalen(f *field.Field) {
	v := t.readInt()
	if f.Kind == field.BinaryNative {
		field.PutBinaryNative(int64(v), f.Data[:f.Size])
		return
	}
	field.PutBinary(uint64(v), f.Data[:f.Size])
}

// handleEibaid serves the first EIBAID access at link depth zero. It also
// rewinds the commarea carve pointer: EIBAID precedes the commarea-backed
// declarations of a fresh invocation.
func (t *Task) handleEibaid(f *field.Field) {
	t.commAreaPtr = 0
	t.areaMode = 0
	field.PutString(f, t.readLine())
}

// handleEibblk serves a DFHEIBLK access. At link depth zero the client
// supplies the task identity (transaction id, request id, terminal id, task
// id) and the clock stamps time and date; at nested depth the live EIB is
// copied into the artifact's buffer.
func (t *Task) handleEibblk(f *field.Field) {
	if !t.atTopLevel() {
		if f != nil && f.Data != nil {
			copy(f.Data, t.eib[:min(len(f.Data), eibSize)])
		}
		return
	}
	if f != nil && f.Data != nil && len(f.Data) >= eibSize {
		// The artifact's own EIB storage becomes the live EIB.
		t.eib = f.Data
	}

	t.readPadded(t.eib[eibTrnidOff:eibTrnidOff+4], ' ')
	t.readPadded(t.eib[eibReqidOff:eibReqidOff+8], ' ')
	t.readPadded(t.eib[eibTermOff:eibTermOff+4], '0')

	id := t.readInt()
	field.PutPacked(int64(id), t.eib[eibTaskOff:eibTaskOff+4])

	now := time.Now()
	ti := now.Hour()*10000 + now.Minute()*100 + now.Second()
	field.PutPacked(int64(ti), t.eib[eibTimeOff:eibTimeOff+4])
	da := (now.Year()-1900)*1000 + now.YearDay() - 1
	field.PutPacked(int64(da), t.eib[eibDateOff:eibDateOff+4])
}

// readPadded reads one client line into dst, padding the remainder.
func (t *Task) readPadded(dst []byte, pad byte) {
	line := t.readLine()
	n := copy(dst, line)
	for ; n < len(dst); n++ {
		dst[n] = pad
	}
}
