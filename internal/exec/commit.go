package exec

import (
	"strings"

	"github.com/xandr001/qwics/internal/metrics"
	"github.com/xandr001/qwics/internal/sqlbridge"
	"github.com/xandr001/qwics/pkg/enq"
	"github.com/xandr001/qwics/pkg/field"
)

// commitCommand runs the END-EXEC semantics of the assembled verb, then
// propagates the response pair: EIB update, bound RESP fields, and the abend
// path when nothing suppresses it.
func (t *Task) commitCommand() {
	c := &t.cmd
	t.writeBlank()

	var resp, resp2 int
	switch c.verb {
	case verbReceive:
		resp, resp2 = t.commitReceive()
	case verbXctl:
		name := c.programName
		t.cmd.reset()
		t.nestedCall(name)
		panic(transferSignal{})
	case verbRetrieve, verbDeleteQ, verbInquiry, verbSoapFault, verbInvoke:
		resp, resp2 = t.readRespPair()
	case verbLink:
		resp, resp2 = t.commitLink()
	case verbGetmain:
		resp, resp2 = t.commitGetmain()
	case verbFreemain:
		resp, resp2 = t.commitFreemain()
	case verbPut:
		resp, resp2 = t.commitPut()
	case verbGet:
		resp, resp2 = t.commitGet()
	case verbEnq, verbDeq:
		resp, resp2 = t.commitEnqDeq()
	case verbSyncpoint:
		resp, resp2 = t.commitSyncpoint()
	case verbWriteQ:
		resp, resp2 = t.commitWriteQ()
	case verbReadQ:
		resp, resp2 = t.commitReadQ()
	case verbStart:
		resp, resp2 = t.commitStart()
	case verbQuery:
		resp, resp2 = t.commitQuery()
	case verbAbend:
		t.abend(0, 0, true)
	}

	t.endCommand(resp, resp2)
}

// endCommand finishes the command: abend unless suppressed, then EIB and
// binding updates, then reset to idle.
func (t *Task) endCommand(resp, resp2 int) {
	if resp > 0 {
		t.abend(resp, resp2, false)
	}
	t.setResp(resp, resp2)
	t.cmd.reset()
	t.respState = 0
	t.respFields[0], t.respFields[1] = nil, nil
}

// setResp records the response pair in the EIB and in any bound fields.
func (t *Task) setResp(resp, resp2 int) {
	field.PutBinary(uint64(resp), t.eib[76:80])
	field.PutBinary(uint64(resp2), t.eib[80:84])
	if t.respState >= 1 && t.respFields[0] != nil {
		field.SetNumeric(int64(resp), t.respFields[0])
	}
	if t.respState >= 2 && t.respFields[1] != nil {
		field.SetNumeric(int64(resp2), t.respFields[1])
	}
}

// recvLen bounds a transfer length by the field size; a missing length means
// the full field.
func recvLen(length, size int) int {
	if length >= 0 && length <= size {
		return length
	}
	return size
}

// ============================================================================
// Per-verb commit semantics
// ============================================================================

func (t *Task) commitReceive() (int, int) {
	c := &t.cmd
	if c.dataField == nil {
		return 0, 0
	}
	l := recvLen(c.length, c.dataField.Size)
	t.readRaw(c.dataField.Data[:l])
	t.discard(c.length - l)
	return t.readRespPair()
}

func (t *Task) commitLink() (int, int) {
	c := &t.cmd
	resp, resp2 := 0, 0

	if len(t.linkStack) < linkStackMax {
		t.linkStack = append(t.linkStack, c.programName)
	}
	if c.commField != nil && c.commField.Size > CommAreaSize {
		resp, resp2 = 22, 11
	}
	if resp == 0 {
		comm := c.commField
		r, r2 := t.nestedCall(c.programName)
		if r != 0 {
			resp, resp2 = r, r2
		}
		if resp == 0 && comm != nil {
			copy(comm.Data[:comm.Size], t.commArea[:comm.Size])
		}
	}
	if n := len(t.linkStack); n > 0 {
		t.linkStack = t.linkStack[:n-1]
	}
	return resp, resp2
}

// nestedCall invokes a program inside the running task with the caller's
// command state and response binding preserved across the nested execution.
func (t *Task) nestedCall(name string) (int, int) {
	savedFields := t.respFields
	savedState := t.respState
	savedCmd := t.cmd
	savedMap := t.currentMap
	t.cmd.reset()
	t.respState = 0
	t.respFields[0], t.respFields[1] = nil, nil

	resp, resp2 := t.loadNested(name)

	t.cmd = savedCmd
	t.currentMap = savedMap
	t.respFields = savedFields
	t.respState = savedState
	return resp, resp2
}

func (t *Task) commitGetmain() (int, int) {
	c := &t.cmd
	if c.length < 1 {
		return 22, 0
	}
	var (
		buf []byte
		err error
	)
	if c.shared {
		buf, err = t.mon.Shared.Getmain(c.length, c.initByte)
	} else {
		buf, err = t.pool.Getmain(c.length, c.initByte)
	}
	if err != nil {
		t.log.Warn("getmain failed", "length", c.length, "shared", c.shared, "error", err)
		return 22, 0
	}
	if c.setField != nil {
		t.bindPtr(c.setField, buf)
	}
	return 0, 0
}

func (t *Task) commitFreemain() (int, int) {
	c := &t.cmd
	target := c.freeBuf
	if target == nil && c.dataField != nil {
		target = c.dataField.Data
	}
	if target == nil {
		return 16, 1
	}
	if err := t.pool.Freemain(target); err != nil {
		if err := t.mon.Shared.Freemain(target); err != nil {
			return 16, 1
		}
	}
	return 0, 0
}

func (t *Task) commitPut() (int, int) {
	c := &t.cmd
	if c.dataField == nil {
		return 0, 0
	}
	l := recvLen(c.length, c.dataField.Size)
	t.writeRaw(c.dataField.Data[:l])
	t.padZeros(c.length - l)
	resp, resp2 := t.readRespPair()
	t.writeBlank()
	t.writeBlank()
	return resp, resp2
}

func (t *Task) commitGet() (int, int) {
	c := &t.cmd
	length := c.length
	var dst []byte

	switch {
	case c.setField != nil:
		// SET mode: the client announces the container length and the
		// monitor binds a fresh channel buffer to the pointer field.
		length = t.readInt()
		dst = t.nextChnBuf(length)
		t.bindPtr(c.setField, dst)
	case c.nodata:
		length = t.readInt()
	case c.dataField != nil:
		dst = c.dataField.Data
	}

	l := 0
	if dst != nil {
		l = recvLen(length, len(dst))
	}
	if c.lenField != nil {
		if c.nodata {
			field.SetNumeric(int64(length), c.lenField)
		} else {
			field.SetNumeric(int64(l), c.lenField)
		}
	}
	if c.nodata {
		l, length = 0, 0
	}
	if l > 0 {
		t.readRaw(dst[:l])
	}
	t.discard(length - l)
	return t.readRespPair()
}

func (t *Task) commitEnqDeq() (int, int) {
	c := &t.cmd
	key := c.resource
	if c.length > 0 {
		if c.length > 255 {
			return 22, 1
		}
		if c.resField != nil && c.length <= len(c.resField.Data) {
			key = string(c.resField.Data[:c.length])
		}
	} else if c.resField != nil {
		key = string(c.resField.Data)
	}
	if key == "" {
		return 0, 0
	}

	scope := enq.UOW
	if c.scopeTask {
		scope = enq.Task
	}
	if c.verb == verbDeq {
		t.mon.Enq.Deq(key, scope, t.locks)
		return 0, 0
	}

	metrics.EnqRequests.Inc()
	if err := t.mon.Enq.Enq(key, c.nosuspend, scope, t.locks); err != nil {
		return 55, 0
	}
	return 0, 0
}

func (t *Task) commitSyncpoint() (int, int) {
	c := &t.cmd
	rollbackSeen := false
	for {
		line := t.readLine()
		if strings.Contains(line, "ROLLBACK") {
			rollbackSeen = true
		}
		if i := strings.Index(line, "sql"); i >= 0 && i+4 <= len(line) {
			if err := sqlbridge.ExecSQL(t.ctx, t.db, line[i+4:], t.ch, true, true); err != nil {
				t.log.Warn("syncpoint sql failed", "error", err)
			}
		}
		if strings.Contains(line, "END-SYNCPOINT") {
			break
		}
	}
	t.mon.Enq.ReleaseScope(enq.UOW, t.locks)
	if rollbackSeen && !c.rollback {
		return 82, 0
	}
	return 0, 0
}

func (t *Task) commitWriteQ() (int, int) {
	c := &t.cmd
	if c.dataField == nil {
		return 0, 0
	}
	l := recvLen(c.length, c.dataField.Size)
	t.writeRaw(c.dataField.Data[:l])
	t.padZeros(c.length - l)

	item := t.readInt()
	t.setItemField(item)
	resp, resp2 := t.readRespPair()
	t.writeBlank()
	t.writeBlank()
	return resp, resp2
}

func (t *Task) commitReadQ() (int, int) {
	c := &t.cmd
	if c.dataField == nil {
		return 0, 0
	}
	l := recvLen(c.length, c.dataField.Size)
	t.readRaw(c.dataField.Data[:l])
	t.discard(c.length - l)

	item := t.readInt()
	t.setItemField(item)
	resp, resp2 := t.readRespPair()
	if resp > 0 {
		t.abend(resp, resp2, false)
		// A suppressed failure leaves the destination cleared.
		if c.dataField.Kind == field.Alphanumeric {
			for i := range c.dataField.Data {
				c.dataField.Data[i] = ' '
			}
		} else {
			for i := range c.dataField.Data {
				c.dataField.Data[i] = 0
			}
		}
	}
	return resp, resp2
}

func (t *Task) commitStart() (int, int) {
	c := &t.cmd
	if c.dataField != nil {
		l := recvLen(c.length, c.dataField.Size)
		t.writeRaw(c.dataField.Data[:l])
	}
	return t.readRespPair()
}

// setItemField writes a returned item number into the caller's numeric
// field using its native two-byte encoding.
func (t *Task) setItemField(item int) {
	c := &t.cmd
	f := c.itemField
	if f == nil || len(f.Data) < 2 {
		return
	}
	switch f.Kind {
	case field.BinaryBE:
		field.PutBinary(uint64(item), f.Data[:2])
	case field.BinaryNative:
		field.PutBinaryNative(int64(item), f.Data[:2])
	}
}

// padZeros writes n zero bytes to the channel.
func (t *Task) padZeros(n int) {
	if n <= 0 {
		return
	}
	zero := make([]byte, n)
	t.writeRaw(zero)
}

// commitQuery reads the four security-query value lines into the captured
// receivers, then the response pair.
func (t *Task) commitQuery() (int, int) {
	c := &t.cmd
	for i := 0; i < 4; i++ {
		v := t.readInt()
		if f := c.queryFields[i]; f != nil {
			field.SetNumeric(int64(v), f)
		}
	}
	return t.readRespPair()
}
