package exec

import (
	"strconv"
	"strings"

	"github.com/xandr001/qwics/internal/sqlbridge"
	"github.com/xandr001/qwics/pkg/field"
)

// Exec receives one embedded-command token from the running artifact,
// optionally accompanied by a bound field. It drives the per-task command
// state machine: verb assembly, parameter capture, client-channel emission,
// and commit at END-EXEC.
func (t *Task) Exec(token string, f *field.Field) {
	switch {
	case strings.Contains(token, "SET SQLCODE"):
		if f != nil {
			t.sqlca = f
		}
		return
	case strings.Contains(token, "SET EIBCALEN"):
		if t.atTopLevel() && f != nil {
			t.handleEibcalen(f)
		}
		return
	case strings.Contains(token, "SET EIBAID"):
		if t.atTopLevel() && f != nil {
			t.handleEibaid(f)
		}
		return
	case strings.Contains(token, "SET DFHEIBLK"):
		t.handleEibblk(f)
		return
	}

	if strings.HasPrefix(token, "SETL0") || strings.HasPrefix(token, "SETL1") ||
		strings.Contains(token, "DFHCOMMAREA") {
		t.materialize(token, f)
		return
	}

	if token == "CICS" {
		t.cmd.reset()
		t.cmd.active = true
		t.cmd.verb = verbSend
		return
	}

	if t.cmd.active {
		t.verbToken(token, f)
		return
	}
	t.sqlToken(token, f)
}

// ============================================================================
// Storage materialization
// ============================================================================

// materialize backs a declared storage item. Top-level linkage items bind to
// fresh link-area storage, sub-level items rebase into their top-level
// item's storage by offset, and commarea-mode items carve the communication
// area sequentially.
func (t *Task) materialize(token string, f *field.Field) {
	top := strings.Contains(token, "SETL1 1 ") || strings.Contains(token, "SETL0 1 ") ||
		strings.Contains(token, "SETL0 77")
	if top {
		t.areaMode = 0
	}
	if strings.Contains(token, "DFHCOMMAREA") {
		t.areaMode = 1
	}
	if f == nil || f.Data != nil {
		return
	}

	if t.areaMode == 1 {
		if t.commAreaPtr+f.Size <= CommAreaSize {
			f.Data = t.commArea[t.commAreaPtr : t.commAreaPtr+f.Size]
			t.commAreaPtr += f.Size
		}
		return
	}
	if top {
		f.Data = t.linkArea.alloc(f.Size)
		t.lastTop = f.Data
		return
	}
	if t.lastTop != nil && f.Offset >= 0 && f.Offset+f.Size <= len(t.lastTop) {
		f.Data = t.lastTop[f.Offset : f.Offset+f.Size]
	}
}

// ============================================================================
// SQL accumulation
// ============================================================================

// sqlToken assembles an EXEC SQL statement outside any monitor verb. Host
// variables are inlined as literals; INTO-clause receivers are captured for
// the bridge instead of being accumulated.
func (t *Task) sqlToken(token string, f *field.Field) {
	c := &t.cmd
	if strings.Contains(token, "END-EXEC") {
		sqlbridge.ProcessCmd(t.ctx, t.db, c.sql, c.outputs, t.sqlca)
		c.reset()
		return
	}

	if token == "" && f != nil {
		if c.sqlMode >= 2 {
			if len(c.outputs) < 98 {
				c.outputs = append(c.outputs, f)
			}
			c.sqlMode++
			return
		}
		c.sql += sqlLiteral(f, t.mon.Dates) + " "
		return
	}

	switch {
	case strings.Contains(token, "SELECT") || strings.Contains(token, "FETCH"):
		c.sqlMode = 1
	case strings.Contains(token, "INTO") && c.sqlMode == 1:
		c.sqlMode = 2
	case c.sqlMode >= 2 && !strings.Contains(token, ","):
		c.sqlMode = 0
	}
	if c.sqlMode < 2 {
		c.sql += token + " "
	}
}

// sqlLiteral renders a host variable for inline accumulation: character
// kinds become quoted, escaped literals (display dates reshaped for the
// database), numeric kinds plain decimal text.
func sqlLiteral(f *field.Field, dates field.DateFormats) string {
	switch f.Kind {
	case field.Group:
		return "'" + field.EscapeText([]byte(field.Varchar(f))) + "'"
	case field.Alphanumeric:
		adjusted := dates.AdjustToDB(string(f.Data))
		return "'" + field.EscapeText([]byte(adjusted)) + "'"
	default:
		return f.DisplayString()
	}
}

// ============================================================================
// Verb assembly
// ============================================================================

// verbToken handles one token while a monitor verb is being assembled.
func (t *Task) verbToken(token string, f *field.Field) {
	if f == nil {
		if t.openVerb(token) {
			return
		}
		if strings.Contains(token, "END-EXEC") {
			t.commitCommand()
			return
		}
		t.bareToken(token)
		return
	}
	t.fieldToken(token, f)
}

// openVerb starts a new command when the token is a verb keyword: the verb
// line goes to the client, the accumulator clears, and the response binding
// resets.
func (t *Task) openVerb(token string) bool {
	v, ok := verbTags[token]
	if !ok {
		return false
	}
	t.writeLine(token)
	t.cmd.reset()
	t.cmd.active = true
	t.cmd.verb = v
	t.respState = 0
	t.respFields[0], t.respFields[1] = nil, nil
	if v == verbReturn {
		t.runState = stateEnded
	}
	return true
}

// bareToken handles a parameter token without a bound field: a quoted
// literal argument, a numeric literal, or a parameter keyword.
func (t *Task) bareToken(token string) {
	c := &t.cmd

	if strings.HasPrefix(token, "'") {
		lit := strings.Trim(token, "' \r\n")
		switch c.expect {
		case slotProgram:
			c.programName = clipName(lit, 8)
			c.expect = slotDone
		case slotResource:
			c.resource = clipName(lit, 255)
			c.expect = slotDone
		case slotInitImg:
			if lit != "" {
				b := lit[0]
				c.initByte = &b
			}
			c.expect = slotDone
		case slotSep:
			c.expect = slotNone
		}
		t.writeLine("=" + token)
		return
	}

	if c.expect == slotLength && isNumber(token) {
		c.length, _ = strconv.Atoi(token)
		c.expect = slotDone
		t.writeLine(token)
		return
	}

	if token == "NOHANDLE" {
		if t.respState == 0 {
			t.respState = 3
		}
		t.writeLine(token)
		return
	}

	t.keyword(token)
	t.writeLine(token)

	if c.verb == verbSend {
		if name, ok := strings.CutPrefix(token, "MAP="); ok {
			t.currentMap = strings.Trim(name, "'")
		}
		if name, ok := strings.CutPrefix(token, "MAPSET="); ok {
			t.writeJSON(t.currentMap, strings.Trim(name, "'"))
		}
	}
}

// keyword advances the expected-argument slot for the current verb. Unknown
// keywords are tolerated: they are emitted but bind nothing.
func (t *Task) keyword(token string) {
	c := &t.cmd
	switch c.verb {
	case verbReceive:
		switch token {
		case "LENGTH":
			c.expect = slotLength
		case "INTO":
			c.expect = slotInto
		}
	case verbXctl:
		if token == "PROGRAM" {
			c.expect = slotProgram
		}
	case verbRetrieve:
		switch token {
		case "INTO":
			c.expect = slotInto
		case "SET":
			c.expect = slotSet
		case "LENGTH":
			c.expect = slotLength
		}
	case verbLink:
		switch token {
		case "PROGRAM":
			c.expect = slotProgram
		case "COMMAREA":
			c.expect = slotCommArea
		}
	case verbGetmain:
		switch token {
		case "SET":
			c.expect = slotSet
		case "LENGTH", "FLENGTH":
			c.expect = slotLength
		case "INITIMG":
			c.expect = slotInitImg
		case "SHARED":
			c.shared = true
		}
	case verbFreemain:
		switch token {
		case "DATA":
			c.expect = slotData
		case "DATAPOINTER":
			c.expect = slotDataPointer
		}
	case verbAddress:
		switch token {
		case "CWA":
			c.expect = slotAddrCWA
		case "TWA":
			c.expect = slotAddrTWA
		case "TCTUA":
			c.expect = slotAddrTUA
		case "TCTUALENG":
			c.expect = slotAddrTUALen
		case "COMMAREA":
			c.expect = slotAddrCommArea
		case "EIB":
			c.expect = slotAddrEIB
		}
	case verbPut:
		switch token {
		case "FLENGTH":
			c.expect = slotLength
		case "FROM":
			c.expect = slotFrom
		}
	case verbGet:
		switch token {
		case "FLENGTH":
			c.expect = slotLength
		case "INTO":
			c.expect = slotInto
		case "SET":
			c.expect = slotSet
		case "NODATA":
			c.nodata = true
			c.expect = slotDone
		}
	case verbEnq, verbDeq:
		switch token {
		case "RESOURCE":
			c.expect = slotResource
		case "LENGTH":
			c.expect = slotLength
		case "NOSUSPEND":
			c.nosuspend = true
		case "TASK":
			c.scopeTask = true
		case "UOW":
			// unit-of-work scope is the default
		}
	case verbSyncpoint:
		if token == "ROLLBACK" {
			c.rollback = true
		}
	case verbWriteQ:
		switch token {
		case "LENGTH":
			c.expect = slotLength
		case "FROM":
			c.expect = slotFrom
		case "QUEUE", "QNAME":
			c.expect = slotQueue
		case "ITEM":
			c.expect = slotItem
		}
	case verbReadQ:
		switch token {
		case "LENGTH":
			c.expect = slotLength
		case "INTO":
			c.expect = slotInto
		case "QUEUE", "QNAME":
			c.expect = slotQueue
		case "ITEM":
			c.expect = slotItem
		}
	case verbDeleteQ:
		if token == "QUEUE" || token == "QNAME" {
			c.expect = slotQueue
		}
	case verbInquiry:
		if token == "DATESEP" || token == "TIMESEP" {
			c.expect = slotSep
		}
	case verbStart:
		c.expect = slotDone
		switch token {
		case "LENGTH":
			c.expect = slotLength
		case "FROM":
			c.expect = slotFrom
		case "REQID":
			c.expect = slotReqID
		}
	case verbSoapFault:
		c.expect = slotDone
		switch token {
		case "CREATE", "CLIENT", "SERVER", "SENDER", "RECEIVER":
			c.expect = slotSkip
		}
	case verbQuery:
		c.expect = slotDone
		switch token {
		case "READ":
			c.expect = slotRead
		case "UPDATE":
			c.expect = slotUpdate
		case "CONTROL":
			c.expect = slotControl
		case "ALTER":
			c.expect = slotAlter
		}
	}
}

// fieldToken handles a parameter token carrying a bound field: the field is
// read, captured, or stored according to the verb and the expected slot.
func (t *Task) fieldToken(token string, f *field.Field) {
	c := &t.cmd

	switch token {
	case "RESP":
		if len(f.Data) >= 4 {
			field.PutBinary(0, f.Data[:4])
		}
		t.respFields[0] = f
		t.respState = 1
		t.emitKV(token, f)
		return
	case "RESP2":
		if len(f.Data) >= 4 {
			field.PutBinary(0, f.Data[:4])
		}
		t.respFields[1] = f
		t.respState = 2
		t.emitKV(token, f)
		return
	}

	switch c.expect {
	case slotLength:
		t.emitKV(token, f)
		c.length = f.DisplayInt()
		if c.verb == verbGet {
			c.lenField = f
		}
		c.expect = slotDone
		return
	case slotInto:
		if c.verb == verbRetrieve {
			// RETRIEVE announces the width and receives the bytes at once.
			t.writeLine(strconv.Itoa(f.Size))
			t.readRaw(f.Data[:f.Size])
			c.expect = slotDone
			return
		}
		c.dataField = f
		c.expect = slotDone
		t.writeSize(f.Size)
		return
	case slotFrom:
		c.dataField = f
		c.expect = slotDone
		t.writeSize(f.Size)
		return
	case slotSet:
		c.setField = f
		c.expect = slotDone
		return
	case slotData:
		c.dataField = f
		c.expect = slotDone
		return
	case slotDataPointer:
		if f.Ptr != nil {
			c.freeBuf = *f.Ptr
		}
		c.expect = slotDone
		return
	case slotProgram:
		t.emitKV(token, f)
		c.programName = clipName(f.DisplayString(), 8)
		c.expect = slotDone
		return
	case slotCommArea:
		t.emitKV(token, f)
		c.commField = f
		if f.Size <= CommAreaSize {
			copy(t.commArea[:f.Size], f.Data)
		}
		c.expect = slotDone
		return
	case slotResource:
		c.resField = f
		c.expect = slotDone
		return
	case slotItem:
		t.emitKV(token, f)
		c.itemField = f
		c.expect = slotDone
		return
	case slotQueue:
		t.emitKV(token, f)
		c.expect = slotDone
		return
	case slotReqID:
		n := 8
		if len(f.Data) < n {
			n = len(f.Data)
		}
		t.writeString("='" + string(f.Data[:n]) + "'\n")
		c.expect = slotDone
		return
	case slotAddrCWA:
		t.bindPtr(f, t.mon.CWA())
		c.expect = slotDone
		return
	case slotAddrTWA:
		t.bindPtr(f, t.twa[:])
		c.expect = slotDone
		return
	case slotAddrTUA:
		t.bindPtr(f, t.tua[:])
		c.expect = slotDone
		return
	case slotAddrTUALen:
		if f.IsNumeric() {
			field.SetNumeric(int64(tuaSize), f)
		} else {
			t.bindPtr(f, t.tua[:])
		}
		c.expect = slotDone
		return
	case slotAddrCommArea:
		t.bindPtr(f, t.commArea[:])
		c.expect = slotDone
		return
	case slotAddrEIB:
		t.bindPtr(f, t.eib)
		c.expect = slotDone
		return
	case slotInitImg:
		if f.Kind == field.Alphanumeric && len(f.Data) > 0 {
			b := f.Data[0]
			c.initByte = &b
		}
		c.expect = slotDone
		return
	case slotSep:
		c.expect = slotNone
		return
	case slotSkip:
		c.expect = slotDone
		return
	case slotRead, slotUpdate, slotControl, slotAlter:
		c.queryFields[c.expect-slotRead] = f
		c.expect = slotDone
		return
	}

	switch c.verb {
	case verbSend:
		t.emitKV(token, f)
		switch token {
		case "MAP":
			t.currentMap = strings.TrimSpace(f.DisplayString())
		case "MAPSET":
			t.writeJSON(t.currentMap, strings.TrimSpace(f.DisplayString()))
		}
		return
	case verbReceive:
		// Plain destination: announce it, then read the client's value.
		t.writeLine(token)
		field.PutString(f, t.readLine())
		return
	case verbInquiry:
		// Read-only query destination: fill from the client's line.
		_ = field.SetFromText(f, t.readLine())
		return
	}

	t.emitKV(token, f)
}

// emitKV writes KEY=value, wrapping alphanumeric values in single quotes.
func (t *Task) emitKV(key string, f *field.Field) {
	v := f.DisplayString()
	if f.Kind == field.Alphanumeric {
		v = "'" + v + "'"
	}
	t.writeLine(key + "=" + v)
}

// bindPtr binds monitor-owned storage to a pointer field.
func (t *Task) bindPtr(f *field.Field, buf []byte) {
	if f.Ptr != nil {
		*f.Ptr = buf
	}
}

// clipName trims quotes and trailing blanks and clips to the given length.
func clipName(s string, max int) string {
	s = strings.Trim(s, "' \r\n")
	if len(s) > max {
		s = s[:max]
	}
	return s
}

// isNumber reports whether the token is a bare decimal literal.
func isNumber(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		if i == 0 && (c == '-' || c == '+') {
			continue
		}
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
