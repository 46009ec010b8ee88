package exec

import "strconv"

// Channel helpers for the interpreter. A client that vanishes mid-command
// aborts the task: every failure unwinds to the task anchor via
// channelAbort.

func (t *Task) writeLine(s string) {
	if err := t.ch.WriteLine(s); err != nil {
		panic(channelAbort{err: err})
	}
}

func (t *Task) writeString(s string) {
	if err := t.ch.WriteString(s); err != nil {
		panic(channelAbort{err: err})
	}
}

func (t *Task) writeBlank() {
	if err := t.ch.WriteBlank(); err != nil {
		panic(channelAbort{err: err})
	}
}

func (t *Task) writeRaw(b []byte) {
	if err := t.ch.WriteRaw(b); err != nil {
		panic(channelAbort{err: err})
	}
}

func (t *Task) readLine() string {
	line, err := t.ch.ReadLine()
	if err != nil {
		panic(channelAbort{err: err})
	}
	return line
}

func (t *Task) readInt() int {
	v, err := t.ch.ReadInt()
	if err != nil {
		panic(channelAbort{err: err})
	}
	return v
}

func (t *Task) readRespPair() (int, int) {
	resp, resp2, err := t.ch.ReadRespPair()
	if err != nil {
		panic(channelAbort{err: err})
	}
	return resp, resp2
}

func (t *Task) readRaw(buf []byte) {
	if err := t.ch.ReadRaw(buf); err != nil {
		panic(channelAbort{err: err})
	}
}

func (t *Task) discard(n int) {
	if n <= 0 {
		return
	}
	if err := t.ch.Discard(n); err != nil {
		panic(channelAbort{err: err})
	}
}

// writeSize emits the SIZE dialogue announcing a field's byte width before a
// transfer.
func (t *Task) writeSize(n int) {
	t.writeLine("SIZE")
	t.writeLine("=" + strconv.Itoa(n))
}
