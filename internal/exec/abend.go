package exec

import (
	"github.com/xandr001/qwics/internal/logger"
	"github.com/xandr001/qwics/internal/metrics"
)

// abendSignal unwinds the artifact frames to the task anchor or a condition
// handler.
type abendSignal struct {
	resp  int
	resp2 int
}

// transferSignal unwinds after a transfer of control (XCTL) so the issuing
// artifact never resumes.
type transferSignal struct{}

// channelAbort unwinds when the client channel is lost mid-command.
type channelAbort struct {
	err error
}

// abendCode maps a response code to its four-character abend code.
func abendCode(resp int) string {
	switch resp {
	case 16:
		return "A47B"
	case 22:
		return "AEIV"
	case 23:
		return "AEIW"
	case 26:
		return "AEIZ"
	case 27:
		return "AEI0"
	case 28:
		return "AEI1"
	case 44:
		return "AEYH"
	default:
		return "ASRA"
	}
}

// abend terminates the current command abnormally.
//
// Outside the explicit ABEND verb, an active RESP binding or NOHANDLE
// suppresses the abend: the caller receives the pair through the binding and
// control returns to the artifact. Otherwise the ABEND/ABCODE lines go to
// the client (plus STOP when a fault is being recovered) and the stack
// unwinds to a registered condition handler or the task anchor.
func (t *Task) abend(resp, resp2 int, fromAbendVerb bool) {
	if !fromAbendVerb && t.respState > 0 {
		return
	}
	// A registered condition handler takes the abend silently: the
	// client sees nothing and the artifact resumes at the handler.
	if !t.hasHandler(resp) {
		t.emitAbendLines(resp)
	}
	t.log.Error("task abend",
		logger.KeyAbendCode, abendCode(resp),
		logger.KeyResp, resp,
		logger.KeyResp2, resp2)
	metrics.Abends.WithLabelValues(abendCode(resp)).Inc()
	panic(abendSignal{resp: resp, resp2: resp2})
}

// hasHandler reports whether a condition handler is registered for resp.
func (t *Task) hasHandler(resp int) bool {
	return resp >= 0 && resp < condMax && t.condHandlers[resp] != nil
}

// emitAbendLines writes the abend trio, and the terminal STOP when the task
// is in fault recovery. Writes are best-effort: a lost client must not keep
// the unwind from finishing.
func (t *Task) emitAbendLines(resp int) {
	_ = t.ch.WriteLine("ABEND")
	_ = t.ch.WriteLine("ABCODE")
	_ = t.ch.WriteString("='" + abendCode(resp) + "'\n\n")
	if t.runState == stateFault {
		_ = t.ch.WriteString("\nSTOP\n")
	}
}

// Fault routes an artifact-level invalid operation through hardware-fault
// recovery: run state 3, bindings cleared, abend A47B. The host never lets a
// real fault cross the runtime; artifacts and tests call this where legacy
// code would have faulted.
func (t *Task) Fault() {
	t.runState = stateFault
	t.respState = 0
	t.abend(16, 1, false)
}

// recoverAnchor is the task's top-level anchor: every abnormal unwind out of
// the artifact ends here. Registered condition handlers resume here in place
// of the artifact; anything else ends the task.
func (t *Task) recoverAnchor() {
	r := recover()
	if r == nil {
		return
	}
	switch sig := r.(type) {
	case abendSignal:
		t.cmd.reset()
		t.respState = 0
		// Handlers stay registered: a later occurrence of the same
		// condition in this task is caught again.
		if t.hasHandler(sig.resp) {
			t.runHandler(t.condHandlers[sig.resp])
			return
		}
	case transferSignal:
		// Control was transferred; the task ends normally.
	case channelAbort:
		t.log.Warn("client channel lost, aborting task", "error", sig.err)
		t.runState = stateEnded
	default:
		// A runtime panic inside artifact code is the moral equivalent
		// of a hardware fault in a legacy module.
		t.log.Error("artifact fault", "panic", sig)
		t.cmd.reset()
		t.runState = stateFault
		t.respState = 0
		t.emitAbendLines(16)
		metrics.Abends.WithLabelValues(abendCode(16)).Inc()
		if t.hasHandler(16) {
			t.runHandler(t.condHandlers[16])
		}
	}
}

// runHandler executes a condition handler with the anchor re-armed, so an
// abend inside the handler still unwinds safely.
func (t *Task) runHandler(h func()) {
	defer t.recoverAnchor()
	h()
}
