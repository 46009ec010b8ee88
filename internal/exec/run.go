package exec

import (
	"encoding/binary"
	"errors"
	"strconv"

	"github.com/xandr001/qwics/internal/logger"
	"github.com/xandr001/qwics/internal/program"
)

// dispatch is the outer invocation of a task's initial program: it resolves
// the artifact, anchors the abend unwind, serializes per program name, and
// emits the terminal STOP once the artifact is done.
func (t *Task) dispatch(name string) error {
	entry, err := t.mon.Loader.Resolve(name)
	if err != nil {
		t.log.Error("program resolution failed", logger.KeyProgram, name, "error", err)
		_ = t.ch.WriteLine("ERROR: Load module " + name + " not found!")
		return err
	}
	t.writeLine("OK")

	t.mon.Serializer.Enter(name)
	func() {
		defer t.mon.Serializer.Leave(name)
		defer t.recoverAnchor()
		entry(t, t.commArea[:], t.params...)
	}()

	if t.runState < stateFault {
		t.writeString("\nSTOP\n")
	}
	return nil
}

// loadNested invokes a program inside the running task, the LINK/XCTL path.
// A missing artifact reports resp 27/3 to the caller; a present artifact
// whose entry cannot be resolved abends with AEI0. Abnormal unwinds pass
// through to the outer anchor.
func (t *Task) loadNested(name string) (resp, resp2 int) {
	entry, err := t.mon.Loader.Resolve(name)
	if err != nil {
		if errors.Is(err, program.ErrBadSymbol) {
			t.log.Error("nested program entry missing", logger.KeyProgram, name, "error", err)
			t.abend(27, 1, false)
		}
		t.log.Error("nested program not found", logger.KeyProgram, name, "error", err)
		return 27, 3
	}

	t.mon.Serializer.Enter(name)
	defer t.mon.Serializer.Leave(name)
	entry(t, t.commArea[:])
	return 0, 0
}

// pseudoSymbol intercepts the built-in entries resolved before any artifact
// lookup: the status-message formatter stub and the XML generation shim.
func pseudoSymbol(name string) program.Entry {
	switch name {
	case "DSNTIAR":
		return dsntiar
	case "xmlGenerate":
		return xmlGenerate
	}
	return nil
}

// dsntiar stands in for the status-message formatter some programs call
// after SQL errors. The stub reports success without formatting anything.
func dsntiar(api program.API, commArea []byte, params ...[]byte) {}

// xmlGenerate shims XML generation out to the client: it announces the
// source record and expected character count, then reads the generated
// document back into the output parameter.
//
// Parameter bank: params[0] is the XML output buffer, params[1] the source
// record, params[2] the four-byte character count (native order).
func xmlGenerate(api program.API, commArea []byte, params ...[]byte) {
	t, ok := api.(*Task)
	if !ok || len(params) < 3 {
		return
	}
	count := int(int32(binary.NativeEndian.Uint32(params[2])))

	t.writeLine("XML")
	t.writeLine("GENERATE")
	t.writeLine("SOURCE-REC")
	t.writeLine("XML-CHAR-COUNT")
	t.writeLine("=" + strconv.Itoa(count))
	t.writeBlank()

	out := params[0]
	if count > len(out) {
		count = len(out)
	}
	t.readRaw(out[:count])

	t.readLine()
	t.readLine()
}
