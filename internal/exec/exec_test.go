package exec

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xandr001/qwics/internal/program"
	"github.com/xandr001/qwics/internal/protocol"
	"github.com/xandr001/qwics/pkg/enq"
	"github.com/xandr001/qwics/pkg/field"
)

// duplex pairs a scripted client input with a captured output.
type duplex struct {
	io.Reader
	io.Writer
}

func newTestMonitor(t *testing.T, reg *program.Registry, jsDir string) *Monitor {
	t.Helper()
	mon, err := NewMonitor(reg, nil, 1<<20, 10, jsDir, field.DefaultDateFormats)
	if err != nil {
		t.Fatalf("NewMonitor: %v", err)
	}
	return mon
}

// runTask dispatches one program against a scripted client and returns the
// task and the captured wire output.
func runTask(t *testing.T, mon *Monitor, name, input string) (*Task, string) {
	t.Helper()
	var out bytes.Buffer
	ch := protocol.NewChannel(duplex{strings.NewReader(input), &out})
	task := mon.NewTask(context.Background(), ch, nil)
	if err := task.Run(name, false, 0); err != nil {
		t.Fatalf("Run(%s): %v", name, err)
	}
	return task, out.String()
}

// ============================================================================
// S1: simple SEND / RETURN
// ============================================================================

func TestSendReturn_WireShape(t *testing.T) {
	t.Parallel()

	jsDir := t.TempDir()
	js := `var maps = {"M1": {"POS":{"row":1}}, "M2": {}};`
	if err := os.WriteFile(filepath.Join(jsDir, "MS1.js"), []byte(js), 0o644); err != nil {
		t.Fatal(err)
	}

	from := field.Alnum([]byte("DATA0001"))
	reg := program.NewRegistry()
	reg.Register("T1", func(api program.API, commArea []byte, params ...[]byte) {
		api.Exec("CICS", nil)
		api.Exec("SEND", nil)
		api.Exec("MAP='M1'", nil)
		api.Exec("MAPSET='MS1'", nil)
		api.Exec("FROM", from)
		api.Exec("END-EXEC", nil)
		api.Exec("CICS", nil)
		api.Exec("RETURN", nil)
		api.Exec("END-EXEC", nil)
	})

	mon := newTestMonitor(t, reg, jsDir)
	_, out := runTask(t, mon, "T1", "")

	want := "OK\n" +
		"SEND\n" +
		"MAP='M1'\n" +
		"MAPSET='MS1'\n" +
		`JSON={"POS":{"row":1}}` + "\n" +
		"FROM='DATA0001'\n" +
		"\n" +
		"RETURN\n" +
		"\n" +
		"\nSTOP\n"
	if out != want {
		t.Errorf("wire:\n%q\nwant:\n%q", out, want)
	}
}

// ============================================================================
// S2: RECEIVE with length
// ============================================================================

func TestReceive_LengthBounded(t *testing.T) {
	t.Parallel()

	buf := make([]byte, 16)
	for i := range buf {
		buf[i] = 'X'
	}
	into := field.Alnum(buf)

	reg := program.NewRegistry()
	reg.Register("T2", func(api program.API, commArea []byte, params ...[]byte) {
		api.Exec("CICS", nil)
		api.Exec("RECEIVE", nil)
		api.Exec("INTO", nil)
		api.Exec("INTO", into)
		api.Exec("LENGTH", nil)
		api.Exec("10", nil)
		api.Exec("END-EXEC", nil)
	})

	mon := newTestMonitor(t, reg, t.TempDir())
	task, out := runTask(t, mon, "T2", "HELLOWORLD0\n0\n")

	if got := string(buf[:10]); got != "HELLOWORLD" {
		t.Errorf("received = %q", got)
	}
	if got := string(buf[10:]); got != "XXXXXX" {
		t.Errorf("remainder clobbered: %q", got)
	}
	if !strings.Contains(out, "RECEIVE\nINTO\nSIZE\n=16\nLENGTH\n10\n") {
		t.Errorf("wire = %q", out)
	}
	if resp := field.GetBinary(task.eib[eibRespOff : eibRespOff+4]); resp != 0 {
		t.Errorf("eib resp = %d", resp)
	}
}

// ============================================================================
// S3: LINK round trip
// ============================================================================

func TestLink_CommareaRoundTrip(t *testing.T) {
	t.Parallel()

	comm := field.Alnum([]byte("AAAAAAAA"))
	reg := program.NewRegistry()
	reg.Register("SUB1", func(api program.API, commArea []byte, params ...[]byte) {
		copy(commArea[:8], "RESULT!!")
	})
	reg.Register("MAIN1", func(api program.API, commArea []byte, params ...[]byte) {
		api.Exec("CICS", nil)
		api.Exec("LINK", nil)
		api.Exec("PROGRAM", nil)
		api.Exec("'SUB1'", nil)
		api.Exec("COMMAREA", nil)
		api.Exec("COMMAREA", comm)
		api.Exec("LENGTH", nil)
		api.Exec("8", nil)
		api.Exec("END-EXEC", nil)
	})

	mon := newTestMonitor(t, reg, t.TempDir())
	task, _ := runTask(t, mon, "MAIN1", "")

	if got := string(comm.Data); got != "RESULT!!" {
		t.Errorf("commarea after LINK = %q", got)
	}
	if len(task.linkStack) != 0 {
		t.Errorf("link stack depth = %d, want 0", len(task.linkStack))
	}
}

func TestLink_RespBindingPreserved(t *testing.T) {
	t.Parallel()

	outer := field.NewBinary(4)
	inner := field.NewBinary(4)
	reg := program.NewRegistry()
	reg.Register("SUBR", func(api program.API, commArea []byte, params ...[]byte) {
		// The nested program binds and uses its own RESP field.
		var p []byte
		ptr := field.NewPointer(&p)
		api.Exec("CICS", nil)
		api.Exec("GETMAIN", nil)
		api.Exec("SET", nil)
		api.Exec("SET", ptr)
		api.Exec("LENGTH", nil)
		api.Exec("8", nil)
		api.Exec("RESP", inner)
		api.Exec("END-EXEC", nil)
	})
	reg.Register("MAINR", func(api program.API, commArea []byte, params ...[]byte) {
		api.Exec("CICS", nil)
		api.Exec("LINK", nil)
		api.Exec("RESP", outer)
		api.Exec("PROGRAM", nil)
		api.Exec("'SUBR'", nil)
		api.Exec("END-EXEC", nil)
	})

	mon := newTestMonitor(t, reg, t.TempDir())
	_, out := runTask(t, mon, "MAINR", "")

	if got := field.GetNumeric(outer); got != 0 {
		t.Errorf("outer RESP = %d, want 0", got)
	}
	if got := field.GetNumeric(inner); got != 0 {
		t.Errorf("inner RESP = %d, want 0", got)
	}
	if strings.Contains(out, "ABEND") {
		t.Errorf("unexpected abend on wire: %q", out)
	}
}

func TestLink_MissingProgramRespondsViaBinding(t *testing.T) {
	t.Parallel()

	resp := field.NewBinary(4)
	reg := program.NewRegistry()
	reg.Register("MAINM", func(api program.API, commArea []byte, params ...[]byte) {
		api.Exec("CICS", nil)
		api.Exec("LINK", nil)
		api.Exec("RESP", resp)
		api.Exec("PROGRAM", nil)
		api.Exec("'NOPE'", nil)
		api.Exec("END-EXEC", nil)
	})

	mon := newTestMonitor(t, reg, t.TempDir())
	_, out := runTask(t, mon, "MAINM", "")

	if got := field.GetNumeric(resp); got != 27 {
		t.Errorf("RESP = %d, want 27", got)
	}
	if strings.Contains(out, "ABEND") {
		t.Errorf("binding must suppress the abend: %q", out)
	}
}

// ============================================================================
// XCTL transfers without return
// ============================================================================

func TestXctl_DoesNotReturn(t *testing.T) {
	t.Parallel()

	subRan := false
	reached := false
	reg := program.NewRegistry()
	reg.Register("SUB2", func(api program.API, commArea []byte, params ...[]byte) {
		subRan = true
	})
	reg.Register("MAINX", func(api program.API, commArea []byte, params ...[]byte) {
		api.Exec("CICS", nil)
		api.Exec("XCTL", nil)
		api.Exec("PROGRAM", nil)
		api.Exec("'SUB2'", nil)
		api.Exec("END-EXEC", nil)
		reached = true
	})

	mon := newTestMonitor(t, reg, t.TempDir())
	_, out := runTask(t, mon, "MAINX", "")

	if !subRan {
		t.Error("transferred-to program never ran")
	}
	if reached {
		t.Error("control returned to the XCTL issuer")
	}
	if strings.Count(out, "STOP") != 1 {
		t.Errorf("STOP count = %d, want 1: %q", strings.Count(out, "STOP"), out)
	}
}

// ============================================================================
// S4: non-suspending enqueue conflict
// ============================================================================

func enqProgram(resource *field.Field, resp *field.Field) program.Entry {
	return func(api program.API, commArea []byte, params ...[]byte) {
		api.Exec("CICS", nil)
		api.Exec("ENQ", nil)
		api.Exec("RESOURCE", nil)
		api.Exec("RESOURCE", resource)
		api.Exec("LENGTH", nil)
		api.Exec("2", nil)
		api.Exec("NOSUSPEND", nil)
		api.Exec("RESP", resp)
		api.Exec("END-EXEC", nil)
	}
}

func TestEnq_NoSuspendConflictSetsResp55(t *testing.T) {
	t.Parallel()

	res := field.Alnum([]byte("R1"))
	resp := field.NewBinary(4)
	reg := program.NewRegistry()
	reg.Register("ENQ1", enqProgram(res, resp))

	mon := newTestMonitor(t, reg, t.TempDir())

	holder := enq.NewTaskLocks()
	if err := mon.Enq.Enq("R1", false, enq.UOW, holder); err != nil {
		t.Fatal(err)
	}

	_, out := runTask(t, mon, "ENQ1", "")
	if got := field.GetNumeric(resp); got != 55 {
		t.Errorf("RESP = %d, want 55", got)
	}
	if strings.Contains(out, "ABEND") {
		t.Errorf("bound RESP must suppress the abend: %q", out)
	}

	// After the holder commits, a re-executed ENQ succeeds.
	mon.Enq.ReleaseScope(enq.UOW, holder)
	resp2 := field.NewBinary(4)
	reg.Register("ENQ2", enqProgram(res, resp2))
	runTask(t, mon, "ENQ2", "")
	if got := field.GetNumeric(resp2); got != 0 {
		t.Errorf("retried RESP = %d, want 0", got)
	}
}

// ============================================================================
// S6: abend with condition handler
// ============================================================================

func TestConditionHandler_SilentResume(t *testing.T) {
	t.Parallel()

	handled := false
	var p []byte
	ptr := field.NewPointer(&p)
	reg := program.NewRegistry()
	reg.Register("COND1", func(api program.API, commArea []byte, params ...[]byte) {
		api.OnCondition(22, func() { handled = true })
		api.Exec("CICS", nil)
		api.Exec("GETMAIN", nil)
		api.Exec("SET", nil)
		api.Exec("SET", ptr)
		api.Exec("LENGTH", nil)
		api.Exec("0", nil)
		api.Exec("END-EXEC", nil)
		t.Error("artifact resumed past the failing command")
	})

	mon := newTestMonitor(t, reg, t.TempDir())
	_, out := runTask(t, mon, "COND1", "")

	if !handled {
		t.Error("condition handler never ran")
	}
	if strings.Contains(out, "ABEND") || strings.Contains(out, "ABCODE") {
		t.Errorf("handled condition leaked abend lines: %q", out)
	}
	if !strings.Contains(out, "STOP") {
		t.Errorf("task must still stop cleanly: %q", out)
	}
}

func TestConditionHandler_CatchesRepeatOccurrences(t *testing.T) {
	t.Parallel()

	// A handler stays registered after it fires: a second occurrence of
	// the same condition in the same task is caught again.
	fired := 0
	var p []byte
	ptr := field.NewPointer(&p)
	failingGetmain := func(api program.API) {
		api.Exec("CICS", nil)
		api.Exec("GETMAIN", nil)
		api.Exec("SET", nil)
		api.Exec("SET", ptr)
		api.Exec("LENGTH", nil)
		api.Exec("0", nil)
		api.Exec("END-EXEC", nil)
	}
	reg := program.NewRegistry()
	reg.Register("COND2", func(api program.API, commArea []byte, params ...[]byte) {
		api.OnCondition(22, func() {
			fired++
			if fired == 1 {
				failingGetmain(api)
			}
		})
		failingGetmain(api)
	})

	mon := newTestMonitor(t, reg, t.TempDir())
	_, out := runTask(t, mon, "COND2", "")

	if fired != 2 {
		t.Errorf("handler fired %d times, want 2", fired)
	}
	if strings.Contains(out, "ABEND") {
		t.Errorf("handled conditions leaked abend lines: %q", out)
	}
}

// ============================================================================
// Property 6: fault recovery emits exactly one ABEND/ABCODE/STOP trio
// ============================================================================

func TestFault_SingleTrioAndCleanup(t *testing.T) {
	t.Parallel()

	var p []byte
	ptr := field.NewPointer(&p)
	reg := program.NewRegistry()
	reg.Register("BOOM", func(api program.API, commArea []byte, params ...[]byte) {
		api.Exec("CICS", nil)
		api.Exec("GETMAIN", nil)
		api.Exec("SET", nil)
		api.Exec("SET", ptr)
		api.Exec("LENGTH", nil)
		api.Exec("64", nil)
		api.Exec("END-EXEC", nil)
		panic("wild store")
	})

	mon := newTestMonitor(t, reg, t.TempDir())
	task, out := runTask(t, mon, "BOOM", "")

	if n := strings.Count(out, "ABEND"); n != 1 {
		t.Errorf("ABEND count = %d, want 1: %q", n, out)
	}
	if n := strings.Count(out, "ABCODE"); n != 1 {
		t.Errorf("ABCODE count = %d: %q", n, out)
	}
	if n := strings.Count(out, "STOP"); n != 1 {
		t.Errorf("STOP count = %d: %q", n, out)
	}
	if !strings.Contains(out, "='A47B'") {
		t.Errorf("fault abend code missing: %q", out)
	}
	if task.pool.Live() != 0 {
		t.Errorf("task pool not drained: %d live", task.pool.Live())
	}
}

func TestFreemain_UnknownStorageAbends(t *testing.T) {
	t.Parallel()

	bogus := field.Alnum(make([]byte, 8))
	reg := program.NewRegistry()
	reg.Register("FREEX", func(api program.API, commArea []byte, params ...[]byte) {
		api.Exec("CICS", nil)
		api.Exec("FREEMAIN", nil)
		api.Exec("DATA", nil)
		api.Exec("DATA", bogus)
		api.Exec("END-EXEC", nil)
	})

	mon := newTestMonitor(t, reg, t.TempDir())
	_, out := runTask(t, mon, "FREEX", "")

	if !strings.Contains(out, "='A47B'") {
		t.Errorf("free of unknown storage must abend A47B: %q", out)
	}
}
