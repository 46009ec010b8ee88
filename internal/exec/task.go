// Package exec implements the transaction execution engine: the per-task
// runtime that invokes program artifacts, interprets the embedded-command
// stream they emit, marshals typed values between artifact storage and the
// client channel, and coordinates locking, memory, SQL and abnormal
// termination with the monitor's subsystems.
package exec

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/xandr001/qwics/internal/logger"
	"github.com/xandr001/qwics/internal/metrics"
	"github.com/xandr001/qwics/internal/program"
	"github.com/xandr001/qwics/internal/protocol"
	"github.com/xandr001/qwics/internal/sqlbridge"
	"github.com/xandr001/qwics/pkg/enq"
	"github.com/xandr001/qwics/pkg/field"
	"github.com/xandr001/qwics/pkg/mempool"
	"github.com/xandr001/qwics/pkg/serializer"
)

// Fixed per-task storage bounds.
const (
	CommAreaSize = 32768    // communication area bytes
	LinkAreaMax  = 16 << 20 // link area scratch bytes
	linkStackMax = 100      // nested LINK depth
	chnBufMax    = 256      // transient channel buffers
	condMax      = 100      // condition handler table entries
	eibSize      = 150      // exec-interface block bytes
	twaSize      = 32768    // transaction work area bytes
	tuaSize      = 256      // task user area bytes
	cwaSize      = 4096     // common work area bytes (shared arena)
)

// runState tracks task progress.
type runState int

const (
	stateRunning runState = 0
	stateEnded   runState = 2
	stateFault   runState = 3
)

// Monitor bundles the shared subsystems every task coordinates with.
type Monitor struct {
	Loader     program.Loader
	Serializer *serializer.Registry
	Enq        *enq.Manager
	Arena      *mempool.Arena
	Shared     *mempool.SharedPool
	DB         *sqlbridge.Pool
	JSDir      string
	Dates      field.DateFormats
	PoolSize   int
	Log        *slog.Logger

	cwa     []byte
	taskSeq atomic.Int64
}

// NewMonitor wires the shared subsystems. The common work area is carved out
// of the shared arena once at start.
func NewMonitor(loader program.Loader, db *sqlbridge.Pool, arenaSize, poolSize int, jsDir string, dates field.DateFormats) (*Monitor, error) {
	arena := mempool.NewArena(arenaSize)
	cwa, _, err := arena.Alloc(cwaSize)
	if err != nil {
		return nil, fmt.Errorf("failed to carve common work area: %w", err)
	}
	return &Monitor{
		Loader:     loader,
		Serializer: serializer.New(0),
		Enq:        enq.NewManager(),
		Arena:      arena,
		Shared:     mempool.NewSharedPool(arena, poolSize),
		DB:         db,
		JSDir:      jsDir,
		Dates:      dates,
		PoolSize:   poolSize,
		Log:        logger.With("component", "exec"),
		cwa:        cwa,
	}, nil
}

// CWA returns the common work area.
func (m *Monitor) CWA() []byte {
	return m.cwa
}

// Task is the per-task runtime context. It is owned by exactly one goroutine
// for its whole life; only the monitor subsystems it calls into synchronize.
type Task struct {
	ID  int64
	mon *Monitor
	ch  *protocol.Channel
	log *slog.Logger
	ctx context.Context

	commArea    [CommAreaSize]byte
	commAreaPtr int
	linkArea    *linkArea
	lastTop     []byte
	linkStack   []string
	callStack   *program.CallStack
	params      [][]byte

	eibOwn [eibSize]byte
	eib    []byte
	twa    [twaSize]byte
	tua    [tuaSize]byte

	runState runState
	areaMode int // 0 linkage, 1 commarea

	pool    *mempool.TaskPool
	locks   *enq.TaskLocks
	chnBufs [][]byte

	condHandlers [condMax]func()
	sqlca        *field.Field
	db           *sqlbridge.Session

	cmd        command
	respFields [2]*field.Field
	respState  int // 0 none, 1 RESP, 2 RESP+RESP2, 3 NOHANDLE
	currentMap string
}

// NewTask builds the runtime for one task over the client channel. A nil
// session means standalone mode: the task claims its own database session at
// run time and commits it at task end. A provided session means in-DB mode:
// the surrounding dialogue owns it and the task leaves it untouched.
func (m *Monitor) NewTask(ctx context.Context, ch *protocol.Channel, db *sqlbridge.Session) *Task {
	id := m.taskSeq.Add(1)
	t := &Task{
		ID:        id,
		mon:       m,
		ch:        ch,
		ctx:       ctx,
		log:       m.Log.With(logger.KeyTask, id),
		linkArea:  newLinkArea(LinkAreaMax),
		callStack: program.NewCallStack(m.Loader),
		pool:      mempool.NewTaskPool(m.PoolSize),
		locks:     enq.NewTaskLocks(),
		db:        db,
	}
	t.eib = t.eibOwn[:]
	t.cmd.reset()
	return t
}

// atTopLevel reports whether the task is at link depth zero with no dynamic
// calls cached: the point where first EIB accesses trigger the client
// dialogue.
func (t *Task) atTopLevel() bool {
	return len(t.linkStack) == 0 && t.callStack.Depth() == 0
}

// Run executes the named program as this task, with the optional commarea
// preload dialogue and positional parameter bank, and performs task-end
// cleanup.
func (t *Task) Run(name string, setCommArea bool, parCount int) error {
	metrics.TasksStarted.Inc()
	defer metrics.TasksEnded.Inc()

	if setCommArea {
		if err := t.ch.WriteLine("COMMAREA"); err != nil {
			return err
		}
		if err := t.ch.ReadRaw(t.commArea[:]); err != nil {
			return err
		}
	}

	if parCount > 0 && parCount <= program.MaxParams {
		for i := 0; i < parCount; i++ {
			n, err := t.ch.ReadInt()
			if err != nil {
				return err
			}
			buf := t.linkArea.alloc(n)
			t.lastTop = buf
			t.params = append(t.params, buf)
		}
	}

	standalone := t.db == nil
	if standalone && t.mon.DB != nil {
		sess, err := t.mon.DB.Checkout(t.ctx)
		if err != nil {
			return fmt.Errorf("task %d: %w", t.ID, err)
		}
		t.db = sess
	}
	defer t.cleanup(standalone)

	return t.dispatch(name)
}

// cleanup releases everything a task still holds, in the documented order:
// task-scope locks, call stack handles, task memory pool, link area, channel
// buffers, then the database session (committed in standalone mode, left
// untouched in in-DB mode).
func (t *Task) cleanup(standalone bool) {
	t.mon.Enq.ReleaseScope(enq.Task, t.locks)
	t.callStack.Release()
	t.pool.Clear()
	t.linkArea = newLinkArea(LinkAreaMax)
	t.chnBufs = nil
	if standalone && t.db != nil {
		if err := t.db.Return(t.ctx, true); err != nil {
			t.log.Warn("failed to return database session", "error", err)
		}
		t.db = nil
	}
}

// nextChnBuf allocates one transient channel buffer, nil when the per-task
// bound is reached.
func (t *Task) nextChnBuf(size int) []byte {
	if len(t.chnBufs) >= chnBufMax {
		return nil
	}
	buf := make([]byte, size)
	t.chnBufs = append(t.chnBufs, buf)
	return buf
}

// Resolve implements dynamic CALL resolution for the running artifact:
// pseudo-symbols first, then the call-stack cache over the loader. A missing
// entry abends the task with AEI0.
func (t *Task) Resolve(name string) program.Entry {
	if e := pseudoSymbol(name); e != nil {
		return e
	}
	entry, err := t.callStack.Resolve(name)
	if err != nil {
		t.log.Error("dynamic call resolution failed", logger.KeyProgram, name, "error", err)
		t.abend(27, 1, false)
	}
	return entry
}

// OnCondition registers a handler for the given response code. An abend with
// that code transfers control to the handler instead of ending the task.
func (t *Task) OnCondition(resp int, handler func()) {
	if resp >= 0 && resp < condMax {
		t.condHandlers[resp] = handler
	}
}

var _ program.API = (*Task)(nil)
