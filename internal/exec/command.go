package exec

import "github.com/xandr001/qwics/pkg/field"

// verb tags one embedded command across its multi-token assembly.
type verb int

const (
	verbNone verb = iota
	verbSend
	verbReceive
	verbXctl
	verbRetrieve
	verbLink
	verbGetmain
	verbFreemain
	verbAddress
	verbPut
	verbGet
	verbEnq
	verbDeq
	verbSyncpoint
	verbWriteQ
	verbReadQ
	verbDeleteQ
	verbAbend
	verbInquiry // ASKTIME, INQUIRE, ASSIGN, FORMATTIME
	verbStart   // START, CANCEL
	verbReturn
	verbSoapFault
	verbInvoke
	verbQuery
)

// verbTags maps verb-opening keywords to their tag. GETMAIN64 and FREEMAIN64
// share the 31/64-bit-agnostic handling of their base verbs.
var verbTags = map[string]verb{
	"SEND":       verbSend,
	"RECEIVE":    verbReceive,
	"XCTL":       verbXctl,
	"RETRIEVE":   verbRetrieve,
	"LINK":       verbLink,
	"GETMAIN":    verbGetmain,
	"GETMAIN64":  verbGetmain,
	"FREEMAIN":   verbFreemain,
	"FREEMAIN64": verbFreemain,
	"ADDRESS":    verbAddress,
	"PUT":        verbPut,
	"GET":        verbGet,
	"ENQ":        verbEnq,
	"DEQ":        verbDeq,
	"SYNCPOINT":  verbSyncpoint,
	"WRITEQ":     verbWriteQ,
	"READQ":      verbReadQ,
	"DELETEQ":    verbDeleteQ,
	"ABEND":      verbAbend,
	"ASKTIME":    verbInquiry,
	"INQUIRE":    verbInquiry,
	"ASSIGN":     verbInquiry,
	"FORMATTIME": verbInquiry,
	"START":      verbStart,
	"CANCEL":     verbStart,
	"RETURN":     verbReturn,
	"SOAPFAULT":  verbSoapFault,
	"INVOKE":     verbInvoke,
	"QUERY":      verbQuery,
}

// slot names the argument the next value token is expected to fill.
type slot int

const (
	slotNone slot = iota
	slotLength
	slotInto
	slotSet
	slotFrom
	slotInitImg
	slotProgram
	slotCommArea
	slotResource
	slotItem
	slotQueue
	slotReqID
	slotData
	slotDataPointer
	slotAddrCWA
	slotAddrTWA
	slotAddrTUA
	slotAddrTUALen
	slotAddrCommArea
	slotAddrEIB
	slotSep  // DATESEP/TIMESEP argument, consumed without a client read
	slotSkip // recognized but ignored argument
	slotRead
	slotUpdate
	slotControl
	slotAlter
	slotDone
)

// command holds the per-task assembly state of one embedded command: the
// active verb, the expected-argument slot, and the captured parameter
// values. SQL statements use the sql accumulator and the INTO-receiver list
// instead.
type command struct {
	verb   verb
	active bool
	expect slot

	length    int
	dataField *field.Field // INTO / FROM target
	setField  *field.Field // SET pointer target
	itemField *field.Field // ITEM receiver
	lenField  *field.Field // FLENGTH receiver for GET
	commField *field.Field // LINK COMMAREA
	resField  *field.Field // ENQ/DEQ RESOURCE field
	freeBuf   []byte       // FREEMAIN DATAPOINTER target

	queryFields [4]*field.Field // QUERY READ/UPDATE/CONTROL/ALTER receivers

	initByte  *byte
	shared    bool
	nosuspend bool
	scopeTask bool
	nodata    bool
	rollback  bool

	resource    string
	programName string

	sql     string
	sqlMode int // 0 plain, 1 selecting, >=2 capturing INTO receivers
	outputs []*field.Field
}

// reset returns the assembly state to idle.
func (c *command) reset() {
	*c = command{length: -1}
}
