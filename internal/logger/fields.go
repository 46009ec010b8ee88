package logger

// Standard field keys for structured logging. Use these consistently so task
// executions can be correlated across the session driver, the interpreter and
// the SQL bridge.
const (
	KeySession     = "session_id"  // client session correlation id
	KeyTask        = "task_id"     // monitor-assigned task sequence number
	KeyTransaction = "transaction" // transaction / program name being run
	KeyProgram     = "program"     // artifact name for LINK/XCTL/CALL
	KeyVerb        = "verb"        // embedded command verb
	KeyResource    = "resource"    // enqueue resource key
	KeyResp        = "resp"        // command response code
	KeyResp2       = "resp2"       // secondary response code
	KeyAbendCode   = "abcode"      // four-character abend code
	KeyClientAddr  = "client_addr" // remote address of the session
)
