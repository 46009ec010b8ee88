// Package session drives one client connection: it reads transaction
// requests and pure SQL lines, and runs each requested transaction as a task
// in either standalone or in-DB-transaction mode.
//
// Request grammar, one request per line:
//
//	sql <statement>              forward a pure SQL line to the bridge
//	<program> [COMMAREA] [PARM n]  run a transaction program as a task
//
// A client that issues `sql BEGIN` claims a database session for the
// connection; transactions requested before the matching `sql COMMIT` or
// `sql ROLLBACK` run inside that unit of work (in-DB mode). Without an open
// unit of work each task claims and commits its own session (standalone
// mode).
package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/xandr001/qwics/internal/exec"
	"github.com/xandr001/qwics/internal/logger"
	"github.com/xandr001/qwics/internal/metrics"
	"github.com/xandr001/qwics/internal/protocol"
	"github.com/xandr001/qwics/internal/sqlbridge"
)

// Driver serves client sessions against one monitor.
type Driver struct {
	mon *exec.Monitor
	log *slog.Logger
}

// NewDriver creates a session driver.
func NewDriver(mon *exec.Monitor) *Driver {
	return &Driver{mon: mon, log: logger.With("component", "session")}
}

// Serve runs the per-connection loop until the client disconnects. The
// caller owns conn's lifetime.
func (d *Driver) Serve(ctx context.Context, conn io.ReadWriter, remoteAddr string) {
	sid := uuid.NewString()
	log := d.log.With(logger.KeySession, sid, logger.KeyClientAddr, remoteAddr)
	log.Info("session connected")
	metrics.Sessions.Inc()
	defer metrics.Sessions.Dec()

	ch := protocol.NewChannel(conn)
	sess := d.mon.DB.NewSession()
	defer func() {
		// A unit of work left open by a vanished client rolls back.
		if sess.Claimed() {
			if err := sess.Return(ctx, false); err != nil {
				log.Warn("failed to roll back abandoned unit of work", "error", err)
			}
		}
		log.Info("session disconnected")
	}()

	for {
		line, err := ch.ReadLine()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Warn("session read failed", "error", err)
			}
			return
		}
		if line == "" {
			continue
		}

		if sql, ok := strings.CutPrefix(line, "sql "); ok {
			if err := sqlbridge.ExecSQL(ctx, sess, sql, ch, true, false); err != nil {
				log.Warn("sql request failed", "error", err)
			}
			continue
		}

		name, setComm, parCount := parseRequest(line)
		if name == "" {
			log.Warn("malformed request", "line", line)
			continue
		}

		var taskSess *sqlbridge.Session
		if sess.Claimed() {
			sess.InDB = true
			taskSess = sess
		}
		task := d.mon.NewTask(ctx, ch, taskSess)
		log.Info("dispatching transaction",
			logger.KeyTransaction, name,
			logger.KeyTask, task.ID,
			"in_db", taskSess != nil)
		if err := task.Run(name, setComm, parCount); err != nil {
			log.Warn("transaction failed", logger.KeyTransaction, name, "error", err)
		}
		sess.InDB = false
	}
}

// parseRequest splits a transaction request line into the program name, the
// commarea preload flag, and the positional parameter count.
func parseRequest(line string) (name string, setComm bool, parCount int) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return "", false, 0
	}
	name = parts[0]
	for i := 1; i < len(parts); i++ {
		switch parts[i] {
		case "COMMAREA":
			setComm = true
		case "PARM":
			if i+1 < len(parts) {
				parCount, _ = strconv.Atoi(parts[i+1])
				i++
			}
		}
	}
	return name, setComm, parCount
}
