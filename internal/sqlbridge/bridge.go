package sqlbridge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xandr001/qwics/internal/protocol"
	"github.com/xandr001/qwics/pkg/field"
)

// SQLCA state offsets inside the artifact-registered status area: a signed
// code in the first four bytes, a five-character state code at 119.
const (
	sqlcaStateOff = 119
	sqlcaStateLen = 5
)

// SetStatus writes a code and state into the status area. A nil area is
// allowed; artifacts that never register one run without SQL status.
func SetStatus(sqlca *field.Field, code int32, state string) {
	if sqlca == nil || len(sqlca.Data) < 4 {
		return
	}
	field.PutBinaryNative(int64(code), sqlca.Data[0:4])
	if len(sqlca.Data) >= sqlcaStateOff+sqlcaStateLen {
		copy(sqlca.Data[sqlcaStateOff:sqlcaStateOff+sqlcaStateLen], state)
	}
}

// StatusCode reads the signed code back out of the status area.
func StatusCode(sqlca *field.Field) int32 {
	if sqlca == nil || len(sqlca.Data) < 4 {
		return 0
	}
	return int32(field.GetBinaryNative(sqlca.Data[0:4]))
}

// ProcessCmd handles one completed EXEC SQL accumulation from the command
// interpreter.
//
// Without output receivers the statement executes as a command; with
// receivers it executes as a query and the first row's columns are written
// into the receivers in order, converted to each receiver's kind. Zero rows
// set code 100, state 02000.
func ProcessCmd(ctx context.Context, s *Session, cmd string, outputs []*field.Field, sqlca *field.Field) {
	pos := strings.Index(cmd, "EXEC SQL")
	if pos < 0 {
		return
	}
	if s == nil {
		SetStatus(sqlca, -1, "00000")
		return
	}
	sql := strings.TrimSpace(cmd[pos+len("EXEC SQL"):])
	SetStatus(sqlca, 0, "00000")

	if len(outputs) == 0 {
		if _, err := s.Exec(ctx, sql); err != nil {
			SetStatus(sqlca, -1, "00000")
		}
		return
	}

	rows, err := s.Query(ctx, sql)
	if err != nil {
		SetStatus(sqlca, -1, "00000")
		return
	}
	defer rows.Close()

	if !rows.Next() {
		SetStatus(sqlca, 100, "02000")
		return
	}
	values, err := rows.Values()
	if err != nil {
		SetStatus(sqlca, -1, "00000")
		return
	}
	for i, out := range outputs {
		if i >= len(values) {
			break
		}
		_ = field.SetFromText(out, textOf(values[i]))
	}
}

// ExecSQL handles one pure SQL line of the client dialogue, the way the
// session driver and the SYNCPOINT sub-dialogue forward them.
//
// BEGIN claims a pool session (standalone) or opens a logical transaction on
// the claimed one (sync / in-DB). COMMIT and ROLLBACK finish the unit of
// work and report OK or ERROR. SELECT and FETCH statements stream the result
// set: OK, column count, column names, row count, then every value on its
// own line. Anything else executes and reports OK:<tag> or ERROR.
func ExecSQL(ctx context.Context, s *Session, sql string, ch *protocol.Channel, sendRes, sync bool) error {
	if s == nil {
		return ErrNoSession
	}
	switch {
	case strings.Contains(sql, "BEGIN"):
		if sync || s.InDB {
			return s.Begin(ctx)
		}
		return s.Reclaim(ctx)

	case strings.Contains(sql, "COMMIT"):
		return endUOW(ctx, s, ch, sendRes, sync, true)

	case strings.Contains(sql, "ROLLBACK"):
		return endUOW(ctx, s, ch, sendRes, sync, false)
	}

	upper := strings.ToUpper(sql)
	if (strings.Contains(upper, "SELECT") || strings.Contains(upper, "FETCH")) &&
		!strings.Contains(upper, "DECLARE") {
		return streamQuery(ctx, s, sql, ch)
	}

	tag, err := s.Exec(ctx, sql)
	if err != nil {
		s.pool.logger.Warn("sql command failed", "error", err)
		return ch.WriteLine("ERROR")
	}
	return ch.WriteLine("OK:" + tag)
}

// endUOW finishes the current unit of work and reports the outcome.
func endUOW(ctx context.Context, s *Session, ch *protocol.Channel, sendRes, sync, commit bool) error {
	var err error
	if sync || s.InDB {
		err = s.Sync(ctx, commit)
	} else {
		err = s.Return(ctx, commit)
	}
	if !sendRes {
		return err
	}
	if err != nil {
		return ch.WriteLine("ERROR")
	}
	return ch.WriteLine("OK")
}

// streamQuery runs a row-returning statement and streams the full result set
// over the channel.
func streamQuery(ctx context.Context, s *Session, sql string, ch *protocol.Channel) error {
	rows, err := s.Query(ctx, sql)
	if err != nil {
		s.pool.logger.Warn("sql query failed", "error", err)
		return ch.WriteLine("ERROR")
	}
	defer rows.Close()

	descs := rows.FieldDescriptions()
	if err := ch.WriteLine("OK"); err != nil {
		return err
	}
	if err := ch.WriteLine(fmt.Sprintf("%d", len(descs))); err != nil {
		return err
	}
	for _, d := range descs {
		if err := ch.WriteLine(d.Name); err != nil {
			return err
		}
	}

	var all [][]string
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return ch.WriteLine("ERROR")
		}
		row := make([]string, len(values))
		for i, v := range values {
			row[i] = textOf(v)
		}
		all = append(all, row)
	}
	if err := ch.WriteLine(fmt.Sprintf("%d", len(all))); err != nil {
		return err
	}
	for _, row := range all {
		for _, v := range row {
			if err := ch.WriteLine(v); err != nil {
				return err
			}
		}
	}
	return nil
}

// textOf renders a driver value the way the protocol and the typed-receiver
// conversions expect it: plain decimal for numbers, raw bytes for text.
func textOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case time.Time:
		return t.Format("2006-01-02 15:04:05.000")
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}
