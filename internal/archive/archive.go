// Package archive persists finished answer records to the object
// store as Parquet, one file per request. A downstream audit concern:
// the repair loop never writes here, and archival failures never fail
// the request.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/sqlsage/sqlsage/internal/repair"
	"github.com/sqlsage/sqlsage/internal/storage"
)

// Record is one completed ask request with its full attempt log.
type Record struct {
	RequestID  string
	Question   string
	State      string
	FinalSQL   string
	Attempts   []repair.Attempt
	FinishedAt time.Time
}

type parquetAttempt struct {
	RequestID        string `parquet:"request_id"`
	Question         string `parquet:"question"`
	State            string `parquet:"state"`
	FinalSQL         string `parquet:"final_sql"`
	AttemptNumber    int32  `parquet:"attempt_number"`
	SQL              string `parquet:"sql"`
	ErrorDetail      string `parquet:"error_detail"`
	RowCount         int64  `parquet:"row_count"`
	FinishedAtUnixMs int64  `parquet:"finished_at_unix_ms"`
}

// EncodeRecord flattens the attempt log into one Parquet row group,
// one row per attempt.
func EncodeRecord(record Record) ([]byte, error) {
	if len(record.Attempts) == 0 {
		return nil, fmt.Errorf("record has no attempts")
	}

	rows := make([]parquetAttempt, 0, len(record.Attempts))
	for _, attempt := range record.Attempts {
		var rowCount int64
		if attempt.Result != nil {
			rowCount = int64(len(attempt.Result.Rows))
		}
		rows = append(rows, parquetAttempt{
			RequestID:        record.RequestID,
			Question:         record.Question,
			State:            record.State,
			FinalSQL:         record.FinalSQL,
			AttemptNumber:    int32(attempt.Number),
			SQL:              attempt.SQL,
			ErrorDetail:      attempt.ErrorDetail,
			RowCount:         rowCount,
			FinishedAtUnixMs: record.FinishedAt.UnixMilli(),
		})
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[parquetAttempt](buf)
	if _, err := writer.Write(rows); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

// ObjectKey partitions archives by day.
func ObjectKey(record Record) string {
	return fmt.Sprintf("answers/%s/%s.parquet", record.FinishedAt.UTC().Format("2006/01/02"), record.RequestID)
}

type Archiver struct {
	Store  storage.ObjectStore
	Logger *slog.Logger
}

// Archive encodes and uploads one record. Callers treat errors as
// log-only.
func (a *Archiver) Archive(ctx context.Context, record Record) error {
	if a == nil || a.Store == nil {
		return nil
	}
	if record.FinishedAt.IsZero() {
		record.FinishedAt = time.Now().UTC()
	}

	data, err := EncodeRecord(record)
	if err != nil {
		return fmt.Errorf("encode record %q: %w", record.RequestID, err)
	}

	key := ObjectKey(record)
	if _, err := a.Store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), storage.PutOptions{ContentType: "application/vnd.apache.parquet"}); err != nil {
		return fmt.Errorf("archive record %q: %w", record.RequestID, err)
	}
	if a.Logger != nil {
		a.Logger.DebugContext(ctx, "archived answer record",
			slog.String("request_id", record.RequestID),
			slog.String("key", key),
			slog.Int("attempts", len(record.Attempts)),
		)
	}
	return nil
}
