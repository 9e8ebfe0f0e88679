package syncclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pot-code/learnsync/internal/infrastructure/driver"
)

const localSchema = `CREATE TABLE IF NOT EXISTS local_progress (
    profile TEXT NOT NULL,
    course_id TEXT NOT NULL,
    record TEXT NOT NULL,
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (profile, course_id)
)`

// SQLiteStorage keeps each local record as a JSON blob in a sqlite file
type SQLiteStorage struct {
	conn driver.ITransactionalDB
}

var _ Storage = &SQLiteStorage{}

// OpenSQLiteStorage opens or creates the database at path
func OpenSQLiteStorage(ctx context.Context, path string) (*SQLiteStorage, error) {
	conn, err := driver.NewSQLiteConn(path, &driver.DBConfig{Driver: "sqlite", Schema: path})
	if err != nil {
		return nil, err
	}
	if _, err := conn.ExecContext(ctx, localSchema); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("create local schema: %w", err)
	}
	return &SQLiteStorage{conn}, nil
}

func (ss *SQLiteStorage) Load(ctx context.Context, profile string) (map[string]*LocalRecord, error) {
	rows, err := ss.conn.QueryContext(ctx, `SELECT course_id, record FROM local_progress WHERE profile = $1`, profile)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]*LocalRecord)
	for rows.Next() {
		var courseID, blob string
		if err := rows.Scan(&courseID, &blob); err != nil {
			return nil, err
		}
		record := new(LocalRecord)
		if err := json.Unmarshal([]byte(blob), record); err != nil {
			return nil, fmt.Errorf("decode local record %s: %w", courseID, err)
		}
		if record.CompletedItems == nil {
			record.CompletedItems = make(map[string]struct{})
		}
		record.CourseID = courseID
		out[courseID] = record
	}
	return out, rows.Err()
}

func (ss *SQLiteStorage) Save(ctx context.Context, profile string, record *LocalRecord) error {
	blob, err := json.Marshal(record)
	if err != nil {
		return err
	}
	_, err = ss.conn.ExecContext(ctx, `INSERT INTO local_progress (profile, course_id, record, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (profile, course_id) DO UPDATE SET record = excluded.record, updated_at = excluded.updated_at`,
		profile, record.CourseID, string(blob), time.Now().UnixNano()/int64(time.Millisecond))
	return err
}

func (ss *SQLiteStorage) Delete(ctx context.Context, profile, courseID string) error {
	_, err := ss.conn.ExecContext(ctx, `DELETE FROM local_progress WHERE profile = $1 AND course_id = $2`, profile, courseID)
	return err
}

func (ss *SQLiteStorage) Close() error {
	return ss.conn.Close(context.Background())
}
