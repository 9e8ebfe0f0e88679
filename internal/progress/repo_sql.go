package progress

import (
	"context"
	"database/sql"
	"time"

	"github.com/pot-code/learnsync/internal/infrastructure/driver"
)

var progressSchema = []string{
	`CREATE TABLE IF NOT EXISTS course_progress (
    username VARCHAR(64) NOT NULL,
    course_id VARCHAR(64) NOT NULL,
    current_module INTEGER NOT NULL DEFAULT 1,
    last_updated BIGINT NOT NULL,
    PRIMARY KEY (username, course_id)
)`,
	`CREATE TABLE IF NOT EXISTS course_progress_item (
    username VARCHAR(64) NOT NULL,
    course_id VARCHAR(64) NOT NULL,
    item_id VARCHAR(128) NOT NULL,
    PRIMARY KEY (username, course_id, item_id)
)`,
}

// SQLRepository Repository on top of mysql, postgres or sqlite.
//
// The header row of a record is upserted first inside the merge transaction, which takes its row
// lock; item rows are then inserted with conflicts ignored, so the set union happens in the database.
// Delete removes the header first under the same lock, serializing it with merges of that key.
type SQLRepository struct {
	Conn driver.ITransactionalDB
}

var _ Repository = &SQLRepository{}

func NewSQLRepository(Conn driver.ITransactionalDB) *SQLRepository {
	return &SQLRepository{Conn}
}

// Migrate creates the progress tables if missing
func (repo *SQLRepository) Migrate(ctx context.Context) error {
	for _, stmt := range progressSchema {
		if _, err := repo.Conn.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (repo *SQLRepository) ListByUser(ctx context.Context, username string) ([]*CourseProgressRecord, error) {
	rows, err := repo.Conn.QueryContext(ctx, `
SELECT
    p.course_id, p.current_module, p.last_updated, i.item_id
FROM
    course_progress p
        LEFT JOIN
    course_progress_item i ON (i.username = p.username AND i.course_id = p.course_id)
WHERE
    p.username = $1
ORDER BY p.course_id
	`, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []*CourseProgressRecord{}
	var current *CourseProgressRecord
	for rows.Next() {
		var (
			courseID      string
			currentModule int
			lastUpdated   int64
			itemID        sql.NullString
		)
		if err := rows.Scan(&courseID, &currentModule, &lastUpdated, &itemID); err != nil {
			return nil, err
		}
		if current == nil || current.CourseID != courseID {
			current = &CourseProgressRecord{
				CourseID:       courseID,
				CompletedItems: make(ItemSet),
				CurrentModule:  currentModule,
				LastUpdated:    time.Unix(0, lastUpdated*int64(time.Millisecond)).UTC(),
			}
			result = append(result, current)
		}
		if itemID.Valid {
			current.CompletedItems.Add(itemID.String)
		}
	}
	return result, rows.Err()
}

func (repo *SQLRepository) Merge(ctx context.Context, username string, in Incoming, now time.Time) (err error) {
	tx, err := repo.Conn.BeginTx(ctx, &driver.TxOptions{
		Isolation: txIsolation(repo.Conn.Dialect()),
	})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
			return
		}
		err = tx.Commit(ctx)
	}()

	dialect := repo.Conn.Dialect()
	if _, err = tx.ExecContext(ctx, upsertHeaderQuery(dialect),
		username, in.CourseID, DefaultModule, now.UnixNano()/int64(time.Millisecond)); err != nil {
		return err
	}
	insertItem := insertItemQuery(dialect)
	for _, id := range in.CompletedItems.Slice() {
		if _, err = tx.ExecContext(ctx, insertItem, username, in.CourseID, id); err != nil {
			return err
		}
	}
	return nil
}

func (repo *SQLRepository) Delete(ctx context.Context, username, courseID string) (err error) {
	tx, err := repo.Conn.BeginTx(ctx, &driver.TxOptions{
		Isolation: txIsolation(repo.Conn.Dialect()),
	})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
			return
		}
		err = tx.Commit(ctx)
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM course_progress WHERE username = $1 AND course_id = $2`, username, courseID); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `DELETE FROM course_progress_item WHERE username = $1 AND course_id = $2`, username, courseID)
	return err
}

func (repo *SQLRepository) Ping(ctx context.Context) error {
	return repo.Conn.Ping(ctx)
}

// sqlite isolation levels other than default are rejected by the driver
func txIsolation(dialect string) sql.IsolationLevel {
	if dialect == "sqlite" {
		return sql.LevelDefault
	}
	return sql.LevelReadCommitted
}

func upsertHeaderQuery(dialect string) string {
	if dialect == "mysql" {
		return `INSERT INTO course_progress (username, course_id, current_module, last_updated)
VALUES ($1, $2, $3, $4)
ON DUPLICATE KEY UPDATE last_updated = VALUES(last_updated)`
	}
	return `INSERT INTO course_progress (username, course_id, current_module, last_updated)
VALUES ($1, $2, $3, $4)
ON CONFLICT (username, course_id) DO UPDATE SET last_updated = excluded.last_updated`
}

func insertItemQuery(dialect string) string {
	if dialect == "mysql" {
		return `INSERT IGNORE INTO course_progress_item (username, course_id, item_id) VALUES ($1, $2, $3)`
	}
	return `INSERT INTO course_progress_item (username, course_id, item_id) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`
}
