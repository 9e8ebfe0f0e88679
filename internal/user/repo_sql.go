package user

import (
	"context"
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/pot-code/learnsync/internal/infrastructure/driver"
)

const learnerSchema = `CREATE TABLE IF NOT EXISTS learner (
    id VARCHAR(64) NOT NULL PRIMARY KEY,
    username VARCHAR(64) NOT NULL UNIQUE,
    created_at BIGINT NOT NULL
)`

type UserSQL struct {
	Conn driver.ITransactionalDB
}

var _ UserRepository = &UserSQL{}

func NewUserRepository(Conn driver.ITransactionalDB) *UserSQL {
	return &UserSQL{Conn}
}

// Migrate creates the learner table if missing
func (repo *UserSQL) Migrate(ctx context.Context) error {
	_, err := repo.Conn.ExecContext(ctx, learnerSchema)
	return err
}

// FindByUsername returns nil when there is no such user
func (repo *UserSQL) FindByUsername(ctx context.Context, username string) (*UserModel, error) {
	row, err := repo.Conn.QueryContext(ctx, `SELECT id, username, created_at FROM learner WHERE username = $1`, username)
	if err != nil {
		return nil, err
	}
	defer row.Close()

	if row.Next() {
		user := new(UserModel)
		if err := row.Scan(&user.ID, &user.Username, &user.CreatedAt); err != nil {
			return nil, err
		}
		return user, nil
	}
	return nil, row.Err()
}

func (repo *UserSQL) SaveUser(ctx context.Context, post *UserModel) error {
	_, err := repo.Conn.ExecContext(ctx, `INSERT INTO learner (id, username, created_at) VALUES ($1, $2, $3)`,
		post.ID, post.Username, post.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicatedUser
	}
	return err
}

func (repo *UserSQL) Ping(ctx context.Context) error {
	return repo.Conn.Ping(ctx)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
