package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/samber/oops"

	"github.com/sessionauth/sessionauth-go/internal/model"
)

// mysqlDuplicateEntry is ER_DUP_ENTRY, raised when a UNIQUE key is violated.
const mysqlDuplicateEntry = 1062

const selectUserColumns = `SELECT id, username, password_hash, created_at, updated_at FROM users`

// UserRepository handles user persistence on MySQL.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user and returns the stored row, including the
// server-assigned id and timestamps. The row is re-read inside the insert's
// transaction. A username collision surfaces as ErrDuplicateUsername from the
// UNIQUE key, never from a pre-check.
func (r *UserRepository) Create(ctx context.Context, username, passwordHash string) (*model.User, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, oops.Code("USER_CREATE_FAILED").
			With("operation", "begin transaction").
			Wrap(err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO users (username, password_hash) VALUES (?, ?)`,
		username, passwordHash,
	)
	if err != nil {
		if isDuplicateEntryError(err) {
			return nil, oops.Code("USER_DUPLICATE_USERNAME").
				With("username", username).
				Wrap(ErrDuplicateUsername)
		}
		return nil, oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("username", username).
			Wrap(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, oops.Code("USER_CREATE_FAILED").
			With("operation", "read insert id").
			Wrap(err)
	}

	user, err := scanUser(tx.QueryRowContext(ctx, selectUserColumns+` WHERE id = ?`, id))
	if err != nil {
		return nil, oops.Code("USER_CREATE_FAILED").
			With("operation", "read back user").
			With("id", id).
			Wrap(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, oops.Code("USER_CREATE_FAILED").
			With("operation", "commit").
			Wrap(err)
	}

	return user, nil
}

// GetByUsername retrieves a user by exact username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, selectUserColumns+` WHERE username = ?`, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, oops.Code("USER_NOT_FOUND").
				With("username", username).
				Wrap(ErrUserNotFound)
		}
		return nil, oops.Code("USER_GET_BY_USERNAME_FAILED").
			With("username", username).
			Wrap(err)
	}

	return user, nil
}

// GetByID retrieves a user by their ID.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, selectUserColumns+` WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, oops.Code("USER_NOT_FOUND").
				With("id", id).
				Wrap(ErrUserNotFound)
		}
		return nil, oops.Code("USER_GET_BY_ID_FAILED").
			With("id", id).
			Wrap(err)
	}

	return user, nil
}

func scanUser(row *sql.Row) (*model.User, error) {
	user := &model.User{}
	err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// isDuplicateEntryError reports whether err is a MySQL duplicate entry error (code 1062).
func isDuplicateEntryError(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry
}
