// Package sqlxrepos implements the repositories on PostgreSQL with jmoiron/sqlx.
package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/nazorat/core/user"
)

const (
	userColumns = `id, name, COALESCE(username, '') AS username, COALESCE(email, '') AS email, is_active, roles,
		password_hash, created_at, updated_at, last_login`

	uniqueViolation = "23505"
)

// userRow scans the roles array, which user.User does not map.
type userRow struct {
	user.User
	Roles pq.StringArray `db:"roles"`
}

func (row userRow) toUser() user.User {
	usr := row.User
	usr.Roles = []string(row.Roles)
	return usr
}

type userRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	excluded := make([]int64, 0, len(excludedUsers))
	for _, usr := range excludedUsers {
		excluded = append(excluded, int64(usr.ID))
	}

	var match struct {
		Username string `db:"username"`
		Email    string `db:"email"`
	}
	err := repo.db.GetContext(ctx, &match, `
		SELECT COALESCE(username, '') AS username, COALESCE(email, '') AS email
		FROM users
		WHERE (username = NULLIF($1, '') OR email = NULLIF($2, '')) AND NOT (id = ANY($3))
		LIMIT 1`,
		username, email, pq.Int64Array(excluded),
	)
	switch {
	case err == sql.ErrNoRows:
		return nil
	case err != nil:
		return errors.Wrap(err, "checking uniqueness")
	case username != "" && match.Username == username:
		return user.ErrUsernameExists
	default:
		return user.ErrEmailExists
	}
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	roles := usr.Roles
	if roles == nil {
		roles = []string{}
	}
	err := repo.db.QueryRowxContext(ctx, `
		INSERT INTO users (name, username, email, is_active, roles, password_hash, created_at, updated_at, last_login)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		usr.Name, usr.Username, usr.Email, usr.IsActive, pq.StringArray(roles), usr.PasswordHash,
		usr.CreatedAt, usr.UpdatedAt, usr.LastLogin,
	).Scan(&usr.ID)
	if err != nil {
		return user.User{}, uniquenessError(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) GetUserByID(ctx context.Context, id int) (user.User, error) {
	return repo.get(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (repo *userRepository) GetUserByUsernameOrEmail(ctx context.Context, username string) (user.User, error) {
	return repo.get(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1 OR email = $1 LIMIT 1`, username)
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	var row userRow
	// only save set fields
	err := repo.db.GetContext(ctx, &row, `
		UPDATE users SET
			name = $2, username = NULLIF($3, ''), email = NULLIF($4, ''), is_active = $5,
			roles = COALESCE($6, roles), password_hash = COALESCE($7, password_hash),
			updated_at = $8, last_login = $9
		WHERE id = $1
		RETURNING `+userColumns,
		usr.ID, usr.Name, usr.Username, usr.Email, usr.IsActive,
		pq.StringArray(usr.Roles), usr.PasswordHash, usr.UpdatedAt, usr.LastLogin,
	)
	if err == sql.ErrNoRows {
		return user.User{}, user.ErrNotFound
	}
	if err != nil {
		return user.User{}, uniquenessError(err, "updating user")
	}
	return row.toUser(), nil
}

func (repo *userRepository) get(ctx context.Context, query string, args ...interface{}) (user.User, error) {
	var row userRow
	if err := repo.db.GetContext(ctx, &row, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "selecting user")
	}
	return row.toUser(), nil
}

// uniquenessError maps unique index violations to the user uniqueness errors.
func uniquenessError(err error, msg string) error {
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == uniqueViolation {
		switch pqErr.Constraint {
		case "users_username_key":
			return user.ErrUsernameExists
		case "users_email_key":
			return user.ErrEmailExists
		}
	}
	return errors.Wrap(err, msg)
}
