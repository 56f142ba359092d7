package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/vibast-solutions/ms-go-accounts/app/entity"
)

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `id, handle, email, full_name, avatar, cover_image, password_hash, refresh_token, created_at, updated_at`

func (r *AccountRepository) Create(ctx context.Context, account *entity.Account) error {
	query := `
		INSERT INTO accounts (handle, email, full_name, avatar, cover_image, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.ExecContext(ctx, query,
		account.Handle,
		account.Email,
		account.FullName,
		account.Avatar,
		account.CoverImage,
		account.PasswordHash,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		return translateDuplicate(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	account.ID = uint64(id)
	return nil
}

func (r *AccountRepository) FindByID(ctx context.Context, id uint64) (*entity.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *AccountRepository) FindByHandle(ctx context.Context, handle string) (*entity.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE handle = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, handle))
}

func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*entity.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, email))
}

func (r *AccountRepository) FindByHandleOrEmail(ctx context.Context, handle, email string) (*entity.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE handle = ? OR email = ?`
	return r.scanOne(r.db.QueryRowContext(ctx, query, handle, email))
}

func (r *AccountRepository) UpdateProfile(ctx context.Context, id uint64, fullName, email string) error {
	query := `UPDATE accounts SET full_name = ?, email = ?, updated_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, fullName, email, time.Now(), id)
	return translateDuplicate(err)
}

func (r *AccountRepository) UpdateAvatar(ctx context.Context, id uint64, avatarURL string) error {
	query := `UPDATE accounts SET avatar = ?, updated_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, avatarURL, time.Now(), id)
	return err
}

func (r *AccountRepository) UpdateCoverImage(ctx context.Context, id uint64, coverURL string) error {
	query := `UPDATE accounts SET cover_image = ?, updated_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, coverURL, time.Now(), id)
	return err
}

// UpdatePasswordHash touches only the password column; it never rewrites
// or re-validates unrelated fields.
func (r *AccountRepository) UpdatePasswordHash(ctx context.Context, id uint64, hash string) error {
	query := `UPDATE accounts SET password_hash = ?, updated_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, hash, time.Now(), id)
	return err
}

// SetRefreshToken overwrites the stored refresh token. Passing an
// invalid NullString clears it (logout). The write is idempotent.
func (r *AccountRepository) SetRefreshToken(ctx context.Context, id uint64, token sql.NullString) error {
	query := `UPDATE accounts SET refresh_token = ?, updated_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, token, time.Now(), id)
	return err
}

// RotateRefreshToken replaces the stored refresh token with next, but
// only if the stored value still equals presented. The conditional
// update is the single atomic step that makes a refresh token
// single-use: of two concurrent rotations with the same value, at most
// one can see rowsAffected == 1.
func (r *AccountRepository) RotateRefreshToken(ctx context.Context, id uint64, presented, next string) (bool, error) {
	query := `UPDATE accounts SET refresh_token = ?, updated_at = ? WHERE id = ? AND refresh_token = ?`
	result, err := r.db.ExecContext(ctx, query, next, time.Now(), id, presented)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (r *AccountRepository) scanOne(row *sql.Row) (*entity.Account, error) {
	account := &entity.Account{}
	err := row.Scan(
		&account.ID,
		&account.Handle,
		&account.Email,
		&account.FullName,
		&account.Avatar,
		&account.CoverImage,
		&account.PasswordHash,
		&account.RefreshToken,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return account, nil
}
