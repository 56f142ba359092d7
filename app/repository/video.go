package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/vibast-solutions/ms-go-accounts/app/entity"
)

type VideoRepository struct {
	db *sql.DB
}

func NewVideoRepository(db *sql.DB) *VideoRepository {
	return &VideoRepository{db: db}
}

const videoColumns = `id, video_file, thumbnail, title, description, duration, views, is_published, owner_id, created_at, updated_at`

func (r *VideoRepository) FindByID(ctx context.Context, id uint64) (*entity.Video, error) {
	query := `SELECT ` + videoColumns + ` FROM videos WHERE id = ?`
	video := &entity.Video{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&video.ID,
		&video.VideoFile,
		&video.Thumbnail,
		&video.Title,
		&video.Description,
		&video.Duration,
		&video.Views,
		&video.IsPublished,
		&video.OwnerID,
		&video.CreatedAt,
		&video.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return video, nil
}

type WatchHistoryRepository struct {
	db *sql.DB
}

func NewWatchHistoryRepository(db *sql.DB) *WatchHistoryRepository {
	return &WatchHistoryRepository{db: db}
}

// Append records a watched video at the next position for the account.
// The position assignment and the insert run as a single statement, so
// concurrent appends cannot claim the same slot.
func (r *WatchHistoryRepository) Append(ctx context.Context, accountID, videoID uint64) error {
	query := `
		INSERT INTO watch_history (account_id, video_id, position, created_at)
		SELECT ?, ?, COALESCE(MAX(position) + 1, 0), ?
		FROM watch_history WHERE account_id = ?
	`
	_, err := r.db.ExecContext(ctx, query, accountID, videoID, time.Now(), accountID)
	return err
}

// ListVideoIDs returns the watched video ids in insertion order.
func (r *WatchHistoryRepository) ListVideoIDs(ctx context.Context, accountID uint64) ([]uint64, error) {
	query := `SELECT video_id FROM watch_history WHERE account_id = ? ORDER BY position`
	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]uint64, 0)
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
