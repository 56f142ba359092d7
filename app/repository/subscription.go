package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/vibast-solutions/ms-go-accounts/app/entity"
)

type SubscriptionRepository struct {
	db *sql.DB
}

func NewSubscriptionRepository(db *sql.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// Create inserts a subscription edge. The composite unique index on
// (subscriber_id, channel_id) rejects duplicate pairs with ErrDuplicate.
func (r *SubscriptionRepository) Create(ctx context.Context, sub *entity.Subscription) error {
	query := `
		INSERT INTO subscriptions (subscriber_id, channel_id, created_at)
		VALUES (?, ?, ?)
	`
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}
	result, err := r.db.ExecContext(ctx, query, sub.SubscriberID, sub.ChannelID, sub.CreatedAt)
	if err != nil {
		return translateDuplicate(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	sub.ID = uint64(id)
	return nil
}

// DeleteByPair removes the edge and reports how many rows went away.
func (r *SubscriptionRepository) DeleteByPair(ctx context.Context, subscriberID, channelID uint64) (int64, error) {
	query := `DELETE FROM subscriptions WHERE subscriber_id = ? AND channel_id = ?`
	result, err := r.db.ExecContext(ctx, query, subscriberID, channelID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Exists is the cheap pre-check used before inserting an edge.
func (r *SubscriptionRepository) Exists(ctx context.Context, subscriberID, channelID uint64) (bool, error) {
	query := `SELECT 1 FROM subscriptions WHERE subscriber_id = ? AND channel_id = ? LIMIT 1`
	var one int
	err := r.db.QueryRowContext(ctx, query, subscriberID, channelID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
