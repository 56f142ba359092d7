package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/vibast-solutions/ms-go-accounts/app/aggregate"
)

// Collection adapters expose the accounts, subscriptions and videos
// tables as document collections for the aggregation pipelines. Filters
// are pushed down as WHERE clauses; document field names follow the API
// vocabulary (camelCase), not the column names.

// AccountCollection serves account documents. Each document carries the
// account's ordered watchHistory id list; the password hash and refresh
// token columns are never read into a document.
type AccountCollection struct {
	db    *sql.DB
	watch *WatchHistoryRepository
}

func NewAccountCollection(db *sql.DB, watch *WatchHistoryRepository) *AccountCollection {
	return &AccountCollection{db: db, watch: watch}
}

var accountFieldColumns = map[string]string{
	"id":     "id",
	"handle": "handle",
	"email":  "email",
}

func (c *AccountCollection) Find(ctx context.Context, filter aggregate.Filter) ([]aggregate.Document, error) {
	where, args, err := buildWhere(filter, accountFieldColumns)
	if err != nil {
		return nil, err
	}

	query := `SELECT id, handle, email, full_name, avatar, cover_image, created_at FROM accounts` + where
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := make([]aggregate.Document, 0)
	for rows.Next() {
		var (
			id                      uint64
			handle, email, fullName string
			avatar                  string
			coverImage              sql.NullString
			createdAt               sql.NullTime
		)
		if err := rows.Scan(&id, &handle, &email, &fullName, &avatar, &coverImage, &createdAt); err != nil {
			return nil, err
		}
		doc := aggregate.Document{
			"id":         id,
			"handle":     handle,
			"email":      email,
			"fullName":   fullName,
			"avatar":     avatar,
			"coverImage": coverImage.String,
			"createdAt":  createdAt.Time,
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, doc := range docs {
		ids, err := c.watch.ListVideoIDs(ctx, doc["id"].(uint64))
		if err != nil {
			return nil, err
		}
		doc["watchHistory"] = ids
	}
	return docs, nil
}

// SubscriptionCollection serves subscription-edge documents.
type SubscriptionCollection struct {
	db *sql.DB
}

func NewSubscriptionCollection(db *sql.DB) *SubscriptionCollection {
	return &SubscriptionCollection{db: db}
}

var subscriptionFieldColumns = map[string]string{
	"id":         "id",
	"subscriber": "subscriber_id",
	"channel":    "channel_id",
}

func (c *SubscriptionCollection) Find(ctx context.Context, filter aggregate.Filter) ([]aggregate.Document, error) {
	where, args, err := buildWhere(filter, subscriptionFieldColumns)
	if err != nil {
		return nil, err
	}

	query := `SELECT id, subscriber_id, channel_id, created_at FROM subscriptions` + where
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := make([]aggregate.Document, 0)
	for rows.Next() {
		var (
			id, subscriberID, channelID uint64
			createdAt                   sql.NullTime
		)
		if err := rows.Scan(&id, &subscriberID, &channelID, &createdAt); err != nil {
			return nil, err
		}
		docs = append(docs, aggregate.Document{
			"id":         id,
			"subscriber": subscriberID,
			"channel":    channelID,
			"createdAt":  createdAt.Time,
		})
	}
	return docs, rows.Err()
}

// VideoCollection serves video documents.
type VideoCollection struct {
	db *sql.DB
}

func NewVideoCollection(db *sql.DB) *VideoCollection {
	return &VideoCollection{db: db}
}

var videoFieldColumns = map[string]string{
	"id":    "id",
	"owner": "owner_id",
}

func (c *VideoCollection) Find(ctx context.Context, filter aggregate.Filter) ([]aggregate.Document, error) {
	where, args, err := buildWhere(filter, videoFieldColumns)
	if err != nil {
		return nil, err
	}

	query := `SELECT id, video_file, thumbnail, title, description, duration, views, is_published, owner_id, created_at FROM videos` + where
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := make([]aggregate.Document, 0)
	for rows.Next() {
		var (
			id, views, ownerID uint64
			duration           int64
			isPublished        bool
			videoFile          string
			thumbnail          string
			title, description string
			createdAt          sql.NullTime
		)
		if err := rows.Scan(&id, &videoFile, &thumbnail, &title, &description, &duration, &views, &isPublished, &ownerID, &createdAt); err != nil {
			return nil, err
		}
		docs = append(docs, aggregate.Document{
			"id":          id,
			"videoFile":   videoFile,
			"thumbnail":   thumbnail,
			"title":       title,
			"description": description,
			"duration":    duration,
			"views":       views,
			"isPublished": isPublished,
			"owner":       ownerID,
			"createdAt":   createdAt.Time,
		})
	}
	return docs, rows.Err()
}

// buildWhere renders an aggregate.Filter as a WHERE clause using the
// collection's field-to-column map. Slice values become IN lists.
func buildWhere(filter aggregate.Filter, columns map[string]string) (string, []any, error) {
	if len(filter) == 0 {
		return "", nil, nil
	}

	conds := make([]string, 0, len(filter))
	args := make([]any, 0, len(filter))
	for field, value := range filter {
		column, ok := columns[field]
		if !ok {
			return "", nil, fmt.Errorf("unsupported filter field %q", field)
		}
		switch list := value.(type) {
		case []any:
			if len(list) == 0 {
				conds = append(conds, "1 = 0")
				continue
			}
			placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(list)), ", ")
			conds = append(conds, column+" IN ("+placeholders+")")
			args = append(args, list...)
		case []uint64:
			if len(list) == 0 {
				conds = append(conds, "1 = 0")
				continue
			}
			placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(list)), ", ")
			conds = append(conds, column+" IN ("+placeholders+")")
			for _, v := range list {
				args = append(args, v)
			}
		default:
			conds = append(conds, column+" = ?")
			args = append(args, value)
		}
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}
