package entity

import "time"

// Video is a published media item. The file and thumbnail fields hold
// blob-store URLs; OwnerID references the uploading account.
type Video struct {
	ID          uint64
	VideoFile   string
	Thumbnail   string
	Title       string
	Description string
	Duration    int64
	Views       uint64
	IsPublished bool
	OwnerID     uint64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
