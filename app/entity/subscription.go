package entity

import "time"

// Subscription is a directed edge: SubscriberID follows ChannelID.
// The (subscriber_id, channel_id) pair carries a composite unique index,
// so an account cannot subscribe to the same channel twice.
type Subscription struct {
	ID           uint64
	SubscriberID uint64
	ChannelID    uint64
	CreatedAt    time.Time
}

// WatchEntry records that an account watched a video. Position is a
// per-account monotonic counter; ordering by it reproduces the
// chronological watch order.
type WatchEntry struct {
	AccountID uint64
	VideoID   uint64
	Position  uint64
	CreatedAt time.Time
}
