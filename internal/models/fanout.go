package models

import "time"

// FanoutRecord marks that a recipient was notified for one version of an item.
type FanoutRecord struct {
	ItemID      int64     `db:"item_id" json:"item_id"`
	RecipientID int64     `db:"recipient_id" json:"recipient_id"`
	Version     int       `db:"version" json:"version"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Notification is a row handed to the delivery collaborator.
type Notification struct {
	ID          string      `db:"id" json:"id"`
	UserID      int64       `db:"user_id" json:"user_id"`
	ItemID      int64       `db:"item_id" json:"item_id"`
	ItemVersion int         `db:"item_version" json:"item_version"`
	Kind        ContentKind `db:"kind" json:"kind"`
	BatchID     string      `db:"batch_id" json:"batch_id"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
}

// RecipientBatch is one page of resolved recipients for an item version.
type RecipientBatch struct {
	ItemID     int64
	Version    int
	Kind       ContentKind
	Recipients []int64
}

// FanoutSummary reports the outcome of one on-publish run.
type FanoutSummary struct {
	ItemID     int64 `json:"item_id"`
	Version    int   `json:"version"`
	Considered int   `json:"considered"`
	Recipients int   `json:"recipients"`
	Skipped    int   `json:"skipped"`
	Batches    int   `json:"batches"`
}
