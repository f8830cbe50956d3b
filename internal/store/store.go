// Package store defines the bot's persistent data model and the interfaces
// storage backends implement, together with in-memory implementations used
// when no backend module is configured and in tests.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// ChannelKind names one of the two channel sets. A channel may belong to
// both: it is then registered once per kind.
type ChannelKind string

// Channel kinds.
const (
	KindDB  ChannelKind = "db"
	KindSub ChannelKind = "sub"
)

// Valid reports whether k is a known kind.
func (k ChannelKind) Valid() bool {
	return k == KindDB || k == KindSub
}

// Channel is a registered Telegram channel, keyed by (ID, Kind).
type Channel struct {
	ID       int64
	Kind     ChannelKind
	Title    string
	Username string
	AddedAt  time.Time
}

// User is someone who started the bot.
type User struct {
	ID        int64
	Username  string
	FirstName string
	FirstSeen time.Time
}

// Batch is a keyword-addressed group of messages in the batch channel.
type Batch struct {
	ID         string
	Keyword    string
	ChannelID  int64
	MessageIDs []int
	CreatedBy  int64
	CreatedAt  time.Time
}

// Document is an indexed file posted in a DB channel.
type Document struct {
	ChannelID    int64     `json:"channel_id"`
	MessageID    int       `json:"message_id"`
	FileID       string    `json:"file_id"`
	FileUniqueID string    `json:"file_unique_id,omitempty"`
	FileName     string    `json:"file_name"`
	MIMEType     string    `json:"mime_type,omitempty"`
	FileSize     int64     `json:"file_size"`
	Caption      string    `json:"caption,omitempty"`
	IndexedAt    time.Time `json:"indexed_at"`
}

// SizeMB returns the file size in megabytes.
func (d Document) SizeMB() float64 {
	return float64(d.FileSize) / (1024 * 1024)
}

// Registry holds channels, admins, users, covers and batches.
type Registry interface {
	AddChannel(ctx context.Context, ch Channel) error
	RemoveChannel(ctx context.Context, id int64, kind ChannelKind) error
	Channels(ctx context.Context, kind ChannelKind) ([]Channel, error)

	AddAdmin(ctx context.Context, userID int64) error
	RemoveAdmin(ctx context.Context, userID int64) error
	Admins(ctx context.Context) ([]int64, error)

	// UpsertUser records u and reports whether it was new.
	UpsertUser(ctx context.Context, u User) (created bool, err error)
	RemoveUser(ctx context.Context, id int64) error
	Users(ctx context.Context) ([]User, error)
	CountUsers(ctx context.Context) (int, error)

	SetCover(ctx context.Context, fileName, photoFileID string) error
	Cover(ctx context.Context, fileName string) (string, error)
	CountCovers(ctx context.Context) (int, error)

	SaveBatch(ctx context.Context, b Batch) error
	Batch(ctx context.Context, id string) (Batch, error)
	BatchByKeyword(ctx context.Context, keyword string) (Batch, error)
	CountBatches(ctx context.Context) (int, error)
}

// Index stores documents and answers keyword searches per channel.
type Index interface {
	Add(ctx context.Context, doc Document) error
	Search(ctx context.Context, channelID int64, query string, limit int) ([]Document, error)
	DeleteChannel(ctx context.Context, channelID int64) (int, error)
	Count(ctx context.Context) (int, error)
}

// SearchCache keeps the last result list per chat for pagination.
type SearchCache interface {
	Put(ctx context.Context, chatID int64, docs []Document, ttl time.Duration) error
	Get(ctx context.Context, chatID int64) ([]Document, error)
}

// Pruner is implemented by stores that need explicit expiry.
type Pruner interface {
	Prune(now time.Time) int
}
