package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/flemzord/filebot/internal/store"
)

// timeLayout sorts lexically in chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite: parse time %q: %w", s, err)
	}
	return t, nil
}

// registry implements store.Registry.
type registry struct {
	db  *sql.DB
	now func() time.Time
}

// AddChannel implements store.Registry. Re-adding a channel of the same
// kind updates its title and username and keeps added_at.
func (r *registry) AddChannel(ctx context.Context, ch store.Channel) error {
	if ch.AddedAt.IsZero() {
		ch.AddedAt = r.now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO channels (id, kind, title, username, added_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id, kind) DO UPDATE SET
			title = excluded.title,
			username = excluded.username`,
		ch.ID, string(ch.Kind), ch.Title, ch.Username, formatTime(ch.AddedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: add channel: %w", err)
	}
	return nil
}

// RemoveChannel implements store.Registry.
func (r *registry) RemoveChannel(ctx context.Context, id int64, kind store.ChannelKind) error {
	return r.deleteOne(ctx, "DELETE FROM channels WHERE id = ? AND kind = ?", id, string(kind))
}

// Channels implements store.Registry. An empty kind lists every channel.
func (r *registry) Channels(ctx context.Context, kind store.ChannelKind) ([]store.Channel, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, kind, title, username, added_at
		FROM channels
		WHERE ? = '' OR kind = ?
		ORDER BY added_at, id, kind`,
		string(kind), string(kind),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list channels: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []store.Channel
	for rows.Next() {
		var (
			ch      store.Channel
			k       string
			addedAt string
		)
		if err := rows.Scan(&ch.ID, &k, &ch.Title, &ch.Username, &addedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan channel: %w", err)
		}
		ch.Kind = store.ChannelKind(k)
		if ch.AddedAt, err = parseTime(addedAt); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: scan channels rows: %w", err)
	}
	return out, nil
}

// AddAdmin implements store.Registry.
func (r *registry) AddAdmin(ctx context.Context, userID int64) error {
	if _, err := r.db.ExecContext(ctx, "INSERT OR IGNORE INTO admins (user_id) VALUES (?)", userID); err != nil {
		return fmt.Errorf("sqlite: add admin: %w", err)
	}
	return nil
}

// RemoveAdmin implements store.Registry.
func (r *registry) RemoveAdmin(ctx context.Context, userID int64) error {
	return r.deleteOne(ctx, "DELETE FROM admins WHERE user_id = ?", userID)
}

// Admins implements store.Registry.
func (r *registry) Admins(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT user_id FROM admins ORDER BY user_id")
	if err != nil {
		return nil, fmt.Errorf("sqlite: list admins: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scan admin: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// UpsertUser implements store.Registry. FirstSeen is kept from the first call.
func (r *registry) UpsertUser(ctx context.Context, u store.User) (bool, error) {
	if u.FirstSeen.IsZero() {
		u.FirstSeen = r.now()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, username, first_name, first_seen)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		u.ID, u.Username, u.FirstName, formatTime(u.FirstSeen),
	)
	if err != nil {
		return false, fmt.Errorf("sqlite: insert user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return true, nil
	}
	if _, err := r.db.ExecContext(ctx,
		"UPDATE users SET username = ?, first_name = ? WHERE id = ?",
		u.Username, u.FirstName, u.ID,
	); err != nil {
		return false, fmt.Errorf("sqlite: update user: %w", err)
	}
	return false, nil
}

// RemoveUser implements store.Registry.
func (r *registry) RemoveUser(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id); err != nil {
		return fmt.Errorf("sqlite: remove user: %w", err)
	}
	return nil
}

// Users implements store.Registry.
func (r *registry) Users(ctx context.Context) ([]store.User, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, username, first_name, first_seen FROM users ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("sqlite: list users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []store.User
	for rows.Next() {
		var (
			u         store.User
			firstSeen string
		)
		if err := rows.Scan(&u.ID, &u.Username, &u.FirstName, &firstSeen); err != nil {
			return nil, fmt.Errorf("sqlite: scan user: %w", err)
		}
		if u.FirstSeen, err = parseTime(firstSeen); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: scan users rows: %w", err)
	}
	return out, nil
}

// CountUsers implements store.Registry.
func (r *registry) CountUsers(ctx context.Context) (int, error) {
	return r.count(ctx, "users")
}

// SetCover implements store.Registry. File names match case-insensitively.
func (r *registry) SetCover(ctx context.Context, fileName, photoFileID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO covers (file_key, photo_file_id) VALUES (?, ?)
		ON CONFLICT(file_key) DO UPDATE SET photo_file_id = excluded.photo_file_id`,
		coverKey(fileName), photoFileID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: set cover: %w", err)
	}
	return nil
}

// Cover implements store.Registry.
func (r *registry) Cover(ctx context.Context, fileName string) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx, "SELECT photo_file_id FROM covers WHERE file_key = ?", coverKey(fileName)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("sqlite: get cover: %w", err)
	}
	return id, nil
}

// CountCovers implements store.Registry.
func (r *registry) CountCovers(ctx context.Context) (int, error) {
	return r.count(ctx, "covers")
}

// SaveBatch implements store.Registry.
func (r *registry) SaveBatch(ctx context.Context, b store.Batch) error {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = r.now()
	}
	ids, err := json.Marshal(b.MessageIDs)
	if err != nil {
		return fmt.Errorf("sqlite: marshal message ids: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO batches (id, keyword, channel_id, message_ids, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		b.ID, strings.TrimSpace(b.Keyword), b.ChannelID, string(ids), b.CreatedBy, formatTime(b.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save batch: %w", err)
	}
	return nil
}

const batchColumns = "id, keyword, channel_id, message_ids, created_by, created_at"

// Batch implements store.Registry.
func (r *registry) Batch(ctx context.Context, id string) (store.Batch, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+batchColumns+" FROM batches WHERE id = ?", id)
	return scanBatch(row)
}

// BatchByKeyword implements store.Registry. The most recent batch wins.
func (r *registry) BatchByKeyword(ctx context.Context, keyword string) (store.Batch, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+batchColumns+` FROM batches
		WHERE keyword = ? COLLATE NOCASE
		ORDER BY created_at DESC
		LIMIT 1`,
		strings.TrimSpace(keyword),
	)
	return scanBatch(row)
}

// CountBatches implements store.Registry.
func (r *registry) CountBatches(ctx context.Context) (int, error) {
	return r.count(ctx, "batches")
}

func scanBatch(row *sql.Row) (store.Batch, error) {
	var (
		b         store.Batch
		ids       string
		createdAt string
	)
	err := row.Scan(&b.ID, &b.Keyword, &b.ChannelID, &ids, &b.CreatedBy, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Batch{}, store.ErrNotFound
	}
	if err != nil {
		return store.Batch{}, fmt.Errorf("sqlite: scan batch: %w", err)
	}
	if err := json.Unmarshal([]byte(ids), &b.MessageIDs); err != nil {
		return store.Batch{}, fmt.Errorf("sqlite: unmarshal message ids: %w", err)
	}
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return store.Batch{}, err
	}
	return b, nil
}

// deleteOne runs a single-row DELETE and maps "nothing deleted" to
// store.ErrNotFound.
func (r *registry) deleteOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlite: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *registry) count(ctx context.Context, table string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count %s: %w", table, err)
	}
	return n, nil
}

func coverKey(fileName string) string {
	return strings.ToLower(strings.TrimSpace(fileName))
}
