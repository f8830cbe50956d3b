package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/flemzord/filebot/internal/store"
)

// index implements store.Index on the documents table and its FTS5 shadow.
type index struct {
	db  *sql.DB
	now func() time.Time
}

// Add implements store.Index. Adding the same message again replaces it.
func (x *index) Add(ctx context.Context, doc store.Document) error {
	if doc.IndexedAt.IsZero() {
		doc.IndexedAt = x.now()
	}
	_, err := x.db.ExecContext(ctx, `
		INSERT INTO documents (channel_id, message_id, file_id, file_unique_id, file_name, mime_type, file_size, caption, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(channel_id, message_id) DO UPDATE SET
			file_id = excluded.file_id,
			file_unique_id = excluded.file_unique_id,
			file_name = excluded.file_name,
			mime_type = excluded.mime_type,
			file_size = excluded.file_size,
			caption = excluded.caption,
			indexed_at = excluded.indexed_at`,
		doc.ChannelID, doc.MessageID, doc.FileID, doc.FileUniqueID, doc.FileName,
		doc.MIMEType, doc.FileSize, doc.Caption, formatTime(doc.IndexedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: index document: %w", err)
	}
	return nil
}

// Search implements store.Index. Every query word must prefix-match a word
// of the file name or caption. Newest messages come first.
func (x *index) Search(ctx context.Context, channelID int64, query string, limit int) ([]store.Document, error) {
	match := matchExpr(query)
	if match == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := x.db.QueryContext(ctx, `
		SELECT d.channel_id, d.message_id, d.file_id, d.file_unique_id, d.file_name,
		       d.mime_type, d.file_size, d.caption, d.indexed_at
		FROM documents_fts
		JOIN documents d ON d.rowid = documents_fts.rowid
		WHERE documents_fts MATCH ? AND d.channel_id = ?
		ORDER BY d.message_id DESC
		LIMIT ?`,
		match, channelID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: search documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []store.Document
	for rows.Next() {
		var (
			d         store.Document
			indexedAt string
		)
		if err := rows.Scan(&d.ChannelID, &d.MessageID, &d.FileID, &d.FileUniqueID, &d.FileName,
			&d.MIMEType, &d.FileSize, &d.Caption, &indexedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan document: %w", err)
		}
		if d.IndexedAt, err = parseTime(indexedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: scan documents rows: %w", err)
	}
	return out, nil
}

// matchExpr turns free text into an FTS5 query: each word becomes a quoted
// prefix term and the terms are implicitly ANDed.
func matchExpr(query string) string {
	words := strings.Fields(query)
	terms := make([]string, 0, len(words))
	for _, w := range words {
		if strings.IndexFunc(w, isWordRune) < 0 {
			continue
		}
		terms = append(terms, `"`+strings.ReplaceAll(w, `"`, `""`)+`"*`)
	}
	return strings.Join(terms, " ")
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// DeleteChannel implements store.Index.
func (x *index) DeleteChannel(ctx context.Context, channelID int64) (int, error) {
	res, err := x.db.ExecContext(ctx, "DELETE FROM documents WHERE channel_id = ?", channelID)
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete channel documents: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: rows affected: %w", err)
	}
	return int(n), nil
}

// Count implements store.Index.
func (x *index) Count(ctx context.Context) (int, error) {
	var n int
	if err := x.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count documents: %w", err)
	}
	return n, nil
}
