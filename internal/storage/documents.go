package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"intizar/internal/models"
)

// DateLayout is the stored form of DateAdded.
const DateLayout = models.DateLayout

// DocumentSQL persists catalog rows in the documents table.
type DocumentSQL struct {
	db     *sql.DB
	driver string
}

func NewDocumentSQL(db *sql.DB, driver string) *DocumentSQL {
	return &DocumentSQL{db: db, driver: strings.ToLower(driver)}
}

// Append inserts one row. Rows are never updated.
func (r *DocumentSQL) Append(ctx context.Context, doc models.Document) error {
	q := r.rebind(`INSERT INTO documents (id, title, author, type, date_added, file_ref, file_url) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, q,
		doc.ID,
		doc.Title,
		doc.Author,
		string(doc.Type),
		doc.DateAdded.UTC().Format(DateLayout),
		doc.FileRef,
		doc.FileURL,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// List returns every stored row as-is. An unparsable date is returned as the
// zero time so callers can reject the row.
func (r *DocumentSQL) List(ctx context.Context) ([]models.Document, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, title, author, type, date_added, file_ref, file_url FROM documents ORDER BY date_added DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	docs := make([]models.Document, 0)
	for rows.Next() {
		var id, title, author, typ, date, ref, link sql.NullString
		if err := rows.Scan(&id, &title, &author, &typ, &date, &ref, &link); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, models.Document{
			ID:        strings.TrimSpace(id.String),
			Title:     title.String,
			Author:    author.String,
			Type:      models.DocumentType(typ.String),
			DateAdded: ParseDate(date.String),
			FileRef:   ref.String,
			FileURL:   link.String,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

// ParseDate accepts the stored layout and plain RFC 3339; anything else
// yields the zero time.
func ParseDate(s string) time.Time {
	return models.ParseDate(s)
}

// rebind rewrites ? placeholders for drivers that use $n.
func (r *DocumentSQL) rebind(q string) string {
	if r.driver != "postgres" {
		return q
	}
	var b strings.Builder
	n := 0
	for _, ch := range q {
		if ch == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}
