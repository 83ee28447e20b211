package storage

import (
	"context"
	"fmt"
	"strings"

	"intizar/internal/models"

	"cloud.google.com/go/firestore"
)

// firestoreRow mirrors the catalog header so documents read the same in the
// console as they do in the spreadsheet export.
type firestoreRow struct {
	ID          string `firestore:"ID"`
	Title       string `firestore:"Title"`
	Author      string `firestore:"Author"`
	Type        string `firestore:"Type"`
	DateAdded   string `firestore:"DateAdded"`
	DriveFileID string `firestore:"DriveFileId"`
	DriveURL    string `firestore:"DriveUrl"`
}

// DocumentFirestore persists catalog rows in a single collection keyed by
// document ID.
type DocumentFirestore struct {
	client     *firestore.Client
	collection string
}

func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	return client, nil
}

func NewDocumentFirestore(client *firestore.Client, collection string) *DocumentFirestore {
	return &DocumentFirestore{client: client, collection: collection}
}

// Append creates the document; an existing ID is an error.
func (r *DocumentFirestore) Append(ctx context.Context, doc models.Document) error {
	row := firestoreRow{
		ID:          doc.ID,
		Title:       doc.Title,
		Author:      doc.Author,
		Type:        string(doc.Type),
		DateAdded:   doc.DateAdded.UTC().Format(DateLayout),
		DriveFileID: doc.FileRef,
		DriveURL:    doc.FileURL,
	}
	if _, err := r.client.Collection(r.collection).Doc(doc.ID).Create(ctx, row); err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

// List returns every document. Rows that cannot be decoded come back with
// only their ID so the caller can reject them.
func (r *DocumentFirestore) List(ctx context.Context) ([]models.Document, error) {
	snaps, err := r.client.Collection(r.collection).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	docs := make([]models.Document, 0, len(snaps))
	for _, snap := range snaps {
		var row firestoreRow
		if err := snap.DataTo(&row); err != nil {
			docs = append(docs, models.Document{ID: snap.Ref.ID})
			continue
		}
		id := strings.TrimSpace(row.ID)
		if id == "" {
			id = snap.Ref.ID
		}
		docs = append(docs, models.Document{
			ID:        id,
			Title:     row.Title,
			Author:    row.Author,
			Type:      models.DocumentType(row.Type),
			DateAdded: ParseDate(row.DateAdded),
			FileRef:   row.DriveFileID,
			FileURL:   row.DriveURL,
		})
	}
	return docs, nil
}

func (r *DocumentFirestore) Close() error { return r.client.Close() }
