package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire and storage form of DateAdded: ISO 8601 UTC with
// milliseconds.
const DateLayout = "2006-01-02T15:04:05.000Z"

// DocumentType is derived at write time and never changes.
type DocumentType string

const (
	TypePDF       DocumentType = "PDF"
	TypeDOCX      DocumentType = "DOCX"
	TypeGenerated DocumentType = "Generated PDF"
)

// MIME types accepted for uploads.
const (
	MimePDF  = "application/pdf"
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// Valid reports whether t is one of the known document types.
func (t DocumentType) Valid() bool {
	switch t {
	case TypePDF, TypeDOCX, TypeGenerated:
		return true
	}
	return false
}

// Document is one catalog row. Its JSON form uses the catalog header names
// as keys.
type Document struct {
	ID        string
	Title     string
	Author    string
	Type      DocumentType
	DateAdded time.Time
	FileRef   string
	FileURL   string
}

// Header lists the catalog columns in storage order.
var Header = []string{"ID", "Title", "Author", "Type", "DateAdded", "DriveFileId", "DriveUrl"}

var ErrMissingID = errors.New("document id is empty")

// Validate checks a row read back from a repository.
func (d Document) Validate() error {
	if d.ID == "" {
		return ErrMissingID
	}
	if d.Title == "" {
		return fmt.Errorf("document %s: empty title", d.ID)
	}
	if !d.Type.Valid() {
		return fmt.Errorf("document %s: unknown type %q", d.ID, d.Type)
	}
	if d.DateAdded.IsZero() {
		return fmt.Errorf("document %s: missing date", d.ID)
	}
	return nil
}

type documentJSON struct {
	ID        string       `json:"ID"`
	Title     string       `json:"Title"`
	Author    string       `json:"Author"`
	Type      DocumentType `json:"Type"`
	DateAdded string       `json:"DateAdded"`
	FileRef   string       `json:"DriveFileId"`
	FileURL   string       `json:"DriveUrl"`
}

func (d Document) MarshalJSON() ([]byte, error) {
	out := documentJSON{
		ID:      d.ID,
		Title:   d.Title,
		Author:  d.Author,
		Type:    d.Type,
		FileRef: d.FileRef,
		FileURL: d.FileURL,
	}
	if !d.DateAdded.IsZero() {
		out.DateAdded = d.DateAdded.UTC().Format(DateLayout)
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts DateLayout and RFC 3339; any other date decodes to
// the zero time.
func (d *Document) UnmarshalJSON(data []byte) error {
	var in documentJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*d = Document{
		ID:        in.ID,
		Title:     in.Title,
		Author:    in.Author,
		Type:      in.Type,
		DateAdded: ParseDate(in.DateAdded),
		FileRef:   in.FileRef,
		FileURL:   in.FileURL,
	}
	return nil
}

// ParseDate reads a stored DateAdded value; anything unparsable yields the
// zero time.
func ParseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{DateLayout, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
