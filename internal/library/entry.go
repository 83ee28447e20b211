// Package library is the client-side view of the catalog: the merged
// remote and fallback list, its filters, and the admin flow.
package library

import (
	"strconv"
	"time"

	"intizar/internal/models"
)

// CoreCollection is the date label shown for fallback entries.
const CoreCollection = "Core Collection"

// RecentWindow is how far back a remote entry still counts as new, in months.
const RecentWindow = 1

// Entry is one row of the rendered library.
type Entry struct {
	ID          string
	Title       string
	Author      string
	Type        string
	Date        time.Time
	URL         string
	Description string
	Remote      bool
	Recent      bool
}

// DateLabel is the human form of Date.
func (e Entry) DateLabel() string {
	if !e.Remote {
		return CoreCollection
	}
	if e.Date.IsZero() {
		return "Unknown date"
	}
	return e.Date.Format("Jan 2, 2006")
}

// FromDocument maps a catalog row to an entry, filling display defaults for
// missing fields.
func FromDocument(doc models.Document, now time.Time) Entry {
	e := Entry{
		ID:     doc.ID,
		Title:  orDefault(doc.Title, "Untitled"),
		Author: orDefault(doc.Author, "Unknown"),
		Type:   orDefault(string(doc.Type), string(models.TypePDF)),
		Date:   doc.DateAdded,
		URL:    orDefault(doc.FileURL, "#"),
		Remote: true,
	}
	e.Recent = IsRecent(doc.DateAdded, now)
	return e
}

// IsRecent reports whether t falls within the last month before now.
func IsRecent(t, now time.Time) bool {
	if t.IsZero() {
		return false
	}
	return t.After(now.AddDate(0, -RecentWindow, 0))
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// DefaultFallback is the seed collection shown next to, or instead of, the
// remote catalog.
func DefaultFallback() []Entry {
	seed := []struct{ title, url, description string }{
		{"Introduction to Mahdawiyyah", "intizar1.pdf", "A comprehensive introduction to the concept of Mahdawiyyah and its significance."},
		{"The Concept of Intizar", "intizar2.pdf", "Exploring the theological and practical aspects of awaiting Imam Mahdi (AJF)."},
		{"Imam Mahdi in Classical Texts", "intizar3.pdf", "References and analysis from classical Islamic literature."},
		{"Sayyid Zakzaky's Teachings", "intizar4.pdf", "Contemporary perspectives on Mahdawiyyah."},
		{"Mahdawiyyah Q&A", "intizar5.pdf", "Frequently asked questions and answers."},
	}
	out := make([]Entry, len(seed))
	for i, s := range seed {
		out[i] = Entry{
			ID:          "default-" + strconv.Itoa(i+1),
			Title:       s.title,
			Author:      "Intizar Research Team",
			Type:        string(models.TypePDF),
			Date:        time.Unix(0, 0).UTC(),
			URL:         s.url,
			Description: s.description,
		}
	}
	return out
}

// asFallback forces the fallback invariants on seed entries.
func asFallback(seed []Entry) []Entry {
	out := make([]Entry, len(seed))
	for i, e := range seed {
		e.Remote = false
		e.Recent = false
		e.Date = time.Unix(0, 0).UTC()
		out[i] = e
	}
	return out
}
