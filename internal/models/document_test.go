package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestDocumentJSONUsesHeaderKeys(t *testing.T) {
	doc := Document{
		ID:        "d1",
		Title:     "Signs of Reappearance",
		Author:    "Team",
		Type:      TypeGenerated,
		DateAdded: time.Date(2026, 3, 14, 9, 30, 0, 123456789, time.FixedZone("WAT", 3600)),
		FileRef:   "d1/Signs.pdf",
		FileURL:   "http://localhost:8090/files/d1/Signs.pdf",
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal raw: %v", err)
	}
	if len(raw) != len(Header) {
		t.Fatalf("expected %d keys, got %v", len(Header), raw)
	}
	for _, key := range Header {
		if _, ok := raw[key]; !ok {
			t.Fatalf("missing key %s in %s", key, data)
		}
	}
	if raw["DateAdded"] != "2026-03-14T08:30:00.123Z" {
		t.Fatalf("unexpected date %q", raw["DateAdded"])
	}
	if raw["Type"] != "Generated PDF" {
		t.Fatalf("unexpected type %q", raw["Type"])
	}

	var back Document
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.DateAdded.Equal(doc.DateAdded.Truncate(time.Millisecond)) || back.FileURL != doc.FileURL {
		t.Fatalf("round trip mismatch: %+v", back)
	}
}

func TestZeroDateIsEmpty(t *testing.T) {
	data, err := json.Marshal(Document{ID: "x"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if raw["DateAdded"] != "" {
		t.Fatalf("expected empty date, got %q", raw["DateAdded"])
	}
}

func TestParseDate(t *testing.T) {
	cases := map[string]time.Time{
		"2024-06-01T10:00:00.000Z":  time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
		"2024-06-01T12:00:00+02:00": time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
		" 2024-06-01T10:00:00Z ":    time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
		"yesterday":                 {},
		"":                          {},
	}
	for in, want := range cases {
		if got := ParseDate(in); !got.Equal(want) {
			t.Fatalf("ParseDate(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestValidate(t *testing.T) {
	valid := Document{ID: "a", Title: "T", Type: TypePDF, DateAdded: time.Now()}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid document rejected: %v", err)
	}

	noID := valid
	noID.ID = ""
	if err := noID.Validate(); !errors.Is(err, ErrMissingID) {
		t.Fatalf("expected ErrMissingID, got %v", err)
	}

	for name, mutate := range map[string]func(*Document){
		"empty title":  func(d *Document) { d.Title = "" },
		"unknown type": func(d *Document) { d.Type = "XLSX" },
		"zero date":    func(d *Document) { d.DateAdded = time.Time{} },
	} {
		d := valid
		mutate(&d)
		if err := d.Validate(); err == nil {
			t.Fatalf("%s: expected an error", name)
		}
	}

	if DocumentType("Generated PDF") != TypeGenerated || !TypeDOCX.Valid() {
		t.Fatalf("unexpected document type constants")
	}
}
