package models

// StoredFile describes a blob written to the file store.
type StoredFile struct {
	Ref      string `json:"ref"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}
