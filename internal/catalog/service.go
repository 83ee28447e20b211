// Package catalog owns the append-only document catalog: uploads, generated
// PDFs and the sorted listing.
package catalog

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"intizar/internal/apperr"
	"intizar/internal/models"
	"intizar/internal/pdfgen"
	"intizar/internal/redis"
	"intizar/internal/storage"
	"intizar/internal/telemetry"
	"intizar/internal/worker"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	MimePDF  = models.MimePDF
	MimeDOCX = models.MimeDOCX

	MaxTitleLen    = 200
	MaxAuthorLen   = 100
	MaxFileNameLen = 100

	DefaultMaxUploadBytes = 10 << 20
)

const (
	MsgTitleAuthorRequired = "Title and author are required."
	MsgContentRequired     = "Title, author, and content are required."
	MsgUnsupportedType     = "Only PDF and DOCX files are allowed."
	MsgFileNameRequired    = "File name is required."
	MsgInvalidFileData     = "Invalid file data."
	MsgEmptyFile           = "File is empty."
	MsgInvalidPDF          = "Uploaded file is not a valid PDF."
	MsgStoreFailed         = "File storage unavailable. Please try again later."
	MsgRecordFailed        = "Failed to save document record."
	MsgListFailed          = "Failed to load documents."
	MsgRenderFailed        = "Failed to generate PDF."
	MsgUploaded            = "File uploaded successfully."
	MsgGenerated           = "PDF generated successfully."
)

// Repository is the append-only row store behind the catalog.
type Repository interface {
	Append(ctx context.Context, doc models.Document) error
	List(ctx context.Context) ([]models.Document, error)
}

type UploadRequest struct {
	FileName   string
	MimeType   string
	FileBase64 string
	Title      string
	Author     string
}

type GenerateRequest struct {
	Title  string
	Author string
	Body   string
}

// Result describes a stored document after a successful append.
type Result struct {
	Document models.Document
	File     models.StoredFile
	Message  string
}

type Stats struct {
	Total     int `json:"total"`
	PDF       int `json:"pdf"`
	DOCX      int `json:"docx"`
	Generated int `json:"generated"`
}

type Service struct {
	repo     Repository
	files    storage.FileStore
	appends  *worker.Dispatcher
	cache    *listCache
	metrics  *telemetry.Metrics
	maxBytes int64
	now      func() time.Time
	newID    func() string
	tracer   trace.Tracer
}

type Option func(*Service)

// WithCache keeps the sorted listing in store for ttl.
func WithCache(store redis.Store, ttl time.Duration) Option {
	return func(s *Service) {
		if store != nil && ttl > 0 {
			s.cache = &listCache{store: store, ttl: ttl}
		}
	}
}

func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithMaxUploadBytes(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxBytes = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, files storage.FileStore, appends *worker.Dispatcher, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		files:    files,
		appends:  appends,
		maxBytes: DefaultMaxUploadBytes,
		now:      time.Now,
		newID:    uuid.NewString,
		tracer:   otel.Tracer("intizar/catalog"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Configured reports which backends are wired, for the health action.
func (s *Service) Configured() (files, rows bool) {
	return s.files != nil, s.repo != nil
}

// Upload stores a base64 file and appends its row. The MIME type is checked
// before anything reaches the file store.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (Result, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.Upload")
	defer span.End()

	title := strings.TrimSpace(req.Title)
	author := strings.TrimSpace(req.Author)
	if title == "" || author == "" {
		return Result{}, apperr.Validation(MsgTitleAuthorRequired)
	}
	mime := strings.ToLower(strings.TrimSpace(req.MimeType))
	if mime != MimePDF && mime != MimeDOCX {
		return Result{}, apperr.Validation(MsgUnsupportedType)
	}
	name := cleanFileName(req.FileName)
	if name == "" {
		return Result{}, apperr.Validation(MsgFileNameRequired)
	}
	data, err := decodeBase64(req.FileBase64)
	if err != nil {
		return Result{}, apperr.Validation(MsgInvalidFileData)
	}
	if len(data) == 0 {
		return Result{}, apperr.Validation(MsgEmptyFile)
	}
	if int64(len(data)) > s.maxBytes {
		return Result{}, apperr.Validation("File too large. Maximum size is "+sizeLabel(s.maxBytes)+".")
	}
	if mime == MimePDF {
		if _, err := pdfgen.Inspect(data); err != nil {
			slog.Info("rejected upload", "file", name, "error", err)
			return Result{}, apperr.Validation(MsgInvalidPDF)
		}
	}

	docType := models.TypeDOCX
	if strings.HasSuffix(strings.ToLower(name), ".pdf") {
		docType = models.TypePDF
	}
	span.SetAttributes(attribute.String("document.type", string(docType)), attribute.Int("file.size", len(data)))

	res, err := s.store(ctx, title, author, docType, name, mime, data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload failed")
		return Result{}, err
	}
	res.Message = MsgUploaded
	return res, nil
}

// GeneratePdf renders the form text into a PDF and appends it.
func (s *Service) GeneratePdf(ctx context.Context, req GenerateRequest) (Result, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.GeneratePdf")
	defer span.End()

	title := strings.TrimSpace(req.Title)
	author := strings.TrimSpace(req.Author)
	if title == "" || author == "" || strings.TrimSpace(req.Body) == "" {
		return Result{}, apperr.Validation(MsgContentRequired)
	}

	now := s.now()
	data, err := pdfgen.Render(pdfgen.Content{Title: title, Author: author, Body: req.Body, Generated: now})
	if err != nil {
		span.RecordError(err)
		return Result{}, apperr.Upstream(MsgRenderFailed, err)
	}
	if int64(len(data)) > s.maxBytes {
		return Result{}, apperr.Validation(fmt.Sprintf("Generated PDF exceeds %d MB.", s.maxBytes>>20))
	}

	res, err := s.store(ctx, title, author, models.TypeGenerated, pdfgen.FileName(title, now), MimePDF, data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate failed")
		return Result{}, err
	}
	res.Message = MsgGenerated
	return res, nil
}

// store writes the file first and the row second; a row that cannot be
// appended takes its file with it.
func (s *Service) store(ctx context.Context, title, author string, docType models.DocumentType, name, mime string, data []byte) (Result, error) {
	id := s.newID()
	file, err := s.files.Put(ctx, id+"/"+name, bytes.NewReader(data), int64(len(data)), mime)
	if err != nil {
		s.metrics.ObserveAppend(string(docType), "store_failed")
		return Result{}, apperr.Upstream(MsgStoreFailed, err)
	}

	doc := models.Document{
		ID:      id,
		Title:   truncate(title, MaxTitleLen),
		Author:  truncate(author, MaxAuthorLen),
		Type:    docType,
		FileRef: file.Ref,
		FileURL: file.URL,
	}
	err = s.appends.Submit(ctx, func(ctx context.Context) error {
		// stamped inside the serialized job so dates follow append order
		doc.DateAdded = s.now().UTC().Truncate(time.Millisecond)
		return s.repo.Append(ctx, doc)
	})
	if err != nil {
		s.rollback(file)
		if errors.Is(err, worker.ErrDispatcherBusy) {
			s.metrics.ObserveAppend(string(docType), "busy")
			return Result{}, apperr.Busy(worker.ErrDispatcherBusy.Error(), err)
		}
		s.metrics.ObserveAppend(string(docType), "append_failed")
		return Result{}, apperr.Upstream(MsgRecordFailed, err)
	}

	s.cache.invalidate(ctx)
	s.metrics.ObserveAppend(string(docType), "ok")
	slog.Info("document appended", "id", doc.ID, "type", doc.Type, "file", file.Ref, "size", file.Size)
	return Result{Document: doc, File: file}, nil
}

func (s *Service) rollback(file models.StoredFile) {
	// the request context may already be done
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.files.Delete(ctx, file.Ref); err != nil {
		slog.Error("rollback stored file failed", "file", file.Ref, "error", err)
	}
}

// ListAll returns every conforming row, newest first with ties broken by ID.
// Rows with an empty ID are skipped; other malformed rows are quarantined.
func (s *Service) ListAll(ctx context.Context) ([]models.Document, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.ListAll")
	defer span.End()

	if docs, ok := s.cache.load(ctx); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return docs, nil
	}

	gen := s.cache.generation()
	rows, err := s.repo.List(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list failed")
		return nil, apperr.Upstream(MsgListFailed, err)
	}

	docs := make([]models.Document, 0, len(rows))
	for _, row := range rows {
		if row.ID == "" {
			continue
		}
		if err := row.Validate(); err != nil {
			slog.Warn("quarantined catalog row", "id", row.ID, "error", err)
			continue
		}
		docs = append(docs, row)
	}
	SortNewestFirst(docs)
	span.SetAttributes(attribute.Int("documents.count", len(docs)))

	s.cache.save(ctx, gen, docs)
	return docs, nil
}

// SortNewestFirst orders by DateAdded descending, then ID ascending.
func SortNewestFirst(docs []models.Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		if !docs[i].DateAdded.Equal(docs[j].DateAdded) {
			return docs[i].DateAdded.After(docs[j].DateAdded)
		}
		return docs[i].ID < docs[j].ID
	})
}

// Summarize counts documents per type.
func Summarize(docs []models.Document) Stats {
	st := Stats{Total: len(docs)}
	for _, d := range docs {
		switch d.Type {
		case models.TypePDF:
			st.PDF++
		case models.TypeDOCX:
			st.DOCX++
		case models.TypeGenerated:
			st.Generated++
		}
	}
	return st
}

// sizeLabel prints a byte limit in the largest whole unit that is not zero.
func sizeLabel(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%d MB", n>>20)
	case n >= 1<<10:
		return fmt.Sprintf("%d KB", n>>10)
	}
	return fmt.Sprintf("%d bytes", n)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// cleanFileName keeps the last path element and caps its length without
// losing the extension.
func cleanFileName(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if name == "" {
		return ""
	}
	name = path.Base(name)
	if name == "." || name == ".." || name == "/" {
		return ""
	}
	if len([]rune(name)) <= MaxFileNameLen {
		return name
	}
	ext := path.Ext(name)
	if len([]rune(ext)) >= MaxFileNameLen {
		return truncate(name, MaxFileNameLen)
	}
	stem := strings.TrimSuffix(name, ext)
	return truncate(stem, MaxFileNameLen-len([]rune(ext))) + ext
}

// decodeBase64 accepts plain base64 and data URLs.
func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			s = s[i+1:]
		}
	}
	return base64.StdEncoding.DecodeString(s)
}
