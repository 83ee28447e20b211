package catalog

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"intizar/internal/apperr"
	"intizar/internal/config"
	"intizar/internal/models"
	"intizar/internal/pdfgen"
	"intizar/internal/redis"
	"intizar/internal/storage"
	"intizar/internal/worker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockFiles struct {
	mock.Mock
}

func (m *mockFiles) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (models.StoredFile, error) {
	data, _ := io.ReadAll(r)
	args := m.Called(ctx, key, len(data), contentType)
	return args.Get(0).(models.StoredFile), args.Error(1)
}

func (m *mockFiles) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *mockFiles) Name() string { return "mock" }

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) Append(ctx context.Context, doc models.Document) error {
	return m.Called(ctx, doc).Error(0)
}

func (m *mockRepo) List(ctx context.Context) ([]models.Document, error) {
	args := m.Called(ctx)
	docs, _ := args.Get(0).([]models.Document)
	return docs, args.Error(1)
}

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestService(t *testing.T, repo Repository, files storage.FileStore, opts ...Option) *Service {
	t.Helper()
	d := worker.NewDispatcher(4)
	t.Cleanup(d.Close)
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	svc := NewService(repo, files, d, opts...)
	svc.newID = func() string { return "doc-1" }
	return svc
}

func samplePDF(t *testing.T) string {
	t.Helper()
	data, err := pdfgen.Render(pdfgen.Content{Title: "Sample", Author: "Tester", Body: "Body"})
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(data)
}

func TestUploadRejectsUnsupportedTypeWithoutStoring(t *testing.T) {
	files := &mockFiles{}
	repo := &mockRepo{}
	svc := newTestService(t, repo, files)

	_, err := svc.Upload(context.Background(), UploadRequest{
		FileName:   "notes.txt",
		MimeType:   "text/plain",
		FileBase64: base64.StdEncoding.EncodeToString([]byte("hello")),
		Title:      "Notes",
		Author:     "Someone",
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Equal(t, MsgUnsupportedType, apperr.Message(err, ""))
	files.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
}

func TestUploadValidation(t *testing.T) {
	svc := newTestService(t, &mockRepo{}, &mockFiles{}, WithMaxUploadBytes(8))
	docx := base64.StdEncoding.EncodeToString([]byte("PK\x03\x04"))

	cases := []struct {
		name string
		req  UploadRequest
		msg  string
	}{
		{"missing title", UploadRequest{FileName: "a.docx", MimeType: MimeDOCX, FileBase64: docx, Author: "x"}, MsgTitleAuthorRequired},
		{"blank author", UploadRequest{FileName: "a.docx", MimeType: MimeDOCX, FileBase64: docx, Title: "t", Author: "  "}, MsgTitleAuthorRequired},
		{"no file name", UploadRequest{MimeType: MimeDOCX, FileBase64: docx, Title: "t", Author: "a"}, MsgFileNameRequired},
		{"bad base64", UploadRequest{FileName: "a.docx", MimeType: MimeDOCX, FileBase64: "%%%", Title: "t", Author: "a"}, MsgInvalidFileData},
		{"empty file", UploadRequest{FileName: "a.docx", MimeType: MimeDOCX, FileBase64: "", Title: "t", Author: "a"}, MsgEmptyFile},
		{"too large", UploadRequest{FileName: "a.docx", MimeType: MimeDOCX, FileBase64: base64.StdEncoding.EncodeToString(make([]byte, 9)), Title: "t", Author: "a"}, "File too large. Maximum size is 8 bytes."},
		{"fake pdf", UploadRequest{FileName: "a.pdf", MimeType: MimePDF, FileBase64: docx, Title: "t", Author: "a"}, MsgInvalidPDF},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Upload(context.Background(), tc.req)
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
			assert.Equal(t, tc.msg, apperr.Message(err, ""))
		})
	}
}

func TestUploadStoresFileThenAppendsRow(t *testing.T) {
	files := &mockFiles{}
	repo := &mockRepo{}
	svc := newTestService(t, repo, files)

	longTitle := strings.Repeat("t", 250)
	files.On("Put", mock.Anything, "doc-1/Kitab al-Ghayba.pdf", mock.AnythingOfType("int"), MimePDF).
		Return(models.StoredFile{Ref: "doc-1/Kitab al-Ghayba.pdf", Name: "Kitab al-Ghayba.pdf", URL: "http://files/doc-1"}, nil).Once()
	repo.On("Append", mock.Anything, mock.MatchedBy(func(d models.Document) bool {
		return d.ID == "doc-1" &&
			len(d.Title) == MaxTitleLen &&
			d.Author == "Shaykh Tusi" &&
			d.Type == models.TypePDF &&
			d.DateAdded.Equal(fixedNow) &&
			d.FileRef == "doc-1/Kitab al-Ghayba.pdf" &&
			d.FileURL == "http://files/doc-1"
	})).Return(nil).Once()

	res, err := svc.Upload(context.Background(), UploadRequest{
		FileName:   "C:\\Users\\admin\\Kitab al-Ghayba.pdf",
		MimeType:   MimePDF,
		FileBase64: "data:application/pdf;base64," + samplePDF(t),
		Title:      "  " + longTitle + "  ",
		Author:     " Shaykh Tusi ",
	})
	require.NoError(t, err)
	assert.Equal(t, MsgUploaded, res.Message)
	assert.Equal(t, "Kitab al-Ghayba.pdf", res.File.Name)
	assert.Equal(t, fixedNow, res.Document.DateAdded)
	files.AssertExpectations(t)
	repo.AssertExpectations(t)
}

func TestUploadDocxTypeFromExtension(t *testing.T) {
	files := &mockFiles{}
	repo := &mockRepo{}
	svc := newTestService(t, repo, files)

	files.On("Put", mock.Anything, "doc-1/Lecture.DOCX", mock.Anything, MimeDOCX).
		Return(models.StoredFile{Ref: "doc-1/Lecture.DOCX", URL: "u"}, nil)
	repo.On("Append", mock.Anything, mock.MatchedBy(func(d models.Document) bool {
		return d.Type == models.TypeDOCX
	})).Return(nil)

	_, err := svc.Upload(context.Background(), UploadRequest{
		FileName:   "Lecture.DOCX",
		MimeType:   MimeDOCX,
		FileBase64: base64.StdEncoding.EncodeToString([]byte("PK\x03\x04docx")),
		Title:      "Lecture",
		Author:     "Speaker",
	})
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestUploadRollsBackFileWhenAppendFails(t *testing.T) {
	files := &mockFiles{}
	repo := &mockRepo{}
	svc := newTestService(t, repo, files)

	files.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(models.StoredFile{Ref: "doc-1/x.docx"}, nil)
	files.On("Delete", mock.Anything, "doc-1/x.docx").Return(nil).Once()
	repo.On("Append", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	_, err := svc.Upload(context.Background(), UploadRequest{
		FileName:   "x.docx",
		MimeType:   MimeDOCX,
		FileBase64: base64.StdEncoding.EncodeToString([]byte("PK")),
		Title:      "t",
		Author:     "a",
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
	assert.Equal(t, MsgRecordFailed, apperr.Message(err, ""))
	files.AssertExpectations(t)
}

func TestUploadStoreFailureIsUpstream(t *testing.T) {
	files := &mockFiles{}
	repo := &mockRepo{}
	svc := newTestService(t, repo, files)

	files.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(models.StoredFile{}, errors.New("bucket gone"))

	_, err := svc.Upload(context.Background(), UploadRequest{
		FileName:   "x.docx",
		MimeType:   MimeDOCX,
		FileBase64: base64.StdEncoding.EncodeToString([]byte("PK")),
		Title:      "t",
		Author:     "a",
	})
	require.Error(t, err)
	assert.Equal(t, MsgStoreFailed, apperr.Message(err, ""))
	repo.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
}

func TestUploadAfterDispatcherClosed(t *testing.T) {
	files := &mockFiles{}
	repo := &mockRepo{}
	d := worker.NewDispatcher(1)
	d.Close()
	svc := NewService(repo, files, d)

	files.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(models.StoredFile{Ref: "k"}, nil)
	files.On("Delete", mock.Anything, "k").Return(nil).Once()

	_, err := svc.Upload(context.Background(), UploadRequest{
		FileName:   "x.docx",
		MimeType:   MimeDOCX,
		FileBase64: base64.StdEncoding.EncodeToString([]byte("PK")),
		Title:      "t",
		Author:     "a",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, worker.ErrDispatcherClosed)
	files.AssertExpectations(t)
}

func TestGeneratePdf(t *testing.T) {
	files := &mockFiles{}
	repo := &mockRepo{}
	svc := newTestService(t, repo, files)

	wantKey := "doc-1/Signs of Reappearance_" + "1773480600000" + ".pdf"
	files.On("Put", mock.Anything, wantKey, mock.Anything, MimePDF).
		Return(models.StoredFile{Ref: wantKey, Name: "Signs of Reappearance_1773480600000.pdf", URL: "u"}, nil)
	repo.On("Append", mock.Anything, mock.MatchedBy(func(d models.Document) bool {
		return d.Type == models.TypeGenerated && d.Title == "Signs of Reappearance?"
	})).Return(nil)

	res, err := svc.GeneratePdf(context.Background(), GenerateRequest{
		Title:  "Signs of Reappearance?",
		Author: "Research Team",
		Body:   "Line one\nLine two",
	})
	require.NoError(t, err)
	assert.Equal(t, MsgGenerated, res.Message)
	assert.Equal(t, models.TypeGenerated, res.Document.Type)
	files.AssertExpectations(t)
	repo.AssertExpectations(t)
}

func TestGeneratePdfRequiresAllFields(t *testing.T) {
	files := &mockFiles{}
	svc := newTestService(t, &mockRepo{}, files)
	_, err := svc.GeneratePdf(context.Background(), GenerateRequest{Title: "t", Author: "a", Body: "   "})
	require.Error(t, err)
	assert.Equal(t, MsgContentRequired, apperr.Message(err, ""))
	files.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestListAllQuarantinesAndSorts(t *testing.T) {
	repo := &mockRepo{}
	svc := newTestService(t, repo, &mockFiles{})

	d := func(s string) time.Time {
		ts, err := time.Parse("2006-01-02", s)
		require.NoError(t, err)
		return ts
	}
	repo.On("List", mock.Anything).Return([]models.Document{
		{ID: "b", Title: "B", Type: models.TypePDF, DateAdded: d("2024-01-01")},
		{ID: "", Title: "blank row"},
		{ID: "c", Title: "C", Type: models.TypeDOCX, DateAdded: d("2024-06-01")},
		{ID: "bad-type", Title: "X", Type: "Spreadsheet", DateAdded: d("2024-06-01")},
		{ID: "bad-date", Title: "Y", Type: models.TypePDF},
		{ID: "a", Title: "A", Type: models.TypeGenerated, DateAdded: d("2023-01-01")},
		{ID: "a2", Title: "A2", Type: models.TypePDF, DateAdded: d("2024-01-01")},
	}, nil)

	docs, err := svc.ListAll(context.Background())
	require.NoError(t, err)
	ids := make([]string, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID
	}
	assert.Equal(t, []string{"c", "a2", "b", "a"}, ids)

	again, err := svc.ListAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, docs, again)
}

func TestListAllUsesCacheUntilAppend(t *testing.T) {
	repo := &mockRepo{}
	files := &mockFiles{}
	svc := newTestService(t, repo, files, WithCache(redis.NewMemory(), time.Minute))

	first := []models.Document{{ID: "a", Title: "A", Type: models.TypePDF, DateAdded: fixedNow.Add(-time.Hour)}}
	repo.On("List", mock.Anything).Return(first, nil).Once()

	docs, err := svc.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	docs, err = svc.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	repo.AssertNumberOfCalls(t, "List", 1)

	files.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(models.StoredFile{Ref: "doc-1/n.docx"}, nil)
	repo.On("Append", mock.Anything, mock.Anything).Return(nil)
	_, err = svc.Upload(context.Background(), UploadRequest{
		FileName: "n.docx", MimeType: MimeDOCX, Title: "N", Author: "a",
		FileBase64: base64.StdEncoding.EncodeToString([]byte("PK")),
	})
	require.NoError(t, err)

	second := append([]models.Document{{ID: "doc-1", Title: "N", Type: models.TypeDOCX, DateAdded: fixedNow}}, first...)
	repo.On("List", mock.Anything).Return(second, nil).Once()
	docs, err = svc.ListAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, docs, 2)
	repo.AssertNumberOfCalls(t, "List", 2)
}

// pausingRepo holds its first List call after taking the snapshot, so an
// append can land between the read and the cache write.
type pausingRepo struct {
	mu      sync.Mutex
	docs    []models.Document
	paused  bool
	read    chan struct{}
	release chan struct{}
}

func (r *pausingRepo) Append(_ context.Context, doc models.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs = append(r.docs, doc)
	return nil
}

func (r *pausingRepo) List(context.Context) ([]models.Document, error) {
	r.mu.Lock()
	snapshot := append([]models.Document(nil), r.docs...)
	pause := !r.paused
	r.paused = true
	r.mu.Unlock()
	if pause {
		close(r.read)
		<-r.release
	}
	return snapshot, nil
}

func TestListAllDoesNotCacheListingOlderThanAppend(t *testing.T) {
	repo := &pausingRepo{read: make(chan struct{}), release: make(chan struct{})}
	files := &mockFiles{}
	files.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(models.StoredFile{Ref: "doc-1/n.docx"}, nil)
	svc := newTestService(t, repo, files, WithCache(redis.NewMemory(), time.Minute))

	listed := make(chan []models.Document, 1)
	go func() {
		docs, err := svc.ListAll(context.Background())
		assert.NoError(t, err)
		listed <- docs
	}()

	<-repo.read
	_, err := svc.Upload(context.Background(), UploadRequest{
		FileName: "n.docx", MimeType: MimeDOCX, Title: "N", Author: "a",
		FileBase64: base64.StdEncoding.EncodeToString([]byte("PK")),
	})
	require.NoError(t, err)
	close(repo.release)
	assert.Empty(t, <-listed)

	docs, err := svc.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "doc-1", docs[0].ID)
}

func TestSizeLabel(t *testing.T) {
	assert.Equal(t, "8 bytes", sizeLabel(8))
	assert.Equal(t, "512 KB", sizeLabel(512<<10))
	assert.Equal(t, "10 MB", sizeLabel(10<<20))
}

func TestListAllRepositoryFailure(t *testing.T) {
	repo := &mockRepo{}
	svc := newTestService(t, repo, &mockFiles{})
	repo.On("List", mock.Anything).Return(nil, errors.New("connection refused"))

	_, err := svc.ListAll(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
	assert.Equal(t, MsgListFailed, apperr.Message(err, ""))
}

func TestSummarize(t *testing.T) {
	st := Summarize([]models.Document{
		{Type: models.TypePDF}, {Type: models.TypePDF}, {Type: models.TypeDOCX}, {Type: models.TypeGenerated},
	})
	assert.Equal(t, Stats{Total: 4, PDF: 2, DOCX: 1, Generated: 1}, st)
}

func TestCleanFileName(t *testing.T) {
	assert.Equal(t, "a.pdf", cleanFileName("../../a.pdf"))
	assert.Equal(t, "", cleanFileName("  "))
	long := strings.Repeat("n", 150) + ".pdf"
	got := cleanFileName(long)
	assert.Len(t, []rune(got), MaxFileNameLen)
	assert.True(t, strings.HasSuffix(got, ".pdf"))
}

// Appending N documents through the real SQL repository and local file store
// lists exactly those N, newest first.
func TestCatalogRoundTrip(t *testing.T) {
	cfg := &config.Config{Databases: map[string]config.DatabaseConfig{"sqlite3": {DSN: ":memory:"}}}
	db, err := storage.Open("sqlite3", cfg)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, storage.Migrate(db, "sqlite3"))

	files, err := storage.NewLocalStore(config.StorageConfig{BaseDir: t.TempDir(), FolderName: "lib", PublicBaseURL: "http://localhost"})
	require.NoError(t, err)

	var mu sync.Mutex
	tick := fixedNow
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick = tick.Add(time.Second)
		return tick
	}
	d := worker.NewDispatcher(8)
	defer d.Close()
	svc := NewService(storage.NewDocumentSQL(db, "sqlite3"), files, d, WithClock(clock))

	titles := []string{"First", "Second", "Third"}
	for _, title := range titles {
		_, err := svc.Upload(context.Background(), UploadRequest{
			FileName:   title + ".docx",
			MimeType:   MimeDOCX,
			FileBase64: base64.StdEncoding.EncodeToString([]byte("PK " + title)),
			Title:      title,
			Author:     "Author",
		})
		require.NoError(t, err)
	}

	docs, err := svc.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "Third", docs[0].Title)
	assert.Equal(t, "Second", docs[1].Title)
	assert.Equal(t, "First", docs[2].Title)
	for _, doc := range docs {
		assert.Equal(t, models.TypeDOCX, doc.Type)
		assert.Equal(t, "Author", doc.Author)
		assert.NotEmpty(t, doc.FileURL)
	}
}
