package library

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"intizar/internal/client"
	"intizar/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) Login(ctx context.Context, username, password string) (client.Session, error) {
	args := m.Called(ctx, username, password)
	return args.Get(0).(client.Session), args.Error(1)
}

func (m *mockBackend) Logout(ctx context.Context, token string) error {
	return m.Called(ctx, token).Error(0)
}

func (m *mockBackend) Upload(ctx context.Context, token string, u client.Upload) (client.StoredDocument, error) {
	args := m.Called(ctx, token, u)
	return args.Get(0).(client.StoredDocument), args.Error(1)
}

func (m *mockBackend) GeneratePdf(ctx context.Context, token, title, author, text string) (client.StoredDocument, error) {
	args := m.Called(ctx, token, title, author, text)
	return args.Get(0).(client.StoredDocument), args.Error(1)
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func loggedIn(t *testing.T, opts ...AdminOption) (*Admin, *mockBackend, *clock) {
	t.Helper()
	backend := new(mockBackend)
	clk := &clock{t: now}
	backend.On("Login", mock.Anything, "admin", "secret").Return(client.Session{Token: "tok", ExpiresIn: 3600}, nil).Once()
	a := NewAdmin(backend, append([]AdminOption{WithAdminClock(clk.now)}, opts...)...)
	require.NoError(t, a.Login(context.Background(), " admin ", "secret"))
	return a, backend, clk
}

func TestAdminRequiresLogin(t *testing.T) {
	backend := new(mockBackend)
	a := NewAdmin(backend)

	_, err := a.Generate(context.Background(), "t", "a", "b")
	assert.ErrorIs(t, err, ErrLoginRequired)
	_, err = a.Upload(context.Background(), "doc.pdf", "t", "a")
	assert.ErrorIs(t, err, ErrLoginRequired)
	assert.False(t, a.LoggedIn())
	assert.ErrorIs(t, a.Login(context.Background(), "", "x"), ErrMissingFields)

	// nothing reached the backend
	backend.AssertExpectations(t)
	assert.Empty(t, backend.Calls)
}

func TestAdminUploadDetectsMimeType(t *testing.T) {
	a, backend, _ := loggedIn(t)
	assert.Equal(t, "admin", a.Name())

	dir := t.TempDir()
	path := filepath.Join(dir, "Lecture Notes.DOCX")
	require.NoError(t, os.WriteFile(path, []byte("PK\x03\x04"), 0o644))

	want := client.Upload{
		FileName: "Lecture Notes.DOCX",
		MimeType: models.MimeDOCX,
		Content:  []byte("PK\x03\x04"),
		Title:    "Lecture",
		Author:   "Speaker",
	}
	backend.On("Upload", mock.Anything, "tok", want).Return(client.StoredDocument{FileName: "Lecture Notes.DOCX"}, nil).Once()

	res, err := a.Upload(context.Background(), path, "Lecture", "Speaker")
	require.NoError(t, err)
	assert.Equal(t, "Lecture Notes.DOCX", res.FileName)

	_, err = a.Upload(context.Background(), filepath.Join(dir, "sheet.xlsx"), "t", "a")
	assert.ErrorIs(t, err, ErrUnsupportedFile)
	backend.AssertExpectations(t)
}

func TestAdminSessionExpiresLocally(t *testing.T) {
	a, backend, clk := loggedIn(t)

	backend.On("GeneratePdf", mock.Anything, "tok", "T", "A", "B").Return(client.StoredDocument{Message: "ok"}, nil).Once()
	_, err := a.Generate(context.Background(), "T", "A", "B")
	require.NoError(t, err)

	clk.t = now.Add(time.Hour)
	_, err = a.Generate(context.Background(), "T", "A", "B")
	assert.ErrorIs(t, err, ErrSessionExpired)
	_, err = a.Generate(context.Background(), "T", "A", "B")
	assert.ErrorIs(t, err, ErrLoginRequired)
	backend.AssertExpectations(t)
}

func TestAdminDropsRejectedSession(t *testing.T) {
	a, backend, _ := loggedIn(t)
	backend.On("GeneratePdf", mock.Anything, "tok", "T", "A", "B").
		Return(client.StoredDocument{}, &client.Error{Action: "generatePdf", Message: "Session expired. Please login again."}).Once()

	_, err := a.Generate(context.Background(), "T", "A", "B")
	require.Error(t, err)
	assert.False(t, a.LoggedIn())
}

func TestAdminSessionFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "intizar", "session.json")
	_, backend, clk := loggedIn(t, WithSessionFile(path))
	_, err := os.Stat(path)
	require.NoError(t, err)

	restored := NewAdmin(backend, WithSessionFile(path), WithAdminClock(clk.now))
	assert.True(t, restored.LoggedIn())
	assert.Equal(t, "admin", restored.Name())

	backend.On("Logout", mock.Anything, "tok").Return(nil).Once()
	require.NoError(t, restored.Logout(context.Background()))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// logging out without a session is a local no-op
	fresh := NewAdmin(backend, WithSessionFile(path))
	assert.False(t, fresh.LoggedIn())
	require.NoError(t, fresh.Logout(context.Background()))
	backend.AssertExpectations(t)
}
