package attachment

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hray3182/fakturavakt/internal/models"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_SaveAndRemove(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	s, err := NewFileStore(filepath.Join(t.TempDir(), "attachments"), clockwork.NewFakeClockAt(now))
	require.NoError(t, err)

	a, err := s.Save(ctx, "bill-1", "faktura.pdf", "", strings.NewReader("%PDF-1.4"))
	require.NoError(t, err)

	assert.Equal(t, "bill-1", a.BillID)
	assert.Equal(t, "faktura.pdf", a.Name)
	assert.Equal(t, models.AttachmentPDF, a.Kind)
	assert.Equal(t, int64(8), a.Size)
	assert.Equal(t, now, a.AddedAt)
	require.True(t, strings.HasPrefix(a.URI, "file://"))

	path := strings.TrimPrefix(a.URI, "file://")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))

	require.NoError(t, s.Remove(ctx, a))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, s.Remove(ctx, a), "removing twice is fine")
}

func TestFileStore_SameNameDoesNotCollide(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	a, err := s.Save(ctx, "b", "scan.jpg", "image/jpeg", strings.NewReader("one"))
	require.NoError(t, err)
	b, err := s.Save(ctx, "b", "scan.jpg", "image/jpeg", strings.NewReader("two"))
	require.NoError(t, err)

	assert.NotEqual(t, a.URI, b.URI)
	assert.Equal(t, models.AttachmentImage, b.Kind)
}

func TestFileStore_NameIsSanitized(t *testing.T) {
	s, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	a, err := s.Save(context.Background(), "b", "../../etc/passwd", "", strings.NewReader("x"))
	require.NoError(t, err)

	assert.Equal(t, "passwd", a.Name)
	assert.Equal(t, s.Dir(), filepath.Dir(strings.TrimPrefix(a.URI, "file://")))
}

func TestFileStore_RemoveIgnoresForeignFiles(t *testing.T) {
	s, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	outside := filepath.Join(t.TempDir(), "keep.txt")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o644))

	require.NoError(t, s.Remove(context.Background(), models.Attachment{URI: "file://" + outside}))
	require.NoError(t, s.Remove(context.Background(), models.Attachment{URI: "content://media/1"}))

	_, err = os.Stat(outside)
	assert.NoError(t, err)
}

func TestFileStore_Import(t *testing.T) {
	src := filepath.Join(t.TempDir(), "kvitto.png")
	require.NoError(t, os.WriteFile(src, []byte("png"), 0o644))
	s, err := NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	a, err := s.Import(context.Background(), "b", src)
	require.NoError(t, err)

	assert.Equal(t, "kvitto.png", a.Name)
	assert.Equal(t, models.AttachmentImage, a.Kind)
	assert.Equal(t, "image/png", a.MimeType)
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, models.AttachmentPDF, KindOf("application/pdf", "x"))
	assert.Equal(t, models.AttachmentImage, KindOf("", "photo.HEIC"))
	assert.Equal(t, models.AttachmentFile, KindOf("text/plain", "notes.txt"))
}
