// Package attachment stores bill attachments on local disk.
package attachment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/hray3182/fakturavakt/internal/models"
	"github.com/jonboulle/clockwork"
)

const uriScheme = "file://"

// FileStore copies attachments into a single directory. It only deletes
// files that live inside that directory.
type FileStore struct {
	dir   string
	clock clockwork.Clock
}

func NewFileStore(dir string, clock clockwork.Clock) (*FileStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve attachment dir: %w", err)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &FileStore{dir: abs, clock: clock}, nil
}

func (s *FileStore) Dir() string {
	return s.dir
}

// Save copies r into the attachment directory and describes the result.
func (s *FileStore) Save(ctx context.Context, billID, name, mimeType string, r io.Reader) (models.Attachment, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return models.Attachment{}, fmt.Errorf("failed to create attachment dir: %w", err)
	}

	id := uuid.NewString()
	base := filepath.Base(strings.TrimSpace(name))
	if base == "." || base == string(filepath.Separator) || base == "" {
		base = id
	}
	if mimeType == "" {
		mimeType = mime.TypeByExtension(strings.ToLower(filepath.Ext(base)))
	}

	path := filepath.Join(s.dir, fmt.Sprintf("%s-%s-%s", billID, id[:8], base))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return models.Attachment{}, fmt.Errorf("failed to create attachment file: %w", err)
	}

	size, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(path)
		return models.Attachment{}, fmt.Errorf("failed to write attachment: %w", err)
	}

	return models.Attachment{
		ID:       id,
		BillID:   billID,
		Name:     base,
		Kind:     KindOf(mimeType, base),
		URI:      uriScheme + path,
		Size:     size,
		MimeType: mimeType,
		AddedAt:  s.clock.Now(),
	}, nil
}

// Import saves a copy of the file at path.
func (s *FileStore) Import(ctx context.Context, billID, path string) (models.Attachment, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.Attachment{}, err
	}
	defer f.Close()
	return s.Save(ctx, billID, filepath.Base(path), "", f)
}

// Remove deletes the attachment's file. Missing files and files outside the
// attachment directory are ignored.
func (s *FileStore) Remove(ctx context.Context, a models.Attachment) error {
	if !strings.HasPrefix(a.URI, uriScheme) {
		return nil
	}
	path := filepath.Clean(strings.TrimPrefix(a.URI, uriScheme))
	if filepath.Dir(path) != s.dir {
		return nil
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove attachment %s: %w", a.ID, err)
	}
	return nil
}

// KindOf classifies an attachment by mime type, falling back to the file
// extension.
func KindOf(mimeType, name string) models.AttachmentKind {
	mimeType = strings.ToLower(mimeType)
	switch {
	case strings.Contains(mimeType, "pdf"):
		return models.AttachmentPDF
	case strings.HasPrefix(mimeType, "image/"):
		return models.AttachmentImage
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return models.AttachmentPDF
	case ".jpg", ".jpeg", ".png", ".heic", ".webp", ".gif":
		return models.AttachmentImage
	}
	return models.AttachmentFile
}
