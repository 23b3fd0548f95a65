// Package artifacts stores proof-of-payment images on the local filesystem.
// The returned reference is an opaque path the review surface can re-resolve
// to show the image to the admin.
package artifacts

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	pkgerrors "github.com/fxmediacalicut-cloud/telegrambot/pkg/errors"
	"github.com/google/uuid"
)

// Store writes and re-reads proof artifacts under a single directory.
type Store struct {
	dir string
}

// NewStore ensures the artifact directory exists.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "artifact directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create artifact directory")
	}
	return &Store{dir: dir}, nil
}

// Save persists the image content and returns its stable reference. The name
// embeds the uploader for operator forensics but is otherwise opaque.
func (s *Store) Save(ctx context.Context, userID int64, r io.Reader) (string, error) {
	name := fmt.Sprintf("%d_%s.jpg", userID, uuid.NewString())
	path := filepath.Join(s.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create artifact file")
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write artifact content")
	}
	if err := f.Close(); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "flush artifact file")
	}
	return path, nil
}

// Open re-resolves a previously returned reference.
func (s *Store) Open(ref string) (io.ReadCloser, error) {
	f, err := os.Open(ref)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "artifact not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "open artifact")
	}
	return f, nil
}
