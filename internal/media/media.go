// Package media stores uploaded page images under content-addressed names.
package media

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"

	dErrors "findiff/pkg/domain-errors"
	"findiff/pkg/requestcontext"
)

var imageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".webp"}

// Store writes files below root. Names are md5(content)+ext, so saving the
// same bytes twice yields one file.
type Store struct {
	root      string
	maxBytes  int64
	urlPrefix string
	logger    *slog.Logger
}

type Option func(*Store)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithURLPrefix sets the public prefix URL returns for stored names.
func WithURLPrefix(prefix string) Option {
	return func(s *Store) {
		s.urlPrefix = prefix
	}
}

func New(root string, maxBytes int64, opts ...Option) (*Store, error) {
	if root == "" {
		return nil, errors.New("media root is required")
	}
	if maxBytes <= 0 {
		return nil, errors.New("media size limit must be positive")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create media root: %w", err)
	}
	s := &Store{root: root, maxBytes: maxBytes, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// MaxBytes is the upload limit, used by handlers to bound multipart parsing.
func (s *Store) MaxBytes() int64 {
	return s.maxBytes
}

// Save copies r into the store and returns the stored name relative to root.
func (s *Store) Save(ctx context.Context, filename string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !slices.Contains(imageExtensions, ext) {
		return "", dErrors.New(dErrors.CodeValidation, "only image uploads are accepted")
	}

	tmp, err := os.CreateTemp(s.root, ".upload-*")
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to store upload")
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	h := md5.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to store upload")
	}
	if n == 0 {
		return "", dErrors.New(dErrors.CodeValidation, "upload is empty")
	}
	if n > s.maxBytes {
		return "", dErrors.New(dErrors.CodeValidation, fmt.Sprintf("upload exceeds %d bytes", s.maxBytes))
	}
	if err := sniffImage(tmp); err != nil {
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to store upload")
	}

	name := hex.EncodeToString(h.Sum(nil)) + ext
	dst := filepath.Join(s.root, name)
	if _, err := os.Stat(dst); err == nil {
		s.logger.DebugContext(ctx, "media already stored",
			"name", name,
			"request_id", requestcontext.RequestID(ctx),
		)
		return name, nil
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to store upload")
	}
	s.logger.InfoContext(ctx, "media stored",
		"name", name,
		"bytes", n,
		"request_id", requestcontext.RequestID(ctx),
	)
	return name, nil
}

// URL returns the public address of a stored name.
func (s *Store) URL(name string) string {
	return s.urlPrefix + name
}

// Handler serves stored files. Mount it under the URL prefix.
func (s *Store) Handler() http.Handler {
	return http.StripPrefix(strings.TrimSuffix(s.urlPrefix, "/"), http.FileServer(http.Dir(s.root)))
}

func sniffImage(f *os.File) error {
	head := make([]byte, 512)
	n, err := f.ReadAt(head, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store upload")
	}
	ct := http.DetectContentType(head[:n])
	if !strings.HasPrefix(ct, "image/") {
		return dErrors.New(dErrors.CodeValidation, "upload is not an image")
	}
	return nil
}
