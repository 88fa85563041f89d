package storage

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"mime/multipart"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// MediaStore persists uploaded evidence images on local disk. Files are
// served back under /uploads by the HTTP server.
type MediaStore struct {
	dir string
	now func() time.Time
}

func NewMediaStore(dir string) (*MediaStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create uploads dir: %w", err)
	}
	return &MediaStore{dir: dir, now: time.Now}, nil
}

func (s *MediaStore) Dir() string {
	return s.dir
}

// imageExts are the extensions kept from the uploaded name; anything else is
// stored as .jpg so /uploads never serves active content.
var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// filename follows <field>-<unix ms>-<random><ext>.
func (s *MediaStore) filename(field, original string) string {
	ext := strings.ToLower(filepath.Ext(original))
	if !imageExts[ext] {
		ext = ".jpg"
	}
	return fmt.Sprintf("%s-%d-%d%s", field, s.now().UnixMilli(), rand.Int63n(1e9), ext)
}

// Save copies the uploaded file into the store and returns its stored name.
// Existing files are never overwritten.
func (s *MediaStore) Save(field string, fh *multipart.FileHeader) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	for attempt := 0; attempt < 3; attempt++ {
		name := s.filename(field, fh.Filename)
		dst, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create media file: %w", err)
		}

		if _, err := io.Copy(dst, src); err != nil {
			dst.Close()
			os.Remove(dst.Name())
			return "", fmt.Errorf("failed to write media file: %w", err)
		}
		if err := dst.Close(); err != nil {
			os.Remove(dst.Name())
			return "", fmt.Errorf("failed to write media file: %w", err)
		}
		return name, nil
	}
	return "", fmt.Errorf("failed to allocate a unique media file name")
}

// Remove deletes a stored file. Missing files are not an error.
func (s *MediaStore) Remove(name string) error {
	if name == "" || name != filepath.Base(name) {
		return fmt.Errorf("invalid media file name %q", name)
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// NameFromURL returns the stored file name referenced by a media URL such as
// http://host/uploads/mediaFile-1-2.jpg, or "" if the URL does not point into
// the uploads directory.
func NameFromURL(mediaURL string) string {
	u, err := url.Parse(mediaURL)
	if err != nil {
		return ""
	}
	dir, name := path.Split(u.Path)
	if !strings.HasSuffix(dir, "/uploads/") || name == "" {
		return ""
	}
	return name
}
