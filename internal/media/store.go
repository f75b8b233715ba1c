// Package media stores alert attachments on local disk and classifies
// them for the alert payload.
package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"eventguard.org/internal/ids"
)

// ErrUnsupportedType rejects uploads outside the image/video/audio
// extension allow-list.
var ErrUnsupportedType = errors.New("media: unsupported file type")

var kindByExt = map[string]string{
	".jpg":  "image",
	".jpeg": "image",
	".png":  "image",
	".gif":  "image",
	".webp": "image",
	".mp4":  "video",
	".webm": "video",
	".mov":  "video",
	".mp3":  "audio",
	".wav":  "audio",
	".ogg":  "audio",
	".m4a":  "audio",
}

// Store writes uploads under a single directory and serves them back by
// URL path. File names get a fresh id prefix so uploads never collide
// and client-chosen names never reach the filesystem untouched.
type Store struct {
	dir       string
	publicDir string
}

// NewStore ensures the directory exists and returns a store over it.
// publicDir is the URL prefix under which the files are served.
func NewStore(dir, publicDir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("media: create upload dir: %w", err)
	}
	return &Store{dir: dir, publicDir: strings.TrimSuffix(publicDir, "/")}, nil
}

// Kind classifies a file name into an alert media kind.
func Kind(filename string) (string, error) {
	kind, ok := kindByExt[strings.ToLower(filepath.Ext(filename))]
	if !ok {
		return "", ErrUnsupportedType
	}
	return kind, nil
}

// Save persists one upload and returns its public URL path and media
// kind.
func (s *Store) Save(filename string, r io.Reader) (url, kind string, err error) {
	kind, err = Kind(filename)
	if err != nil {
		return "", "", err
	}

	name := ids.New() + strings.ToLower(filepath.Ext(filename))
	f, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return "", "", fmt.Errorf("media: create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(f.Name())
		return "", "", fmt.Errorf("media: write file: %w", err)
	}
	return s.publicDir + "/" + name, kind, nil
}

// Open returns the stored file for a previously issued URL path. The
// name is flattened to its base to keep lookups inside the directory.
func (s *Store) Open(urlPath string) (*os.File, error) {
	name := filepath.Base(urlPath)
	return os.Open(filepath.Join(s.dir, name))
}
