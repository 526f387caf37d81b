package imagestore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	KindOriginal  = "original"
	KindPredicted = "predicted"
)

// ImageStore manages the local image layout: <base>/original for inputs and
// <base>/predicted for annotated outputs. File names are <uid><ext>, so both
// paths of a prediction are known before detection runs.
type ImageStore struct {
	basePath string
}

func New(basePath string) (*ImageStore, error) {
	for _, kind := range []string{KindOriginal, KindPredicted} {
		if err := os.MkdirAll(filepath.Join(basePath, kind), 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}
	return &ImageStore{basePath: basePath}, nil
}

// Paths returns the original and predicted file paths for a prediction uid.
func (s *ImageStore) Paths(uid, ext string) (originalPath, predictedPath string) {
	if ext == "" {
		ext = ".jpg"
	}
	filename := uid + ext
	return filepath.Join(s.basePath, KindOriginal, filename),
		filepath.Join(s.basePath, KindPredicted, filename)
}

// SaveOriginal writes an uploaded image under the original directory and
// returns both paths for the prediction.
func (s *ImageStore) SaveOriginal(src io.Reader, uid, filename string) (originalPath, predictedPath string, err error) {
	originalPath, predictedPath = s.Paths(uid, filepath.Ext(filename))

	dst, err := os.Create(originalPath)
	if err != nil {
		return "", "", fmt.Errorf("failed to create file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(originalPath)
		return "", "", fmt.Errorf("failed to save file: %w", err)
	}

	return originalPath, predictedPath, nil
}

// ValidKind reports whether kind names one of the two image directories.
func ValidKind(kind string) bool {
	return kind == KindOriginal || kind == KindPredicted
}

// Open returns the named image for reading. The path is confined to the
// store's directories.
func (s *ImageStore) Open(kind, filename string) (io.ReadSeekCloser, error) {
	if !ValidKind(kind) {
		return nil, fmt.Errorf("invalid image type: %s", kind)
	}

	cleanName := filepath.Clean(filename)
	if strings.Contains(cleanName, "..") || strings.ContainsRune(cleanName, filepath.Separator) {
		return nil, fmt.Errorf("invalid path")
	}

	file, err := os.Open(filepath.Join(s.basePath, kind, cleanName))
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

// OpenPath opens an absolute image path previously produced by this store.
func (s *ImageStore) OpenPath(path string) (io.ReadSeekCloser, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}
