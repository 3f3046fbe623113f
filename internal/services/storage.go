package services

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// StoredFile points at a file written below the upload root. Name is relative
// to the root and is what gets persisted; Path is absolute on this host.
type StoredFile struct {
	Name string
	Path string
}

// StorageService keeps uploads grouped by owner (a subject id for CVs, an
// interview id for spoken answers) so one interview's artifacts can be found
// and removed together.
type StorageService interface {
	SaveUpload(file *multipart.FileHeader, owner, kind string, allowedExt ...string) (*StoredFile, error)
	SaveBytes(data []byte, owner, kind, ext string) (*StoredFile, error)
	Path(name string) string
	Delete(name string) error
	EnsureUploadDir() error
}

type storageService struct {
	root string
}

func NewStorageService(uploadPath string) StorageService {
	return &storageService{root: uploadPath}
}

func (s *storageService) EnsureUploadDir() error {
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return fmt.Errorf("failed to create upload directory: %w", err)
	}
	return nil
}

func (s *storageService) SaveUpload(file *multipart.FileHeader, owner, kind string, allowedExt ...string) (*StoredFile, error) {
	ext := strings.ToLower(filepath.Ext(file.Filename))
	if len(allowedExt) > 0 && !containsExt(allowedExt, ext) {
		return nil, fmt.Errorf("invalid file extension %q, expected one of %s", ext, strings.Join(allowedExt, ", "))
	}

	src, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer src.Close()

	return s.store(src, owner, kind, ext)
}

func (s *storageService) SaveBytes(data []byte, owner, kind, ext string) (*StoredFile, error) {
	return s.store(bytes.NewReader(data), owner, kind, ext)
}

func (s *storageService) store(src io.Reader, owner, kind, ext string) (*StoredFile, error) {
	if owner == "" || strings.ContainsAny(owner, `/\`) || owner == ".." {
		return nil, fmt.Errorf("invalid storage owner %q", owner)
	}

	dir := filepath.Join(s.root, kind, owner)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s directory: %w", kind, err)
	}

	name := filepath.Join(kind, owner, uuid.New().String()+ext)
	path := filepath.Join(s.root, name)

	dst, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create destination file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to write %s file: %w", kind, err)
	}

	return &StoredFile{Name: name, Path: path}, nil
}

func (s *storageService) Path(name string) string {
	return filepath.Join(s.root, name)
}

func (s *storageService) Delete(name string) error {
	if err := os.Remove(s.Path(name)); err != nil {
		return fmt.Errorf("failed to delete %s: %w", name, err)
	}
	return nil
}

func containsExt(allowed []string, ext string) bool {
	for _, a := range allowed {
		if strings.EqualFold(a, ext) {
			return true
		}
	}
	return false
}
