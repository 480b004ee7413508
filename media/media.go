// Package media stores uploaded images and resolves their public URLs.
package media

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"inkpress/common"
)

// MaxUploadSize caps a single image upload.
const MaxUploadSize = 5 << 20

// Storage is a flat key/value blob store.
type Storage interface {
	Save(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

var allowedExt = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

var allowedMime = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// SniffImage checks the extension and the leading bytes of an upload.
// It returns the detected content type.
func SniffImage(filename string, head []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExt[ext] {
		return "", common.Validation("Only JPG, PNG, GIF and WEBP images are supported")
	}
	detected := http.DetectContentType(head)
	if !allowedMime[detected] {
		return "", common.Validation("Upload a valid image. The file you uploaded was either not an image or a corrupted image.")
	}
	return detected, nil
}

// Upload validates an image from a multipart form and stores it under
// dir with a random name. It returns the storage key.
func Upload(ctx context.Context, st Storage, dir string, fh *multipart.FileHeader) (string, error) {
	if fh.Size > MaxUploadSize {
		return "", common.Validation("Image too large (max %d MB)", MaxUploadSize>>20)
	}
	f, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		return "", common.Validation("The submitted file is empty.")
	}
	head = head[:n]

	contentType, err := SniffImage(fh.Filename, head)
	if err != nil {
		return "", err
	}

	key := path.Join(dir, uuid.NewString()+strings.ToLower(filepath.Ext(fh.Filename)))
	body := io.MultiReader(bytes.NewReader(head), f)
	if err := st.Save(ctx, key, body, fh.Size, contentType); err != nil {
		return "", err
	}
	return key, nil
}

// URL resolves key against st, mapping an empty key to nil.
func URL(st Storage, key string) *string {
	if key == "" || st == nil {
		return nil
	}
	u := st.URL(key)
	return &u
}
