package utils

import (
    "net/url"
    "path"
    "path/filepath"
    "strings"

    "github.com/google/uuid"
)

// FilesRoute is where uploaded files are served from.
const FilesRoute = "/files"

// NewFileKey returns a collision-free storage key that keeps the original
// extension (lower-cased) so browsers pick a sensible viewer.
func NewFileKey(originalName string) string {
    ext := strings.ToLower(filepath.Ext(filepath.Base(originalName)))
    if len(ext) > 10 || strings.ContainsAny(ext, `/\ `) {
        ext = ""
    }
    return uuid.NewString() + ext
}

// ValidFileKey rejects keys that could escape the upload directory.
func ValidFileKey(key string) bool {
    if key == "" || key == "." || key == ".." {
        return false
    }
    return !strings.ContainsAny(key, `/\`) && filepath.Base(key) == key
}

// FileURL builds the public URL of a stored file. With an empty base the
// URL is host-relative.
func FileURL(base, key string) string {
    p := path.Join(FilesRoute, url.PathEscape(key))
    if base == "" {
        return p
    }
    return strings.TrimRight(base, "/") + p
}

// FilePath resolves a key under the upload directory.
func FilePath(dir, key string) string {
    return filepath.Join(dir, filepath.Base(key))
}
