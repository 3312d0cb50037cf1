// Package static embeds the site's stylesheets, scripts and images.
package static

import (
	"embed"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

//go:embed css/*.css js/*.js img/*
var assets embed.FS

// FS exposes the embedded static assets.
func FS() fs.FS {
	return assets
}

// HTTP returns an http.FileSystem backed by the embedded assets.
func HTTP() http.FileSystem {
	return http.FS(assets)
}

// Has reports whether the given relative path exists in the embedded assets.
func Has(name string) bool {
	name = strings.TrimPrefix(name, "/")
	f, err := assets.Open(name)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}

// CopyAll writes every asset from src into dest, keeping the relative layout,
// and returns the number of bytes written. A nil src copies the embedded set.
func CopyAll(src fs.FS, dest string) (int64, error) {
	if src == nil {
		src = assets
	}
	var written int64
	err := fs.WalkDir(src, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		data, err := fs.ReadFile(src, path)
		if err != nil {
			return err
		}
		if err := WriteFile(filepath.Join(dest, filepath.FromSlash(path)), data); err != nil {
			return err
		}
		written += int64(len(data))
		return nil
	})
	return written, err
}

// WriteFile writes data to path, creating parent directories as needed.
func WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil { //nolint:gosec // standard directory permissions
		return err
	}
	return os.WriteFile(path, data, 0o644) //nolint:gosec // standard file permissions
}
