package server

import (
	"embed"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"strings"

	apperrors "github.com/jrsteele09/go-user-admin/internal/errors"
)

//go:embed static/*
var staticFiles embed.FS

var staticFS = mustSub(staticFiles, "static")

func mustSub(fsys fs.FS, dir string) fs.FS {
	subFS, err := fs.Sub(fsys, dir)
	if err != nil {
		panic("Failed to create sub filesystem: " + err.Error())
	}
	return subFS
}

// StreamFile writes an embedded static asset. Unknown names return ErrNotFound.
func StreamFile(w http.ResponseWriter, r *http.Request, fileName string) error {
	if !fs.ValidPath(fileName) {
		return apperrors.Wrapf(apperrors.ErrNotFound, "[server StreamFile] invalid asset path %q", fileName)
	}
	data, err := fs.ReadFile(staticFS, fileName)
	if err != nil {
		return apperrors.Wrapf(apperrors.ErrNotFound, "[server StreamFile] %s: %v", fileName, err)
	}

	ctype := mime.TypeByExtension(strings.ToLower(path.Ext(fileName)))
	if ctype == "" {
		ctype = http.DetectContentType(data)
	}
	if strings.HasPrefix(ctype, "text/") && !strings.Contains(strings.ToLower(ctype), "charset=") {
		ctype += "; charset=utf-8"
	}
	w.Header().Set("Content-Type", ctype)
	if r.Method == http.MethodHead {
		return nil
	}
	if _, err := w.Write(data); err != nil {
		return apperrors.Wrapf(err, "[server StreamFile] failed to write %s", fileName)
	}
	return nil
}
