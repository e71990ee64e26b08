package api

import (
	"errors"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/ping15/ShortPlayGenerator/internal/api/shared"
)

// MediaHandler serves files below the merge asset directory so local: assets
// can be fetched over HTTP when no object store is available.
type MediaHandler struct {
	base string
}

// NewMediaHandler creates a MediaHandler rooted at base.
func NewMediaHandler(base string) *MediaHandler {
	return &MediaHandler{base: filepath.Clean(base)}
}

// Serve handles GET /media/test/*.
func (h *MediaHandler) Serve(w http.ResponseWriter, r *http.Request) {
	sub, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid asset path")
		return
	}
	sub = strings.TrimLeft(sub, "/")
	if sub == "" || strings.Contains(sub, "..") || strings.HasPrefix(sub, "/") {
		shared.RespondWithError(w, r, http.StatusForbidden, "Path traversal is not allowed")
		return
	}

	full := filepath.Join(h.base, filepath.FromSlash(sub))
	if full != h.base && !strings.HasPrefix(full, h.base+string(filepath.Separator)) {
		shared.RespondWithError(w, r, http.StatusForbidden, "Path traversal is not allowed")
		return
	}

	f, err := os.Open(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			http.NotFound(w, r)
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to open asset", err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
