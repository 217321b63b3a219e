// Package web serves the browser client for the session API.
package web

import (
	"embed"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

//go:embed all:dist
var distFS embed.FS

// DistFS returns the embedded dist/ filesystem with the "dist" prefix stripped.
func DistFS() (fs.FS, error) {
	return fs.Sub(distFS, "dist")
}

// Handler serves the embedded client. Paths without a file extension fall
// back to index.html so the page can own its routes; missing assets are 404s.
// API paths are never answered here.
func Handler() (http.Handler, error) {
	sub, err := DistFS()
	if err != nil {
		return nil, err
	}
	fileServer := http.FileServerFS(sub)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := path.Clean(r.URL.Path)
		if strings.HasPrefix(p, "/api/") {
			http.NotFound(w, r)
			return
		}
		if p == "/" {
			fileServer.ServeHTTP(w, r)
			return
		}

		p = strings.TrimPrefix(p, "/")
		if _, err := fs.Stat(sub, p); err == nil {
			fileServer.ServeHTTP(w, r)
			return
		}
		if strings.Contains(p, ".") {
			http.NotFound(w, r)
			return
		}

		r.URL.Path = "/"
		fileServer.ServeHTTP(w, r)
	}), nil
}
