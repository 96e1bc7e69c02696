package api

import (
	"net/http"
	"path"
	"strings"
)

const indexFile = "index.html"

// staticMiddleware serves files below root for GET and HEAD requests.
// Requests that do not resolve to a file fall through to next. Directories
// are answered with their index.html when one exists; dot-files are never
// served.
func staticMiddleware(root string) func(http.Handler) http.Handler {
	fs := http.Dir(root)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}
			if serveFile(w, r, fs, r.URL.Path) {
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func serveFile(w http.ResponseWriter, r *http.Request, fs http.FileSystem, name string) bool {
	name = path.Clean("/" + name)
	for _, segment := range strings.Split(name, "/") {
		if strings.HasPrefix(segment, ".") {
			return false
		}
	}

	f, err := fs.Open(name)
	if err != nil {
		return false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return false
	}
	if !info.IsDir() {
		http.ServeContent(w, r, info.Name(), info.ModTime(), f)
		return true
	}

	index, err := fs.Open(path.Join(name, indexFile))
	if err != nil {
		return false
	}
	defer index.Close()

	indexInfo, err := index.Stat()
	if err != nil || indexInfo.IsDir() {
		return false
	}
	http.ServeContent(w, r, indexInfo.Name(), indexInfo.ModTime(), index)
	return true
}

// downloadHandler exposes dir below prefix. Missing files are answered by
// notFound with the URL the client requested.
func downloadHandler(prefix, dir string, notFound http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		original := r.URL
		restore := http.HandlerFunc(func(w http.ResponseWriter, stripped *http.Request) {
			r2 := stripped.Clone(stripped.Context())
			r2.URL = original
			notFound.ServeHTTP(w, r2)
		})
		http.StripPrefix(prefix, staticMiddleware(dir)(restore)).ServeHTTP(w, r)
	})
}
