package endpoints

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/objectrekognition/rekognition-server/pkg/server"
)

// RegisterStaticFiles serves the frontend build in Config.StaticDir.
// Unknown paths fall back to index.html so client-side routes resolve.
func RegisterStaticFiles(srv *server.Server) {
	dir := srv.Config.StaticDir
	if dir == "" {
		return
	}

	files := http.FileServer(http.Dir(dir))
	srv.Router.PathPrefix("/").Methods("GET", "HEAD").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := filepath.Join(dir, filepath.FromSlash(path.Clean("/"+r.URL.Path)))
		if info, err := os.Stat(name); err != nil || (info.IsDir() && !hasIndex(name)) {
			if strings.HasPrefix(r.URL.Path, "/auth/") || strings.HasPrefix(r.URL.Path, "/images/") {
				http.NotFound(w, r)
				return
			}
			http.ServeFile(w, r, filepath.Join(dir, "index.html"))
			return
		}
		files.ServeHTTP(w, r)
	})
}

func hasIndex(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, "index.html"))
	return err == nil
}
