package server

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"
)

func (s *Server) handleCorpusPage(w http.ResponseWriter, r *http.Request) {
	s.logger.Debug("corpus page", "treebank_id", mux.Vars(r)["treebank_id"])
	s.serveFile(w, r, "html", "annotator.html")
}

// page serves a fixed html page.
func (s *Server) page(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.serveFile(w, r, "html", name)
	}
}

// asset serves files named by the {file} route variable from dir.
func (s *Server) asset(dir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.serveFile(w, r, dir, mux.Vars(r)["file"])
	}
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, dir, name string) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, filepath.Join(s.staticDir, dir, name))
}
