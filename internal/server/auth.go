package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"annotatrix/internal/annotatrix"
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Load(r)
	routeID := mux.Vars(r)["treebank_id"]

	step, err := s.binder.BeginLogin(sess, routeID)
	if err != nil {
		s.logger.Warn("login: unusable treebank id", "treebank_id", routeID, "error", err)
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	s.saveSession(w, sess)
	http.Redirect(w, r, step.RedirectURL, http.StatusFound)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Load(r)

	if err := s.binder.Logout(r.Context(), sess); err != nil {
		s.logger.Error("logout failed", "treebank_id", sess.TreebankID, "error", err)
	}
	s.saveSession(w, sess)

	treebankID := sess.TreebankID
	if treebankID == "" {
		treebankID = mux.Vars(r)["treebank_id"]
	}
	http.Redirect(w, r, annotatrix.CorpusViewPath(treebankID), http.StatusFound)
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Load(r)
	next := safeNext(r.URL.Query().Get("next"))

	if reason := r.FormValue("error"); reason != "" {
		s.logger.Error("oauth: provider refused authorization", "error", reason)
		sess.OAuthState = ""
		s.saveSession(w, sess)
		http.Redirect(w, r, next, http.StatusFound)
		return
	}

	err := s.binder.CompleteLogin(r.Context(), sess, r.FormValue("code"), r.FormValue("state"))
	s.metrics.RecordLogin(err)
	s.saveSession(w, sess)

	switch {
	case err == nil:
		http.Redirect(w, r, annotatrix.CorpusViewPath(sess.TreebankID), http.StatusFound)
	case errors.Is(err, annotatrix.ErrSessionState):
		s.logger.Error("oauth callback without login state", "error", err)
		http.Redirect(w, r, next, http.StatusFound)
	default:
		s.logger.Error("oauth login failed", "treebank_id", sess.TreebankID, "error", err)
		http.Redirect(w, r, annotatrix.CorpusViewPath(sess.TreebankID), http.StatusFound)
	}
}

// safeNext keeps redirects on this site.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	return next
}
