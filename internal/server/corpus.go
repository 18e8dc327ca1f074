package server

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"annotatrix/internal/annotatrix"
)

// uploadMemory is how much of a multipart upload is kept in memory before
// spilling to temporary files.
const uploadMemory = 8 << 20

type loadResponse struct {
	Sentences []json.RawMessage `json:"sentences"`
	Max       int               `json:"max"`
	Filename  string            `json:"filename"`
	GUI       json.RawMessage   `json:"gui"`
	Labeler   json.RawMessage   `json:"labeler"`
	Username  *string           `json:"username"`
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if s.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	}
	if err := r.ParseMultipartForm(uploadMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		s.logger.Warn("save: unreadable form", "error", err)
		writeJSON(w, http.StatusOK, onFailure)
		return
	}
	if len(r.PostForm) == 0 {
		s.logger.Warn("save: no form received")
		writeJSON(w, http.StatusOK, onFailure)
		return
	}

	err := s.gateway.Save(r.Context(), r.PostForm.Get("treebank_id"), []byte(r.PostForm.Get("state")))
	s.metrics.RecordCorpusOp("save", err)
	if err != nil {
		s.logger.Error("save failed", "treebank_id", r.PostForm.Get("treebank_id"), "error", err)
		writeJSON(w, http.StatusOK, onFailure)
		return
	}
	writeJSON(w, http.StatusOK, onSuccess)
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	treebankID := vars["treebank_id"]

	var index *int
	if raw, ok := vars["num"]; ok {
		num, err := strconv.Atoi(raw)
		if err != nil || num < 0 {
			s.logger.Warn("load: bad sentence index", "treebank_id", treebankID, "num", raw)
			s.metrics.RecordCorpusOp("load", &annotatrix.ValidationError{Field: "num", Reason: "not a sentence index"})
			writeJSON(w, http.StatusOK, onFailure)
			return
		}
		index = &num
	}

	corpus, err := s.gateway.Load(r.Context(), treebankID, index)
	s.metrics.RecordCorpusOp("load", err)
	if err != nil {
		if !errors.Is(err, annotatrix.ErrNotFound) {
			s.logger.Error("load failed", "treebank_id", treebankID, "error", err)
		}
		writeJSON(w, http.StatusOK, onFailure)
		return
	}

	sess := s.sessions.Load(r)
	before := *sess
	var username *string
	if name := s.binder.Username(r.Context(), sess); name != "" {
		username = &name
	}
	if *sess != before {
		s.saveSession(w, sess)
	}

	writeJSON(w, http.StatusOK, loadResponse{
		Sentences: corpus.Sentences,
		Max:       corpus.Max,
		Filename:  corpus.Filename,
		GUI:       corpus.GUI,
		Labeler:   corpus.Labeler,
		Username:  username,
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	treebankID := r.URL.Query().Get("treebank_id")
	if treebankID == "" {
		s.logger.Warn("download: no args received")
		writeJSON(w, http.StatusOK, map[string]string{"corpus": "something went wrong"})
		return
	}

	dl, err := s.gateway.Download(r.Context(), treebankID)
	s.metrics.RecordCorpusOp("download", err)
	if err != nil {
		if !errors.Is(err, annotatrix.ErrNotFound) {
			s.logger.Error("download failed", "treebank_id", treebankID, "error", err)
		}
		writeJSON(w, http.StatusOK, map[string]string{"corpus": "something went wrong"})
		return
	}
	defer dl.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": dl.Name}))
	http.ServeContent(w, r, dl.Name, time.Time{}, dl.File)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusOK, "unable to GET /annotatrix/upload")
		return
	}

	if key := clientKey(r); !s.uploads.Allow(key) {
		s.logger.Warn("upload: rate limit exceeded", "client", key)
		writeError(w, http.StatusTooManyRequests, "too many uploads, try again later")
		return
	}

	if s.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	}
	if err := r.ParseMultipartForm(uploadMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.logger.Warn("upload: file too large", "limit", tooLarge.Limit)
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		s.logger.Warn("upload: unreadable form", "error", err)
		writeError(w, http.StatusOK, "no file received")
		return
	}
	defer r.MultipartForm.RemoveAll()

	var upload *annotatrix.UploadFile
	if file, header, err := r.FormFile("file"); err == nil {
		defer file.Close()
		upload = &annotatrix.UploadFile{Filename: header.Filename, Content: file}
	}

	result, err := s.gateway.Upload(r.Context(), upload)
	s.metrics.RecordCorpusOp("upload", err)
	if err != nil {
		s.logger.Error("upload failed", "error", err)
		writeError(w, http.StatusOK, uploadErrorMessage(err))
		return
	}

	http.Redirect(w, r, result.RedirectURL, http.StatusFound)
}

// uploadErrorMessage prefers the converter's own diagnostic.
func uploadErrorMessage(err error) string {
	var toolErr *annotatrix.ExternalToolError
	if errors.As(err, &toolErr) && toolErr.Output != "" {
		return toolErr.Output
	}
	var validationErr *annotatrix.ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Reason
	}
	return err.Error()
}

func (s *Server) handleRunning(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "running"})
}

func (s *Server) handleNewTreebank(w http.ResponseWriter, r *http.Request) {
	id, view := s.gateway.NewTreebank()
	s.logger.Debug("new treebank", "treebank_id", id)
	http.Redirect(w, r, view, http.StatusFound)
}
