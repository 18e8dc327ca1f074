package server

import (
	"encoding/json"
	"net/http"
)

var (
	onSuccess = map[string]string{"status": "success"}
	onFailure = map[string]string{"status": "failure"}
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
