// Package httpapi carries the JSON conventions shared by the REST
// controllers: one envelope shape for errors and one writer for
// success payloads.
package httpapi

import (
	"encoding/json"
	"net/http"
)

// ErrorEnvelope is the wire shape of every API error. Code is a stable
// machine-readable identifier; Message is for humans and may change
// between releases.
type ErrorEnvelope struct {
	Message string            `json:"message"`
	Code    string            `json:"code"`
	Meta    map[string]string `json:"meta,omitempty"`
}

// WriteJSON encodes payload before touching the response so an encoding
// failure can still produce a 500 instead of a truncated body. A nil
// payload writes the status line only.
func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	if w == nil {
		return nil
	}
	w.Header().Set("Content-Type", "application/json")
	if payload == nil {
		w.WriteHeader(status)
		return nil
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "encoding response failed", http.StatusInternalServerError)
		return err
	}
	w.WriteHeader(status)
	_, err = w.Write(buf)
	return err
}

// WriteError responds with an ErrorEnvelope carrying the given code and
// message. Meta is optional request-scoped context, usually the request
// id and path.
func WriteError(w http.ResponseWriter, status int, code, message string, meta map[string]string) error {
	return WriteJSON(w, status, ErrorEnvelope{
		Message: message,
		Code:    code,
		Meta:    meta,
	})
}
