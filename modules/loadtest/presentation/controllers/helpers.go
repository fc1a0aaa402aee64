// Package controllers is the HTTP facade of the load module: REST
// controllers for the catalog and run lifecycle plus the WebSocket
// bridge onto the metric stream.
package controllers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/unhackeddev/nfury/modules/loadtest/domain/endpoint"
	"github.com/unhackeddev/nfury/modules/loadtest/domain/project"
	"github.com/unhackeddev/nfury/modules/loadtest/domain/run"
	"github.com/unhackeddev/nfury/modules/loadtest/engine"
	"github.com/unhackeddev/nfury/modules/loadtest/infrastructure/persistence"
	"github.com/unhackeddev/nfury/modules/loadtest/services"
	"github.com/unhackeddev/nfury/pkg/configuration"
	"github.com/unhackeddev/nfury/pkg/constants"
	"github.com/unhackeddev/nfury/pkg/httpapi"
)

func ensureRequestID(r *http.Request) string {
	conf := configuration.Use()
	v := strings.TrimSpace(r.Header.Get(conf.RequestIDHeader))
	if v != "" {
		return v
	}
	v = uuid.NewString()
	r.Header.Set(conf.RequestIDHeader, v)
	return v
}

func decodeJSON(body io.ReadCloser, out any) error {
	defer func() { _ = body.Close() }()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	_ = httpapi.WriteJSON(w, status, payload)
}

func writeAPIError(w http.ResponseWriter, status int, requestID, code, message string) {
	meta := map[string]string{}
	if requestID != "" {
		meta["request_id"] = requestID
	}
	_ = httpapi.WriteError(w, status, code, message, meta)
}

// validateStruct runs the shared validator and flattens failures into a
// field to constraint map suitable for the error envelope's meta.
func validateStruct(v any) map[string]string {
	err := constants.Validate.Struct(v)
	if err == nil {
		return nil
	}
	fields := map[string]string{}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
	} else {
		fields["body"] = err.Error()
	}
	return fields
}

func writeValidationError(w http.ResponseWriter, requestID string, fields map[string]string) {
	meta := map[string]string{}
	if requestID != "" {
		meta["request_id"] = requestID
	}
	for field, tag := range fields {
		meta[field] = tag
	}
	_ = httpapi.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "request validation failed", meta)
}

// writeDomainError maps service and domain failures onto HTTP statuses:
// the busy slot is a conflict, lookup misses are 404, bad run
// configuration and bad archives are the caller's fault.
func writeDomainError(w http.ResponseWriter, requestID string, err error) {
	switch {
	case errors.Is(err, services.ErrRunInProgress):
		writeAPIError(w, http.StatusConflict, requestID, "RUN_IN_PROGRESS", err.Error())
	case errors.Is(err, project.ErrNotFound),
		errors.Is(err, endpoint.ErrNotFound),
		errors.Is(err, run.ErrNotFound):
		writeAPIError(w, http.StatusNotFound, requestID, "NOT_FOUND", err.Error())
	case engine.IsValidation(err):
		writeAPIError(w, http.StatusBadRequest, requestID, "INVALID_RUN_CONFIG", err.Error())
	case errors.Is(err, persistence.ErrMissingProjectName),
		errors.Is(err, persistence.ErrMalformedArchive):
		writeAPIError(w, http.StatusBadRequest, requestID, "INVALID_ARCHIVE", err.Error())
	default:
		writeAPIError(w, http.StatusInternalServerError, requestID, "INTERNAL_SERVER_ERROR", err.Error())
	}
}

func parsePathID(r *http.Request, name string) (int64, error) {
	raw, ok := mux.Vars(r)[name]
	if !ok {
		return 0, errors.Errorf("missing path parameter %q", name)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, errors.Errorf("invalid id %q", raw)
	}
	return id, nil
}
