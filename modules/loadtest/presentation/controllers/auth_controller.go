package controllers

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/gorilla/mux"

	"github.com/unhackeddev/nfury/modules/loadtest/services"
	"github.com/unhackeddev/nfury/modules/loadtest/tokenfetch"
	"github.com/unhackeddev/nfury/pkg/application"
)

// AuthController exercises an auth spec without starting a run.
type AuthController struct {
	app       application.Application
	runs      *services.RunService
	apiPrefix string
}

func NewAuthController(app application.Application) application.Controller {
	return &AuthController{
		app:       app,
		runs:      app.Service(services.RunService{}).(*services.RunService),
		apiPrefix: "/api/auth",
	}
}

func (c *AuthController) Key() string {
	return c.apiPrefix
}

func (c *AuthController) Register(r *mux.Router) {
	api := r.PathPrefix(c.apiPrefix).Subrouter()

	api.HandleFunc("/test", c.Test).Methods(http.MethodPost)
}

func (c *AuthController) Test(w http.ResponseWriter, r *http.Request) {
	requestID := ensureRequestID(r)

	var req testAuthRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, "INVALID_BODY", "invalid json body")
		return
	}
	req.Auth.normalize()
	if fields := validateStruct(&req); len(fields) > 0 {
		writeValidationError(w, requestID, fields)
		return
	}

	token, err := c.runs.TestAuth(r.Context(), req.Auth.toDomain(), req.Insecure)
	if err != nil {
		var fetchErr *tokenfetch.Error
		if errors.As(err, &fetchErr) {
			writeAPIError(w, http.StatusBadGateway, requestID, authErrorCode(fetchErr.Kind), fetchErr.Error())
			return
		}
		writeAPIError(w, http.StatusBadGateway, requestID, "AUTH_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, testAuthResponse{OK: true, Token: token})
}

func authErrorCode(kind tokenfetch.Kind) string {
	switch kind {
	case tokenfetch.KindRejected:
		return "AUTH_REJECTED"
	case tokenfetch.KindBadResponse:
		return "AUTH_BAD_RESPONSE"
	case tokenfetch.KindTokenMissing:
		return "AUTH_TOKEN_MISSING"
	case tokenfetch.KindTransport:
		return "AUTH_TRANSPORT"
	default:
		return "AUTH_FAILED"
	}
}
