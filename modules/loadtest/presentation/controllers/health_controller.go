package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/unhackeddev/nfury/pkg/application"
)

const healthCheckTimeout = 2 * time.Second

type componentHealth struct {
	Status       string `json:"status"`
	ResponseTime string `json:"responseTime,omitempty"`
	Error        string `json:"error,omitempty"`
}

type healthResponse struct {
	Status    string                     `json:"status"`
	Timestamp string                     `json:"timestamp"`
	Checks    map[string]componentHealth `json:"checks"`
}

type HealthController struct {
	app  application.Application
	path string
}

func NewHealthController(app application.Application) application.Controller {
	return &HealthController{
		app:  app,
		path: "/health",
	}
}

func (c *HealthController) Key() string {
	return c.path
}

func (c *HealthController) Register(r *mux.Router) {
	r.HandleFunc(c.path, c.Health).Methods(http.MethodGet)
}

func (c *HealthController) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status := "healthy"
	checks := map[string]componentHealth{}

	start := time.Now()
	if err := c.app.DB().PingContext(ctx); err != nil {
		status = "down"
		checks["database"] = componentHealth{Status: "down", Error: err.Error()}
	} else {
		checks["database"] = componentHealth{
			Status:       "healthy",
			ResponseTime: time.Since(start).String(),
		}
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, healthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	})
}
