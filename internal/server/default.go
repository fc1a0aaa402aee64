package server

import (
	"net/http"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/unhackeddev/nfury/modules"
	"github.com/unhackeddev/nfury/pkg/application"
	"github.com/unhackeddev/nfury/pkg/configuration"
	"github.com/unhackeddev/nfury/pkg/eventbus"
	"github.com/unhackeddev/nfury/pkg/httpapi"
	"github.com/unhackeddev/nfury/pkg/metrics"
	"github.com/unhackeddev/nfury/pkg/middleware"
	"github.com/unhackeddev/nfury/pkg/server"
)

type DefaultOptions struct {
	Logger        *logrus.Logger
	Configuration *configuration.Configuration
	DB            *sqlx.DB
}

// Default assembles the full application: event bus, registered modules,
// the middleware stack, and optional Prometheus exposition.
func Default(options *DefaultOptions) (*server.HTTPServer, error) {
	app := application.New(&application.ApplicationOptions{
		DB:       options.DB,
		EventBus: eventbus.NewEventPublisher(options.Logger),
		Logger:   options.Logger,
	})

	app.RegisterMiddleware(
		middleware.WithLogger(options.Logger, middleware.DefaultLoggerOptions()),
		middleware.Cors(splitOrigins(options.Configuration.CorsOrigins)...),
	)

	if err := modules.Load(app, modules.BuiltInModules...); err != nil {
		return nil, err
	}

	if options.Configuration.Prometheus.Enabled {
		app.RegisterControllers(metrics.NewPrometheusController(options.Configuration.Prometheus.Path))
	}

	return server.NewHTTPServer(app, notFound(), methodNotAllowed()), nil
}

func splitOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if len(origins) == 0 {
		origins = append(origins, "*")
	}
	return origins
}

func notFound() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = httpapi.WriteError(w, http.StatusNotFound, "NOT_FOUND", "resource not found", map[string]string{
			"path": r.URL.Path,
		})
	})
}

func methodNotAllowed() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = httpapi.WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", map[string]string{
			"path":   r.URL.Path,
			"method": r.Method,
		})
	})
}
