// Package engine executes one load test: U parallel workers firing at a
// single target, a shared accumulator, and fan-out of per-response
// telemetry to the stream and the store.
package engine

import (
	"net/http"
	"strings"

	"github.com/go-faster/errors"
)

// defaultRequests applies when a run sets neither a request budget nor a
// duration.
const defaultRequests = 100

var (
	ErrMissingURL      = errors.New("target url is required")
	ErrInvalidUsers    = errors.New("user count must be at least 1")
	ErrBothCriteria    = errors.New("request budget and duration are mutually exclusive")
	ErrInvalidRequests = errors.New("request budget must be at least 1")
	ErrInvalidDuration = errors.New("duration must be at least 1 second")
	ErrUnknownMethod   = errors.New("unknown HTTP method")
)

// IsValidation reports whether err is a run configuration error, as
// opposed to a failure while the run was executing.
func IsValidation(err error) bool {
	for _, sentinel := range []error{
		ErrMissingURL,
		ErrInvalidUsers,
		ErrBothCriteria,
		ErrInvalidRequests,
		ErrInvalidDuration,
		ErrUnknownMethod,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

var allowedMethods = map[string]struct{}{
	http.MethodGet:     {},
	http.MethodPost:    {},
	http.MethodPut:     {},
	http.MethodDelete:  {},
	http.MethodPatch:   {},
	http.MethodHead:    {},
	http.MethodOptions: {},
}

// Config describes one run. Exactly one of Requests and DurationSec may
// be set; with neither, Normalize falls back to the default request
// budget. AuthToken, when present, already carries its header prefix.
type Config struct {
	RunToken    string
	URL         string
	Method      string
	Users       int
	Requests    *int
	DurationSec *int
	Body        string
	ContentType string
	Headers     map[string]string
	Insecure    bool
	AuthToken   string
	AuthHeader  string
}

// Normalize fills defaults in place: method GET, the default request
// budget when no stop criterion is set, Authorization as the auth header
// name.
func (c *Config) Normalize() {
	c.Method = strings.ToUpper(strings.TrimSpace(c.Method))
	if c.Method == "" {
		c.Method = http.MethodGet
	}
	if c.Requests == nil && c.DurationSec == nil {
		budget := defaultRequests
		c.Requests = &budget
	}
	if c.AuthHeader == "" {
		c.AuthHeader = "Authorization"
	}
}

// Validate checks the normalized configuration. A budget smaller than the
// user count is legal and yields zero requests per worker.
func (c *Config) Validate() error {
	if c.URL == "" {
		return ErrMissingURL
	}
	if c.Users < 1 {
		return ErrInvalidUsers
	}
	if _, ok := allowedMethods[c.Method]; !ok {
		return errors.Wrapf(ErrUnknownMethod, "method %q", c.Method)
	}
	if c.Requests != nil && c.DurationSec != nil {
		return ErrBothCriteria
	}
	if c.Requests != nil && *c.Requests < 1 {
		return ErrInvalidRequests
	}
	if c.DurationSec != nil && *c.DurationSec < 1 {
		return ErrInvalidDuration
	}
	return nil
}
