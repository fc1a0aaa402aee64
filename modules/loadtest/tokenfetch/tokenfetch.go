// Package tokenfetch acquires bearer tokens before a run: one HTTP call
// described by a project's auth spec, a walk through the JSON response
// along a dotted path, and a prefixed token out.
package tokenfetch

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"github.com/unhackeddev/nfury/modules/loadtest/domain/project"
)

// Kind classifies a token fetch failure.
type Kind int

const (
	// KindRejected means the auth endpoint answered with a non-2xx status.
	KindRejected Kind = iota + 1
	// KindBadResponse means the response body was not a JSON document.
	KindBadResponse
	// KindTokenMissing means the token path did not resolve to a value.
	KindTokenMissing
	// KindTransport means the request never produced a response.
	KindTransport
)

// Error is the sum-typed fetch failure. Status is set for KindRejected,
// Path for KindTokenMissing, Err for the kinds wrapping a lower error.
type Error struct {
	Kind   Kind
	Status int
	Path   string
	Err    error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindRejected:
		return fmt.Sprintf("auth endpoint returned status %d", e.Status)
	case KindBadResponse:
		return fmt.Sprintf("auth response is not valid JSON: %v", e.Err)
	case KindTokenMissing:
		return fmt.Sprintf("auth token not found at path %q", e.Path)
	case KindTransport:
		return fmt.Sprintf("auth request failed: %v", e.Err)
	}
	return "auth token fetch failed"
}

func (e *Error) Unwrap() error {
	return e.Err
}

const requestTimeout = 30 * time.Second

type Fetcher struct {
	logger *logrus.Logger
}

func New(logger *logrus.Logger) *Fetcher {
	return &Fetcher{logger: logger}
}

// Fetch performs the auth call and returns the token already carrying the
// spec's header prefix. TLS certificate verification is skipped iff
// insecure is set.
func (f *Fetcher) Fetch(ctx context.Context, spec *project.AuthSpec, insecure bool) (string, error) {
	if spec == nil {
		return "", errors.New("tokenfetch: nil auth spec")
	}

	method := spec.Method
	if method == "" {
		method = http.MethodPost
	}

	var body io.Reader
	if spec.Body != "" {
		body = strings.NewReader(spec.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, spec.URL, body)
	if err != nil {
		return "", &Error{Kind: KindTransport, Err: err}
	}
	if spec.ContentType != "" {
		req.Header.Set("Content-Type", spec.ContentType)
	}
	for name, value := range spec.Headers {
		req.Header.Set(name, value)
	}

	client := &http.Client{
		Timeout: requestTimeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: insecure},
		},
	}
	defer client.CloseIdleConnections()

	f.logger.WithFields(logrus.Fields{
		"url":    spec.URL,
		"method": method,
	}).Debug("fetching auth token")

	resp, err := client.Do(req)
	if err != nil {
		return "", &Error{Kind: KindTransport, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &Error{Kind: KindTransport, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &Error{Kind: KindRejected, Status: resp.StatusCode}
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", &Error{Kind: KindBadResponse, Err: err}
	}

	token, err := walkPath(doc, spec.TokenPath)
	if err != nil {
		return "", err
	}
	return spec.HeaderPrefix + token, nil
}

// walkPath descends the parsed document along dot-separated object keys
// and stringifies the value it lands on. A string value is returned as
// is; any other JSON value is rendered as its JSON text with surrounding
// quotes stripped.
func walkPath(doc any, path string) (string, error) {
	current := doc
	for _, segment := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return "", &Error{Kind: KindTokenMissing, Path: path}
		}
		current, ok = obj[segment]
		if !ok {
			return "", &Error{Kind: KindTokenMissing, Path: path}
		}
	}
	if s, ok := current.(string); ok {
		return s, nil
	}
	rendered, err := json.Marshal(current)
	if err != nil {
		return "", &Error{Kind: KindTokenMissing, Path: path}
	}
	return strings.Trim(string(rendered), `"`), nil
}
