package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/unhackeddev/nfury/modules/loadtest/domain/project"
	"github.com/unhackeddev/nfury/modules/loadtest/services"
)

// scenario mirrors the run request the API accepts, so a YAML file can
// describe everything the flags can plus headers and an auth block,
// which have no flag form.
type scenario struct {
	URL         string            `yaml:"url"`
	Method      string            `yaml:"method"`
	Users       int               `yaml:"users"`
	Requests    int               `yaml:"requests"`
	DurationSec int               `yaml:"durationSec"`
	Body        string            `yaml:"body"`
	ContentType string            `yaml:"contentType"`
	Headers     map[string]string `yaml:"headers"`
	Insecure    bool              `yaml:"insecure"`
	Auth        *scenarioAuth     `yaml:"auth"`
}

type scenarioAuth struct {
	URL          string            `yaml:"url"`
	Method       string            `yaml:"method"`
	ContentType  string            `yaml:"contentType"`
	Body         string            `yaml:"body"`
	Headers      map[string]string `yaml:"headers"`
	TokenPath    string            `yaml:"tokenPath"`
	HeaderName   string            `yaml:"headerName"`
	HeaderPrefix string            `yaml:"headerPrefix"`
}

func loadScenario(path string) (*scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc scenario
	if err := yaml.Unmarshal(raw, &sc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &sc, nil
}

func (a *scenarioAuth) toDomain() *project.AuthSpec {
	if a == nil {
		return nil
	}
	return &project.AuthSpec{
		URL:          a.URL,
		Method:       a.Method,
		ContentType:  a.ContentType,
		Body:         a.Body,
		Headers:      a.Headers,
		TokenPath:    a.TokenPath,
		HeaderName:   a.HeaderName,
		HeaderPrefix: a.HeaderPrefix,
	}
}

// toRunRequest translates a resolved scenario into a service request.
// Resolution leaves at most one stop criterion set; zero of them means
// the engine default applies.
func (sc *scenario) toRunRequest() *services.RunRequest {
	req := &services.RunRequest{
		URL:         sc.URL,
		Method:      sc.Method,
		Users:       sc.Users,
		Body:        sc.Body,
		ContentType: sc.ContentType,
		Headers:     sc.Headers,
		Insecure:    sc.Insecure,
		Auth:        sc.Auth.toDomain(),
	}
	if sc.Requests > 0 {
		n := sc.Requests
		req.Requests = &n
	}
	if sc.DurationSec > 0 {
		n := sc.DurationSec
		req.DurationSec = &n
	}
	return req
}
