// Package stream is the in-process broadcast hub between the load engine
// and its consumers (WebSocket clients, the CLI reporter, tests). Event
// names and payload shapes are wire-visible; renaming them breaks
// consumers.
package stream

import "time"

// Wire event names.
const (
	EventConnected             = "Connected"
	EventMetricReceived        = "MetricReceived"
	EventTestCompleted         = "TestCompleted"
	EventTestError             = "TestError"
	EventAuthenticationStarted = "AuthenticationStarted"
	EventAuthenticationSuccess = "AuthenticationSuccess"
	EventAuthenticationFailed  = "AuthenticationFailed"
)

// Event is one stream frame: a wire event name plus its payload.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// Welcome is the Connected payload, delivered once to a subscriber on
// attach.
type Welcome struct {
	SubscriberID string `json:"subscriberId"`
}

// Sample is the MetricReceived payload: one response plus the running
// totals at that moment.
type Sample struct {
	RunToken            string    `json:"runToken"`
	Timestamp           time.Time `json:"timestamp"`
	ResponseTimeMs      int64     `json:"responseTimeMs"`
	StatusCode          int       `json:"statusCode"`
	IsSuccess           bool      `json:"isSuccess"`
	TotalRequests       int64     `json:"totalRequests"`
	SuccessfulRequests  int64     `json:"successfulRequests"`
	FailedRequests      int64     `json:"failedRequests"`
	CurrentRps          float64   `json:"currentRps"`
	AverageResponseTime float64   `json:"averageResponseTime"`
}

// StatusAggregate is the per-status-code slice of a final result.
type StatusAggregate struct {
	Count               int64   `json:"count"`
	MinResponseTime     float64 `json:"minResponseTime"`
	AverageResponseTime float64 `json:"averageResponseTime"`
	MaxResponseTime     float64 `json:"maxResponseTime"`
	Percentile50        float64 `json:"percentile50"`
	Percentile75        float64 `json:"percentile75"`
	Percentile90        float64 `json:"percentile90"`
	Percentile95        float64 `json:"percentile95"`
	Percentile99        float64 `json:"percentile99"`
}

// Result is the TestCompleted payload. RequestsPerSecond is the peak
// 1-second windowed rate observed during the run.
type Result struct {
	RunToken            string                  `json:"runToken"`
	TotalRequests       int64                   `json:"totalRequests"`
	SuccessfulRequests  int64                   `json:"successfulRequests"`
	FailedRequests      int64                   `json:"failedRequests"`
	RequestsPerSecond   float64                 `json:"requestsPerSecond"`
	AverageResponseTime float64                 `json:"averageResponseTime"`
	MinResponseTime     float64                 `json:"minResponseTime"`
	MaxResponseTime     float64                 `json:"maxResponseTime"`
	Percentile50        float64                 `json:"percentile50"`
	Percentile75        float64                 `json:"percentile75"`
	Percentile90        float64                 `json:"percentile90"`
	Percentile95        float64                 `json:"percentile95"`
	Percentile99        float64                 `json:"percentile99"`
	TotalElapsedTime    int64                   `json:"totalElapsedTime"`
	StatusCodes         map[int]StatusAggregate `json:"statusCodes"`
}

// RunError is the TestError payload.
type RunError struct {
	RunToken string `json:"runToken"`
	Error    string `json:"error"`
}

// AuthStatus is the AuthenticationStarted / AuthenticationSuccess payload.
type AuthStatus struct {
	RunToken string `json:"runToken"`
}

// AuthError is the AuthenticationFailed payload.
type AuthError struct {
	RunToken string `json:"runToken"`
	Error    string `json:"error"`
}
