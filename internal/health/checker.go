// Package health checks that the tools a solve depends on are usable before
// any environment is provisioned.
//
//	manager := health.NewManager()
//	manager.AddChecker(health.NewDockerChecker(""))
//	manager.AddChecker(health.NewIndexChecker(client, "pip"))
//	for _, r := range manager.Check(ctx) {
//	    fmt.Println(r.Name, r.Status)
//	}
package health

import (
	"context"
	"time"
)

// Checker verifies one dependency of a solve.
type Checker interface {
	// Name is lowercase with hyphens, e.g. "docker-daemon".
	Name() string

	// Check must respect the context deadline.
	Check(ctx context.Context) *Result
}

// Status is the outcome of one check.
type Status string

const (
	// StatusHealthy means the component works.
	StatusHealthy Status = "healthy"

	// StatusDegraded means solves can run but something is off, such as an
	// unwritable cache.
	StatusDegraded Status = "degraded"

	// StatusUnhealthy means solves that need the component will fail.
	StatusUnhealthy Status = "unhealthy"
)

func (s Status) String() string {
	return string(s)
}

// Result is what a Checker found.
type Result struct {
	Name    string         `json:"name"`
	Status  Status         `json:"status"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Latency time.Duration  `json:"latency_ns"`
}

// NewResult creates a result with the given status and message.
func NewResult(status Status, message string) *Result {
	return &Result{
		Status:  status,
		Message: message,
		Details: make(map[string]any),
	}
}

// WithDetail adds a detail and returns r for chaining.
func (r *Result) WithDetail(key string, value any) *Result {
	r.Details[key] = value
	return r
}

// Suggestion returns the "suggestion" detail, if any.
func (r *Result) Suggestion() string {
	s, _ := r.Details["suggestion"].(string)
	return s
}

func Healthy(message string) *Result {
	return NewResult(StatusHealthy, message)
}

func Degraded(message string) *Result {
	return NewResult(StatusDegraded, message)
}

func Unhealthy(message string) *Result {
	return NewResult(StatusUnhealthy, message)
}
