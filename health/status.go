// Package health reports the live state of a pipeline and its plugin
// connections, suitable for serving on a health endpoint.
package health

import (
	"regexp"
	"strings"
	"time"

	"github.com/c360/streamplug/connection"
)

// Pre-compiled regexes for error message sanitization
var (
	httpURLRegex     = regexp.MustCompile(`https?://[^\s]+`)
	natsURLRegex     = regexp.MustCompile(`nats://[^\s]+`)
	unixPathRegex    = regexp.MustCompile(`/[a-zA-Z0-9/_.-]+`)
	windowsPathRegex = regexp.MustCompile(`[A-Z]:\\[^:\s]+`)
	ipAddrRegex      = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	portRegex        = regexp.MustCompile(`:\d{2,5}\b`)
	credentialRegex  = regexp.MustCompile(`(?i)(password|token|key|secret|credential)[^a-zA-Z]*[:=][^,\s}]+`)
)

// Status represents the health state of one plugin instance or the whole
// pipeline.
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"`
	Status      string    `json:"status"` // "healthy", "unhealthy", "degraded"
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
}

// IsHealthy returns true if the status is healthy
func (s Status) IsHealthy() bool {
	return s.Status == "healthy"
}

// IsDegraded returns true if the status is degraded
func (s Status) IsDegraded() bool {
	return s.Status == "degraded"
}

// IsUnhealthy returns true if the status is unhealthy
func (s Status) IsUnhealthy() bool {
	return s.Status == "unhealthy"
}

// WithSubStatus adds a sub-status and returns a copy
func (s Status) WithSubStatus(subStatus Status) Status {
	// Create a new slice to avoid sharing the underlying array
	newSubStatuses := make([]Status, len(s.SubStatuses), len(s.SubStatuses)+1)
	copy(newSubStatuses, s.SubStatuses)
	s.SubStatuses = append(newSubStatuses, subStatus)
	return s
}

// FromConnection maps a plugin connection's lifecycle state to a health
// status. A live session is healthy; a session between connect attempts is
// degraded, not dead; a closed connection is unhealthy because the pump
// can no longer use it. The last call failure is included, sanitized, so
// endpoints and dashboards never see raw addresses or credentials.
func FromConnection(conn *connection.Connection) Status {
	state := conn.State()
	status := Status{
		Component: conn.Name(),
		Timestamp: time.Now(),
	}
	switch state {
	case connection.StateConnected:
		status.Healthy = true
		status.Status = "healthy"
		status.Message = "session established"
	case connection.StateClosed:
		status.Status = "unhealthy"
		status.Message = withCause("connection closed", conn.LastError())
	default:
		status.Status = "degraded"
		status.Message = withCause("session "+state.String(), conn.LastError())
	}
	return status
}

func withCause(msg string, err error) string {
	if err == nil {
		return msg
	}
	return msg + ": " + SanitizeMessage(err.Error())
}

// Aggregate rolls instance statuses up into one pipeline status. Every
// instance healthy means healthy; any closed instance means degraded (the
// pipeline limps on without that branch); all closed means unhealthy.
func Aggregate(pipeline string, instances []Status) Status {
	agg := Status{
		Component:   pipeline,
		Timestamp:   time.Now(),
		SubStatuses: instances,
	}
	if len(instances) == 0 {
		agg.Status = "unhealthy"
		agg.Message = "no plugin instances"
		return agg
	}

	var healthy, closed int
	for _, s := range instances {
		if s.IsHealthy() {
			healthy++
		}
		if s.IsUnhealthy() {
			closed++
		}
	}

	switch {
	case healthy == len(instances):
		agg.Healthy = true
		agg.Status = "healthy"
		agg.Message = "all plugin sessions established"
	case closed == len(instances):
		agg.Status = "unhealthy"
		agg.Message = "all plugin connections closed"
	default:
		agg.Status = "degraded"
		agg.Message = "some plugin sessions unavailable"
	}
	return agg
}

// SanitizeMessage removes potentially sensitive information from error
// messages before they leave the process on a health endpoint.
//
// Sanitization patterns:
//   - URLs (http://, https://, nats://) → [URL]
//   - File paths (Unix: /path/to/file, Windows: C:\path\to\file) → [PATH]
//   - IP addresses (192.168.1.100) → [IP]
//   - Port numbers (:8080) → [PORT]
//   - Credentials (password=X, token=X, key=X, secret=X) → [REDACTED]
func SanitizeMessage(msg string) string {
	if msg == "" {
		return ""
	}

	sanitized := msg

	// Remove URLs first (before paths, as they contain paths)
	sanitized = httpURLRegex.ReplaceAllString(sanitized, "[URL]")
	sanitized = natsURLRegex.ReplaceAllString(sanitized, "[URL]")

	// Remove file paths (Unix and Windows)
	sanitized = unixPathRegex.ReplaceAllString(sanitized, "[PATH]")
	sanitized = windowsPathRegex.ReplaceAllString(sanitized, "[PATH]")

	// Remove IP addresses
	sanitized = ipAddrRegex.ReplaceAllString(sanitized, "[IP]")

	// Remove port numbers
	sanitized = portRegex.ReplaceAllString(sanitized, "[PORT]")

	// Remove potential credentials
	lowerSanitized := strings.ToLower(sanitized)
	if strings.Contains(lowerSanitized, "password") || strings.Contains(lowerSanitized, "token") ||
		strings.Contains(lowerSanitized, "key") || strings.Contains(lowerSanitized, "secret") ||
		strings.Contains(lowerSanitized, "credential") {
		sanitized = credentialRegex.ReplaceAllString(sanitized, "[REDACTED]")
	}

	return sanitized
}
