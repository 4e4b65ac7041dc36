package launch

import (
	"fmt"
	"net/http"
	"time"
)

// HealthChecker defines the interface for probing the server process.
type HealthChecker interface {
	// Check probes the server listening on port and returns the determined
	// ProcessState. An error describes why the check did not come back healthy.
	Check(port int) (ProcessState, error)
}

// HTTPHealthChecker implements HealthChecker against Streamlit's built-in
// health endpoint.
type HTTPHealthChecker struct {
	client *http.Client
	path   string
}

// NewHTTPHealthChecker creates a checker with the given per-request timeout.
func NewHTTPHealthChecker(requestTimeout time.Duration) *HTTPHealthChecker {
	return &HTTPHealthChecker{
		client: &http.Client{
			Timeout: requestTimeout,
		},
		path: "/_stcore/health",
	}
}

// Check performs an HTTP GET against http://127.0.0.1:<port>/_stcore/health.
func (h *HTTPHealthChecker) Check(port int) (ProcessState, error) {
	if port <= 0 {
		return StateFailed, fmt.Errorf("invalid port %d for health check", port)
	}

	url := fmt.Sprintf("http://127.0.0.1:%d%s", port, h.path)
	resp, err := h.client.Get(url)
	if err != nil {
		// Network error, timeout, connection refused, etc.
		return StateUnhealthy, fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return StateRunning, nil
	}
	return StateUnhealthy, fmt.Errorf("health check at %s returned status %s", url, resp.Status)
}
