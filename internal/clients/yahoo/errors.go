package yahoo

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Fetch error taxonomy. Callers branch on these with errors.Is.
var (
	// ErrRateLimited - the provider is throttling us; callers should pause
	ErrRateLimited = errors.New("rate limited by provider")
	// ErrTransient - network or provider hiccup; safe to retry
	ErrTransient = errors.New("transient fetch error")
	// ErrSymbolUnknown - the provider has no data for the symbol
	ErrSymbolUnknown = errors.New("symbol unknown to provider")
)

// classifyHTTPError maps a non-200 response to the error taxonomy
func classifyHTTPError(statusCode int, body string) error {
	if statusCode == 429 || strings.Contains(body, "Too Many Requests") {
		return fmt.Errorf("provider returned status %d: %w", statusCode, ErrRateLimited)
	}
	if statusCode == 404 {
		return fmt.Errorf("provider returned status %d: %w", statusCode, ErrSymbolUnknown)
	}
	return fmt.Errorf("provider returned status %d: %w", statusCode, ErrTransient)
}

// classifyNetworkError wraps transport-level failures as transient
func classifyNetworkError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("network error: %v: %w", err, ErrTransient)
	}
	return fmt.Errorf("request failed: %v: %w", err, ErrTransient)
}
