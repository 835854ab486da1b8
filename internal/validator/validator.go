package validator

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

var (
	ErrInvalidOrigin = errors.New("invalid origin")
	ErrHTTPSRequired = errors.New("HTTPS is required")
)

// Validator checks browser origins accepted by the CORS layer.
type Validator struct {
	allowInsecureLocalhost bool
}

// Option configures a Validator.
type Option func(*Validator)

// WithInsecureLocalhost accepts plain HTTP for loopback origins even when
// HTTPS is required. Local frontends in production-like setups need it.
func WithInsecureLocalhost() Option {
	return func(v *Validator) {
		v.allowInsecureLocalhost = true
	}
}

// New creates a new Validator with the given options.
func New(opts ...Option) *Validator {
	v := &Validator{}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ValidateOrigin validates an origin of the form scheme://host[:port].
// If requireHTTPS is true, only HTTPS origins are accepted.
func (v *Validator) ValidateOrigin(raw string, requireHTTPS bool) error {
	if raw == "" {
		return ErrInvalidOrigin
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: parse error: %w", ErrInvalidOrigin, err)
	}

	if parsed.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidOrigin)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https", ErrInvalidOrigin)
	}

	if (parsed.Path != "" && parsed.Path != "/") || parsed.RawQuery != "" || parsed.Fragment != "" || parsed.User != nil {
		return fmt.Errorf("%w: %s must not carry a path, query or credentials", ErrInvalidOrigin, raw)
	}

	if requireHTTPS && parsed.Scheme != "https" {
		if !(v.allowInsecureLocalhost && isLoopback(parsed.Hostname())) {
			return ErrHTTPSRequired
		}
	}

	return nil
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
