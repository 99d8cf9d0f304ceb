package network

import (
	"context"
	"net"
	"net/url"
	"time"
)

// Checker reports whether the network is currently usable.
type Checker interface {
	IsAvailable(ctx context.Context) bool
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) bool

func (f CheckerFunc) IsAvailable(ctx context.Context) bool {
	return f(ctx)
}

// DialChecker treats the network as available when a TCP connection to Address succeeds.
type DialChecker struct {
	Address string
	Timeout time.Duration
	dialer  net.Dialer
}

// NewDialChecker dials the host of the given URL, defaulting the port from its scheme.
func NewDialChecker(rawURL string, timeout time.Duration) (*DialChecker, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	port := u.Port()
	if port == "" {
		port = "443"
		if u.Scheme == "http" {
			port = "80"
		}
	}
	return &DialChecker{Address: net.JoinHostPort(u.Hostname(), port), Timeout: timeout}, nil
}

func (c *DialChecker) IsAvailable(ctx context.Context) bool {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	conn, err := c.dialer.DialContext(ctx, "tcp", c.Address)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
