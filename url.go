package rtsp

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strconv"
)

const DefaultPort = 554

var targetRE = regexp.MustCompile(`^rtsp://(\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3})(?::(\d{1,5}))?(/.*)?$`)

// SessionTarget is the validated address of the RTSP server.
type SessionTarget struct {
	URL  *url.URL
	Host string
	Port int
}

// ParseTarget validates the URL. Only numeric IPv4 hosts are accepted.
func ParseTarget(rawURL string) (*SessionTarget, error) {
	m := targetRE.FindStringSubmatch(rawURL)
	if m == nil {
		return nil, fmt.Errorf("%w: %q", ErrURLFormat, rawURL)
	}

	ip := net.ParseIP(m[1])
	if ip == nil || ip.To4() == nil {
		return nil, fmt.Errorf("%w: invalid address %q", ErrURLFormat, m[1])
	}

	port := DefaultPort
	if m[2] != "" {
		v, err := strconv.Atoi(m[2])
		if err != nil || v < 1 || v > 65535 {
			return nil, fmt.Errorf("%w: invalid port %q", ErrURLFormat, m[2])
		}
		port = v
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrURLFormat, err)
	}

	return &SessionTarget{
		URL:  u,
		Host: ip.To4().String(),
		Port: port,
	}, nil
}

// Addr returns host:port of the control connection.
func (t *SessionTarget) Addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}
