package dispatch

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"
)

// Failure reasons for requests that never produced a response.
// Status failures use "HTTP <code>" instead.
const (
	ReasonTimeout            = "timeout"
	ReasonConnectionRefused  = "connection refused"
	ReasonConnectionReset    = "connection reset"
	ReasonNetworkUnreachable = "network unreachable"
	ReasonDNS                = "dns resolution failed"
	ReasonTLS                = "tls error"
	ReasonEOF                = "connection closed"
	ReasonCanceled           = "canceled"
	reasonTransportPrefix    = "transport error: "
	maxReasonLength          = 120
)

// StatusReason builds the failure reason for an unexpected status code
func StatusReason(status int) string {
	return fmt.Sprintf("HTTP %d", status)
}

// IsStatusReason reports whether reason came from an unexpected status
// rather than a transport fault
func IsStatusReason(reason string) bool {
	return strings.HasPrefix(reason, "HTTP ")
}

// TransportReason maps a transport error to a short, stable reason so
// failures aggregate into few buckets
func TransportReason(err error) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ReasonCanceled
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return ReasonTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ReasonDNS
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() {
			return ReasonTimeout
		}
		var errno syscall.Errno
		if errors.As(opErr.Err, &errno) {
			switch errno {
			case syscall.ECONNREFUSED:
				return ReasonConnectionRefused
			case syscall.ECONNRESET:
				return ReasonConnectionReset
			case syscall.ENETUNREACH, syscall.EHOSTUNREACH:
				return ReasonNetworkUnreachable
			}
		}
	}

	var unknownAuthority x509.UnknownAuthorityError
	var invalidCert x509.CertificateInvalidError
	var hostnameErr x509.HostnameError
	if errors.As(err, &unknownAuthority) || errors.As(err, &invalidCert) || errors.As(err, &hostnameErr) {
		return ReasonTLS
	}

	return categorizeMessage(err.Error())
}

// categorizeMessage falls back to matching the error text
func categorizeMessage(msg string) string {
	lower := strings.ToLower(msg)

	switch {
	case strings.Contains(lower, "deadline exceeded"),
		strings.Contains(lower, "timeout"),
		strings.Contains(lower, "timed out"):
		return ReasonTimeout
	case strings.Contains(lower, "connection refused"):
		return ReasonConnectionRefused
	case strings.Contains(lower, "connection reset"):
		return ReasonConnectionReset
	case strings.Contains(lower, "no such host"),
		strings.Contains(lower, "dial tcp: lookup"):
		return ReasonDNS
	case strings.Contains(lower, "network is unreachable"),
		strings.Contains(lower, "no route to host"):
		return ReasonNetworkUnreachable
	case strings.Contains(lower, "tls"),
		strings.Contains(lower, "x509"),
		strings.Contains(lower, "certificate"):
		return ReasonTLS
	case strings.Contains(lower, "eof"):
		return ReasonEOF
	case strings.Contains(lower, "context canceled"):
		return ReasonCanceled
	}

	return reasonTransportPrefix + truncateReason(msg, maxReasonLength)
}

// truncateReason shortens msg to at most limit bytes on a rune boundary
func truncateReason(msg string, limit int) string {
	msg = strings.ToValidUTF8(msg, "?")
	if len(msg) <= limit {
		return msg
	}
	cut := 0
	for i := range msg {
		if i > limit-3 {
			break
		}
		cut = i
	}
	return msg[:cut] + "..."
}
