package fetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

// Signature is one browser identity: the TLS ClientHello shape servers
// fingerprint plus the matching request headers. Mixing a Chrome hello with
// Go's default headers is exactly what bot detection looks for, so the two
// travel together.
type Signature struct {
	Name      string
	HelloID   utls.ClientHelloID
	UserAgent string
}

var signatures = []Signature{
	{"chrome", utls.HelloChrome_Auto, "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"},
	{"chrome120", utls.HelloChrome_120, "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"},
	{"chrome102", utls.HelloChrome_102, "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/102.0.0.0 Safari/537.36"},
	{"edge", utls.HelloEdge_106, "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36 Edg/124.0.0.0"},
}

// impersonatingTransport performs HTTPS requests with a utls ClientHello
// instead of crypto/tls's. Connections are not pooled: description fetches
// are low-volume and a fresh handshake per request keeps the fingerprint
// honest.
type impersonatingTransport struct {
	helloID utls.ClientHelloID
	dialer  *net.Dialer
}

func newImpersonatingTransport(helloID utls.ClientHelloID, timeout time.Duration) *impersonatingTransport {
	return &impersonatingTransport{
		helloID: helloID,
		dialer:  &net.Dialer{Timeout: timeout},
	}
}

func (t *impersonatingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme != "https" {
		return http.DefaultTransport.RoundTrip(req)
	}

	host := req.URL.Hostname()
	port := req.URL.Port()
	if port == "" {
		port = "443"
	}

	raw, err := t.dialer.DialContext(req.Context(), "tcp", net.JoinHostPort(host, port))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", host, err)
	}

	conn := utls.UClient(raw, &utls.Config{ServerName: host}, t.helloID)
	if err := conn.HandshakeContext(req.Context()); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("tls handshake %s: %w", host, err)
	}

	switch conn.ConnectionState().NegotiatedProtocol {
	case "h2":
		cc, err := (&http2.Transport{}).NewClientConn(conn)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		return cc.RoundTrip(req)
	default:
		inner := &http.Transport{
			DialTLSContext: func(context.Context, string, string) (net.Conn, error) {
				return conn, nil
			},
			DisableKeepAlives: true,
		}
		return inner.RoundTrip(req)
	}
}

func clientFor(sig Signature, timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: newImpersonatingTransport(sig.HelloID, timeout),
		Timeout:   timeout,
	}
}

func applyHeaders(req *http.Request, sig Signature) {
	req.Header.Set("User-Agent", sig.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-GB,en;q=0.9")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "none")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
}
