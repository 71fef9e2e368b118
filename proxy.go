package mockproxy

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// proxyErrorKind enumerates the ways a proxied exchange can fail, mirroring
// the original implementation's ProxyError one-for-one so the status/
// message mapping below stays a direct translation rather than a
// reinterpretation.
type proxyErrorKind int

const (
	badHostHeader proxyErrorKind = iota
	upstreamNotFound
	upstreamNotHTTP
	cannotReadRequestBody
	upstreamSendError
	cannotReadResponseBody
	cannotConstructResponseBody
)

type proxyError struct {
	kind proxyErrorKind
}

func (e *proxyError) Error() string {
	switch e.kind {
	case badHostHeader:
		return "Bad host header"
	case upstreamNotFound:
		return "Upstream not found"
	case upstreamNotHTTP:
		return "Upstream not HTTP"
	case cannotReadRequestBody:
		return "Cannot read request body"
	case upstreamSendError:
		return "Upstream send error"
	case cannotReadResponseBody:
		return "Cannot read response body"
	case cannotConstructResponseBody:
		return "Cannot construct response body"
	default:
		return "Unknown proxy error"
	}
}

// statusCode maps a proxyErrorKind to the HTTP status the mock plane
// returns to its caller: bad Host header is the caller's fault (400),
// everything else is an upstream failure (502).
func (e *proxyError) statusCode() int {
	if e.kind == badHostHeader {
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

const dialTimeout = 10 * time.Second

// proxyEngine resolves an upstream from a request's Host header and
// forwards the request to it verbatim, returning the upstream's response
// verbatim. It does not use net/http/httputil.ReverseProxy: that package
// strips hop-by-hop headers and collapses failure modes into one generic
// error, which would lose the status/message distinctions above.
type proxyEngine struct {
	log zerolog.Logger
}

func newProxyEngine(log zerolog.Logger) *proxyEngine {
	return &proxyEngine{log: log}
}

// forward sends req (with its body already buffered into body) to the
// upstream named by req.Host and returns the upstream's response with its
// body buffered. On failure it returns a *proxyError.
func (p *proxyEngine) forward(req *http.Request, body []byte) (*http.Response, error) {
	addr, err := upstreamAddress(req.Host)
	if err != nil {
		return nil, &proxyError{kind: badHostHeader}
	}

	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		p.log.Error().Err(err).Str("addr", addr).Msg("proxy: upstream dial failed")
		return nil, &proxyError{kind: upstreamNotFound}
	}
	defer conn.Close()

	outbound, err := http.NewRequest(req.Method, req.URL.Path, bytes.NewReader(body))
	if err != nil {
		return nil, &proxyError{kind: cannotReadRequestBody}
	}
	outbound.Header = req.Header.Clone()
	outbound.Host = req.Host
	outbound.ContentLength = int64(len(body))

	if err := outbound.Write(conn); err != nil {
		p.log.Error().Err(err).Msg("proxy: send to upstream failed")
		return nil, &proxyError{kind: upstreamSendError}
	}

	resp, err := http.ReadResponse(bufio.NewReader(conn), outbound)
	if err != nil {
		p.log.Error().Err(err).Msg("proxy: malformed upstream response")
		return nil, &proxyError{kind: upstreamNotHTTP}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &proxyError{kind: cannotReadResponseBody}
	}
	resp.Body = io.NopCloser(bytes.NewReader(respBody))
	resp.ContentLength = int64(len(respBody))
	return resp, nil
}

// writeProxiedResponse copies resp's status, headers, and body onto w verbatim.
func writeProxiedResponse(w http.ResponseWriter, resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &proxyError{kind: cannotConstructResponseBody}
	}
	for name, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(body); err != nil {
		return &proxyError{kind: cannotConstructResponseBody}
	}
	return nil
}

// upstreamAddress parses a Host header into a dialable host:port,
// defaulting to port 80 when the header carries no port. Hosts containing
// whitespace (e.g. "not a url") are rejected as malformed rather than
// dialed verbatim.
func upstreamAddress(host string) (string, error) {
	if host == "" || strings.ContainsAny(host, " \t\r\n") {
		return "", &proxyError{kind: badHostHeader}
	}
	h, port, err := net.SplitHostPort(host)
	if err != nil {
		if !isMissingPort(err) {
			return "", &proxyError{kind: badHostHeader}
		}
		h, port = host, "80"
	}
	if h == "" {
		return "", &proxyError{kind: badHostHeader}
	}
	return net.JoinHostPort(h, port), nil
}

func isMissingPort(err error) bool {
	ae, ok := err.(*net.AddrError)
	return ok && strings.Contains(ae.Err, "missing port")
}
