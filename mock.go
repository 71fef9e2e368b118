package mockproxy

import (
	"io"
	"net/http"

	"github.com/rs/zerolog"
)

// mockHandler implements the mock plane: match the active instance's rules
// against the incoming request, answer from the first match, and fall
// back to a 404 or a proxied request per mode.
type mockHandler struct {
	state *sequentialState
	mode  Mode
	proxy *proxyEngine
	log   zerolog.Logger
}

func newMockHandler(state *sequentialState, mode Mode, log zerolog.Logger) *mockHandler {
	return &mockHandler{state: state, mode: mode, proxy: newProxyEngine(log), log: log}
}

func (h *mockHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.log.Error().Err(err).Msg("mock: reading request body failed")
		writePlainText(w, http.StatusBadRequest, "Bad Request")
		return
	}

	// Snapshot under the shared lock, then release it before any of the
	// I/O below (response write, proxy dial) runs.
	entries := h.state.snapshotRules()

	req := normalizedRequest{Method: r.Method, Path: r.URL.Path, Body: body}
	if rule, ok := firstMatch(entries, req); ok {
		writeRuleResponse(w, rule.Then)
		return
	}

	if h.mode == ModeMock {
		writePlainText(w, http.StatusNotFound, "Not Found")
		return
	}

	h.proxyRequest(w, r, body)
}

func writeRuleResponse(w http.ResponseWriter, resp Response) {
	for _, kv := range resp.Headers {
		w.Header().Add(kv.Name, kv.Value)
	}
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(resp.Body)
}

func (h *mockHandler) proxyRequest(w http.ResponseWriter, r *http.Request, body []byte) {
	resp, err := h.proxy.forward(r, body)
	if err != nil {
		pe, _ := err.(*proxyError)
		if pe == nil {
			writePlainText(w, http.StatusBadGateway, err.Error())
			return
		}
		writePlainText(w, pe.statusCode(), pe.Error())
		return
	}
	defer resp.Body.Close()
	if err := writeProxiedResponse(w, resp); err != nil {
		h.log.Error().Err(err).Msg("proxy: constructing downstream response failed")
		pe, _ := err.(*proxyError)
		if pe != nil && pe.kind == cannotConstructResponseBody {
			writePlainText(w, http.StatusBadGateway, pe.Error())
		}
	}
}
