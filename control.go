package mockproxy

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// byteArray marshals as a literal JSON array of integers (`[104,101,...]`)
// rather than encoding/json's default base64 string, matching the wire
// format rule bodies are specified in.
type byteArray []byte

func (b byteArray) MarshalJSON() ([]byte, error) {
	ints := make([]int, len(b))
	for i, c := range b {
		ints[i] = int(c)
	}
	if ints == nil {
		ints = []int{}
	}
	return json.Marshal(ints)
}

func (b *byteArray) UnmarshalJSON(data []byte) error {
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return err
	}
	out := make([]byte, len(ints))
	for i, n := range ints {
		out[i] = byte(n)
	}
	*b = out
	return nil
}

// kvWire is the [name, value] pair wire shape used for headers and
// form_data.
type kvWire [2]string

// matchWire is the "when" half of a rule on the wire.
type matchWire struct {
	MatchPath string   `json:"match_path"`
	FormData  []kvWire `json:"form_data"`
	Method    *string  `json:"method"`
}

// responseWire is the "then" half of a rule on the wire.
type responseWire struct {
	Status  int       `json:"status"`
	Headers []kvWire  `json:"headers"`
	Body    byteArray `json:"body"`
}

// ruleWire is the wire shape of a Rule.
type ruleWire struct {
	When matchWire    `json:"when"`
	Then responseWire `json:"then"`
}

func (rw ruleWire) toRule() Rule {
	r := Rule{
		When: Match{Path: rw.When.MatchPath},
		Then: Response{Status: rw.Then.Status, Body: rw.Then.Body},
	}
	if rw.When.Method != nil {
		r.When.Method = *rw.When.Method
	}
	for _, kv := range rw.When.FormData {
		r.When.FormData = append(r.When.FormData, KV{Name: kv[0], Value: kv[1]})
	}
	for _, kv := range rw.Then.Headers {
		r.Then.Headers = append(r.Then.Headers, KV{Name: kv[0], Value: kv[1]})
	}
	return r
}

type installMockWire struct {
	Instance string   `json:"instance"`
	Mock     ruleWire `json:"mock"`
}

// controlHandler implements the control plane: POST / only, a tagged-union
// JSON command body, mutating the shared sequentialState.
type controlHandler struct {
	state    *sequentialState
	mockPort int
}

func newControlHandler(state *sequentialState, mockPort int) *controlHandler {
	return &controlHandler{state: state, mockPort: mockPort}
}

func (h *controlHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Path != "/" {
		writePlainText(w, http.StatusNotFound, "Not Found")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil || len(body) == 0 {
		writePlainText(w, http.StatusBadRequest, "Bad Request")
		return
	}

	var tagged map[string]json.RawMessage
	if err := json.Unmarshal(body, &tagged); err != nil {
		writePlainText(w, http.StatusBadRequest, "Bad Request")
		return
	}

	switch {
	case containsKey(tagged, "CreateInstance"):
		h.handleCreateInstance(w)
	case containsKey(tagged, "InstallMock"):
		h.handleInstallMock(w, tagged["InstallMock"])
	default:
		writePlainText(w, http.StatusBadRequest, "Bad Request")
	}
}

func containsKey(m map[string]json.RawMessage, key string) bool {
	_, ok := m[key]
	return ok
}

func (h *controlHandler) handleCreateInstance(w http.ResponseWriter) {
	id := h.state.createInstance()
	writeJSON(w, http.StatusOK, map[string]any{
		"instance": id,
		"url":      fmt.Sprintf("http://localhost:%d", h.mockPort),
	})
}

func (h *controlHandler) handleInstallMock(w http.ResponseWriter, raw json.RawMessage) {
	var body installMockWire
	if err := json.Unmarshal(raw, &body); err != nil {
		writePlainText(w, http.StatusBadRequest, "Bad Request")
		return
	}
	// Check the id under the shared lock first; installRule re-checks it
	// under the exclusive lock before mutating.
	if !h.state.instanceMatches(body.Instance) || !h.state.installRule(body.Instance, body.Mock.toRule()) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"InstanceNotFound": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writePlainText(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	_, _ = w.Write([]byte(msg))
}
