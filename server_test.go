package mockproxy_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulcinella/mockproxy"
)

func startServer(t *testing.T, mode mockproxy.Mode) *mockproxy.Server {
	t.Helper()
	s := mockproxy.New(
		mockproxy.WithControlAddr("127.0.0.1:0"),
		mockproxy.WithMockAddr("127.0.0.1:0"),
		mockproxy.WithMode(mode),
	)
	require.NoError(t, s.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s
}

func createInstance(t *testing.T, controlURL string) string {
	t.Helper()
	resp, err := http.Post(controlURL, "application/json", bytes.NewBufferString(`{"CreateInstance":null}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body["instance"].(string)
}

func installMock(t *testing.T, controlURL, instance, path, method string, formData [][2]string, status int, headers [][2]string, responseBody string) {
	t.Helper()
	bodyBytes := []int{}
	for _, c := range []byte(responseBody) {
		bodyBytes = append(bodyBytes, int(c))
	}
	payload := map[string]any{
		"InstallMock": map[string]any{
			"instance": instance,
			"mock": map[string]any{
				"when": map[string]any{
					"match_path": path,
					"form_data":  formData,
					"method":     nilIfEmpty(method),
				},
				"then": map[string]any{
					"status":  status,
					"headers": headers,
					"body":    bodyBytes,
				},
			},
		},
	}
	data, err := json.Marshal(payload)
	require.NoError(t, err)

	resp, err := http.Post(controlURL, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func TestE2E_NoRulesMockMode404(t *testing.T) {
	s := startServer(t, mockproxy.ModeMock)
	resp, err := http.Get("http://" + s.MockAddr().String() + "/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestE2E_PathMatch(t *testing.T) {
	s := startServer(t, mockproxy.ModeMock)
	controlURL := "http://" + s.ControlAddr().String()
	id := createInstance(t, controlURL)
	installMock(t, controlURL, id, "/p", "", nil, 200, nil, "")

	resp, err := http.Get("http://" + s.MockAddr().String() + "/p")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get("http://" + s.MockAddr().String() + "/q")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestE2E_MethodFilter(t *testing.T) {
	s := startServer(t, mockproxy.ModeMock)
	controlURL := "http://" + s.ControlAddr().String()
	id := createInstance(t, controlURL)
	installMock(t, controlURL, id, "/p", "DELETE", nil, 200, nil, "")

	resp, err := http.Get("http://" + s.MockAddr().String() + "/p")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestE2E_SpecificityWins(t *testing.T) {
	s := startServer(t, mockproxy.ModeMock)
	controlURL := "http://" + s.ControlAddr().String()
	id := createInstance(t, controlURL)
	installMock(t, controlURL, id, "/p", "", nil, 200, nil, "")
	installMock(t, controlURL, id, "/p", "", [][2]string{{"k", "v"}}, 201, nil, "")

	resp, err := http.Post("http://"+s.MockAddr().String()+"/p", "application/x-www-form-urlencoded", bytes.NewBufferString("k=v"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err = http.Get("http://" + s.MockAddr().String() + "/p")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestE2E_HeadersAndBody(t *testing.T) {
	s := startServer(t, mockproxy.ModeMock)
	controlURL := "http://" + s.ControlAddr().String()
	id := createInstance(t, controlURL)
	installMock(t, controlURL, id, "/p", "", nil, 200, [][2]string{{"X", "Y"}}, "hello")

	resp, err := http.Get("http://" + s.MockAddr().String() + "/p")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Y", resp.Header.Get("X"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
}

func TestE2E_InstanceReplacement(t *testing.T) {
	s := startServer(t, mockproxy.ModeMock)
	controlURL := "http://" + s.ControlAddr().String()
	idA := createInstance(t, controlURL)
	installMock(t, controlURL, idA, "/p", "", nil, 200, nil, "")
	createInstance(t, controlURL) // replaces idA with idB

	payload := fmt.Sprintf(`{"InstallMock":{"instance":%q,"mock":{"when":{"match_path":"/p","form_data":[],"method":null},"then":{"status":200,"headers":[],"body":[]}}}}`, idA)
	resp, err := http.Post(controlURL, "application/json", bytes.NewBufferString(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	_, ok := body["InstanceNotFound"]
	assert.True(t, ok)

	resp2, err := http.Get("http://" + s.MockAddr().String() + "/p")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestE2E_ProxyHappyPath(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-From", "upstream")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("real response"))
	}))
	defer upstream.Close()

	s := startServer(t, mockproxy.ModeProxy)

	req, err := http.NewRequest(http.MethodGet, "http://"+s.MockAddr().String()+"/", nil)
	require.NoError(t, err)
	req.Host = upstream.Listener.Addr().String()

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "upstream", resp.Header.Get("X-From"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "real response", string(body))
}

func TestE2E_ProxyBadHost(t *testing.T) {
	s := startServer(t, mockproxy.ModeProxy)

	req, err := http.NewRequest(http.MethodGet, "http://"+s.MockAddr().String()+"/", nil)
	require.NoError(t, err)
	req.Host = "not a url"

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestE2E_ProxyUnreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	s := startServer(t, mockproxy.ModeProxy)

	req, err := http.NewRequest(http.MethodGet, "http://"+s.MockAddr().String()+"/", nil)
	require.NoError(t, err)
	req.Host = addr

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestE2E_CORSPreflight(t *testing.T) {
	s := startServer(t, mockproxy.ModeMock)

	for _, addr := range []string{s.ControlAddr().String(), s.MockAddr().String()} {
		req, err := http.NewRequest(http.MethodOptions, "http://"+addr+"/", nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	}
}
