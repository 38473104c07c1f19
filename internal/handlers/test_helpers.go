package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/BradenHooton/bnetlogin/internal/async"
	pkghttp "github.com/BradenHooton/bnetlogin/pkg/http"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithTicket sets a Basic Authorization header carrying ticket
func WithTicket(req *http.Request, ticket string) *http.Request {
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(ticket+":x")))
	return req
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, pkghttp.ContentTypeJSON, w.Header().Get("Content-Type"))

	if target != nil {
		if err := json.Unmarshal(w.Body.Bytes(), target); err != nil {
			t.Fatalf("failed to decode response body: %v (body: %s)", err, w.Body.String())
		}
	}
}

// AssertErrorResponse checks status and the machine-readable error code
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedCode string) {
	var resp pkghttp.ErrorResponse
	AssertJSONResponse(t, w, expectedStatus, &resp)
	assert.Equal(t, expectedCode, resp.Error)
}

// MockLoginChains implements LoginChainsInterface for testing
type MockLoginChains struct {
	AuthenticateFunc  func(login, password, ipAddress string) async.Step
	RefreshTicketFunc func(ticket string) async.Step
	GameAccountsFunc  func(ticket string) async.Step
}

func (m *MockLoginChains) Authenticate(login, password, ipAddress string) async.Step {
	if m.AuthenticateFunc != nil {
		return m.AuthenticateFunc(login, password, ipAddress)
	}
	return async.Finish(nil)
}

func (m *MockLoginChains) RefreshTicket(ticket string) async.Step {
	if m.RefreshTicketFunc != nil {
		return m.RefreshTicketFunc(ticket)
	}
	return async.Finish(nil)
}

func (m *MockLoginChains) GameAccounts(ticket string) async.Step {
	if m.GameAccountsFunc != nil {
		return m.GameAccountsFunc(ticket)
	}
	return async.Finish(nil)
}

// MockResolver implements HostnameResolver for testing
type MockResolver struct {
	HostnameForFunc func(addr netip.Addr) string
}

func (m *MockResolver) HostnameFor(addr netip.Addr) string {
	if m.HostnameForFunc != nil {
		return m.HostnameForFunc(addr)
	}
	return "127.0.0.1"
}

// MockHealthChecker implements HealthChecker for testing
type MockHealthChecker struct {
	Err error
}

func (m *MockHealthChecker) HealthCheck(ctx context.Context) error {
	return m.Err
}
