package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/zefau/huesync/internal/bridges/hue"
)

// fakePairer records the registration exchange.
type fakePairer struct {
	username      string
	err           error
	gotDevicetype string
}

func (f *fakePairer) Register(_ context.Context, devicetype string) (string, error) {
	f.gotDevicetype = devicetype
	if f.err != nil {
		return "", f.err
	}
	return f.username, nil
}

func TestPair(t *testing.T) {
	srv, _ := testServer(t)
	pairer := &fakePairer{username: "newuser-abc123"}
	srv.pairer = pairer
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/pair", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp PairResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if resp.Username != "newuser-abc123" {
		t.Errorf("username = %q, want newuser-abc123", resp.Username)
	}
	if pairer.gotDevicetype != "huesync#test" {
		t.Errorf("devicetype = %q, want huesync#test", pairer.gotDevicetype)
	}
}

func TestPair_DevicetypeOverride(t *testing.T) {
	srv, _ := testServer(t)
	pairer := &fakePairer{username: "newuser"}
	srv.pairer = pairer
	router := srv.buildRouter()

	body := `{"devicetype": "huesync#wallpanel"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/pair", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if pairer.gotDevicetype != "huesync#wallpanel" {
		t.Errorf("devicetype = %q, want huesync#wallpanel", pairer.gotDevicetype)
	}
}

func TestPair_InvalidBody(t *testing.T) {
	srv, _ := testServer(t)
	srv.pairer = &fakePairer{username: "newuser"}
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/pair", strings.NewReader("not json"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestPair_LinkButtonNotPressed(t *testing.T) {
	srv, _ := testServer(t)
	srv.pairer = &fakePairer{
		err: fmt.Errorf("%w: link button not pressed (type 101)", hue.ErrBridgeResponse),
	}
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/pair", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusConflict, w.Body.String())
	}

	var apiErr Error
	if err := json.Unmarshal(w.Body.Bytes(), &apiErr); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if apiErr.Code != ErrCodeConflict {
		t.Errorf("code = %q, want %q", apiErr.Code, ErrCodeConflict)
	}
	if !strings.Contains(apiErr.Message, "link button") {
		t.Errorf("message = %q, want it to mention the link button", apiErr.Message)
	}
}

func TestPair_TransportError(t *testing.T) {
	srv, _ := testServer(t)
	srv.pairer = &fakePairer{err: errors.New("dial tcp: connection refused")}
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/pair", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadGateway)
	}
}

func TestPair_Unavailable(t *testing.T) {
	srv, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/pair", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
}
