package httpmw_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	authkit "github.com/atlas-pt/authkit-go"
	"github.com/atlas-pt/authkit-go/fake"
	"github.com/atlas-pt/authkit-go/middleware/httpmw"
	"github.com/google/uuid"
)

func TestRequestID_GeneratesAndPropagates(t *testing.T) {
	var seen string
	h := httpmw.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = authkit.RequestIDFromContext(r.Context())
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	echoed := w.Header().Get(authkit.HeaderRequestID)
	if _, err := uuid.Parse(echoed); err != nil {
		t.Fatalf("echoed ID %q is not a UUID: %v", echoed, err)
	}
	if seen != echoed {
		t.Errorf("handler saw %q, response echoed %q", seen, echoed)
	}
}

func TestRequestID_ReusesInboundHeader(t *testing.T) {
	h := httpmw.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(authkit.HeaderRequestID, "edge-proxy-7")
	h.ServeHTTP(w, req)

	if got := w.Header().Get(authkit.HeaderRequestID); got != "edge-proxy-7" {
		t.Errorf("echoed ID = %q, want inbound value unchanged", got)
	}
}

func TestAuth_ValidTokenPopulatesContext(t *testing.T) {
	verifier := fake.NewVerifier(
		fake.WithToken("good", &authkit.Claims{Subject: "user-1", TenantID: "tenant-2"}),
	)

	var userID, tenantID string
	h := httpmw.Auth(verifier, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID = authkit.UserIDFromContext(r.Context())
		tenantID = authkit.TenantIDFromContext(r.Context())
	}))

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer good")
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if userID != "user-1" || tenantID != "tenant-2" {
		t.Errorf("context = (%q, %q), want (user-1, tenant-2)", userID, tenantID)
	}
}

func TestAuth_ExpiredVersusInvalid(t *testing.T) {
	verifier := fake.NewVerifier(fake.WithExpiredToken("stale"))
	h := httpmw.Auth(verifier, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	cases := []struct {
		name     string
		token    string
		wantCode bool
	}{
		{"expired token carries code", "stale", true},
		{"unknown token is plain 401", "forged", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest("GET", "/", nil)
			req.Header.Set("Authorization", "Bearer "+tc.token)
			h.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", w.Code)
			}
			hasCode := strings.Contains(w.Body.String(), authkit.CodeTokenExpired)
			if hasCode != tc.wantCode {
				t.Errorf("body = %s, wantCode=%v", w.Body.String(), tc.wantCode)
			}
		})
	}
}

func TestAuth_MissingHeader(t *testing.T) {
	h := httpmw.Auth(fake.NewVerifier(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}
