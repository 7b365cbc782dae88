package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestDecodeJSON(t *testing.T) {
	cases := []struct {
		name string
		body string
		ok   bool
	}{
		{"object", `{"username":"alice"}`, true},
		{"trailing", `{"username":"alice"} {}`, false},
		{"malformed", `{"username":`, false},
		{"empty", ``, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var dst struct {
				Username string `json:"username"`
			}
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			err := DecodeJSON(httptest.NewRecorder(), r, &dst)
			if (err == nil) != tc.ok {
				t.Fatalf("err=%v", err)
			}
		})
	}
}

func TestDecodeJSON_BodyLimit(t *testing.T) {
	big := `{"username":"` + strings.Repeat("a", MaxBodyBytes) + `"}`
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))
	var dst map[string]string
	if err := DecodeJSON(httptest.NewRecorder(), r, &dst); err == nil {
		t.Fatalf("oversized body accepted")
	}
}

func TestWriteErrorAndNoStore(t *testing.T) {
	h := NoStore(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusForbidden, "tenant_required", "tenant required")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusForbidden || rec.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("code=%d headers=%v", rec.Code, rec.Header())
	}
	var body ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error != "tenant_required" || body.RemainingAttempts != nil {
		t.Fatalf("body=%+v", body)
	}
}
