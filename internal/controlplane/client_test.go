package controlplane

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tidebase/pkg/logger"
)

func init() {
	logger.InitLogger("test")
}

func TestListEndpoints(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"endpoints": [
			{"name": "ep-main", "host": "ep.db.example.com", "state": "active",
			 "spec": {"autoscaling_limit_min_cu": 0.5, "autoscaling_limit_max_cu": 4}}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "ws-token", 5*time.Second)
	eps, err := c.ListEndpoints(context.Background(), "proj", "production")
	if err != nil {
		t.Fatalf("ListEndpoints: %v", err)
	}
	if gotPath != "/api/2.0/postgres/projects/proj/branches/production/endpoints" {
		t.Errorf("path = %s", gotPath)
	}
	if gotAuth != "Bearer ws-token" {
		t.Errorf("auth = %s", gotAuth)
	}
	if len(eps) != 1 || eps[0].Name != "ep-main" || eps[0].Spec.MaxCU != 4 {
		t.Errorf("unexpected endpoints: %+v", eps)
	}
}

func TestGenerateCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		w.Write([]byte(`{"token": "db-token", "expiration_time": "2026-09-01T12:00:00Z"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "ws-token", 5*time.Second)
	cred, err := c.GenerateCredential(context.Background(), "ep-main")
	if err != nil {
		t.Fatalf("GenerateCredential: %v", err)
	}
	if cred.Token != "db-token" {
		t.Errorf("token = %q", cred.Token)
	}
	if cred.ExpiresAt.IsZero() {
		t.Error("expiration not parsed")
	}
}

func TestGenerateCredentialEmptyToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "ws-token", 5*time.Second)
	if _, err := c.GenerateCredential(context.Background(), "ep-main"); err == nil {
		t.Fatal("empty token response must fail")
	}
}

func TestAuthErrorDetection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("permission denied"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "ws-token", 5*time.Second)
	_, err := c.ListEndpoints(context.Background(), "proj", "production")
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsAuthError(err) {
		t.Errorf("IsAuthError(%v) = false, want true", err)
	}
}

func TestWorkspaceToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oidc/v1/token" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"access_token": "oauth-token", "expires_in": 3600}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "ws-token", 5*time.Second)
	cred, err := c.WorkspaceToken(context.Background())
	if err != nil {
		t.Fatalf("WorkspaceToken: %v", err)
	}
	if cred.Token != "oauth-token" {
		t.Errorf("token = %q", cred.Token)
	}
	if time.Until(cred.ExpiresAt) <= 0 {
		t.Error("expiry not derived from expires_in")
	}
}
