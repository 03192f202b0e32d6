package pathstore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPutNodeSendsAuthAndBody(t *testing.T) {
	var got NodeRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/kv/docs/a/meta" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("auth = %q", r.Header.Get("Authorization"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret")
	err := c.PutNode(context.Background(), "docs/a/meta", NodeRequest{Value: "v", Source: "mdguard:a"})
	if err != nil {
		t.Fatalf("PutNode: %v", err)
	}
	if got.Source != "mdguard:a" || got.Value != "v" {
		t.Errorf("body = %+v", got)
	}
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		status    int
		retryable bool
	}{
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tc.status)
		}))
		err := NewClient(srv.URL, "k").PutNode(context.Background(), "x", NodeRequest{})
		srv.Close()

		var re *RetryableError
		if errors.As(err, &re) != tc.retryable {
			t.Errorf("status %d: err = %v, retryable want %v", tc.status, err, tc.retryable)
		}
	}
}

func TestGetNodeNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	_, err := NewClient(srv.URL, "k").GetNode(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListChildren(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/kv/docs/*" || r.URL.Query().Get("limit") != "5" {
			t.Errorf("request = %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		w.Write([]byte(`{"nodes":[{"key_path":"docs.a.meta","value":{"title":"A"}}]}`))
	}))
	defer srv.Close()

	nodes, err := NewClient(srv.URL, "k").ListChildren(context.Background(), "docs", 5)
	if err != nil {
		t.Fatalf("ListChildren: %v", err)
	}
	if len(nodes) != 1 || nodes[0].Key != "docs.a.meta" {
		t.Errorf("nodes = %+v", nodes)
	}
}

func TestNetworkErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	err := NewClient(url, "k").DeleteNode(context.Background(), "x", true)
	var re *RetryableError
	if !errors.As(err, &re) {
		t.Errorf("err = %v, want RetryableError", err)
	}
}
