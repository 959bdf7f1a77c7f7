package grader

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPClientScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/grade" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req gradeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.StudentAnswer != "student" || req.ReferenceAnswer != "reference" {
			t.Errorf("unexpected payload: %+v", req)
		}
		json.NewEncoder(w).Encode(map[string]float64{
			"similarity":     0.723,
			"marks_out_of_1": 0.8,
		})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)
	sim, err := c.Score(context.Background(), "student", "reference")
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if sim != 0.723 {
		t.Errorf("expected 0.723, got %v", sim)
	}
}

func TestHTTPClientNon200(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusServiceUnavailable, http.StatusInternalServerError} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))

		c := NewHTTPClient(srv.URL, time.Second)
		_, err := c.Score(context.Background(), "a", "b")
		if !errors.Is(err, ErrUnavailable) {
			t.Errorf("status %d: expected ErrUnavailable, got %v", status, err)
		}
		srv.Close()
	}
}

func TestHTTPClientTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer func() {
		close(block)
		srv.Close()
	}()

	c := NewHTTPClient(srv.URL, 50*time.Millisecond)
	start := time.Now()
	_, err := c.Score(context.Background(), "a", "b")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable on timeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout not bounded: took %v", elapsed)
	}
}

func TestHTTPClientConnectionRefused(t *testing.T) {
	c := NewHTTPClient("http://127.0.0.1:1", 200*time.Millisecond)
	_, err := c.Score(context.Background(), "a", "b")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestHTTPClientRejectsOutOfRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]float64{"similarity": 1.7})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)
	_, err := c.Score(context.Background(), "a", "b")
	if err == nil {
		t.Fatal("expected error for out-of-range similarity")
	}
	if errors.Is(err, ErrUnavailable) {
		t.Error("malformed payload is not an availability failure")
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name    string
		a, b    []float32
		want    float64
		wantErr bool
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1, false},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0, false},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1, false},
		{"mismatched dims", []float32{1}, []float32{1, 0}, 0, true},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cosineSimilarity(tt.a, tt.b)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && (got < tt.want-1e-9 || got > tt.want+1e-9) {
				t.Errorf("cosineSimilarity = %v, want %v", got, tt.want)
			}
		})
	}
}
