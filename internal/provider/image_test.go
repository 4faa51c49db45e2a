package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, srv *httptest.Server, timeout time.Duration) *Client {
	t.Helper()
	c, err := New(srv.URL+"/gen", "img", timeout)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return c
}

func TestGenerate_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/gen" {
			http.NotFound(w, r)
			return
		}
		if got := r.URL.Query().Get("img"); got != "a red fox & moon" {
			t.Errorf("prompt = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]string{ //nolint:errcheck
			"status":     "success",
			"image_link": "https://cdn.example.com/fox.png",
		})
	}))
	defer srv.Close()

	img, err := newTestClient(t, srv, time.Second).Generate(context.Background(), "a red fox & moon")
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if img.URL != "https://cdn.example.com/fox.png" {
		t.Errorf("URL = %q", img.URL)
	}
}

func TestGenerate_TrimsImageLink(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{ //nolint:errcheck
			"status":     "success",
			"image_link": "  https://cdn.example.com/fox.png\n",
		})
	}))
	defer srv.Close()

	img, err := newTestClient(t, srv, time.Second).Generate(context.Background(), "fox")
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if img.URL != "https://cdn.example.com/fox.png" {
		t.Errorf("URL = %q", img.URL)
	}
}

func TestGenerate_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    ErrorKind
	}{
		{
			name: "bad status",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			want: KindBadStatus,
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Write([]byte("<html>oops</html>")) //nolint:errcheck
			},
			want: KindMalformed,
		},
		{
			name: "rejected",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				json.NewEncoder(w).Encode(map[string]string{"status": "error", "message": "blocked"}) //nolint:errcheck
			},
			want: KindRejected,
		},
		{
			name: "success without link",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				json.NewEncoder(w).Encode(map[string]string{"status": "success"}) //nolint:errcheck
			},
			want: KindMalformed,
		},
		{
			name: "blank link",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				json.NewEncoder(w).Encode(map[string]string{"status": "success", "image_link": " \n"}) //nolint:errcheck
			},
			want: KindMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := newTestClient(t, srv, time.Second).Generate(context.Background(), "x")
			if err == nil {
				t.Fatal("expected error")
			}
			if got := KindOf(err); got != tt.want {
				t.Errorf("kind = %v, want %v (err: %v)", got, tt.want, err)
			}
		})
	}
}

func TestGenerate_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := newTestClient(t, srv, 50*time.Millisecond).Generate(context.Background(), "slow")
	if got := KindOf(err); got != KindTimeout {
		t.Errorf("kind = %v, want timeout (err: %v)", got, err)
	}
}

func TestGenerate_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	c := newTestClient(t, srv, time.Second)
	srv.Close()

	_, err := c.Generate(context.Background(), "x")
	if got := KindOf(err); got != KindTransport {
		t.Errorf("kind = %v, want transport (err: %v)", got, err)
	}
}

func TestNew_RejectsBadEndpoint(t *testing.T) {
	if _, err := New("ftp://example.com", "img", time.Second); err == nil {
		t.Error("expected error for non-http scheme")
	}
}

func TestRequestURL_RawQuery(t *testing.T) {
	c, err := New("https://example.com/api", "", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if got := c.requestURL("two words"); got != "https://example.com/api?two+words" {
		t.Errorf("requestURL = %q", got)
	}
}
