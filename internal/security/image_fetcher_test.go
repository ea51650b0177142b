package security

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

// newTestFetcher はhttptestサーバー（ループバック）へ接続できるよう
// 事前検証を無効化したImageFetcherを返す。
func newTestFetcher(maxBytes int64) *ImageFetcher {
	return &ImageFetcher{
		client:   &http.Client{Timeout: 5 * time.Second},
		maxBytes: maxBytes,
		validate: func(string) error { return nil },
	}
}

func TestImageFetcher_Fetch_Success(t *testing.T) {
	payload := bytes.Repeat([]byte{0xFF}, 1024)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "image/*" {
			t.Errorf("Accept = %q, want image/*", r.Header.Get("Accept"))
		}
		w.Header().Set("Content-Type", "image/jpeg; charset=binary")
		w.Write(payload)
	}))
	defer ts.Close()

	img, err := newTestFetcher(4096).Fetch(context.Background(), ts.URL+"/photos/kokeshi.jpg")
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if img.ContentType != "image/jpeg" {
		t.Errorf("ContentType = %q, want %q", img.ContentType, "image/jpeg")
	}
	if img.Filename != "kokeshi.jpg" {
		t.Errorf("Filename = %q, want %q", img.Filename, "kokeshi.jpg")
	}
	if len(img.Data) != len(payload) {
		t.Errorf("len(Data) = %d, want %d", len(img.Data), len(payload))
	}
}

func TestImageFetcher_Fetch_TooLarge(t *testing.T) {
	tests := []struct {
		name          string
		contentLength bool
	}{
		{"with Content-Length", true},
		{"chunked", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := bytes.Repeat([]byte{0x01}, 2048)
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "image/png")
				if tt.contentLength {
					w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
					w.Write(payload)
					return
				}
				// Flushで Content-Length なしのストリーミング応答にする
				w.Write(payload[:1024])
				w.(http.Flusher).Flush()
				w.Write(payload[1024:])
			}))
			defer ts.Close()

			_, err := newTestFetcher(1500).Fetch(context.Background(), ts.URL+"/big.png")
			if !errors.Is(err, ErrImageTooLarge) {
				t.Errorf("error = %v, want ErrImageTooLarge", err)
			}
		})
	}
}

func TestImageFetcher_Fetch_NonOKStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	if _, err := newTestFetcher(1024).Fetch(context.Background(), ts.URL); err == nil {
		t.Fatal("expected error for 404 response")
	}
}

func TestImageFetcher_Fetch_BlockedURL(t *testing.T) {
	f := NewImageFetcher(time.Second, 1024)

	_, err := f.Fetch(context.Background(), "http://169.254.169.254/latest/meta-data/")
	if !errors.Is(err, ErrBlockedURL) {
		t.Errorf("error = %v, want ErrBlockedURL", err)
	}
}

func TestFilenameFromURL(t *testing.T) {
	tests := map[string]string{
		"https://example.com/a/b/c.png": "c.png",
		"https://example.com/":          "image",
		"https://example.com":           "image",
	}
	for in, want := range tests {
		if got := filenameFromURL(in); got != want {
			t.Errorf("filenameFromURL(%q) = %q, want %q", in, got, want)
		}
	}
}
