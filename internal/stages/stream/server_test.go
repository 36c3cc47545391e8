package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jmylchreest/framewire/internal/config"
)

func newTestServer(t *testing.T, ts, mjpeg *Broadcast) *httptest.Server {
	t.Helper()
	s := NewServer(config.StreamConfig{Host: "127.0.0.1", Port: 0}, nil, ts, mjpeg)
	srv := httptest.NewServer(s.Routes())
	t.Cleanup(srv.Close)
	return srv
}

func TestServer_StatsEndpoint(t *testing.T) {
	b := NewBroadcast(testBroadcastConfig())
	defer b.Close()
	if _, err := b.Write([]byte("chunk")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	srv := newTestServer(t, b, nil)

	resp, err := http.Get(srv.URL + "/stats")
	if err != nil {
		t.Fatalf("GET /stats failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var body statsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding stats: %v", err)
	}
	if body.TS == nil {
		t.Fatal("expected ts stats in response")
	}
	if body.TS.Chunks != 1 {
		t.Errorf("ts chunks = %d, want 1", body.TS.Chunks)
	}
	if body.MJPEG != nil {
		t.Error("mjpeg stats should be absent when not configured")
	}
	if body.System.Goroutines <= 0 {
		t.Error("system stats missing goroutine count")
	}
}

func TestServer_MissingStreamIs404(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	for _, path := range []string{"/stream.ts", "/stream.mjpeg"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s failed: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", path, resp.StatusCode)
		}
	}
}

func TestServer_TSStreamDelivery(t *testing.T) {
	b := NewBroadcast(testBroadcastConfig())
	defer b.Close()
	srv := newTestServer(t, b, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/stream.ts", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /stream.ts failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "video/mp2t" {
		t.Errorf("Content-Type = %q, want video/mp2t", ct)
	}

	go func() {
		// Give the handler time to subscribe before publishing.
		time.Sleep(50 * time.Millisecond)
		b.Write([]byte{0x47, 0x40, 0x00, 0x10})
	}()

	buf := make([]byte, 4)
	if _, err := resp.Body.Read(buf); err != nil {
		t.Fatalf("reading stream body: %v", err)
	}
	if buf[0] != 0x47 {
		t.Errorf("first streamed byte = 0x%02X, want TS sync byte", buf[0])
	}
}

func TestServer_TSHeadersSentWhileIdle(t *testing.T) {
	b := NewBroadcast(testBroadcastConfig())
	defer b.Close()
	srv := newTestServer(t, b, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Nothing has been published; the response headers must arrive
	// anyway instead of waiting for the first chunk.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/stream.ts", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("no response headers from idle stream: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "video/mp2t" {
		t.Errorf("Content-Type = %q, want video/mp2t", ct)
	}
}

func TestServer_ClientUnblocksOnBroadcastClose(t *testing.T) {
	b := NewBroadcast(testBroadcastConfig())
	srv := newTestServer(t, b, nil)

	resp, err := http.Get(srv.URL + "/stream.ts")
	if err != nil {
		t.Fatalf("GET /stream.ts failed: %v", err)
	}
	defer resp.Body.Close()

	done := make(chan error, 1)
	go func() {
		_, err := io.Copy(io.Discard, resp.Body)
		done <- err
	}()

	// Let the handler block waiting for chunks, then close the
	// broadcast. The handler must return so the listener can drain.
	time.Sleep(50 * time.Millisecond)
	b.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler kept the connection open after broadcast close")
	}
}

func TestServer_MJPEGMultipart(t *testing.T) {
	b := NewBroadcast(testBroadcastConfig())
	defer b.Close()
	srv := newTestServer(t, nil, b)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/stream.mjpeg", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /stream.mjpeg failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "multipart/x-mixed-replace") {
		t.Errorf("Content-Type = %q, want multipart/x-mixed-replace", ct)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		b.Write([]byte{0xFF, 0xD8, 0x01, 0x02})
	}()

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("reading multipart boundary: %v", err)
	}
	if !strings.HasPrefix(line, "--"+mjpegBoundary) {
		t.Errorf("first line = %q, want boundary", line)
	}
}
