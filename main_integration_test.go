package main

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"syscall"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/example/age-gender-ui/internal/config"
	"github.com/example/age-gender-ui/internal/display"
	"github.com/example/age-gender-ui/internal/handlers"
	"github.com/example/age-gender-ui/internal/upload"
)

func testConfig(inferenceURL, staticDir string) *config.Config {
	return &config.Config{
		Server:    config.ServerConfig{MaxUploadBytes: 1 << 20, ShutdownTimeout: 2 * time.Second},
		Inference: config.InferenceConfig{URL: inferenceURL, Timeout: 2 * time.Second, MaxResultBytes: 1 << 20},
		Samples:   config.SamplesConfig{StaticDir: staticDir},
		Display:   config.DisplayConfig{Store: config.StoreMemory},
	}
}

func TestServerGracefulShutdownCompletesInFlightSubmission(t *testing.T) {
	logger := zap.NewNop()

	requestStarted := make(chan struct{})
	releaseRequest := make(chan struct{})
	defer func() {
		select {
		case <-releaseRequest:
		default:
			close(releaseRequest)
		}
	}()

	inference := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-requestStarted:
		default:
			close(requestStarted)
		}
		<-releaseRequest
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("annotated"))
	}))
	defer inference.Close()

	router, sessions := buildApp(testConfig(inference.URL, t.TempDir()), display.NewMemoryStore(), logger)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	server := &http.Server{Handler: router}

	signalCh := make(chan os.Signal, 1)
	done := make(chan error, 1)
	go func() {
		done <- serveHTTPServerWithOptions(server, 2*time.Second, logger, listener, signalCh)
	}()

	base := "http://" + listener.Addr().String()
	waitForServer(t, listener.Addr().String())

	jar, _ := cookiejar.New(nil)
	client := &http.Client{Timeout: 3 * time.Second, Jar: jar}
	selectFile(t, client, base)

	respCh := make(chan *http.Response, 1)
	errCh := make(chan error, 1)
	noRedirect := &http.Client{
		Timeout: 3 * time.Second,
		Jar:     jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	go func() {
		resp, err := noRedirect.Post(base+"/upload", "application/x-www-form-urlencoded", nil)
		if err != nil {
			errCh <- err
			return
		}
		respCh <- resp
	}()

	select {
	case <-requestStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("submission did not reach the inference service in time")
	}

	signalCh <- syscall.SIGTERM
	time.Sleep(50 * time.Millisecond)
	close(releaseRequest)

	select {
	case resp := <-respCh:
		t.Cleanup(func() { resp.Body.Close() })
		if resp.StatusCode != http.StatusSeeOther {
			body, _ := io.ReadAll(resp.Body)
			t.Fatalf("unexpected status: %d body: %s", resp.StatusCode, string(body))
		}
	case err := <-errCh:
		t.Fatalf("request failed: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("request did not complete")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("server did not shutdown cleanly: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server did not exit after shutdown")
	}

	u, _ := url.Parse(base)
	var sessionID string
	for _, c := range jar.Cookies(u) {
		if c.Name == handlers.SessionCookie {
			sessionID = c.Value
		}
	}
	s, created := sessions.Resolve(sessionID)
	if created {
		t.Fatal("expected the submitting page session to still exist")
	}
	if got := s.Upload.Snapshot().State; got != upload.StateSucceeded {
		t.Fatalf("expected the in-flight submission to settle as Succeeded, got %s", got)
	}
}

func TestUnreachableInferenceServiceRendersGenericError(t *testing.T) {
	inference := httptest.NewServer(http.NotFoundHandler())
	unreachable := inference.URL
	inference.Close()

	router, _ := buildApp(testConfig(unreachable, t.TempDir()), display.NewMemoryStore(), zap.NewNop())
	server := httptest.NewServer(router)
	defer server.Close()

	jar, _ := cookiejar.New(nil)
	client := &http.Client{Timeout: 3 * time.Second, Jar: jar}
	selectFile(t, client, server.URL)

	resp, err := client.Post(server.URL+"/upload", "application/x-www-form-urlencoded", nil)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	resp.Body.Close()

	resp, err = client.Get(server.URL + "/state")
	if err != nil {
		t.Fatalf("state failed: %v", err)
	}
	defer resp.Body.Close()

	var view struct {
		State string `json:"state"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		t.Fatalf("failed to decode state: %v", err)
	}
	if view.State != "Failed" || view.Error != "Something went wrong. Please try again." {
		t.Fatalf("unexpected state: %+v", view)
	}
}

func selectFile(t *testing.T, client *http.Client, base string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "face.jpg")
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := part.Write(bytes.Repeat([]byte{0xFF}, 10*1024)); err != nil {
		t.Fatalf("failed to write payload: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	resp, err := client.Post(base+"/select", writer.FormDataContentType(), body)
	if err != nil {
		t.Fatalf("select failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected the redirect to land on the page, got %d", resp.StatusCode)
	}
}

func waitForServer(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("server %s did not become ready", addr)
}
