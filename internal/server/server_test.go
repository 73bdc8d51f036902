package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/an-empty-string/amethyst/internal/accesslog"
	"github.com/an-empty-string/amethyst/internal/gemini"
	"github.com/an-empty-string/amethyst/internal/tlsmgr"
)

type echoResource struct{}

func (echoResource) Handle(ctx *gemini.Context) gemini.Response {
	return gemini.OK("text/gemini", []byte("hello, "+ctx.Host))
}

type panicResource struct{}

func (panicResource) Handle(ctx *gemini.Context) gemini.Response {
	panic("boom")
}

func newTestServer(t *testing.T, maxConns int64) (*Server, int) {
	t.Helper()
	dir := t.TempDir()

	mgr := tlsmgr.NewManager(nil)
	if err := mgr.AddHost(tlsmgr.HostTLSConfig{
		Hosts:    []string{"example.org"},
		Mode:     tlsmgr.ModeAuto,
		CertPath: filepath.Join(dir, "example.org.cert.pem"),
		KeyPath:  filepath.Join(dir, "example.org.key.pem"),
	}); err != nil {
		t.Fatalf("AddHost: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	router := gemini.NewRouter(port)
	router.AddHost(&gemini.HostRoute{
		Host: "example.org",
		Mounts: []gemini.Mount{
			{Prefix: nil, Resource: echoResource{}},
		},
	})

	cfg := Config{Addr: fmt.Sprintf("127.0.0.1:%d", port), MaxConnections: maxConns}
	return New(cfg, mgr, router, nil, nil), port
}

func dialAndRequest(t *testing.T, port int, line string) string {
	t.Helper()
	conn, err := tls.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port), &tls.Config{InsecureSkipVerify: true})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(line)); err != nil {
		t.Fatalf("write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var sb strings.Builder
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		sb.Write(buf[:n])
		if err != nil {
			break
		}
	}
	return sb.String()
}

func startTestServer(t *testing.T, s *Server) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	go func() {
		close(ready)
		s.ListenAndServe(ctx)
	}()
	<-ready
	time.Sleep(50 * time.Millisecond)
	return cancel
}

func TestServerServesRequest(t *testing.T) {
	s, port := newTestServer(t, 16)
	cancel := startTestServer(t, s)
	defer cancel()

	resp := dialAndRequest(t, port, "gemini://example.org/\r\n")
	if !strings.HasPrefix(resp, "20 text/gemini\r\n") {
		t.Fatalf("unexpected response: %q", resp)
	}
	if !strings.Contains(resp, "hello, example.org") {
		t.Errorf("missing body: %q", resp)
	}
}

func TestServerRejectsOversizedURL(t *testing.T) {
	s, port := newTestServer(t, 16)
	cancel := startTestServer(t, s)
	defer cancel()

	huge := "gemini://example.org/" + strings.Repeat("a", 2000) + "\r\n"
	resp := dialAndRequest(t, port, huge)
	if !strings.HasPrefix(resp, "59 URL too long!") {
		t.Fatalf("expected 59 URL too long!, got %q", resp)
	}
}

func TestServerPanicBecomesTemporaryFailure(t *testing.T) {
	dir := t.TempDir()
	mgr := tlsmgr.NewManager(nil)
	mgr.AddHost(tlsmgr.HostTLSConfig{
		Hosts:    []string{"example.org"},
		Mode:     tlsmgr.ModeAuto,
		CertPath: filepath.Join(dir, "c.pem"),
		KeyPath:  filepath.Join(dir, "k.pem"),
	})

	ln, _ := net.Listen("tcp", "127.0.0.1:0")
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	router := gemini.NewRouter(port)
	router.AddHost(&gemini.HostRoute{
		Host:   "example.org",
		Mounts: []gemini.Mount{{Prefix: nil, Resource: panicResource{}}},
	})

	s := New(Config{Addr: fmt.Sprintf("127.0.0.1:%d", port), MaxConnections: 16}, mgr, router, nil, nil)
	cancel := startTestServer(t, s)
	defer cancel()

	resp := dialAndRequest(t, port, "gemini://example.org/\r\n")
	if !strings.HasPrefix(resp, "40 ") {
		t.Fatalf("expected 40 TEMPORARY_FAILURE after panic, got %q", resp)
	}
}

func TestReadRequestLineTooLong(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	go func() {
		client.Write([]byte(strings.Repeat("a", maxURLBytes+10) + "\r\n"))
	}()

	_, err := readRequestLine(server)
	if err != errURLTooLong {
		t.Fatalf("expected errURLTooLong, got %v", err)
	}
}

func TestReadRequestLineBadUTF8(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	go func() {
		client.Write([]byte{0xff, 0xfe, '\r', '\n'})
	}()

	_, err := readRequestLine(server)
	if err != errBadUTF8 {
		t.Fatalf("expected errBadUTF8, got %v", err)
	}
}

func TestReadRequestLineStripsCRLF(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	go func() {
		client.Write([]byte("gemini://example.org/foo\r\n"))
	}()

	line, err := readRequestLine(server)
	if err != nil {
		t.Fatalf("readRequestLine: %v", err)
	}
	if line != "gemini://example.org/foo" {
		t.Errorf("line = %q", line)
	}
}

func TestWriteResponseOmitsBodyOnFailure(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	done := make(chan string)
	go func() {
		all, _ := io.ReadAll(client)
		done <- string(all)
	}()

	resp := gemini.Fail(gemini.NotFound, "nope")
	resp.Body = []byte("must not be sent")
	go func() {
		writeResponse(server, resp)
		server.Close()
	}()

	got := <-done
	if got != "51 nope\r\n" {
		t.Errorf("written bytes = %q, want only the status line", got)
	}
}

func TestServerPersistsAccessLogEntry(t *testing.T) {
	s, port := newTestServer(t, 16)

	dbPath := filepath.Join(t.TempDir(), "access.db")
	log, err := accesslog.Open(dbPath)
	if err != nil {
		t.Fatalf("accesslog.Open: %v", err)
	}
	defer log.Close()
	s.SetAccessLog(log)

	cancel := startTestServer(t, s)
	defer cancel()

	dialAndRequest(t, port, "gemini://example.org/\r\n")

	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("expected access log database to exist: %v", err)
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	if err != nil {
		t.Fatalf("open access log database: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	var count int64
	if err := db.Model(&accesslog.Entry{}).Count(&count).Error; err != nil {
		t.Fatalf("count entries: %v", err)
	}
	if count != 1 {
		t.Errorf("access log entries = %d, want 1", count)
	}
}

func TestParsePortFallback(t *testing.T) {
	if got := parsePort("not-an-addr", 1965); got != 1965 {
		t.Errorf("parsePort fallback = %d, want 1965", got)
	}
	if got := parsePort("127.0.0.1:1966", 1965); got != 1966 {
		t.Errorf("parsePort = %d, want 1966", got)
	}
}
