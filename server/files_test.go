package main

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"

	"lanrelay/server/internal/framing"
)

func newTestBroker(t *testing.T) (*FileBroker, string) {
	t.Helper()
	dir := t.TempDir()
	registry := NewRegistry()
	broker, err := NewFileBroker(dir, registry)
	if err != nil {
		t.Fatalf("NewFileBroker: %v", err)
	}
	return broker, dir
}

func TestFileUploadWritesFileAndBroadcastsOffer(t *testing.T) {
	broker, dir := newTestBroker(t)
	alice := &mockConn{name: "alice"}
	broker.registry.Register(alice, "alice", addr("10.0.0.1:10001"), addr("10.0.0.1:11001"))

	client, server := net.Pipe()
	go broker.handleConn(server)

	body := []byte("hello world")
	framing.WriteJSONFrame(client, FileMsg{Type: "file_upload", Filename: "doc.txt", Size: int64(len(body)), From: "alice"})

	ready := make([]byte, 5)
	if _, err := io.ReadFull(client, ready); err != nil {
		t.Fatalf("read READY: %v", err)
	}
	if string(ready) != "READY" {
		t.Fatalf("expected READY, got %q", ready)
	}

	client.Write(body)

	done := make([]byte, 4)
	if _, err := io.ReadFull(client, done); err != nil {
		t.Fatalf("read DONE: %v", err)
	}
	if string(done) != "DONE" {
		t.Fatalf("expected DONE, got %q", done)
	}
	client.Close()

	data, err := os.ReadFile(filepath.Join(dir, "doc.txt"))
	if err != nil {
		t.Fatalf("expected file on disk: %v", err)
	}
	if string(data) != "hello world" {
		t.Fatalf("unexpected file contents: %q", data)
	}

	if len(alice.received) != 1 || alice.received[0].Type != "file_offer" {
		t.Fatalf("expected file_offer broadcast, got %+v", alice.received)
	}
	offer := alice.received[0]
	if offer.Filename != "doc.txt" || offer.Size != int64(len(body)) || offer.From != "alice" {
		t.Fatalf("unexpected file_offer contents: %+v", offer)
	}
}

func TestFileUploadReducesFilenameToBasename(t *testing.T) {
	broker, dir := newTestBroker(t)
	client, server := net.Pipe()
	go broker.handleConn(server)
	defer client.Close()

	body := []byte("x")
	framing.WriteJSONFrame(client, FileMsg{Type: "file_upload", Filename: "../../etc/evil.txt", Size: 1})
	io.ReadFull(client, make([]byte, 5))
	client.Write(body)
	io.ReadFull(client, make([]byte, 4))

	if _, err := os.Stat(filepath.Join(dir, "evil.txt")); err != nil {
		t.Fatalf("expected basename-reduced file to exist: %v", err)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(dir), "etc", "evil.txt")); err == nil {
		t.Fatalf("upload must not escape the root directory via path traversal")
	}
}

func TestFileDownloadMissingFileRepliesError(t *testing.T) {
	broker, _ := newTestBroker(t)
	client, server := net.Pipe()
	go broker.handleConn(server)
	defer client.Close()

	framing.WriteJSONFrame(client, FileMsg{Type: "file_download", Filename: "missing.txt"})

	resp := make([]byte, 5)
	if _, err := io.ReadFull(client, resp); err != nil {
		t.Fatalf("read ERROR: %v", err)
	}
	if string(resp) != "ERROR" {
		t.Fatalf("expected ERROR, got %q", resp)
	}
}

func TestFileDownloadStreamsExactSize(t *testing.T) {
	broker, dir := newTestBroker(t)
	content := []byte("the quick brown fox")
	if err := os.WriteFile(filepath.Join(dir, "present.txt"), content, 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	client, server := net.Pipe()
	go broker.handleConn(server)
	defer client.Close()

	framing.WriteJSONFrame(client, FileMsg{Type: "file_download", Filename: "present.txt"})

	reader := bufio.NewReader(client)
	sizeLine, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read size line: %v", err)
	}
	want := fmt.Sprintf("{\"size\":%d}\n", len(content))
	if sizeLine != want {
		t.Fatalf("expected size header %q, got %q", want, sizeLine)
	}

	client.Write([]byte{1}) // ack

	body := make([]byte, len(content))
	if _, err := io.ReadFull(reader, body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(body) != string(content) {
		t.Fatalf("unexpected body: %q", body)
	}
}
