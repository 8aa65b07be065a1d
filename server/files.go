package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"time"

	"lanrelay/server/internal/framing"
)

// FileBroker is the stream-based file upload/download brokerage (C8). Every
// connection carries exactly one operation: a framed JSON header followed by
// a raw byte stream, grounded on the teacher's blob store's
// temp-file-then-rename write discipline but without sqlite metadata, since
// the spec's filesystem-only registry needs nothing durable beyond the
// files themselves.
type FileBroker struct {
	rootDir  string
	registry *Registry
}

// NewFileBroker ensures rootDir exists and returns a broker rooted there.
func NewFileBroker(rootDir string, registry *Registry) (*FileBroker, error) {
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("files: create root dir: %w", err)
	}
	return &FileBroker{rootDir: rootDir, registry: registry}, nil
}

// Serve accepts file-broker connections on ln until it is closed.
func (b *FileBroker) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("files: accept: %w", err)
		}
		go b.handleConn(conn)
	}
}

func (b *FileBroker) handleConn(conn net.Conn) {
	defer conn.Close()

	var header FileMsg
	conn.SetReadDeadline(time.Now().Add(ControlReadTimeout))
	if err := framing.ReadJSONFrame(conn, &header); err != nil {
		slog.Debug("files: invalid header", "err", err)
		return
	}
	conn.SetReadDeadline(time.Time{})

	switch header.Type {
	case "file_upload":
		b.handleUpload(conn, header)
	case "file_download":
		b.handleDownload(conn, header)
	default:
		slog.Debug("files: unknown operation", "type", header.Type)
	}
}

// handleUpload implements §4.8's upload flow: reply READY, read exactly
// size bytes into a temp file, rename into place, reply DONE, then announce
// the new file to everyone via the control channel's registry.
func (b *FileBroker) handleUpload(conn net.Conn, header FileMsg) {
	name := filepath.Base(header.Filename)
	if name == "" || name == "." || name == string(filepath.Separator) {
		return
	}

	tmp, err := os.CreateTemp(b.rootDir, ".upload-*")
	if err != nil {
		slog.Warn("files: create temp file", "err", err)
		return
	}
	tmpPath := tmp.Name()

	if _, err := conn.Write([]byte("READY")); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return
	}

	conn.SetReadDeadline(time.Now().Add(FileBodyTimeout))
	written, err := io.CopyN(tmp, conn, header.Size)
	closeErr := tmp.Close()
	if err != nil || closeErr != nil || written != header.Size {
		os.Remove(tmpPath)
		slog.Warn("files: upload body incomplete", "filename", name, "want", header.Size, "got", written, "err", err)
		return
	}

	finalPath := filepath.Join(b.rootDir, name)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		slog.Warn("files: rename into place failed", "filename", name, "err", err)
		return
	}

	if _, err := conn.Write([]byte("DONE")); err != nil {
		slog.Debug("files: DONE write failed", "err", err)
	}

	slog.Info("files: upload complete", "filename", name, "size", header.Size, "from", header.From)
	b.registry.Broadcast(ControlMsg{
		Type:     "file_offer",
		From:     header.From,
		Filename: name,
		Size:     header.Size,
	}, nil)
}

// handleDownload implements §4.8's download flow: ERROR if the file is
// absent, otherwise a size header, an ack wait, then the raw body.
func (b *FileBroker) handleDownload(conn net.Conn, header FileMsg) {
	name := filepath.Base(header.Filename)
	path := filepath.Join(b.rootDir, name)

	info, err := os.Stat(path)
	if err != nil {
		conn.Write([]byte("ERROR"))
		return
	}

	f, err := os.Open(path)
	if err != nil {
		conn.Write([]byte("ERROR"))
		return
	}
	defer f.Close()

	sizeLine := fmt.Sprintf("{\"size\":%d}\n", info.Size())
	if _, err := conn.Write([]byte(sizeLine)); err != nil {
		return
	}

	ack := make([]byte, 1)
	conn.SetReadDeadline(time.Now().Add(FileBodyTimeout))
	if _, err := conn.Read(ack); err != nil {
		return
	}

	conn.SetWriteDeadline(time.Now().Add(FileBodyTimeout))
	if _, err := io.Copy(conn, f); err != nil {
		slog.Debug("files: download stream failed", "filename", name, "err", err)
	}
}
