package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"lanrelay/server/internal/framing"
)

// ScreenArbiter is the single-presenter screen-share channel (C6): at most
// one active presenter at a time, broadcasting frames to a set of viewers.
type ScreenArbiter struct {
	registry *Registry

	mu        sync.Mutex
	presenter net.Conn
	viewers   map[net.Conn]struct{}
}

// NewScreenArbiter constructs an arbiter with no active presenter or
// viewers.
func NewScreenArbiter(registry *Registry) *ScreenArbiter {
	return &ScreenArbiter{
		registry: registry,
		viewers:  make(map[net.Conn]struct{}),
	}
}

// Serve accepts screen-share connections on ln until it is closed.
func (a *ScreenArbiter) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("screen: accept: %w", err)
		}
		go a.handleConn(conn)
	}
}

// handleConn reads the role selector and then runs the presenter or viewer
// loop for the remainder of the connection's life, per §4.6.
func (a *ScreenArbiter) handleConn(conn net.Conn) {
	var role ScreenMsg
	conn.SetReadDeadline(time.Now().Add(ScreenReadTimeout))
	if err := framing.ReadJSONFrame(conn, &role); err != nil {
		conn.Close()
		return
	}
	conn.SetReadDeadline(time.Time{})

	switch role.Role {
	case "presenter":
		a.runPresenter(conn)
	case "viewer":
		a.runViewer(conn)
	default:
		conn.Close()
	}
}

// runPresenter installs conn as the sole presenter, displacing and closing
// any prior presenter first, then relays frames to every viewer until the
// presenter disconnects, times out, or sends {type: disconnect}.
func (a *ScreenArbiter) runPresenter(conn net.Conn) {
	prior := a.setPresenter(conn)
	if prior != nil {
		prior.Close()
	}

	if err := framing.WriteJSONFrame(conn, ScreenMsg{Status: "ok"}); err != nil {
		a.clearPresenterIfCurrent(conn)
		conn.Close()
		return
	}

	defer func() {
		// Only announce present_stop if this presenter was still current at
		// teardown — a displaced presenter's own goroutine must stay quiet
		// since the new presenter has already taken over seamlessly (§4.6,
		// S5: no present_stop fires on displacement).
		if a.clearPresenterIfCurrent(conn) {
			a.registry.Broadcast(ControlMsg{Type: "present_stop"}, nil)
		}
		conn.Close()
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(ScreenReadTimeout))
		var frame ScreenMsg
		if err := framing.ReadJSONFrame(conn, &frame); err != nil {
			return
		}
		if frame.Type == "disconnect" {
			return
		}
		if frame.Type != "screen_frame" {
			continue
		}
		a.fanOutFrame(frame)
	}
}

// runViewer registers conn as a viewer and keeps it open until the caller's
// read side errors or closes (viewers never send anything meaningful after
// their role selector, so this just blocks on a read to detect closure).
func (a *ScreenArbiter) runViewer(conn net.Conn) {
	a.addViewer(conn)
	defer a.removeViewer(conn)

	if err := framing.WriteJSONFrame(conn, ScreenMsg{Status: "ok"}); err != nil {
		conn.Close()
		return
	}

	buf := make([]byte, 1)
	for {
		if _, err := conn.Read(buf); err != nil {
			return
		}
	}
}

// fanOutFrame sends frame to every registered viewer; a write failure marks
// that viewer dead and evicts it, per §4.6.
func (a *ScreenArbiter) fanOutFrame(frame ScreenMsg) {
	a.mu.Lock()
	targets := make([]net.Conn, 0, len(a.viewers))
	for v := range a.viewers {
		targets = append(targets, v)
	}
	a.mu.Unlock()

	for _, v := range targets {
		if err := framing.WriteJSONFrame(v, frame); err != nil {
			slog.Debug("screen: viewer write failed, evicting", "err", err)
			a.removeViewer(v)
			v.Close()
		}
	}
}

// setPresenter installs conn as the new presenter and returns the previous
// one, if any, so the caller can close it after releasing the lock.
func (a *ScreenArbiter) setPresenter(conn net.Conn) net.Conn {
	a.mu.Lock()
	defer a.mu.Unlock()
	prior := a.presenter
	a.presenter = conn
	return prior
}

// clearPresenterIfCurrent clears the presenter slot only if conn is still
// the installed presenter (it may already have been displaced), reporting
// whether it actually cleared anything.
func (a *ScreenArbiter) clearPresenterIfCurrent(conn net.Conn) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.presenter == conn {
		a.presenter = nil
		return true
	}
	return false
}

func (a *ScreenArbiter) addViewer(conn net.Conn) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.viewers[conn] = struct{}{}
}

func (a *ScreenArbiter) removeViewer(conn net.Conn) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.viewers, conn)
}
