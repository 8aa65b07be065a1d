package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"lanrelay/server/internal/framing"
)

// ControlConn adapts one accepted control-channel net.Conn to the
// ControlSender interface the registry depends on, mirroring the teacher's
// Client.sendRaw/SendControl pair: writes are serialized behind ctrlMu so
// concurrent broadcast fan-out and direct replies never interleave partial
// lines on the wire.
type ControlConn struct {
	conn net.Conn

	ctrlMu sync.Mutex
	closed bool

	name    string
	limiter *rate.Limiter
}

// NewControlConn wraps conn, ready to send control messages once a name has
// been assigned by the hello/auth handshake.
func NewControlConn(conn net.Conn) *ControlConn {
	return &ControlConn{
		conn: conn,
		// One hello burst plus steady chat/gesture/whiteboard traffic; tuned
		// generously since the control channel is not itself a bandwidth
		// concern (video/audio are the tight paths).
		limiter: rate.NewLimiter(rate.Limit(50), 100),
	}
}

// SendControl writes one newline-delimited JSON control message. It is safe
// for concurrent use and silently drops the write if the connection has
// already been torn down, matching the teacher's "nil ctrl is a no-op"
// behavior after disconnect.
func (c *ControlConn) SendControl(msg ControlMsg) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("control: marshal failed", "type", msg.Type, "err", err)
		return
	}
	data = append(data, '\n')

	c.ctrlMu.Lock()
	defer c.ctrlMu.Unlock()
	if c.closed {
		return
	}
	if _, err := c.conn.Write(data); err != nil {
		slog.Warn("control: write failed", "name", c.name, "err", err)
	}
}

// Close tears down the underlying connection exactly once.
func (c *ControlConn) Close() {
	c.ctrlMu.Lock()
	defer c.ctrlMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.conn.Close()
}

// allow reports whether the caller may process another inbound control
// message right now, enforcing the per-connection rate limit (§5).
func (c *ControlConn) allow() bool {
	return c.limiter.Allow()
}

// ControlServer owns the TCP control-channel listener (C3) and the shared
// session state (Registry, Whiteboard, password) every accepted connection
// operates against.
type ControlServer struct {
	Registry   *Registry
	Whiteboard *Whiteboard
	Password   string

	// videoPort/audioPort are the fixed relay ports advertised to clients
	// during the hello handshake so they know where to send datagrams.
	VideoPort int
	AudioPort int
}

// NewControlServer wires a fresh registry and whiteboard behind one session.
func NewControlServer(password string, videoPort, audioPort int) *ControlServer {
	return &ControlServer{
		Registry:   NewRegistry(),
		Whiteboard: NewWhiteboard(),
		Password:   password,
		VideoPort:  videoPort,
		AudioPort:  audioPort,
	}
}

// Serve accepts control connections on ln until it is closed.
func (s *ControlServer) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("control: accept: %w", err)
		}
		go s.handleConn(conn)
	}
}

// handleConn drives one control connection from hello to disconnect,
// mirroring the teacher's handleClient: accept, authenticate, announce,
// dispatch loop, then always clean up the registry and broadcast departure.
func (s *ControlServer) handleConn(conn net.Conn) {
	cc := NewControlConn(conn)
	lr := framing.NewLineReader(conn)

	defer func() {
		cc.Close()
	}()

	var hello ControlMsg
	conn.SetReadDeadline(time.Now().Add(ControlReadTimeout))
	if err := lr.ReadJSONLine(&hello); err != nil || hello.Type != "hello" {
		slog.Debug("control: invalid hello", "err", err)
		return
	}
	conn.SetReadDeadline(time.Time{})

	if hello.Password != s.Password {
		cc.SendControl(ControlMsg{Type: "error", AuthFailed: true, Message: "incorrect session password"})
		return
	}
	name, err := validateName(hello.Name)
	if err != nil {
		cc.SendControl(ControlMsg{Type: "error", Message: err.Error()})
		return
	}

	host, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
	ip, parseErr := netip.ParseAddr(host)
	var videoAddr, audioAddr netip.AddrPort
	if parseErr == nil {
		if hello.VideoPort > 0 {
			videoAddr = netip.AddrPortFrom(ip, uint16(hello.VideoPort))
		}
		if hello.AudioPort > 0 {
			audioAddr = netip.AddrPortFrom(ip, uint16(hello.AudioPort))
		}
	}

	cc.name = name
	color, err := s.Registry.Register(cc, name, videoAddr, audioAddr)
	if err != nil {
		msg := err.Error()
		if errors.Is(err, ErrNameTaken) {
			msg = "Username already taken"
		}
		cc.SendControl(ControlMsg{Type: "error", Message: msg})
		return
	}

	slog.Info("control: participant joined", "name", name, "remote", conn.RemoteAddr())

	remoteAddr := conn.RemoteAddr().String()
	defer func() {
		if _, ok := s.Registry.Deregister(cc); ok {
			s.Registry.Broadcast(ControlMsg{Type: "leave", Name: name, Addr: remoteAddr}, nil)
			s.Registry.Broadcast(ControlMsg{Type: "user_list", Roster: s.Registry.Snapshot()}, nil)
			slog.Info("control: participant left", "name", name)
		}
	}()

	// Send the new participant its own whiteboard_sync and user_list directly
	// before admitting it as a broadcast/Resolve target, so no other
	// participant's chat/join/cursor_move/private_chat can reach this
	// connection ahead of its own sync pair (§5 ordering guarantees).
	snap := s.Whiteboard.Snapshot()
	cc.SendControl(ControlMsg{Type: "whiteboard_sync", Snapshot: &snap, Version: snap.Version})
	cc.SendControl(ControlMsg{Type: "user_list", Roster: s.Registry.Snapshot(), Color: color})
	s.Registry.Activate(cc)

	s.Registry.Broadcast(ControlMsg{Type: "join", Name: name, Color: color}, cc)
	s.Registry.Broadcast(ControlMsg{Type: "user_list", Roster: s.Registry.Snapshot()}, nil)

	for {
		var msg ControlMsg
		if err := lr.ReadJSONLine(&msg); err != nil {
			if errors.Is(err, framing.ErrMalformed) {
				// A bad-JSON line from one participant must not terminate
				// its connection, let alone the listener (§7).
				slog.Debug("control: malformed line skipped", "name", name, "err", err)
				continue
			}
			if !errors.Is(err, framing.ErrClosed) {
				slog.Debug("control: read loop ended", "name", name, "err", err)
			}
			return
		}
		if !cc.allow() {
			continue // silently drop messages over the per-connection rate cap
		}
		s.Registry.Touch(cc)
		if msg.Type == "bye" {
			return
		}
		s.dispatch(cc, name, color, msg)
	}
}

// dispatch applies one decoded control message. Extracted from the read
// loop so it can be unit-tested without a real net.Conn, mirroring the
// teacher's processControl/handleClient split.
func (s *ControlServer) dispatch(cc *ControlConn, name, color string, msg ControlMsg) {
	switch msg.Type {
	case "chat":
		if msg.Message == "" || len(msg.Message) > MaxChatLength {
			return
		}
		s.Registry.Broadcast(ControlMsg{Type: "chat", From: name, Message: msg.Message}, nil)

	case "private_chat":
		if msg.To == "" || msg.Message == "" || len(msg.Message) > MaxChatLength {
			return
		}
		target, ok := s.Registry.Resolve(msg.To)
		if !ok {
			cc.SendControl(ControlMsg{Type: "error", Message: "unknown recipient"})
			return
		}
		target.SendControl(ControlMsg{Type: "private_chat", From: name, To: msg.To, Message: msg.Message})
		cc.SendControl(ControlMsg{Type: "private_chat_sent", To: msg.To, Message: msg.Message})

	case "gesture":
		// Gesture classification happens client-side; the server forwards
		// the tag opaquely without validating it (§9 open question).
		s.Registry.Broadcast(ControlMsg{Type: "gesture", From: name, GestureType: msg.GestureType}, cc)

	case "cursor_move":
		s.Registry.Broadcast(ControlMsg{Type: "cursor_move", From: name, X: msg.X, Y: msg.Y, Color: color}, cc)

	case "whiteboard_action":
		version, applied, err := s.Whiteboard.Apply(msg.Action, msg.Data, msg.EraseID)
		if err != nil {
			cc.SendControl(ControlMsg{Type: "error", Message: err.Error()})
			return
		}
		if !applied {
			return
		}
		s.Registry.Broadcast(ControlMsg{
			Type:    "whiteboard_action",
			From:    name,
			Action:  msg.Action,
			Data:    msg.Data,
			EraseID: msg.EraseID,
			Version: version,
		}, nil)

	case "present_start", "present_stop":
		// The screen-share arbiter (C6) is the source of truth for who is
		// presenting; the control channel just relays the announcement
		// as-is with attribution, per §4.3.
		s.Registry.Broadcast(ControlMsg{Type: msg.Type, From: name}, nil)

	case "bye":
		// The connection is about to close; nothing to relay beyond the
		// deferred departure broadcast in handleConn.

	default:
		slog.Debug("control: unknown message type", "name", name, "type", msg.Type)
	}
}

func validateName(name string) (string, error) {
	if name == "" || len(name) > MaxNameLength {
		return "", fmt.Errorf("invalid name")
	}
	return name, nil
}

