package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"lanrelay/client/internal/framing"
)

// Engine is the client-side control session (C9): it owns the control
// socket, serializes outgoing requests, and dispatches every inbound
// message to an EventSink. Video, audio, screen-share, and file transfer
// each layer their own connection on top of a live Engine.
type Engine struct {
	conn net.Conn
	lr   *framing.LineReader
	sink EventSink

	writeMu sync.Mutex

	Name      string
	Color     string
	VideoPort int // relay's video port, learned implicitly by dialing
	AudioPort int
}

// HelloOptions are the parameters of one control-channel hello (§4.3).
type HelloOptions struct {
	Name      string
	Password  string
	VideoPort int // local UDP port this client listens on for video
	AudioPort int // local UDP port this client listens on for audio
}

// Dial connects to the control channel at addr and performs the hello
// handshake. On auth failure or a name collision it returns the server's
// error message and closes the connection, matching §8 S2.
func Dial(addr string, opts HelloOptions, sink EventSink) (*Engine, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("engine: dial %s: %w", addr, err)
	}

	e := &Engine{
		conn: conn,
		lr:   framing.NewLineReader(conn),
		sink: sink,
		Name: opts.Name,
	}

	hello := ControlMsg{
		Type:      "hello",
		Name:      opts.Name,
		Password:  opts.Password,
		VideoPort: opts.VideoPort,
		AudioPort: opts.AudioPort,
	}
	if err := e.send(hello); err != nil {
		conn.Close()
		return nil, fmt.Errorf("engine: send hello: %w", err)
	}

	var first ControlMsg
	if err := e.lr.ReadJSONLine(&first); err != nil {
		conn.Close()
		return nil, fmt.Errorf("engine: read hello reply: %w", err)
	}
	if first.Type == "error" {
		conn.Close()
		return nil, &AuthError{AuthFailed: first.AuthFailed, Message: first.Message}
	}
	if first.Type != "whiteboard_sync" {
		conn.Close()
		return nil, fmt.Errorf("engine: unexpected first message %q", first.Type)
	}
	if first.Snapshot != nil {
		sink.OnWhiteboardSync(*first.Snapshot)
	}

	var roster ControlMsg
	if err := e.lr.ReadJSONLine(&roster); err != nil {
		conn.Close()
		return nil, fmt.Errorf("engine: read roster: %w", err)
	}
	if roster.Type == "user_list" {
		sink.OnUserList(roster.Roster)
		for _, r := range roster.Roster {
			if r.Name == opts.Name {
				e.Color = r.Color
			}
		}
	}

	return e, nil
}

// AuthError is returned by Dial when the server rejects the hello, per §7
// ("Authentication failures" / "Name collisions" share this shape).
type AuthError struct {
	AuthFailed bool
	Message    string
}

func (e *AuthError) Error() string { return e.Message }

// Run reads control messages until the connection closes or fails,
// dispatching each one to the EventSink. It returns when the connection
// ends; the caller decides whether that warrants reconnecting (the engine
// itself never reconnects automatically).
func (e *Engine) Run() error {
	for {
		var msg ControlMsg
		err := e.lr.ReadJSONLine(&msg)
		if err != nil {
			if errors.Is(err, framing.ErrMalformed) {
				// One bad-JSON line must not tear down the session (§7).
				slog.Debug("engine: malformed line skipped", "err", err)
				continue
			}
			e.sink.OnDisconnected(err)
			return err
		}
		e.dispatch(msg)
	}
}

func (e *Engine) dispatch(msg ControlMsg) {
	switch msg.Type {
	case "user_list":
		e.sink.OnUserList(msg.Roster)
	case "join":
		e.sink.OnJoin(msg.Name, msg.Color)
	case "leave":
		e.sink.OnLeave(msg.Name, msg.Addr)
	case "chat":
		e.sink.OnChat(msg.From, msg.Message)
	case "private_chat":
		e.sink.OnPrivateChat(msg.From, msg.Message)
	case "private_chat_sent":
		e.sink.OnPrivateChatSent(msg.To, msg.Message)
	case "gesture":
		e.sink.OnGesture(msg.From, msg.GestureType)
	case "cursor_move":
		e.sink.OnCursorMove(msg.From, msg.X, msg.Y, msg.Color)
	case "whiteboard_action":
		e.sink.OnWhiteboardAction(msg)
	case "present_start":
		e.sink.OnPresentStart(msg.From)
	case "present_stop":
		e.sink.OnPresentStop(msg.From)
	case "file_offer":
		e.sink.OnFileOffer(msg.From, msg.Filename, msg.Size)
	case "error":
		if msg.AuthFailed {
			e.sink.OnAuthFailed(msg.Message)
			return
		}
		e.sink.OnError(msg.Message)
	default:
		slog.Debug("engine: unhandled message type", "type", msg.Type)
	}
}

func (e *Engine) send(msg ControlMsg) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	return framing.WriteJSONLine(e.conn, msg)
}

// SendChat broadcasts a chat message to every participant, including the
// sender (§9 design note: server broadcasts to all; client dedupes).
func (e *Engine) SendChat(message string) error {
	return e.send(ControlMsg{Type: "chat", Message: message})
}

// SendPrivateChat sends a direct message to one named recipient.
func (e *Engine) SendPrivateChat(to, message string) error {
	return e.send(ControlMsg{Type: "private_chat", To: to, Message: message})
}

// SendGesture forwards an opaque, client-classified gesture tag (§9: the
// server never validates this).
func (e *Engine) SendGesture(gestureType string) error {
	return e.send(ControlMsg{Type: "gesture", GestureType: gestureType})
}

// SendCursorMove reports this participant's pointer position.
func (e *Engine) SendCursorMove(x, y float64) error {
	return e.send(ControlMsg{Type: "cursor_move", X: x, Y: y})
}

// SendWhiteboardAction submits one whiteboard mutation.
func (e *Engine) SendWhiteboardAction(action string, data *WhiteboardElement, eraseID string) error {
	return e.send(ControlMsg{Type: "whiteboard_action", Action: action, Data: data, EraseID: eraseID})
}

// SendPresentStart announces this participant is taking the presenter slot.
func (e *Engine) SendPresentStart() error {
	return e.send(ControlMsg{Type: "present_start"})
}

// SendPresentStop announces this participant is releasing the presenter
// slot. Note the server only rebroadcasts present_stop this way when the
// current presenter ends its own session voluntarily, not on displacement
// (§8 S5, §9).
func (e *Engine) SendPresentStop() error {
	return e.send(ControlMsg{Type: "present_stop"})
}

// Bye sends a farewell and closes the control connection (advisory; the
// server also handles a silent EOF identically).
func (e *Engine) Bye() error {
	defer e.conn.Close()
	return e.send(ControlMsg{Type: "bye"})
}

// Close closes the control connection without announcing a farewell.
func (e *Engine) Close() error {
	return e.conn.Close()
}

// LocalControlAddr returns the local address of the control connection, used
// by the media layers to bind sockets on the same interface.
func (e *Engine) LocalControlAddr() net.Addr {
	return e.conn.LocalAddr()
}
