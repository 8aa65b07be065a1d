package engine

import (
	"encoding/base64"
	"net"

	"lanrelay/client/internal/framing"
)

// ScreenClient opens a fresh TCP connection per screen-share operation
// (§4.9 concern 3: "ancillary transports — open a fresh screen or file
// socket per operation").
type ScreenClient struct {
	addr string
}

// NewScreenClient targets the relay's screen-share listener.
func NewScreenClient(addr string) *ScreenClient {
	return &ScreenClient{addr: addr}
}

// Present dials the screen-share channel, selects the presenter role, and
// streams frames from source until it is exhausted or the connection is
// displaced by a newer presenter (detected as a read/write failure).
func (c *ScreenClient) Present(source ScreenSource) error {
	conn, err := net.Dial("tcp", c.addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := framing.WriteJSONFrame(conn, ScreenMsg{Type: "role", Role: "presenter"}); err != nil {
		return err
	}
	var reply ScreenMsg
	if err := framing.ReadJSONFrame(conn, &reply); err != nil {
		return err
	}

	for {
		jpeg, ok := source.NextFrame()
		if !ok {
			return framing.WriteJSONFrame(conn, ScreenMsg{Type: "disconnect"})
		}
		frame := ScreenMsg{Type: "screen_frame", Data: base64.StdEncoding.EncodeToString(jpeg)}
		if err := framing.WriteJSONFrame(conn, frame); err != nil {
			return err
		}
	}
}

// View dials the screen-share channel, selects the viewer role, and
// forwards every received frame to sink until the connection ends (either
// the presenter stopped or was displaced).
func (c *ScreenClient) View(sink ScreenSink) error {
	conn, err := net.Dial("tcp", c.addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := framing.WriteJSONFrame(conn, ScreenMsg{Type: "role", Role: "viewer"}); err != nil {
		return err
	}
	var reply ScreenMsg
	if err := framing.ReadJSONFrame(conn, &reply); err != nil {
		return err
	}

	for {
		var frame ScreenMsg
		if err := framing.ReadJSONFrame(conn, &frame); err != nil {
			return err
		}
		if frame.Type != "screen_frame" {
			continue
		}
		jpeg, err := base64.StdEncoding.DecodeString(frame.Data)
		if err != nil {
			continue
		}
		sink.DisplayFrame(jpeg)
	}
}
