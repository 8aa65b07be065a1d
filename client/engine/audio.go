package engine

import (
	"errors"
	"net"

	"lanrelay/client/internal/jitter"
)

// audioStreamID is the jitter buffer's sender key for the single already-
// mixed stream the server sends to this client (§4.5: the server mixes
// per-recipient before delivery, so the client never sees other
// participants' raw packets). The jitter package is built for a
// per-sender-multiplexed stream; it is reused here with one synthetic
// sender keyed by this constant and a locally assigned monotonic sequence,
// since the wire format carries no sequence number at all (§6: "Raw
// little-endian int16 PCM...no header") — true reorder detection is not
// possible, only depth-buffered smoothing of arrival jitter.
const audioStreamID = 0

// AudioChannel owns the UDP socket used for audio send/receive.
type AudioChannel struct {
	conn      *net.UDPConn
	relayAddr *net.UDPAddr
	buf       *jitter.Buffer
	nextSeq   uint16
}

// DialAudio binds a local UDP socket for audio and targets the relay's
// audio port. depth is the jitter buffer's priming depth in packets.
func DialAudio(localAddr, relayAddr string, depth int) (*AudioChannel, error) {
	local, err := net.ResolveUDPAddr("udp", localAddr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", local)
	if err != nil {
		return nil, err
	}
	remote, err := net.ResolveUDPAddr("udp", relayAddr)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &AudioChannel{conn: conn, relayAddr: remote, buf: jitter.New(depth)}, nil
}

// SendLoop relays every fixed-size packet source yields straight to the
// relay's audio port, unmodified (§6: 512-byte raw PCM packets).
func (a *AudioChannel) SendLoop(source AudioSource) error {
	for {
		pcm, ok := source.NextPacket()
		if !ok {
			return nil
		}
		if _, err := a.conn.WriteToUDP(pcm, a.relayAddr); err != nil {
			return err
		}
	}
}

// ReceiveLoop reads mixed audio datagrams from the relay and feeds them
// into the jitter buffer as they arrive.
func (a *AudioChannel) ReceiveLoop() error {
	buf := make([]byte, AudioPacketBytes)
	for {
		n, _, err := a.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		pkt := make([]byte, n)
		copy(pkt, buf[:n])
		a.buf.Push(audioStreamID, a.nextSeq, pkt)
		a.nextSeq++
	}
}

// PlaybackTick drains one playback tick's worth of frames from the jitter
// buffer and plays each through sink, substituting silence for a PLC-flagged
// missing frame (nil OpusData here actually means missing raw PCM; the
// field name is inherited from the jitter package's opus-oriented origin).
func (a *AudioChannel) PlaybackTick(sink AudioSink) {
	for _, frame := range a.buf.Pop() {
		if frame.OpusData == nil {
			sink.Play(make([]byte, AudioPacketBytes)) // concealment: silence
			continue
		}
		sink.Play(frame.OpusData)
	}
}

// Close releases the underlying socket.
func (a *AudioChannel) Close() error {
	return a.conn.Close()
}
