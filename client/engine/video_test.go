package engine

import (
	"bytes"
	"encoding/binary"
	"net"
	"testing"
)

// taggedDatagram builds one relay->client video datagram:
// [4-byte srcIP][seq:4][total:4][chunk].
func taggedDatagram(srcIP net.IP, seq, total uint32, chunk []byte) []byte {
	out := make([]byte, 4+DatagramHeader+len(chunk))
	copy(out[0:4], srcIP.To4())
	binary.BigEndian.PutUint32(out[4:8], seq)
	binary.BigEndian.PutUint32(out[8:12], total)
	copy(out[12:], chunk)
	return out
}

type recordingSink struct {
	frames map[string][]byte
}

func (r *recordingSink) Display(sourceAddr string, jpeg []byte) {
	if r.frames == nil {
		r.frames = make(map[string][]byte)
	}
	cp := make([]byte, len(jpeg))
	copy(cp, jpeg)
	r.frames[sourceAddr] = cp
}

func TestVideoChannelReassemblesSingleFragmentFrame(t *testing.T) {
	v := &VideoChannel{reassembly: make(map[string]*videoReassembly)}
	sink := &recordingSink{}

	payload := []byte("jpegbytes")
	dgram := taggedDatagram(net.ParseIP("10.0.0.5"), 0, uint32(len(payload)), payload)
	v.handleDatagram(dgram, sink)

	got, ok := sink.frames["10.0.0.5"]
	if !ok {
		t.Fatalf("expected a frame from 10.0.0.5")
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("expected %q, got %q", payload, got)
	}
}

func TestVideoChannelReassemblesMultiFragmentFrame(t *testing.T) {
	v := &VideoChannel{reassembly: make(map[string]*videoReassembly)}
	sink := &recordingSink{}

	full := bytes.Repeat([]byte{0xAB}, 10)
	part1, part2 := full[:6], full[6:]

	v.handleDatagram(taggedDatagram(net.ParseIP("10.0.0.5"), 0, uint32(len(full)), part1), sink)
	if _, ok := sink.frames["10.0.0.5"]; ok {
		t.Fatalf("frame should not be complete after the first fragment")
	}
	v.handleDatagram(taggedDatagram(net.ParseIP("10.0.0.5"), 1, uint32(len(full)), part2), sink)

	got, ok := sink.frames["10.0.0.5"]
	if !ok || !bytes.Equal(got, full) {
		t.Fatalf("expected reassembled frame %x, got %x (ok=%v)", full, got, ok)
	}
}

func TestVideoChannelResetsReassemblyOnSeqZero(t *testing.T) {
	v := &VideoChannel{reassembly: make(map[string]*videoReassembly)}
	sink := &recordingSink{}

	stale := []byte("stale-partial")
	v.handleDatagram(taggedDatagram(net.ParseIP("10.0.0.5"), 0, 999, stale), sink)

	fresh := []byte("fresh")
	v.handleDatagram(taggedDatagram(net.ParseIP("10.0.0.5"), 0, uint32(len(fresh)), fresh), sink)

	got := sink.frames["10.0.0.5"]
	if !bytes.Equal(got, fresh) {
		t.Fatalf("expected a fresh frame starting at seq 0 to discard stale state, got %q", got)
	}
}

func TestVideoChannelSendFrameFragmentsLargePayloads(t *testing.T) {
	srv, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer srv.Close()

	local, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	v := &VideoChannel{conn: local, relayAddr: srv.LocalAddr().(*net.UDPAddr), reassembly: map[string]*videoReassembly{}}
	defer v.Close()

	jpeg := bytes.Repeat([]byte{0x42}, MaxVideoChunk+10)
	if err := v.sendFrame(jpeg); err != nil {
		t.Fatalf("sendFrame: %v", err)
	}

	buf := make([]byte, 4096)
	n1, _, err := srv.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("read fragment 1: %v", err)
	}
	if binary.BigEndian.Uint32(buf[0:4]) != 0 {
		t.Fatalf("expected first fragment seq 0")
	}
	if n1-DatagramHeader != MaxVideoChunk {
		t.Fatalf("expected first fragment to be exactly MaxVideoChunk, got %d", n1-DatagramHeader)
	}

	n2, _, err := srv.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("read fragment 2: %v", err)
	}
	if binary.BigEndian.Uint32(buf[0:4]) != 1 {
		t.Fatalf("expected second fragment seq 1")
	}
	if n2-DatagramHeader != 10 {
		t.Fatalf("expected second fragment to carry the remaining 10 bytes, got %d", n2-DatagramHeader)
	}
}
