package main

import (
	"encoding/binary"
	"errors"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
)

// Circuit breaker constants for video datagram fan-out, grounded on the
// teacher's sendHealth (client.go): after enough consecutive write failures
// to one target, the relay stops wasting syscalls on it and only probes
// occasionally for recovery.
const (
	videoBreakerThreshold     uint32 = 50 // ~2.5s of video at 20fps before tripping
	videoBreakerProbeInterval uint32 = 25
)

// sendHealth tracks consecutive UDP write failures to one target address and
// implements a lightweight circuit breaker, mirroring the teacher's
// per-client sendHealth but keyed by netip.AddrPort instead of a client ID.
type sendHealth struct {
	failures atomic.Uint32
	skips    atomic.Uint32
}

func (h *sendHealth) shouldSkip() bool {
	if h.failures.Load() < videoBreakerThreshold {
		return false
	}
	s := h.skips.Add(1)
	return s%videoBreakerProbeInterval != 0
}

func (h *sendHealth) recordFailure() uint32 {
	return h.failures.Add(1)
}

func (h *sendHealth) recordSuccess() bool {
	wasTripped := h.failures.Swap(0) >= videoBreakerThreshold
	if wasTripped {
		h.skips.Store(0)
	}
	return wasTripped
}

// VideoRelay is the dumb video fan-out (C4): it never reassembles or
// retransmits, it only tags and resends each inbound datagram to the current
// video endpoint set.
type VideoRelay struct {
	registry *Registry
	conn     *net.UDPConn
	metrics  *Metrics

	healthMu sync.Mutex
	health   map[netip.AddrPort]*sendHealth
}

// NewVideoRelay binds a UDP socket for the video relay and returns the
// relay ready to Serve. metrics may be nil, in which case datagrams are not
// counted.
func NewVideoRelay(registry *Registry, conn *net.UDPConn, metrics *Metrics) *VideoRelay {
	return &VideoRelay{
		registry: registry,
		conn:     conn,
		metrics:  metrics,
		health:   make(map[netip.AddrPort]*sendHealth),
	}
}

// Serve reads datagrams from the bound socket until it is closed, tagging
// and fanning out each one. It never returns a non-nil error for a clean
// close.
func (v *VideoRelay) Serve() error {
	buf := make([]byte, 64*1024)
	for {
		n, srcAddr, err := v.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		v.handleDatagram(buf[:n], srcAddr)
	}
}

// handleDatagram validates one inbound video datagram and fans it out. The
// header is [seq:4][total:4] big-endian followed by up to MaxVideoChunk
// bytes of JPEG payload (§4.4); the relay does not interpret seq/total, it
// only bounds overall datagram size before prefixing the sender's address.
func (v *VideoRelay) handleDatagram(data []byte, src netip.AddrPort) {
	if len(data) < DatagramHeader || len(data) > MaxVideoDatagram {
		return
	}
	_ = binary.BigEndian.Uint32(data[0:4]) // seq, opaque to the relay
	_ = binary.BigEndian.Uint32(data[4:8]) // total, opaque to the relay

	if v.metrics != nil {
		v.metrics.recordVideo(len(data))
	}

	out := tagWithSender(data, src)

	targets := v.registry.VideoTargets()
	for _, t := range targets {
		v.sendTo(t, out)
	}
}

// tagWithSender prefixes payload with the sender's 4-byte IPv4 address, per
// §4.4 ("the server...prefix[es] the sender's 4-byte IPv4 address").
func tagWithSender(payload []byte, src netip.AddrPort) []byte {
	ip4 := src.Addr().As4()
	out := make([]byte, 4+len(payload))
	copy(out[0:4], ip4[:])
	copy(out[4:], payload)
	return out
}

func (v *VideoRelay) sendTo(target netip.AddrPort, data []byte) {
	h := v.healthFor(target)
	if h.shouldSkip() {
		return
	}
	_, err := v.conn.WriteToUDPAddrPort(data, target)
	if err != nil {
		n := h.recordFailure()
		if n == videoBreakerThreshold {
			slog.Warn("video: circuit breaker open", "target", target)
		}
		return
	}
	if h.failures.Load() > 0 {
		if h.recordSuccess() {
			slog.Info("video: circuit breaker closed", "target", target)
		}
	}
}

func (v *VideoRelay) healthFor(target netip.AddrPort) *sendHealth {
	v.healthMu.Lock()
	defer v.healthMu.Unlock()
	h, ok := v.health[target]
	if !ok {
		h = &sendHealth{}
		v.health[target] = h
	}
	return h
}

