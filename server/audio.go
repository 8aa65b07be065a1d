package main

import (
	"errors"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"time"
)

// audioFIFO is one sender's bounded packet queue plus its last-good packet
// for packet-loss concealment (§4.5). Oldest entries are dropped on
// overflow, mirroring the teacher's fixed-capacity ring buffers elsewhere in
// the codebase (dgramCache) but applied here to a FIFO instead of a
// random-access cache since the mixer only ever consumes from the front.
type audioFIFO struct {
	mu       sync.Mutex
	queue    [][]byte
	lastGood []byte
}

func (f *audioFIFO) push(pkt []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) >= AudioFIFOCapacity {
		f.queue = f.queue[1:]
	}
	cp := make([]byte, len(pkt))
	copy(cp, pkt)
	f.queue = append(f.queue, cp)
	f.lastGood = cp
}

// dequeueOrConceal returns the next packet to mix for this sender this tick:
// the oldest queued packet if any, otherwise the last-good packet (packet
// loss concealment), otherwise nil if nothing has ever arrived.
func (f *audioFIFO) dequeueOrConceal() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) > 0 {
		pkt := f.queue[0]
		f.queue = f.queue[1:]
		return pkt
	}
	return f.lastGood
}

// AudioPipeline is the UDP audio relay and fixed-tick mixer (C5).
type AudioPipeline struct {
	registry *Registry
	conn     *net.UDPConn
	metrics  *Metrics

	fifoMu sync.Mutex
	fifos  map[netip.AddrPort]*audioFIFO
}

// NewAudioPipeline binds the pipeline to an already-listening UDP socket.
// metrics may be nil, in which case datagrams are not counted.
func NewAudioPipeline(registry *Registry, conn *net.UDPConn, metrics *Metrics) *AudioPipeline {
	return &AudioPipeline{
		registry: registry,
		conn:     conn,
		metrics:  metrics,
		fifos:    make(map[netip.AddrPort]*audioFIFO),
	}
}

// Serve reads inbound audio datagrams until the socket is closed, appending
// each one to its sender's FIFO.
func (p *AudioPipeline) Serve() error {
	buf := make([]byte, 4096)
	for {
		n, src, err := p.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		if p.metrics != nil {
			p.metrics.recordAudio(n)
		}
		p.fifoFor(src).push(buf[:n])
	}
}

func (p *AudioPipeline) fifoFor(src netip.AddrPort) *audioFIFO {
	p.fifoMu.Lock()
	defer p.fifoMu.Unlock()
	f, ok := p.fifos[src]
	if !ok {
		f = &audioFIFO{}
		p.fifos[src] = f
	}
	return f
}

// RunMixer drives the mixer loop on a dedicated high-precision ticker
// (§4.5). It blocks until stop is closed.
func (p *AudioPipeline) RunMixer(stop <-chan struct{}) {
	ticker := time.NewTicker(MixerTick)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.mixTick()
		}
	}
}

// mixTick performs exactly one mixer tick per the five-step algorithm in
// §4.5: snapshot known endpoints, prune stale FIFOs, dequeue-or-conceal per
// sender, truncate to the shortest packet, then mix per recipient excluding
// its own contribution.
func (p *AudioPipeline) mixTick() {
	endpoints := p.registry.AudioTargets()
	known := make(map[netip.AddrPort]bool, len(endpoints))
	for addr := range endpoints {
		known[addr] = true
	}

	p.pruneStale(known)

	var contributions []audioContribution

	p.fifoMu.Lock()
	for addr, f := range p.fifos {
		if !known[addr] {
			continue
		}
		pkt := f.dequeueOrConceal()
		if pkt == nil {
			continue
		}
		contributions = append(contributions, audioContribution{addr: addr, data: pkt})
	}
	p.fifoMu.Unlock()

	if len(contributions) == 0 {
		return // nothing to mix this tick; idle
	}

	shortest := len(contributions[0].data)
	for _, c := range contributions[1:] {
		if len(c.data) < shortest {
			shortest = len(c.data)
		}
	}
	if shortest == 0 {
		return
	}
	for i := range contributions {
		contributions[i].data = contributions[i].data[:shortest]
	}

	for recipientAddr, recipientConn := range endpoints {
		mixed := mixExcluding(contributions, recipientAddr, shortest)
		if mixed == nil {
			continue // recipient was the only contributor; nothing to send
		}
		if _, err := p.conn.WriteToUDPAddrPort(mixed, recipientAddr); err != nil {
			slog.Debug("audio: mixer send failed", "target", recipientAddr, "err", err)
		}
		_ = recipientConn // recipientConn identifies the participant; delivery is by UDP address
	}
}

// audioContribution is one sender's chosen packet for the current mixer
// tick, already truncated to the tick's shared sample count.
type audioContribution struct {
	addr netip.AddrPort
	data []byte
}

// mixExcluding computes the int16-clipped arithmetic mean of every
// contribution except the one whose address equals exclude. Returns nil if
// that leaves zero contributors.
func mixExcluding(contributions []audioContribution, exclude netip.AddrPort, length int) []byte {
	samples := length / 2
	sums := make([]int32, samples)
	count := 0
	for _, c := range contributions {
		if c.addr == exclude {
			continue
		}
		count++
		for i := 0; i < samples; i++ {
			s := int16(uint16(c.data[2*i]) | uint16(c.data[2*i+1])<<8)
			sums[i] += int32(s)
		}
	}
	if count == 0 {
		return nil
	}
	out := make([]byte, length)
	for i := 0; i < samples; i++ {
		mean := sums[i] / int32(count)
		clipped := clipInt16(mean)
		out[2*i] = byte(uint16(clipped))
		out[2*i+1] = byte(uint16(clipped) >> 8)
	}
	return out
}

func clipInt16(v int32) int16 {
	switch {
	case v > 32767:
		return 32767
	case v < -32768:
		return -32768
	default:
		return int16(v)
	}
}

// pruneStale drops any FIFO (and its last-good cache) whose owning address
// is no longer a known audio endpoint, per step 2 of §4.5.
func (p *AudioPipeline) pruneStale(known map[netip.AddrPort]bool) {
	p.fifoMu.Lock()
	defer p.fifoMu.Unlock()
	for addr := range p.fifos {
		if !known[addr] {
			delete(p.fifos, addr)
		}
	}
}
