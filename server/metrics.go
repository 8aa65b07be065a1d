package main

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Metrics accumulates relay-wide counters, grounded on the teacher's
// Room.Stats()/RunMetrics pair but split across the video and audio paths
// independently since this relay has no single room object.
type Metrics struct {
	videoDatagrams atomic.Uint64
	videoBytes     atomic.Uint64
	audioDatagrams atomic.Uint64
	audioBytes     atomic.Uint64
}

// NewMetrics returns a zeroed counter set.
func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) recordVideo(n int) {
	m.videoDatagrams.Add(1)
	m.videoBytes.Add(uint64(n))
}

func (m *Metrics) recordAudio(n int) {
	m.audioDatagrams.Add(1)
	m.audioBytes.Add(uint64(n))
}

// Snapshot returns the current counters, safe to marshal as JSON.
func (m *Metrics) Snapshot() map[string]uint64 {
	return map[string]uint64{
		"video_datagrams": m.videoDatagrams.Load(),
		"video_bytes":     m.videoBytes.Load(),
		"audio_datagrams": m.audioDatagrams.Load(),
		"audio_bytes":     m.audioBytes.Load(),
	}
}

// RunMetrics logs aggregate throughput every interval until ctx is
// canceled, mirroring the teacher's RunMetrics.
func RunMetrics(ctx context.Context, registry *Registry, metrics *Metrics, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := metrics.Snapshot()
			clients := registry.Count()
			if clients > 0 || snap["video_datagrams"] > 0 || snap["audio_datagrams"] > 0 {
				slog.Info("metrics",
					"clients", clients,
					"video_datagrams", snap["video_datagrams"],
					"video_kbps", float64(snap["video_bytes"])/interval.Seconds()/1024,
					"audio_datagrams", snap["audio_datagrams"],
					"audio_kbps", float64(snap["audio_bytes"])/interval.Seconds()/1024,
				)
			}
		}
	}
}
