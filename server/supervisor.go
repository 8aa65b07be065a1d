package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"
)

// SupervisorConfig is the fully-resolved set of listen addresses and paths a
// Supervisor needs to stand up one session. It is the boundary between the
// CLI layer (cobra/viper) and the relay components themselves.
type SupervisorConfig struct {
	ControlAddr string
	VideoAddr   string
	AudioAddr   string
	ScreenAddr  string
	FileAddr    string
	StatusAddr  string // empty disables the ambient status endpoint
	DataDir     string
}

// Supervisor owns every listener, socket, and background goroutine for one
// session and is the only place that binds or closes them. This replaces
// the teacher's process-wide globals (room, store) with explicit handles
// passed to each worker, per the design notes on avoiding mutable
// singletons.
type Supervisor struct {
	cfg SupervisorConfig

	registry *Registry
	metrics  *Metrics

	control *ControlServer
	video   *VideoRelay
	audio   *AudioPipeline
	screen  *ScreenArbiter
	files   *FileBroker
	status  *StatusAPI

	controlLn net.Listener
	screenLn  net.Listener
	fileLn    net.Listener
	videoConn *net.UDPConn
	audioConn *net.UDPConn
}

// NewSupervisor resolves a session password and binds every listener and
// socket the configuration names. On any failure it closes whatever it has
// already opened before returning the error.
func NewSupervisor(cfg SupervisorConfig) (*Supervisor, error) {
	password, err := GenerateSessionPassword()
	if err != nil {
		return nil, fmt.Errorf("supervisor: %w", err)
	}

	s := &Supervisor{cfg: cfg}
	if err := s.bind(cfg, password); err != nil {
		s.closeAll()
		return nil, err
	}
	return s, nil
}

func (s *Supervisor) bind(cfg SupervisorConfig, password string) error {
	controlLn, err := net.Listen("tcp", cfg.ControlAddr)
	if err != nil {
		return fmt.Errorf("control listen: %w", err)
	}
	s.controlLn = controlLn

	screenLn, err := net.Listen("tcp", cfg.ScreenAddr)
	if err != nil {
		return fmt.Errorf("screen listen: %w", err)
	}
	s.screenLn = screenLn

	fileLn, err := net.Listen("tcp", cfg.FileAddr)
	if err != nil {
		return fmt.Errorf("file listen: %w", err)
	}
	s.fileLn = fileLn

	videoUDPAddr, err := net.ResolveUDPAddr("udp", cfg.VideoAddr)
	if err != nil {
		return fmt.Errorf("video resolve: %w", err)
	}
	videoConn, err := net.ListenUDP("udp", videoUDPAddr)
	if err != nil {
		return fmt.Errorf("video listen: %w", err)
	}
	s.videoConn = videoConn

	audioUDPAddr, err := net.ResolveUDPAddr("udp", cfg.AudioAddr)
	if err != nil {
		return fmt.Errorf("audio resolve: %w", err)
	}
	audioConn, err := net.ListenUDP("udp", audioUDPAddr)
	if err != nil {
		return fmt.Errorf("audio listen: %w", err)
	}
	s.audioConn = audioConn

	_, videoPortStr, _ := net.SplitHostPort(videoConn.LocalAddr().String())
	_, audioPortStr, _ := net.SplitHostPort(audioConn.LocalAddr().String())
	videoPort := atoiOrZero(videoPortStr)
	audioPort := atoiOrZero(audioPortStr)

	s.metrics = NewMetrics()

	s.control = NewControlServer(password, videoPort, audioPort)
	s.registry = s.control.Registry // the control server owns the canonical registry

	s.video = NewVideoRelay(s.registry, s.videoConn, s.metrics)
	s.audio = NewAudioPipeline(s.registry, s.audioConn, s.metrics)
	s.screen = NewScreenArbiter(s.registry)

	broker, err := NewFileBroker(cfg.DataDir, s.registry)
	if err != nil {
		return fmt.Errorf("file broker: %w", err)
	}
	s.files = broker

	if cfg.StatusAddr != "" {
		s.status = NewStatusAPI(s.registry, s.metrics)
	}

	slog.Info("session ready",
		"password", password,
		"control", controlLn.Addr(),
		"video", videoConn.LocalAddr(),
		"audio", audioConn.LocalAddr(),
		"screen", screenLn.Addr(),
		"files", fileLn.Addr(),
	)
	fmt.Fprintf(os.Stderr, "session password: %s\n", password)
	return nil
}

// Run starts every worker and blocks until ctx is cancelled, then closes all
// listeners/sockets so the Serve loops return and waits for them to exit.
func (s *Supervisor) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	errCh := make(chan error, 5)

	serve := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				errCh <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}

	serve("control", func() error { return s.control.Serve(s.controlLn) })
	serve("video", s.video.Serve)
	serve("audio", s.audio.Serve)
	serve("screen", func() error { return s.screen.Serve(s.screenLn) })
	serve("files", func() error { return s.files.Serve(s.fileLn) })

	mixerStop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.audio.RunMixer(mixerStop)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		RunMetrics(ctx, s.registry, s.metrics, 5*time.Second)
	}()

	if s.status != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.status.Run(ctx, s.cfg.StatusAddr)
		}()
	}

	<-ctx.Done()
	close(mixerStop)
	s.closeAll()

	wg.Wait()
	close(errCh)

	var firstErr error
	for err := range errCh {
		slog.Warn("worker exited with error", "err", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// closeAll closes every listener/socket this supervisor opened. Safe to call
// more than once and safe to call on a partially-initialized instance.
func (s *Supervisor) closeAll() {
	if s.controlLn != nil {
		s.controlLn.Close()
	}
	if s.screenLn != nil {
		s.screenLn.Close()
	}
	if s.fileLn != nil {
		s.fileLn.Close()
	}
	if s.videoConn != nil {
		s.videoConn.Close()
	}
	if s.audioConn != nil {
		s.audioConn.Close()
	}
}

func atoiOrZero(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
