package engine

// VideoSource is the injected camera/capture port. The engine calls
// NextFrame in a tight pacing loop and fragments whatever JPEG bytes it
// returns; capture itself (device access, encoding) is out of scope (§1
// Non-goals) and belongs to the embedding application.
type VideoSource interface {
	// NextFrame blocks until a JPEG-encoded frame is ready, or returns
	// ok=false if the source has been closed.
	NextFrame() (jpeg []byte, ok bool)
}

// VideoSink is the injected display port. The engine calls Display once
// per fully reassembled frame from a given source address.
type VideoSink interface {
	Display(sourceAddr string, jpeg []byte)
}

// AudioSource is the injected microphone/capture port, yielding fixed-size
// PCM packets (§6: 256 samples, 16-bit mono, 16 kHz).
type AudioSource interface {
	NextPacket() (pcm []byte, ok bool)
}

// AudioSink is the injected speaker/playback port.
type AudioSink interface {
	Play(pcm []byte)
}

// ScreenSource is the injected screen-capture port used while presenting.
type ScreenSource interface {
	NextFrame() (jpeg []byte, ok bool)
}

// ScreenSink is the injected presentation-viewer display port.
type ScreenSink interface {
	DisplayFrame(jpeg []byte)
}
