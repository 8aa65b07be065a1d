package main

import "time"

// Operational limits and fixed protocol constants.
const (
	// MaxNameLength bounds a display name so one malformed hello can't
	// exhaust memory building roster broadcasts.
	MaxNameLength = 64

	// MaxChatLength bounds a chat message body.
	MaxChatLength = 2000

	// DatagramHeader is the size, in bytes, of the application header
	// ([seq:4][total:4] big-endian) prefixing every inbound video datagram.
	DatagramHeader = 8

	// MaxVideoChunk is the largest JPEG fragment carried in one video
	// datagram (§4.4).
	MaxVideoChunk = 1100

	// MaxVideoDatagram is the largest datagram the video relay accepts from
	// a sender, header included.
	MaxVideoDatagram = DatagramHeader + MaxVideoChunk

	// AudioPacketSamples is the number of 16-bit samples in one audio packet
	// (~256 samples @ 16 kHz, §6).
	AudioPacketSamples = 256

	// AudioPacketBytes is AudioPacketSamples of little-endian int16 PCM.
	AudioPacketBytes = AudioPacketSamples * 2

	// AudioFIFOCapacity is the bounded per-sender FIFO depth (§3).
	AudioFIFOCapacity = 10

	// MixerTick is the audio mixer's scheduling quantum (§4.5).
	MixerTick = 16 * time.Millisecond

	// PalettePicks is the number of distinct cursor colors in the
	// round-robin palette (§3).
	PalettePicks = 7

	// ControlReadTimeout bounds a single read on the control channel so one
	// silent peer can't pin a goroutine forever between messages.
	ControlReadTimeout = 5 * time.Second

	// ScreenReadTimeout is the presenter inactivity timeout that ends a
	// screen-share session (§4.6).
	ScreenReadTimeout = 2 * time.Second

	// FileBodyTimeout bounds reading/writing the bulk bytes of a file
	// transfer.
	FileBodyTimeout = 60 * time.Second
)

// ColorPalette is the fixed round-robin palette cursor colors are drawn from.
var ColorPalette = [PalettePicks]string{
	"#e6194b", "#3cb44b", "#ffe119", "#4363d8",
	"#f58231", "#911eb4", "#46f0f0",
}
