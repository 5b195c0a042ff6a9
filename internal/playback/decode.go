package playback

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrDecodeFailed wraps malformed audio payloads. Non-fatal: playback is
// skipped and the session continues.
var ErrDecodeFailed = errors.New("audio decode failed")

// Segment is one synthesized-audio reply, decoded once and played by at most
// one active source.
type Segment struct {
	ID         string
	SampleRate int
	Channels   int
	PCM        []byte // little-endian PCM16 frames
}

// Duration reports the wall-clock playback length of the segment.
func (s *Segment) Duration() time.Duration {
	if s.SampleRate <= 0 || s.Channels <= 0 || len(s.PCM) == 0 {
		return 0
	}
	samples := len(s.PCM) / 2 / s.Channels
	return time.Duration(samples) * time.Second / time.Duration(s.SampleRate)
}

const wavHeaderLen = 44

// DecodeSegment decodes a base64 WAV payload into a playable segment.
// Only canonical PCM16 WAV is accepted.
func DecodeSegment(audioB64 string) (*Segment, error) {
	raw, err := base64.StdEncoding.DecodeString(audioB64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64: %v", ErrDecodeFailed, err)
	}
	if len(raw) < wavHeaderLen {
		return nil, fmt.Errorf("%w: %d bytes is shorter than a WAV header", ErrDecodeFailed, len(raw))
	}
	if string(raw[0:4]) != "RIFF" || string(raw[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%w: missing RIFF/WAVE magic", ErrDecodeFailed)
	}
	if string(raw[12:16]) != "fmt " || string(raw[36:40]) != "data" {
		return nil, fmt.Errorf("%w: unexpected chunk layout", ErrDecodeFailed)
	}
	audioFormat := binary.LittleEndian.Uint16(raw[20:22])
	if audioFormat != 1 {
		return nil, fmt.Errorf("%w: audio format %d is not PCM", ErrDecodeFailed, audioFormat)
	}
	bitsPerSample := binary.LittleEndian.Uint16(raw[34:36])
	if bitsPerSample != 16 {
		return nil, fmt.Errorf("%w: %d bits per sample, want 16", ErrDecodeFailed, bitsPerSample)
	}
	channels := int(binary.LittleEndian.Uint16(raw[22:24]))
	sampleRate := int(binary.LittleEndian.Uint32(raw[24:28]))
	if channels <= 0 || sampleRate <= 0 {
		return nil, fmt.Errorf("%w: channels=%d sample_rate=%d", ErrDecodeFailed, channels, sampleRate)
	}
	dataSize := int(binary.LittleEndian.Uint32(raw[40:44]))
	if dataSize > len(raw)-wavHeaderLen {
		dataSize = len(raw) - wavHeaderLen
	}
	if dataSize == 0 {
		return nil, fmt.Errorf("%w: empty data chunk", ErrDecodeFailed)
	}
	return &Segment{
		ID:         uuid.New().String(),
		SampleRate: sampleRate,
		Channels:   channels,
		PCM:        raw[wavHeaderLen : wavHeaderLen+dataSize],
	}, nil
}

// EncodeWAV builds a canonical PCM16 mono WAV payload. Used by the e2e
// harness and tests to fabricate backend audio replies.
func EncodeWAV(samples []int16, sampleRate int) []byte {
	dataSize := len(samples) * 2
	buf := make([]byte, wavHeaderLen+dataSize)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1)
	binary.LittleEndian.PutUint16(buf[22:24], 1)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2))
	binary.LittleEndian.PutUint16(buf[32:34], 2)
	binary.LittleEndian.PutUint16(buf[34:36], 16)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[wavHeaderLen+i*2:], uint16(s))
	}
	return buf
}
