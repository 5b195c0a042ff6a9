package playback

import (
	"encoding/base64"
	"errors"
	"testing"
	"time"
)

func TestDecodeSegmentRoundTrip(t *testing.T) {
	samples := make([]int16, 8000)
	payload := base64.StdEncoding.EncodeToString(EncodeWAV(samples, 16000))

	seg, err := DecodeSegment(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if seg.SampleRate != 16000 || seg.Channels != 1 {
		t.Fatalf("unexpected format: rate=%d channels=%d", seg.SampleRate, seg.Channels)
	}
	if len(seg.PCM) != len(samples)*2 {
		t.Fatalf("unexpected PCM size %d", len(seg.PCM))
	}
	if got := seg.Duration(); got != 500*time.Millisecond {
		t.Fatalf("expected 500ms duration, got %v", got)
	}
	if seg.ID == "" {
		t.Fatalf("expected segment ID assigned")
	}
}

func TestDecodeSegmentRejectsGarbage(t *testing.T) {
	cases := map[string]string{
		"bad base64":  "%%%%",
		"too short":   base64.StdEncoding.EncodeToString([]byte("RIFF")),
		"wrong magic": base64.StdEncoding.EncodeToString(make([]byte, 64)),
	}
	for name, payload := range cases {
		if _, err := DecodeSegment(payload); !errors.Is(err, ErrDecodeFailed) {
			t.Fatalf("%s: expected ErrDecodeFailed, got %v", name, err)
		}
	}
}

func TestDecodeSegmentRejectsNonPCM(t *testing.T) {
	b := EncodeWAV(make([]int16, 100), 16000)
	b[20] = 3 // IEEE float format tag
	if _, err := DecodeSegment(base64.StdEncoding.EncodeToString(b)); !errors.Is(err, ErrDecodeFailed) {
		t.Fatalf("expected ErrDecodeFailed for non-PCM, got %v", err)
	}
}
