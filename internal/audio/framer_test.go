package audio

import (
	"bytes"
	"testing"
)

func testFramerConfig() FramerConfig {
	return FramerConfig{FrameSamples: 4, BytesPerSample: 2}
}

func TestFramerAccumulatesToFixedFrames(t *testing.T) {
	f, err := NewFramer(testFramerConfig())
	if err != nil {
		t.Fatalf("NewFramer failed: %v", err)
	}

	// Three 3-byte chunks: one complete 8-byte frame plus 1 pending byte.
	var frames []Frame
	for i := 0; i < 3; i++ {
		frames = append(frames, f.Write([]byte{byte(i), byte(i), byte(i)})...)
	}
	if len(frames) != 1 {
		t.Fatalf("frames = %d, want 1", len(frames))
	}
	want := []byte{0, 0, 0, 1, 1, 1, 2, 2}
	if !bytes.Equal(frames[0].Data, want) {
		t.Errorf("frame data = %v, want %v", frames[0].Data, want)
	}
	if frames[0].Last {
		t.Error("complete frame tagged Last")
	}
	if got := f.Stats().Pending; got != 1 {
		t.Errorf("pending = %d, want 1", got)
	}
}

func TestFramerLargeChunkEmitsMultipleFrames(t *testing.T) {
	f, _ := NewFramer(testFramerConfig())

	frames := f.Write(make([]byte, 20))
	if len(frames) != 2 {
		t.Fatalf("frames = %d, want 2", len(frames))
	}
	for i, fr := range frames {
		if len(fr.Data) != 8 {
			t.Errorf("frame %d size = %d, want 8", i, len(fr.Data))
		}
	}
	if got := f.Stats().Pending; got != 4 {
		t.Errorf("pending = %d, want 4", got)
	}
}

func TestFramerFlushDrainsRemainder(t *testing.T) {
	f, _ := NewFramer(testFramerConfig())

	f.Write([]byte{9, 9, 9})
	last := f.Flush()
	if !last.Last {
		t.Error("flushed frame not tagged Last")
	}
	if !bytes.Equal(last.Data, []byte{9, 9, 9}) {
		t.Errorf("flushed data = %v, want [9 9 9]", last.Data)
	}
	if got := f.Stats().Pending; got != 0 {
		t.Errorf("pending after flush = %d, want 0", got)
	}
}

func TestFramerFlushEmptyStillTagsLast(t *testing.T) {
	f, _ := NewFramer(testFramerConfig())

	last := f.Flush()
	if !last.Last {
		t.Error("empty flush not tagged Last")
	}
	if len(last.Data) != 0 {
		t.Errorf("empty flush carried %d bytes", len(last.Data))
	}
}

func TestFramerResetDiscardsPending(t *testing.T) {
	f, _ := NewFramer(testFramerConfig())

	f.Write([]byte{1, 2, 3})
	f.Reset()
	last := f.Flush()
	if len(last.Data) != 0 {
		t.Errorf("flush after reset carried %d bytes", len(last.Data))
	}
}

func TestFramerFramesOwnTheirData(t *testing.T) {
	f, _ := NewFramer(testFramerConfig())

	chunk := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	frames := f.Write(chunk)
	chunk[0] = 0xFF
	if frames[0].Data[0] != 1 {
		t.Error("frame aliases the caller's chunk")
	}
}

func TestFramerConfigValidation(t *testing.T) {
	if err := (FramerConfig{FrameSamples: 0, BytesPerSample: 2}).Validate(); err == nil {
		t.Error("expected error for zero frame_samples")
	}
	if err := (FramerConfig{FrameSamples: 640, BytesPerSample: 0}).Validate(); err == nil {
		t.Error("expected error for zero bytes_per_sample")
	}
	if err := DefaultFramerConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestPCMRoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768}
	decoded, err := DecodeSamples(EncodeSamples(samples))
	if err != nil {
		t.Fatalf("DecodeSamples failed: %v", err)
	}
	for i, s := range samples {
		if decoded[i] != s {
			t.Errorf("sample %d = %d, want %d", i, decoded[i], s)
		}
	}

	if _, err := DecodeSamples([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for odd-length PCM data")
	}
}
