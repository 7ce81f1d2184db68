package audio

import (
	"encoding/binary"
	"fmt"
	"time"
)

// DecodeSamples converts little-endian 16-bit PCM bytes to samples. The
// byte slice must hold a whole number of samples.
func DecodeSamples(data []byte) ([]int16, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("PCM data has odd length %d", len(data))
	}
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples, nil
}

// EncodeSamples converts samples to little-endian 16-bit PCM bytes.
func EncodeSamples(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	return data
}

// Duration returns the playback time of a PCM payload at the given
// sample rate, assuming mono 16-bit samples.
func Duration(data []byte, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := len(data) / 2
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
