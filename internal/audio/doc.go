// Package audio handles audio framing and pacing. It accumulates
// variable-size PCM chunks into fixed-size frames and releases them to the
// transport at a fixed cadence, decoupling capture jitter from transport
// pacing.
package audio
