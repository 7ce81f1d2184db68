// Package loudness measures speech energy in PCM audio. It computes
// smoothed RMS levels per window and classifies windows as speech or
// silence against a configurable threshold, feeding the wake matcher's
// loudness relaxation.
package loudness
