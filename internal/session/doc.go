// Package session drives the transcription session lifecycle with three
// independent auto-stop deadlines: silence, no-speech and max-duration.
package session
