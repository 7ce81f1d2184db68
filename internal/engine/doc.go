// Package engine coordinates the wake matcher, session machine, audio
// pipeline, and recognition transport into one voice engine. It owns the
// capture resource exclusively, routes recognizer text to the matcher,
// starts a transcription session on wake, and paces framed audio to the
// remote service while the session is live.
package engine
