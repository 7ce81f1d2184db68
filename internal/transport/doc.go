// Package transport implements the websocket client for streaming audio
// to a remote recognition service. It sends framed binary audio plus a
// textual end-of-stream marker and surfaces transcript, error, and close
// events through callbacks.
package transport
