// Package textnorm normalizes recognizer text and produces phonetic
// romanizations for script-independent wake-phrase matching.
package textnorm
