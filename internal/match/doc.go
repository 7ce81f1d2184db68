// Package match scores recognizer text against configured wake phrases and
// drives the armed/triggered/refractory wake decision state machine.
package match
