// Package protocol implements the binary capture-frame protocol used to
// stream sentence recordings over UDP: a fixed 8-byte header followed by a
// start, audio or stop payload.
package protocol
