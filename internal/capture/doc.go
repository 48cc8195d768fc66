// Package capture accumulates streamed PCM frames into per-sentence takes,
// with sequence reordering and packet loss tracking.
package capture
