// Package audio handles PCM buffers, WAV encoding/decoding, and the clip
// normalization steps used when merging sentence recordings: silence trimming,
// sample-rate conversion, playback-rate time compression, and back-to-back
// mixing into a single buffer.
package audio
