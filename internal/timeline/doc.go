// Package timeline assembles per-sentence recordings into one recording
// aligned to the lesson's sentence timing.
//
// Each recorded clip is fitted to its sentence slot by the audio Compressor.
// Slots without a usable recording, and the gaps before, between and after
// sentences, are filled with synthesized silence. The segments are decoded in
// order, rendered back-to-back by the audio Mixer and encoded as a single
// 16666 Hz mono WAV.
package timeline
