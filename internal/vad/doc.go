// Package vad detects voice activity in decoded recordings. It measures the
// RMS energy of fixed windows and reports the spans that stay above a
// threshold for long enough to count as speech.
package vad
