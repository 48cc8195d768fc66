// Package store persists merged recordings. Audio files live on disk under a
// content-addressed layout (blake3 of the WAV bytes) and each file gets a
// share record in SQLite.
package store
