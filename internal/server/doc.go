// Package server implements the HTTP API for recording sessions and the UDP
// receiver for streamed capture frames. Capture packets are parsed by a
// worker pool and routed to session takes; HTTP requests cover sessions,
// uploads, merging, stored recordings and monitoring.
package server
