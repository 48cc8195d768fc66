// Package assessment is the HTTP client for the external pronunciation
// assessment service. Clips are posted as multipart form data together with
// their reference text; scores come back on a 0-100 scale per utterance, word
// and phoneme.
package assessment
