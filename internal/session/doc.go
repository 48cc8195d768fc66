// Package session manages lesson recording sessions. A session holds the
// timed sentences of one lesson and the learner's recording for each of them,
// collects streamed capture takes, requests pronunciation assessments in the
// background and produces the merged recording on demand.
package session
