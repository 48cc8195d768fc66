// Command assess-stub is a local stand-in for the pronunciation-assessment
// API. It accepts the same multipart requests as the real service and
// answers with deterministic scores derived from the reference text.
package main

import (
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/skypro1111/dubbing-merge-service/internal/assessment"
	"github.com/skypro1111/dubbing-merge-service/internal/audio"
	"github.com/skypro1111/dubbing-merge-service/internal/store"
)

func main() {
	addr := flag.String("addr", ":8090", "Listen address")
	delay := flag.Duration("delay", 200*time.Millisecond, "Simulated processing time")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	mux := http.NewServeMux()
	mux.HandleFunc("POST /assess", func(w http.ResponseWriter, r *http.Request) {
		assessHandler(w, r, logger, *delay)
	})

	logger.Info("Assessment stub starting",
		slog.String("address", *addr),
		slog.String("endpoint", "POST /assess"),
	)

	if err := http.ListenAndServe(*addr, mux); err != nil {
		logger.Error("Assessment stub failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func assessHandler(w http.ResponseWriter, r *http.Request, logger *slog.Logger, delay time.Duration) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		http.Error(w, "Error getting audio file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Error reading audio file", http.StatusInternalServerError)
		return
	}

	var duration float64
	if info, err := audio.GetWAVInfo(data); err == nil {
		duration = info.Duration
	}

	reference := r.FormValue("reference_text")

	logger.Info("Assessment request received",
		slog.String("request_id", r.FormValue("request_id")),
		slog.String("session_id", r.FormValue("session_id")),
		slog.String("sentence_id", r.FormValue("sentence_id")),
		slog.String("language", r.FormValue("language")),
		slog.String("filename", header.Filename),
		slog.Int("audio_size", len(data)),
		slog.Float64("duration", duration),
		slog.String("audio_hash", store.Blake3HashBytes(data)),
	)

	time.Sleep(delay)

	result := scoreReference(reference, duration)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(result)
}

// scoreReference makes up word scores from word length, so the same text
// always gets the same scores
func scoreReference(reference string, duration float64) assessment.Result {
	words := strings.Fields(reference)

	result := assessment.Result{Words: make([]assessment.Word, 0, len(words))}
	total := decimal.Zero
	for _, w := range words {
		score := decimal.NewFromInt(int64(100 - 5*(len(w)%6)))
		total = total.Add(score)
		result.Words = append(result.Words, assessment.Word{Word: w, AccuracyScore: score})
	}

	if len(words) == 0 {
		return result
	}

	accuracy := total.DivRound(decimal.NewFromInt(int64(len(words))), 2)

	// about 2.5 words per second reads as fluent
	fluency := decimal.NewFromInt(100)
	if duration > 0 {
		rate := float64(len(words)) / duration
		if rate < 2.5 {
			fluency = decimal.NewFromFloat(rate / 2.5 * 100).Round(2)
		}
	}

	result.AccuracyScore = accuracy
	result.FluencyScore = fluency
	result.CompletenessScore = decimal.NewFromInt(100)
	result.PronunciationScore = accuracy.Add(fluency).Add(result.CompletenessScore).DivRound(decimal.NewFromInt(3), 2)

	return result
}
