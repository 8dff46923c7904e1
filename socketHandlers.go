package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"os"
	"time"

	socketio "github.com/googollee/go-socket.io"
	"github.com/mdobak/go-xerrors"

	"sourcetrace/utils"
)

type socketController struct {
	pipeline *analysisPipeline
}

func newSocketController(pipeline *analysisPipeline) *socketController {
	return &socketController{pipeline: pipeline}
}

type socketAnalyzeRequest struct {
	ImageURL string `json:"imageUrl"`
}

type socketProgress struct {
	Step    int    `json:"step"`
	Total   int    `json:"total"`
	Message string `json:"message"`
}

// handleAnalyzeURL runs the full pipeline for a URL received over the
// realtime channel, streaming per-step progress before the final verdict.
func (c *socketController) handleAnalyzeURL(socket socketio.Conn, payload string) {
	logger := utils.GetLogger()
	ctx := context.Background()

	logger.InfoContext(ctx, "handleAnalyzeURL called",
		slog.String("socketID", socket.ID()),
		slog.Int("payloadLength", len(payload)),
	)

	if payload == "" {
		logger.ErrorContext(ctx, "no data received in analyzeUrl event")
		socket.Emit("analysisError", map[string]string{"message": "no image URL received"})
		return
	}

	var req socketAnalyzeRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		err := xerrors.New(err)
		logger.ErrorContext(ctx, "failed to parse analyze payload", slog.Any("error", err))
		socket.Emit("analysisError", map[string]string{"message": "invalid analyze payload"})
		return
	}
	if req.ImageURL == "" {
		socket.Emit("analysisError", map[string]string{"message": "imageUrl is required"})
		return
	}

	started := time.Now()

	input := analysisInput{ImageURL: req.ImageURL}
	path, err := downloadImageFromURL(req.ImageURL)
	if err != nil {
		logger.WarnContext(ctx, "failed to download image, analyzing from URL signals only",
			slog.String("imageURL", req.ImageURL), slog.Any("error", err))
	} else {
		input.ImagePath = path
		defer func() {
			if err := os.Remove(path); err != nil {
				log.Printf("failed to clean up temp file %s: %v\n", path, err)
			}
		}()
	}

	progress := func(step int, msg string) {
		socket.Emit("analysisProgress", socketProgress{Step: step, Total: 4, Message: msg})
	}

	verdict, signals := c.pipeline.run(ctx, input, progress)
	elapsed := time.Since(started)
	c.pipeline.persist(ctx, req.ImageURL, verdict, signals, elapsed)

	logger.InfoContext(ctx, "realtime analysis completed",
		slog.String("socketID", socket.ID()),
		slog.Int("confidence", verdict.Confidence),
		slog.String("recommendation", verdict.Recommendation),
		slog.Bool("degraded", verdict.Degraded),
		slog.Int64("elapsedMs", elapsed.Milliseconds()),
	)

	socket.Emit("analysisResult", analyzeResponse{
		Success:          true,
		Analysis:         verdict,
		Signals:          signals,
		ProcessingTimeMs: elapsed.Milliseconds(),
	})
}
