// Package api exposes batched generation over HTTP.
package api

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/rekindle/internal/engine"
	"github.com/samcharles93/rekindle/internal/infer"
	"github.com/samcharles93/rekindle/internal/logger"
)

// GenerateFunc is the generation entry point the server fronts,
// normally infer.Generate with the restored model and tokenizer bound.
type GenerateFunc func(ctx context.Context, prompts []string, opts infer.GenerateOptions) ([]engine.Result, error)

// Server serializes generation calls onto a single restored model.
type Server struct {
	mu       sync.Mutex
	generate GenerateFunc
	log      logger.Logger
	clock    func() time.Time
}

func NewServer(generate GenerateFunc, log logger.Logger) *Server {
	if log == nil {
		log = logger.Default()
	}
	return &Server{
		generate: generate,
		log:      log,
		clock:    time.Now,
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.POST("/v1/generate", s.handleGenerate)
	e.GET("/v1/healthz", s.handleHealthz)
}

func (s *Server) handleGenerate(c *echo.Context) error {
	req, err := decodeJSON[GenerateRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if len(req.Prompts) == 0 {
		return writeBadRequest(c, "prompts is required")
	}
	if req.EncoderPrompts != nil && len(req.EncoderPrompts) != len(req.Prompts) {
		return writeBadRequest(c, "encoder_prompts must match prompts in length")
	}

	params := engine.DefaultParams()
	if req.NumTokensToGenerate != nil {
		params.NumTokensToGenerate = *req.NumTokensToGenerate
	}
	if req.Temperature != nil {
		params.Temperature = *req.Temperature
	}
	if req.TopK != nil {
		params.TopK = *req.TopK
	}
	if req.TopP != nil {
		params.TopP = *req.TopP
	}
	params.ReturnLogProbs = req.ReturnLogProbs

	opts := infer.GenerateOptions{
		EncoderPrompts: req.EncoderPrompts,
		AddBOS:         req.AddBOS,
		MaxBatchSize:   req.MaxBatchSize,
		RandomSeed:     req.RandomSeed,
		Params:         &params,
	}

	// One model instance, one generation at a time.
	s.mu.Lock()
	results, err := s.generate(c.Request().Context(), req.Prompts, opts)
	s.mu.Unlock()
	if err != nil {
		s.log.Error("generation failed", "error", err)
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error())
	}

	resp := GenerateResponse{
		ID:      "gen-" + uuid.NewString(),
		Object:  "generation",
		Created: s.clock().Unix(),
		Results: make([]GenerateResult, len(results)),
	}
	for i, r := range results {
		resp.Results[i] = GenerateResult{
			Index:           i,
			Prompt:          r.Prompt,
			GeneratedText:   r.GeneratedText,
			GeneratedTokens: r.GeneratedTokens,
			LogProbs:        r.LogProbs,
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleHealthz(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var v T
	dec := json.NewDecoder(r)
	if err := dec.Decode(&v); err != nil {
		return v, err
	}
	return v, nil
}

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg)
}

func writeError(c *echo.Context, status int, errType, msg string) error {
	return c.JSON(status, map[string]any{
		"error": apiError{Message: msg, Type: errType},
	})
}
