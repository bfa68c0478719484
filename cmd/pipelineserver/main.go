// Command pipelineserver exposes the execution pipeline over HTTP
// using gin, the teacher's HTTP framework of choice for its agent
// servers (examples/orchestration-example, examples/workflow-example).
// It serves POST /v1/process for request processing and GET /metrics
// for Prometheus scraping.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/flowmind-ai/pipeline/engine"
	"github.com/flowmind-ai/pipeline/executor"
	"github.com/flowmind-ai/pipeline/pconfig"
	"github.com/flowmind-ai/pipeline/perr"
	"github.com/flowmind-ai/pipeline/state"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "pipelineserver:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := pconfig.Load()

	rt, err := engine.Build(ctx, cfg, engine.Sources{
		PlanPath:     os.Getenv("PIPELINE_PLAN_PATH"),
		PatternsPath: os.Getenv("PIPELINE_PATTERNS_PATH"),
		TonesPath:    os.Getenv("PIPELINE_TONES_PATH"),
		SectionsDir:  os.Getenv("PIPELINE_SECTIONS_DIR"),
	}, nil)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer rt.Shutdown(context.Background())
	log := rt.Logger

	router := newRouter(rt, log)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("pipelineserver listening", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

func newRouter(rt *engine.Runtime, log *slog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(rt.Bridge.Handler()))
	r.POST("/v1/process", handleProcess(rt, log))

	return r
}

type processRequest struct {
	Messages []state.Message `json:"messages" binding:"required"`
	Metadata map[string]any  `json:"metadata"`
}

type processResponse struct {
	OK      bool                       `json:"ok"`
	Failure *perr.ErrorView            `json:"failure,omitempty"`
	Intent  *state.IntentResult        `json:"intent,omitempty"`
	Context *state.PromptContextResult `json:"promptContext,omitempty"`
	Answer  string                     `json:"answer,omitempty"`
}

func handleProcess(rt *engine.Runtime, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-Id", requestID)

		var body processRequest
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		req := state.Request{Messages: body.Messages, Metadata: body.Metadata}
		result := rt.Run(c.Request.Context(), req)
		log.Debug("processed request", "requestId", requestID, "ok", result.OK)

		resp := processResponse{OK: result.OK}
		if result.Failure != nil {
			view := perr.ViewOf(result.Failure)
			resp.Failure = &view
		}
		if in, ok := state.Intent(result.State); ok {
			resp.Intent = &in
		}
		if pc, ok := state.PromptContext(result.State); ok {
			resp.Context = &pc
		}
		if ai, ok := state.AIResponse(result.State); ok {
			resp.Answer = ai.Text
		}

		c.JSON(statusFor(result), resp)
	}
}

// statusFor maps a Result onto the HTTP status code spec.md §7's
// Failure.StatusCode values were chosen to mirror in the first place.
func statusFor(result executor.Result) int {
	if result.OK {
		return http.StatusOK
	}
	switch result.Failure.StatusCode {
	case state.StatusValidation:
		return http.StatusBadRequest
	case state.StatusRateLimit:
		return http.StatusTooManyRequests
	case state.StatusCancelled:
		return 499
	case state.StatusUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
