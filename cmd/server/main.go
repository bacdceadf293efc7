// Command server runs the xiaozhi edge server: it loads configuration,
// selects the configured STT/LLM/TTS/identification providers, and serves
// the device WebSocket endpoint plus the OTA provisioning endpoint and the
// Prometheus metrics endpoint until a termination signal arrives.
//
// Grounded on the teacher's cmd/agent/main.go for provider selection from
// environment variables and godotenv loading; the HTTP listener shape and
// signal-driven shutdown follow original_source's core/websocket_server.py
// (stop accepting new connections, exit). Active WebSocket sessions are not
// cancelled or joined before exit; they end with the process.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lokutor-ai/xiaozhi-edge-server/internal/auth"
	"github.com/lokutor-ai/xiaozhi-edge-server/internal/config"
	"github.com/lokutor-ai/xiaozhi-edge-server/internal/corelog"
	"github.com/lokutor-ai/xiaozhi-edge-server/internal/corerrors"
	"github.com/lokutor-ai/xiaozhi-edge-server/internal/httpapi"
	"github.com/lokutor-ai/xiaozhi-edge-server/internal/intent"
	"github.com/lokutor-ai/xiaozhi-edge-server/internal/metrics"
	"github.com/lokutor-ai/xiaozhi-edge-server/internal/providers"
	identProvider "github.com/lokutor-ai/xiaozhi-edge-server/internal/providers/identification"
	llmProvider "github.com/lokutor-ai/xiaozhi-edge-server/internal/providers/llm"
	sttProvider "github.com/lokutor-ai/xiaozhi-edge-server/internal/providers/stt"
	ttsProvider "github.com/lokutor-ai/xiaozhi-edge-server/internal/providers/tts"
	"github.com/lokutor-ai/xiaozhi-edge-server/internal/wsserver"
)

// shutdownJoinTimeout bounds how long http.Server.Shutdown waits for
// in-flight plain HTTP requests after a termination signal. Upgraded
// WebSocket sessions are hijacked connections, which Shutdown neither waits
// for nor closes.
const shutdownJoinTimeout = 3 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("XIAOZHI_CONFIG"), "path to the YAML configuration file")
	flag.Parse()

	logger := corelog.NewStdLogger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("fatal: configuration load failed", "error", err)
		os.Exit(1)
	}

	stt, err := buildSTT(cfg.Providers.STT)
	if err != nil {
		logger.Error("fatal: stt provider selection failed", "error", err)
		os.Exit(1)
	}
	llm, err := buildLLM(cfg.Providers.LLM)
	if err != nil {
		logger.Error("fatal: llm provider selection failed", "error", err)
		os.Exit(1)
	}
	tts, err := buildTTS(cfg.Providers.TTS)
	if err != nil {
		logger.Error("fatal: tts provider selection failed", "error", err)
		os.Exit(1)
	}
	var ident providers.IdentificationProvider
	if cfg.Dispatch.IdentificationEnabled {
		ident, err = buildIdentification(cfg.Providers.Identification)
		if err != nil {
			logger.Error("fatal: identification provider selection failed", "error", err)
			os.Exit(1)
		}
	}

	shutdownMetrics, err := metrics.InitProvider(context.Background(), metrics.ProviderConfig{
		ServiceName: "xiaozhi-edge-server",
	})
	if err != nil {
		logger.Error("fatal: metrics provider init failed", "error", err)
		os.Exit(1)
	}
	defer shutdownMetrics(context.Background())
	met := metrics.Default()

	deps := wsserver.Deps{
		Config:         cfg,
		Logger:         logger,
		Metrics:        met,
		Auth:           auth.New(cfg.Auth),
		STT:            stt,
		Identification: ident,
		LLM:            llm,
		TTS:            tts,
		Intent:         intent.Default(),
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Server.WebSocketPath, wsserver.New(deps))
	mux.Handle(cfg.Server.OTAPath, httpapi.NewOTAHandler(cfg.Server))

	srv := &http.Server{
		Addr:    cfg.Server.Host + ":" + portSuffix(cfg.Server.Port),
		Handler: mux,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metricsHandler())
	metricsSrv := &http.Server{Addr: cfg.Server.MetricsAddr, Handler: metricsMux}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		logger.Info("websocket/ota listener starting", "addr", srv.Addr, "path", cfg.Server.WebSocketPath)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("fatal: listener failed", "error", err)
			os.Exit(1)
		}
	}()
	go func() {
		defer wg.Done()
		logger.Info("metrics listener starting", "addr", metricsSrv.Addr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn("metrics listener failed", "error", err)
		}
	}()

	// Block until SIGINT/SIGTERM (spec.md section 6), then stop accepting
	// new connections, give in-flight plain HTTP requests a bounded window
	// to finish, and exit 0; open WebSocket sessions end with the process.
	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	<-sigCtx.Done()
	stop()
	logger.Info("shutdown signal received, draining connections", "timeout", shutdownJoinTimeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownJoinTimeout)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
	wg.Wait()

	logger.Info("shutdown complete")
	os.Exit(0)
}

// metricsHandler exposes the Prometheus registry the OTel exporter
// publishes to, the same /metrics bridge glyphoxa's observe.InitProvider
// documents but leaves to its caller to actually serve.
func metricsHandler() http.Handler {
	return promhttp.Handler()
}

func portSuffix(port int) string {
	if port <= 0 {
		return "8000"
	}
	return strconv.Itoa(port)
}

func buildSTT(name string) (providers.STTProvider, error) {
	switch name {
	case "openai":
		key := requireEnv("OPENAI_API_KEY")
		return sttProvider.NewOpenAISTT(key, "whisper-1"), nil
	case "deepgram":
		key := requireEnv("DEEPGRAM_API_KEY")
		return sttProvider.NewDeepgramSTT(key), nil
	case "assemblyai":
		key := requireEnv("ASSEMBLYAI_API_KEY")
		return sttProvider.NewAssemblyAISTT(key), nil
	case "groq", "":
		key := requireEnv("GROQ_API_KEY")
		return sttProvider.NewGroqSTT(key, os.Getenv("GROQ_STT_MODEL")), nil
	default:
		return nil, unknownProvider("stt", name)
	}
}

func buildLLM(name string) (providers.StreamingLLMProvider, error) {
	switch name {
	case "openai":
		key := requireEnv("OPENAI_API_KEY")
		return llmProvider.NewOpenAILLM(key, envOr("OPENAI_LLM_MODEL", "gpt-4o-mini")), nil
	case "anthropic":
		key := requireEnv("ANTHROPIC_API_KEY")
		return llmProvider.NewAnthropicLLM(key, envOr("ANTHROPIC_LLM_MODEL", "claude-3-5-haiku-latest")), nil
	case "google":
		key := requireEnv("GOOGLE_API_KEY")
		return llmProvider.NewGoogleLLM(key, envOr("GOOGLE_LLM_MODEL", "gemini-1.5-flash")), nil
	case "groq", "":
		key := requireEnv("GROQ_API_KEY")
		return llmProvider.NewGroqLLM(key, envOr("GROQ_LLM_MODEL", "llama-3.3-70b-versatile")), nil
	default:
		return nil, unknownProvider("llm", name)
	}
}

func buildTTS(name string) (providers.TTSProvider, error) {
	switch name {
	case "lokutor", "":
		key := requireEnv("LOKUTOR_API_KEY")
		return ttsProvider.NewLokutorTTS(key, os.Getenv("LOKUTOR_VOICE")), nil
	default:
		return nil, unknownProvider("tts", name)
	}
}

func buildIdentification(name string) (providers.IdentificationProvider, error) {
	switch name {
	case "deepgram", "":
		key := requireEnv("DEEPGRAM_API_KEY")
		return identProvider.NewDeepgramID(key), nil
	default:
		return nil, unknownProvider("identification", name)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("fatal: %s must be set: %v", key, corerrors.ErrConfigMissing)
	}
	return v
}

func unknownProvider(kind, name string) error {
	return fmt.Errorf("config: unknown %s provider %q: %w", kind, name, corerrors.ErrConfigMissing)
}
