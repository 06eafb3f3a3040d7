// Command neuralos runs the NeuralOS assistant: an interactive conversation
// loop over a configured LLM backend, with optional voice capture, response
// directives, and a Prometheus metrics endpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/neuralos/neuralos/internal/action"
	"github.com/neuralos/neuralos/internal/archive"
	"github.com/neuralos/neuralos/internal/completion"
	"github.com/neuralos/neuralos/internal/config"
	"github.com/neuralos/neuralos/internal/observe"
	"github.com/neuralos/neuralos/internal/resilience"
	"github.com/neuralos/neuralos/internal/session"
	"github.com/neuralos/neuralos/internal/transcript"
	"github.com/neuralos/neuralos/internal/voice"
	"github.com/neuralos/neuralos/pkg/provider/llm"
	"github.com/neuralos/neuralos/pkg/provider/llm/anyllm"
	llmmock "github.com/neuralos/neuralos/pkg/provider/llm/mock"
	"github.com/neuralos/neuralos/pkg/provider/llm/openai"
	"github.com/neuralos/neuralos/pkg/speech"
	speechmock "github.com/neuralos/neuralos/pkg/speech/mock"
	"github.com/neuralos/neuralos/pkg/speech/wsstream"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "neuralos: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "neuralos: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("neuralos starting",
		"config", *configPath,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry first so every later component records into the real provider.
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "neuralos"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.Default()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	provider, err := buildLLM(cfg, reg)
	if err != nil {
		slog.Error("failed to build LLM provider", "err", err)
		return 1
	}

	settings := config.NewSettings(cfg)
	watcher, err := config.NewWatcher(*configPath, func(_, newCfg *config.Config) {
		settings.Replace(newCfg)
	})
	if err != nil {
		// Already loaded once above; a watcher failure here is not fatal.
		slog.Warn("config watcher unavailable", "err", err)
	} else {
		defer watcher.Stop()
	}

	store, cleanup, err := buildArchive(ctx, cfg)
	if err != nil {
		slog.Error("failed to open turn archive", "err", err)
		return 1
	}
	defer cleanup()

	resolved := settings.Current()
	client := completion.New(provider, completion.WithMetrics(metrics))
	controller := session.NewController(client, session.Config{
		HistoryLimit: resolved.HistoryLimit,
		MaxTokens:    resolved.MaxTokens,
		Temperature:  resolved.Temperature,
		Persona:      resolved.Persona,
	},
		session.WithArchive(store),
		session.WithMetrics(metrics),
		session.WithSettings(settings),
	)

	scheduler := action.NewScheduler()
	defer scheduler.Close()
	dispatcher := action.NewDispatcher(action.WithMetrics(metrics))
	if err := action.RegisterBuiltins(dispatcher, action.BuiltinConfig{
		Features: action.Features{
			Notifications: cfg.Features.Notifications,
			OpenURL:       cfg.Features.OpenURL,
			Email:         cfg.Features.Email,
			PhoneCall:     cfg.Features.PhoneCall,
		},
		Scheduler: scheduler,
	}); err != nil {
		slog.Error("failed to register actions", "err", err)
		return 1
	}

	var voiceSession *voice.Session
	if cfg.Features.Voice {
		platform, err := reg.CreateSpeech(cfg.Providers.Speech)
		if err != nil {
			slog.Error("failed to build speech platform", "err", err)
			return 1
		}
		voiceSession = voice.NewSession(platform, voice.Config{
			Locale:        resolved.Locale,
			FinalizeGrace: resolved.FinalizeGrace,
			ErrorCooldown: resolved.ErrorCooldown,
		}, voice.WithMetrics(metrics), voice.WithSettings(settings))
		defer voiceSession.Destroy()
	}

	printStartupSummary(cfg)

	g, gctx := errgroup.WithContext(ctx)

	if addr := cfg.Server.MetricsAddr; addr != "" {
		srv := &http.Server{Addr: addr, Handler: metricsMux()}
		g.Go(func() error {
			slog.Info("metrics endpoint listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	r := &repl{
		controller: controller,
		dispatcher: dispatcher,
		scheduler:  scheduler,
		voice:      voiceSession,
		corrector:  transcript.NewCorrector(cfg.Vocabulary),
	}
	g.Go(func() error {
		return r.run(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// openai gets the dedicated SDK-backed provider; everything else rides
	// the any-llm backends.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// mock serves a canned reply, for config validation and offline smoke runs.
	reg.RegisterLLM("mock", func(config.ProviderEntry) (llm.Provider, error) {
		return &llmmock.Provider{
			CompleteResponse: &llm.CompletionResponse{
				Content: "This is the mock model. Configure a real provider to chat.",
			},
		}, nil
	})

	reg.RegisterSpeech("deepgram", func(entry config.ProviderEntry) (speech.Platform, error) {
		device := optString(entry.Options, "audio_source")
		if device == "" {
			device = "/dev/stdin"
		}
		source := func(context.Context) (io.ReadCloser, error) {
			return os.Open(device)
		}
		var opts []wsstream.Option
		if entry.Model != "" {
			opts = append(opts, wsstream.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, wsstream.WithEndpoint(entry.BaseURL))
		}
		return wsstream.New(entry.APIKey, source, opts...)
	})

	reg.RegisterSpeech("mock", func(config.ProviderEntry) (speech.Platform, error) {
		return speechmock.New(), nil
	})
}

// buildLLM instantiates the primary backend and, when fallbacks are
// configured, wraps everything in a failover chain.
func buildLLM(cfg *config.Config, reg *config.Registry) (llm.Provider, error) {
	primary, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", cfg.Providers.LLM.Name, err)
	}
	slog.Info("provider created", "kind", "llm", "name", cfg.Providers.LLM.Name)

	if len(cfg.Providers.Fallbacks) == 0 {
		return primary, nil
	}

	chain := resilience.NewChain(cfg.Providers.LLM.Name, primary, resilience.BreakerConfig{})
	for _, entry := range cfg.Providers.Fallbacks {
		fb, err := reg.CreateLLM(entry)
		if err != nil {
			return nil, fmt.Errorf("create fallback provider %q: %w", entry.Name, err)
		}
		chain.Add(entry.Name, fb)
		slog.Info("provider created", "kind", "llm-fallback", "name", entry.Name)
	}
	return chain, nil
}

// buildArchive opens the configured turn store. Without a DSN turns stay in
// memory for the lifetime of the process.
func buildArchive(ctx context.Context, cfg *config.Config) (archive.Store, func(), error) {
	if cfg.Archive.PostgresDSN == "" {
		return archive.NewMemStore(), func() {}, nil
	}
	store, pool, err := archive.Connect(ctx, cfg.Archive.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("turn archive connected")
	return store, pool.Close, nil
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func printStartupSummary(cfg *config.Config) {
	fmt.Printf("neuralos: llm %s/%s", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	if n := len(cfg.Providers.Fallbacks); n > 0 {
		fmt.Printf(" (+%d fallback)", n)
	}
	if cfg.Features.Voice {
		fmt.Printf(", speech %s", cfg.Providers.Speech.Name)
	}
	fmt.Println()
	fmt.Println(`type a message, or /voice /stop /cancel /run <n> /clear /quit`)
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// optString extracts a string value from a provider Options map. Returns ""
// if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	s, _ := opts[key].(string)
	return s
}
