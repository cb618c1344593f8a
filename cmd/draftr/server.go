package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/draftr/internal/alarm"
	"github.com/kalambet/draftr/internal/api"
	"github.com/kalambet/draftr/internal/composer"
	"github.com/kalambet/draftr/internal/config"
	"github.com/kalambet/draftr/internal/drafting"
	"github.com/kalambet/draftr/internal/ingest"
	"github.com/kalambet/draftr/internal/llm"
	"github.com/kalambet/draftr/internal/metrics"
	"github.com/kalambet/draftr/internal/publish"
	"github.com/kalambet/draftr/internal/redisstore"
	"github.com/kalambet/draftr/internal/schedule"
	"github.com/kalambet/draftr/internal/settings"
	"github.com/kalambet/draftr/internal/storage"
)

var mcpStdio bool

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the draftr server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running draftr server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show draftr status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func init() {
	startCmd.Flags().BoolVar(&mcpStdio, "mcp-stdio", false, "also serve MCP tools over stdin/stdout")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "draftr.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// settingsDefaults seeds the settings container from configuration; stored
// settings overlay these on Load.
func settingsDefaults(cfg config.Config) settings.Settings {
	s := settings.Defaults()
	s.Model = cfg.LLM.Model
	s.Temperature = cfg.LLM.Temperature
	s.ReplyCount = cfg.Drafting.ReplyCount
	s.VariationCount = cfg.Drafting.VariationCount
	return s
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "draftr version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(cfg.Log.Level)}))
	slog.SetDefault(logger)

	apiToken, err := config.GetAPIToken(config.NewSecrets())
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	// Refuse to start twice. The health endpoint is the source of truth;
	// the PID file only improves the message.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("closing storage", "error", err)
		}
	}()
	if n, err := store.ResetRunningJobs(); err != nil {
		slog.Warn("resetting interrupted jobs", "error", err)
	} else if n > 0 {
		slog.Info("requeued interrupted jobs", "count", n)
	}

	var kv schedule.KV = store
	if cfg.Storage.KVBackend == "redis" {
		rs, err := redisstore.Dial(ctx, cfg.Storage.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rs.Close()
		kv = rs
		slog.Info("using redis for settings and scheduled posts")
	}

	settingsMgr := settings.NewManager(kv, settingsDefaults(cfg))
	if err := settingsMgr.Load(ctx); err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}
	unsubscribe := settingsMgr.Subscribe(func(s settings.Settings) {
		slog.Info("settings updated", "model", s.Model, "tone", s.Tone, "language", s.Language)
	})
	defer unsubscribe()

	gen, err := newGenerator(ctx, cfg)
	if err != nil {
		return err
	}

	m := metrics.New()
	drafter := drafting.New(gen, settingsMgr, store, composer.New(cfg.Drafting.MaxSampleTokens), drafting.Options{
		Timeout:  cfg.Drafting.Timeout,
		MaxItems: cfg.Drafting.MaxItems,
		Metrics:  m,
		Logger:   logger.With("component", "drafting"),
	})

	hub := publish.NewHub(nil, logger.With("component", "publish"))
	defer hub.Close()
	var publisher schedule.Publisher = hub
	if cfg.Publish.Mode == "webhook" {
		publisher = publish.NewWebhook(cfg.Publish.WebhookURL, nil)
		slog.Info("publishing through webhook", "url", cfg.Publish.WebhookURL)
	}

	// The alarm callback needs the scheduler and the scheduler needs the
	// alarms, so the closure captures the variable assigned below.
	var scheduler *schedule.Scheduler
	alarms := alarm.New(func(id string) {
		if err := scheduler.OnFire(ctx, id); err != nil {
			slog.Warn("scheduled post not published", "alarm_id", id, "error", err)
		}
	}, logger.With("component", "alarm"))
	scheduler = schedule.New(schedule.Deps{
		KV:             kv,
		Alarms:         alarms,
		Publisher:      publisher,
		Metrics:        m,
		Logger:         logger.With("component", "schedule"),
		PublishTimeout: cfg.Schedule.PublishTimeout,
	})
	alarms.Start()
	defer alarms.Stop()

	report, err := scheduler.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recovering scheduled posts: %w", err)
	}
	slog.Info("scheduled posts recovered", "rearmed", len(report.Rearmed), "missed", len(report.Missed))
	for _, p := range report.Missed {
		slog.Warn("scheduled post missed while offline", "alarm_id", p.AlarmID, "scheduled_time", p.ScheduledTime)
	}

	handler := api.NewAppHandler(api.AppDeps{
		Store:     store,
		Settings:  settingsMgr,
		Drafter:   drafter,
		Scheduler: scheduler,
		Hub:       hub,
		Metrics:   m,
		Token:     apiToken,
		Logger:    logger.With("component", "api"),
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	worker := ingest.NewWorker(store, 500*time.Millisecond)
	g.Go(func() error {
		worker.Run(gctx)
		return nil
	})

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "draftr listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	if mcpStdio {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Drafter:   drafter,
			Scheduler: scheduler,
			Settings:  settingsMgr,
			Version:   version,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		g.Go(func() error {
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
			return nil
		})
		slog.Info("MCP server started (stdio transport)")
	}

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		hub.Close()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// newGenerator builds the configured LLM client. A local Ollama model is
// pulled on first start so the first draft does not stall on a download.
func newGenerator(ctx context.Context, cfg config.Config) (llm.Generator, error) {
	baseURL := cfg.LLM.BaseURL
	if cfg.LLM.Provider == "ollama" && baseURL == "" {
		baseURL = cfg.Ollama.BaseURL
	}

	gen, err := llm.New(llm.Options{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  baseURL,
		Model:    cfg.LLM.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("creating llm client: %w", err)
	}

	if o, ok := gen.(*llm.Ollama); ok {
		if !o.IsRunning(ctx) {
			printWarning("Ollama is not reachable at %s; drafts will fail until it is started", baseURL)
			return gen, nil
		}
		lastStatus := ""
		if err := o.EnsureModel(ctx, func(p llm.PullProgress) {
			if p.Status != lastStatus {
				printStep("%s", p.Status)
				lastStatus = p.Status
			}
		}); err != nil {
			return nil, fmt.Errorf("preparing ollama model: %w", err)
		}
	}
	return gen, nil
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("draftr is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop draftr (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to draftr (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	running := false
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Provider", "%s", cfg.LLM.Provider)
	printStatus("Model", "%s", cfg.LLM.Model)
	printStatus("KV backend", "%s", cfg.Storage.KVBackend)
	printStatus("Publish", "%s", cfg.Publish.Mode)

	if cfg.LLM.Provider == "ollama" {
		ollamaResp, err := client.Get(cfg.Ollama.BaseURL + "/api/version")
		if err != nil {
			printStatus("Ollama", "not running")
		} else {
			ollamaResp.Body.Close()
			printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
		}
	}

	apiToken, tokenErr := config.GetAPIToken(config.NewSecrets())
	if tokenErr == nil && running {
		if n, err := countItems(client, serverURL+"/scheduled-posts?status=pending", apiToken); err == nil {
			printStatus("Pending posts", "%d", n)
		}
		if n, err := countItems(client, serverURL+"/scheduled-posts?status=missed", apiToken); err == nil && n > 0 {
			printStatus("Missed posts", "%d", n)
		}
		if n, err := countItems(client, serverURL+"/samples?limit=100", apiToken); err == nil {
			printStatus("Samples", "%s", countLabel(n, 100))
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func countItems(client *http.Client, url, token string) (int, error) {
	resp, err := apiGet(client, url, token)
	if err != nil {
		return 0, err
	}
	var items []json.RawMessage
	if err := decodeJSON(resp, &items); err != nil {
		return 0, err
	}
	return len(items), nil
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}

func apiGet(client *http.Client, url, token string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return client.Do(req)
}
