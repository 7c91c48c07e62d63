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

	"github.com/go-chi/chi/v5"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/jaehwang/sulbi/internal/advice"
	"github.com/jaehwang/sulbi/internal/agent"
	"github.com/jaehwang/sulbi/internal/api"
	"github.com/jaehwang/sulbi/internal/cache"
	"github.com/jaehwang/sulbi/internal/config"
	"github.com/jaehwang/sulbi/internal/ingest"
	"github.com/jaehwang/sulbi/internal/llm"
	"github.com/jaehwang/sulbi/internal/localdata"
	"github.com/jaehwang/sulbi/internal/queue"
	"github.com/jaehwang/sulbi/internal/relay"
	"github.com/jaehwang/sulbi/internal/report"
	"github.com/jaehwang/sulbi/internal/reranking"
	"github.com/jaehwang/sulbi/internal/retrieval"
	"github.com/jaehwang/sulbi/internal/storage"
	"github.com/jaehwang/sulbi/internal/tools"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the sulbi server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running sulbi server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sulbi system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "sulbi.pid")
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

func runServer() error {
	fmt.Fprintf(os.Stderr, "sulbi version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Refuse to double-start. The health probe catches a live server even
	// when a stale PID file was left behind.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("sulbi is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("sulbi is already running on port %d", cfg.Server.Port)
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
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Retrieval stack: one OpenAI client serves chat, streaming, and
	// embeddings.
	llmClient := llm.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.EmbedModel)
	embedder := retrieval.NewEmbedder(llmClient)
	vectorStore := retrieval.NewSQLiteStore(store.DB())
	retriever := retrieval.NewRetriever(embedder, vectorStore)

	// Tool layer. All three tools share one result cache.
	toolCache := cache.New(512, 10*time.Minute)
	trendTool := tools.NewTrendSearch(retriever, toolCache)
	trendTool.Configure(reranking.Weights{
		Vector:    cfg.Rerank.VectorWeight,
		Lexical:   cfg.Rerank.LexicalWeight,
		Freshness: cfg.Rerank.FreshnessBonus,
		FreshDays: cfg.Rerank.FreshDays,
		StaleDays: cfg.Rerank.StaleDays,
		AreaBonus: cfg.Rerank.AreaBonus,
	}, cfg.Retrieval.RecallSize, cfg.Retrieval.TopK)

	kakao := localdata.NewKakaoClient(cfg.Kakao.APIKey, cfg.Kakao.BaseURL)
	placeTool := tools.NewPlaceSearch(kakao, toolCache)

	var rents localdata.RentClient = &localdata.RentTable{}
	if cfg.LocalData.RentCSVPath != "" {
		table, err := localdata.LoadRentCSV(cfg.LocalData.RentCSVPath)
		if err != nil {
			return fmt.Errorf("loading rent CSV: %w", err)
		}
		rents = table
	} else {
		slog.Warn("no rent CSV configured, rent_lookup will report misses",
			"key", "localdata.rent_csv")
	}
	rentTool := tools.NewRentLookup(rents, toolCache)

	specs := tools.DefaultSpecs(trendTool, placeTool, rentTool)
	if cfg.Agent.ToolCap > 0 {
		for i := range specs {
			if specs[i].Cap > 1 {
				specs[i].Cap = cfg.Agent.ToolCap
			}
		}
	}
	registry := tools.NewRegistry(specs...)

	bus := relay.New(cfg.Relay.SnapshotTTL)
	loop := agent.New(llmClient, registry, bus)
	loop.Configure(cfg.Agent.MaxRounds, cfg.Agent.FlushInterval)

	aggregator := report.NewHTTPAggregator(cfg.Aggregator.BaseURL)
	finalizer := advice.NewFinalizer(llmClient, cfg.OpenAI.Model)
	classifier := advice.NewClassifier(llmClient, cfg.OpenAI.Model)
	limiter := queue.NewSlidingWindow(cfg.Queue.RateMax, cfg.Queue.RateWindow)

	svc := queue.NewService(store)
	svc.MaxAttempts = cfg.Queue.MaxAttempts

	pool := queue.NewPool(queue.PoolConfig{
		Store:       store,
		Aggregator:  aggregator,
		Agent:       loop,
		Finalizer:   finalizer,
		Classifier:  classifier,
		Relay:       bus,
		Limiter:     limiter,
		Model:       cfg.OpenAI.Model,
		Concurrency: cfg.Queue.Concurrency,
		TerminalTTL: cfg.Queue.JobTTL,
	})
	go pool.Run(ctx)

	// Trend-doc pipeline: Naver imports and operator submissions go through
	// the importer; the worker embeds queued docs in the background.
	naver := localdata.NewNaverClient(cfg.Naver.ClientID, cfg.Naver.ClientSecret, cfg.Naver.BaseURL)
	importer := ingest.NewImporter(store, naver)
	docWorker := ingest.NewWorker(store, embedder, 500*time.Millisecond)
	go docWorker.Run(ctx)

	publicHandler := api.NewHandler(api.Deps{
		Advice:       svc,
		Relay:        bus,
		PingInterval: cfg.Relay.Heartbeat,
	})
	mgmtHandler := api.NewManagementHandler(api.ManagementDeps{
		Saver:      importer,
		Lister:     store,
		Token:      cfg.Server.Token,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	})

	topRouter := chi.NewRouter()
	topRouter.Mount("/admin", mgmtHandler)
	topRouter.Mount("/", publicHandler)

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: topRouter,
	}

	// MCP server over stdio, for desktop agents attached to the process.
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		TrendSearch: trendTool,
		Aggregator:  aggregator,
		Saver:       importer,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "sulbi listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
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
		printError("sulbi is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop sulbi (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to sulbi (PID %d)", pid)
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

	resp, err := client.Get(serverURL + "/health")
	running := false
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == 200 {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Model", "%s", cfg.OpenAI.Model)
	printStatus("Embed model", "%s", cfg.OpenAI.EmbedModel)
	printStatus("Aggregator", "%s", cfg.Aggregator.BaseURL)

	if running {
		req, err := http.NewRequest(http.MethodGet, serverURL+"/admin/trend-docs?limit=100", nil)
		if err == nil {
			req.Header.Set("Authorization", "Bearer "+cfg.Server.Token)
			if docsResp, err := client.Do(req); err == nil {
				var docs []json.RawMessage
				if json.NewDecoder(docsResp.Body).Decode(&docs) == nil {
					printStatus("Trend docs", "%s", countLabel(len(docs), 100))
				}
				docsResp.Body.Close()
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func countLabel(count, limit int) string {
	if count >= limit {
		return fmt.Sprintf("%d+", count)
	}
	return fmt.Sprintf("%d", count)
}
