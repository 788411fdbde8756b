// Command tourctl is an operator client for the TourCompanion API. It warms
// the offline cache and follows a creator's live change feed from a terminal.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"tourcompanion/api/internal/livesync"
	"tourcompanion/api/internal/logging"
	"tourcompanion/api/internal/offline"
)

func main() {
	var (
		apiURL   string
		token    string
		userID   string
		project  string
		tables   string
		cacheDir string
		debounce time.Duration
		logLevel string
	)

	flag.StringVar(&apiURL, "api", envOr("TOURCOMPANION_API_URL", "http://localhost:8787"), "API base URL")
	flag.StringVar(&token, "token", os.Getenv("TOURCOMPANION_TOKEN"), "Bearer access token")
	flag.StringVar(&userID, "user", "", "Creator user id to watch")
	flag.StringVar(&project, "project", "", "Project id to watch (overrides -user scope)")
	flag.StringVar(&tables, "tables", "", "Comma-separated tables (default depends on scope)")
	flag.StringVar(&cacheDir, "cache-dir", "", "Directory for the offline cache (default: in memory)")
	flag.DurationVar(&debounce, "debounce", livesync.DefaultDebounce, "Refresh debounce window")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	logger := logging.New(logLevel, "console")
	defer func() { _ = logger.Sync() }()

	var cache offline.Cache = offline.NewMemoryCache()
	if cacheDir != "" {
		dirCache, err := offline.NewDirCache(cacheDir)
		if err != nil {
			logger.Fatal("open cache dir", zap.String("dir", cacheDir), zap.Error(err))
		}
		cache = dirCache
	}
	transport := offline.NewTransport(http.DefaultTransport, cache, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch args[0] {
	case "precache":
		if err := transport.Precache(ctx, apiURL, offline.PrecacheURLs); err != nil {
			logger.Fatal("precache failed", zap.Error(err))
		}
		logger.Info("precache complete", zap.Strings("paths", offline.PrecacheURLs))
	case "watch":
		scope := livesync.Scope{UserID: userID, ProjectID: project, Tables: splitTables(tables)}
		if err := watch(ctx, logger, transport, apiURL, token, scope, debounce); err != nil {
			logger.Fatal("watch failed", zap.Error(err))
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

// watch keeps a dashboard snapshot current until ctx ends.
func watch(ctx context.Context, logger *zap.Logger, transport *offline.Transport, apiURL, token string, scope livesync.Scope, debounce time.Duration) error {
	client := &http.Client{Transport: transport, Timeout: 15 * time.Second}
	refresh := func(ctx context.Context) error {
		counts, cached, err := fetchDashboard(ctx, client, apiURL, token)
		if err != nil {
			logger.Warn("failed to load, press r to retry", zap.Error(err))
			return err
		}
		logger.Info("dashboard",
			zap.Bool("offline", cached),
			zap.Any("counts", counts),
		)
		return nil
	}

	feed := &livesync.SSEFeed{BaseURL: apiURL, Token: token}
	session, err := livesync.Start(ctx, feed, scope, refresh,
		livesync.WithDebounce(debounce),
		livesync.WithLogger(logger),
		livesync.OnChange(func(snap livesync.Snapshot) {
			logger.Debug("live sync",
				zap.String("state", string(snap.State)),
				zap.Int("attempts", snap.Attempts),
				zap.Bool("gave_up", snap.GaveUp),
				zap.Int("refreshes", snap.Refreshes),
			)
		}),
	)
	if err != nil {
		return err
	}
	defer session.Close()

	bindings := make([]string, 0, len(session.Bindings()))
	for _, binding := range session.Bindings() {
		bindings = append(bindings, binding.String())
	}
	logger.Info("watching", zap.Strings("bindings", bindings))

	session.ForceRefresh()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				<-ctx.Done()
				return nil
			}
			switch line {
			case "r":
				session.ForceRefresh()
			case "s":
				snap := session.Snapshot()
				logger.Info("status",
					zap.String("state", string(snap.State)),
					zap.Int("attempts", snap.Attempts),
					zap.Bool("gave_up", snap.GaveUp),
					zap.String("error", snap.Err),
				)
			case "q":
				return nil
			}
		}
	}
}

func fetchDashboard(ctx context.Context, client *http.Client, apiURL, token string) (map[string]any, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(apiURL, "/")+"/api/dashboard", nil)
	if err != nil {
		return nil, false, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, false, fmt.Errorf("dashboard returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var counts map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&counts); err != nil {
		return nil, false, fmt.Errorf("decode dashboard: %w", err)
	}
	return counts, offline.FromCache(resp), nil
}

func splitTables(raw string) []string {
	var out []string
	for _, table := range strings.Split(raw, ",") {
		if table = strings.TrimSpace(table); table != "" {
			out = append(out, table)
		}
	}
	return out
}

func envOr(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func printUsage() {
	fmt.Println("Usage: tourctl [flags] <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  precache    Fetch the app shell and manifest into the offline cache")
	fmt.Println("  watch       Follow live changes and refresh the dashboard on each burst")
	fmt.Println("              (type r to refresh and reconnect, s for status, q to quit)")
	fmt.Println()
	fmt.Println("Flags:")
	flag.PrintDefaults()
}
