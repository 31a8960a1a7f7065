// Package main provides the guard daemon: it arms launch-protection
// monitoring for a token, feeds chain buy events into the guard and
// executes the protective action (stop buying / emergency exit) when
// external volume breaches the threshold.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"trench-guard/internal/domain"
	"trench-guard/internal/guard"
	"trench-guard/internal/liquidation"
	"trench-guard/internal/observability"
	"trench-guard/internal/solana"
	"trench-guard/internal/swap"
	"trench-guard/internal/wallet"
	"trench-guard/internal/watcher"
)

// Server wires the watcher, guard registry and liquidation engine.
type Server struct {
	registry *guard.Registry
	engine   *liquidation.Engine
	logger   *log.Logger

	positionsEndpoint string
	excludedWallets   []string
	priorityFee       float64
	httpClient        *http.Client

	mu          sync.Mutex
	startedAt   time.Time
	lastSummary *domain.SellAllSummary
}

func main() {
	loadEnvFile()

	// Parse flags (env vars as defaults)
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("SOLANA_RPC_ENDPOINT"), "Solana RPC HTTP endpoint")
	wsEndpoint := flag.String("ws-endpoint", os.Getenv("SOLANA_WS_ENDPOINT"), "Solana WebSocket endpoint")
	swapEndpoint := flag.String("swap-endpoint", os.Getenv("SWAP_ENDPOINT"), "Wallet-engine swap endpoint")
	positionsEndpoint := flag.String("positions-endpoint", os.Getenv("POSITIONS_ENDPOINT"), "Wallet-engine positions endpoint")
	planPath := flag.String("plan", "launch-plan.json", "Path to launch plan JSON")
	maxExternalSol := flag.Float64("max-external-sol", guard.DefaultMaxExternalSol, "External SOL threshold for triggering")
	action := flag.String("action", string(domain.ActionStopBuying), "Protective action: STOP_BUYING or EMERGENCY_EXIT")
	monitorDuration := flag.Duration("monitor-duration", guard.DefaultMonitorDuration, "How long to monitor post-launch")
	cooldown := flag.Duration("cooldown", guard.DefaultCooldown, "Minimum gap between emitted actions")
	excluded := flag.String("excluded-wallets", os.Getenv("EXCLUDED_WALLETS"), "Comma-separated wallets protected from liquidation")
	priorityFee := flag.Float64("priority-fee", liquidation.EmergencyPriorityFee, "SOL priority fee for emergency exit")
	metricsAddr := flag.String("metrics-addr", ":9090", "HTTP address for metrics/status")

	flag.Parse()

	logger := log.New(os.Stdout, "[guardd] ", log.LstdFlags|log.Lshortfile)

	if *rpcEndpoint == "" {
		logger.Fatal("--rpc-endpoint is required")
	}
	if *wsEndpoint == "" {
		logger.Fatal("--ws-endpoint is required")
	}
	if *swapEndpoint == "" {
		logger.Fatal("--swap-endpoint is required")
	}

	plan, err := loadLaunchPlan(*planPath)
	if err != nil {
		logger.Fatalf("Failed to load launch plan: %v", err)
	}
	logger.Printf("Loaded launch plan for token %s (%d whitelisted wallets)",
		plan.TokenAddress, 2+len(plan.SniperWallets)+len(plan.BotWallets))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Clients
	rpc := solana.NewHTTPClient(*rpcEndpoint)
	ws, err := solana.NewWSConn(ctx, *wsEndpoint, nil, logger)
	if err != nil {
		logger.Fatalf("Failed to connect WebSocket: %v", err)
	}
	defer ws.Close()

	server := &Server{
		logger:            logger,
		positionsEndpoint: *positionsEndpoint,
		excludedWallets:   splitList(*excluded),
		priorityFee:       *priorityFee,
		httpClient:        &http.Client{Timeout: 30 * time.Second},
		startedAt:         time.Now(),
	}

	server.engine = liquidation.NewEngine(
		swap.NewRPCExecutor(*swapEndpoint, rpc),
		liquidation.WithProgress(server.onProgress),
	)
	server.registry = guard.NewRegistry(server)

	// Arm the guard
	cfg := guard.Config{
		MaxExternalSol:  *maxExternalSol,
		Action:          domain.GuardAction(*action),
		MonitorDuration: *monitorDuration,
		Cooldown:        *cooldown,
	}
	if _, err := server.registry.Init(plan, cfg); err != nil {
		logger.Fatalf("Failed to init guard: %v", err)
	}
	observability.RecordSessionStarted()
	logger.Printf("Guard armed: threshold=%.2f SOL action=%s duration=%v",
		cfg.MaxExternalSol, cfg.Action, cfg.MonitorDuration)

	// Start the buy-event feed
	feed := watcher.New(ws, rpc, server.onBuyEvent, logger)
	if err := feed.Watch(ctx, plan.TokenAddress); err != nil {
		logger.Fatalf("Failed to start watcher: %v", err)
	}

	go server.startHTTPServer(*metricsAddr)

	// Shutdown on signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Printf("Received signal %v, shutting down...", sig)

	cancel()
	for _, token := range server.registry.ActiveTokens() {
		server.registry.Stop(token)
	}
	logger.Println("Shutdown complete")
}

// onBuyEvent pushes one parsed buy into the guard.
func (s *Server) onBuyEvent(tokenAddress string, ev domain.BuyEvent) {
	observability.RecordBuyEventParsed()
	if !s.registry.IsWhitelisted(tokenAddress, ev.Wallet) {
		observability.RecordExternalBuy(ev.SolAmount)
	}

	action, err := s.registry.ProcessBuyEvent(tokenAddress, ev, guard.Config{})
	if err != nil {
		observability.RecordBuyEventError("invalid_event")
		s.logger.Printf("Dropped buy event %s: %v", ev.TxSignature, err)
		return
	}
	if action != "" {
		s.logger.Printf("Protective action %s emitted for %s", action, tokenAddress)
	}
}

// OnThresholdBreached implements guard.Hooks.
func (s *Server) OnThresholdBreached(tokenAddress string, alert domain.ExternalBuyAlert, action domain.GuardAction) {
	observability.RecordActionTriggered(string(action))
	s.logger.Printf("THRESHOLD BREACHED for %s: %.2f/%.2f SOL (last buy %.2f from %s)",
		tokenAddress, alert.CumulativeExternalSol, alert.Threshold,
		alert.SolAmount, wallet.Short(alert.Wallet))

	if action != domain.ActionEmergencyExit {
		return
	}

	// The sweep can take minutes; don't hold up the event path. The
	// session is already Triggered, so further events are no-ops.
	go s.emergencyExit(tokenAddress)
}

// OnGuardStopped implements guard.Hooks.
func (s *Server) OnGuardStopped(tokenAddress string, final guard.Snapshot) {
	observability.RecordSessionStopped(string(final.State))
	s.logger.Printf("Guard stopped for %s: external=%.2f SOL alerts=%d triggered=%v",
		tokenAddress, final.ExternalSolTotal, len(final.Alerts), final.ActionTriggered)
}

// onProgress implements the liquidation progress hook.
func (s *Server) onProgress(completed, total int, result domain.SellResult) {
	outcome := "failed"
	switch {
	case result.PartialSell:
		outcome = "partial"
	case result.Success:
		outcome = "sold"
	}
	observability.RecordSellResult(outcome, result.SolReceived)

	if result.Success {
		s.logger.Printf("Liquidation %d/%d: %s sold, %.4f SOL (%s)",
			completed, total, wallet.Short(result.Wallet), result.SolReceived, result.TxSignature)
	} else {
		s.logger.Printf("Liquidation %d/%d: %s FAILED: %s",
			completed, total, wallet.Short(result.Wallet), result.Error)
	}
}

// emergencyExit fetches positions and sweeps them.
func (s *Server) emergencyExit(tokenAddress string) {
	start := time.Now()

	positions, err := s.fetchPositions(tokenAddress)
	if err != nil {
		s.logger.Printf("Emergency exit aborted, cannot fetch positions: %v", err)
		return
	}
	if len(positions) == 0 {
		s.logger.Printf("Emergency exit: no positions to liquidate for %s", tokenAddress)
		return
	}

	s.logger.Printf("Emergency exit: sweeping %d positions for %s", len(positions), tokenAddress)
	summary := s.engine.SellAll(context.Background(), positions, liquidation.Config{
		ExcludedWallets: s.excludedWallets,
		SlippageBps:     liquidation.EmergencySlippageBps,
		MaxRetries:      liquidation.EmergencyMaxRetries,
		PriorityFee:     s.priorityFee,
	})

	observability.RecordSweep(time.Since(start).Seconds())
	s.mu.Lock()
	s.lastSummary = &summary
	s.mu.Unlock()

	s.logger.Printf("Emergency exit complete: sold=%d partial=%d failed=%d recovered=%.4f SOL in %dms",
		summary.SoldCount, summary.PartialCount, summary.FailedCount,
		summary.TotalSolReceived, summary.DurationMs)
}

// fetchPositions queries the wallet engine for open positions.
func (s *Server) fetchPositions(tokenAddress string) ([]domain.Position, error) {
	if s.positionsEndpoint == "" {
		return nil, fmt.Errorf("positions endpoint not configured")
	}

	url := fmt.Sprintf("%s?token=%s", s.positionsEndpoint, tokenAddress)
	resp, err := s.httpClient.Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetch positions: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("positions endpoint status %d", resp.StatusCode)
	}

	var positions []domain.Position
	if err := json.NewDecoder(resp.Body).Decode(&positions); err != nil {
		return nil, fmt.Errorf("decode positions: %w", err)
	}
	return positions, nil
}

// startHTTPServer serves health, metrics and status endpoints.
func (s *Server) startHTTPServer(addr string) {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/status", s.handleStatus)

	s.logger.Printf("Starting HTTP server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		s.logger.Printf("HTTP server error: %v", err)
	}
}

// TokenStatus is the per-token entry in the /status response.
type TokenStatus struct {
	TokenAddress string             `json:"token_address"`
	State        string             `json:"state"`
	ExternalSol  float64            `json:"external_sol"`
	Threshold    float64            `json:"threshold"`
	AlertCount   int                `json:"alert_count"`
	Stats        *domain.GuardStats `json:"stats,omitempty"`
}

// StatusResponse is the JSON response for the /status endpoint.
type StatusResponse struct {
	Status    string                 `json:"status"`
	Uptime    string                 `json:"uptime"`
	Guards    []TokenStatus          `json:"guards"`
	LastSweep *domain.SellAllSummary `json:"last_sweep,omitempty"`
}

// handleStatus returns guard state as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Status: "running",
		Uptime: time.Since(s.startedAt).String(),
	}

	for _, token := range s.registry.ActiveTokens() {
		snap := s.registry.Status(token)
		if snap == nil {
			continue
		}
		resp.Guards = append(resp.Guards, TokenStatus{
			TokenAddress: token,
			State:        string(snap.State),
			ExternalSol:  snap.ExternalSolTotal,
			Threshold:    snap.Config.MaxExternalSol,
			AlertCount:   len(snap.Alerts),
			Stats:        s.registry.Stats(token),
		})
	}

	s.mu.Lock()
	resp.LastSweep = s.lastSummary
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// loadLaunchPlan reads and validates the launch plan JSON.
func loadLaunchPlan(path string) (domain.LaunchPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.LaunchPlan{}, fmt.Errorf("read %s: %w", path, err)
	}

	var raw struct {
		TokenAddress  string   `json:"tokenAddress"`
		SniperWallets []string `json:"sniperWallets"`
		DevWallet     string   `json:"devWallet"`
		FunderWallet  string   `json:"funderWallet"`
		BotWallets    []string `json:"botWallets"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return domain.LaunchPlan{}, fmt.Errorf("parse %s: %w", path, err)
	}

	plan := domain.LaunchPlan{
		TokenAddress:  raw.TokenAddress,
		SniperWallets: raw.SniperWallets,
		DevWallet:     raw.DevWallet,
		FunderWallet:  raw.FunderWallet,
		BotWallets:    raw.BotWallets,
	}

	if plan.TokenAddress == "" {
		return domain.LaunchPlan{}, fmt.Errorf("launch plan missing tokenAddress")
	}
	for _, addr := range append([]string{plan.DevWallet, plan.FunderWallet}, plan.SniperWallets...) {
		if addr != "" && !wallet.IsValid(addr) {
			log.Printf("[guardd] Warning: wallet %s is not a valid Solana address", wallet.Short(addr))
		}
	}

	return plan, nil
}

// splitList parses a comma-separated flag value.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
