package web

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/dotindex/core/internal/dex"
	"github.com/dotindex/core/internal/logger"
	"github.com/dotindex/core/internal/portfolio"
	"github.com/dotindex/core/internal/registry"
	"github.com/dotindex/core/internal/staking"
	"github.com/dotindex/core/internal/state"
	"github.com/dotindex/core/internal/types"
	"github.com/dotindex/core/internal/utils"
)

var webLogger = logger.GetForComponent("web_server")

// displayPrecision converts native units to whole dollars for the API.
const displayPrecision = 9

// Components are the live protocol collaborators surfaced by the API.
type Components struct {
	Registry  *registry.Registry
	Portfolio *portfolio.Portfolio
	Staking   *staking.Engine
	Dex       *dex.SwapPool
}

// WebServer handles HTTP requests for protocol data visualization
type WebServer struct {
	router     *mux.Router
	port       string
	components Components
	configName string
	startedAt  time.Time
}

// NewWebServer creates a new web server instance
func NewWebServer(port string, components Components, configName string) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router:     mux.NewRouter(),
		port:       port,
		components: components,
		configName: configName,
		startedAt:  time.Now(),
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	// Health endpoint (direct route)
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	// API endpoints
	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/index", ws.handleGetIndex).Methods("GET")
	api.HandleFunc("/tiers", ws.handleGetTiers).Methods("GET")
	api.HandleFunc("/holdings", ws.handleGetHoldings).Methods("GET")
	api.HandleFunc("/staking", ws.handleGetStaking).Methods("GET")
	api.HandleFunc("/pools", ws.handleGetPools).Methods("GET")
	api.HandleFunc("/cycles", ws.handleGetCycles).Methods("GET")
	api.HandleFunc("/cycles/latest", ws.handleGetLatestCycle).Methods("GET")
	api.HandleFunc("/cycles/{id}", ws.handleGetCycle).Methods("GET")
	api.HandleFunc("/parameters", ws.handleGetParameters).Methods("GET")
	api.HandleFunc("/summary", ws.handleGetSummary).Methods("GET")
	api.HandleFunc("/performance", ws.handleGetPerformanceMetrics).Methods("GET")

	// Add CORS middleware
	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Start starts the web server
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// handleHealth returns comprehensive server health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	hasErrors := false

	dbHealthy := true
	if err := state.TestDBConnection(); err != nil {
		dbHealthy = false
		hasErrors = true
	}

	cycleInfo := map[string]interface{}{
		"current_cycle":   0,
		"last_cycle_time": nil,
	}
	if cycles, err := state.GetRecentCycles(1); err == nil && len(cycles) > 0 {
		cycleInfo["current_cycle"] = cycles[0].CycleNumber
		cycleInfo["last_cycle_time"] = cycles[0].Timestamp
	}

	overallStatus := "OK"
	statusCode := http.StatusOK
	if hasErrors {
		overallStatus = "DEGRADED"
		statusCode = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
			"uptime_seconds":   int64(time.Since(ws.startedAt).Seconds()),
		},
		"component": map[string]interface{}{
			"name":    "index-protocol-core",
			"version": "1.0.0",
		},
		"protocol_status": map[string]interface{}{
			"database_healthy": dbHealthy,
			"index_tracking":   ws.components.Portfolio.IsIndexTrackingEnabled(),
			"staking_paused":   ws.components.Staking.IsPaused(),
			"cycle_info":       cycleInfo,
		},
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// handleGetIndex returns the live index state
func (ws *WebServer) handleGetIndex(w http.ResponseWriter, r *http.Request) {
	p := ws.components.Portfolio

	cached := p.CachedIndexValue()
	response := map[string]interface{}{
		"index_value":      cached.String(),
		"tracking_enabled": p.IsIndexTrackingEnabled(),
		"stale":            p.IsIndexValueStale(),
		"last_update_ms":   p.LastIndexUpdate(),
		"timestamp":        time.Now().UTC(),
	}

	if display, err := utils.SDKIntToFloat64(cached, displayPrecision); err == nil {
		response["index_value_usd"] = display
	}

	if performanceBP, err := p.IndexPerformanceBP(); err == nil {
		response["performance_bp"] = performanceBP
	}

	if live, err := p.CurrentIndexValue(); err == nil {
		response["realtime_index_value"] = live.String()
	} else {
		webLogger.Debug().Err(err).Msg("Realtime index value unavailable")
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetTiers returns the registry's tier state
func (ws *WebServer) handleGetTiers(w http.ResponseWriter, r *http.Request) {
	reg := ws.components.Registry

	distribution := make(map[string]uint32)
	for tier, count := range reg.TierDistribution() {
		distribution[tier.String()] = count
	}

	response := map[string]interface{}{
		"active_tier":       reg.ActiveTier().String(),
		"last_tier_change":  reg.LastTierChange(),
		"token_count":       reg.TokenCount(),
		"tier_distribution": distribution,
		"pending_changes":   reg.TokensWithPendingChanges(),
		"grace_period_ms":   reg.GracePeriod(),
		"timestamp":         time.Now().UTC(),
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetHoldings returns the portfolio composition and live valuation
func (ws *WebServer) handleGetHoldings(w http.ResponseWriter, r *http.Request) {
	p := ws.components.Portfolio

	response := map[string]interface{}{
		"composition": p.Composition(),
		"valuation":   p.ValuationBreakdown(),
		"cash_buffer": p.CashBuffer().String(),
		"fee_config":  p.FeeConfig(),
		"timestamp":   time.Now().UTC(),
	}

	if total, err := p.TotalPortfolioValue(); err == nil {
		response["total_value"] = total.String()
		if display, err := utils.SDKIntToFloat64(total, displayPrecision); err == nil {
			response["total_value_usd"] = display
		}
	} else {
		webLogger.Debug().Err(err).Msg("Portfolio valuation unavailable")
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetStaking returns staking engine totals
func (ws *WebServer) handleGetStaking(w http.ResponseWriter, r *http.Request) {
	s := ws.components.Staking

	response := map[string]interface{}{
		"total_staked":         s.TotalStaked().String(),
		"total_collected_fees": s.TotalCollectedFees().String(),
		"paused":               s.IsPaused(),
		"fee_wallet":           s.FeeWallet(),
		"timestamp":            time.Now().UTC(),
	}

	if account := r.URL.Query().Get("account"); account != "" {
		addr := types.Address(account)
		if stake, ok := s.GetStake(addr); ok {
			response["stake"] = stake
		}
		response["claimable_rewards"] = s.ClaimableRewards(addr).String()
		response["claimable_unstaked"] = s.ClaimableUnstaked(addr).String()
		response["unstaking_requests"] = s.GetUnstakingRequests(addr)
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetPools returns every configured swap pool
func (ws *WebServer) handleGetPools(w http.ResponseWriter, r *http.Request) {
	pools := ws.components.Dex.Pools()

	type poolView struct {
		TokenA   types.Address `json:"token_a"`
		TokenB   types.Address `json:"token_b"`
		ReserveA string        `json:"reserve_a"`
		ReserveB string        `json:"reserve_b"`
	}
	views := make([]poolView, 0, len(pools))
	for _, p := range pools {
		views = append(views, poolView{
			TokenA:   p.TokenA,
			TokenB:   p.TokenB,
			ReserveA: p.ReserveA.String(),
			ReserveB: p.ReserveB.String(),
		})
	}

	response := map[string]interface{}{
		"pools":     views,
		"count":     len(views),
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetCycles returns paginated cycle data
func (ws *WebServer) handleGetCycles(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}

	cycles, err := state.GetRecentCycles(limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recent cycles")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve cycles")
		return
	}

	response := map[string]interface{}{
		"cycles": cycles,
		"count":  len(cycles),
		"limit":  limit,
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetCycle returns a specific cycle by ID
func (ws *WebServer) handleGetCycle(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	idStr := vars["id"]

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid cycle ID")
		return
	}

	cycle, err := state.GetCycleByID(id)
	if err != nil {
		webLogger.Error().Err(err).Int64("cycleId", id).Msg("Failed to get cycle")
		ws.writeErrorResponse(w, http.StatusNotFound, "Cycle not found")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, cycle)
}

// handleGetLatestCycle returns the most recent cycle
func (ws *WebServer) handleGetLatestCycle(w http.ResponseWriter, r *http.Request) {
	cycles, err := state.GetRecentCycles(1)
	if err != nil || len(cycles) == 0 {
		webLogger.Error().Err(err).Msg("Failed to get latest cycle")
		ws.writeErrorResponse(w, http.StatusNotFound, "No cycles found")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, cycles[0])
}

// handleGetParameters returns current protocol parameters
func (ws *WebServer) handleGetParameters(w http.ResponseWriter, r *http.Request) {
	params, err := state.LoadActiveProtocolParameters(ws.configName)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get protocol parameters")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve protocol parameters")
		return
	}

	response := map[string]interface{}{
		"parameters": params,
		"timestamp":  time.Now().UTC(),
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetSummary returns protocol summary statistics
func (ws *WebServer) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := state.GetProtocolSummary()
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get protocol summary")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve protocol summary")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, summary)
}

// handleGetPerformanceMetrics returns performance metrics
func (ws *WebServer) handleGetPerformanceMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := state.GetPerformanceMetrics()
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get performance metrics")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve performance metrics")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, metrics)
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", duration).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
