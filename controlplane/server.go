package controlplane

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"aster-vault-bot/metrics"
	"aster-vault-bot/strategy"
	"aster-vault-bot/util"
)

// minFieldLength is the shortest accepted wallet, API key or secret.
const minFieldLength = 10

// ServerOptions configures the HTTP surface.
type ServerOptions struct {
	CORSOrigins []string
	Metrics     bool
}

// Server handles the control-plane REST API.
type Server struct {
	supervisor *Supervisor
	store      CredentialStore
	router     *mux.Router
	options    ServerOptions
	logger     *zap.Logger
}

// NewServer creates a new API server
func NewServer(supervisor *Supervisor, store CredentialStore, opts ServerOptions, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		supervisor: supervisor,
		store:      store,
		router:     mux.NewRouter(),
		options:    opts,
		logger:     logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/register", s.handleRegister).Methods("POST")
	s.router.HandleFunc("/start_strategy", s.handleStartStrategy).Methods("POST")
	s.router.HandleFunc("/stop_strategy", s.handleStopStrategy).Methods("POST")
	s.router.HandleFunc("/withdraw", s.handleWithdraw).Methods("POST")
	s.router.HandleFunc("/status/{wallet}", s.handleStatus).Methods("GET")
	s.router.HandleFunc("/status", s.handleAllStatuses).Methods("GET")
	s.router.HandleFunc("/check_user/{wallet}", s.handleCheckUser).Methods("GET")

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	if s.options.Metrics {
		s.router.Handle("/metrics", metrics.Handler()).Methods("GET")
	}
}

// Handler returns the router wrapped with CORS.
func (s *Server) Handler() http.Handler {
	origins := s.options.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler(s.router)
}

// ==============================
// Request types
// ==============================

type registerRequest struct {
	WalletAddress string `json:"wallet_address"`
	APIKey        string `json:"api_key"`
	SecretKey     string `json:"secret_key"`
}

type startRequest struct {
	WalletAddress string          `json:"wallet_address"`
	StrategyName  string          `json:"strategy_name"`
	Symbol        string          `json:"symbol"`
	USDTAmount    json.RawMessage `json:"usdt_amount"`
	Iterations    *int            `json:"iterations,omitempty"`
}

type walletRequest struct {
	WalletAddress string `json:"wallet_address"`
}

// ==============================
// Handlers
// ==============================

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body", nil)
		return
	}
	if req.WalletAddress == "" || req.APIKey == "" || req.SecretKey == "" {
		respondError(w, http.StatusBadRequest, "Missing wallet_address, api_key, or secret_key", nil)
		return
	}
	if len(req.WalletAddress) < minFieldLength || !common.IsHexAddress(req.WalletAddress) {
		respondError(w, http.StatusBadRequest, "Invalid wallet_address format", nil)
		return
	}
	if len(req.APIKey) < minFieldLength {
		respondError(w, http.StatusBadRequest, "Invalid api_key format", nil)
		return
	}
	if len(req.SecretKey) < minFieldLength {
		respondError(w, http.StatusBadRequest, "Invalid secret_key format", nil)
		return
	}

	wallet := normalizeWallet(req.WalletAddress)
	s.logger.Info("Registering keys",
		zap.String("wallet", wallet),
		zap.String("api_key", util.RedactKey(req.APIKey)))

	err := s.store.SaveCredentials(Credentials{
		Wallet:    wallet,
		APIKey:    req.APIKey,
		SecretKey: req.SecretKey,
	})
	if err != nil {
		s.logger.Error("Failed to save API keys", zap.String("wallet", wallet), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to save API keys to storage.", nil)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"message":        "API keys registered successfully.",
		"wallet_address": wallet,
	})
}

func (s *Server) handleStartStrategy(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body", nil)
		return
	}
	if req.WalletAddress == "" || req.StrategyName == "" || req.Symbol == "" || len(req.USDTAmount) == 0 {
		respondError(w, http.StatusBadRequest,
			"Missing one or more required fields: [wallet_address strategy_name symbol usdt_amount]", nil)
		return
	}

	amount, err := parseAmount(req.USDTAmount)
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("Invalid usdt_amount: %v. Must be a positive number.", err), nil)
		return
	}

	typ, err := strategy.ParseType(req.StrategyName)
	if err != nil {
		respondError(w, http.StatusBadRequest,
			fmt.Sprintf("Invalid strategy_name: '%s'. Available: %v", req.StrategyName, strategy.Types()), nil)
		return
	}

	iterations := 0
	if req.Iterations != nil {
		if *req.Iterations < 1 {
			respondError(w, http.StatusBadRequest, "Invalid iterations: must be >= 1", nil)
			return
		}
		iterations = *req.Iterations
	}

	wallet := normalizeWallet(req.WalletAddress)
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))

	inst, err := s.supervisor.Start(r.Context(), StartRequest{
		Wallet:     wallet,
		Strategy:   typ,
		Symbol:     symbol,
		Budget:     amount,
		Iterations: iterations,
	})
	switch {
	case errors.Is(err, ErrAlreadyRunning):
		respondError(w, http.StatusConflict, err.Error(), nil)
		return
	case errors.Is(err, ErrNotRegistered):
		respondError(w, http.StatusNotFound, "Wallet address not registered.", nil)
		return
	case err != nil:
		s.logger.Error("Failed to start strategy", zap.String("wallet", wallet), zap.Error(err))
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to start strategy: %v", err), nil)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]any{
		"message": fmt.Sprintf("Strategy '%s' initiated successfully for %s on %s with %s USDT.",
			typ, wallet, symbol, amount),
		"status":      "starting",
		"pid":         inst.PID(),
		"instance_id": inst.ID.String(),
	})
}

func (s *Server) handleStopStrategy(w http.ResponseWriter, r *http.Request) {
	wallet, ok := decodeWallet(w, r)
	if !ok {
		return
	}
	s.logger.Info("Received stop request", zap.String("wallet", wallet), zap.Bool("cancel_orders", false))

	result := s.supervisor.Stop(r.Context(), wallet, false)
	if result.Success {
		respondJSON(w, http.StatusOK, map[string]any{
			"message":            result.Message,
			"status":             "stopped",
			"termination_status": result.TerminationStatus,
		})
		return
	}

	status := http.StatusInternalServerError
	if result.NotRunning {
		status = http.StatusNotFound
	}
	respondError(w, status, result.Message, map[string]any{
		"status":             "error_stopping",
		"termination_status": result.TerminationStatus,
	})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	wallet, ok := decodeWallet(w, r)
	if !ok {
		return
	}
	s.logger.Info("Received withdraw request", zap.String("wallet", wallet), zap.Bool("cancel_orders", true))

	result := s.supervisor.Stop(r.Context(), wallet, true)
	if result.Success {
		respondJSON(w, http.StatusOK, map[string]any{
			"message":             result.Message,
			"status":              "stopped",
			"cancellation_status": result.CancelStatus,
			"termination_status":  result.TerminationStatus,
		})
		return
	}

	status, label := withdrawFailure(result)
	respondError(w, status, result.Message, map[string]any{
		"status":              label,
		"cancellation_status": result.CancelStatus,
		"termination_status":  result.TerminationStatus,
	})
}

// withdrawFailure maps a failed withdraw to an HTTP status and label.
func withdrawFailure(result StopResult) (int, string) {
	switch {
	case result.NotRunning:
		return http.StatusNotFound, "stopped"
	case result.CancelStatus == CancelNoKeys || result.CancelStatus == CancelNoCanceller:
		return http.StatusBadRequest, "error_cancelling_setup"
	case result.CancelStatus == CancelTimeout || result.CancelStatus == CancelExecutionError ||
		strings.HasPrefix(result.CancelStatus, cancelScriptError):
		return http.StatusInternalServerError, "error_cancelling_execution"
	case result.TerminationStatus == TerminationUnkillable:
		return http.StatusInternalServerError, "error_terminating_process"
	default:
		return http.StatusInternalServerError, "error_stopping_or_cancelling"
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	wallet := normalizeWallet(mux.Vars(r)["wallet"])
	respondJSON(w, http.StatusOK, s.supervisor.Status(wallet))
}

func (s *Server) handleAllStatuses(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.supervisor.Statuses()
	if err != nil {
		s.logger.Warn("Failed to list registered wallets", zap.Error(err))
	}
	respondJSON(w, http.StatusOK, statuses)
}

func (s *Server) handleCheckUser(w http.ResponseWriter, r *http.Request) {
	wallet := normalizeWallet(mux.Vars(r)["wallet"])

	exists, err := s.store.Exists(wallet)
	if err != nil {
		s.logger.Warn("Failed to check wallet", zap.String("wallet", wallet), zap.Error(err))
	}

	message := "Wallet address is not registered."
	if exists {
		message = "Wallet address is registered."
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"wallet_address": wallet,
		"exists":         exists,
		"message":        message,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ==============================
// Helpers
// ==============================

// normalizeWallet returns the EIP-55 checksum form of hex addresses and the
// trimmed input otherwise.
func normalizeWallet(s string) string {
	s = strings.TrimSpace(s)
	if common.IsHexAddress(s) {
		return common.HexToAddress(s).Hex()
	}
	return s
}

func decodeWallet(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req walletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.WalletAddress == "" {
		respondError(w, http.StatusBadRequest, "Missing wallet_address", nil)
		return "", false
	}
	return normalizeWallet(req.WalletAddress), true
}

// parseAmount accepts a JSON number or numeric string.
func parseAmount(raw json.RawMessage) (decimal.Decimal, error) {
	text := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	amount, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%q is not a number", text)
	}
	if !amount.IsPositive() {
		return decimal.Zero, errors.New("usdt_amount must be positive")
	}
	return amount, nil
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, extra map[string]any) {
	body := map[string]any{"error": message}
	for k, v := range extra {
		body[k] = v
	}
	respondJSON(w, status, body)
}
