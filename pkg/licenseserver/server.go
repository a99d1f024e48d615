// Package licenseserver implements the license and entitlement HTTP service.
package licenseserver

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/menta2k/circle-snip/pkg/license"
)

// maxBodyBytes bounds request bodies, including webhooks
const maxBodyBytes = 1 << 20

// Config configures the service
type Config struct {
	WebhookSecret string
	Tolerance     time.Duration
	Checkout      CheckoutProvider
	Logger        *slog.Logger
}

// Server serves /verify, /create-checkout, /webhook and /health
type Server struct {
	store     *Store
	checkout  CheckoutProvider
	secret    string
	tolerance time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// New creates the service around a store
func New(store *Store, cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = DefaultTolerance
	}
	return &Server{
		store:     store,
		checkout:  cfg.Checkout,
		secret:    cfg.WebhookSecret,
		tolerance: cfg.Tolerance,
		logger:    cfg.Logger,
		now:       time.Now,
	}
}

// Routes returns the HTTP handler
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors)

	r.Get("/health", s.handleHealth)
	r.Get("/verify/{clientId}", s.handleVerify)
	r.Post("/create-checkout", s.handleCreateCheckout)
	r.Post("/webhook", s.handleWebhook)
	return r
}

// cors allows any origin for GET and POST
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Accept")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.Count(r.Context())
	if err != nil {
		s.logger.Error("health", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "licenses": n})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientId")
	l, err := s.store.Get(r.Context(), clientID)
	if err != nil {
		s.logger.Error("verify", "client_id", clientID, "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, Evaluate(l, s.now()))
}

// checkoutBody accepts extensionId as an alias of clientId
type checkoutBody struct {
	license.CheckoutRequest
	ExtensionID string `json:"extensionId"`
}

func (s *Server) handleCreateCheckout(w http.ResponseWriter, r *http.Request) {
	var body checkoutBody
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid JSON body"))
		return
	}
	req := body.CheckoutRequest
	if req.ClientID == "" {
		req.ClientID = body.ExtensionID
	}
	if req.ClientID == "" {
		writeError(w, http.StatusBadRequest, errors.New("Client ID required"))
		return
	}
	if req.SuccessURL == "" {
		req.SuccessURL = DefaultSuccessURL
	}
	if req.CancelURL == "" {
		req.CancelURL = DefaultCancelURL
	}
	if s.checkout == nil {
		writeError(w, http.StatusInternalServerError, errors.New("checkout is not configured"))
		return
	}

	url, err := s.checkout.CreateSession(r.Context(), req)
	if err != nil {
		s.logger.Error("checkout", "client_id", req.ClientID, "price_type", req.PriceType, "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, license.CheckoutResponse{URL: url})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if s.secret == "" {
		writeError(w, http.StatusServiceUnavailable, errors.New("webhook secret not configured"))
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("read body failed"))
		return
	}

	if err := VerifySignature(payload, r.Header.Get(SignatureHeader), s.secret, s.tolerance, s.now()); err != nil {
		s.logger.Warn("webhook signature verification failed", "error", err)
		http.Error(w, "Webhook Error: "+err.Error(), http.StatusBadRequest)
		return
	}

	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		http.Error(w, "Webhook Error: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.HandleEvent(r.Context(), ev); err != nil {
		s.logger.Error("webhook", "type", ev.Type, "id", ev.ID, "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
