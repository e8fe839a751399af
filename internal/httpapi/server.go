package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/digkill/clientdesk/internal/config"
	"github.com/digkill/clientdesk/internal/service"
)

const maxBodyBytes = 1 << 20

// PayloadArchiver stores raw webhook bodies. *storage.Archiver satisfies it.
type PayloadArchiver interface {
	ArchivePayment(ctx context.Context, paymentID string, payload []byte) (string, error)
}

// Services bundles the engine operations exposed over HTTP.
type Services struct {
	Clients       *service.ClientService
	Assistants    *service.AssistantService
	Assignments   *service.AssignmentService
	Payments      *service.PaymentService
	Conversations *service.ConversationService
}

type Server struct {
	addr          string
	username      string
	password      string
	webhookSecret string
	log           *slog.Logger
	svc           Services
	archiver      PayloadArchiver
	router        *chi.Mux
}

// NewServer wires the public intake routes, the payment webhook, the basic-auth
// admin routes and /metrics. archiver and gatherer may be nil.
func NewServer(cfg config.Config, log *slog.Logger, svc Services, archiver PayloadArchiver, gatherer prometheus.Gatherer) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	s := &Server{
		addr:          cfg.HTTPListenAddr,
		username:      cfg.AdminUsername,
		password:      cfg.AdminPassword,
		webhookSecret: cfg.WebhookSecret,
		log:           log,
		svc:           svc,
		archiver:      archiver,
		router:        r,
	}

	r.Post("/webhook/payments", s.handlePaymentWebhook)
	r.Post("/clients", s.handleRegisterClient)
	r.Get("/clients/{id}/conversations", s.handleListClientConversations)
	r.Get("/clients/{id}/payments", s.handleListClientPayments)
	r.Post("/payments", s.handleCreatePayment)
	r.Post("/subscriptions", s.handleActivateSubscription)
	r.Route("/conversations", func(r chi.Router) {
		r.Post("/", s.handleGetOrCreateConversation)
		r.Get("/{id}", s.handleGetConversation)
		r.Post("/{id}/messages", s.handleAppendMessage)
	})
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/admin", func(admin chi.Router) {
		admin.Use(s.basicAuthMiddleware())
		admin.Get("/payments", s.handleListPayments)
		admin.Post("/payments/{id}/cancel", s.handleCancelPayment)
		admin.Post("/payments/{id}/processing", s.handleMarkProcessing)
		admin.Get("/assistants", s.handleRoster)
		admin.Post("/assistants", s.handleRegisterAssistant)
		admin.Get("/assistants/{id}/conversations", s.handleListAssistantConversations)
		admin.Post("/assignments", s.handleAssign)
	})
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("http shutdown error", "err", err)
		}
	}()

	s.log.Info("http server listening", "addr", s.addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http listen: %w", err)
	}
	return nil
}

func (s *Server) basicAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || !secureEqual(user, s.username) || !secureEqual(pass, s.password) {
				w.Header().Set("WWW-Authenticate", `Basic realm="clientdesk"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func secureEqual(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

// fail maps an engine error onto a status code. Storage failures are logged
// and hidden from the caller.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		s.log.Error("request failed", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "err", err)
		s.writeError(w, status, http.StatusText(status))
		return
	}
	s.writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrAlreadyProcessed):
		return http.StatusOK
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	case service.IsTimeout(err):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
