package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/digkill/clientdesk/internal/models"
	"github.com/digkill/clientdesk/internal/service"
)

type paymentEvent struct {
	PaymentID string `json:"paymentId"`
	Status    string `json:"status"`
}

// handlePaymentWebhook receives the gateway's terminal status for a payment.
// Replays answer 200 so the gateway stops retrying.
func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	if s.webhookSecret != "" && !secureEqual(r.Header.Get("X-Webhook-Secret"), s.webhookSecret) {
		s.writeError(w, http.StatusUnauthorized, "invalid webhook secret")
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "read body error")
		return
	}
	var event paymentEvent
	if err := json.Unmarshal(body, &event); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	// Only well-formed events reach the archive.
	event.PaymentID = strings.TrimSpace(event.PaymentID)
	if event.PaymentID == "" {
		s.writeError(w, http.StatusBadRequest, "paymentId is required")
		return
	}
	if status, ok := models.ParsePaymentStatus(event.Status); !ok || !status.IsTerminal() {
		s.writeError(w, http.StatusBadRequest, "status must be completed or failed")
		return
	}

	if s.archiver != nil {
		if key, err := s.archiver.ArchivePayment(r.Context(), event.PaymentID, body); err != nil {
			s.log.Warn("archive payment webhook", "payment_id", event.PaymentID, "err", err)
		} else {
			s.log.Debug("payment webhook archived", "payment_id", event.PaymentID, "key", key)
		}
	}

	result, err := s.svc.Payments.Reconcile(r.Context(), event.PaymentID, event.Status)
	if errors.Is(err, service.ErrAlreadyProcessed) {
		s.writeJSON(w, http.StatusOK, map[string]string{"result": "already_processed"})
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

type registerRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (req registerRequest) input() service.RegisterInput {
	return service.RegisterInput{Email: req.Email, FirstName: req.FirstName, LastName: req.LastName}
}

func (s *Server) handleRegisterClient(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !s.decode(w, r, &req) {
		return
	}
	client, err := s.svc.Clients.Register(r.Context(), req.input())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, client)
}

type createPaymentRequest struct {
	ClientID string `json:"client_id"`
	PlanName string `json:"plan_name"`
	Amount   int64  `json:"amount"`
}

func (s *Server) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if !s.decode(w, r, &req) {
		return
	}
	payment, reused, err := s.svc.Payments.CreatePayment(r.Context(), service.CreatePaymentInput{
		ClientID: req.ClientID,
		PlanName: req.PlanName,
		Amount:   req.Amount,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	status := http.StatusCreated
	if reused {
		status = http.StatusOK
	}
	s.writeJSON(w, status, payment)
}

type subscriptionRequest struct {
	ClientID string `json:"client_id"`
	PlanName string `json:"plan_name"`
}

func (s *Server) handleActivateSubscription(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRequest
	if !s.decode(w, r, &req) {
		return
	}
	result, err := s.svc.Assignments.ActivateSubscription(r.Context(), req.ClientID, req.PlanName)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

type conversationRequest struct {
	ClientID    string `json:"client_id"`
	AssistantID string `json:"assistant_id"`
}

func (s *Server) handleGetOrCreateConversation(w http.ResponseWriter, r *http.Request) {
	var req conversationRequest
	if !s.decode(w, r, &req) {
		return
	}
	conv, created, err := s.svc.Conversations.GetOrCreate(r.Context(), req.ClientID, req.AssistantID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	s.writeJSON(w, status, conv)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.svc.Conversations.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, conv)
}

type messageRequest struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

func (s *Server) handleAppendMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if !s.decode(w, r, &req) {
		return
	}
	msg, err := s.svc.Conversations.AppendMessage(r.Context(), chi.URLParam(r, "id"), req.Role, req.Text)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) handleListClientConversations(w http.ResponseWriter, r *http.Request) {
	conversations, err := s.svc.Conversations.ListForClient(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, conversations)
}

func (s *Server) handleListClientPayments(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "id")
	if _, err := s.svc.Clients.Get(r.Context(), clientID); err != nil {
		s.fail(w, r, err)
		return
	}
	payments, err := s.svc.Payments.ListByClient(r.Context(), clientID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, payments)
}

func (s *Server) handleListPayments(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	payments, err := s.svc.Payments.List(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, payments)
}

func (s *Server) handleCancelPayment(w http.ResponseWriter, r *http.Request) {
	payment, err := s.svc.Payments.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, payment)
}

func (s *Server) handleMarkProcessing(w http.ResponseWriter, r *http.Request) {
	payment, err := s.svc.Payments.MarkProcessing(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, payment)
}

func (s *Server) handleRoster(w http.ResponseWriter, r *http.Request) {
	roster, err := s.svc.Assistants.Roster(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, roster)
}

func (s *Server) handleRegisterAssistant(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !s.decode(w, r, &req) {
		return
	}
	assistant, err := s.svc.Assistants.Register(r.Context(), req.input())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, assistant)
}

func (s *Server) handleListAssistantConversations(w http.ResponseWriter, r *http.Request) {
	conversations, err := s.svc.Conversations.ListForAssistant(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, conversations)
}

type assignRequest struct {
	ClientID    string `json:"client_id"`
	AssistantID string `json:"assistant_id"`
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if !s.decode(w, r, &req) {
		return
	}
	client, err := s.svc.Assignments.Assign(r.Context(), req.ClientID, req.AssistantID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, client)
}
