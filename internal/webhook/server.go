package webhook

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"duck-bot/internal/payments"
)

// Server принимает push-уведомления провайдера и health-check.
// Вебхук сходится с фоновой сверкой на одном и том же переходе
// статуса: повторная доставка и гонка с опросом безопасны.
type Server struct {
	server     *http.Server
	reconciler *payments.Reconciler
}

func NewServer(addr string, reconciler *payments.Reconciler) *Server {
	s := &Server{reconciler: reconciler}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.HandleFunc("/webhook/yookassa", s.handleYooKassa)

	s.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// notification - тело уведомления ЮKassa.
type notification struct {
	Event  string `json:"event"`
	Object struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"object"`
}

func (s *Server) handleYooKassa(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var n notification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		slog.Warn("Malformed webhook payload", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	status := payments.Status(n.Object.Status)
	if !status.IsValid() {
		slog.Warn("Webhook with unknown status", "status", n.Object.Status, "payment", n.Object.ID)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	payment, err := s.reconciler.FindByProviderID(n.Object.ID)
	if err != nil {
		slog.Error("Failed to look up webhook payment", "provider_payment_id", n.Object.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if payment == nil {
		// Неизвестный платёж: отвечаем 200, чтобы провайдер не ретраил вечно
		slog.Warn("Webhook for unknown payment", "provider_payment_id", n.Object.ID)
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := s.reconciler.Apply(r.Context(), payment, status); err != nil {
		// Провайдер повторит доставку, применение идемпотентно
		slog.Error("Failed to apply webhook status", "payment_id", payment.ID, "status", status, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

func (s *Server) Start() error {
	slog.Info("Webhook HTTP сервер запущен", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
