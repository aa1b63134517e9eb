package http

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/utafrali/fibpay/internal/callback"
	apperrors "github.com/utafrali/fibpay/pkg/errors"
	"github.com/utafrali/fibpay/pkg/httputil"
)

// SignatureHeader carries the hex-encoded HMAC-SHA256 of the raw callback body.
const SignatureHeader = "X-FIB-Signature"

// maxCallbackBody bounds the callback payload size.
const maxCallbackBody = 64 << 10

// callbackRequest is the gateway's status callback payload.
type callbackRequest struct {
	PaymentID string `json:"paymentId"`
	Status    string `json:"status"`
}

// WebhookHandler consumes gateway status callbacks. Bodies are authenticated
// with an HMAC signature and deduplicated through a replay guard before any
// state is touched.
type WebhookHandler struct {
	svc    PaymentService
	secret []byte
	guard  *callback.ReplayGuard
	logger *slog.Logger
}

// NewWebhookHandler creates the callback handler. An empty secret disables
// signature verification; guard may be nil to disable replay suppression.
func NewWebhookHandler(svc PaymentService, secret string, guard *callback.ReplayGuard, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		svc:    svc,
		secret: []byte(secret),
		guard:  guard,
		logger: logger,
	}
}

// HandleCallback handles POST /api/v1/payments/callback.
func (h *WebhookHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
	if err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput("unreadable request body"), h.logger)
		return
	}

	if len(h.secret) > 0 && !h.verifySignature(body, r.Header.Get(SignatureHeader)) {
		h.logger.WarnContext(r.Context(), "callback signature mismatch",
			slog.String("remote_addr", r.RemoteAddr),
		)
		httputil.WriteError(w, r, apperrors.Unauthorized("invalid callback signature"), h.logger)
		return
	}

	var req callbackRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput("invalid JSON body"), h.logger)
		return
	}
	if req.PaymentID == "" || req.Status == "" {
		httputil.WriteError(w, r, apperrors.InvalidInput("paymentId and status are required"), h.logger)
		return
	}

	if h.guard != nil && !h.guard.FirstSeen(r.Context(), req.PaymentID, req.Status) {
		h.logger.InfoContext(r.Context(), "duplicate callback acknowledged",
			slog.String("fib_payment_id", req.PaymentID),
			slog.String("status", req.Status),
		)
		httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]string{"result": "duplicate"}})
		return
	}

	payment, err := h.svc.HandleCallback(r.Context(), req.PaymentID, req.Status)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: payment})
}

// verifySignature checks the hex HMAC-SHA256 of body against the header value
// in constant time.
func (h *WebhookHandler) verifySignature(body []byte, header string) bool {
	if header == "" {
		return false
	}

	provided, err := hex.DecodeString(header)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, h.secret)
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), provided)
}
