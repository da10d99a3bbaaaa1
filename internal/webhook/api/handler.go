package api

import (
	"fmt"
	"io"
	"net/http"

	"github.com/forfit/storefront/internal/logger"
	"github.com/forfit/storefront/internal/utils"
	"github.com/forfit/storefront/internal/webhook"
)

const signatureHeader = "X-Abacate-Signature"

type Handler struct {
	Reconciler *webhook.Reconciler
	Logger     *logger.Logger
}

func NewHandler(reconciler *webhook.Reconciler, log *logger.Logger) *Handler {
	return &Handler{Reconciler: reconciler, Logger: log}
}

// AbacatePay handles POST /webhooks/abacatepay. The body is read raw and
// handed to the reconciler untouched; signature verification needs the exact
// bytes the provider signed.
func (h *Handler) AbacatePay(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		h.Logger.Error("WEBHOOK", fmt.Sprintf("failed to read body: %v", err))
		utils.WriteJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_body"})
		return
	}

	if whErr := h.Reconciler.Process(r.Context(), raw, r.Header.Get(signatureHeader)); whErr != nil {
		h.Logger.Error("WEBHOOK", fmt.Sprintf("category=%s status=%d: %s", whErr.Category, whErr.StatusCode, whErr.InternalError))
		utils.WriteJSON(w, whErr.StatusCode, map[string]any{"error": whErr.PublicError})
		return
	}

	// Recognized-but-irrelevant events ack 200 as well, so the provider never
	// builds a retry storm out of no-ops.
	utils.WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
}
