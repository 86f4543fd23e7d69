package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"formintake/config"
	"formintake/core/ingest"
	"formintake/core/utils"
)

const (
	errorCodeBodyTooLarge = "intake.validation.body_too_large"
	errorCodeBodyRead     = "intake.validation.body_unreadable"
	errorCodeInternal     = "intake.internal"
)

type IntakeProcessor interface {
	Handle(ctx context.Context, body []byte, signature string) (*ingest.Result, error)
}

type WebhookHandler struct {
	svc     IntakeProcessor
	header  string
	maxBody int64
	logger  *utils.Logger
}

func NewWebhookHandler(cfg config.WebhookConfig, svc IntakeProcessor, logger *utils.Logger) *WebhookHandler {
	header := cfg.SignatureHeader
	if header == "" {
		header = "Typeform-Signature"
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &WebhookHandler{svc: svc, header: header, maxBody: maxBody, logger: logger}
}

// Receive handles one webhook delivery. Response bodies never echo the payload.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusBadRequest, errorCodeBodyTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, errorCodeBodyRead)
		return
	}
	_, err = h.svc.Handle(r.Context(), body, r.Header.Get(h.header))
	if err == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	switch {
	case errors.Is(err, ingest.ErrAuthentication):
		h.logger.Printf("WEBHOOK unauthorized %s", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, ingest.ErrorCodeInvalidSignature)
	case errors.Is(err, ingest.ErrValidation):
		code := errorCodeInternal
		if e, ok := ingest.AsError(err); ok {
			code = e.Code
		}
		writeError(w, http.StatusBadRequest, code)
	default:
		writeError(w, http.StatusInternalServerError, errorCodeInternal)
	}
}
