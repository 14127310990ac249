package handlers

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HostHandler serves the endpoints protected by the limiter.
type HostHandler struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewHostHandler creates a new host handler.
func NewHostHandler(logger *zap.Logger) *HostHandler {
	return &HostHandler{logger: logger, now: time.Now}
}

func (h *HostHandler) SubmitForm(ctx context.Context, req *SubmitFormRequest) (*SubmitFormResponse, error) {
	meta := RequestMetaFromContext(ctx)

	resp := &SubmitFormResponse{}
	resp.Body.ID = uuid.NewString()
	resp.Body.ClientKey = string(meta.ClientKey)
	resp.Body.ReceivedAt = h.now()

	h.logger.Info("form submitted",
		zap.String("id", resp.Body.ID),
		zap.String("client_key", resp.Body.ClientKey),
		zap.Int("message_length", len(req.Body.Message)),
	)

	return resp, nil
}

func (h *HostHandler) RunTask(ctx context.Context, req *RunTaskRequest) (*RunTaskResponse, error) {
	meta := RequestMetaFromContext(ctx)

	resp := &RunTaskResponse{}
	resp.Body.ID = uuid.NewString()
	resp.Body.Task = req.Body.Task
	resp.Body.ClientKey = string(meta.ClientKey)
	resp.Body.AcceptedAt = h.now()

	h.logger.Info("task accepted",
		zap.String("id", resp.Body.ID),
		zap.String("task", req.Body.Task),
		zap.String("client_key", resp.Body.ClientKey),
	)

	return resp, nil
}
