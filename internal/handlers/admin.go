package handlers

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/serroba/ipguard/internal/ratelimit"
	"go.uber.org/zap"
)

// Operator is the limiter surface exposed to operators.
type Operator interface {
	GetStats(ctx context.Context) (ratelimit.Stats, error)
	ListBlocked(ctx context.Context) (map[ratelimit.ClientKey]time.Time, error)
	Unblock(ctx context.Context, key ratelimit.ClientKey) error
	Violations(ctx context.Context, key ratelimit.ClientKey) (int64, error)
	ResetClient(ctx context.Context, key ratelimit.ClientKey) error
	PruneAll(ctx context.Context, class ratelimit.Class) (int, error)
	Reconfigure(cfg ratelimit.Config) error
	Config() ratelimit.Config
}

// AdminHandler serves the operator API.
type AdminHandler struct {
	limiter Operator
	logger  *zap.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(limiter Operator, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{limiter: limiter, logger: logger}
}

func (h *AdminHandler) Stats(ctx context.Context, _ *struct{}) (*StatsResponse, error) {
	stats, err := h.limiter.GetStats(ctx)
	if err != nil {
		return nil, h.internalError("failed to read stats", err)
	}

	blocked, err := h.limiter.ListBlocked(ctx)
	if err != nil {
		return nil, h.internalError("failed to list blocked clients", err)
	}

	resp := &StatsResponse{}
	resp.Body.Windows = make(map[string]map[string]int, len(stats.Windows))
	resp.Body.Blocked = len(blocked)

	for class, sizes := range stats.Windows {
		clients := make(map[string]int, len(sizes))
		for key, size := range sizes {
			clients[string(key)] = size
		}

		resp.Body.Windows[string(class)] = clients
	}

	return resp, nil
}

func (h *AdminHandler) ListBlocked(ctx context.Context, _ *struct{}) (*BlockedResponse, error) {
	blocked, err := h.limiter.ListBlocked(ctx)
	if err != nil {
		return nil, h.internalError("failed to list blocked clients", err)
	}

	resp := &BlockedResponse{}
	resp.Body.Clients = make([]BlockedClient, 0, len(blocked))

	for _, key := range slices.Sorted(maps.Keys(blocked)) {
		resp.Body.Clients = append(resp.Body.Clients, BlockedClient{
			Key:       string(key),
			BlockedAt: blocked[key],
		})
	}

	return resp, nil
}

func (h *AdminHandler) Unblock(ctx context.Context, req *ClientKeyRequest) (*struct{}, error) {
	key := ratelimit.ClientKey(req.Key)

	blocked, err := h.limiter.ListBlocked(ctx)
	if err != nil {
		return nil, h.internalError("failed to list blocked clients", err)
	}

	if _, ok := blocked[key]; !ok {
		return nil, huma.Error404NotFound("client is not blocked")
	}

	if err := h.limiter.Unblock(ctx, key); err != nil {
		return nil, h.internalError("failed to unblock client", err)
	}

	return &struct{}{}, nil
}

func (h *AdminHandler) GetClient(ctx context.Context, req *ClientKeyRequest) (*ClientResponse, error) {
	key := ratelimit.ClientKey(req.Key)

	violations, err := h.limiter.Violations(ctx, key)
	if err != nil {
		return nil, h.internalError("failed to read violations", err)
	}

	blocked, err := h.limiter.ListBlocked(ctx)
	if err != nil {
		return nil, h.internalError("failed to list blocked clients", err)
	}

	stats, err := h.limiter.GetStats(ctx)
	if err != nil {
		return nil, h.internalError("failed to read stats", err)
	}

	resp := &ClientResponse{}
	resp.Body.Key = req.Key
	resp.Body.Violations = violations
	resp.Body.Windows = make(map[string]int, len(stats.Windows))

	if at, ok := blocked[key]; ok {
		resp.Body.Blocked = true
		resp.Body.BlockedAt = &at
	}

	for class, sizes := range stats.Windows {
		resp.Body.Windows[string(class)] = sizes[key]
	}

	return resp, nil
}

func (h *AdminHandler) ResetClient(ctx context.Context, req *ClientKeyRequest) (*struct{}, error) {
	err := h.limiter.ResetClient(ctx, ratelimit.ClientKey(req.Key))
	if err == nil {
		return &struct{}{}, nil
	}

	var resetErr *ratelimit.ResetError
	if errors.As(err, &resetErr) {
		h.logger.Error("client reset incomplete",
			zap.String("client_key", req.Key),
			zap.Strings("failed_stores", resetErr.Stores()),
			zap.Error(err),
		)

		return nil, huma.Error500InternalServerError(
			"reset incomplete, failed stores: " + strings.Join(resetErr.Stores(), ", "),
		)
	}

	return nil, h.internalError("failed to reset client", err)
}

func (h *AdminHandler) GetConfig(_ context.Context, _ *struct{}) (*ConfigResponse, error) {
	return &ConfigResponse{Body: configBody(h.limiter.Config())}, nil
}

func (h *AdminHandler) UpdateConfig(_ context.Context, req *UpdateConfigRequest) (*ConfigResponse, error) {
	cfg, err := req.Body.config()
	if err == nil {
		err = h.limiter.Reconfigure(cfg)
	}

	if err != nil {
		if errors.Is(err, ratelimit.ErrInvalidConfig) {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}

		return nil, h.internalError("failed to update config", err)
	}

	return &ConfigResponse{Body: configBody(h.limiter.Config())}, nil
}

func (h *AdminHandler) Prune(ctx context.Context, _ *struct{}) (*PruneResponse, error) {
	resp := &PruneResponse{}
	resp.Body.Pruned = make(map[string]int, len(ratelimit.Classes()))

	for _, class := range ratelimit.Classes() {
		n, err := h.limiter.PruneAll(ctx, class)
		if err != nil {
			return nil, h.internalError("failed to prune windows", err)
		}

		resp.Body.Pruned[string(class)] = n
	}

	return resp, nil
}

func (h *AdminHandler) internalError(msg string, err error) error {
	h.logger.Error(msg, zap.Error(err))

	return huma.Error500InternalServerError(msg)
}

func (b ConfigBody) config() (ratelimit.Config, error) {
	standardWindow, err := ratelimit.Seconds(b.StandardWindowSeconds)
	if err != nil {
		return ratelimit.Config{}, fmt.Errorf("standard window: %w", err)
	}

	scheduledWindow, err := ratelimit.Seconds(b.ScheduledWindowSeconds)
	if err != nil {
		return ratelimit.Config{}, fmt.Errorf("scheduled window: %w", err)
	}

	blockTTL, err := ratelimit.Seconds(b.BlockTTLSeconds)
	if err != nil {
		return ratelimit.Config{}, fmt.Errorf("block ttl: %w", err)
	}

	cfg := ratelimit.Config{
		StandardWindow:          standardWindow,
		StandardMaxRequests:     b.StandardMaxRequests,
		ScheduledWindow:         scheduledWindow,
		ScheduledMaxRequests:    b.ScheduledMaxRequests,
		EscalationStrikeLimit:   b.EscalationStrikeLimit,
		AllowListExemptStandard: b.AllowListExemptStandard,
		BlockTTL:                blockTTL,
	}

	for _, key := range b.AllowList {
		cfg.AllowList = append(cfg.AllowList, ratelimit.ClientKey(key))
	}

	return cfg, nil
}

func configBody(cfg ratelimit.Config) ConfigBody {
	body := ConfigBody{
		StandardWindowSeconds:   int64(cfg.StandardWindow / time.Second),
		StandardMaxRequests:     cfg.StandardMaxRequests,
		ScheduledWindowSeconds:  int64(cfg.ScheduledWindow / time.Second),
		ScheduledMaxRequests:    cfg.ScheduledMaxRequests,
		EscalationStrikeLimit:   cfg.EscalationStrikeLimit,
		AllowList:               make([]string, 0, len(cfg.AllowList)),
		AllowListExemptStandard: cfg.AllowListExemptStandard,
		BlockTTLSeconds:         int64(cfg.BlockTTL / time.Second),
	}

	for _, key := range cfg.AllowList {
		body.AllowList = append(body.AllowList, string(key))
	}

	return body
}

var _ Operator = (*ratelimit.RateLimiter)(nil)
