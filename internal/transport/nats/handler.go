package nats

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/soyHouston256/stream-sales-sub004/internal/apperr"
	"github.com/soyHouston256/stream-sales-sub004/internal/model"
	"github.com/soyHouston256/stream-sales-sub004/internal/service"
)

const queueGroup = "market_group"

// Reply is sent back to request-reply callers of a command subject.
type Reply struct {
	Receipt *model.Receipt `json:"receipt,omitempty"`
	Code    string         `json:"code,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Handler subscribes to NATS command topics and delegates to the market service.
type Handler struct {
	svc    service.MarketService
	nc     *nats.Conn
	subs   []*nats.Subscription
	logger *slog.Logger
}

func NewHandler(svc service.MarketService, nc *nats.Conn, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, nc: nc, logger: logger}
}

// Start subscribes to command topics and blocks until ctx is cancelled (graceful shutdown).
func (h *Handler) Start(ctx context.Context) error {
	sub, err := h.nc.QueueSubscribe(model.TopicPurchaseCommand, queueGroup, func(m *nats.Msg) {
		reply := h.handlePurchase(ctx, m.Data)
		if m.Reply == "" {
			return
		}
		data, err := json.Marshal(reply)
		if err != nil {
			h.logger.Error("nats: failed to encode reply", "error", err)
			return
		}
		if err := m.Respond(data); err != nil {
			h.logger.Error("nats: failed to respond", "error", err)
		}
	})
	if err != nil {
		return err
	}
	h.subs = append(h.subs, sub)

	h.logger.Info("NATS command handler is running", "subject", model.TopicPurchaseCommand, "queue", queueGroup)

	<-ctx.Done()
	h.logger.Info("NATS command handler shutting down, draining subscriptions...")

	for _, s := range h.subs {
		_ = s.Drain()
	}
	return nil
}

func (h *Handler) Stop(ctx context.Context) error {
	for _, s := range h.subs {
		_ = s.Unsubscribe()
	}
	return nil
}

func (h *Handler) handlePurchase(ctx context.Context, data []byte) Reply {
	var req model.PurchaseRequest
	if err := json.Unmarshal(data, &req); err != nil {
		h.logger.Error("nats: failed to unmarshal purchase command", "error", err)
		return Reply{Code: string(apperr.InvalidRequest), Error: "invalid_json"}
	}

	r, err := h.svc.Purchase(ctx, req)
	if err != nil {
		h.logger.Error("nats: purchase failed", "error", err, "buyer_id", req.BuyerID, "key", req.IdempotencyKey)
		return Reply{Code: string(apperr.KindOf(err)), Error: apperr.Message(err)}
	}
	return Reply{Receipt: r}
}
