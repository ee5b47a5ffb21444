package http

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/soyHouston256/stream-sales-sub004/internal/ledger"
	"github.com/soyHouston256/stream-sales-sub004/internal/model"
	"github.com/soyHouston256/stream-sales-sub004/internal/service"
)

type Handler struct {
	svc    service.MarketService
	logger *slog.Logger
}

func NewHandler(svc service.MarketService, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Register(app *fiber.App) {
	app.Use(RequestID(h.logger))
	app.Get("/health", h.Health)

	app.Use(Identity())
	staff := RequireRole(RoleConciliator, RoleAdmin)
	admin := RequireRole(RoleAdmin)
	seller := RequireRole(RoleProvider, RoleAdmin)

	app.Post("/purchase", h.Purchase)
	app.Get("/purchases/:id", h.GetPurchase)

	app.Get("/wallets/me", h.MyWallet)
	app.Get("/wallets/me/transactions", h.MyTransactions)
	app.Get("/wallets/me/balance", h.MyBalance)
	app.Post("/wallets/:id/deposit", admin, h.Deposit)
	app.Post("/wallets/:id/withdraw", admin, h.Withdraw)
	app.Put("/wallets/:id/status", admin, h.SetWalletStatus)
	app.Get("/wallets/:id/reconcile", admin, h.Reconcile)

	app.Post("/disputes", h.OpenDispute)
	app.Get("/disputes/:id", h.GetDispute)
	app.Put("/disputes/:id/review", staff, h.StartReview)
	app.Put("/disputes/:id/resolve", staff, h.ResolveDispute)
	app.Put("/disputes/:id/withdraw", h.WithdrawDispute)
	app.Put("/disputes/:id/close", staff, h.CloseDispute)

	app.Post("/products", seller, h.CreateProduct)
	app.Post("/products/:id/variants", seller, h.AddVariant)
	app.Post("/products/:id/accounts", seller, h.AddAccount)
	app.Post("/products/:id/licenses", seller, h.AddLicense)
	app.Get("/products/:id/stock", h.Stock)
	app.Put("/licenses/:id/revoke", seller, h.RevokeLicense)
	app.Put("/accounts/:id/disable", seller, h.DisableAccount)

	app.Get("/commission", h.GetCommission)
	app.Put("/commission", admin, h.SetCommission)
	app.Put("/affiliates/:id", admin, h.SetAffiliateStatus)
	app.Post("/referrals", h.Refer)
}

func (h *Handler) Health(c *fiber.Ctx) error {
	if err := h.svc.Ping(c.UserContext()); err != nil {
		return respondFail(c, fiber.StatusServiceUnavailable, "UNAVAILABLE", "store unreachable")
	}
	return respond(c, fiber.StatusOK, "OK", nil)
}

func (h *Handler) Purchase(c *fiber.Ctx) error {
	var req struct {
		VariantID uuid.UUID `json:"variantId"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid_json")
	}
	key := c.Get(headerIdemKey)
	if key == "" {
		return badRequest(c, headerIdemKey+" header is required")
	}

	r, err := h.svc.Purchase(c.UserContext(), model.PurchaseRequest{
		BuyerID:        userID(c),
		VariantID:      req.VariantID,
		IdempotencyKey: key,
	})
	if err != nil {
		return respondError(c, err)
	}

	// A replay answers exactly like the original request did.
	return respond(c, fiber.StatusCreated, "purchase completed", fiber.Map{
		"purchaseId": r.Purchase.ID,
		"status":     r.Purchase.Status,
		"amount":     r.Purchase.Amount,
		"newBalance": r.NewBalance,
		"unit":       r.Purchase.Unit,
		"replayed":   r.Replayed,
	})
}

func (h *Handler) GetPurchase(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid purchase id")
	}
	viewer := userID(c)
	if isStaff(c) {
		viewer = uuid.Nil
	}
	p, err := h.svc.GetPurchase(c.UserContext(), id, viewer)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, fiber.StatusOK, "", p)
}

func (h *Handler) MyWallet(c *fiber.Ctx) error {
	w, err := h.svc.OpenWallet(c.UserContext(), userID(c))
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, fiber.StatusOK, "", w)
}

func (h *Handler) MyBalance(c *fiber.Ctx) error {
	w, err := h.svc.OpenWallet(c.UserContext(), userID(c))
	if err != nil {
		return respondError(c, err)
	}
	b, err := h.svc.Balance(c.UserContext(), w.ID)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, fiber.StatusOK, "", fiber.Map{"walletId": w.ID, "balance": b, "currency": w.Currency})
}

func (h *Handler) MyTransactions(c *fiber.Ctx) error {
	w, err := h.svc.OpenWallet(c.UserContext(), userID(c))
	if err != nil {
		return respondError(c, err)
	}
	history, err := h.svc.History(c.UserContext(), w.ID, c.QueryInt("limit", 50), c.QueryInt("offset", 0))
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, fiber.StatusOK, "", fiber.Map{"wallet": w, "transactions": history})
}

type amountBody struct {
	Amount decimal.Decimal `json:"amount"`
}

func (h *Handler) Deposit(c *fiber.Ctx) error {
	return h.external(c, h.svc.Deposit, "deposit recorded")
}

func (h *Handler) Withdraw(c *fiber.Ctx) error {
	return h.external(c, h.svc.Withdraw, "withdrawal recorded")
}

func (h *Handler) external(c *fiber.Ctx, post func(context.Context, model.DepositRequest) (*ledger.Posting, error), message string) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid wallet id")
	}
	var body amountBody
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "invalid_json")
	}
	key := c.Get(headerIdemKey)
	if key == "" {
		return badRequest(c, headerIdemKey+" header is required")
	}

	p, err := post(c.UserContext(), model.DepositRequest{WalletID: id, Amount: body.Amount, IdempotencyKey: key})
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, fiber.StatusOK, message, p)
}

func (h *Handler) SetWalletStatus(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid wallet id")
	}
	var body struct {
		Status model.WalletStatus `json:"status"`
	}
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "invalid_json")
	}
	w, err := h.svc.SetWalletStatus(c.UserContext(), id, body.Status)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, fiber.StatusOK, "wallet updated", w)
}

func (h *Handler) Reconcile(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid wallet id")
	}
	r, err := h.svc.Reconcile(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, fiber.StatusOK, "", r)
}

func (h *Handler) OpenDispute(c *fiber.Ctx) error {
	var body struct {
		PurchaseID uuid.UUID `json:"purchaseId"`
		Reason     string    `json:"reason"`
	}
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "invalid_json")
	}
	d, err := h.svc.OpenDispute(c.UserContext(), model.OpenDisputeRequest{
		PurchaseID: body.PurchaseID,
		BuyerID:    userID(c),
		Reason:     body.Reason,
	})
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, fiber.StatusCreated, "dispute opened", d)
}

func (h *Handler) GetDispute(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid dispute id")
	}
	d, err := h.svc.GetDispute(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	if !isStaff(c) && d.OpenedBy != userID(c) {
		return respondFail(c, fiber.StatusNotFound, "NOT_FOUND", "dispute not found")
	}
	return respond(c, fiber.StatusOK, "", d)
}

func (h *Handler) StartReview(c *fiber.Ctx) error {
	return h.disputeAction(c, "dispute under review", func(id uuid.UUID) (*model.Dispute, error) {
		return h.svc.StartReview(c.UserContext(), id, userID(c))
	})
}

func (h *Handler) WithdrawDispute(c *fiber.Ctx) error {
	return h.disputeAction(c, "dispute withdrawn", func(id uuid.UUID) (*model.Dispute, error) {
		return h.svc.WithdrawDispute(c.UserContext(), id, userID(c))
	})
}

func (h *Handler) CloseDispute(c *fiber.Ctx) error {
	return h.disputeAction(c, "dispute closed", func(id uuid.UUID) (*model.Dispute, error) {
		return h.svc.CloseDispute(c.UserContext(), id)
	})
}

func (h *Handler) disputeAction(c *fiber.Ctx, message string, act func(uuid.UUID) (*model.Dispute, error)) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid dispute id")
	}
	d, err := act(id)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, fiber.StatusOK, message, d)
}

func (h *Handler) ResolveDispute(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid dispute id")
	}
	var body struct {
		ResolutionType model.ResolutionType `json:"resolutionType"`
		Percentage     *decimal.Decimal     `json:"partialRefundPercentage"`
	}
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "invalid_json")
	}

	out, err := h.svc.ResolveDispute(c.UserContext(), model.ResolveRequest{
		DisputeID:  id,
		ResolverID: userID(c),
		Type:       body.ResolutionType,
		Percentage: body.Percentage,
	})
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, fiber.StatusOK, "dispute resolved", out)
}

func (h *Handler) CreateProduct(c *fiber.Ctx) error {
	var body struct {
		Name string `json:"name"`
	}
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "invalid_json")
	}
	p, err := h.svc.CreateProduct(c.UserContext(), userID(c), body.Name)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, fiber.StatusCreated, "product created", p)
}

func (h *Handler) AddVariant(c *fiber.Ctx) error {
	productID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid product id")
	}
	var body struct {
		Name  string          `json:"name"`
		Price decimal.Decimal `json:"price"`
	}
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "invalid_json")
	}
	v, err := h.svc.AddVariant(c.UserContext(), productID, body.Name, body.Price)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, fiber.StatusCreated, "variant created", v)
}

// AddAccount stocks a single-use account, or a shared account when slots
// are given.
func (h *Handler) AddAccount(c *fiber.Ctx) error {
	productID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid product id")
	}
	var body struct {
		Label         string   `json:"label"`
		CredentialRef string   `json:"credentialRef"`
		Slots         []string `json:"slots"`
	}
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "invalid_json")
	}

	if len(body.Slots) == 0 {
		u, err := h.svc.AddAccount(c.UserContext(), productID, body.Label, body.CredentialRef)
		if err != nil {
			return respondError(c, err)
		}
		return respond(c, fiber.StatusCreated, "account added", u)
	}
	u, slots, err := h.svc.AddSharedAccount(c.UserContext(), productID, body.Label, body.CredentialRef, body.Slots)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, fiber.StatusCreated, "shared account added", fiber.Map{"account": u, "slots": slots})
}

func (h *Handler) AddLicense(c *fiber.Ctx) error {
	productID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid product id")
	}
	var body struct {
		CredentialRef string `json:"credentialRef"`
	}
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "invalid_json")
	}
	u, err := h.svc.AddLicense(c.UserContext(), productID, body.CredentialRef)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, fiber.StatusCreated, "license added", u)
}

func (h *Handler) Stock(c *fiber.Ctx) error {
	productID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid product id")
	}
	s, err := h.svc.Stock(c.UserContext(), productID)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, fiber.StatusOK, "", s)
}

func (h *Handler) RevokeLicense(c *fiber.Ctx) error {
	return h.unitAction(c, "license revoked", h.svc.RevokeLicense)
}

func (h *Handler) DisableAccount(c *fiber.Ctx) error {
	return h.unitAction(c, "account disabled", h.svc.DisableAccount)
}

func (h *Handler) unitAction(c *fiber.Ctx, message string, act func(context.Context, uuid.UUID) error) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid unit id")
	}
	if err := act(c.UserContext(), id); err != nil {
		return respondError(c, err)
	}
	return respond(c, fiber.StatusOK, message, nil)
}

func (h *Handler) GetCommission(c *fiber.Ctx) error {
	cfg, err := h.svc.CommissionConfig(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, fiber.StatusOK, "", cfg)
}

func (h *Handler) SetCommission(c *fiber.Ctx) error {
	var body struct {
		Rate          decimal.Decimal `json:"rate"`
		AffiliateRate decimal.Decimal `json:"affiliateRate"`
	}
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "invalid_json")
	}
	cfg, err := h.svc.SetCommission(c.UserContext(), body.Rate, body.AffiliateRate)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, fiber.StatusOK, "commission updated", cfg)
}

func (h *Handler) SetAffiliateStatus(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "invalid user id")
	}
	var body struct {
		Status model.AffiliateStatus `json:"status"`
	}
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "invalid_json")
	}
	a, err := h.svc.SetAffiliateStatus(c.UserContext(), id, body.Status)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, fiber.StatusOK, "affiliate updated", a)
}

// Refer links the calling buyer to the affiliate who referred them.
func (h *Handler) Refer(c *fiber.Ctx) error {
	var body struct {
		AffiliateID uuid.UUID `json:"affiliateId"`
	}
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "invalid_json")
	}
	if err := h.svc.Refer(c.UserContext(), userID(c), body.AffiliateID); err != nil {
		return respondError(c, err)
	}
	return respond(c, fiber.StatusCreated, "referral recorded", nil)
}
