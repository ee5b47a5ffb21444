package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/soyHouston256/stream-sales-sub004/internal/config"
	"github.com/soyHouston256/stream-sales-sub004/internal/infrastructure"
	"github.com/soyHouston256/stream-sales-sub004/internal/model"
	"github.com/soyHouston256/stream-sales-sub004/internal/purchase"
	"github.com/soyHouston256/stream-sales-sub004/internal/service"
)

const pageSize = 500

const usage = `Usage: admin <command> [flags]

Commands:
  reconcile            replay every wallet's ledger and report drift
  report -wallet ID    export a wallet's ledger history as CSV`

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "reconcile":
		err = runReconcile(ctx, logger)
	case "report":
		err = runReport(ctx, logger, os.Args[2:])
	default:
		fmt.Println(usage)
		os.Exit(1)
	}
	if err != nil {
		logger.Error("admin command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func openMarket(ctx context.Context, logger *slog.Logger) (*service.Market, func(), error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, err
	}
	store, err := infrastructure.OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	m := service.NewMarket(store, nil, nil, service.Options{
		Currency: cfg.Currency,
		Purchase: purchase.Config{
			PlatformUserID:       cfg.PlatformUserID,
			DefaultRate:          cfg.DefaultCommissionRate,
			DefaultAffiliateRate: cfg.DefaultAffiliateRate,
		},
	}, logger)
	return m, store.Close, nil
}

func runReconcile(ctx context.Context, logger *slog.Logger) error {
	m, closeFn, err := openMarket(ctx, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	results, err := m.ReconcileAll(ctx)
	if err != nil {
		return err
	}

	drifted := 0
	for _, r := range results {
		if r.Balanced() {
			continue
		}
		drifted++
		fmt.Printf("%s stored=%s replayed=%s drift=%s\n",
			r.WalletID, r.Stored.StringFixed(2), r.Replayed.StringFixed(2), r.Drift.StringFixed(2))
	}
	logger.Info("reconciliation finished", "wallets", len(results), "drifted", drifted)
	if drifted > 0 {
		return fmt.Errorf("%d of %d wallets drifted", drifted, len(results))
	}
	return nil
}

func runReport(ctx context.Context, logger *slog.Logger, args []string) error {
	reportCmd := flag.NewFlagSet("report", flag.ExitOnError)
	walletFlag := reportCmd.String("wallet", "", "wallet ID (required)")
	outFlag := reportCmd.String("out", "", "output file (default wallet_<id>_report.csv)")
	if err := reportCmd.Parse(args); err != nil {
		return err
	}

	walletID, err := uuid.Parse(*walletFlag)
	if err != nil {
		return fmt.Errorf("invalid -wallet: %w", err)
	}
	fileName := *outFlag
	if fileName == "" {
		fileName = fmt.Sprintf("wallet_%s_report.csv", walletID)
	}

	m, closeFn, err := openMarket(ctx, logger)
	if err != nil {
		return err
	}
	defer closeFn()

	var history []model.LedgerTransaction
	for offset := 0; ; offset += pageSize {
		page, err := m.History(ctx, walletID, pageSize, offset)
		if err != nil {
			return err
		}
		history = append(history, page...)
		if len(page) < pageSize {
			break
		}
	}

	file, err := os.Create(fileName)
	if err != nil {
		return fmt.Errorf("create %s: %w", fileName, err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	_ = w.Write([]string{"id", "type", "amount", "balance_after", "reference_type", "reference_id", "idempotency_key", "created_at"})
	for _, e := range history {
		_ = w.Write([]string{
			e.ID.String(),
			string(e.Type),
			e.Amount.StringFixed(2),
			e.BalanceAfter.StringFixed(2),
			e.Reference.Type,
			e.Reference.ID.String(),
			e.IdempotencyKey,
			e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}

	logger.Info("report written", "file", fileName, "entries", len(history))
	return nil
}
