// Package app assembles the settlement services on top of a database client.
// The API and the cron worker share this graph.
package app

import (
	"fmt"

	"github.com/angelmondragon/marketplace-settlement/internal/disputes"
	"github.com/angelmondragon/marketplace-settlement/internal/ledger"
	"github.com/angelmondragon/marketplace-settlement/internal/notifications"
	"github.com/angelmondragon/marketplace-settlement/internal/orders"
	"github.com/angelmondragon/marketplace-settlement/internal/payouts"
	"github.com/angelmondragon/marketplace-settlement/internal/refunds"
	"github.com/angelmondragon/marketplace-settlement/pkg/config"
	"github.com/angelmondragon/marketplace-settlement/pkg/db"
	"github.com/angelmondragon/marketplace-settlement/pkg/logger"
	"github.com/angelmondragon/marketplace-settlement/pkg/metrics"
	"github.com/angelmondragon/marketplace-settlement/pkg/outbox"
	"github.com/angelmondragon/marketplace-settlement/pkg/security"
)

type Services struct {
	Ledger        ledger.Service
	LedgerRepo    ledger.Repository
	Orders        orders.Service
	Payouts       payouts.Service
	Disputes      disputes.Service
	Notifications notifications.Service
	Refunds       *refunds.Engine
	Outbox        *outbox.Service
}

func NewServices(cfg *config.Config, dbClient *db.Client, ledgerMetrics *metrics.LedgerMetrics, logg *logger.Logger) (*Services, error) {
	gdb := dbClient.DB()
	outboxSvc := outbox.NewService(outbox.NewRepository(gdb), logg)

	ledgerRepo := ledger.NewRepository(gdb)
	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		Repo:    ledgerRepo,
		Tx:      dbClient,
		Outbox:  outboxSvc,
		Metrics: ledgerMetrics,
		Logger:  logg,
	})
	if err != nil {
		return nil, fmt.Errorf("ledger service: %w", err)
	}

	refundEngine, err := refunds.NewEngine(ledgerSvc, logg)
	if err != nil {
		return nil, fmt.Errorf("refund engine: %w", err)
	}

	ordersSvc, err := orders.NewService(orders.ServiceParams{
		Repo:    orders.NewRepository(gdb),
		Tx:      dbClient,
		Outbox:  outboxSvc,
		Ledger:  ledgerSvc,
		Refunds: refundEngine,
		Windows: orders.Windows{
			Cancel:  cfg.Settlement.CancelWindow,
			Return:  cfg.Settlement.ReturnWindow,
			Dispute: cfg.Settlement.DisputeWindow,
		},
		Logger: logg,
	})
	if err != nil {
		return nil, fmt.Errorf("orders service: %w", err)
	}

	sealer, err := security.NewSealer(cfg.Security.BankDetailsKey)
	if err != nil {
		return nil, fmt.Errorf("bank details sealer: %w", err)
	}
	minPayout, maxPayout, err := cfg.Settlement.PayoutBounds()
	if err != nil {
		return nil, err
	}
	payoutsSvc, err := payouts.NewService(payouts.ServiceParams{
		Repo:      payouts.NewRepository(gdb),
		Tx:        dbClient,
		Outbox:    outboxSvc,
		Ledger:    ledgerSvc,
		Sealer:    sealer,
		MinAmount: minPayout,
		MaxAmount: maxPayout,
		Logger:    logg,
	})
	if err != nil {
		return nil, fmt.Errorf("payouts service: %w", err)
	}

	disputesSvc, err := disputes.NewService(disputes.ServiceParams{
		Repo:    disputes.NewRepository(gdb),
		Tx:      dbClient,
		Outbox:  outboxSvc,
		Orders:  ordersSvc,
		Refunds: refundEngine,
		Logger:  logg,
	})
	if err != nil {
		return nil, fmt.Errorf("disputes service: %w", err)
	}

	notificationsSvc, err := notifications.NewService(notifications.NewRepository(gdb))
	if err != nil {
		return nil, fmt.Errorf("notifications service: %w", err)
	}

	return &Services{
		Ledger:        ledgerSvc,
		LedgerRepo:    ledgerRepo,
		Orders:        ordersSvc,
		Payouts:       payoutsSvc,
		Disputes:      disputesSvc,
		Notifications: notificationsSvc,
		Refunds:       refundEngine,
		Outbox:        outboxSvc,
	}, nil
}
