package setup

import (
	"fmt"

	"github.com/lonmstalker/advert-market-settlement/internal/delivery/http/handlers"
	"github.com/lonmstalker/advert-market-settlement/internal/domain"
	"github.com/lonmstalker/advert-market-settlement/internal/usecase/deal"
	"github.com/lonmstalker/advert-market-settlement/internal/usecase/escrow"
	"github.com/lonmstalker/advert-market-settlement/internal/usecase/ledger"
	"github.com/lonmstalker/advert-market-settlement/internal/usecase/outbox"
	"github.com/lonmstalker/advert-market-settlement/internal/usecase/sweep"
)

type UseCases struct {
	LedgerUsecase ledger.LedgerUsecase
	EscrowUsecase escrow.EscrowUsecase
	DealUsecase   *deal.DefaultDealUsecase
	SweepUsecase  sweep.SweepUsecase
	OutboxPoller  *outbox.Poller
}

func InitializeUseCases(deps *Dependencies) (*UseCases, error) {
	cfg := deps.Config
	repos := deps.Repositories

	walletHandler, err := handlers.NewHTTPWalletHandler(cfg.WalletService.BaseURL, cfg.WalletService.Timeout)
	if err != nil {
		return nil, fmt.Errorf("wallet handler: %w", err)
	}

	ledgerUsecase := ledger.NewDefaultLedgerUsecase(repos.TxManager, repos.LedgerRepo, deps.Cache, deps.Metrics)
	escrowUsecase := escrow.NewDefaultEscrowUsecase(
		repos.TxManager,
		ledgerUsecase,
		walletHandler,
		repos.TonTxRepo,
		repos.DealRepo,
		cfg.Escrow.MinConfirmations,
	)
	dealUsecase := deal.NewDefaultDealUsecase(
		repos.TxManager,
		repos.DealRepo,
		repos.OutboxRepo,
		escrowUsecase,
		ledgerUsecase,
		deps.Metrics,
	)
	sweepUsecase := sweep.NewDefaultSweepUsecase(repos.TxManager, ledgerUsecase, escrowUsecase, repos.OutboxRepo)

	poller := outbox.NewPoller(repos.OutboxRepo, eventPublisher(deps), outbox.PollerConfig{
		BatchSize:       cfg.Outbox.BatchSize,
		MaxRetries:      cfg.Outbox.MaxRetries,
		VisibilityDelay: cfg.Outbox.VisibilityDelay,
		ClaimTTL:        cfg.Outbox.ClaimTTL,
		PublishTimeout:  cfg.Outbox.PublishTimeout,
	}, deps.Metrics)

	return &UseCases{
		LedgerUsecase: ledgerUsecase,
		EscrowUsecase: escrowUsecase,
		DealUsecase:   dealUsecase,
		SweepUsecase:  sweepUsecase,
		OutboxPoller:  poller,
	}, nil
}

// eventPublisher sends deal notifications through Telegram when a bot is
// configured and every other topic to Kafka.
func eventPublisher(deps *Dependencies) domain.EventPublisher {
	router := outbox.NewTopicRouter(deps.Publisher)
	if deps.Notifier != nil {
		router.Route(domain.TopicDealNotifications, deps.Notifier)
	}
	return router
}
