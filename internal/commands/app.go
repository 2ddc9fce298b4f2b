package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"

	"ledger/internal/amqp"
	"ledger/internal/cache"
	"ledger/internal/cli"
	"ledger/internal/config"
	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/report"
	"ledger/internal/services"
)

// app holds the wired ledger service and the background pieces serve runs.
type app struct {
	service *services.LedgerService
	events  *amqp.Client
	caches  *cache.Manager
}

// newApp opens the store and wires the summary cache and the event bus
// as configured. withEvents is false for one-shot commands.
func newApp(ctx context.Context, cfg *config.Config, logger *log.Logger, withEvents bool) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	res, err := cli.OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	a := &app{}
	opts := []services.Option{services.WithStoreTimeout(cfg.StoreTimeout)}

	var summaries report.Summarizer = report.NewEngine(res.Store, loc)
	if withEvents && cfg.SummaryCacheTTL > 0 {
		monthly := cache.NewLRUCache[core.MonthlySummary](cfg.SummaryCacheSize, cfg.SummaryCacheTTL)
		cached := report.NewCachedEngine(report.NewEngine(res.Store, loc), monthly, cfg.StoreTimeout)
		summaries = cached
		opts = append(opts, services.WithInvalidator(cached))

		a.caches = cache.NewManager()
		a.caches.Register(monthly)
		logger.Info("Summary cache enabled",
			log.FieldComponent, log.ComponentCache,
			"ttl", cfg.SummaryCacheTTL.String(),
			"size", cfg.SummaryCacheSize)
	}

	if withEvents && cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, replicaOrigin())
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without events",
				log.FieldComponent, log.ComponentAMQP,
				log.FieldError, err)
		} else {
			a.events = client
			opts = append(opts, services.WithPublisher(client))
			logger.Info("Initialized AMQP client",
				log.FieldComponent, log.ComponentAMQP,
				"exchange", cfg.AMQPExchange,
				"origin", client.Origin())
		}
	}

	a.service = services.NewLedgerService(res.Store, summaries, loc, opts...)
	return a, nil
}

// Close releases the store and the broker connection.
func (a *app) Close() error {
	return a.service.Close()
}

// replicaOrigin tags events from this process so its own consumer can
// skip them.
func replicaOrigin() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "ledger"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}
