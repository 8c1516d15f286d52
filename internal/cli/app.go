package cli

import (
	"fmt"
	"net/http"

	"github.com/jmoiron/sqlx"

	"github.com/waiwai/settlement-bridge/internal/api"
	"github.com/waiwai/settlement-bridge/internal/config"
	"github.com/waiwai/settlement-bridge/internal/dates"
	"github.com/waiwai/settlement-bridge/internal/duplicate"
	"github.com/waiwai/settlement-bridge/internal/fees"
	"github.com/waiwai/settlement-bridge/internal/ingestion"
	"github.com/waiwai/settlement-bridge/internal/legacy"
	"github.com/waiwai/settlement-bridge/internal/logger"
	"github.com/waiwai/settlement-bridge/internal/reconciliation"
	"github.com/waiwai/settlement-bridge/internal/repository"
)

// App holds the wired stores and services for one process.
type App struct {
	Config *config.Config
	Log    logger.Logger

	db      *sqlx.DB
	orders  *repository.OrderRepo
	batches *repository.BatchRepo
	logs    *repository.ProcessLogRepo

	parser    *ingestion.Parser
	agg       *fees.Aggregator
	resolver  *duplicate.Resolver
	transfers *reconciliation.Service
}

// NewApp opens the main store and builds every service on top of it.
func NewApp(cfg *config.Config, log logger.Logger) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	db, err := repository.Open(cfg.MainDB.Driver, cfg.MainDB.DSN)
	if err != nil {
		return nil, fmt.Errorf("open main store: %w", err)
	}

	a := &App{
		Config:  cfg,
		Log:     log,
		db:      db,
		orders:  repository.NewOrderRepo(db),
		batches: repository.NewBatchRepo(db),
		logs:    repository.NewProcessLogRepo(db),
		parser:  ingestion.NewParser(dates.NewNormalizer(loc, cfg.Dates.PinnedHour), log),
		agg:     fees.NewAggregator(log),
	}

	connector := legacy.NewSQLConnector(cfg.Legacy.Driver, cfg.Legacy.ConnectionString(), log)
	table := legacy.Table{Name: cfg.Legacy.Table(), LimitClause: cfg.Legacy.LimitClause}

	a.resolver = duplicate.NewResolver(a.orders, legacy.NewLedgerStore(connector, table, log), duplicate.Options{
		OrderNoLimit:  cfg.Legacy.OrderNoLimit,
		ThrottleEvery: cfg.Legacy.ThrottleEvery,
		ThrottlePause: cfg.Legacy.ThrottlePause,
	}, log)

	a.transfers = reconciliation.NewService(
		legacy.NewFormatter(cfg.Legacy.OrderNoLimit, loc, log),
		a.resolver,
		legacy.NewExecutor(connector, table, log),
		a.batches,
		a.orders,
		a.logs,
		log,
	)

	log.Info("services ready", map[string]interface{}{
		"main_db":      cfg.MainDB.Driver,
		"legacy_table": table.Name,
		"timezone":     loc.String(),
	})
	return a, nil
}

// Ingestion returns the upload service. A non-persisting service records
// no batch and no audit entry.
func (a *App) Ingestion(persist bool) *ingestion.Service {
	if !persist {
		return ingestion.NewService(a.parser, a.agg, a.resolver, nil, nil, a.Config.MaxUploadBytes(), a.Log)
	}
	return ingestion.NewService(a.parser, a.agg, a.resolver, a.batches, a.logs, a.Config.MaxUploadBytes(), a.Log)
}

func (a *App) Transfers() *reconciliation.Service { return a.transfers }

// Router builds the HTTP surface.
func (a *App) Router() http.Handler {
	h := &api.Handlers{
		Ingest:    a.Ingestion(true),
		Transfers: a.transfers,
		Batches:   a.batches,
		Logs:      a.logs,
		Orders:    a.orders,
		Merchants: a.Config.Merchant,
		MaxUpload: a.Config.MaxUploadBytes(),
		Log:       a.Log,
	}
	return api.NewRouter(h, a.Config.Server.CORSOrigins)
}

func (a *App) Close() error {
	return a.db.Close()
}
