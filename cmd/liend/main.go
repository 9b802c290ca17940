package main

import (
	"flag"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lienchain/config"
	"lienchain/core/events"
	"lienchain/core/types"
	"lienchain/native/conversion"
	"lienchain/native/mortgage"
	"lienchain/observability"
	"lienchain/observability/logging"
	"lienchain/rpc"
	"lienchain/state"
	"lienchain/storage"
)

// staticPriceSource serves a pinned price for networks running without a
// feed adapter.
type staticPriceSource struct {
	price *big.Int
}

func (s staticPriceSource) CollateralPrice(string) (*big.Int, error) {
	return new(big.Int).Set(s.price), nil
}

// noPriceSource stands in for queues with no feed configured so settlement
// paths fail with an actionable message instead of a nil dereference.
type noPriceSource struct {
	collateral string
}

func (s noPriceSource) CollateralPrice(string) (*big.Int, error) {
	return nil, fmt.Errorf("no price feed configured for %s: set StaticPriceWei or attach a feed adapter", s.collateral)
}

// metricsEmitter translates engine events into prometheus series and keeps
// the queue-depth gauges current as the queues change.
type metricsEmitter struct {
	registry *conversion.Registry
}

func (m metricsEmitter) Emit(evt events.Event) {
	eventType := evt.EventType()
	if op, ok := strings.CutPrefix(eventType, "mortgage."); ok {
		observability.Mortgage().ObserveOperation(op)
		return
	}
	carrier, ok := evt.(interface{ Event() *types.Event })
	if !ok || carrier.Event() == nil {
		return
	}
	attrs := carrier.Event().Attributes
	collateral := attrs["collateral"]
	metrics := observability.Conversion()
	switch eventType {
	case conversion.EventTypeFilled:
		metrics.ObserveCredit(collateral)
		kind := "partial"
		if attrs["settled"] == "true" {
			kind = "full"
		}
		metrics.ObserveFill(collateral, kind)
	case conversion.EventTypeEntryPruned:
		metrics.ObserveCredit(collateral)
	}
	if engine, ok := m.registry.Get(collateral); ok {
		metrics.SetQueueDepth(collateral, "supply", engine.SupplyLen())
		metrics.SetQueueDepth(collateral, "demand", engine.DemandLen())
	}
}

func main() {
	configPath := flag.String("config", "./config.toml", "path to the node configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Setup("liend", "").Error("failed to load config", "err", err)
		os.Exit(1)
	}
	logger := logging.Setup("liend", cfg.Environment)

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "lien"))
	if err != nil {
		logger.Error("failed to open database", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	kv := state.NewKVStore(db)
	ledger := mortgage.NewLedger(kv)
	registry := conversion.NewRegistry()
	emitter := metricsEmitter{registry: registry}
	lifecycle := mortgage.NewEngine(cfg.Mortgage.MinimumPrincipalWei)
	lifecycle.SetEmitter(emitter)

	queueMetrics := observability.Conversion()
	for _, queueCfg := range cfg.Queues {
		engine := conversion.NewEngine(queueCfg.Collateral, lifecycle)
		engine.SetEmitter(emitter)
		engine.SetState(ledger)
		engine.SetFeeBank(state.NewAccountStore(kv))
		engine.SetFees(queueCfg.EnqueueFeeWei, queueCfg.WithdrawalFeeWei)
		engine.SetGraceWindow(queueCfg.GraceWindowSeconds)
		if queueCfg.StaticPriceWei != nil && queueCfg.StaticPriceWei.Sign() > 0 {
			engine.SetPriceSource(staticPriceSource{price: queueCfg.StaticPriceWei})
		} else {
			engine.SetPriceSource(noPriceSource{collateral: queueCfg.Collateral})
		}
		if err := engine.Load(kv); err != nil {
			logger.Error("failed to restore queue state", "collateral", queueCfg.Collateral, "err", err)
			os.Exit(1)
		}
		if err := registry.Register(engine); err != nil {
			logger.Error("failed to register queue", "collateral", queueCfg.Collateral, "err", err)
			os.Exit(1)
		}
		queueMetrics.SetQueueDepth(queueCfg.Collateral, "supply", engine.SupplyLen())
		queueMetrics.SetQueueDepth(queueCfg.Collateral, "demand", engine.DemandLen())
		logger.Info("queue restored", "collateral", queueCfg.Collateral, "supplyLen", engine.SupplyLen(), "demandLen", engine.DemandLen())
	}

	server := rpc.NewServer(ledger, registry, cfg.Mortgage, logger)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", server.Router())

	logger.Info("liend listening", "addr", cfg.ListenAddress, "network", cfg.NetworkName)
	if err := http.ListenAndServe(cfg.ListenAddress, mux); err != nil {
		logger.Error("http server stopped", "err", err)
		os.Exit(1)
	}
}
