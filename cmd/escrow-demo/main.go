package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"os"

	"escrowledger/config"
	"escrowledger/core/events"
	"escrowledger/core/state"
	coretypes "escrowledger/core/types"
	"escrowledger/native/escrow"
	"escrowledger/observability"
	"escrowledger/observability/logging"
	"escrowledger/storage"
)

// logEmitter forwards ledger events to the structured logger.
type logEmitter struct {
	log *slog.Logger
}

type eventCarrier interface {
	Event() *coretypes.Event
}

func (l logEmitter) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	args := []any{}
	if carrier, ok := evt.(eventCarrier); ok && carrier.Event() != nil {
		for key, value := range carrier.Event().Attributes {
			args = append(args, slog.String(key, value))
		}
	}
	l.log.Info(evt.EventType(), args...)
}

func openDatabase(cfg *config.Config) (storage.Database, error) {
	if cfg.Backend == "leveldb" {
		return storage.NewLevelDB(cfg.DataDir)
	}
	return storage.NewMemDB(), nil
}

func run() error {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.Setup("escrow-demo", cfg.Env)

	db, err := openDatabase(cfg)
	if err != nil {
		return fmt.Errorf("open %s backend: %w", cfg.Backend, err)
	}
	defer db.Close()

	manager := state.NewManager(db)
	engine := escrow.NewEngine()
	engine.SetState(manager)
	engine.SetEmitter(observability.NewMeteredEmitter(logEmitter{log: logger}))

	var buyer, seller [20]byte
	buyer[19] = 0x01
	seller[19] = 0x02
	amount := big.NewInt(100)

	if err := manager.PutAccount(buyer[:], &coretypes.Account{Balance: big.NewInt(1_000)}); err != nil {
		return fmt.Errorf("seed buyer account: %w", err)
	}

	id, err := engine.Initiate(buyer, seller, amount)
	if err != nil {
		return fmt.Errorf("initiate: %w", err)
	}
	if err := engine.Deposit(buyer, id, amount); err != nil {
		return fmt.Errorf("deposit: %w", err)
	}
	if err := engine.Complete(buyer, id); err != nil {
		return fmt.Errorf("buyer approval: %w", err)
	}
	if err := engine.Complete(seller, id); err != nil {
		return fmt.Errorf("seller approval: %w", err)
	}

	sellerAcc, err := manager.GetAccount(seller[:])
	if err != nil {
		return fmt.Errorf("read seller account: %w", err)
	}
	record, ok := engine.Get(id)
	if !ok {
		return fmt.Errorf("escrow %d vanished after settlement", id)
	}
	logger.Info("escrow settled",
		slog.Uint64("id", uint64(record.ID)),
		slog.String("state", record.State.String()),
		slog.String("seller_balance", sellerAcc.Balance.String()),
	)

	// A second agreement that never gets funded, canceled by the seller.
	canceledID, err := engine.Initiate(buyer, seller, big.NewInt(50))
	if err != nil {
		return fmt.Errorf("initiate second escrow: %w", err)
	}
	if err := engine.Cancel(seller, canceledID); err != nil {
		return fmt.Errorf("cancel: %w", err)
	}
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "escrow-demo: %v\n", err)
		os.Exit(1)
	}
}
