// Command relationshipd is the ingestion daemon: it wires config, the
// Postgres entity store, the blacklist engine, the message processor,
// one Coordinator per configured mailbox, the account scheduler, and the
// query API HTTP server together, following the teacher's
// cmd/email-retrieval/main.go wiring style — constructor-based dependency
// injection, a sequential boot sequence logged at each step.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mailgraph/relationshipd/internal/blacklist"
	"github.com/mailgraph/relationshipd/internal/config"
	"github.com/mailgraph/relationshipd/internal/domain"
	"github.com/mailgraph/relationshipd/internal/ingest/coordinator"
	"github.com/mailgraph/relationshipd/internal/ingest/processor"
	"github.com/mailgraph/relationshipd/internal/provider"
	"github.com/mailgraph/relationshipd/internal/queryapi"
	"github.com/mailgraph/relationshipd/internal/scheduler"
	"github.com/mailgraph/relationshipd/internal/store"
)

func main() {
	log.Println("Starting relationship-graph ingestion daemon...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := store.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Connected to PostgreSQL")

	ctx := context.Background()
	if err := db.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}
	log.Println("Database schema initialized")

	bl := blacklist.New(db, cfg.WhitelistDomains)
	if err := bl.SeedPersonalDomains(ctx); err != nil {
		log.Printf("Blacklist seed skipped: %v", err)
	}
	if err := bl.LoadCache(ctx); err != nil {
		log.Printf("Blacklist cache warm-up failed, will retry on first use: %v", err)
	}

	proc := processor.New(db, bl)

	if len(cfg.Accounts) == 0 {
		log.Println("No accounts configured (set ACCOUNTS); ingestion loop will idle")
	}

	var drivers []scheduler.AccountDriver
	for _, account := range cfg.Accounts {
		adapter, err := newAdapter(account)
		if err != nil {
			log.Fatalf("Account %s: %v", account.Label, err)
		}
		c := coordinator.New(account, db, adapter, proc, bl)
		drivers = append(drivers, scheduler.AccountDriver{Account: account, Runner: c})
		log.Printf("Account %s: provider=%s self=%s", account.Label, account.Provider, account.SelfAddress)
	}

	daemon := scheduler.New(drivers, cfg.CatchUpPollInterval, cfg.SteadyPollInterval, cfg.AccountBudget)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go daemon.Run(runCtx)

	api := queryapi.New(db, bl)
	srv := &http.Server{
		Addr:    cfg.HTTPHost + ":" + cfg.HTTPPort,
		Handler: api.Router(),
	}
	go func() {
		log.Printf("Query API listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Query API server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Query API shutdown error: %v", err)
	}
}

// newAdapter selects the mock provider adapter for account.Provider. Real
// OAuth-backed wire transport is out of scope (spec §1): both adapters
// here reproduce the teacher's "returns deterministic sample data for
// this prototype" pattern rather than calling a live API, so they start
// with an empty fixture until a real credential-backed client replaces
// them.
func newAdapter(account domain.Account) (provider.Adapter, error) {
	switch account.Provider {
	case domain.ProviderGmail:
		return provider.WithRetry(provider.NewGmail(account.SelfAddress, nil)), nil
	case domain.ProviderGraph:
		return provider.WithRetry(provider.NewGraph(account.SelfAddress, nil)), nil
	default:
		return nil, errUnknownProvider(account.Provider)
	}
}

type errUnknownProvider domain.Provider

func (e errUnknownProvider) Error() string {
	return "unknown provider: " + string(e)
}
