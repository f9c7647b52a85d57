package main

import (
	"log"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/ledgerline/advisor-plane/internal/config"
	"github.com/ledgerline/advisor-plane/internal/llm"
	"github.com/ledgerline/advisor-plane/internal/store/postgres"
	"github.com/ledgerline/advisor-plane/internal/workflows"
)

var (
	loadConfig = func() (config.Config, error) {
		return config.Load(), nil
	}
	dialTemporal = client.Dial
	newStore     = func(conn string) (*postgres.PostgresStore, error) {
		return postgres.New(conn)
	}
	newActivities = func(st *postgres.PostgresStore, cfg llm.Config, controlPlaneURL string) *workflows.DispatchActivities {
		return workflows.NewDispatchActivities(st, cfg, controlPlaneURL)
	}
	newWorker       = worker.New
	workerInterrupt = worker.InterruptCh
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	temporalClient, err := dialTemporal(client.Options{
		HostPort: cfg.TemporalAddress,
	})
	if err != nil {
		return err
	}
	if temporalClient != nil {
		defer temporalClient.Close()
	}

	store, err := newStore(cfg.PostgresURL)
	if err != nil {
		return err
	}

	activities := newActivities(store, llm.Config{
		Provider:        cfg.LLMProvider,
		Model:           cfg.LLMModel,
		BaseURL:         cfg.LLMBaseURL,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
	}, cfg.PublicURL)

	w := newWorker(temporalClient, cfg.TemporalTaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.DispatchWorkflow)
	w.RegisterActivity(activities)

	log.Println("Advisor dispatch worker started")
	if err := w.Run(workerInterrupt()); err != nil {
		return err
	}

	return nil
}
