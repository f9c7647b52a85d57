package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.temporal.io/sdk/client"

	"github.com/ledgerline/advisor-plane/internal/api"
	"github.com/ledgerline/advisor-plane/internal/config"
	"github.com/ledgerline/advisor-plane/internal/events"
	"github.com/ledgerline/advisor-plane/internal/intent"
	"github.com/ledgerline/advisor-plane/internal/llm"
	"github.com/ledgerline/advisor-plane/internal/scan"
	"github.com/ledgerline/advisor-plane/internal/store/postgres"
	"github.com/ledgerline/advisor-plane/internal/workflows"
)

type server interface {
	Start(ctx context.Context, addr string) error
}

var (
	loadConfig = func() (config.Config, error) {
		return config.Load(), nil
	}
	newBroker = events.NewBroker
	newStore  = func(conn string) (*postgres.PostgresStore, error) {
		return postgres.New(conn)
	}
	dialTemporal       = client.Dial
	newWorkflowService = workflows.NewService
	newServer          = func(store *postgres.PostgresStore, broker *events.Broker, dispatches *workflows.Service, scanner *scan.Engine, classifier *intent.Classifier, cfg config.Config) server {
		return api.NewServer(store, broker, dispatches, scanner, classifier, cfg)
	}
	notifyContext = signal.NotifyContext
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
	ctx, cancel := notifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	broker := newBroker()
	store, err := newStore(cfg.PostgresURL)
	if err != nil {
		return err
	}

	workflowClient, err := dialTemporal(client.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		return err
	}
	if workflowClient != nil {
		defer workflowClient.Close()
	}
	workflowService := newWorkflowService(workflowClient, cfg.TemporalTaskQueue)

	var provider llm.Provider
	llmConfig := llm.Config{
		Provider:        cfg.LLMProvider,
		Model:           cfg.LLMModel,
		BaseURL:         cfg.LLMBaseURL,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		OpenAIAPIKey:    cfg.OpenAIAPIKey,
	}
	if llmConfig.Configured() {
		if p, err := llm.NewProvider(llmConfig); err != nil {
			log.Printf("warning: llm provider unavailable, keyword routing only: %v", err)
		} else {
			provider = p
		}
	}
	classifier := &intent.Classifier{Provider: provider}

	scanner := scan.NewEngine(store, broker)
	go scanner.RunScheduler(ctx, cfg.ScanInterval)

	server := newServer(store, broker, workflowService, scanner, classifier, cfg)

	addr := fmt.Sprintf(":%s", cfg.Port)
	log.Printf("Advisor plane listening on %s", addr)
	if err := server.Start(ctx, addr); err != nil {
		return err
	}

	return nil
}
