package main

import (
	"context"
	"log"
	"net/http"

	"caseflow/internal/api"
	"caseflow/internal/config"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	h := api.NewServer(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.QueueManager().Run(ctx)

	log.Printf("caseflow api listening on %s llm_providers=%q max_concurrent_runs=%d", cfg.APIAddr, cfg.LLMProviders, cfg.MaxConcurrentRuns)
	if err := http.ListenAndServe(cfg.APIAddr, h.Routes()); err != nil {
		log.Fatal(err)
	}
}
