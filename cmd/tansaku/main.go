package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/kazuhei/tansaku/internal/agent"
	"github.com/kazuhei/tansaku/internal/gateway"
	"github.com/kazuhei/tansaku/internal/governance"
	"github.com/kazuhei/tansaku/internal/llm"
	"github.com/kazuhei/tansaku/internal/observability"
	"github.com/kazuhei/tansaku/internal/store"
	"github.com/kazuhei/tansaku/internal/tools"
	"github.com/kazuhei/tansaku/pkg/config"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/textsplitter"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	pName, pCfg := cfg.GetDefaultProvider()
	if pName == "" {
		log.Fatal("No enabled provider found in config")
	}

	var model *openai.LLM
	switch pName {
	case "openai", "openrouter":
		opts := []openai.Option{
			openai.WithToken(pCfg.APIKey),
			openai.WithModel(pCfg.Model),
		}
		if pCfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(pCfg.BaseURL))
		}
		if pCfg.EmbeddingModel != "" {
			opts = append(opts, openai.WithEmbeddingModel(pCfg.EmbeddingModel))
		}
		model, err = openai.New(opts...)
	default:
		log.Fatalf("Provider %s not yet implemented in main", pName)
	}
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Tools
	registry := tools.NewRegistry()

	if cfg.Memory.CorpusDir != "" {
		embedder, err := embeddings.NewEmbedder(model)
		if err != nil {
			log.Fatal(err)
		}
		vectorStore := store.NewMemoryVectorStore(embedder)
		keywordIndex := store.NewKeywordIndex()
		if err := loadCorpus(ctx, cfg.Memory.CorpusDir, vectorStore, keywordIndex); err != nil {
			log.Fatalf("failed to load corpus from %s: %v", cfg.Memory.CorpusDir, err)
		}
		registry.Register(tools.NewHybridSearchTool(vectorStore, keywordIndex))
	} else {
		log.Println("Warning: no corpus_dir configured, hybrid_search is unavailable")
	}

	searchTool, err := tools.NewWebSearchTool()
	if err != nil {
		log.Printf("Warning: Failed to initialize web search tool: %v", err)
	} else {
		registry.Register(searchTool)
	}

	registry.Register(tools.NewScraperTool())
	registry.Register(tools.NewRandomTool())

	gov := governance.NewDefaultPolicyEngine()
	// The decoy stays visible to the model but never runs.
	gov.DenyTool("random")

	prompts := agent.NewPromptManager(cfg.App.PromptsDir)
	logger := observability.NewLogger()
	client := llm.NewClient(model)

	orch := agent.NewOrchestrator(client, registry, gov, prompts, logger, agent.Phases{
		Planner:       phase("planner", cfg.Agent.Planner),
		ToolSelection: phase("tool_selection", cfg.Agent.ToolSelection),
		SubtaskAnswer: phase("subtask_answer", cfg.Agent.SubtaskAnswer),
		Reflection:    phase("reflection", cfg.Agent.Reflection),
		FinalAnswer:   phase("final_answer", cfg.Agent.FinalAnswer),
	}, agent.Options{
		MaxChallengeCount: cfg.Agent.MaxChallengeCount,
		HistoryMaxTurns:   cfg.Agent.HistoryMaxTurns,
	})

	var sink gateway.RunSink
	runStore, err := store.NewRunStore(cfg.Memory.RunsPath)
	if err != nil {
		log.Printf("Warning: run store unavailable, runs will not be recorded: %v", err)
	} else {
		sink = runStore
		defer runStore.Close()
	}

	gw := gateway.NewHTTPGateway(cfg.Server.Address, orch, sink)

	observability.PrintBanner(cfg.App.Name, cfg.Server.Address)

	go func() {
		if err := gw.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("gateway error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := gw.Stop(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

func phase(name string, pc config.PhaseConfig) llm.Phase {
	return llm.Phase{
		Name:        name,
		Model:       pc.Model,
		Temperature: pc.Temperature,
		Seed:        pc.Seed,
	}
}

// loadCorpus reads every markdown/text file under dir, splits it into
// chunks and feeds both halves of hybrid search.
func loadCorpus(ctx context.Context, dir string, vectorStore *store.MemoryVectorStore, keywordIndex *store.KeywordIndex) error {
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(800),
		textsplitter.WithChunkOverlap(100),
	)

	var docs []schema.Document
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".md" && ext != ".txt" {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		chunks, err := textsplitter.SplitDocuments(splitter, []schema.Document{{
			PageContent: string(data),
			Metadata:    map[string]any{"source": path},
		}})
		if err != nil {
			return err
		}
		docs = append(docs, chunks...)
		return nil
	})
	if err != nil {
		return err
	}

	if len(docs) == 0 {
		log.Printf("Warning: corpus directory %s contains no documents", dir)
		return nil
	}

	if _, err := vectorStore.AddDocuments(ctx, docs); err != nil {
		return err
	}
	for _, doc := range docs {
		keywordIndex.Add(doc.PageContent)
	}
	log.Printf("Loaded %d corpus chunks from %s", len(docs), dir)
	return nil
}
