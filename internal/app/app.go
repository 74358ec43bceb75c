package app

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/junwei-liu/docgate/internal/cache"
	"github.com/junwei-liu/docgate/internal/config"
	"github.com/junwei-liu/docgate/internal/core"
	db "github.com/junwei-liu/docgate/internal/core/database"
	"github.com/junwei-liu/docgate/internal/core/extract"
	"github.com/junwei-liu/docgate/internal/core/filestore"
	"github.com/junwei-liu/docgate/internal/core/llm"
	objectclient "github.com/junwei-liu/docgate/internal/core/object-client"
	"github.com/junwei-liu/docgate/internal/orchestrator"
	"github.com/junwei-liu/docgate/internal/session"
)

type App struct {
	Store    core.Store
	Blobs    core.BlobStore
	Sessions *session.Manager
	Server   *Server

	cfg         *config.Config
	stopCleanup context.CancelFunc
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	store, err := newStore(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Printf("Store initialized and ready (backend=%s).", cfg.StorageBackend)

	blobs, err := newBlobStore(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Printf("Blob store initialized and ready (backend=%s).", cfg.BlobBackend)

	llmProvider, modelName, err := newLLMProvider(appCtx, cfg)
	if err != nil {
		return nil, err
	}

	embedder, err := newEmbedder(appCtx, cfg)
	if err != nil {
		return nil, err
	}

	sessions := session.NewManager(store, blobs)
	chunkCache := cache.New(store, time.Duration(cfg.CacheTTLHours)*time.Hour)
	extractor := extract.NewDocconvExtractor(false)

	orch := orchestrator.New(store, sessions, chunkCache, llmProvider, embedder, extractor, orchestrator.Options{
		ModelName:       modelName,
		EmbedModel:      cfg.EmbedModel,
		RequestTimeout:  time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		DefaultLanguage: cfg.DefaultLanguage,
	})

	server := NewServer(cfg, orch)

	a := &App{
		Store:    store,
		Blobs:    blobs,
		Sessions: sessions,
		Server:   server,
		cfg:      cfg,
	}
	a.startCleanupWorker()
	return a, nil
}

func newStore(ctx context.Context, cfg *config.Config) (core.Store, error) {
	switch cfg.StorageBackend {
	case "database":
		return db.New(ctx, cfg.DatabaseURL)
	case "file":
		return filestore.New(cfg.DataDir)
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}
}

func newBlobStore(ctx context.Context, cfg *config.Config) (core.BlobStore, error) {
	switch cfg.BlobBackend {
	case "s3":
		return objectclient.NewS3Store(ctx, cfg)
	case "local":
		return objectclient.NewLocalStore(filepath.Join(cfg.DataDir, "blobs"))
	default:
		return nil, fmt.Errorf("unknown BLOB_BACKEND %q", cfg.BlobBackend)
	}
}

func newLLMProvider(ctx context.Context, cfg *config.Config) (core.LLMProvider, string, error) {
	switch cfg.LLMProvider {
	case "gemini":
		p, err := llm.NewGeminiLLM(ctx, cfg.AIAPIKey, cfg.GenModel)
		if err != nil {
			return nil, "", fmt.Errorf("init gemini: %w", err)
		}
		return p, cfg.GenModel, nil
	case "vllm":
		return llm.NewVLLMClient(cfg.VLLMEndpoint, cfg.VLLMModel, ""), cfg.VLLMModel, nil
	default:
		return nil, "", fmt.Errorf("unknown LLM_PROVIDER %q", cfg.LLMProvider)
	}
}

// newEmbedder returns nil when no Gemini key is configured; QA then runs
// on lexical retrieval only.
func newEmbedder(ctx context.Context, cfg *config.Config) (core.EmbeddingProvider, error) {
	if cfg.AIAPIKey == "" {
		log.Println("No embedding provider configured; vector retrieval disabled.")
		return nil, nil
	}
	emb, err := llm.NewGeminiEmbedder(ctx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("init embedder: %w", err)
	}
	return emb, nil
}

// startCleanupWorker prunes inactive sessions once an hour.
func (a *App) startCleanupWorker() {
	ctx, cancel := context.WithCancel(context.Background())
	a.stopCleanup = cancel

	ttl := time.Duration(a.cfg.SessionTTLDays) * 24 * time.Hour
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := a.Sessions.CleanupInactive(ctx, ttl); err != nil {
					log.Printf("WARN: session cleanup failed: %v", err)
				}
			}
		}
	}()
}

func (a *App) Close() {
	if a.stopCleanup != nil {
		a.stopCleanup()
	}
	if a.Store != nil {
		_ = a.Store.Close()
	}
}
