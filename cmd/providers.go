package cmd

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spigell/resume-matcher/internal/config"
	"github.com/spigell/resume-matcher/internal/document"
	"github.com/spigell/resume-matcher/internal/embedding"
	"github.com/spigell/resume-matcher/internal/embedding/cohere"
	"github.com/spigell/resume-matcher/internal/embedding/gemini"
	"github.com/spigell/resume-matcher/internal/httpclient"
	"github.com/spigell/resume-matcher/internal/lock"
	"github.com/spigell/resume-matcher/internal/lock/valkeylock"
	"github.com/spigell/resume-matcher/internal/logger"
	"github.com/spigell/resume-matcher/internal/vectorstore"
	"github.com/spigell/resume-matcher/internal/vectorstore/memory"
	"github.com/spigell/resume-matcher/internal/vectorstore/pgvector"
	"github.com/spigell/resume-matcher/internal/vectorstore/qdrant"

	"go.uber.org/zap"
)

// collaborators holds everything a scoring run talks to.
type collaborators struct {
	embedder embedding.Embedder
	store    vectorstore.Store
	locker   lock.Locker
	closers  []func()
}

func (c *collaborators) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

func newCollaborators(ctx context.Context, cfg *config.Config, log *zap.Logger) (*collaborators, error) {
	c := &collaborators{}

	httpClient := httpclient.New(httpclient.Options{
		Timeout:  cfg.HTTP.Timeout,
		RetryMax: cfg.HTTP.MaxRetries,
	}, log.Named("http"))

	embedder, err := newEmbedder(ctx, cfg, httpClient, log)
	if err != nil {
		return nil, fmt.Errorf("building %s embedder: %w", cfg.Embedding.Provider, err)
	}
	c.embedder = embedder

	if err := c.addStore(ctx, cfg, httpClient, log); err != nil {
		c.Close()
		return nil, fmt.Errorf("building %s vector store: %w", cfg.VectorStore.Provider, err)
	}

	if err := c.addLocker(ctx, cfg, log); err != nil {
		c.Close()
		return nil, fmt.Errorf("building collection lock: %w", err)
	}

	return c, nil
}

func newEmbedder(ctx context.Context, cfg *config.Config, httpClient *http.Client, log *zap.Logger) (embedding.Embedder, error) {
	switch cfg.Embedding.Provider {
	case "gemini":
		return gemini.New(ctx, gemini.Config{
			APIKey:     cfg.Gemini.APIKey,
			Model:      cfg.Gemini.Model,
			Dimension:  cfg.Gemini.Dimension,
			MaxRetries: cfg.Gemini.MaxRetries,
		}, logger.WithFields(log, logger.EmbedderFields("gemini", cfg.Gemini.Model)...))
	case "cohere":
		return cohere.New(cohere.Config{
			APIKey:    cfg.Cohere.APIKey,
			Model:     cfg.Cohere.Model,
			BaseURL:   cfg.Cohere.BaseURL,
			Dimension: cfg.Cohere.Dimension,
		}, httpClient, logger.WithFields(log, logger.EmbedderFields("cohere", cfg.Cohere.Model)...))
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Embedding.Provider)
	}
}

func (c *collaborators) addStore(ctx context.Context, cfg *config.Config, httpClient *http.Client, log *zap.Logger) error {
	storeLog := logger.WithFields(log, logger.StoreFields(cfg.VectorStore.Provider, cfg.Collection.Name)...)

	switch cfg.VectorStore.Provider {
	case "qdrant":
		store, err := qdrant.New(qdrant.Config{URL: cfg.Qdrant.URL, APIKey: cfg.Qdrant.APIKey}, httpClient, storeLog)
		if err != nil {
			return err
		}
		c.store = store
	case "pgvector":
		store, err := pgvector.New(ctx, cfg.Postgres.URL, storeLog)
		if err != nil {
			return err
		}
		c.store = store
		c.closers = append(c.closers, store.Close)
	case "memory":
		c.store = memory.New()
	default:
		return fmt.Errorf("unsupported vector store provider: %s", cfg.VectorStore.Provider)
	}
	return nil
}

func (c *collaborators) addLocker(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	if cfg.Lock.Valkey.Address == "" {
		c.locker = lock.Noop{}
		return nil
	}

	locker, err := valkeylock.New(ctx, valkeylock.Config{
		Address:     cfg.Lock.Valkey.Address,
		Password:    cfg.Lock.Valkey.Password,
		TTL:         cfg.Lock.TTL,
		WaitTimeout: cfg.Lock.WaitTimeout,
	}, log.Named("lock"))
	if err != nil {
		return err
	}
	c.locker = locker
	c.closers = append(c.closers, locker.Close)
	return nil
}

// newDocumentSource reads local paths directly and s3:// paths through the S3 client.
// The S3 client is built only when a requested path needs it.
func newDocumentSource(ctx context.Context, cfg *config.Config, paths []string) (document.Source, error) {
	router := document.Router{}

	for _, p := range paths {
		if !document.IsS3Path(p) {
			continue
		}
		remote, err := document.NewS3(ctx, document.S3Config{
			EndpointURL: cfg.S3.EndpointURL,
			Region:      cfg.S3.Region,
			AccessKey:   cfg.S3.AccessKey,
			SecretKey:   cfg.S3.SecretKey,
		})
		if err != nil {
			return nil, err
		}
		router.Remote = remote
		break
	}

	return router, nil
}
