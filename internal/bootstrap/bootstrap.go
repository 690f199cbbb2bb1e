// Package bootstrap builds the configured backends shared by the API server
// and the maintenance commands.
package bootstrap

import (
	"context"
	"fmt"

	"stager/internal/adapter/repo"
	"stager/internal/blob"
	"stager/internal/domain"
	"stager/internal/imageprep"
	"stager/internal/infra"
	"stager/internal/lifecycle"
	"stager/internal/providers/openai"
	"stager/internal/providers/synthetic"
	"stager/internal/storage"
	"stager/internal/transform"
)

// OpenStore connects the job store selected by STORE_DRIVER. The returned
// closer releases its connections.
func OpenStore(ctx context.Context, cfg *infra.Config, logger infra.Logger) (domain.JobStore, func(), error) {
	switch cfg.StoreDriver {
	case infra.StoreRedis:
		client, err := infra.NewRedisClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		logger.Info().Str("driver", cfg.StoreDriver).Str("prefix", cfg.RedisKeyPrefix).Msg("job store ready")
		return repo.NewRedisJobStore(client, cfg.RedisKeyPrefix), func() { _ = client.Close() }, nil

	case infra.StorePostgres:
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		store := repo.NewJobRepository(infra.NewSQLRunner(pool, logger))
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate job store: %w", err)
		}
		logger.Info().Str("driver", cfg.StoreDriver).Msg("job store ready")
		return store, pool.Close, nil

	default:
		logger.Warn().Msg("using in-memory job store; jobs are lost on restart")
		return repo.NewMemoryJobStore(), func() {}, nil
	}
}

// OpenBlobs builds the blob gateway selected by BLOB_DRIVER.
func OpenBlobs(ctx context.Context, cfg *infra.Config, logger infra.Logger) (*blob.Gateway, error) {
	switch cfg.BlobDriver {
	case infra.BlobS3:
		client, err := infra.NewS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		uploads, err := storage.NewS3Store(client, cfg.S3UploadsBucket)
		if err != nil {
			return nil, err
		}
		outputs, err := storage.NewS3Store(client, cfg.S3OutputsBucket)
		if err != nil {
			return nil, err
		}
		logger.Info().
			Str("uploads", uploads.Bucket()).
			Str("outputs", outputs.Bucket()).
			Msg("blob storage: s3")
		return blob.NewGateway(uploads, outputs), nil

	default:
		fs, err := storage.NewFileStore(cfg.StoragePath)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("path", fs.BasePath()).Msg("blob storage: filesystem")
		return blob.NewGateway(fs, fs), nil
	}
}

// NewInvoker builds the transform provider selected by TRANSFORM_PROVIDER.
func NewInvoker(cfg *infra.Config, logger *infra.Logger) (transform.Invoker, error) {
	switch cfg.TransformProvider {
	case infra.ProviderOpenAI:
		client, err := openai.NewClient(openai.Options{
			APIKey:       cfg.OpenAIAPIKey,
			BaseURL:      cfg.OpenAIBaseURL,
			Organization: cfg.OpenAIOrgID,
			ImageModel:   cfg.OpenAIImageModel,
			VisionModel:  cfg.OpenAIVisionModel,
			Logger:       logger,
		})
		if err != nil {
			return nil, err
		}
		size := cfg.PreprocessSize
		if size <= 0 {
			size = imageprep.DefaultSize
		}
		return transform.NewOpenAI(client, transform.OpenAIOptions{
			Analyze: cfg.TransformAnalyze,
			Mask:    cfg.TransformMask,
			Size:    fmt.Sprintf("%dx%d", size, size),
			Logger:  logger,
		}), nil
	default:
		return transform.NewSynthetic(synthetic.NewClient(synthetic.Options{Logger: logger})), nil
	}
}

// NewPreprocessor returns nil when preprocessing is disabled.
func NewPreprocessor(cfg *infra.Config) lifecycle.Preprocessor {
	if !cfg.PreprocessEnabled {
		return nil
	}
	return imageprep.Preprocessor{Size: cfg.PreprocessSize}
}

// Policy maps configuration onto lifecycle tunables.
func Policy(cfg *infra.Config) (lifecycle.Policy, error) {
	policy := lifecycle.Policy{
		MaxAge:          cfg.JobMaxAge,
		PipelineTimeout: cfg.PipelineTimeout,
		StuckAfter:      cfg.StuckJobAfter,
	}
	if cfg.TransformPrompt != "" {
		prompt, err := transform.ParsePrompt(cfg.TransformPrompt)
		if err != nil {
			return policy, fmt.Errorf("TRANSFORM_PROMPT: %w", err)
		}
		policy.Prompt = prompt
	}
	return policy, nil
}
