package cli

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/magi-stack/rin-memory/pkg/adapter"
	"github.com/magi-stack/rin-memory/pkg/policy"
	"github.com/magi-stack/rin-memory/pkg/repository"
	"github.com/magi-stack/rin-memory/pkg/usecase/memory"
	"github.com/magi-stack/rin-memory/pkg/usecase/review"
	"github.com/urfave/cli/v3"
)

// config holds configuration values
type config struct {
	// Store
	backend            string
	qdrantURL          string
	qdrantAPIKey       string
	project            string
	database           string
	pendingCollection  string
	approvedCollection string

	// Embedding
	geminiProject  string
	geminiLocation string
	embeddingModel string
	dimension      int64

	// Ingestion
	autoApprove bool
	policyDir   string
}

// storeFlags returns flags selecting and configuring the vector store
// backend with destination config
func storeFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "backend",
			Aliases:     []string{"b"},
			Usage:       "Vector store backend (chromem, qdrant, firestore)",
			Value:       "chromem",
			Sources:     cli.EnvVars("RIN_BACKEND"),
			Destination: &cfg.backend,
		},
		&cli.StringFlag{
			Name:        "qdrant-url",
			Usage:       "Qdrant base URL",
			Value:       "http://localhost:6333",
			Sources:     cli.EnvVars("QDRANT_URL"),
			Destination: &cfg.qdrantURL,
		},
		&cli.StringFlag{
			Name:        "qdrant-api-key",
			Usage:       "Qdrant API key",
			Sources:     cli.EnvVars("QDRANT_API_KEY"),
			Destination: &cfg.qdrantAPIKey,
		},
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID for Firestore",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
		&cli.StringFlag{
			Name:        "pending-collection",
			Usage:       "Collection holding memories awaiting review",
			Value:       repository.DefaultPendingCollection,
			Sources:     cli.EnvVars("RIN_PENDING_COLLECTION"),
			Destination: &cfg.pendingCollection,
		},
		&cli.StringFlag{
			Name:        "approved-collection",
			Usage:       "Collection holding approved memories",
			Value:       repository.DefaultApprovedCollection,
			Sources:     cli.EnvVars("RIN_APPROVED_COLLECTION"),
			Destination: &cfg.approvedCollection,
		},
	}
}

// embedFlags returns flags for embedding configuration with destination
// config
func embedFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "embedding-model",
			Usage:       "Embedding model name",
			Value:       "gemini-embedding-001",
			Sources:     cli.EnvVars("RIN_EMBEDDING_MODEL"),
			Destination: &cfg.embeddingModel,
		},
		&cli.IntFlag{
			Name:        "dimension",
			Usage:       "Embedding vector dimension",
			Value:       768,
			Sources:     cli.EnvVars("RIN_EMBEDDING_DIMENSION"),
			Destination: &cfg.dimension,
		},
	}
}

// ingestFlags returns flags controlling the review gate with destination
// config
func ingestFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:        "auto-approve",
			Usage:       "Skip the review queue and store memories as approved",
			Sources:     cli.EnvVars("RIN_AUTO_APPROVE"),
			Destination: &cfg.autoApprove,
		},
		&cli.StringFlag{
			Name:        "policy-dir",
			Usage:       "Directory of Rego policies deciding auto-approval",
			Sources:     cli.EnvVars("RIN_POLICY_DIR"),
			Destination: &cfg.policyDir,
		},
	}
}

// newStore creates the vector store selected by --backend
func (cfg *config) newStore(ctx context.Context) (repository.VectorStore, error) {
	switch cfg.backend {
	case "chromem":
		return repository.NewChromem(), nil

	case "qdrant":
		if cfg.qdrantURL == "" {
			return nil, goerr.New("qdrant-url is required")
		}
		var opts []repository.QdrantOption
		if cfg.qdrantAPIKey != "" {
			opts = append(opts, repository.WithQdrantAPIKey(cfg.qdrantAPIKey))
		}
		return repository.NewQdrant(cfg.qdrantURL, opts...), nil

	case "firestore":
		if cfg.project == "" {
			return nil, goerr.New("project is required")
		}
		if cfg.database == "" {
			return nil, goerr.New("database is required")
		}
		store, err := repository.NewFirestore(ctx, cfg.project, cfg.database)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create firestore store")
		}
		return store, nil

	default:
		return nil, goerr.New("unknown backend", goerr.V("backend", cfg.backend))
	}
}

// newEmbedder creates a Gemini embedder instance
func (cfg *config) newEmbedder(ctx context.Context) (adapter.Embedder, error) {
	if cfg.geminiProject == "" {
		return nil, goerr.New("gemini-project is required")
	}
	if cfg.geminiLocation == "" {
		return nil, goerr.New("gemini-location is required")
	}

	embedder, err := adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation,
		adapter.WithEmbeddingModel(cfg.embeddingModel),
		adapter.WithDimension(int(cfg.dimension)),
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create embedder")
	}
	return embedder, nil
}

// newMemory wires the ingestion usecase from the configured store,
// embedder and policy, and ensures the collections exist.
func (cfg *config) newMemory(ctx context.Context) (*memory.UseCase, error) {
	store, err := cfg.newStore(ctx)
	if err != nil {
		return nil, err
	}

	embedder, err := cfg.newEmbedder(ctx)
	if err != nil {
		return nil, err
	}

	opts := []memory.Option{
		memory.WithCollections(cfg.pendingCollection, cfg.approvedCollection),
		memory.WithAutoApprove(cfg.autoApprove),
	}

	if cfg.policyDir != "" {
		p, err := policy.Load(ctx, cfg.policyDir)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to load policy")
		}
		opts = append(opts, memory.WithPolicy(p))
	}

	uc := memory.New(store, embedder, opts...)
	if err := uc.Init(ctx); err != nil {
		return nil, goerr.Wrap(err, "failed to initialize collections")
	}
	return uc, nil
}

// newReview wires the review usecase
func (cfg *config) newReview(ctx context.Context) (*review.UseCase, error) {
	store, err := cfg.newStore(ctx)
	if err != nil {
		return nil, err
	}
	return review.New(store, review.WithCollections(cfg.pendingCollection, cfg.approvedCollection)), nil
}

const timeFmt = time.RFC3339
