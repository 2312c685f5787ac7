package assistant

import (
	"log/slog"

	"github.com/jinford/portfolio-rag/internal/core/answer"
	"github.com/jinford/portfolio-rag/internal/core/embedding"
	"github.com/jinford/portfolio-rag/internal/core/index"
)

// NewChainFactory は共通の Embedder と Generator を使う RetrievalChain のファクトリを返す
func NewChainFactory(embedder embedding.Embedder, generator answer.Generator, cfg answer.Config, logger *slog.Logger) ChainFactory {
	return func(idx *index.VectorIndex) answer.Chain {
		return answer.NewRetrievalChain(idx, embedder, generator,
			answer.WithConfig(cfg),
			answer.WithLogger(logger),
		)
	}
}
