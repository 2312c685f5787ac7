package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jinford/portfolio-rag/internal/core/answer"
	"github.com/jinford/portfolio-rag/internal/core/embedding"
	"github.com/jinford/portfolio-rag/internal/core/index"
	"github.com/jinford/portfolio-rag/internal/core/ingestion"
	"github.com/jinford/portfolio-rag/internal/core/ingestion/chunk"
	"github.com/jinford/portfolio-rag/internal/core/store"
)

// DefaultBuildTimeout はバックグラウンドビルドのタイムアウト
const DefaultBuildTimeout = 5 * time.Minute

// ErrBuildInProgress は同じポートフォリオのビルドが実行中の場合に返されます
var ErrBuildInProgress = errors.New("index build already in progress")

// DocumentLoader は入力からドキュメントを読み込むインターフェース
type DocumentLoader interface {
	Load(ctx context.Context, in ingestion.Input) ([]ingestion.Document, error)
}

// Splitter はドキュメントをチャンクに分割するインターフェース
type Splitter interface {
	Split(docs []ingestion.Document) []chunk.Chunk
}

// IndexRepository はインデックスの永続化を担うインターフェース
type IndexRepository interface {
	IndexLoader
	Save(ctx context.Context, portfolioID string, idx *index.VectorIndex) error
	Delete(ctx context.Context, portfolioID string) error
}

// BuildReport はインデックス構築の結果
type BuildReport struct {
	PortfolioID string
	Documents   int
	Chunks      int
	Tokens      int
	Dimension   int
	Duration    time.Duration
}

// BuildState はポートフォリオのビルド状態
type BuildState string

const (
	StateNotProcessed BuildState = "not_processed"
	StateProcessing   BuildState = "processing"
	StateReady        BuildState = "ready"
	StateFailed       BuildState = "failed"
)

// BuildStatus はポートフォリオの最新のビルド状況
type BuildStatus struct {
	PortfolioID string
	JobID       uuid.UUID
	State       BuildState
	Error       string
	Report      *BuildReport
	UpdatedAt   time.Time
}

// Service はポートフォリオの学習と質問応答をまとめるファサード
// プロセス起動時に1度だけ作成し、リクエストハンドラに渡して使う
type Service struct {
	loader         DocumentLoader
	splitter       Splitter
	embedder       embedding.Embedder
	indexes        IndexRepository
	factory        ChainFactory
	cache          *ChainCache
	embeddingModel string
	buildTimeout   time.Duration
	logger         *slog.Logger

	mu       sync.Mutex
	statuses map[string]*BuildStatus
	wg       sync.WaitGroup
}

// ServiceOption は Service のオプション設定
type ServiceOption func(*Service)

// WithEmbeddingModel はインデックスに記録するEmbeddingモデル名を設定する
func WithEmbeddingModel(model string) ServiceOption {
	return func(s *Service) {
		s.embeddingModel = model
	}
}

// WithBuildTimeout はバックグラウンドビルドのタイムアウトを設定する
func WithBuildTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.buildTimeout = d
		}
	}
}

// WithServiceLogger は Service にロガーを設定する
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService は新しい Service を作成する
func NewService(
	loader DocumentLoader,
	splitter Splitter,
	embedder embedding.Embedder,
	indexes IndexRepository,
	factory ChainFactory,
	cache *ChainCache,
	opts ...ServiceOption,
) *Service {
	s := &Service{
		loader:       loader,
		splitter:     splitter,
		embedder:     embedder,
		indexes:      indexes,
		factory:      factory,
		cache:        cache,
		buildTimeout: DefaultBuildTimeout,
		logger:       slog.Default(),
		statuses:     make(map[string]*BuildStatus),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// BuildIndex は入力からインデックスを構築して保存し、キャッシュのチェーンを置き換える
// 失敗した場合、保存済みインデックスとキャッシュは変更されない
func (s *Service) BuildIndex(ctx context.Context, portfolioID string, input ingestion.Input) (*BuildReport, error) {
	jobID, err := s.begin(portfolioID)
	if err != nil {
		return nil, err
	}
	report, err := s.build(ctx, portfolioID, input)
	s.finish(portfolioID, jobID, report, err)
	return report, err
}

// BuildIndexAsync はリクエストのコンテキストから切り離してビルドを開始し、ジョブIDを即座に返す
// 進捗は Status で確認する
func (s *Service) BuildIndexAsync(portfolioID string, input ingestion.Input) (uuid.UUID, error) {
	jobID, err := s.begin(portfolioID)
	if err != nil {
		return uuid.Nil, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.buildTimeout)
		defer cancel()

		report, err := s.build(ctx, portfolioID, input)
		s.finish(portfolioID, jobID, report, err)
	}()

	s.logger.Info("index build scheduled", "portfolio_id", portfolioID, "job_id", jobID)
	return jobID, nil
}

// Status はポートフォリオの最新のビルド状況を返す
func (s *Service) Status(portfolioID string) BuildStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.statuses[portfolioID]; ok {
		return *st
	}
	state := StateNotProcessed
	if s.cache.Contains(portfolioID) {
		state = StateReady
	}
	return BuildStatus{PortfolioID: portfolioID, State: state}
}

// Answer はポートフォリオのチェーンで質問に回答する
// 学習済みインデックスがない場合は ErrNotFound、それ以外の失敗は *answer.AnswerError を返す
func (s *Service) Answer(ctx context.Context, portfolioID, question string) (string, error) {
	if _, err := store.Key(portfolioID); err != nil {
		// キーにできないIDにはインデックスが存在しえない
		return "", fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	chain, err := s.cache.GetOrBuild(ctx, portfolioID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", err
		}
		return "", &answer.AnswerError{Kind: answer.KindUnavailable, Step: "load", Err: err}
	}
	return chain.Query(ctx, question)
}

// Invalidate はポートフォリオのチェーンをキャッシュから取り除く
// 次回の質問時に保存済みインデックスから復元される
func (s *Service) Invalidate(portfolioID string) {
	s.cache.Invalidate(portfolioID)
}

// Delete は保存済みインデックスとキャッシュを削除する
// 同じポートフォリオのビルドが処理中の場合は ErrBuildInProgress を返す
func (s *Service) Delete(ctx context.Context, portfolioID string) error {
	s.mu.Lock()
	if st, ok := s.statuses[portfolioID]; ok && st.State == StateProcessing {
		s.mu.Unlock()
		return fmt.Errorf("%w: portfolio %s (job %s)", ErrBuildInProgress, portfolioID, st.JobID)
	}
	delete(s.statuses, portfolioID)
	s.mu.Unlock()

	if err := s.indexes.Delete(ctx, portfolioID); err != nil {
		return err
	}
	s.cache.Invalidate(portfolioID)
	return nil
}

// Wait は実行中のバックグラウンドビルドが全て終了するまで待つ
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) build(ctx context.Context, portfolioID string, input ingestion.Input) (*BuildReport, error) {
	start := time.Now()
	logger := s.logger.With("portfolio_id", portfolioID)

	docs, err := s.loader.Load(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}

	chunks := s.splitter.Split(docs)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("failed to chunk documents: %w", ingestion.ErrNoContent)
	}

	texts := make([]string, len(chunks))
	tokens := 0
	for i, c := range chunks {
		texts[i] = c.Text
		if n, err := strconv.Atoi(c.Metadata[chunk.MetaTokens]); err == nil {
			tokens += n
		}
	}

	vectors, err := s.embedder.EmbedMany(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed chunks: %w", err)
	}

	idx, err := index.Build(chunks, vectors, index.WithModel(s.embeddingModel))
	if err != nil {
		return nil, fmt.Errorf("failed to build index: %w", err)
	}

	// 永続化に成功してからキャッシュを差し替える
	if err := s.indexes.Save(ctx, portfolioID, idx); err != nil {
		return nil, fmt.Errorf("failed to save index: %w", err)
	}
	s.cache.Put(portfolioID, s.factory(idx))

	report := &BuildReport{
		PortfolioID: portfolioID,
		Documents:   len(docs),
		Chunks:      len(chunks),
		Tokens:      tokens,
		Dimension:   idx.Dimension(),
		Duration:    time.Since(start),
	}
	logger.Info("index built",
		"documents", report.Documents,
		"chunks", report.Chunks,
		"tokens", report.Tokens,
		"dimension", report.Dimension,
		"duration_ms", report.Duration.Milliseconds(),
	)
	return report, nil
}

// begin はポートフォリオを処理中にする。既に処理中なら ErrBuildInProgress を返す
func (s *Service) begin(portfolioID string) (uuid.UUID, error) {
	if _, err := store.Key(portfolioID); err != nil {
		return uuid.Nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.statuses[portfolioID]; ok && st.State == StateProcessing {
		return uuid.Nil, fmt.Errorf("%w: portfolio %s (job %s)", ErrBuildInProgress, portfolioID, st.JobID)
	}

	jobID := uuid.New()
	s.statuses[portfolioID] = &BuildStatus{
		PortfolioID: portfolioID,
		JobID:       jobID,
		State:       StateProcessing,
		UpdatedAt:   time.Now(),
	}
	return jobID, nil
}

func (s *Service) finish(portfolioID string, jobID uuid.UUID, report *BuildReport, err error) {
	st := &BuildStatus{
		PortfolioID: portfolioID,
		JobID:       jobID,
		State:       StateReady,
		Report:      report,
		UpdatedAt:   time.Now(),
	}
	if err != nil {
		st.State = StateFailed
		st.Error = err.Error()
		st.Report = nil
		s.logger.Error("index build failed",
			"portfolio_id", portfolioID,
			"job_id", jobID,
			"error", err,
		)
	}

	s.mu.Lock()
	s.statuses[portfolioID] = st
	s.mu.Unlock()
}
