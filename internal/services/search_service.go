package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/gabrielrondon/pdf-industrial-pipeline-sub003/internal/core"
	"github.com/gabrielrondon/pdf-industrial-pipeline-sub003/internal/models"
)

const (
	// MethodSemantic tags results ranked by vector similarity.
	MethodSemantic = "semantic_search"
	// MethodText tags results from the lexical fallback.
	MethodText = "text_search"

	// DefaultLimit and DefaultThreshold apply when the caller leaves them unset.
	DefaultLimit     = 10
	DefaultThreshold = 0.7

	// placeholderSimilarity is assigned to lexical matches, for which no
	// real similarity score is computable.
	placeholderSimilarity = 0.5
)

// SearchRequest carries one query. DocumentIDs optionally restricts the
// search; a zero Limit selects the default. Threshold is a pointer so an
// explicit 0 (include everything) stays distinct from unset.
type SearchRequest struct {
	Query       string
	DocumentIDs []string
	Limit       int
	Threshold   *float64
}

// SearchResponse is the uniform result shape for both paths. SearchMethod
// tells callers which path produced the results; Message explains empty
// result sets, which are a normal outcome.
type SearchResponse struct {
	Results      []models.SearchResult `json:"results"`
	SearchMethod string                `json:"search_method"`
	Message      string                `json:"message,omitempty"`
}

// searchStrategy is one of the two mutually exclusive execution paths.
type searchStrategy interface {
	search(ctx context.Context, req SearchRequest) (*SearchResponse, error)
}

// SearchService answers free-text queries over stored chunks. The
// strategy is selected once at construction time: semantic when an
// embedding provider is configured, lexical otherwise.
type SearchService struct {
	strategy searchStrategy
}

func NewSearchService(db core.DbClient, embedder core.EmbeddingProvider, log *zap.Logger) *SearchService {
	if embedder != nil {
		return &SearchService{strategy: &semanticStrategy{db: db, embedder: embedder, log: log}}
	}
	log.Info("no embedding provider configured, search will use lexical fallback")
	return &SearchService{strategy: &lexicalStrategy{db: db, log: log}}
}

func (s *SearchService) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	if req.Query == "" {
		return nil, errors.New("query must not be empty")
	}
	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}
	if req.Threshold == nil {
		d := DefaultThreshold
		req.Threshold = &d
	}
	return s.strategy.search(ctx, req)
}

// semanticStrategy embeds the query and ranks stored chunk vectors by
// cosine similarity.
type semanticStrategy struct {
	db       core.DbClient
	embedder core.EmbeddingProvider
	log      *zap.Logger
}

func (s *semanticStrategy) search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	vecs, err := s.embedder.EmbedTexts(ctx, []string{req.Query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) == 0 {
		return nil, errors.New("embedding provider returned no query vector")
	}
	queryVec := vecs[0]

	candidates, err := s.db.ListEmbeddedChunks(ctx, req.DocumentIDs)
	if err != nil {
		return nil, fmt.Errorf("load embeddings: %w", err)
	}
	if len(candidates) == 0 {
		return &SearchResponse{
			Results:      []models.SearchResult{},
			SearchMethod: MethodSemantic,
			Message:      "no embeddings available for the requested documents",
		}, nil
	}

	results := make([]models.SearchResult, 0, len(candidates))
	for _, cand := range candidates {
		sim := cosineSimilarity(queryVec, cand.Vector)
		if sim < *req.Threshold {
			continue
		}
		results = append(results, toResult(cand, sim))
	}
	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Similarity > results[b].Similarity
	})
	if len(results) > req.Limit {
		results = results[:req.Limit]
	}

	resp := &SearchResponse{Results: results, SearchMethod: MethodSemantic}
	if len(results) == 0 {
		resp.Message = "no results above the similarity threshold"
	}
	return resp, nil
}

// lexicalStrategy matches chunk content textually and assigns every match
// a fixed placeholder similarity, ordered by chunk size.
type lexicalStrategy struct {
	db  core.DbClient
	log *zap.Logger
}

func (s *lexicalStrategy) search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	candidates, err := s.db.MatchChunksByText(ctx, req.Query, req.DocumentIDs, req.Limit)
	if err != nil {
		return nil, fmt.Errorf("text match: %w", err)
	}

	results := make([]models.SearchResult, 0, len(candidates))
	for _, cand := range candidates {
		results = append(results, toResult(cand, placeholderSimilarity))
	}

	resp := &SearchResponse{Results: results, SearchMethod: MethodText}
	if len(results) == 0 {
		resp.Message = "no chunks matched the query text"
	}
	return resp, nil
}

func toResult(cand models.SearchCandidate, similarity float64) models.SearchResult {
	return models.SearchResult{
		ChunkID:    cand.ChunkID,
		Content:    cand.Content,
		Similarity: similarity,
		WordCount:  cand.WordCount,
		PageStart:  cand.PageStart,
		PageEnd:    cand.PageEnd,
		Document: models.DocumentRef{
			ID:   cand.DocumentID,
			Name: cand.DocumentName,
			Type: cand.DocumentType,
		},
	}
}

// cosineSimilarity is the dot product divided by the product of the two
// vectors' Euclidean norms, defined as 0 when either norm is 0. Vectors
// of different lengths score 0: dimensions are enforced at write time,
// so a mismatch here is abnormal and must not rank.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := 0; i < len(a); i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
