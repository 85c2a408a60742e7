package retrieval

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.uber.org/zap"

	"github.com/ppiankov/proposalgate/internal/model"
)

// Evidence chunk properties expected on the Weaviate class
const (
	propDocumentID     = "documentId"
	propDocumentName   = "documentName"
	propContent        = "content"
	propPageNumber     = "pageNumber"
	propOrganizationID = "organizationId"
)

// WeaviateRetriever runs nearText searches over the organization's chunk class.
// Weaviate certainty is used as the similarity score.
type WeaviateRetriever struct {
	client *weaviate.Client
	class  string
	logger *zap.Logger
}

// NewWeaviateRetriever connects to rawURL ("http(s)://host:port")
func NewWeaviateRetriever(rawURL, apiKey, class string, logger *zap.Logger) (*WeaviateRetriever, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("invalid weaviate url %q", rawURL)
	}
	scheme := parsed.Scheme
	if scheme == "" {
		scheme = "http"
	}

	cfg := weaviate.Config{
		Host:   parsed.Host,
		Scheme: scheme,
	}
	if apiKey != "" {
		cfg.Headers = map[string]string{"Authorization": "Bearer " + apiKey}
	}

	client, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WeaviateRetriever{client: client, class: class, logger: logger}, nil
}

// Retrieve implements Retriever
func (r *WeaviateRetriever) Retrieve(ctx context.Context, req Request) ([]model.EvidenceChunk, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, nil
	}

	nearText := r.client.GraphQL().NearTextArgBuilder().
		WithConcepts([]string{req.Text})

	fields := []graphql.Field{
		{Name: propDocumentID},
		{Name: propDocumentName},
		{Name: propContent},
		{Name: propPageNumber},
		{Name: "_additional { certainty distance }"},
	}

	query := r.client.GraphQL().Get().
		WithClassName(r.class).
		WithFields(fields...).
		WithNearText(nearText).
		WithLimit(req.TopK)

	if req.Scope != "" {
		query = query.WithWhere(filters.Where().
			WithPath([]string{propOrganizationID}).
			WithOperator(filters.Equal).
			WithValueString(req.Scope))
	}

	result, err := query.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate search: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("weaviate search error: %s", result.Errors[0].Message)
	}

	chunks := parseChunks(result, r.class)
	r.logger.Debug("weaviate search",
		zap.String("kind", req.Kind),
		zap.String("scope", req.Scope),
		zap.Int("results", len(chunks)))
	return sortBySimilarity(chunks, req.TopK), nil
}

func parseChunks(result *models.GraphQLResponse, class string) []model.EvidenceChunk {
	data, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return nil
	}
	objects, ok := data[class].([]interface{})
	if !ok {
		return nil
	}

	chunks := make([]model.EvidenceChunk, 0, len(objects))
	for _, obj := range objects {
		m, ok := obj.(map[string]interface{})
		if !ok {
			continue
		}
		chunk := model.EvidenceChunk{
			DocumentID:   getString(m, propDocumentID),
			DocumentName: getString(m, propDocumentName),
			MatchedText:  getString(m, propContent),
		}
		if page, ok := m[propPageNumber].(float64); ok && page > 0 {
			p := int(page)
			chunk.PageNumber = &p
		}
		if additional, ok := m["_additional"].(map[string]interface{}); ok {
			if certainty, ok := additional["certainty"].(float64); ok {
				chunk.Similarity = certainty
			} else if distance, ok := additional["distance"].(float64); ok {
				// cosine distance in [0,2]
				chunk.Similarity = 1 - distance/2
			}
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
