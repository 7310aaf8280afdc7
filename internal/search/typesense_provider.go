package search

import (
	"context"
	"fmt"

	"github.com/dustinrgood/CivicAide-PolicyAide/internal/domain"
	"github.com/typesense/typesense-go/v4/typesense"
	"github.com/typesense/typesense-go/v4/typesense/api"
)

// TypesenseProvider queries a Typesense collection of jurisdiction
// profiles, prior ordinance text, and census snippets (SPEC_FULL.md
// "C2 Search Gateway — expanded"). Collection layout: documents expose
// `content`, `url`, and `source` string fields that typesense-go's search
// API returns as a generic document map.
type TypesenseProvider struct {
	client     *typesense.Client
	collection string
}

// NewTypesenseProvider constructs a provider against host (e.g.
// "http://localhost:8108") using apiKey, querying collection.
func NewTypesenseProvider(host, apiKey, collection string) *TypesenseProvider {
	client := typesense.NewClient(
		typesense.WithServer(host),
		typesense.WithAPIKey(apiKey),
	)
	return &TypesenseProvider{client: client, collection: collection}
}

func (p *TypesenseProvider) Search(ctx context.Context, query string, maxResults int) ([]domain.ResearchHit, error) {
	if maxResults <= 0 {
		maxResults = 10
	}
	perPage := maxResults

	searchParams := &api.SearchCollectionParams{
		Q:       query,
		QueryBy: "content",
		PerPage: &perPage,
	}

	result, err := p.client.Collection(p.collection).Documents().Search(ctx, searchParams)
	if err != nil {
		return nil, fmt.Errorf("typesense search (collection=%s): %w", p.collection, err)
	}
	if result.Hits == nil {
		return nil, nil
	}

	hits := make([]domain.ResearchHit, 0, len(*result.Hits))
	for _, h := range *result.Hits {
		if h.Document == nil {
			continue
		}
		doc := *h.Document

		hit := domain.ResearchHit{Query: query, Source: p.collection}
		if v, ok := doc["content"].(string); ok {
			hit.Snippet = v
		}
		if v, ok := doc["url"].(string); ok {
			hit.URL = v
		}
		if v, ok := doc["source"].(string); ok {
			hit.Source = v
		}
		hits = append(hits, hit)
	}
	return hits, nil
}
