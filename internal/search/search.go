// Package search ranks catalogue products with an Elasticsearch kNN query on
// text embeddings.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/codewandler/shopassist-go/shop"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/tidwall/gjson"
)

const (
	DefaultIndex         = "walmart_products"
	DefaultNumCandidates = 100
	embeddingField       = "embedding"
)

var sourceFields = []string{"name", "brand", "category", "price", "size", "department", "subcategory"}

// Embedder turns a query into the vector space of the index.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

type Config struct {
	Addresses     []string
	Username      string
	Password      string
	Index         string
	NumCandidates int
}

// Products implements shop.ProductSearch.
type Products struct {
	es            *elasticsearch.Client
	embedder      Embedder
	index         string
	numCandidates int
	logger        *slog.Logger
}

func New(cfg Config, embedder Embedder, logger *slog.Logger) (*Products, error) {
	if embedder == nil {
		return nil, errors.New("search: embedder is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("search: create client: %w", err)
	}

	p := &Products{
		es:            es,
		embedder:      embedder,
		index:         cfg.Index,
		numCandidates: cfg.NumCandidates,
		logger:        logger,
	}
	if p.index == "" {
		p.index = DefaultIndex
	}
	if p.numCandidates <= 0 {
		p.numCandidates = DefaultNumCandidates
	}
	return p, nil
}

type knnQuery struct {
	KNN    knn      `json:"knn"`
	Source []string `json:"_source"`
}

type knn struct {
	Field         string    `json:"field"`
	QueryVector   []float64 `json:"query_vector"`
	K             int       `json:"k"`
	NumCandidates int       `json:"num_candidates"`
}

// Search returns up to topK products, best match first.
func (p *Products) Search(ctx context.Context, query string, topK int) ([]shop.Product, error) {
	if topK <= 0 {
		return nil, nil
	}
	vector, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search: embed query: %w", err)
	}

	body, err := json.Marshal(knnQuery{
		KNN: knn{
			Field:         embeddingField,
			QueryVector:   vector,
			K:             topK,
			NumCandidates: max(p.numCandidates, topK),
		},
		Source: sourceFields,
	})
	if err != nil {
		return nil, err
	}

	res, err := p.es.Search(
		p.es.Search.WithContext(ctx),
		p.es.Search.WithIndex(p.index),
		p.es.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("search: read response: %w", err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("search: %s: %s", res.Status(), gjson.GetBytes(data, "error.reason").String())
	}

	products := parseHits(data)
	p.logger.Debug("product search",
		slog.String("query", query),
		slog.Int("hits", len(products)),
	)
	return products, nil
}

// parseHits maps a search response to products. Missing text attributes are
// reported as "Unknown".
func parseHits(data []byte) []shop.Product {
	hits := gjson.GetBytes(data, "hits.hits").Array()
	out := make([]shop.Product, 0, len(hits))
	for _, h := range hits {
		src := h.Get("_source")
		out = append(out, shop.Product{
			Name:        src.Get("name").String(),
			Brand:       orUnknown(src.Get("brand")),
			Category:    orUnknown(src.Get("category")),
			Price:       src.Get("price").Float(),
			Size:        orUnknown(src.Get("size")),
			Department:  orUnknown(src.Get("department")),
			Subcategory: orUnknown(src.Get("subcategory")),
			Score:       h.Get("_score").Float(),
		})
	}
	return out
}

func orUnknown(r gjson.Result) string {
	if s := r.String(); s != "" {
		return s
	}
	return "Unknown"
}

var _ shop.ProductSearch = (*Products)(nil)
