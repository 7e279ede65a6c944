package vector

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"
)

// QdrantIndex searches a remote Qdrant collection whose numeric point ids are
// row numbers of the local metadata file.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	size       int
	dimensions int
}

// OpenQdrantIndex binds to an existing collection. A missing collection is ErrIndexNotFound.
func OpenQdrantIndex(ctx context.Context, client *qdrant.Client, collection string) (*QdrantIndex, error) {
	exists, err := client.CollectionExists(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("check collection %s: %w", collection, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: collection %s", ErrIndexNotFound, collection)
	}
	info, err := client.GetCollectionInfo(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("get collection %s: %w", collection, err)
	}
	return &QdrantIndex{
		client:     client,
		collection: collection,
		size:       int(info.GetPointsCount()),
		dimensions: int(info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()),
	}, nil
}

// Search queries the collection for the k nearest points.
func (q *QdrantIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	if q.dimensions > 0 && len(query) != q.dimensions {
		return nil, fmt.Errorf("%w: query has %d, collection has %d", ErrDimensionMismatch, len(query), q.dimensions)
	}
	if k <= 0 {
		return nil, nil
	}
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(false),
	})
	if err != nil {
		return nil, fmt.Errorf("query collection %s: %w", q.collection, err)
	}
	results := make([]*VectorResult, 0, len(points))
	for _, p := range points {
		row := int64(-1)
		if p.GetId().GetUuid() == "" {
			row = int64(p.GetId().GetNum())
		}
		results = append(results, &VectorResult{Row: row, Score: float64(p.GetScore())})
	}
	return results, nil
}

// Size returns the point count observed when the collection was opened.
func (q *QdrantIndex) Size() int {
	return q.size
}

// Dimensions returns the collection vector size.
func (q *QdrantIndex) Dimensions() int {
	return q.dimensions
}

// Type returns the index type identifier.
func (q *QdrantIndex) Type() string {
	return string(IndexTypeQdrant)
}

// Close is a no-op; the client is owned by the opener.
func (q *QdrantIndex) Close() error {
	return nil
}

// connectQdrant creates a client and waits for the server to answer a health check.
// Initial interval 500ms, max interval 5s, max elapsed 20s.
func connectQdrant(ctx context.Context, host string, port int) (*qdrant.Client, error) {
	client, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 20 * time.Second

	err = backoff.Retry(func() error {
		_, err := client.HealthCheck(ctx)
		return err
	}, backoff.WithContext(b, ctx))
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("qdrant %s:%d unreachable: %w", host, port, err)
	}
	return client, nil
}
