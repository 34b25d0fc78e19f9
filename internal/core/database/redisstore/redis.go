// Package redisstore keeps a collection in Redis hashes indexed by a
// RediSearch HNSW vector index. Metadata keys are indexed as exact-match TAG
// fields so filters run inside the KNN query.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/markdave123-py/Ledgerlens/internal/core/filter"
	"github.com/markdave123-py/Ledgerlens/internal/core/vectormath"
	"github.com/markdave123-py/Ledgerlens/internal/internalerr"
	"github.com/markdave123-py/Ledgerlens/internal/models"
)

const (
	defaultEFConstruction = 200
	defaultM              = 16

	fieldText       = "text"
	fieldEmbedding  = "embedding"
	fieldMetadata   = "metadata"
	fieldDocumentID = "document_id"
	fieldSeq        = "seq"
	fieldDist       = "dist"

	tagSeparator = "\x1f"
)

// Config holds connection and index settings.
type Config struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	Collection string
}

// Store implements core.VectorCollection on Redis Stack.
type Store struct {
	client     *redis.Client
	collection string

	mu  sync.Mutex
	dim int // cached once the index exists
}

// New connects to Redis. The index is created on first write, when the
// embedding dimension is known.
func New(ctx context.Context, cfg Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
		Protocol: 2,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: redis %s: %v", internalerr.ErrStoreUnavailable, cfg.Addr, err)
	}
	return &Store{client: client, collection: cfg.Collection}, nil
}

func (s *Store) Name() string { return s.collection }

func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *Store) indexName() string { return s.collection + ":idx" }
func (s *Store) keyPrefix() string { return s.collection + ":unit:" }
func (s *Store) metaKey() string   { return s.collection + ":meta" }
func (s *Store) seqKey() string    { return s.collection + ":seq" }

// collectionDim returns the stored dimension, or 0 before the first write.
func (s *Store) collectionDim(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dim > 0 {
		return s.dim, nil
	}
	v, err := s.client.HGet(ctx, s.metaKey(), "dim").Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	s.dim = v
	return v, nil
}

// ensureIndex records the dimension and creates the index on first use.
func (s *Store) ensureIndex(ctx context.Context, dim int) error {
	stored, err := s.collectionDim(ctx)
	if err != nil {
		return err
	}
	if stored != 0 {
		if stored != dim {
			return fmt.Errorf("%w: collection %s has %d dimensions, units have %d", internalerr.ErrDimensionMismatch, s.collection, stored, dim)
		}
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	set, err := s.client.HSetNX(ctx, s.metaKey(), "dim", dim).Result()
	if err != nil {
		return err
	}
	if !set {
		s.dim = 0
		v, err := s.client.HGet(ctx, s.metaKey(), "dim").Int()
		if err != nil {
			return err
		}
		if v != dim {
			return fmt.Errorf("%w: collection %s has %d dimensions, units have %d", internalerr.ErrDimensionMismatch, s.collection, v, dim)
		}
		s.dim = v
		return nil
	}

	if _, err := s.client.Do(ctx, createIndexArgs(s.indexName(), s.keyPrefix(), dim)...).Result(); err != nil &&
		!strings.Contains(err.Error(), "Index already exists") {
		return fmt.Errorf("failed to create index: %w", err)
	}
	s.dim = dim
	return nil
}

func createIndexArgs(index, prefix string, dim int) []any {
	args := []any{"FT.CREATE", index,
		"ON", "HASH",
		"PREFIX", "1", prefix,
		"SCHEMA",
		fieldEmbedding, "VECTOR", "HNSW", "6",
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(dim),
		"DISTANCE_METRIC", "COSINE",
		"EF_CONSTRUCTION", strconv.Itoa(defaultEFConstruction),
		"M", strconv.Itoa(defaultM),
		fieldSeq, "NUMERIC", "SORTABLE",
	}
	for _, k := range models.MetadataKeys {
		args = append(args, k, "TAG", "SEPARATOR", tagSeparator, "CASESENSITIVE")
	}
	return args
}

// Upsert writes the batch in one MULTI/EXEC, watching every key so an
// ownership check cannot race a concurrent writer.
func (s *Store) Upsert(ctx context.Context, units []models.RetrievableUnit) error {
	if len(units) == 0 {
		return nil
	}
	dim, err := models.ValidateUnits(units)
	if err != nil {
		return err
	}
	if err := s.ensureIndex(ctx, dim); err != nil {
		return err
	}

	last, err := s.client.IncrBy(ctx, s.seqKey(), int64(len(units))).Result()
	if err != nil {
		return err
	}
	firstSeq := last - int64(len(units)) + 1

	keys := make([]string, len(units))
	for i, u := range units {
		keys[i] = s.keyPrefix() + u.ID
	}

	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		pipe := tx.Pipeline()
		owners := make([]*redis.SliceCmd, len(keys))
		for i, k := range keys {
			owners[i] = pipe.HMGet(ctx, k, fieldDocumentID, fieldSeq)
		}
		if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		seqs := make([]int64, len(units))
		for i, cmd := range owners {
			vals := cmd.Val()
			seqs[i] = firstSeq + int64(i)
			if len(vals) == 2 && vals[0] != nil {
				if owner, _ := vals[0].(string); owner != units[i].DocumentID {
					return fmt.Errorf("%w: %s", internalerr.ErrDuplicateID, units[i].ID)
				}
				if prev, err := strconv.ParseInt(fmt.Sprint(vals[1]), 10, 64); err == nil {
					seqs[i] = prev
				}
			}
		}

		_, err := tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			for i, u := range units {
				fields, err := hashFields(u, seqs[i])
				if err != nil {
					return err
				}
				p.Del(ctx, keys[i])
				p.HSet(ctx, keys[i], fields...)
			}
			return nil
		})
		return err
	}, keys...)
}

func hashFields(u models.RetrievableUnit, seq int64) ([]any, error) {
	md, err := json.Marshal(u.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata for %s: %w", u.ID, err)
	}
	fields := []any{
		fieldText, u.Text,
		fieldEmbedding, vectormath.Encode(u.Embedding),
		fieldMetadata, string(md),
		fieldDocumentID, u.DocumentID,
		fieldSeq, seq,
	}
	for _, k := range models.MetadataKeys {
		if v, ok := u.Metadata[k]; ok {
			fields = append(fields, k, v)
		}
	}
	return fields, nil
}

// Query runs a filtered KNN search. Equal distances keep insertion order.
func (s *Store) Query(ctx context.Context, embedding []float32, k int, where filter.Expr) ([]models.ScoredUnit, error) {
	pre, err := CompileFilter(where)
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}
	dim, err := s.collectionDim(ctx)
	if err != nil {
		return nil, err
	}
	if dim == 0 {
		return nil, nil
	}
	if dim != len(embedding) {
		return nil, fmt.Errorf("%w: collection %s has %d dimensions, query has %d", internalerr.ErrDimensionMismatch, s.collection, dim, len(embedding))
	}

	q := fmt.Sprintf("(%s)=>[KNN %d @%s $vec AS %s]", pre, k, fieldEmbedding, fieldDist)
	res, err := s.client.Do(ctx, "FT.SEARCH", s.indexName(), q,
		"PARAMS", "2", "vec", vectormath.Encode(embedding),
		"SORTBY", fieldDist,
		"RETURN", "5", fieldText, fieldMetadata, fieldDocumentID, fieldSeq, fieldDist,
		"LIMIT", "0", strconv.Itoa(k),
		"DIALECT", "2",
	).Result()
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	return parseSearchReply(res, s.keyPrefix())
}

type hit struct {
	unit models.ScoredUnit
	seq  int64
}

// parseSearchReply decodes a RESP2 FT.SEARCH reply: a total followed by
// (key, [field, value, ...]) pairs.
func parseSearchReply(res any, prefix string) ([]models.ScoredUnit, error) {
	values, ok := res.([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected search reply %T", res)
	}
	var hits []hit
	for i := 1; i+1 < len(values); i += 2 {
		key, _ := values[i].(string)
		fields, ok := values[i+1].([]any)
		if !ok {
			continue
		}
		h := hit{unit: models.ScoredUnit{Unit: models.RetrievableUnit{ID: strings.TrimPrefix(key, prefix)}}}
		for j := 0; j+1 < len(fields); j += 2 {
			name, _ := fields[j].(string)
			val := fmt.Sprint(fields[j+1])
			switch name {
			case fieldText:
				h.unit.Unit.Text = val
			case fieldDocumentID:
				h.unit.Unit.DocumentID = val
			case fieldMetadata:
				if err := json.Unmarshal([]byte(val), &h.unit.Unit.Metadata); err != nil {
					return nil, fmt.Errorf("decode metadata for %s: %w", key, err)
				}
			case fieldSeq:
				h.seq, _ = strconv.ParseInt(val, 10, 64)
			case fieldDist:
				d, err := strconv.ParseFloat(val, 64)
				if err != nil {
					return nil, fmt.Errorf("bad distance %q for %s", val, key)
				}
				h.unit.Score = 1 - d
			}
		}
		hits = append(hits, h)
	}
	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].unit.Score != hits[b].unit.Score {
			return hits[a].unit.Score > hits[b].unit.Score
		}
		return hits[a].seq < hits[b].seq
	})
	out := make([]models.ScoredUnit, len(hits))
	for i, h := range hits {
		out[i] = h.unit
	}
	return out, nil
}

// Clear drops the index together with its documents.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.client.Do(ctx, "FT.DROPINDEX", s.indexName(), "DD").Err(); err != nil && !isUnknownIndex(err) {
		return fmt.Errorf("drop index: %w", err)
	}
	if err := s.client.Del(ctx, s.metaKey(), s.seqKey()).Err(); err != nil {
		return err
	}
	s.dim = 0
	return nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	res, err := s.client.Do(ctx, "FT.SEARCH", s.indexName(), "*", "LIMIT", "0", "0").Result()
	if err != nil {
		if isUnknownIndex(err) {
			return 0, nil
		}
		return 0, err
	}
	values, ok := res.([]any)
	if !ok || len(values) == 0 {
		return 0, nil
	}
	n, _ := values[0].(int64)
	return int(n), nil
}

func isUnknownIndex(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unknown index") || strings.Contains(msg, "no such index")
}

// CompileFilter renders an expression as a RediSearch pre-filter. The zero
// expression matches everything.
func CompileFilter(e filter.Expr) (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}
	indexed := make(map[string]bool, len(models.MetadataKeys))
	for _, k := range models.MetadataKeys {
		indexed[k] = true
	}
	for _, k := range e.Keys() {
		if !indexed[k] {
			return "", fmt.Errorf("%w: %s is not an indexed metadata key", internalerr.ErrInvalidFilter, k)
		}
	}
	if err := checkTagValues(e); err != nil {
		return "", err
	}

	var render func(filter.Expr) string
	render = func(x filter.Expr) string {
		switch x.Op {
		case filter.OpEq:
			return fmt.Sprintf("@%s:{%s}", x.Key, escapeTag(x.Value))
		case filter.OpIn:
			vals := make([]string, len(x.Values))
			for i, v := range x.Values {
				vals[i] = escapeTag(v)
			}
			return fmt.Sprintf("@%s:{%s}", x.Key, strings.Join(vals, " | "))
		case filter.OpAnd:
			parts := make([]string, len(x.Args))
			for i, a := range x.Args {
				parts[i] = render(a)
			}
			return "(" + strings.Join(parts, " ") + ")"
		case filter.OpOr:
			parts := make([]string, len(x.Args))
			for i, a := range x.Args {
				parts[i] = "(" + render(a) + ")"
			}
			return "(" + strings.Join(parts, " | ") + ")"
		}
		return "*"
	}
	return render(e), nil
}

// checkTagValues rejects empty values, which RediSearch cannot express as a
// tag query.
func checkTagValues(x filter.Expr) error {
	switch x.Op {
	case filter.OpEq:
		if strings.TrimSpace(x.Value) == "" {
			return fmt.Errorf("%w: empty value for %s", internalerr.ErrInvalidFilter, x.Key)
		}
	case filter.OpIn:
		for _, v := range x.Values {
			if strings.TrimSpace(v) == "" {
				return fmt.Errorf("%w: empty value in %s list", internalerr.ErrInvalidFilter, x.Key)
			}
		}
	case filter.OpAnd, filter.OpOr:
		for _, a := range x.Args {
			if err := checkTagValues(a); err != nil {
				return err
			}
		}
	}
	return nil
}

// escapeTag backslash-escapes every character RediSearch treats as syntax
// inside a TAG query.
func escapeTag(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(",.<>{}[]\"':;!@#$%^&*()-+=~|/\\ ", r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
