package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"notesim/internal/domain"
	"notesim/internal/port"
)

// MilvusVectorStore implements VectorStore using the Milvus v2 REST API.
// Milvus has no native upsert for this schema, so Upsert is a plain insert.
type MilvusVectorStore struct {
	baseURL string
	token   string
	client  *http.Client
}

// MilvusConfig configures the Milvus store.
type MilvusConfig struct {
	// BaseURL is the Milvus REST endpoint (default: http://localhost:19530).
	BaseURL string

	// Token is sent as a bearer token when set ("user:password" or an API key).
	Token string

	// Timeout is the HTTP request timeout (default: 30s).
	Timeout time.Duration
}

// NewMilvusVectorStore creates a new Milvus store.
func NewMilvusVectorStore(cfg MilvusConfig) *MilvusVectorStore {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:19530"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &MilvusVectorStore{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type milvusResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

var outputFields = []string{domain.FieldKey, domain.FieldPath, domain.FieldPreview, domain.FieldModTime}

func (s *MilvusVectorStore) Name() string {
	return "milvus"
}

func (s *MilvusVectorStore) NativeUpsert() bool {
	return false
}

func (s *MilvusVectorStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	var data struct {
		Has bool `json:"has"`
	}
	if err := s.call(ctx, "/v2/vectordb/collections/has", map[string]any{"collectionName": name}, &data); err != nil {
		return false, err
	}
	return data.Has, nil
}

func (s *MilvusVectorStore) CreateCollection(ctx context.Context, schema domain.CollectionSchema) error {
	body := map[string]any{
		"collectionName": schema.Name,
		"schema": map[string]any{
			"autoId":             false,
			"enableDynamicField": false,
			"fields": []map[string]any{
				{
					"fieldName":         domain.FieldKey,
					"dataType":          "VarChar",
					"isPrimary":         true,
					"elementTypeParams": map[string]any{"max_length": domain.MaxKeyLen},
				},
				{
					"fieldName":         domain.FieldPath,
					"dataType":          "VarChar",
					"elementTypeParams": map[string]any{"max_length": domain.MaxPathLen},
				},
				{
					"fieldName":         domain.FieldPreview,
					"dataType":          "VarChar",
					"elementTypeParams": map[string]any{"max_length": domain.MaxPreviewLen},
				},
				{
					"fieldName": domain.FieldModTime,
					"dataType":  "Int64",
					"nullable":  true,
				},
				{
					"fieldName":         domain.FieldVector,
					"dataType":          "FloatVector",
					"elementTypeParams": map[string]any{"dim": schema.Dimension},
				},
			},
		},
	}
	if err := s.call(ctx, "/v2/vectordb/collections/create", body, nil); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

// BuildIndex creates an AUTOINDEX on the vector field with the collection metric.
func (s *MilvusVectorStore) BuildIndex(ctx context.Context, schema domain.CollectionSchema) error {
	metric := strings.ToUpper(string(schema.Metric))
	if metric == "" {
		metric = strings.ToUpper(string(domain.MetricCosine))
	}
	body := map[string]any{
		"collectionName": schema.Name,
		"indexParams": []map[string]any{{
			"fieldName":  domain.FieldVector,
			"indexName":  domain.FieldVector,
			"metricType": metric,
			"indexType":  "AUTOINDEX",
		}},
	}
	if err := s.call(ctx, "/v2/vectordb/indexes/create", body, nil); err != nil {
		return fmt.Errorf("failed to build index: %w", err)
	}
	return nil
}

func (s *MilvusVectorStore) LoadCollection(ctx context.Context, name string) error {
	if err := s.call(ctx, "/v2/vectordb/collections/load", map[string]any{"collectionName": name}, nil); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	return nil
}

func (s *MilvusVectorStore) Describe(ctx context.Context, name string) (domain.CollectionInfo, error) {
	var desc struct {
		Fields []struct {
			Name   string `json:"name"`
			Type   string `json:"type"`
			Params []struct {
				Key   string `json:"key"`
				Value any    `json:"value"`
			} `json:"params"`
		} `json:"fields"`
		Load string `json:"load"`
	}
	if err := s.call(ctx, "/v2/vectordb/collections/describe", map[string]any{"collectionName": name}, &desc); err != nil {
		return domain.CollectionInfo{}, fmt.Errorf("failed to describe collection: %w", err)
	}

	info := domain.CollectionInfo{Name: name, Loaded: desc.Load == "LoadStateLoaded"}
	for _, f := range desc.Fields {
		if f.Name != domain.FieldVector {
			continue
		}
		for _, p := range f.Params {
			if p.Key == "dim" {
				info.Dimension = paramInt(p.Value)
			}
		}
	}

	var stats struct {
		RowCount int64 `json:"rowCount"`
	}
	if err := s.call(ctx, "/v2/vectordb/collections/get_stats", map[string]any{"collectionName": name}, &stats); err == nil {
		info.Count = stats.RowCount
	}
	return info, nil
}

// Upsert inserts rec. Callers remove an existing record first.
func (s *MilvusVectorStore) Upsert(ctx context.Context, collection string, rec domain.VectorRecord) error {
	row := map[string]any{
		domain.FieldKey:     rec.Key,
		domain.FieldPath:    rec.Path,
		domain.FieldPreview: rec.Preview,
		domain.FieldVector:  rec.Vector,
		domain.FieldModTime: nil,
	}
	if rec.HasModTime {
		row[domain.FieldModTime] = rec.ModTime
	}
	body := map[string]any{
		"collectionName": collection,
		"data":           []map[string]any{row},
	}
	if err := s.call(ctx, "/v2/vectordb/entities/insert", body, nil); err != nil {
		return fmt.Errorf("failed to insert %s: %w", rec.Key, err)
	}
	return nil
}

// Delete removes the record with the given key. A filter matching nothing
// succeeds.
func (s *MilvusVectorStore) Delete(ctx context.Context, collection, key string) error {
	body := map[string]any{
		"collectionName": collection,
		"filter":         keyFilter(key),
	}
	if err := s.call(ctx, "/v2/vectordb/entities/delete", body, nil); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (s *MilvusVectorStore) Get(ctx context.Context, collection, key string) (domain.VectorRecord, bool, error) {
	body := map[string]any{
		"collectionName": collection,
		"id":             []string{key},
		"outputFields":   outputFields,
	}
	var rows []map[string]any
	if err := s.call(ctx, "/v2/vectordb/entities/get", body, &rows); err != nil {
		return domain.VectorRecord{}, false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	if len(rows) == 0 {
		return domain.VectorRecord{}, false, nil
	}
	rec := rowRecord(rows[0])
	if rec.Key == "" {
		rec.Key = key
	}
	return rec, true, nil
}

// Search returns the topK nearest records. For COSINE collections Milvus
// reports similarity in the "distance" field.
func (s *MilvusVectorStore) Search(ctx context.Context, collection string, vector []float32, topK int) ([]domain.Candidate, error) {
	if topK <= 0 {
		return nil, nil
	}
	body := map[string]any{
		"collectionName": collection,
		"data":           [][]float32{vector},
		"annsField":      domain.FieldVector,
		"limit":          topK,
		"outputFields":   outputFields,
	}
	var rows []map[string]any
	if err := s.call(ctx, "/v2/vectordb/entities/search", body, &rows); err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	results := make([]domain.Candidate, 0, len(rows))
	for _, row := range rows {
		rec := rowRecord(row)
		score, _ := row["distance"].(float64)
		results = append(results, domain.Candidate{
			Key:     rec.Key,
			Path:    rec.Path,
			Preview: rec.Preview,
			Value:   score,
			Kind:    domain.ScoreSimilarity,
		})
	}
	return results, nil
}

func (s *MilvusVectorStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func keyFilter(key string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(key)
	return fmt.Sprintf(`%s in ["%s"]`, domain.FieldKey, escaped)
}

func rowRecord(row map[string]any) domain.VectorRecord {
	var rec domain.VectorRecord
	rec.Key, _ = row[domain.FieldKey].(string)
	rec.Path, _ = row[domain.FieldPath].(string)
	rec.Preview, _ = row[domain.FieldPreview].(string)
	if mt, ok := row[domain.FieldModTime].(float64); ok {
		rec.ModTime, rec.HasModTime = int64(mt), true
	}
	return rec
}

func paramInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case string:
		i, _ := strconv.Atoi(n)
		return i
	}
	return 0
}

// call posts body to path and decodes the data member of the envelope into out.
func (s *MilvusVectorStore) call(ctx context.Context, path string, body, out any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return domain.ConnectivityError("milvus "+path, "failed to reach milvus at "+s.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("milvus error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var envelope milvusResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if envelope.Code != 0 {
		return fmt.Errorf("milvus error (code %d): %s", envelope.Code, envelope.Message)
	}
	if out == nil || len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

var _ port.VectorStore = (*MilvusVectorStore)(nil)
