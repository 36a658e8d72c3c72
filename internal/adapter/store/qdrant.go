package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"notesim/internal/domain"
	"notesim/internal/port"
)

// QdrantVectorStore talks to Qdrant over gRPC. Point IDs are UUIDv5 of the
// note key since Qdrant only accepts integers and UUIDs; the key itself is
// kept in the payload.
type QdrantVectorStore struct {
	conn        *grpc.ClientConn
	client      pb.PointsClient
	collections pb.CollectionsClient
	apiKey      string
}

// NewQdrantVectorStore connects to the gRPC endpoint at addr (host:port).
// The connection is lazy; the first call surfaces an unreachable server.
func NewQdrantVectorStore(addr, apiKey string) (*QdrantVectorStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, domain.ConnectivityError("qdrant connect", "did not connect to "+addr, err)
	}

	return &QdrantVectorStore{
		conn:        conn,
		client:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		apiKey:      apiKey,
	}, nil
}

func (s *QdrantVectorStore) Name() string {
	return "qdrant"
}

func (s *QdrantVectorStore) NativeUpsert() bool {
	return true
}

func (s *QdrantVectorStore) withKey(ctx context.Context) context.Context {
	if s.apiKey == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "api-key", s.apiKey)
}

// PointID maps a note key to its Qdrant point ID.
func PointID(key string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String()
}

func pointID(key string) *pb.PointId {
	return &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(key)}}
}

func (s *QdrantVectorStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	resp, err := s.collections.CollectionExists(s.withKey(ctx), &pb.CollectionExistsRequest{CollectionName: name})
	if err != nil {
		return false, domain.ConnectivityError("qdrant collection exists", "failed to reach qdrant", err)
	}
	return resp.GetResult().GetExists(), nil
}

func (s *QdrantVectorStore) CreateCollection(ctx context.Context, schema domain.CollectionSchema) error {
	_, err := s.collections.Create(s.withKey(ctx), &pb.CreateCollection{
		CollectionName: schema.Name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(schema.Dimension),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

// BuildIndex adds a keyword payload index on the note key field.
func (s *QdrantVectorStore) BuildIndex(ctx context.Context, schema domain.CollectionSchema) error {
	wait := true
	fieldType := pb.FieldType_FieldTypeKeyword
	_, err := s.client.CreateFieldIndex(s.withKey(ctx), &pb.CreateFieldIndexCollection{
		CollectionName: schema.Name,
		Wait:           &wait,
		FieldName:      domain.FieldKey,
		FieldType:      &fieldType,
	})
	if err != nil {
		return fmt.Errorf("failed to create field index: %w", err)
	}
	return nil
}

// LoadCollection is a no-op: Qdrant serves collections as soon as they exist.
func (s *QdrantVectorStore) LoadCollection(ctx context.Context, name string) error {
	return nil
}

func (s *QdrantVectorStore) Describe(ctx context.Context, name string) (domain.CollectionInfo, error) {
	resp, err := s.collections.Get(s.withKey(ctx), &pb.GetCollectionInfoRequest{CollectionName: name})
	if err != nil {
		return domain.CollectionInfo{}, fmt.Errorf("failed to describe collection: %w", err)
	}
	result := resp.GetResult()
	return domain.CollectionInfo{
		Name:      name,
		Dimension: int(result.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()),
		Count:     int64(result.GetPointsCount()),
		Loaded:    true,
	}, nil
}

func (s *QdrantVectorStore) Upsert(ctx context.Context, collection string, rec domain.VectorRecord) error {
	wait := true
	_, err := s.client.Upsert(s.withKey(ctx), &pb.UpsertPoints{
		CollectionName: collection,
		Wait:           &wait,
		Points: []*pb.PointStruct{{
			Id: pointID(rec.Key),
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: rec.Vector},
				},
			},
			Payload: toPayload(rec),
		}},
	})
	if err != nil {
		return fmt.Errorf("failed to upsert point: %w", err)
	}
	return nil
}

func (s *QdrantVectorStore) Delete(ctx context.Context, collection, key string) error {
	wait := true
	_, err := s.client.Delete(s.withKey(ctx), &pb.DeletePoints{
		CollectionName: collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{Ids: []*pb.PointId{pointID(key)}},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete point: %w", err)
	}
	return nil
}

func (s *QdrantVectorStore) Get(ctx context.Context, collection, key string) (domain.VectorRecord, bool, error) {
	resp, err := s.client.Get(s.withKey(ctx), &pb.GetPoints{
		CollectionName: collection,
		Ids:            []*pb.PointId{pointID(key)},
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return domain.VectorRecord{}, false, fmt.Errorf("failed to get point: %w", err)
	}
	if len(resp.GetResult()) == 0 {
		return domain.VectorRecord{}, false, nil
	}
	rec := fromPayload(resp.GetResult()[0].GetPayload())
	if rec.Key == "" {
		rec.Key = key
	}
	return rec, true, nil
}

func (s *QdrantVectorStore) Search(ctx context.Context, collection string, vector []float32, topK int) ([]domain.Candidate, error) {
	if topK <= 0 {
		return nil, nil
	}
	resp, err := s.client.Search(s.withKey(ctx), &pb.SearchPoints{
		CollectionName: collection,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search points: %w", err)
	}

	results := make([]domain.Candidate, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		rec := fromPayload(r.GetPayload())
		results = append(results, domain.Candidate{
			Key:     rec.Key,
			Path:    rec.Path,
			Preview: rec.Preview,
			Value:   float64(r.GetScore()),
			Kind:    domain.ScoreSimilarity,
		})
	}
	return results, nil
}

func (s *QdrantVectorStore) Close() error {
	return s.conn.Close()
}

func toPayload(rec domain.VectorRecord) map[string]*pb.Value {
	payload := map[string]*pb.Value{
		domain.FieldKey:     {Kind: &pb.Value_StringValue{StringValue: rec.Key}},
		domain.FieldPath:    {Kind: &pb.Value_StringValue{StringValue: rec.Path}},
		domain.FieldPreview: {Kind: &pb.Value_StringValue{StringValue: rec.Preview}},
	}
	if rec.HasModTime {
		payload[domain.FieldModTime] = &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: rec.ModTime}}
	}
	return payload
}

func fromPayload(payload map[string]*pb.Value) domain.VectorRecord {
	var rec domain.VectorRecord
	rec.Key = payload[domain.FieldKey].GetStringValue()
	rec.Path = payload[domain.FieldPath].GetStringValue()
	rec.Preview = payload[domain.FieldPreview].GetStringValue()

	switch v := payload[domain.FieldModTime].GetKind().(type) {
	case *pb.Value_IntegerValue:
		rec.ModTime, rec.HasModTime = v.IntegerValue, true
	case *pb.Value_DoubleValue:
		rec.ModTime, rec.HasModTime = int64(v.DoubleValue), true
	}
	return rec
}

var _ port.VectorStore = (*QdrantVectorStore)(nil)
