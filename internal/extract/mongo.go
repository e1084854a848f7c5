package extract

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/FabricioLanche/PharmaVida-Ingesta-v3/internal/config"
)

// mongoCollections are read in this order; names match the collections.
var mongoCollections = []string{"medicos", "recetas"}

// MongoSource reads the doctor and prescription collections.
type MongoSource struct {
	client *mongo.Client
	db     *mongo.Database
}

// MongoURI builds a connection URI authenticating against the admin database.
func MongoURI(ds config.DataStore) string {
	u := url.URL{
		Scheme:   "mongodb",
		Host:     net.JoinHostPort(ds.Host, ds.Port),
		Path:     "/" + ds.Database,
		RawQuery: "authSource=admin",
	}
	if ds.User != "" {
		u.User = url.UserPassword(ds.User, ds.Password)
	}
	return u.String()
}

// NewMongoSource connects to the configured MongoDB database.
func NewMongoSource(ctx context.Context, ds config.DataStore) (*MongoSource, error) {
	opts := options.Client().
		ApplyURI(MongoURI(ds)).
		SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongodb %s: %w", net.JoinHostPort(ds.Host, ds.Port), err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb %s: %w", net.JoinHostPort(ds.Host, ds.Port), err)
	}
	return &MongoSource{client: client, db: client.Database(ds.Database)}, nil
}

// Datasets implements Source.
func (s *MongoSource) Datasets() []string {
	return append([]string(nil), mongoCollections...)
}

// Extract implements Source.
func (s *MongoSource) Extract(ctx context.Context, name string) (*Dataset, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("collection %s: %w", name, ErrDatasetMissing)
	}

	cur, err := s.db.Collection(name).Find(ctx, bson.D{})
	if err != nil {
		return nil, err
	}
	var docs []bson.M
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	body, err := encodeDocuments(docs)
	if err != nil {
		return nil, err
	}
	return &Dataset{Name: name, Format: FormatJSON, Records: len(docs), Body: body}, nil
}

// Close implements Source.
func (s *MongoSource) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// encodeDocuments renders documents as a JSON array in relaxed Extended JSON.
// ObjectID keys are flattened to their hex form.
func encodeDocuments(docs []bson.M) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, doc := range docs {
		if id, ok := doc["_id"].(primitive.ObjectID); ok {
			doc["_id"] = id.Hex()
		}
		b, err := bson.MarshalExtJSON(doc, false, false)
		if err != nil {
			return nil, fmt.Errorf("encode document %d: %w", i, err)
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}
