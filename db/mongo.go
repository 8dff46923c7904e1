package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"sourcetrace/models"
)

type MongoClient struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// analysisDoc is the Mongo document shape; verdict and signals are stored
// as raw JSON strings so both backends hold the same payloads.
type analysisDoc struct {
	ID             string    `bson:"_id"`
	Timestamp      time.Time `bson:"timestamp"`
	Source         string    `bson:"source,omitempty"`
	Confidence     int       `bson:"confidence"`
	Recommendation string    `bson:"recommendation"`
	Degraded       bool      `bson:"degraded"`
	Verdict        string    `bson:"verdict"`
	Signals        string    `bson:"signals,omitempty"`
	LatencyMs      float64   `bson:"latency_ms"`
}

func NewMongoClient(uri, dbName string) (*MongoClient, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("error connecting to MongoDB: %s", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("error pinging MongoDB: %s", err)
	}

	return &MongoClient{
		client: client,
		coll:   client.Database(dbName).Collection("analyses"),
	}, nil
}

func (m *MongoClient) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func (m *MongoClient) StoreAnalysis(analysis *models.Analysis) error {
	if analysis.Timestamp.IsZero() {
		analysis.Timestamp = time.Now().UTC()
	}

	doc := analysisDoc{
		ID:             analysis.ID,
		Timestamp:      analysis.Timestamp,
		Source:         analysis.Source,
		Confidence:     analysis.Confidence,
		Recommendation: analysis.Recommendation,
		Degraded:       analysis.Degraded,
		Verdict:        string(analysis.Verdict),
		Signals:        string(analysis.Signals),
		LatencyMs:      analysis.LatencyMs,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := m.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("error storing analysis: %s", err)
	}
	return nil
}

func (m *MongoClient) RecentAnalyses(limit int) ([]models.Analysis, error) {
	if limit <= 0 {
		limit = 50
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := m.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("error querying analyses: %s", err)
	}
	defer cursor.Close(ctx)

	var docs []analysisDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("error decoding analyses: %s", err)
	}

	analyses := make([]models.Analysis, 0, len(docs))
	for _, doc := range docs {
		a := models.Analysis{
			ID:             doc.ID,
			Timestamp:      doc.Timestamp,
			Source:         doc.Source,
			Confidence:     doc.Confidence,
			Recommendation: doc.Recommendation,
			Degraded:       doc.Degraded,
			Verdict:        []byte(doc.Verdict),
			LatencyMs:      doc.LatencyMs,
		}
		if doc.Signals != "" {
			a.Signals = []byte(doc.Signals)
		}
		analyses = append(analyses, a)
	}

	return analyses, nil
}

func (m *MongoClient) TotalAnalyses() (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	count, err := m.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("error counting analyses: %s", err)
	}
	return int(count), nil
}
