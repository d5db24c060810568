package implementation

import (
	"context"
	"errors"
	"fmt"
	"time"

	aqmmodels "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Models"
	interfaces "gitlab.com/maplesense1/aqm.dashboard_server/src/production/AQM.Repository/Interfaces"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// readingDocument is the stored shape of a reading in the sensor_readings collection
type readingDocument struct {
	ID               primitive.ObjectID        `bson:"_id,omitempty"`
	Timestamp        time.Time                 `bson:"timestamp"`
	Temperature      float64                   `bson:"temperature"`
	Humidity         float64                   `bson:"humidity"`
	AQI              float64                   `bson:"aqi"`
	GasConcentration float64                   `bson:"gasConcentration"`
	Status           string                    `bson:"status,omitempty"`
	DeviceID         string                    `bson:"deviceId,omitempty"`
	Metadata         aqmmodels.ReadingMetadata `bson:"metadata"`
}

type MongoReadingRepository struct {
	client *mongo.Client
	db     *mongo.Database
	coll   *mongo.Collection
}

func NewMongoReadingRepository(client *mongo.Client, dbName, collName string) *MongoReadingRepository {
	db := client.Database(dbName)
	return &MongoReadingRepository{client: client, db: db, coll: db.Collection(collName)}
}

// EnsureIndexes creates the descending timestamp index used by recency queries
func (r *MongoReadingRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "timestamp", Value: -1}},
		Options: options.Index().SetName("timestamp_desc"),
	})
	if err != nil {
		return fmt.Errorf("failed to create timestamp index: %w", err)
	}
	return nil
}

func (r *MongoReadingRepository) Insert(ctx context.Context, rd aqmmodels.Reading) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := r.coll.InsertOne(ctx, toDocument(rd))
	if err != nil {
		return "", err
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		return oid.Hex(), nil
	}
	return fmt.Sprint(res.InsertedID), nil
}

func (r *MongoReadingRepository) Latest(ctx context.Context) (*aqmmodels.Reading, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var doc readingDocument
	opts := options.FindOne().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if err := r.coll.FindOne(ctx, bson.D{}, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, interfaces.ErrNotFound
		}
		return nil, err
	}
	rd := fromDocument(doc)
	return &rd, nil
}

func (r *MongoReadingRepository) Since(ctx context.Context, since time.Time, limit int) ([]aqmmodels.Reading, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	filter := bson.D{{Key: "timestamp", Value: bson.D{{Key: "$gte", Value: since}}}}
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: 1}}).
		SetLimit(int64(clampLimit(limit)))

	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []readingDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	readings := make([]aqmmodels.Reading, 0, len(docs))
	for _, d := range docs {
		readings = append(readings, fromDocument(d))
	}
	return readings, nil
}

func (r *MongoReadingRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, readpref.Primary())
}

func (r *MongoReadingRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

func (r *MongoReadingRepository) Collections(ctx context.Context) ([]string, error) {
	return r.db.ListCollectionNames(ctx, bson.D{})
}

func toDocument(rd aqmmodels.Reading) readingDocument {
	return readingDocument{
		Timestamp:        rd.Timestamp,
		Temperature:      rd.Temperature,
		Humidity:         rd.Humidity,
		AQI:              rd.AQI,
		GasConcentration: rd.GasConcentration,
		Status:           string(rd.Status),
		DeviceID:         rd.DeviceID,
		Metadata:         rd.Metadata,
	}
}

func fromDocument(d readingDocument) aqmmodels.Reading {
	rd := aqmmodels.Reading{
		Timestamp:        d.Timestamp,
		Temperature:      d.Temperature,
		Humidity:         d.Humidity,
		AQI:              d.AQI,
		GasConcentration: d.GasConcentration,
		Status:           statusOrDefault(d.Status),
		DeviceID:         deviceOrDefault(d.DeviceID),
		Metadata:         d.Metadata,
	}
	if !d.ID.IsZero() {
		rd.ID = d.ID.Hex()
	}
	return rd
}
