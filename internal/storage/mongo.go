package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// kvDocument is the Mongo representation of one key.
type kvDocument struct {
	Key       string    `bson:"_id"`
	Value     string    `bson:"value"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

// MongoStorage implements Storage using a Mongo collection, one document per key
type MongoStorage struct {
	col *mongo.Collection
}

func NewMongoStorage(col *mongo.Collection) *MongoStorage {
	return &MongoStorage{col: col}
}

func (m *MongoStorage) Get(ctx context.Context, key string) (string, error) {
	var d kvDocument
	if err := m.col.FindOne(ctx, bson.M{"_id": key}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("mongo get: %w", err)
	}
	return d.Value, nil
}

func (m *MongoStorage) Set(ctx context.Context, key, value string) error {
	opts := options.Update().SetUpsert(true)
	rec := bson.M{"$set": bson.M{"value": value, "updatedAt": time.Now().UTC()}}
	if _, err := m.col.UpdateOne(ctx, bson.M{"_id": key}, rec, opts); err != nil {
		return fmt.Errorf("mongo set: %w", err)
	}
	return nil
}

func (m *MongoStorage) Remove(ctx context.Context, key string) error {
	if _, err := m.col.DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return fmt.Errorf("mongo remove: %w", err)
	}
	return nil
}

func (m *MongoStorage) Backend() string { return "mongo" }
