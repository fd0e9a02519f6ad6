package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Store wraps the Mongo database holding users, subscriptions and the
// static transit reference data.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect opens a Mongo client, pings the deployment and returns a Store
// bound to dbName.
func Connect(ctx context.Context, uri, dbName string) (*Store, error) {
	opts := options.Client().ApplyURI(uri).SetServerSelectionTimeout(10 * time.Second)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return &Store{client: client, db: client.Database(dbName)}, nil
}

// Disconnect closes the underlying client.
func (s *Store) Disconnect(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) users() *mongo.Collection         { return s.db.Collection("Users") }
func (s *Store) subscriptions() *mongo.Collection { return s.db.Collection("Subscriptions") }
func (s *Store) routes() *mongo.Collection        { return s.db.Collection("Routes") }
func (s *Store) trips() *mongo.Collection         { return s.db.Collection("Trips") }
func (s *Store) stopOrders() *mongo.Collection    { return s.db.Collection("StopOrders") }
func (s *Store) stops() *mongo.Collection         { return s.db.Collection("Stops") }
