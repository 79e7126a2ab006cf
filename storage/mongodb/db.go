// Package mongodb implements the app's repositories on the document store.
// Collections: users, menus (one document per ISO week), orders (one document
// per user and week). Uniqueness lives in indexes, not in application checks.
package mongodb

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/suliportal/suliportal/core"
)

const (
	usersCollection  = "users"
	menusCollection  = "menus"
	ordersCollection = "orders"
)

type DB struct {
	client *mongo.Client
	db     *mongo.Database
}

// Open connects to the document store and waits for it to be reachable.
// The returned DB must be closed on shutdown.
func Open(ctx context.Context, conf *core.Config) (*DB, error) {
	opts := options.Client().
		ApplyURI(conf.Database.URI).
		SetConnectTimeout(conf.Database.Timeout)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, errors.Wrap(err, "connecting to database")
	}

	pingCtx, cancel := context.WithTimeout(ctx, conf.Database.Timeout)
	defer cancel()
	if err = client.Ping(pingCtx, readpref.Primary()); err != nil {
		return nil, errors.Wrap(err, "pinging database")
	}

	return &DB{
		client: client,
		db:     client.Database(conf.Database.Name),
	}, nil
}

func (db *DB) Close(ctx context.Context) error {
	return db.client.Disconnect(ctx)
}

// EnsureIndexes creates the unique indexes backing the data model's
// one-record-per-key invariants. Idempotent; called once at startup.
func (db *DB) EnsureIndexes(ctx context.Context) error {
	_, err := db.db.Collection(usersCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		},
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		},
		{
			Keys:    bson.D{{Key: "badge_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		},
	})
	if err != nil {
		return errors.Wrap(err, "ensuring users indexes")
	}

	_, err = db.db.Collection(menusCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "week", Value: 1}, {Key: "year", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return errors.Wrap(err, "ensuring menus index")
	}

	_, err = db.db.Collection(ordersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}, {Key: "week", Value: 1}, {Key: "year", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return errors.Wrap(err, "ensuring orders index")
}

// isDup reports whether err is a unique-index violation.
func isDup(err error) bool {
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == 11000 {
		return true
	}
	return false
}
