package database

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/AnshRaj112/mystery-message-backend/pkg/logger"
)

const defaultDatabase = "mystery_message"

// ConnectMongo dials mongoURI, pings it and returns the client plus the database to use.
// dbName wins over the path component of the URI; both empty falls back to defaultDatabase.
func ConnectMongo(ctx context.Context, mongoURI, dbName string) (*mongo.Client, *mongo.Database, error) {
	// Atlas clusters can take a while on cold start.
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(mongoURI).
		SetServerSelectionTimeout(10 * time.Second)

	logger.Log(ctx).Info(ctx, "connecting to MongoDB", zap.String("uri", MaskURI(mongoURI)))

	client, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 10*time.Second)
	defer pingCancel()

	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("ping mongo: %w", err)
	}

	if dbName == "" {
		dbName = databaseFromURI(mongoURI)
	}

	logger.Log(ctx).Info(ctx, "connected to MongoDB", zap.String("database", dbName))
	return client, client.Database(dbName), nil
}

// DisconnectMongo closes client with a bounded wait.
func DisconnectMongo(client *mongo.Client) error {
	if client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return client.Disconnect(ctx)
}

// databaseFromURI extracts the database from mongodb://host/<db>?opts.
func databaseFromURI(mongoURI string) string {
	u, err := url.Parse(mongoURI)
	if err != nil {
		return defaultDatabase
	}
	if name := strings.Trim(u.Path, "/"); name != "" {
		return name
	}
	return defaultDatabase
}

// MaskURI hides the password part of a connection string for logging.
func MaskURI(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	pw, ok := u.User.Password()
	if !ok || pw == "" {
		return raw
	}
	return strings.Replace(raw, ":"+pw+"@", ":***@", 1)
}
