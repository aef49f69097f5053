// Package store loads workflow definitions from a MongoDB document
// store at startup. Definitions are read once and treated as immutable
// for the process lifetime; hot reload is deliberately out of scope.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/payflowio/payflow/workflow"
)

const (
	defaultCollection = "Workflow"
	defaultTimeout    = 10 * time.Second
)

// Options configures the workflow loader.
type Options struct {
	URI        string
	Database   string
	Collection string
	Timeout    time.Duration
}

// Loader reads workflow documents from MongoDB.
type Loader struct {
	client     *mongo.Client
	database   string
	collection string
	timeout    time.Duration
}

// NewLoader connects to the document store and verifies the connection
// with a primary-read ping.
func NewLoader(ctx context.Context, opts Options) (*Loader, error) {
	if opts.URI == "" {
		return nil, errors.New("mongodb uri is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	collection := opts.Collection
	if collection == "" {
		collection = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client, err := mongo.Connect(options.Client().ApplyURI(opts.URI))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	return &Loader{
		client:     client,
		database:   opts.Database,
		collection: collection,
		timeout:    timeout,
	}, nil
}

// Load returns the workflow definitions whose ids are in ids. Documents
// are decoded through their extended-JSON form so that condition and
// input trees come back as plain JSON values, the same shapes the rule
// evaluator and the engine consume.
func (l *Loader) Load(ctx context.Context, ids []string) ([]workflow.Workflow, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	coll := l.client.Database(l.database).Collection(l.collection)
	filter := bson.M{"id": bson.M{"$in": ids}}

	cursor, err := coll.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("find workflows: %w", err)
	}
	defer cursor.Close(ctx)

	var workflows []workflow.Workflow
	for cursor.Next(ctx) {
		w, err := decodeWorkflow(cursor.Current)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, w)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate workflows: %w", err)
	}
	return workflows, nil
}

// Close disconnects from the document store.
func (l *Loader) Close(ctx context.Context) error {
	return l.client.Disconnect(ctx)
}

func decodeWorkflow(raw bson.Raw) (workflow.Workflow, error) {
	var w workflow.Workflow
	ext, err := bson.MarshalExtJSON(raw, false, false)
	if err != nil {
		return w, fmt.Errorf("convert workflow document: %w", err)
	}
	if err := json.Unmarshal(ext, &w); err != nil {
		return w, fmt.Errorf("decode workflow document: %w", err)
	}
	return w, nil
}
