// Package testutil provides shared helpers for store and handler tests.
//
// Store tests run against a real MongoDB instance. Each test gets its
// own database, dropped on cleanup, so tests can run in parallel without
// stepping on one another. When no MongoDB is reachable the tests skip
// rather than fail, so the rest of the suite still runs on machines
// without a local mongod.
package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// defaultMongoURI is used when TASKVINE_TEST_MONGO_URI is not set.
const defaultMongoURI = "mongodb://localhost:27017"

// SetupTestDB connects to the test MongoDB instance and returns a
// database unique to this test. The database is dropped and the client
// disconnected when the test finishes. Skips the test when MongoDB is
// not reachable.
func SetupTestDB(t *testing.T) *mongo.Database {
	t.Helper()

	uri := os.Getenv("TASKVINE_TEST_MONGO_URI")
	if uri == "" {
		uri = defaultMongoURI
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		t.Skipf("skipping: cannot connect to MongoDB at %s: %v", uri, err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		t.Skipf("skipping: MongoDB at %s not reachable: %v", uri, err)
	}

	db := client.Database("taskvine_test_" + primitive.NewObjectID().Hex())

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := db.Drop(ctx); err != nil {
			t.Logf("failed to drop test database %s: %v", db.Name(), err)
		}
		_ = client.Disconnect(ctx)
	})

	return db
}

// TestContext returns a context with a generous timeout for test
// database operations.
func TestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}
