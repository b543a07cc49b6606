package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/yeremiapane/restaurant-orders/lifecycle"
)

// Needs a reachable server, e.g. MONGO_TEST_URI=mongodb://localhost:27017
func TestMongoOrderRepository(t *testing.T) {
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	defer client.Disconnect(ctx)

	db := client.Database("orders_test_" + time.Now().Format("150405"))
	defer db.Drop(ctx)

	repo := NewMongoOrderRepository(db)
	order := newOrder("u1", lifecycle.StatusPending, time.Now().UTC().Truncate(time.Millisecond))
	require.NoError(t, repo.Create(ctx, order))

	got, err := repo.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.OrderNumber, got.OrderNumber)
	assert.Len(t, got.Items, 1)

	order.Status = lifecycle.StatusReady
	order.Revision = 2
	require.NoError(t, repo.Update(ctx, order, 1))
	assert.ErrorIs(t, repo.Update(ctx, order, 1), ErrConflict)

	list, err := repo.List(ctx, OrderFilter{OwnerID: "u1", Statuses: []lifecycle.Status{lifecycle.StatusReady}})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, repo.Delete(ctx, order.ID))
	_, err = repo.Get(ctx, order.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
