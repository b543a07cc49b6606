package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/yeremiapane/restaurant-orders/store"
	"github.com/yeremiapane/restaurant-orders/utils"
)

// EnsureOrderIndexes membuat index yang dipakai query list order
func EnsureOrderIndexes(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "orderNumber", Value: 1}},
			Options: options.Index().SetName("orderNumber_unique").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "customerId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("customer_createdAt").SetSparse(true),
		},
		{
			Keys:    bson.D{{Key: "guestId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("guest_createdAt").SetSparse(true),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("status_createdAt"),
		},
	}

	names, err := db.Collection(store.OrdersCollection).Indexes().CreateMany(ctx, models)
	if err != nil {
		return fmt.Errorf("create order indexes: %w", err)
	}
	utils.InfoLogger.Printf("EnsureOrderIndexes: %v", names)
	return nil
}
