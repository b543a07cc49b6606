package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/yeremiapane/restaurant-orders/models"
)

const OrdersCollection = "orders"

type MongoOrderRepository struct {
	coll    *mongo.Collection
	timeout time.Duration
}

func NewMongoOrderRepository(db *mongo.Database) *MongoOrderRepository {
	return &MongoOrderRepository{
		coll:    db.Collection(OrdersCollection),
		timeout: 5 * time.Second,
	}
}

func (r *MongoOrderRepository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

func (r *MongoOrderRepository) Create(ctx context.Context, order *models.Order) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if _, err := r.coll.InsertOne(ctx, order); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *MongoOrderRepository) Get(ctx context.Context, id string) (*models.Order, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var order models.Order
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&order)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find order %s: %w", id, err)
	}
	return &order, nil
}

func (r *MongoOrderRepository) List(ctx context.Context, filter OrderFilter) ([]models.Order, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	query := bson.M{}
	if filter.OwnerID != "" {
		query["$or"] = bson.A{
			bson.M{"customerId": filter.OwnerID},
			bson.M{"guestId": filter.OwnerID},
		}
	}
	if len(filter.Statuses) > 0 {
		query["status"] = bson.M{"$in": statusStrings(filter.Statuses)}
	}
	if filter.PaymentMethod != "" {
		query["paymentMethod"] = string(filter.PaymentMethod)
	}
	if filter.PaymentStatus != "" {
		query["paymentStatus"] = string(filter.PaymentStatus)
	}
	if !filter.CreatedBefore.IsZero() {
		query["createdAt"] = bson.M{"$lt": filter.CreatedBefore}
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cursor, err := r.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("find orders: %w", err)
	}
	defer cursor.Close(ctx)

	orders := make([]models.Order, 0)
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	return orders, nil
}

// Update mengganti dokumen hanya jika revision masih expectedRevision
func (r *MongoOrderRepository) Update(ctx context.Context, order *models.Order, expectedRevision int64) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": order.ID, "revision": expectedRevision}, order)
	if err != nil {
		return fmt.Errorf("replace order %s: %w", order.ID, err)
	}
	if res.MatchedCount == 0 {
		n, err := r.coll.CountDocuments(ctx, bson.M{"_id": order.ID})
		if err != nil {
			return fmt.Errorf("count order %s: %w", order.ID, err)
		}
		if n == 0 {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}

func (r *MongoOrderRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete order %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
