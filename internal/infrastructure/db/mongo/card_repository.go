package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sipcard/dispense/internal/core/domain"
)

const cardsCollection = "cards"

// CardRepository implements ports.CardRepository using MongoDB. Cards are
// keyed by GUID.
type CardRepository struct {
	col *mongo.Collection
}

// NewCardRepository creates a new CardRepository.
func NewCardRepository(db *mongo.Database) *CardRepository {
	return &CardRepository{col: db.Collection(cardsCollection)}
}

func (r *CardRepository) Create(ctx context.Context, card *domain.Card) error {
	if _, err := r.col.InsertOne(ctx, card); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrCardExists
		}
		return fmt.Errorf("insert card: %w", err)
	}
	return nil
}

func (r *CardRepository) FindByGUID(ctx context.Context, guid string) (*domain.Card, error) {
	var c domain.Card
	if err := r.col.FindOne(ctx, bson.M{"_id": guid}).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrCardNotFound
		}
		return nil, fmt.Errorf("find card: %w", err)
	}
	return &c, nil
}

// Debit subtracts amountCents in a single conditional update, so two taps on
// the same card can never both spend the same balance.
func (r *CardRepository) Debit(ctx context.Context, guid string, amountCents int64) (*domain.Card, error) {
	filter := bson.M{
		"_id":           guid,
		"status":        domain.CardActive,
		"balance_cents": bson.M{"$gte": amountCents},
	}
	update := bson.M{
		"$inc": bson.M{"balance_cents": -amountCents},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var c domain.Card
	if err := r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrInsufficientBalance
		}
		return nil, fmt.Errorf("debit card: %w", err)
	}
	return &c, nil
}

// EnsureIndexes creates necessary indexes on the cards collection.
func (r *CardRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "owner_id", Value: 1}}})
	return err
}
