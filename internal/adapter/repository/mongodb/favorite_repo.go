package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"carmarket/internal/listing/domain"
	"carmarket/internal/platform/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// FavoriteRepository implements domain.FavoriteRepository using MongoDB.
type FavoriteRepository struct {
	collection *mongo.Collection
	logger     *logger.Logger
}

// NewFavoriteRepository creates the repository and ensures the unique
// (user_id, listing_id) index that makes double-favoriting impossible
// at the store level.
func NewFavoriteRepository(db *mongo.Database, log *logger.Logger) (*FavoriteRepository, error) {
	collection := db.Collection(favoriteCollectionName)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "listing_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		log.Error("Failed to create indexes for favorites collection", zap.Error(err))
	}

	return &FavoriteRepository{
		collection: collection,
		logger:     log.Named("FavoriteRepository"),
	}, nil
}

// Add stores a favorite. Returns domain.ErrDuplicateFavorite when the
// pair already exists, so a racing duplicate toggle degrades to a
// no-op for the caller.
func (r *FavoriteRepository) Add(ctx context.Context, favorite *domain.Favorite) error {
	doc := &favoriteDocument{
		ID:        primitive.NewObjectID(),
		UserID:    favorite.UserID,
		ListingID: favorite.ListingID,
		CreatedAt: time.Now().UTC(),
	}

	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDuplicateFavorite
		}
		r.logger.Error("Failed to insert favorite into DB", zap.Error(err),
			zap.String("user_id", favorite.UserID), zap.String("listing_id", favorite.ListingID))
		return fmt.Errorf("%w: insert: %v", domain.ErrRepository, err)
	}

	favorite.ID = doc.ID.Hex()
	favorite.CreatedAt = doc.CreatedAt
	return nil
}

// Remove deletes the favorite pair. Returns domain.ErrFavoriteNotFound
// when nothing was deleted.
func (r *FavoriteRepository) Remove(ctx context.Context, userID, listingID string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"user_id": userID, "listing_id": listingID})
	if err != nil {
		r.logger.Error("Failed to delete favorite from DB", zap.Error(err),
			zap.String("user_id", userID), zap.String("listing_id", listingID))
		return fmt.Errorf("%w: delete: %v", domain.ErrRepository, err)
	}
	if result.DeletedCount == 0 {
		return domain.ErrFavoriteNotFound
	}
	return nil
}

// Exists reports whether the user has favorited the listing.
func (r *FavoriteRepository) Exists(ctx context.Context, userID, listingID string) (bool, error) {
	err := r.collection.FindOne(ctx, bson.M{"user_id": userID, "listing_id": listingID}).Err()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		return false, fmt.Errorf("%w: findone: %v", domain.ErrRepository, err)
	}
	return true, nil
}

// ListingIDsByUser returns the set of listing ids the user has
// favorited, as a set for O(1) membership checks during page assembly.
func (r *FavoriteRepository) ListingIDsByUser(ctx context.Context, userID string) (map[string]struct{}, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		r.logger.Error("Failed to find favorites by user from DB", zap.Error(err), zap.String("user_id", userID))
		return nil, fmt.Errorf("%w: find: %v", domain.ErrRepository, err)
	}
	defer cursor.Close(ctx)

	var docs []*favoriteDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("%w: cursor all: %v", domain.ErrRepository, err)
	}

	ids := make(map[string]struct{}, len(docs))
	for _, doc := range docs {
		ids[doc.ListingID] = struct{}{}
	}
	return ids, nil
}
