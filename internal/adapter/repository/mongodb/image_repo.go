package mongodb

import (
	"context"
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

// ImageRepository implements domain.ImageRepository using MongoDB.
type ImageRepository struct {
	collection *mongo.Collection
	logger     *logger.Logger
}

// NewImageRepository creates the repository and ensures its indexes.
func NewImageRepository(db *mongo.Database, log *logger.Logger) (*ImageRepository, error) {
	collection := db.Collection(imageCollectionName)

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "listing_id", Value: 1}, {Key: "created_at", Value: 1}}},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		log.Error("Failed to create indexes for listing images collection", zap.Error(err))
	}

	return &ImageRepository{
		collection: collection,
		logger:     log.Named("ImageRepository"),
	}, nil
}

// Add records one uploaded image path for a listing.
func (r *ImageRepository) Add(ctx context.Context, image *domain.ListingImage) error {
	doc := &imageDocument{
		ID:        primitive.NewObjectID(),
		ListingID: image.ListingID,
		Path:      image.Path,
		CreatedAt: time.Now().UTC(),
	}
	if !image.CreatedAt.IsZero() {
		doc.CreatedAt = image.CreatedAt
	}

	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		r.logger.Error("Failed to insert listing image into DB", zap.Error(err), zap.String("listing_id", image.ListingID))
		return fmt.Errorf("%w: insert: %v", domain.ErrRepository, err)
	}

	image.ID = doc.ID.Hex()
	image.CreatedAt = doc.CreatedAt
	return nil
}

// FindByListingID returns a listing's images in upload order, oldest
// first, so the first element is the canonical thumbnail source.
func (r *ImageRepository) FindByListingID(ctx context.Context, listingID string) ([]*domain.ListingImage, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"listing_id": listingID}, findOptions)
	if err != nil {
		r.logger.Error("Failed to find listing images from DB", zap.Error(err), zap.String("listing_id", listingID))
		return nil, fmt.Errorf("%w: find: %v", domain.ErrRepository, err)
	}
	defer cursor.Close(ctx)

	var docs []*imageDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("%w: cursor all: %v", domain.ErrRepository, err)
	}

	images := make([]*domain.ListingImage, 0, len(docs))
	for _, doc := range docs {
		images = append(images, doc.toDomain())
	}
	return images, nil
}

// FirstPathByListingIDs returns, for each listing that has at least one
// image, the path of its earliest-uploaded image. Listings without
// images have no entry in the result.
func (r *ImageRepository) FirstPathByListingIDs(ctx context.Context, listingIDs []string) (map[string]string, error) {
	if len(listingIDs) == 0 {
		return map[string]string{}, nil
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"listing_id": bson.M{"$in": listingIDs}}}},
		{{Key: "$sort", Value: bson.D{{Key: "listing_id", Value: 1}, {Key: "created_at", Value: 1}}}},
		{{Key: "$group", Value: bson.M{
			"_id":  "$listing_id",
			"path": bson.M{"$first": "$path"},
		}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		r.logger.Error("Failed to aggregate first image paths from DB", zap.Error(err))
		return nil, fmt.Errorf("%w: aggregate: %v", domain.ErrRepository, err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		ListingID string `bson:"_id"`
		Path      string `bson:"path"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("%w: cursor all: %v", domain.ErrRepository, err)
	}

	paths := make(map[string]string, len(rows))
	for _, row := range rows {
		paths[row.ListingID] = row.Path
	}
	return paths, nil
}
