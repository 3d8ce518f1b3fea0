package mongodb

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"carmarket/internal/listing/domain"
	"carmarket/internal/platform/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	listingCollectionName  = "listings"
	imageCollectionName    = "listing_images"
	favoriteCollectionName = "favorites"
)

// ListingRepository implements domain.ListingRepository using MongoDB.
type ListingRepository struct {
	collection *mongo.Collection
	images     *mongo.Collection
	favorites  *mongo.Collection
	logger     *logger.Logger
}

// NewListingRepository creates the repository and ensures its indexes.
func NewListingRepository(db *mongo.Database, log *logger.Logger) (*ListingRepository, error) {
	collection := db.Collection(listingCollectionName)

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "seller_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "brand", Value: 1}}},
		{Keys: bson.D{{Key: "year", Value: 1}}},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := collection.Indexes().CreateMany(ctx, indexes); err != nil {
		log.Error("Failed to create indexes for listings collection", zap.Error(err))
		// Indexes may already exist or be managed externally; not fatal.
	} else {
		log.Info("Successfully ensured indexes for listings collection")
	}

	return &ListingRepository{
		collection: collection,
		images:     db.Collection(imageCollectionName),
		favorites:  db.Collection(favoriteCollectionName),
		logger:     log.Named("ListingRepository"),
	}, nil
}

// Create inserts a new listing and fills in its generated id.
func (r *ListingRepository) Create(ctx context.Context, listing *domain.Listing) error {
	r.logger.Info("Creating listing in DB", zap.String("seller_id", listing.SellerID), zap.String("brand", listing.Brand))

	doc, err := fromDomainListing(listing)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if doc.ID.IsZero() {
		doc.ID = primitive.NewObjectID()
	}
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now

	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		r.logger.Error("Failed to insert listing into DB", zap.Error(err))
		return fmt.Errorf("%w: insert: %v", domain.ErrRepository, err)
	}

	listing.ID = doc.ID.Hex()
	listing.CreatedAt = doc.CreatedAt
	listing.UpdatedAt = doc.UpdatedAt
	r.logger.Info("Listing created successfully in DB", zap.String("listing_id", listing.ID))
	return nil
}

// Update rewrites the mutable listing fields.
func (r *ListingRepository) Update(ctx context.Context, listing *domain.Listing) error {
	r.logger.Info("Updating listing in DB", zap.String("listing_id", listing.ID))

	doc, err := fromDomainListing(listing)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	doc.UpdatedAt = time.Now().UTC()
	listing.UpdatedAt = doc.UpdatedAt

	set := bson.M{
		"brand":        doc.Brand,
		"model":        doc.Model,
		"year":         doc.Year,
		"price":        doc.Price,
		"mileage":      doc.Mileage,
		"gearbox":      doc.Gearbox,
		"fuel_type":    doc.FuelType,
		"seller_name":  doc.SellerName,
		"seller_phone": doc.SellerPhone,
		"description":  doc.Description,
		"updated_at":   doc.UpdatedAt,
	}
	// The coordinate pair is stored both-or-neither; an absent pair is
	// removed rather than zeroed.
	update := bson.M{"$set": set}
	if doc.LocationLat != nil && doc.LocationLng != nil {
		set["location_lat"] = doc.LocationLat
		set["location_lng"] = doc.LocationLng
	} else {
		update["$unset"] = bson.M{"location_lat": "", "location_lng": ""}
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": doc.ID}, update)
	if err != nil {
		r.logger.Error("Failed to update listing in DB", zap.Error(err), zap.String("listing_id", listing.ID))
		return fmt.Errorf("%w: update: %v", domain.ErrRepository, err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete removes a listing and cascades its images and favorites. The
// referential cleanup happens here, at the store boundary, so callers
// never orphan image or favorite rows.
func (r *ListingRepository) Delete(ctx context.Context, id string) error {
	r.logger.Info("Deleting listing from DB", zap.String("listing_id", id))

	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: invalid listing id %q", domain.ErrInvalidInput, id)
	}

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": objID})
	if err != nil {
		r.logger.Error("Failed to delete listing from DB", zap.Error(err), zap.String("listing_id", id))
		return fmt.Errorf("%w: delete: %v", domain.ErrRepository, err)
	}
	if result.DeletedCount == 0 {
		return domain.ErrNotFound
	}

	if _, err := r.images.DeleteMany(ctx, bson.M{"listing_id": id}); err != nil {
		r.logger.Error("Failed to cascade-delete listing images", zap.Error(err), zap.String("listing_id", id))
		return fmt.Errorf("%w: cascade delete of images: %v", domain.ErrRepository, err)
	}
	if _, err := r.favorites.DeleteMany(ctx, bson.M{"listing_id": id}); err != nil {
		r.logger.Error("Failed to cascade-delete listing favorites", zap.Error(err), zap.String("listing_id", id))
		return fmt.Errorf("%w: cascade delete of favorites: %v", domain.ErrRepository, err)
	}

	r.logger.Info("Listing deleted successfully from DB", zap.String("listing_id", id))
	return nil
}

// FindByID retrieves one listing.
func (r *ListingRepository) FindByID(ctx context.Context, id string) (*domain.Listing, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid listing id %q", domain.ErrInvalidInput, id)
	}

	var doc listingDocument
	if err := r.collection.FindOne(ctx, bson.M{"_id": objID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrNotFound
		}
		r.logger.Error("Failed to get listing by ID from DB", zap.Error(err), zap.String("listing_id", id))
		return nil, fmt.Errorf("%w: findone: %v", domain.ErrRepository, err)
	}
	return doc.toDomain(), nil
}

// FindByIDs retrieves the listings with the given ids, newest first.
// Missing ids are simply absent from the result (dangling favorites are
// tolerated, not errors).
func (r *ListingRepository) FindByIDs(ctx context.Context, ids []string) ([]*domain.Listing, error) {
	if len(ids) == 0 {
		return []*domain.Listing{}, nil
	}

	objIDs := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		objID, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			r.logger.Warn("Skipping invalid listing id in FindByIDs", zap.String("listing_id", id))
			continue
		}
		objIDs = append(objIDs, objID)
	}
	if len(objIDs) == 0 {
		return []*domain.Listing{}, nil
	}

	findOptions := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{"_id": bson.M{"$in": objIDs}}, findOptions)
	if err != nil {
		return nil, fmt.Errorf("%w: find: %v", domain.ErrRepository, err)
	}
	defer cursor.Close(ctx)

	var docs []*listingDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("%w: cursor all: %v", domain.ErrRepository, err)
	}
	return toDomainListings(docs), nil
}

// buildListingQuery translates the optional search criteria into a
// conjunctive MongoDB filter. Absent criteria produce no predicate at
// all rather than a match-everything clause.
func buildListingQuery(filter domain.Filter) bson.M {
	query := bson.M{}
	if filter.Brand != "" {
		query["brand"] = bson.M{"$regex": regexp.QuoteMeta(filter.Brand), "$options": "i"}
	}
	if filter.Model != "" {
		query["model"] = bson.M{"$regex": regexp.QuoteMeta(filter.Model), "$options": "i"}
	}
	if filter.Year != nil {
		query["year"] = *filter.Year
	}
	if filter.MaxMileage != nil {
		query["mileage"] = bson.M{"$lte": *filter.MaxMileage}
	}
	return query
}

// FindByFilter returns one page of matches sorted newest first, plus
// the page-independent total count over the same criteria.
func (r *ListingRepository) FindByFilter(ctx context.Context, filter domain.Filter) ([]*domain.Listing, int64, error) {
	r.logger.Debug("Finding listings by filter from DB", zap.Any("filter", filter))

	query := buildListingQuery(filter)

	findOptions := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if filter.PageSize > 0 {
		findOptions.SetLimit(int64(filter.PageSize))
		if filter.Page > 0 {
			findOptions.SetSkip(int64(filter.Page) * int64(filter.PageSize))
		}
	}

	cursor, err := r.collection.Find(ctx, query, findOptions)
	if err != nil {
		r.logger.Error("Failed to find listings by filter from DB", zap.Error(err))
		return nil, 0, fmt.Errorf("%w: find: %v", domain.ErrRepository, err)
	}
	defer cursor.Close(ctx)

	var docs []*listingDocument
	if err := cursor.All(ctx, &docs); err != nil {
		r.logger.Error("Failed to decode listings from DB", zap.Error(err))
		return nil, 0, fmt.Errorf("%w: cursor all: %v", domain.ErrRepository, err)
	}

	total, err := r.collection.CountDocuments(ctx, query)
	if err != nil {
		r.logger.Error("Failed to count listings from DB", zap.Error(err))
		return nil, 0, fmt.Errorf("%w: count: %v", domain.ErrRepository, err)
	}

	return toDomainListings(docs), total, nil
}

// FindBySeller returns all of a seller's listings, newest first.
func (r *ListingRepository) FindBySeller(ctx context.Context, sellerID string) ([]*domain.Listing, error) {
	findOptions := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{"seller_id": sellerID}, findOptions)
	if err != nil {
		r.logger.Error("Failed to find listings by seller from DB", zap.Error(err), zap.String("seller_id", sellerID))
		return nil, fmt.Errorf("%w: find: %v", domain.ErrRepository, err)
	}
	defer cursor.Close(ctx)

	var docs []*listingDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("%w: cursor all: %v", domain.ErrRepository, err)
	}
	return toDomainListings(docs), nil
}

// UpdateSellerPhone rewrites the denormalized phone snapshot on all of
// the seller's listings.
func (r *ListingRepository) UpdateSellerPhone(ctx context.Context, sellerID, phone string) (int64, error) {
	r.logger.Info("Backfilling seller phone on listings", zap.String("seller_id", sellerID))

	result, err := r.collection.UpdateMany(ctx,
		bson.M{"seller_id": sellerID},
		bson.M{"$set": bson.M{"seller_phone": phone, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		r.logger.Error("Failed to backfill seller phone", zap.Error(err), zap.String("seller_id", sellerID))
		return 0, fmt.Errorf("%w: updatemany: %v", domain.ErrRepository, err)
	}
	return result.ModifiedCount, nil
}
