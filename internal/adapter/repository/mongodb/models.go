package mongodb

import (
	"fmt"
	"time"

	"carmarket/internal/listing/domain"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// listingDocument is the MongoDB shape of a domain.Listing.
type listingDocument struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Brand       string             `bson:"brand"`
	Model       string             `bson:"model"`
	Year        int                `bson:"year"`
	Price       float64            `bson:"price"`
	Mileage     float64            `bson:"mileage"`
	Gearbox     domain.Gearbox     `bson:"gearbox"`
	FuelType    domain.FuelType    `bson:"fuel_type"`
	SellerID    string             `bson:"seller_id"`
	SellerName  string             `bson:"seller_name,omitempty"`
	SellerPhone string             `bson:"seller_phone,omitempty"`
	Description string             `bson:"description,omitempty"`
	LocationLat *float64           `bson:"location_lat,omitempty"`
	LocationLng *float64           `bson:"location_lng,omitempty"`
	CreatedAt   time.Time          `bson:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at"`
}

type imageDocument struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	ListingID string             `bson:"listing_id"`
	Path      string             `bson:"path"`
	CreatedAt time.Time          `bson:"created_at"`
}

type favoriteDocument struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	UserID    string             `bson:"user_id"`
	ListingID string             `bson:"listing_id"`
	CreatedAt time.Time          `bson:"created_at"`
}

func fromDomainListing(l *domain.Listing) (*listingDocument, error) {
	if l == nil {
		return nil, nil
	}

	var docID primitive.ObjectID
	if l.ID != "" {
		var err error
		docID, err = primitive.ObjectIDFromHex(l.ID)
		if err != nil {
			return nil, fmt.Errorf("invalid listing id %q: %w", l.ID, err)
		}
	}

	return &listingDocument{
		ID:          docID,
		Brand:       l.Brand,
		Model:       l.Model,
		Year:        l.Year,
		Price:       l.Price,
		Mileage:     l.Mileage,
		Gearbox:     l.Gearbox,
		FuelType:    l.FuelType,
		SellerID:    l.SellerID,
		SellerName:  l.SellerName,
		SellerPhone: l.SellerPhone,
		Description: l.Description,
		LocationLat: l.LocationLat,
		LocationLng: l.LocationLng,
		CreatedAt:   l.CreatedAt,
		UpdatedAt:   l.UpdatedAt,
	}, nil
}

func (d *listingDocument) toDomain() *domain.Listing {
	if d == nil {
		return nil
	}
	return &domain.Listing{
		ID:          d.ID.Hex(),
		Brand:       d.Brand,
		Model:       d.Model,
		Year:        d.Year,
		Price:       d.Price,
		Mileage:     d.Mileage,
		Gearbox:     d.Gearbox,
		FuelType:    d.FuelType,
		SellerID:    d.SellerID,
		SellerName:  d.SellerName,
		SellerPhone: d.SellerPhone,
		Description: d.Description,
		LocationLat: d.LocationLat,
		LocationLng: d.LocationLng,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

func toDomainListings(docs []*listingDocument) []*domain.Listing {
	listings := make([]*domain.Listing, 0, len(docs))
	for _, doc := range docs {
		listings = append(listings, doc.toDomain())
	}
	return listings
}

func (d *imageDocument) toDomain() *domain.ListingImage {
	if d == nil {
		return nil
	}
	return &domain.ListingImage{
		ID:        d.ID.Hex(),
		ListingID: d.ListingID,
		Path:      d.Path,
		CreatedAt: d.CreatedAt,
	}
}

func (d *favoriteDocument) toDomain() *domain.Favorite {
	if d == nil {
		return nil
	}
	return &domain.Favorite{
		ID:        d.ID.Hex(),
		UserID:    d.UserID,
		ListingID: d.ListingID,
		CreatedAt: d.CreatedAt,
	}
}
