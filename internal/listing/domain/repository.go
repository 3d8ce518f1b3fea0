package domain

import "context"

// ListingRepository is the port onto the remote data store's listings
// table. Delete cascades the listing's images and favorites; that
// referential cleanup belongs to the store adapter, not to callers.
type ListingRepository interface {
	Create(ctx context.Context, listing *Listing) error
	Update(ctx context.Context, listing *Listing) error
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (*Listing, error)
	FindByIDs(ctx context.Context, ids []string) ([]*Listing, error)
	// FindByFilter returns one page of matches (newest first) together
	// with the page-independent total match count.
	FindByFilter(ctx context.Context, filter Filter) ([]*Listing, int64, error)
	FindBySeller(ctx context.Context, sellerID string) ([]*Listing, error)
	// UpdateSellerPhone rewrites the denormalized phone snapshot on all
	// of the seller's listings. Returns the number of rows touched.
	UpdateSellerPhone(ctx context.Context, sellerID, phone string) (int64, error)
}

type ImageRepository interface {
	Add(ctx context.Context, image *ListingImage) error
	// FindByListingID returns the listing's images ordered by creation
	// ascending, so index 0 is the thumbnail.
	FindByListingID(ctx context.Context, listingID string) ([]*ListingImage, error)
	// FirstPathByListingIDs maps each listing id to the storage path of
	// its earliest image. Listings without images have no entry.
	FirstPathByListingIDs(ctx context.Context, listingIDs []string) (map[string]string, error)
}

type FavoriteRepository interface {
	Add(ctx context.Context, favorite *Favorite) error
	Remove(ctx context.Context, userID, listingID string) error
	Exists(ctx context.Context, userID, listingID string) (bool, error)
	ListingIDsByUser(ctx context.Context, userID string) (map[string]struct{}, error)
}

// PhotoStorage is the port onto the remote object store.
type PhotoStorage interface {
	Upload(ctx context.Context, objectKey string, data []byte, contentType string) error
	PublicURL(objectKey string) string
}

// QueryCache memoizes composed reads under (operation, parameters) and
// is invalidated explicitly after mutations. There is no implicit
// refresh: a stale entry lives until a mutation invalidates its
// operation or its TTL expires.
type QueryCache interface {
	// Get unmarshals the cached value for (op, params) into dest and
	// reports whether an entry was found.
	Get(ctx context.Context, op string, params any, dest any) (bool, error)
	Set(ctx context.Context, op string, params any, value any) error
	Invalidate(ctx context.Context, ops ...string) error
}

// EventPublisher pushes mutation events to interested services.
// Publishing is best-effort; a failed publish never fails the mutation.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, data any) error
}
