package domain

import "time"

type Gearbox string

const (
	GearboxManual        Gearbox = "manual"
	GearboxAutomatic     Gearbox = "automatic"
	GearboxSemiAutomatic Gearbox = "semi-automatic"
)

func (g Gearbox) IsValid() bool {
	switch g {
	case GearboxManual, GearboxAutomatic, GearboxSemiAutomatic:
		return true
	}
	return false
}

type FuelType string

const (
	FuelGasoline FuelType = "gasoline"
	FuelDiesel   FuelType = "diesel"
	FuelElectric FuelType = "electric"
	FuelHybrid   FuelType = "hybrid"
)

func (f FuelType) IsValid() bool {
	switch f {
	case FuelGasoline, FuelDiesel, FuelElectric, FuelHybrid:
		return true
	}
	return false
}

// Listing is a seller's vehicle-for-sale record. SellerName and
// SellerPhone are a snapshot taken from the seller's profile at write
// time; they are not live-joined against the current profile.
type Listing struct {
	ID          string
	Brand       string
	Model       string
	Year        int
	Price       float64
	Mileage     float64
	Gearbox     Gearbox
	FuelType    FuelType
	SellerID    string
	SellerName  string
	SellerPhone string
	Description string
	LocationLat *float64
	LocationLng *float64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Title is the human-facing label used in cards and contact messages.
func (l *Listing) Title() string {
	return l.Brand + " " + l.Model
}

// HasLocation reports whether the listing carries a coordinate pair.
// The pair is stored both-or-neither; a lone value never persists.
func (l *Listing) HasLocation() bool {
	return l.LocationLat != nil && l.LocationLng != nil
}

// ListingImage is one uploaded photo of a listing. The image with the
// earliest CreatedAt is the listing's thumbnail. Images are never
// updated, only created and cascade-deleted with their listing.
type ListingImage struct {
	ID        string
	ListingID string
	Path      string
	CreatedAt time.Time
}

// Favorite is a per-user bookmark on a listing. Existence-only; the
// (UserID, ListingID) pair is unique.
type Favorite struct {
	ID        string
	UserID    string
	ListingID string
	CreatedAt time.Time
}

// Filter describes the optional conjunctive search predicates plus the
// requested page. Absent criteria are simply not applied.
type Filter struct {
	Brand      string   // case-insensitive substring
	Model      string   // case-insensitive substring
	Year       *int     // exact match
	MaxMileage *float64 // inclusive upper bound
	Page       int      // zero-based
	PageSize   int      // positive
}

// SearchResult is the composed read returned by the query composer:
// one page of listings plus the joins the grid needs to render.
type SearchResult struct {
	Items        []*Listing
	TotalCount   int64
	FavoritedIDs map[string]struct{}
	Thumbnails   map[string]string // listing id -> public thumbnail URL
}
