package usecase

import (
	"context"
	"fmt"

	"carmarket/internal/adapter/messaging/nats"
	"carmarket/internal/identity"
	"carmarket/internal/listing/domain"
	"carmarket/internal/mailer"
	"carmarket/internal/platform/logger"
	"carmarket/internal/platform/metrics"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Cached operation names. Every composed read is memoized under one of
// these; mutations invalidate the operations they can make stale.
const (
	opSearch    = "listings.search"
	opDetail    = "listings.detail"
	opDashboard = "listings.dashboard"
	opFavorites = "favorites.page"
)

// ListingInput carries the editable fields of a listing as submitted by
// the editor form. The coordinate pair is optional but indivisible.
type ListingInput struct {
	Brand       string
	Model       string
	Year        int
	Price       float64
	Mileage     float64
	Gearbox     domain.Gearbox
	FuelType    domain.FuelType
	Description string
	LocationLat *float64
	LocationLng *float64
}

// ListingDetail is the composed read behind the listing detail page.
type ListingDetail struct {
	Listing      *domain.Listing
	ImageURLs    []string
	IsFavorited  bool
	WhatsAppLink string
	Map          *domain.MapEmbed
}

// ListingUsecase composes listing reads and owns listing mutations.
type ListingUsecase struct {
	listings  domain.ListingRepository
	images    domain.ImageRepository
	favorites domain.FavoriteRepository
	storage   domain.PhotoStorage
	cache     domain.QueryCache
	publisher domain.EventPublisher
	mail      mailer.Mailer
	metrics   *metrics.MetricsManager
	logger    *logger.Logger
	tracer    trace.Tracer
}

func NewListingUsecase(
	listings domain.ListingRepository,
	images domain.ImageRepository,
	favorites domain.FavoriteRepository,
	storage domain.PhotoStorage,
	cache domain.QueryCache,
	publisher domain.EventPublisher,
	mail mailer.Mailer,
	mm *metrics.MetricsManager,
	log *logger.Logger,
) *ListingUsecase {
	return &ListingUsecase{
		listings:  listings,
		images:    images,
		favorites: favorites,
		storage:   storage,
		cache:     cache,
		publisher: publisher,
		mail:      mail,
		metrics:   mm,
		logger:    log.Named("ListingUsecase"),
		tracer:    otel.Tracer("carmarket/listing-usecase"),
	}
}

func validateListingInput(input ListingInput) error {
	if input.Brand == "" || input.Model == "" {
		return fmt.Errorf("%w: brand and model are required", domain.ErrInvalidInput)
	}
	if input.Year < 1900 || input.Year > 2100 {
		return fmt.Errorf("%w: year %d out of range", domain.ErrInvalidInput, input.Year)
	}
	if input.Price < 0 {
		return fmt.Errorf("%w: price must not be negative", domain.ErrInvalidInput)
	}
	if input.Mileage < 0 {
		return fmt.Errorf("%w: mileage must not be negative", domain.ErrInvalidInput)
	}
	if !input.Gearbox.IsValid() {
		return fmt.Errorf("%w: unknown gearbox %q", domain.ErrInvalidInput, input.Gearbox)
	}
	if !input.FuelType.IsValid() {
		return fmt.Errorf("%w: unknown fuel type %q", domain.ErrInvalidInput, input.FuelType)
	}
	// Coordinates travel as a pair. One without the other is a client
	// bug and is rejected rather than half-saved.
	if (input.LocationLat == nil) != (input.LocationLng == nil) {
		return fmt.Errorf("%w: location latitude and longitude must be supplied together", domain.ErrInvalidInput)
	}
	return nil
}

// Search runs the composed search read: one page of filtered listings,
// the page-independent total, the caller's favorite set, and a
// thumbnail URL per listing that has images. The favorite and thumbnail
// joins degrade to empty maps on failure; the page itself still renders.
func (uc *ListingUsecase) Search(ctx context.Context, filter domain.Filter, userID string) (*domain.SearchResult, error) {
	ctx, span := uc.tracer.Start(ctx, "ListingUsecase.Search",
		trace.WithAttributes(attribute.Int("page", filter.Page)))
	defer span.End()

	uc.metrics.SearchesTotal.Inc()

	if filter.PageSize <= 0 {
		return nil, fmt.Errorf("%w: page size must be positive", domain.ErrInvalidInput)
	}
	if filter.Page < 0 {
		return nil, fmt.Errorf("%w: page must not be negative", domain.ErrInvalidInput)
	}

	type cachedPage struct {
		Items      []*domain.Listing `json:"items"`
		TotalCount int64             `json:"total_count"`
		Thumbnails map[string]string `json:"thumbnails"`
	}

	var page cachedPage
	hit, err := uc.cache.Get(ctx, opSearch, filter, &page)
	if err != nil {
		uc.logger.Warn("Search cache lookup failed, falling through to store", zap.Error(err))
		hit = false
	}

	if !hit {
		items, total, err := uc.listings.FindByFilter(ctx, filter)
		if err != nil {
			uc.metrics.APIErrorsTotal.WithLabelValues("search", "repository").Inc()
			return nil, err
		}
		page = cachedPage{Items: items, TotalCount: total, Thumbnails: uc.thumbnailsFor(ctx, items)}

		if err := uc.cache.Set(ctx, opSearch, filter, page); err != nil {
			uc.logger.Warn("Failed to cache search page", zap.Error(err))
		}
	}

	result := &domain.SearchResult{
		Items:        page.Items,
		TotalCount:   page.TotalCount,
		Thumbnails:   page.Thumbnails,
		FavoritedIDs: map[string]struct{}{},
	}

	// The favorite set is per-caller and therefore never part of the
	// cached page.
	if userID != "" {
		favorited, err := uc.favorites.ListingIDsByUser(ctx, userID)
		if err != nil {
			uc.logger.Warn("Failed to load favorite set, rendering page without it",
				zap.String("user_id", userID), zap.Error(err))
		} else {
			result.FavoritedIDs = favorited
		}
	}

	return result, nil
}

// thumbnailsFor resolves public thumbnail URLs for the given page of
// listings. A failed join yields an empty map, never an error: the grid
// renders placeholders instead.
func (uc *ListingUsecase) thumbnailsFor(ctx context.Context, items []*domain.Listing) map[string]string {
	if len(items) == 0 {
		return map[string]string{}
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}

	paths, err := uc.images.FirstPathByListingIDs(ctx, ids)
	if err != nil {
		uc.logger.Warn("Failed to load thumbnails, rendering page without them", zap.Error(err))
		return map[string]string{}
	}

	urls := make(map[string]string, len(paths))
	for id, path := range paths {
		urls[id] = uc.storage.PublicURL(path)
	}
	return urls
}

// GetDetail loads everything the detail page needs for one listing.
func (uc *ListingUsecase) GetDetail(ctx context.Context, listingID, userID string) (*ListingDetail, error) {
	ctx, span := uc.tracer.Start(ctx, "ListingUsecase.GetDetail",
		trace.WithAttributes(attribute.String("listing_id", listingID)))
	defer span.End()

	type cachedDetail struct {
		Listing   *domain.Listing `json:"listing"`
		ImageURLs []string        `json:"image_urls"`
	}

	var detail cachedDetail
	hit, err := uc.cache.Get(ctx, opDetail, listingID, &detail)
	if err != nil {
		uc.logger.Warn("Detail cache lookup failed, falling through to store", zap.Error(err))
		hit = false
	}

	if !hit {
		listing, err := uc.listings.FindByID(ctx, listingID)
		if err != nil {
			return nil, err
		}
		images, err := uc.images.FindByListingID(ctx, listingID)
		if err != nil {
			return nil, err
		}
		urls := make([]string, 0, len(images))
		for _, img := range images {
			urls = append(urls, uc.storage.PublicURL(img.Path))
		}
		detail = cachedDetail{Listing: listing, ImageURLs: urls}

		if err := uc.cache.Set(ctx, opDetail, listingID, detail); err != nil {
			uc.logger.Warn("Failed to cache listing detail", zap.Error(err))
		}
	}

	result := &ListingDetail{
		Listing:   detail.Listing,
		ImageURLs: detail.ImageURLs,
	}

	if link, err := domain.WhatsAppLink(detail.Listing); err == nil {
		result.WhatsAppLink = link
	}
	if embed, ok := domain.MapEmbedFor(detail.Listing); ok {
		result.Map = embed
	}

	if userID != "" {
		favorited, err := uc.favorites.Exists(ctx, userID, listingID)
		if err != nil {
			uc.logger.Warn("Failed to check favorite state for detail page", zap.Error(err))
		} else {
			result.IsFavorited = favorited
		}
	}

	return result, nil
}

// Create publishes a new listing for the seller. The seller's name and
// phone are snapshotted from the principal at write time. Email and
// event notifications are best-effort.
func (uc *ListingUsecase) Create(ctx context.Context, principal *identity.Principal, input ListingInput) (*domain.Listing, error) {
	ctx, span := uc.tracer.Start(ctx, "ListingUsecase.Create")
	defer span.End()

	if principal == nil {
		return nil, domain.ErrUnauthenticated
	}
	if err := validateListingInput(input); err != nil {
		return nil, err
	}

	listing := &domain.Listing{
		Brand:       input.Brand,
		Model:       input.Model,
		Year:        input.Year,
		Price:       input.Price,
		Mileage:     input.Mileage,
		Gearbox:     input.Gearbox,
		FuelType:    input.FuelType,
		Description: input.Description,
		LocationLat: input.LocationLat,
		LocationLng: input.LocationLng,
		SellerID:    principal.UserID,
		SellerName:  principal.FullName,
		SellerPhone: principal.SellerPhone,
	}

	if err := uc.listings.Create(ctx, listing); err != nil {
		uc.metrics.APIErrorsTotal.WithLabelValues("create_listing", "repository").Inc()
		return nil, err
	}
	uc.metrics.ListingsCreatedTotal.Inc()
	uc.logger.Info("Listing created", zap.String("listing_id", listing.ID), zap.String("seller_id", principal.UserID))

	uc.invalidate(ctx, opSearch, opDashboard)

	if err := uc.publisher.Publish(ctx, nats.SubjectListingCreated, listing); err != nil {
		uc.logger.Warn("Failed to publish listing-created event", zap.Error(err))
	}
	if err := uc.mail.SendListingCreatedEmail(principal.Email, principal.FullName, listing); err != nil {
		uc.logger.Warn("Failed to send listing-created email", zap.Error(err))
	}

	return listing, nil
}

// Update rewrites a listing's editable fields. Only the owner may
// update; identity of the caller is established by the principal, never
// by the payload.
func (uc *ListingUsecase) Update(ctx context.Context, principal *identity.Principal, listingID string, input ListingInput) (*domain.Listing, error) {
	ctx, span := uc.tracer.Start(ctx, "ListingUsecase.Update",
		trace.WithAttributes(attribute.String("listing_id", listingID)))
	defer span.End()

	if principal == nil {
		return nil, domain.ErrUnauthenticated
	}
	if err := validateListingInput(input); err != nil {
		return nil, err
	}

	existing, err := uc.listings.FindByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if existing.SellerID != principal.UserID {
		uc.logger.Warn("Rejected update of listing by non-owner",
			zap.String("listing_id", listingID), zap.String("user_id", principal.UserID))
		return nil, domain.ErrForbidden
	}

	existing.Brand = input.Brand
	existing.Model = input.Model
	existing.Year = input.Year
	existing.Price = input.Price
	existing.Mileage = input.Mileage
	existing.Gearbox = input.Gearbox
	existing.FuelType = input.FuelType
	existing.Description = input.Description
	existing.LocationLat = input.LocationLat
	existing.LocationLng = input.LocationLng

	if err := uc.listings.Update(ctx, existing); err != nil {
		uc.metrics.APIErrorsTotal.WithLabelValues("update_listing", "repository").Inc()
		return nil, err
	}
	uc.metrics.ListingUpdatesTotal.Inc()

	uc.invalidate(ctx, opSearch, opDetail, opDashboard, opFavorites)

	if err := uc.publisher.Publish(ctx, nats.SubjectListingUpdated, existing); err != nil {
		uc.logger.Warn("Failed to publish listing-updated event", zap.Error(err))
	}

	return existing, nil
}

// Delete removes a listing and, via the store adapter, its images and
// favorites. Owner-only.
func (uc *ListingUsecase) Delete(ctx context.Context, principal *identity.Principal, listingID string) error {
	ctx, span := uc.tracer.Start(ctx, "ListingUsecase.Delete",
		trace.WithAttributes(attribute.String("listing_id", listingID)))
	defer span.End()

	if principal == nil {
		return domain.ErrUnauthenticated
	}

	existing, err := uc.listings.FindByID(ctx, listingID)
	if err != nil {
		return err
	}
	if existing.SellerID != principal.UserID {
		return domain.ErrForbidden
	}

	if err := uc.listings.Delete(ctx, listingID); err != nil {
		uc.metrics.APIErrorsTotal.WithLabelValues("delete_listing", "repository").Inc()
		return err
	}
	uc.metrics.ListingDeletesTotal.Inc()
	uc.logger.Info("Listing deleted", zap.String("listing_id", listingID), zap.String("seller_id", principal.UserID))

	uc.invalidate(ctx, opSearch, opDetail, opDashboard, opFavorites)

	if err := uc.publisher.Publish(ctx, nats.SubjectListingDeleted, map[string]string{"id": listingID}); err != nil {
		uc.logger.Warn("Failed to publish listing-deleted event", zap.Error(err))
	}

	return nil
}

// Dashboard returns the seller's own listings, newest first, with
// thumbnails for the management view.
func (uc *ListingUsecase) Dashboard(ctx context.Context, principal *identity.Principal) (*domain.SearchResult, error) {
	ctx, span := uc.tracer.Start(ctx, "ListingUsecase.Dashboard")
	defer span.End()

	if principal == nil {
		return nil, domain.ErrUnauthenticated
	}

	type cachedDashboard struct {
		Items      []*domain.Listing `json:"items"`
		Thumbnails map[string]string `json:"thumbnails"`
	}

	var board cachedDashboard
	hit, err := uc.cache.Get(ctx, opDashboard, principal.UserID, &board)
	if err != nil {
		uc.logger.Warn("Dashboard cache lookup failed, falling through to store", zap.Error(err))
		hit = false
	}

	if !hit {
		items, err := uc.listings.FindBySeller(ctx, principal.UserID)
		if err != nil {
			return nil, err
		}
		board = cachedDashboard{Items: items, Thumbnails: uc.thumbnailsFor(ctx, items)}
		if err := uc.cache.Set(ctx, opDashboard, principal.UserID, board); err != nil {
			uc.logger.Warn("Failed to cache dashboard", zap.Error(err))
		}
	}

	return &domain.SearchResult{
		Items:        board.Items,
		TotalCount:   int64(len(board.Items)),
		Thumbnails:   board.Thumbnails,
		FavoritedIDs: map[string]struct{}{},
	}, nil
}

// ApplyPhoneToListings backfills the seller's current phone snapshot
// onto all of their existing listings. Returns the number touched.
func (uc *ListingUsecase) ApplyPhoneToListings(ctx context.Context, principal *identity.Principal) (int64, error) {
	ctx, span := uc.tracer.Start(ctx, "ListingUsecase.ApplyPhoneToListings")
	defer span.End()

	if principal == nil {
		return 0, domain.ErrUnauthenticated
	}
	phone := identity.NormalizePhone(principal.SellerPhone)
	if !identity.IsValidE164(phone) {
		return 0, fmt.Errorf("%w: profile has no valid seller phone", domain.ErrInvalidInput)
	}

	touched, err := uc.listings.UpdateSellerPhone(ctx, principal.UserID, phone)
	if err != nil {
		uc.metrics.APIErrorsTotal.WithLabelValues("apply_phone", "repository").Inc()
		return 0, err
	}

	if touched > 0 {
		uc.invalidate(ctx, opSearch, opDetail, opDashboard, opFavorites)
	}
	uc.logger.Info("Applied seller phone to listings",
		zap.String("seller_id", principal.UserID), zap.Int64("touched", touched))
	return touched, nil
}

func (uc *ListingUsecase) invalidate(ctx context.Context, ops ...string) {
	if err := uc.cache.Invalidate(ctx, ops...); err != nil {
		uc.logger.Warn("Cache invalidation failed", zap.Error(err))
	}
}
