package usecase

import (
	"context"
	"errors"

	"carmarket/internal/listing/domain"
	"carmarket/internal/platform/logger"
	"carmarket/internal/platform/metrics"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// FavoriteUsecase owns the favorite toggle and the favorites page.
type FavoriteUsecase struct {
	favorites domain.FavoriteRepository
	listings  domain.ListingRepository
	images    domain.ImageRepository
	storage   domain.PhotoStorage
	cache     domain.QueryCache
	metrics   *metrics.MetricsManager
	logger    *logger.Logger
	tracer    trace.Tracer
}

func NewFavoriteUsecase(
	favorites domain.FavoriteRepository,
	listings domain.ListingRepository,
	images domain.ImageRepository,
	storage domain.PhotoStorage,
	cache domain.QueryCache,
	mm *metrics.MetricsManager,
	log *logger.Logger,
) *FavoriteUsecase {
	return &FavoriteUsecase{
		favorites: favorites,
		listings:  listings,
		images:    images,
		storage:   storage,
		cache:     cache,
		metrics:   mm,
		logger:    log.Named("FavoriteUsecase"),
		tracer:    otel.Tracer("carmarket/favorite-usecase"),
	}
}

// Toggle flips the caller's favorite on a listing and returns the
// authoritative resulting state, re-read from the store rather than
// inferred from which branch ran. Racing duplicate adds and removes
// converge instead of erroring.
func (uc *FavoriteUsecase) Toggle(ctx context.Context, userID, listingID string) (bool, error) {
	ctx, span := uc.tracer.Start(ctx, "FavoriteUsecase.Toggle",
		trace.WithAttributes(attribute.String("listing_id", listingID)))
	defer span.End()

	if userID == "" {
		return false, domain.ErrUnauthenticated
	}

	// The listing must exist; favoriting a deleted listing would
	// resurrect a dangling reference.
	if _, err := uc.listings.FindByID(ctx, listingID); err != nil {
		return false, err
	}

	uc.metrics.FavoriteTogglesTotal.Inc()

	exists, err := uc.favorites.Exists(ctx, userID, listingID)
	if err != nil {
		uc.metrics.APIErrorsTotal.WithLabelValues("toggle_favorite", "repository").Inc()
		return false, err
	}

	if exists {
		err = uc.favorites.Remove(ctx, userID, listingID)
		if err != nil && !errors.Is(err, domain.ErrFavoriteNotFound) {
			uc.metrics.APIErrorsTotal.WithLabelValues("toggle_favorite", "repository").Inc()
			return false, err
		}
	} else {
		err = uc.favorites.Add(ctx, &domain.Favorite{UserID: userID, ListingID: listingID})
		if err != nil && !errors.Is(err, domain.ErrDuplicateFavorite) {
			uc.metrics.APIErrorsTotal.WithLabelValues("toggle_favorite", "repository").Inc()
			return false, err
		}
	}

	uc.invalidate(ctx, opFavorites)

	state, err := uc.favorites.Exists(ctx, userID, listingID)
	if err != nil {
		uc.metrics.APIErrorsTotal.WithLabelValues("toggle_favorite", "repository").Inc()
		return false, err
	}
	uc.logger.Debug("Favorite toggled",
		zap.String("user_id", userID), zap.String("listing_id", listingID), zap.Bool("favorited", state))
	return state, nil
}

// Page returns the caller's favorited listings, newest first, with
// thumbnails. Favorites pointing at since-deleted listings are simply
// absent from the result.
func (uc *FavoriteUsecase) Page(ctx context.Context, userID string) (*domain.SearchResult, error) {
	ctx, span := uc.tracer.Start(ctx, "FavoriteUsecase.Page")
	defer span.End()

	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}

	type cachedPage struct {
		Items      []*domain.Listing `json:"items"`
		Thumbnails map[string]string `json:"thumbnails"`
	}

	var page cachedPage
	hit, err := uc.cache.Get(ctx, opFavorites, userID, &page)
	if err != nil {
		uc.logger.Warn("Favorites cache lookup failed, falling through to store", zap.Error(err))
		hit = false
	}

	if !hit {
		favorited, err := uc.favorites.ListingIDsByUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(favorited))
		for id := range favorited {
			ids = append(ids, id)
		}

		items, err := uc.listings.FindByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		page = cachedPage{Items: items, Thumbnails: uc.thumbnailsFor(ctx, items)}
		if err := uc.cache.Set(ctx, opFavorites, userID, page); err != nil {
			uc.logger.Warn("Failed to cache favorites page", zap.Error(err))
		}
	}

	favoritedIDs := make(map[string]struct{}, len(page.Items))
	for _, item := range page.Items {
		favoritedIDs[item.ID] = struct{}{}
	}

	return &domain.SearchResult{
		Items:        page.Items,
		TotalCount:   int64(len(page.Items)),
		Thumbnails:   page.Thumbnails,
		FavoritedIDs: favoritedIDs,
	}, nil
}

func (uc *FavoriteUsecase) thumbnailsFor(ctx context.Context, items []*domain.Listing) map[string]string {
	if len(items) == 0 {
		return map[string]string{}
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	paths, err := uc.images.FirstPathByListingIDs(ctx, ids)
	if err != nil {
		uc.logger.Warn("Failed to load thumbnails for favorites page", zap.Error(err))
		return map[string]string{}
	}
	urls := make(map[string]string, len(paths))
	for id, path := range paths {
		urls[id] = uc.storage.PublicURL(path)
	}
	return urls
}

func (uc *FavoriteUsecase) invalidate(ctx context.Context, ops ...string) {
	if err := uc.cache.Invalidate(ctx, ops...); err != nil {
		uc.logger.Warn("Cache invalidation failed", zap.Error(err))
	}
}
