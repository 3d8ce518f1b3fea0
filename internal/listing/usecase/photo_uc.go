package usecase

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"carmarket/internal/identity"
	"carmarket/internal/listing/domain"
	"carmarket/internal/platform/logger"
	"carmarket/internal/platform/metrics"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// MaxImagesPerUpload is the default cap on photos per upload request.
const MaxImagesPerUpload = 5

// UploadFile is one photo submitted by the uploader form.
type UploadFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// UploadResult reports one successfully stored photo.
type UploadResult struct {
	Path      string
	PublicURL string
}

// PhotoUsecase owns the listing image uploader.
type PhotoUsecase struct {
	listings  domain.ListingRepository
	images    domain.ImageRepository
	storage   domain.PhotoStorage
	cache     domain.QueryCache
	maxImages int
	metrics   *metrics.MetricsManager
	logger    *logger.Logger
	tracer    trace.Tracer
}

func NewPhotoUsecase(
	listings domain.ListingRepository,
	images domain.ImageRepository,
	storage domain.PhotoStorage,
	cache domain.QueryCache,
	maxImages int,
	mm *metrics.MetricsManager,
	log *logger.Logger,
) *PhotoUsecase {
	if maxImages <= 0 {
		maxImages = MaxImagesPerUpload
	}
	return &PhotoUsecase{
		listings:  listings,
		images:    images,
		storage:   storage,
		cache:     cache,
		maxImages: maxImages,
		metrics:   mm,
		logger:    log.Named("PhotoUsecase"),
		tracer:    otel.Tracer("carmarket/photo-usecase"),
	}
}

// objectKeyFor builds the storage key for the seq-th file of an upload
// batch. Keys are namespaced by listing so the whole folder can be
// listed or purged per listing.
func objectKeyFor(listingID string, batch time.Time, seq int, filename string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	if ext == "" {
		ext = "jpg"
	}
	return fmt.Sprintf("%s/%d-%d.%s", listingID, batch.UnixMilli(), seq, ext)
}

// List returns a listing's stored photos in upload order with their
// public URLs.
func (uc *PhotoUsecase) List(ctx context.Context, listingID string) ([]UploadResult, error) {
	ctx, span := uc.tracer.Start(ctx, "PhotoUsecase.List",
		trace.WithAttributes(attribute.String("listing_id", listingID)))
	defer span.End()

	if _, err := uc.listings.FindByID(ctx, listingID); err != nil {
		return nil, err
	}

	images, err := uc.images.FindByListingID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	results := make([]UploadResult, 0, len(images))
	for _, img := range images {
		results = append(results, UploadResult{Path: img.Path, PublicURL: uc.storage.PublicURL(img.Path)})
	}
	return results, nil
}

// Upload stores up to MaxImagesPerUpload photos for a listing the
// caller owns. Each file is an independent upload-then-record pair:
// when file N fails, files 0..N-1 stay persisted and the error names
// the failing file. Partial success is real success for the files that
// made it.
func (uc *PhotoUsecase) Upload(ctx context.Context, principal *identity.Principal, listingID string, files []UploadFile) ([]UploadResult, error) {
	ctx, span := uc.tracer.Start(ctx, "PhotoUsecase.Upload",
		trace.WithAttributes(attribute.String("listing_id", listingID), attribute.Int("file_count", len(files))))
	defer span.End()

	if principal == nil {
		return nil, domain.ErrUnauthenticated
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files in upload", domain.ErrInvalidInput)
	}
	if len(files) > uc.maxImages {
		return nil, fmt.Errorf("%w: got %d files, limit is %d", domain.ErrTooManyImages, len(files), uc.maxImages)
	}

	listing, err := uc.listings.FindByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.SellerID != principal.UserID {
		return nil, domain.ErrForbidden
	}

	batch := time.Now().UTC()
	results := make([]UploadResult, 0, len(files))

	for i, file := range files {
		key := objectKeyFor(listingID, batch, i, file.Filename)

		contentType := file.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		if err := uc.storage.Upload(ctx, key, file.Data, contentType); err != nil {
			uc.metrics.APIErrorsTotal.WithLabelValues("upload_images", "storage").Inc()
			return results, fmt.Errorf("%w: file %d (%s): %v", domain.ErrImageUpload, i, file.Filename, err)
		}

		image := &domain.ListingImage{
			ListingID: listingID,
			Path:      key,
			CreatedAt: batch.Add(time.Duration(i) * time.Millisecond),
		}
		if err := uc.images.Add(ctx, image); err != nil {
			uc.metrics.APIErrorsTotal.WithLabelValues("upload_images", "repository").Inc()
			return results, fmt.Errorf("%w: file %d (%s): recording metadata: %v", domain.ErrImageUpload, i, file.Filename, err)
		}

		uc.metrics.ImagesUploadedTotal.Inc()
		results = append(results, UploadResult{Path: key, PublicURL: uc.storage.PublicURL(key)})
	}

	uc.logger.Info("Images uploaded",
		zap.String("listing_id", listingID), zap.Int("count", len(results)))

	if err := uc.cache.Invalidate(ctx, opSearch, opDetail, opDashboard, opFavorites); err != nil {
		uc.logger.Warn("Cache invalidation failed after image upload", zap.Error(err))
	}
	return results, nil
}
