package usecase

import (
	"context"

	"carmarket/internal/listing/domain"
	"carmarket/internal/platform/logger"
	"carmarket/internal/platform/metrics"

	"github.com/stretchr/testify/mock"
)

type MockListingRepository struct{ mock.Mock }

func (m *MockListingRepository) Create(ctx context.Context, listing *domain.Listing) error {
	args := m.Called(ctx, listing)
	return args.Error(0)
}
func (m *MockListingRepository) Update(ctx context.Context, listing *domain.Listing) error {
	args := m.Called(ctx, listing)
	return args.Error(0)
}
func (m *MockListingRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
func (m *MockListingRepository) FindByID(ctx context.Context, id string) (*domain.Listing, error) {
	args := m.Called(ctx, id)
	if listing, ok := args.Get(0).(*domain.Listing); ok {
		return listing, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockListingRepository) FindByIDs(ctx context.Context, ids []string) ([]*domain.Listing, error) {
	args := m.Called(ctx, ids)
	if listings, ok := args.Get(0).([]*domain.Listing); ok {
		return listings, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockListingRepository) FindByFilter(ctx context.Context, filter domain.Filter) ([]*domain.Listing, int64, error) {
	args := m.Called(ctx, filter)
	if listings, ok := args.Get(0).([]*domain.Listing); ok {
		return listings, args.Get(1).(int64), args.Error(2)
	}
	return nil, 0, args.Error(2)
}
func (m *MockListingRepository) FindBySeller(ctx context.Context, sellerID string) ([]*domain.Listing, error) {
	args := m.Called(ctx, sellerID)
	if listings, ok := args.Get(0).([]*domain.Listing); ok {
		return listings, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockListingRepository) UpdateSellerPhone(ctx context.Context, sellerID, phone string) (int64, error) {
	args := m.Called(ctx, sellerID, phone)
	return args.Get(0).(int64), args.Error(1)
}

type MockImageRepository struct{ mock.Mock }

func (m *MockImageRepository) Add(ctx context.Context, image *domain.ListingImage) error {
	args := m.Called(ctx, image)
	return args.Error(0)
}
func (m *MockImageRepository) FindByListingID(ctx context.Context, listingID string) ([]*domain.ListingImage, error) {
	args := m.Called(ctx, listingID)
	if images, ok := args.Get(0).([]*domain.ListingImage); ok {
		return images, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockImageRepository) FirstPathByListingIDs(ctx context.Context, listingIDs []string) (map[string]string, error) {
	args := m.Called(ctx, listingIDs)
	if paths, ok := args.Get(0).(map[string]string); ok {
		return paths, args.Error(1)
	}
	return nil, args.Error(1)
}

type MockFavoriteRepository struct{ mock.Mock }

func (m *MockFavoriteRepository) Add(ctx context.Context, favorite *domain.Favorite) error {
	args := m.Called(ctx, favorite)
	return args.Error(0)
}
func (m *MockFavoriteRepository) Remove(ctx context.Context, userID, listingID string) error {
	args := m.Called(ctx, userID, listingID)
	return args.Error(0)
}
func (m *MockFavoriteRepository) Exists(ctx context.Context, userID, listingID string) (bool, error) {
	args := m.Called(ctx, userID, listingID)
	return args.Bool(0), args.Error(1)
}
func (m *MockFavoriteRepository) ListingIDsByUser(ctx context.Context, userID string) (map[string]struct{}, error) {
	args := m.Called(ctx, userID)
	if ids, ok := args.Get(0).(map[string]struct{}); ok {
		return ids, args.Error(1)
	}
	return nil, args.Error(1)
}

// fakePhotoStorage records uploads and can fail from a given index on.
type fakePhotoStorage struct {
	uploaded  []string
	failAfter int // fail uploads with index >= failAfter; -1 never fails
	failErr   error
}

func newFakePhotoStorage() *fakePhotoStorage {
	return &fakePhotoStorage{failAfter: -1}
}

func (s *fakePhotoStorage) Upload(_ context.Context, objectKey string, _ []byte, _ string) error {
	if s.failAfter >= 0 && len(s.uploaded) >= s.failAfter {
		return s.failErr
	}
	s.uploaded = append(s.uploaded, objectKey)
	return nil
}

func (s *fakePhotoStorage) PublicURL(objectKey string) string {
	return "https://cdn.test/car-images/" + objectKey
}

// fakeQueryCache always misses and records invalidated operations.
type fakeQueryCache struct {
	invalidated []string
}

func (c *fakeQueryCache) Get(context.Context, string, any, any) (bool, error) { return false, nil }
func (c *fakeQueryCache) Set(context.Context, string, any, any) error         { return nil }
func (c *fakeQueryCache) Invalidate(_ context.Context, ops ...string) error {
	c.invalidated = append(c.invalidated, ops...)
	return nil
}

type fakePublisher struct {
	subjects []string
}

func (p *fakePublisher) Publish(_ context.Context, subject string, _ any) error {
	p.subjects = append(p.subjects, subject)
	return nil
}

type fakeMailer struct {
	sentTo []string
}

func (m *fakeMailer) SendListingCreatedEmail(toEmail, _ string, _ *domain.Listing) error {
	m.sentTo = append(m.sentTo, toEmail)
	return nil
}

func testMetrics() *metrics.MetricsManager {
	return metrics.NewMetricsManager("carmarket_test")
}

func testLogger() *logger.Logger {
	return logger.NewNop()
}
