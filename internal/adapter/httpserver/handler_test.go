package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"carmarket/internal/identity"
	"carmarket/internal/listing/domain"
	"carmarket/internal/listing/usecase"
	"carmarket/internal/mailer"
	"carmarket/internal/platform/logger"
	"carmarket/internal/platform/metrics"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "test-secret"

// --- in-memory collaborators ---

type memListingRepo struct {
	listings map[string]*domain.Listing
	seq      int
}

func newMemListingRepo() *memListingRepo {
	return &memListingRepo{listings: map[string]*domain.Listing{}}
}

func (r *memListingRepo) Create(_ context.Context, l *domain.Listing) error {
	r.seq++
	l.ID = uuid.NewString()
	l.CreatedAt = time.Unix(int64(r.seq), 0).UTC()
	l.UpdatedAt = l.CreatedAt
	clone := *l
	r.listings[l.ID] = &clone
	return nil
}

func (r *memListingRepo) Update(_ context.Context, l *domain.Listing) error {
	if _, ok := r.listings[l.ID]; !ok {
		return domain.ErrNotFound
	}
	clone := *l
	clone.UpdatedAt = time.Now().UTC()
	r.listings[l.ID] = &clone
	return nil
}

func (r *memListingRepo) Delete(_ context.Context, id string) error {
	if _, ok := r.listings[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.listings, id)
	return nil
}

func (r *memListingRepo) FindByID(_ context.Context, id string) (*domain.Listing, error) {
	l, ok := r.listings[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *l
	return &clone, nil
}

func (r *memListingRepo) FindByIDs(_ context.Context, ids []string) ([]*domain.Listing, error) {
	var out []*domain.Listing
	for _, id := range ids {
		if l, ok := r.listings[id]; ok {
			clone := *l
			out = append(out, &clone)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func matches(l *domain.Listing, f domain.Filter) bool {
	if f.Brand != "" && !strings.Contains(strings.ToLower(l.Brand), strings.ToLower(f.Brand)) {
		return false
	}
	if f.Model != "" && !strings.Contains(strings.ToLower(l.Model), strings.ToLower(f.Model)) {
		return false
	}
	if f.Year != nil && l.Year != *f.Year {
		return false
	}
	if f.MaxMileage != nil && l.Mileage > *f.MaxMileage {
		return false
	}
	return true
}

func sortNewestFirst(items []*domain.Listing) {
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}

func (r *memListingRepo) FindByFilter(_ context.Context, f domain.Filter) ([]*domain.Listing, int64, error) {
	var all []*domain.Listing
	for _, l := range r.listings {
		if matches(l, f) {
			clone := *l
			all = append(all, &clone)
		}
	}
	sortNewestFirst(all)
	total := int64(len(all))

	start := f.Page * f.PageSize
	if start > len(all) {
		start = len(all)
	}
	end := start + f.PageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (r *memListingRepo) FindBySeller(_ context.Context, sellerID string) ([]*domain.Listing, error) {
	var out []*domain.Listing
	for _, l := range r.listings {
		if l.SellerID == sellerID {
			clone := *l
			out = append(out, &clone)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (r *memListingRepo) UpdateSellerPhone(_ context.Context, sellerID, phone string) (int64, error) {
	var touched int64
	for _, l := range r.listings {
		if l.SellerID == sellerID {
			l.SellerPhone = phone
			touched++
		}
	}
	return touched, nil
}

type memImageRepo struct {
	images []*domain.ListingImage
}

func (r *memImageRepo) Add(_ context.Context, img *domain.ListingImage) error {
	clone := *img
	clone.ID = uuid.NewString()
	r.images = append(r.images, &clone)
	return nil
}

func (r *memImageRepo) FindByListingID(_ context.Context, listingID string) ([]*domain.ListingImage, error) {
	var out []*domain.ListingImage
	for _, img := range r.images {
		if img.ListingID == listingID {
			out = append(out, img)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *memImageRepo) FirstPathByListingIDs(ctx context.Context, ids []string) (map[string]string, error) {
	out := map[string]string{}
	for _, id := range ids {
		imgs, _ := r.FindByListingID(ctx, id)
		if len(imgs) > 0 {
			out[id] = imgs[0].Path
		}
	}
	return out, nil
}

type memFavoriteRepo struct {
	pairs map[string]struct{} // userID + "\x00" + listingID
}

func newMemFavoriteRepo() *memFavoriteRepo {
	return &memFavoriteRepo{pairs: map[string]struct{}{}}
}

func favKey(userID, listingID string) string { return userID + "\x00" + listingID }

func (r *memFavoriteRepo) Add(_ context.Context, f *domain.Favorite) error {
	key := favKey(f.UserID, f.ListingID)
	if _, ok := r.pairs[key]; ok {
		return domain.ErrDuplicateFavorite
	}
	r.pairs[key] = struct{}{}
	return nil
}

func (r *memFavoriteRepo) Remove(_ context.Context, userID, listingID string) error {
	key := favKey(userID, listingID)
	if _, ok := r.pairs[key]; !ok {
		return domain.ErrFavoriteNotFound
	}
	delete(r.pairs, key)
	return nil
}

func (r *memFavoriteRepo) Exists(_ context.Context, userID, listingID string) (bool, error) {
	_, ok := r.pairs[favKey(userID, listingID)]
	return ok, nil
}

func (r *memFavoriteRepo) ListingIDsByUser(_ context.Context, userID string) (map[string]struct{}, error) {
	out := map[string]struct{}{}
	prefix := userID + "\x00"
	for key := range r.pairs {
		if strings.HasPrefix(key, prefix) {
			out[strings.TrimPrefix(key, prefix)] = struct{}{}
		}
	}
	return out, nil
}

type memStorage struct{}

func (memStorage) Upload(context.Context, string, []byte, string) error { return nil }
func (memStorage) PublicURL(key string) string {
	return "https://cdn.test/car-images/" + key
}

type noCache struct{}

func (noCache) Get(context.Context, string, any, any) (bool, error) { return false, nil }
func (noCache) Set(context.Context, string, any, any) error         { return nil }
func (noCache) Invalidate(context.Context, ...string) error         { return nil }

type noPublisher struct{}

func (noPublisher) Publish(context.Context, string, any) error { return nil }

type noMailer struct{}

func (noMailer) SendListingCreatedEmail(string, string, *domain.Listing) error { return nil }

var _ mailer.Mailer = noMailer{}

type fakeProvider struct {
	lastUpdate *identity.UserUpdate
}

func (p *fakeProvider) SignUp(_ context.Context, email, _ string, meta identity.Metadata) (*identity.Session, error) {
	return &identity.Session{
		AccessToken: "tok",
		User:        identity.User{ID: "new-user", Email: email, Metadata: meta},
	}, nil
}

func (p *fakeProvider) SignInWithPassword(_ context.Context, email, password string) (*identity.Session, error) {
	if password != "correct" {
		return nil, identity.ErrInvalidCredentials
	}
	return &identity.Session{
		AccessToken: "tok",
		User:        identity.User{ID: "user-1", Email: email},
	}, nil
}

func (p *fakeProvider) OAuthURL(oauthProvider, redirectTo string) string {
	return "https://id.test/authorize?provider=" + oauthProvider + "&redirect_to=" + redirectTo
}

func (p *fakeProvider) SignOut(context.Context, string) error { return nil }

func (p *fakeProvider) GetUser(context.Context, string) (*identity.User, error) {
	return &identity.User{ID: "user-1"}, nil
}

func (p *fakeProvider) UpdateUser(_ context.Context, _ string, update identity.UserUpdate) (*identity.User, error) {
	p.lastUpdate = &update
	user := &identity.User{ID: "seller-1", Email: "seller@example.com"}
	if update.Metadata != nil {
		user.Metadata = *update.Metadata
	}
	return user, nil
}

func (p *fakeProvider) SendPasswordReset(context.Context, string, string) error { return nil }

// --- fixture ---

type apiFixture struct {
	handler   http.Handler
	listings  *memListingRepo
	images    *memImageRepo
	favorites *memFavoriteRepo
	provider  *fakeProvider
	sessions  *identity.SessionManager
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	log := logger.NewNop()
	mm := metrics.NewMetricsManager("carmarket_httptest")

	f := &apiFixture{
		listings:  newMemListingRepo(),
		images:    &memImageRepo{},
		favorites: newMemFavoriteRepo(),
		provider:  &fakeProvider{},
		sessions:  identity.NewSessionManager(log),
	}

	listingUC := usecase.NewListingUsecase(
		f.listings, f.images, f.favorites, memStorage{}, noCache{},
		noPublisher{}, noMailer{}, mm, log,
	)
	favoriteUC := usecase.NewFavoriteUsecase(
		f.favorites, f.listings, f.images, memStorage{}, noCache{}, mm, log,
	)
	photoUC := usecase.NewPhotoUsecase(
		f.listings, f.images, memStorage{}, noCache{}, usecase.MaxImagesPerUpload, mm, log,
	)

	handler := NewHandler(listingUC, favoriteUC, photoUC, f.provider, f.sessions,
		testJWTSecret, 6, mm, log)
	f.handler = handler.Routes()
	return f
}

func signToken(t *testing.T, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   userID,
		"email": userID + "@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
		"user_metadata": map[string]any{
			"full_name":    "Test User",
			"role":         "seller",
			"seller_phone": "+38345123456",
		},
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return signed
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) seedListings(t *testing.T, token string, n int, brand string) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		rec := f.do(t, http.MethodPost, "/api/listings", token, map[string]any{
			"brand": brand, "model": fmt.Sprintf("Model %d", i),
			"year": 2020, "price": 10000, "mileage": 50000,
			"gearbox": "manual", "fuel_type": "gasoline",
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var created struct {
			ID string `json:"id"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
		ids = append(ids, created.ID)
	}
	return ids
}

func (f *apiFixture) uploadImages(t *testing.T, token, listingID string, names ...string) uploadResponse {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for _, name := range names {
		part, err := writer.CreateFormFile("images", name)
		require.NoError(t, err)
		_, err = part.Write([]byte{0xFF, 0xD8, 0xFF})
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/listings/"+listingID+"/images", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var uploaded uploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &uploaded))
	return uploaded
}

// --- tests ---

func TestHealthz(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSearch_PaginatesThirteenAcrossFourPages(t *testing.T) {
	f := newAPIFixture(t)
	token := signToken(t, "seller-1")
	f.seedListings(t, token, 13, "Honda")

	wantLens := []int{6, 6, 1, 0}
	for page, wantLen := range wantLens {
		rec := f.do(t, http.MethodGet, fmt.Sprintf("/api/listings?page=%d", page), "", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp searchResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Len(t, resp.Items, wantLen, "page %d", page)
		assert.Equal(t, int64(13), resp.TotalCount, "total is page-independent")
		assert.Equal(t, 3, resp.TotalPages)
	}
}

func TestSearch_FilterRejectsMalformedNumbers(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/listings?year=twenty", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/listings?max_mileage=lots", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearch_FiltersAreConjunctive(t *testing.T) {
	f := newAPIFixture(t)
	token := signToken(t, "seller-1")
	f.seedListings(t, token, 3, "Honda")
	f.seedListings(t, token, 2, "Toyota")

	rec := f.do(t, http.MethodGet, "/api/listings?brand=toy&year=2020", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp searchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(2), resp.TotalCount)
	for _, item := range resp.Items {
		assert.Equal(t, "Toyota", item.Brand)
		assert.Equal(t, 2020, item.Year)
	}
}

func TestCreate_RequiresAuth(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodPost, "/api/listings", "", map[string]any{"brand": "X"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreate_RejectsBadToken(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, "/api/listings", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpdate_ForbiddenForNonOwner(t *testing.T) {
	f := newAPIFixture(t)
	owner := signToken(t, "seller-1")
	ids := f.seedListings(t, owner, 1, "Honda")

	intruder := signToken(t, "seller-2")
	rec := f.do(t, http.MethodPut, "/api/listings/"+ids[0], intruder, map[string]any{
		"brand": "Honda", "model": "Hacked", "year": 2020, "price": 1,
		"mileage": 1, "gearbox": "manual", "fuel_type": "gasoline",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDelete_RemovesFromSearch(t *testing.T) {
	f := newAPIFixture(t)
	token := signToken(t, "seller-1")
	ids := f.seedListings(t, token, 2, "Honda")

	rec := f.do(t, http.MethodDelete, "/api/listings/"+ids[0], token, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/listings", "", nil)
	var resp searchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.TotalCount)
}

func TestToggleFavorite_Idempotent(t *testing.T) {
	f := newAPIFixture(t)
	seller := signToken(t, "seller-1")
	ids := f.seedListings(t, seller, 1, "Honda")
	buyer := signToken(t, "buyer-1")

	toggle := func() bool {
		rec := f.do(t, http.MethodPost, "/api/favorites/"+ids[0]+"/toggle", buyer, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp map[string]bool
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		return resp["favorited"]
	}

	assert.True(t, toggle())
	assert.False(t, toggle())
	assert.True(t, toggle())
}

func TestToggleFavorite_UnknownListingIs404(t *testing.T) {
	f := newAPIFixture(t)
	buyer := signToken(t, "buyer-1")
	rec := f.do(t, http.MethodPost, "/api/favorites/ghost/toggle", buyer, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFavoritesPage_ShowsOnlyFavorited(t *testing.T) {
	f := newAPIFixture(t)
	seller := signToken(t, "seller-1")
	ids := f.seedListings(t, seller, 3, "Honda")
	buyer := signToken(t, "buyer-1")

	rec := f.do(t, http.MethodPost, "/api/favorites/"+ids[1]+"/toggle", buyer, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/favorites", buyer, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp searchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 1)
	assert.Equal(t, ids[1], resp.Items[0].ID)
	assert.True(t, resp.Items[0].IsFavorited)
}

func TestUploadImages_ThumbnailAppearsInSearch(t *testing.T) {
	f := newAPIFixture(t)
	token := signToken(t, "seller-1")
	ids := f.seedListings(t, token, 1, "Honda")

	uploaded := f.uploadImages(t, token, ids[0], "one.jpg", "two.jpg")
	require.Len(t, uploaded.Uploaded, 2)

	search := f.do(t, http.MethodGet, "/api/listings", "", nil)
	var resp searchResponse
	require.NoError(t, json.Unmarshal(search.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 1)
	assert.Equal(t, uploaded.Uploaded[0].PublicURL, resp.Items[0].ThumbnailURL,
		"thumbnail is the earliest uploaded image")
}

func TestUploadImages_RejectsOversizeBatch(t *testing.T) {
	f := newAPIFixture(t)
	token := signToken(t, "seller-1")
	ids := f.seedListings(t, token, 1, "Honda")

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for i := 0; i < usecase.MaxImagesPerUpload+1; i++ {
		part, err := writer.CreateFormFile("images", fmt.Sprintf("f%d.jpg", i))
		require.NoError(t, err)
		_, err = part.Write([]byte{1})
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/listings/"+ids[0]+"/images", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListingDetail_ContactAndMap(t *testing.T) {
	f := newAPIFixture(t)
	token := signToken(t, "seller-1")

	rec := f.do(t, http.MethodPost, "/api/listings", token, map[string]any{
		"brand": "Toyota", "model": "Corolla", "year": 2020, "price": 15000,
		"mileage": 42000, "gearbox": "manual", "fuel_type": "gasoline",
		"location_lat": 42.66, "location_lng": 21.16,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = f.do(t, http.MethodGet, "/api/listings/"+created.ID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var detail listingDetailResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Contains(t, detail.WhatsAppLink, "wa.me/%2B38345123456")
	assert.Contains(t, detail.MapEmbedURL, "openstreetmap.org")
	assert.Contains(t, detail.MapLink, "google.com/maps")
}

func TestCreateListing_RejectsLoneCoordinate(t *testing.T) {
	f := newAPIFixture(t)
	token := signToken(t, "seller-1")

	rec := f.do(t, http.MethodPost, "/api/listings", token, map[string]any{
		"brand": "Toyota", "model": "Corolla", "year": 2020, "price": 15000,
		"mileage": 42000, "gearbox": "manual", "fuel_type": "gasoline",
		"location_lat": 42.66,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMyListings_OnlyOwn(t *testing.T) {
	f := newAPIFixture(t)
	seller1 := signToken(t, "seller-1")
	seller2 := signToken(t, "seller-2")
	f.seedListings(t, seller1, 2, "Honda")
	f.seedListings(t, seller2, 3, "Toyota")

	rec := f.do(t, http.MethodGet, "/api/my/listings", seller1, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp searchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Items, 2)
	for _, item := range resp.Items {
		assert.Equal(t, "seller-1", item.SellerID)
	}
}

func TestLogin_EstablishesSession(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "user@example.com", "password": "correct",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	_, ok := f.sessions.Current("user-1")
	assert.True(t, ok)
}

func TestLogin_BadPassword(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "user@example.com", "password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegister_AssemblesSellerPhone(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "new@example.com", "password": "secret123",
		"full_name": "New Seller", "role": "seller",
		"dial_code": "+383", "phone": "045123456",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var session identity.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	assert.Equal(t, "+38345123456", session.User.Metadata.SellerPhone)
}

func TestRegister_RejectsInvalidPhone(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "new@example.com", "password": "secret123",
		"dial_code": "+383", "phone": "12",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateProfile_ApplyPhoneBackfillsListings(t *testing.T) {
	f := newAPIFixture(t)
	token := signToken(t, "seller-1")
	f.seedListings(t, token, 2, "Honda")

	rec := f.do(t, http.MethodPut, "/api/profile", token, map[string]string{
		"dial_code": "+49", "phone": "01511234567",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, f.provider.lastUpdate)
	assert.Equal(t, "+491511234567", f.provider.lastUpdate.Metadata.SellerPhone)

	rec = f.do(t, http.MethodPost, "/api/profile/apply-phone", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var applied map[string]int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &applied))
	assert.Equal(t, int64(2), applied["updated_count"])

	search := f.do(t, http.MethodGet, "/api/listings", "", nil)
	var resp searchResponse
	require.NoError(t, json.Unmarshal(search.Body.Bytes(), &resp))
	for _, item := range resp.Items {
		assert.Equal(t, "+491511234567", item.SellerPhone)
	}
}

func TestOAuthURL(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, "/api/auth/oauth-url?provider=google&redirect_to=https://app.test/cb", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp["url"], "provider=google")
}

func TestOAuthURL_RequiresProvider(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, "/api/auth/oauth-url", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdatePassword(t *testing.T) {
	f := newAPIFixture(t)
	token := signToken(t, "user-1")

	rec := f.do(t, http.MethodPost, "/api/auth/update-password", token, map[string]string{
		"password": "brand-new-secret",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, f.provider.lastUpdate)
	require.NotNil(t, f.provider.lastUpdate.Password)
	assert.Equal(t, "brand-new-secret", *f.provider.lastUpdate.Password)
}

func TestListImages_ReturnsUploadedBatch(t *testing.T) {
	f := newAPIFixture(t)
	token := signToken(t, "seller-1")
	ids := f.seedListings(t, token, 1, "Audi")

	f.uploadImages(t, token, ids[0], "one.jpg", "two.png")

	rec := f.do(t, http.MethodGet, "/api/listings/"+ids[0]+"/images", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp imagesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Images, 2)
	assert.Contains(t, resp.Images[0].PublicURL, ids[0])
}

func TestListImages_UnknownListing(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(t, http.MethodGet, "/api/listings/missing/images", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
