package httpserver

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"carmarket/internal/identity"
	"carmarket/internal/listing/domain"
	"carmarket/internal/listing/usecase"
	"carmarket/internal/platform/logger"
	"carmarket/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxUploadBytes = 32 << 20

// Handler exposes the marketplace REST API.
type Handler struct {
	listings  *usecase.ListingUsecase
	favorites *usecase.FavoriteUsecase
	photos    *usecase.PhotoUsecase
	provider  identity.Provider
	sessions  *identity.SessionManager
	jwtSecret string
	pageSize  int
	metrics   *metrics.MetricsManager
	logger    *logger.Logger
}

func NewHandler(
	listings *usecase.ListingUsecase,
	favorites *usecase.FavoriteUsecase,
	photos *usecase.PhotoUsecase,
	provider identity.Provider,
	sessions *identity.SessionManager,
	jwtSecret string,
	pageSize int,
	mm *metrics.MetricsManager,
	log *logger.Logger,
) *Handler {
	if pageSize <= 0 {
		pageSize = 6
	}
	return &Handler{
		listings:  listings,
		favorites: favorites,
		photos:    photos,
		provider:  provider,
		sessions:  sessions,
		jwtSecret: jwtSecret,
		pageSize:  pageSize,
		metrics:   mm,
		logger:    log.Named("HTTPHandler"),
	}
}

// Routes assembles the API router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(h.requestLogging)
	r.Use(h.withPrincipal)

	r.Get("/healthz", h.health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/listings", func(r chi.Router) {
			r.Get("/", h.searchListings)
			r.Get("/{id}", h.getListing)
			r.Get("/{id}/images", h.listImages)

			r.Group(func(r chi.Router) {
				r.Use(h.requireAuth)
				r.Post("/", h.createListing)
				r.Put("/{id}", h.updateListing)
				r.Delete("/{id}", h.deleteListing)
				r.Post("/{id}/images", h.uploadImages)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Get("/my/listings", h.myListings)
			r.Get("/favorites", h.favoritesPage)
			r.Post("/favorites/{listingID}/toggle", h.toggleFavorite)
			r.Put("/profile", h.updateProfile)
			r.Post("/profile/apply-phone", h.applyPhone)
		})

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.register)
			r.Post("/login", h.login)
			r.Get("/oauth-url", h.oauthURL)
			r.Post("/reset-password", h.sendPasswordReset)
			r.With(h.requireAuth).Post("/logout", h.logout)
			r.With(h.requireAuth).Post("/update-password", h.updatePassword)
		})
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- listings ---

type listingPayload struct {
	ID          string    `json:"id"`
	Brand       string    `json:"brand"`
	Model       string    `json:"model"`
	Title       string    `json:"title"`
	Year        int       `json:"year"`
	Price       float64   `json:"price"`
	Mileage     float64   `json:"mileage"`
	Gearbox     string    `json:"gearbox"`
	FuelType    string    `json:"fuel_type"`
	SellerID    string    `json:"seller_id"`
	SellerName  string    `json:"seller_name,omitempty"`
	SellerPhone string    `json:"seller_phone,omitempty"`
	Description string    `json:"description,omitempty"`
	LocationLat *float64  `json:"location_lat,omitempty"`
	LocationLng *float64  `json:"location_lng,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toListingPayload(l *domain.Listing) listingPayload {
	return listingPayload{
		ID:          l.ID,
		Brand:       l.Brand,
		Model:       l.Model,
		Title:       l.Title(),
		Year:        l.Year,
		Price:       l.Price,
		Mileage:     l.Mileage,
		Gearbox:     string(l.Gearbox),
		FuelType:    string(l.FuelType),
		SellerID:    l.SellerID,
		SellerName:  l.SellerName,
		SellerPhone: l.SellerPhone,
		Description: l.Description,
		LocationLat: l.LocationLat,
		LocationLng: l.LocationLng,
		CreatedAt:   l.CreatedAt,
		UpdatedAt:   l.UpdatedAt,
	}
}

type listingCard struct {
	listingPayload
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	IsFavorited  bool   `json:"is_favorited"`
}

type searchResponse struct {
	Items      []listingCard `json:"items"`
	TotalCount int64         `json:"total_count"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
	TotalPages int           `json:"total_pages"`
}

func (h *Handler) toSearchResponse(result *domain.SearchResult, page, pageSize int) searchResponse {
	cards := make([]listingCard, 0, len(result.Items))
	for _, item := range result.Items {
		_, favorited := result.FavoritedIDs[item.ID]
		cards = append(cards, listingCard{
			listingPayload: toListingPayload(item),
			ThumbnailURL:   result.Thumbnails[item.ID],
			IsFavorited:    favorited,
		})
	}

	totalPages := 0
	if pageSize > 0 {
		totalPages = int((result.TotalCount + int64(pageSize) - 1) / int64(pageSize))
	}
	return searchResponse{
		Items:      cards,
		TotalCount: result.TotalCount,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}
}

// parseSearchFilter reads the search criteria from text query params.
// Malformed numbers are rejected, never silently ignored.
func (h *Handler) parseSearchFilter(r *http.Request) (domain.Filter, error) {
	q := r.URL.Query()
	filter := domain.Filter{
		Brand:    q.Get("brand"),
		Model:    q.Get("model"),
		PageSize: h.pageSize,
	}

	if raw := q.Get("year"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			return filter, fmt.Errorf("%w: year %q is not a number", domain.ErrInvalidInput, raw)
		}
		filter.Year = &year
	}
	if raw := q.Get("max_mileage"); raw != "" {
		mileage, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return filter, fmt.Errorf("%w: max_mileage %q is not a number", domain.ErrInvalidInput, raw)
		}
		filter.MaxMileage = &mileage
	}
	if raw := q.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 0 {
			return filter, fmt.Errorf("%w: page %q is not a valid page index", domain.ErrInvalidInput, raw)
		}
		filter.Page = page
	}
	if raw := q.Get("page_size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size <= 0 || size > 100 {
			return filter, fmt.Errorf("%w: page_size %q out of range", domain.ErrInvalidInput, raw)
		}
		filter.PageSize = size
	}
	return filter, nil
}

func (h *Handler) searchListings(w http.ResponseWriter, r *http.Request) {
	filter, err := h.parseSearchFilter(r)
	if err != nil {
		h.writeError(w, r, "search", err)
		return
	}

	userID := ""
	if p := principalFrom(r.Context()); p != nil {
		userID = p.UserID
	}

	result, err := h.listings.Search(r.Context(), filter, userID)
	if err != nil {
		h.writeError(w, r, "search", err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.toSearchResponse(result, filter.Page, filter.PageSize))
}

type listingDetailResponse struct {
	listingPayload
	ImageURLs    []string `json:"image_urls"`
	IsFavorited  bool     `json:"is_favorited"`
	WhatsAppLink string   `json:"whatsapp_link,omitempty"`
	MapEmbedURL  string   `json:"map_embed_url,omitempty"`
	MapLink      string   `json:"map_link,omitempty"`
}

func (h *Handler) getListing(w http.ResponseWriter, r *http.Request) {
	listingID := chi.URLParam(r, "id")

	userID := ""
	if p := principalFrom(r.Context()); p != nil {
		userID = p.UserID
	}

	detail, err := h.listings.GetDetail(r.Context(), listingID, userID)
	if err != nil {
		h.writeError(w, r, "get_listing", err)
		return
	}

	resp := listingDetailResponse{
		listingPayload: toListingPayload(detail.Listing),
		ImageURLs:      detail.ImageURLs,
		IsFavorited:    detail.IsFavorited,
		WhatsAppLink:   detail.WhatsAppLink,
	}
	if detail.Map != nil {
		resp.MapEmbedURL = detail.Map.EmbedURL
		resp.MapLink = detail.Map.ExternalURL
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type listingRequest struct {
	Brand       string   `json:"brand"`
	Model       string   `json:"model"`
	Year        int      `json:"year"`
	Price       float64  `json:"price"`
	Mileage     float64  `json:"mileage"`
	Gearbox     string   `json:"gearbox"`
	FuelType    string   `json:"fuel_type"`
	Description string   `json:"description"`
	LocationLat *float64 `json:"location_lat"`
	LocationLng *float64 `json:"location_lng"`
}

func (req listingRequest) toInput() usecase.ListingInput {
	return usecase.ListingInput{
		Brand:       req.Brand,
		Model:       req.Model,
		Year:        req.Year,
		Price:       req.Price,
		Mileage:     req.Mileage,
		Gearbox:     domain.Gearbox(req.Gearbox),
		FuelType:    domain.FuelType(req.FuelType),
		Description: req.Description,
		LocationLat: req.LocationLat,
		LocationLng: req.LocationLng,
	}
}

func (h *Handler) decodeJSON(r *http.Request, dest any) error {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		return fmt.Errorf("%w: malformed request body: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

func (h *Handler) createListing(w http.ResponseWriter, r *http.Request) {
	var req listingRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.writeError(w, r, "create_listing", err)
		return
	}

	listing, err := h.listings.Create(r.Context(), principalFrom(r.Context()), req.toInput())
	if err != nil {
		h.writeError(w, r, "create_listing", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toListingPayload(listing))
}

func (h *Handler) updateListing(w http.ResponseWriter, r *http.Request) {
	var req listingRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.writeError(w, r, "update_listing", err)
		return
	}

	listing, err := h.listings.Update(r.Context(), principalFrom(r.Context()), chi.URLParam(r, "id"), req.toInput())
	if err != nil {
		h.writeError(w, r, "update_listing", err)
		return
	}
	h.writeJSON(w, http.StatusOK, toListingPayload(listing))
}

func (h *Handler) deleteListing(w http.ResponseWriter, r *http.Request) {
	if err := h.listings.Delete(r.Context(), principalFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, "delete_listing", err)
		return
	}
	h.writeJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) myListings(w http.ResponseWriter, r *http.Request) {
	result, err := h.listings.Dashboard(r.Context(), principalFrom(r.Context()))
	if err != nil {
		h.writeError(w, r, "dashboard", err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.toSearchResponse(result, 0, len(result.Items)))
}

// --- images ---

type imagesResponse struct {
	Images []usecase.UploadResult `json:"images"`
}

func (h *Handler) listImages(w http.ResponseWriter, r *http.Request) {
	results, err := h.photos.List(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, "list_images", err)
		return
	}
	h.writeJSON(w, http.StatusOK, imagesResponse{Images: results})
}

func readUploadFile(header *multipart.FileHeader) (usecase.UploadFile, error) {
	file, err := header.Open()
	if err != nil {
		return usecase.UploadFile{}, fmt.Errorf("%w: opening %s: %v", domain.ErrInvalidInput, header.Filename, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return usecase.UploadFile{}, fmt.Errorf("%w: reading %s: %v", domain.ErrInvalidInput, header.Filename, err)
	}
	return usecase.UploadFile{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

type uploadResponse struct {
	Uploaded []usecase.UploadResult `json:"uploaded"`
	Error    string                 `json:"error,omitempty"`
}

func (h *Handler) uploadImages(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		h.writeError(w, r, "upload_images", fmt.Errorf("%w: malformed multipart body: %v", domain.ErrInvalidInput, err))
		return
	}

	headers := r.MultipartForm.File["images"]
	files := make([]usecase.UploadFile, 0, len(headers))
	for _, header := range headers {
		file, err := readUploadFile(header)
		if err != nil {
			h.writeError(w, r, "upload_images", err)
			return
		}
		files = append(files, file)
	}

	results, err := h.photos.Upload(r.Context(), principalFrom(r.Context()), chi.URLParam(r, "id"), files)
	if err != nil {
		// Earlier files may have made it; report them alongside the
		// failure instead of pretending nothing happened.
		if len(results) > 0 {
			h.logger.Warn("Partial image upload", zap.Int("stored", len(results)), zap.Error(err))
			h.writeJSON(w, http.StatusBadGateway, uploadResponse{Uploaded: results, Error: err.Error()})
			return
		}
		h.writeError(w, r, "upload_images", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, uploadResponse{Uploaded: results})
}

// --- favorites ---

func (h *Handler) toggleFavorite(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	state, err := h.favorites.Toggle(r.Context(), p.UserID, chi.URLParam(r, "listingID"))
	if err != nil {
		h.writeError(w, r, "toggle_favorite", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"favorited": state})
}

func (h *Handler) favoritesPage(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	result, err := h.favorites.Page(r.Context(), p.UserID)
	if err != nil {
		h.writeError(w, r, "favorites_page", err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.toSearchResponse(result, 0, len(result.Items)))
}

// --- profile ---

type profileRequest struct {
	FullName string `json:"full_name"`
	Role     string `json:"role"`
	DialCode string `json:"dial_code"`
	Phone    string `json:"phone"`
}

// assemblePhone turns the form's dial-code and free-text subscriber
// fields into one E.164 number. A bare pre-assembled number is also
// accepted.
func assemblePhone(dialCode, phone string) (string, error) {
	if phone == "" {
		return "", nil
	}
	if dialCode != "" {
		return identity.BuildE164(dialCode, phone)
	}
	normalized := identity.NormalizePhone(phone)
	if !identity.IsValidE164(normalized) {
		return "", identity.ErrInvalidPhone
	}
	return normalized, nil
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.writeError(w, r, "update_profile", err)
		return
	}

	p := principalFrom(r.Context())
	phone, err := assemblePhone(req.DialCode, req.Phone)
	if err != nil {
		h.writeError(w, r, "update_profile", err)
		return
	}

	meta := identity.Metadata{
		FullName:    req.FullName,
		Role:        req.Role,
		SellerPhone: phone,
	}
	if meta.FullName == "" {
		meta.FullName = p.FullName
	}
	if meta.Role == "" {
		meta.Role = p.Role
	}
	if meta.SellerPhone == "" {
		meta.SellerPhone = p.SellerPhone
	}

	user, err := h.provider.UpdateUser(r.Context(), accessTokenFrom(r.Context()), identity.UserUpdate{Metadata: &meta})
	if err != nil {
		h.writeError(w, r, "update_profile", err)
		return
	}

	h.sessions.Update(identity.Principal{
		UserID:      user.ID,
		Email:       user.Email,
		FullName:    user.Metadata.FullName,
		Role:        user.Metadata.Role,
		SellerPhone: user.Metadata.SellerPhone,
	})
	h.writeJSON(w, http.StatusOK, user)
}

func (h *Handler) applyPhone(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())

	// The stored session may carry a fresher phone than the token claim.
	if current, ok := h.sessions.Current(p.UserID); ok && current.SellerPhone != "" {
		p = &current
	}

	touched, err := h.listings.ApplyPhoneToListings(r.Context(), p)
	if err != nil {
		h.writeError(w, r, "apply_phone", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int64{"updated_count": touched})
}

// --- auth ---

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
	DialCode string `json:"dial_code"`
	Phone    string `json:"phone"`
}

func principalFromSession(s *identity.Session) identity.Principal {
	return identity.Principal{
		UserID:      s.User.ID,
		Email:       s.User.Email,
		FullName:    s.User.Metadata.FullName,
		Role:        s.User.Metadata.Role,
		SellerPhone: s.User.Metadata.SellerPhone,
	}
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.writeError(w, r, "register", err)
		return
	}
	if req.Email == "" || req.Password == "" {
		h.writeError(w, r, "register", fmt.Errorf("%w: email and password are required", domain.ErrInvalidInput))
		return
	}

	phone, err := assemblePhone(req.DialCode, req.Phone)
	if err != nil {
		h.writeError(w, r, "register", err)
		return
	}

	role := req.Role
	if role == "" {
		role = "buyer"
	}

	session, err := h.provider.SignUp(r.Context(), req.Email, req.Password, identity.Metadata{
		FullName:    req.FullName,
		Role:        role,
		SellerPhone: phone,
	})
	if err != nil {
		h.writeError(w, r, "register", err)
		return
	}

	h.sessions.Establish(principalFromSession(session))
	h.writeJSON(w, http.StatusCreated, session)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.writeError(w, r, "login", err)
		return
	}

	session, err := h.provider.SignInWithPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, "login", err)
		return
	}

	h.sessions.Establish(principalFromSession(session))
	h.writeJSON(w, http.StatusOK, session)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())

	if err := h.provider.SignOut(r.Context(), accessTokenFrom(r.Context())); err != nil {
		h.logger.Warn("Provider sign-out failed, clearing local session anyway", zap.Error(err))
	}
	h.sessions.Clear(p.UserID)
	h.writeJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) oauthURL(w http.ResponseWriter, r *http.Request) {
	oauthProvider := r.URL.Query().Get("provider")
	if oauthProvider == "" {
		h.writeError(w, r, "oauth_url", fmt.Errorf("%w: provider is required", domain.ErrInvalidInput))
		return
	}
	redirectTo := r.URL.Query().Get("redirect_to")
	h.writeJSON(w, http.StatusOK, map[string]string{"url": h.provider.OAuthURL(oauthProvider, redirectTo)})
}

type updatePasswordRequest struct {
	Password string `json:"password"`
}

func (h *Handler) updatePassword(w http.ResponseWriter, r *http.Request) {
	var req updatePasswordRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.writeError(w, r, "update_password", err)
		return
	}
	if req.Password == "" {
		h.writeError(w, r, "update_password", fmt.Errorf("%w: password is required", domain.ErrInvalidInput))
		return
	}

	if _, err := h.provider.UpdateUser(r.Context(), accessTokenFrom(r.Context()), identity.UserUpdate{Password: &req.Password}); err != nil {
		h.writeError(w, r, "update_password", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

type recoverRequest struct {
	Email      string `json:"email"`
	RedirectTo string `json:"redirect_to"`
}

func (h *Handler) sendPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req recoverRequest
	if err := h.decodeJSON(r, &req); err != nil {
		h.writeError(w, r, "recover", err)
		return
	}
	if req.Email == "" {
		h.writeError(w, r, "recover", fmt.Errorf("%w: email is required", domain.ErrInvalidInput))
		return
	}

	if err := h.provider.SendPasswordReset(r.Context(), req.Email, req.RedirectTo); err != nil {
		h.writeError(w, r, "recover", err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}
