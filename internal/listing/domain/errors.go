package domain

import "errors"

var (
	ErrNotFound          = errors.New("listing not found")
	ErrFavoriteNotFound  = errors.New("favorite not found")
	ErrDuplicateFavorite = errors.New("favorite already exists")
	ErrForbidden         = errors.New("user not authorized to perform this action")
	ErrUnauthenticated   = errors.New("authentication required")
	ErrInvalidInput      = errors.New("invalid input")
	ErrRepository        = errors.New("repository failure")
	ErrImageUpload       = errors.New("image upload failed")
	ErrTooManyImages     = errors.New("too many images in one upload")
)
