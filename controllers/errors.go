package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeremiapane/restaurant-orders/lifecycle"
	"github.com/yeremiapane/restaurant-orders/services"
	"github.com/yeremiapane/restaurant-orders/store"
	"github.com/yeremiapane/restaurant-orders/utils"
)

// ErrNoPermission adalah error custom untuk akses yang ditolak
var ErrNoPermission = &CustomError{"You do not have permission"}

type CustomError struct {
	Message string
}

func (e *CustomError) Error() string {
	return e.Message
}

var (
	ErrInvalidLimit   = errors.New("limit must be a positive number")
	ErrEstimateInPast = errors.New("estimatedReadyTime must not be in the past")
)

// statusFor memetakan error service ke HTTP status code
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation), errors.Is(err, lifecycle.ErrUnknownStatus):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound), errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, lifecycle.ErrInvalidTransition), errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func respondServiceError(c *gin.Context, err error) {
	code := statusFor(err)
	if code == http.StatusForbidden {
		utils.RespondError(c, code, ErrNoPermission)
		return
	}
	utils.RespondError(c, code, err)
}
