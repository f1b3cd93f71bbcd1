package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nodeos/storaged/pkg/storage"
)

// statusOf maps storage sentinels to HTTP statuses. Anything unmapped is a
// server error.
func statusOf(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrInvalidName), errors.Is(err, storage.ErrInvalidSize):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNoSpaceLeft), errors.Is(err, storage.ErrNoDeviceLeft):
		return http.StatusInsufficientStorage
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusOf(err), gin.H{"error": err.Error()})
}

func abortBadRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
