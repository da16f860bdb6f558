package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ajharbinger/perfeval/internal/errors"
	"github.com/ajharbinger/perfeval/internal/services"
)

const (
	readTimeout   = 5 * time.Second
	writeTimeout  = 10 * time.Second
	importTimeout = 30 * time.Second
)

func requestContext(c *gin.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), d)
}

// respondError writes err as JSON with the status of its AppError code.
// Errors that are not AppErrors are reported as internal errors.
func respondError(c *gin.Context, err error) {
	appErr, ok := errors.As(err)
	if !ok {
		appErr = errors.InternalError("unexpected error", err)
	}
	_ = c.Error(err)

	body := gin.H{
		"error": appErr.Message,
		"code":  appErr.Code,
	}
	if appErr.Details != "" {
		body["details"] = appErr.Details
	}
	if appErr.Fields != nil {
		body["fields"] = appErr.Fields
	}
	c.AbortWithStatusJSON(errors.HTTPStatus(appErr.Code), body)
}

// inputError converts a failure caused by the request's content. Anything
// WrapError does not recognise is the caller's fault here, not storage's.
func inputError(err error, op string) error {
	wrapped := services.WrapError(err, err.Error(), op)
	if appErr, ok := errors.As(wrapped); ok && appErr.Code == errors.ErrCodeDatabaseError {
		return errors.InvalidInput(err.Error(), err).WithOperation(op)
	}
	return wrapped
}

// bindJSON decodes the request body into dst and answers 400 on failure
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, errors.InvalidInput("invalid request body: "+err.Error(), err))
		return false
	}
	return true
}

func respondOK(c *gin.Context, body gin.H) {
	body["timestamp"] = time.Now()
	c.JSON(http.StatusOK, body)
}

func respondCreated(c *gin.Context, body gin.H) {
	body["timestamp"] = time.Now()
	c.JSON(http.StatusCreated, body)
}
