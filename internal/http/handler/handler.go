// Package handler exposes the orchestrator over a JSON HTTP API.
//
// Conventions:
//   - Errors are attached with c.Error for the access log and answered as
//     {"message": "..."}.
//   - Request bodies are decoded strictly: unknown fields are rejected.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edirooss/livepush/internal/apperr"
	"github.com/edirooss/livepush/internal/scheduler"
)

var (
	errEmptyBody    = errors.New("empty body")
	errTrailingJSON = errors.New("trailing data after JSON value")
)

func bind(req *http.Request, obj any) error {
	if req == nil || req.Body == nil {
		return errors.New("invalid request")
	}
	return decodeJSON(req.Body, obj)
}

func decodeJSON(r io.Reader, obj any) error {
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(obj); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	if decoder.More() {
		return errTrailingJSON
	}
	return nil
}

// statusOf maps an error kind to its HTTP status.
// Credential failures are checked before not-found and provisioning errors
// because both can wrap them.
func statusOf(err error) int {
	var (
		verr *apperr.ValidationError
		cerr *apperr.CredentialError
		perr *apperr.ProvisioningError
		lerr *apperr.EncoderLaunchError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &cerr):
		return http.StatusUnauthorized
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrLocked), errors.Is(err, scheduler.ErrExists):
		return http.StatusConflict
	case errors.As(err, &perr):
		return http.StatusBadGateway
	case errors.As(err, &lerr):
		if lerr.Reason == apperr.AlreadyRunning {
			return http.StatusConflict
		}
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

func fail(c *gin.Context, err error) {
	c.Error(err)
	c.JSON(statusOf(err), gin.H{"message": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.Error(err)
	c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
}
