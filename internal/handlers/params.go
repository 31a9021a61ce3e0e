// internal/handlers/params.go
package handlers

import (
	"strconv"

	xerrors "isp-billing-service/internal/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// ParamID parses a positive int64 path parameter.
func ParamID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, xerrors.NewValidation(name, "must be a positive integer")
	}
	return id, nil
}

// QueryID parses an optional positive int64 query parameter.
func QueryID(c *gin.Context, name string) (*int64, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, xerrors.NewValidation(name, "must be a positive integer")
	}
	return &id, nil
}

// QueryAmount parses a required decimal query parameter.
func QueryAmount(c *gin.Context, name string) (decimal.Decimal, error) {
	raw := c.Query(name)
	if raw == "" {
		return decimal.Zero, xerrors.NewValidation(name, "is required")
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, xerrors.NewValidation(name, "must be a number")
	}
	return d, nil
}

// RequiredQueryID is QueryID for a parameter that must be present.
func RequiredQueryID(c *gin.Context, name string) (int64, error) {
	id, err := QueryID(c, name)
	if err != nil {
		return 0, err
	}
	if id == nil {
		return 0, xerrors.NewValidation(name, "is required")
	}
	return *id, nil
}
