package handlers

import (
	"errors"
	"fmt"
	"strings"

	"taskify/backend/internal/apperror"
	"taskify/backend/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
)

var errInvalidID = apperror.Input("Invalid id")

func respondError(c *gin.Context, err error) {
	middleware.AbortWithError(c, err)
}

func bindJSON(c *gin.Context, obj interface{}) error {
	if err := c.ShouldBindJSON(obj); err != nil {
		return bindError(err)
	}
	return nil
}

// bindError reports the first failing field in the request's own terms.
func bindError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			return apperror.Input(fmt.Sprintf("%s is required", field))
		case "email":
			return apperror.Input(fmt.Sprintf("%s must be a valid email", field))
		case "min":
			return apperror.Input(fmt.Sprintf("%s must be at least %s characters", field, fe.Param()))
		case "max":
			return apperror.Input(fmt.Sprintf("%s must be at most %s characters", field, fe.Param()))
		case "oneof":
			return apperror.Input(fmt.Sprintf("%s must be one of: %s", field, fe.Param()))
		default:
			return apperror.Input(fmt.Sprintf("%s is invalid", field))
		}
	}
	return apperror.Input("Invalid request")
}

func paramID(c *gin.Context) (uuid.UUID, error) {
	id, err := uuid.FromString(c.Param("id"))
	if err != nil {
		return uuid.Nil, errInvalidID
	}
	return id, nil
}

// callerID reads the identity Protect stored; a missing one means the route
// was registered without Protect.
func callerID(c *gin.Context) (uuid.UUID, error) {
	id, ok := middleware.CurrentUserID(c)
	if !ok {
		return uuid.Nil, errors.New("handler reached without an authenticated identity")
	}
	return id, nil
}
