package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"wallet-gateway/internal/adapter/http/dto"
	"wallet-gateway/internal/adapter/http/middleware"
	"wallet-gateway/pkg/apperror"
	"wallet-gateway/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

type request interface {
	Missing() []string
}

// bind decodes the JSON body into req, cleans its strings, then checks required
// fields before format rules. An empty body counts as an empty object.
// c.ShouldBindJSON is not used: it runs the binding tags on the raw input, so a
// malformed field would be reported ahead of a missing one, and before trimming.
func bind(c *gin.Context, req request) error {
	if err := json.NewDecoder(c.Request.Body).Decode(req); err != nil && !errors.Is(err, io.EOF) {
		return apperror.ErrInvalidRequest(err)
	}
	dto.SanitizeStruct(req)

	if missing := req.Missing(); len(missing) > 0 {
		return apperror.ErrMissingFields(strings.Join(missing, ", "))
	}
	if err := binding.Validator.ValidateStruct(req); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperror.ErrInvalidRequest(err)
	}
	fe := verrs[0]
	if fe.Tag() == "money" {
		return apperror.ErrInvalidAmount("Amount must have at most 2 decimal places")
	}
	return apperror.ErrInvalidFormat(fmt.Sprintf("Invalid value for %s", fe.Field()))
}

// idempotencyKey returns the optional Idempotency-Key header.
func idempotencyKey(c *gin.Context) (string, error) {
	key := strings.TrimSpace(c.GetHeader(middleware.HeaderIdempotencyKey))
	if key != "" && !dto.ValidReference(key) {
		return "", apperror.ErrInvalidFormat("Idempotency-Key must be 1-100 letters, digits, '_' or '-'")
	}
	return key, nil
}

// respond writes a fresh result, or a replayed one with the replay header.
func respond(c *gin.Context, body interface{}, replayed bool) {
	if replayed {
		response.Replay(c, body)
		return
	}
	response.OK(c, body)
}
