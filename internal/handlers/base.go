package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	appctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/engine"
	"github.com/Ramsey-B/fern/pkg/models"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ParseUUID parses a UUID from a path parameter
func ParseUUID(c echo.Context, param string) (uuid.UUID, error) {
	idStr := c.Param(param)
	if idStr == "" {
		return uuid.Nil, httperror.NewHTTPError(http.StatusBadRequest, "missing "+param)
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid %s: must be a valid UUID", param)
	}

	return id, nil
}

// ParseProvider parses the :provider path parameter
func ParseProvider(c echo.Context) (models.Provider, error) {
	provider, err := models.ParseProvider(c.Param("provider"))
	if err != nil {
		return "", httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return provider, nil
}

// GetWorkspace returns the workspace the request is scoped to
func GetWorkspace(c echo.Context) string {
	return appctx.GetWorkspaceKey(c.Request().Context())
}

// ParseLimit reads a positive integer query parameter, falling back to def
func ParseLimit(c echo.Context, param string, def int) (int, error) {
	raw := c.QueryParam(param)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid %s: must be a positive integer", param)
	}
	return n, nil
}

// BindAndValidate decodes the request body into req and runs its validate tags
func BindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return BadRequest(validationMessage(err))
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	if fe.Param() != "" {
		return fe.Field() + " failed " + fe.Tag() + "=" + fe.Param()
	}
	return fe.Field() + " is " + fe.Tag()
}

// EngineError maps engine sentinel errors onto HTTP statuses
func EngineError(err error) error {
	switch {
	case err == nil:
		return nil
	case httperror.IsHTTPError(err):
		return err
	case errors.Is(err, engine.ErrConflictNotFound),
		errors.Is(err, engine.ErrWebhookEventNotFound):
		return httperror.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrCredentialMissing):
		return httperror.NewHTTPError(http.StatusNotFound, "connection not found")
	case errors.Is(err, engine.ErrConflictAlreadyResolved),
		errors.Is(err, engine.ErrWebhookEventTerminal),
		errors.Is(err, engine.ErrCredentialExpired):
		return httperror.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, engine.ErrAccountLabelRequired),
		errors.Is(err, engine.ErrUnknownResolution),
		errors.Is(err, engine.ErrInvalidLedgerEvent):
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrSecretWriteFailed):
		return httperror.NewHTTPError(http.StatusServiceUnavailable, "secret store unavailable")
	default:
		return err
	}
}

// SuccessResponse returns a 200 OK with data
func SuccessResponse(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, data)
}

// AcceptedResponse returns a 202 Accepted with data
func AcceptedResponse(c echo.Context, data any) error {
	return c.JSON(http.StatusAccepted, data)
}

// NoContentResponse returns a 204 No Content
func NoContentResponse(c echo.Context) error {
	return c.NoContent(http.StatusNoContent)
}

// BadRequest returns a 400 Bad Request error
func BadRequest(message string) error {
	return httperror.NewHTTPError(http.StatusBadRequest, message)
}

// NotFound returns a 404 Not Found error
func NotFound(message string) error {
	return httperror.NewHTTPError(http.StatusNotFound, message)
}

// Unauthorized returns a 401 Unauthorized error
func Unauthorized(message string) error {
	return httperror.NewHTTPError(http.StatusUnauthorized, message)
}

// ListResponse wraps a collection with its size
type ListResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

func newListResponse[T any](items []T) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Items: items, Count: len(items)}
}
