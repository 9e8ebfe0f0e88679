package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pot-code/learnsync/internal/infrastructure/validate"
	"github.com/pot-code/learnsync/internal/user"
)

type signUpBody struct {
	Username string `json:"username" validate:"notblank,max=64"`
}

// UserHandler user directory operations
type UserHandler struct {
	UserUseCase user.UserUseCase
	Validator   validate.Validator
}

// NewUserHandler create an user controller instance
func NewUserHandler(
	UserUseCase user.UserUseCase,
	Validator validate.Validator,
) *UserHandler {
	return &UserHandler{
		UserUseCase: UserUseCase,
		Validator:   Validator,
	}
}

// HandleSignUp registers a learner so that progress can be stored for them
func (uh *UserHandler) HandleSignUp(c echo.Context) error {
	post := new(signUpBody)
	if err := c.Bind(post); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if errs := localized(c, uh.Validator).Struct(post); errs != nil {
		return c.JSON(http.StatusBadRequest,
			NewRESTValidationError(http.StatusBadRequest, "Failed to validate fields", errs).
				SetTraceID(c.Response().Header().Get(echo.HeaderXRequestID)))
	}

	created, err := uh.UserUseCase.SignUp(c.Request().Context(), post.Username)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, created)
}

// HandleUserExists ...
func (uh *UserHandler) HandleUserExists(c echo.Context) error {
	username := c.QueryParam("username")
	if errs := localized(c, uh.Validator).Empty("username", username); errs != nil {
		return c.JSON(http.StatusBadRequest,
			NewRESTValidationError(http.StatusBadRequest, "Failed to validate params", errs).
				SetTraceID(c.Response().Header().Get(echo.HeaderXRequestID)))
	}

	exists, err := uh.UserUseCase.Exists(c.Request().Context(), username)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]bool{"exists": exists})
}
