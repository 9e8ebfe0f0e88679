package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pot-code/learnsync/internal/infrastructure/auth"
)

// RefreshTokenOption ...
type RefreshTokenOption struct {
	Threshold time.Duration
}

// VerifyToken validate JWT
func VerifyToken(ju *auth.JWTUtil) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenStr, err := ju.ExtractToken(c)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
			}
			token, err := ju.Validate(tokenStr)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			ju.SetContextToken(c, token)
			return next(c)
		}
	}
}

// MatchUsername the token must act for the user named by the path param, must be chained after VerifyToken
func MatchUsername(ju *auth.JWTUtil, param string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims := ju.GetContextToken(c)
			if claims == nil || claims.Name != c.Param(param) {
				return echo.NewHTTPError(http.StatusForbidden, "token does not belong to this user")
			}
			return next(c)
		}
	}
}

// RefreshToken refresh jwt if necessary, must be chained after VerifyToken
func RefreshToken(ju *auth.JWTUtil, options ...*RefreshTokenOption) echo.MiddlewareFunc {
	threshold := 5 * time.Minute
	if len(options) > 0 {
		if option := options[0]; option.Threshold > 0 {
			threshold = option.Threshold
		}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims := ju.GetContextToken(c)
			if claims == nil {
				return next(c)
			}
			if claims.TimeRemaining() < threshold {
				ju.RefreshToken(claims)
				if tokenStr, err := ju.Sign(claims); err == nil {
					ju.SetClientToken(c, tokenStr)
				} else {
					return err
				}
			}
			return next(c)
		}
	}
}
