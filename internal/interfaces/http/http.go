package http

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net/http"
	"net/http/pprof"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	echo_middleware "github.com/labstack/echo/v4/middleware"
	"github.com/pot-code/learnsync/internal/feed"
	infra "github.com/pot-code/learnsync/internal/infrastructure"
	"github.com/pot-code/learnsync/internal/infrastructure/auth"
	"github.com/pot-code/learnsync/internal/infrastructure/validate"
	"github.com/pot-code/learnsync/internal/interfaces/http/middleware"
	"github.com/pot-code/learnsync/internal/progress"
	"github.com/pot-code/learnsync/internal/user"
	"go.elastic.co/apm/module/apmechov4"
	"go.uber.org/zap"
)

type endpoint struct {
	apiVersion  string
	middlewares []echo.MiddlewareFunc
	groups      []*apiGroup
}

type apiGroup struct {
	prefix      string
	middlewares []echo.MiddlewareFunc
	routes      []*route
}

type route struct {
	method      string
	path        string
	handler     echo.HandlerFunc
	middlewares []echo.MiddlewareFunc
}

// Probe a backend checked by /healthz
type Probe struct {
	Name string
	Ping func(ctx context.Context) error
}

// Dependencies what the transport serves
type Dependencies struct {
	ProgressUseCase progress.UseCase
	UserUseCase     user.UserUseCase
	Hub             *feed.Hub
	Probes          []*Probe
}

// NewServer create http transport server
func NewServer(option *infra.AppConfig, deps *Dependencies, logger *zap.Logger) *echo.Echo {
	app := echo.New()
	app.HideBanner = true
	app.HidePort = true
	validator := validate.NewValidator()
	websocket := infra.NewWebsocket()

	var authMiddlewares []echo.MiddlewareFunc
	if option.AuthEnabled() {
		jwtUtil := auth.NewJWTUtil(option.Security.JWTMethod,
			option.Security.JWTSecret,
			option.Security.TokenName,
			option.Security.SessionTimeout)
		authMiddlewares = []echo.MiddlewareFunc{
			middleware.VerifyToken(jwtUtil),
			middleware.MatchUsername(jwtUtil, "username"),
			middleware.RefreshToken(jwtUtil),
		}
	}

	registerLivenessProbe(app, deps.Probes, logger)
	if option.Env == infra.EnvDevelopment {
		registerProfileEndpoints(app)
	}
	app.Use(echo_middleware.RequestID())
	app.Use(middleware.Logging(logger, &middleware.LoggingConfig{
		Skipper: func(e echo.Context) bool {
			return strings.HasPrefix(e.Request().RequestURI, "/healthz")
		},
	}))
	app.Use(middleware.ErrorHandling(
		&middleware.ErrorHandlingOption{
			Handler: func(c echo.Context, status int, traceID string, err error) {
				c.JSON(status, NewRESTStandardError(status, err.Error()).SetTraceID(traceID))
			},
			StatusOf: statusOf,
		},
	))
	app.Use(echo_middleware.Secure())
	if option.DevOP.APM {
		app.Use(apmechov4.Middleware())
	}
	app.Use(echo_middleware.CORS())
	app.Use(middleware.AbortRequest(&middleware.AbortRequestOption{
		Timeout: option.RequestTimeout,
	}))

	ProgressHandler := NewProgressHandler(deps.ProgressUseCase, validator)
	FeedHandler := NewFeedHandler(deps.ProgressUseCase, deps.Hub)
	UserHandler := NewUserHandler(deps.UserUseCase, validator)

	createEndpoint(app, v1Endpoint(
		websocket,
		ProgressHandler,
		FeedHandler,
		UserHandler,
		authMiddlewares,
		middleware.SetTraceLogger(logger),
	))

	printRoutes(app, logger)
	return app
}

// Serve listens on addr until ctx is done, then drains in-flight requests
func Serve(ctx context.Context, app *echo.Echo, addr string, logger *zap.Logger) error {
	errc := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.String("server.address", addr))
		errc <- app.Start(addr)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("http server stopped")
	return nil
}

func printRoutes(app *echo.Echo, logger *zap.Logger) {
	for _, route := range app.Routes() {
		if !strings.HasPrefix(route.Name, "github.com/labstack/echo") {
			name := route.Name
			trimIndex := strings.LastIndexByte(name, '/')
			logger.Debug("Registered route", zap.String("method", route.Method), zap.String("path", route.Path), zap.String("name", string(name[trimIndex+1:])))
		}
	}
}

func registerLivenessProbe(app *echo.Echo, probes []*Probe, logger *zap.Logger) {
	app.GET("/healthz", func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		for _, p := range probes {
			if err := p.Ping(ctx); err != nil {
				logger.Warn("liveness probe failed", zap.String("probe.name", p.Name), zap.Error(err))
				return c.NoContent(http.StatusServiceUnavailable)
			}
		}
		return c.NoContent(http.StatusOK)
	})
}

func registerProfileEndpoints(app *echo.Echo) {
	expvarHandler := expvar.Handler()
	app.GET("/debug/vars", func(c echo.Context) error {
		expvarHandler.ServeHTTP(c.Response().Writer, c.Request())
		return nil
	})
	app.GET("/debug/pprof/", func(c echo.Context) error {
		pprof.Index(c.Response().Writer, c.Request())
		return nil
	})
	app.GET("/debug/pprof/:name", func(c echo.Context) error {
		switch c.Param("name") {
		case "cmdline":
			pprof.Cmdline(c.Response().Writer, c.Request())
		case "profile":
			pprof.Profile(c.Response().Writer, c.Request())
		case "symbol":
			pprof.Symbol(c.Response().Writer, c.Request())
		case "trace":
			pprof.Trace(c.Response().Writer, c.Request())
		default:
			pprof.Handler(c.Param("name")).ServeHTTP(c.Response().Writer, c.Request())
		}
		return nil
	})
}

func createEndpoint(app *echo.Echo, def *endpoint) {
	type RESTMethod func(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route

	var root *echo.Group
	if strings.HasPrefix(def.apiVersion, "/") {
		root = app.Group(def.apiVersion, def.middlewares...)
	} else {
		root = app.Group("/"+def.apiVersion, def.middlewares...)
	}

	for _, group := range def.groups {
		echoGroup := root.Group(group.prefix, group.middlewares...)
		for _, api := range group.routes {
			var method RESTMethod
			switch api.method {
			case "GET":
				method = echoGroup.GET
			case "POST":
				method = echoGroup.POST
			case "PUT":
				method = echoGroup.PUT
			case "DELETE":
				method = echoGroup.DELETE
			default:
				panic(fmt.Errorf("createEndpoint: unknown method %s", api.method))
			}
			method(api.path, api.handler, api.middlewares...)
		}
	}
}
