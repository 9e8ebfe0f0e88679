package http

import (
	"github.com/labstack/echo/v4"
	infra "github.com/pot-code/learnsync/internal/infrastructure"
)

func v1Endpoint(
	websocket *infra.Websocket,
	ProgressHandler *ProgressHandler,
	FeedHandler *FeedHandler,
	UserHandler *UserHandler,
	authMiddlewares []echo.MiddlewareFunc,
	traceLoggerMiddleware echo.MiddlewareFunc,
) *endpoint {
	return &endpoint{
		apiVersion:  "api/v1",
		middlewares: []echo.MiddlewareFunc{traceLoggerMiddleware},
		groups: []*apiGroup{
			{
				prefix: "/user",
				routes: []*route{
					{"POST", "/sign-up", UserHandler.HandleSignUp, nil},
					{"GET", "/exists", UserHandler.HandleUserExists, nil},
				},
			},
			{
				prefix:      "/progress",
				middlewares: authMiddlewares,
				routes: []*route{
					{"GET", "/:username", ProgressHandler.HandleFetch, nil},
					{"POST", "/:username/sync", ProgressHandler.HandleSyncMerge, nil},
					{"POST", "/:username/reset", ProgressHandler.HandleReset, nil},
				},
			},
			{
				prefix:      "/ws",
				middlewares: authMiddlewares,
				routes: []*route{
					{"GET", "/progress/:username", websocket.WithHeartbeat(FeedHandler.PrepareStream), nil},
				},
			},
		},
	}
}
