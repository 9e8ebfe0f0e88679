package http

import (
	"context"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pot-code/learnsync/internal/feed"
	infra "github.com/pot-code/learnsync/internal/infrastructure"
	"github.com/pot-code/learnsync/internal/progress"
)

// FeedHandler live progress stream for other open surfaces of the same user
type FeedHandler struct {
	ProgressUseCase progress.UseCase
	Hub             *feed.Hub
}

func NewFeedHandler(ProgressUseCase progress.UseCase, Hub *feed.Hub) *FeedHandler {
	return &FeedHandler{ProgressUseCase, Hub}
}

// PrepareStream subscribes before reading the current state so no update in between is lost
func (fh *FeedHandler) PrepareStream(c echo.Context) (infra.StreamHandler, error) {
	username := c.Param("username")
	sub, err := fh.Hub.Subscribe(username)
	if err != nil {
		return nil, err
	}
	records, err := fh.ProgressUseCase.Fetch(c.Request().Context(), username)
	if err != nil {
		sub.Close()
		return nil, err
	}
	initial := &feed.Event{Username: username, Records: records}

	return func(ctx context.Context, conn *websocket.Conn) error {
		defer sub.Close()
		if err := infra.WriteJSON(conn, initial); err != nil {
			return err
		}
		for {
			select {
			case <-ctx.Done():
				infra.WriteClose(conn)
				return nil
			case payload, ok := <-sub.C:
				if !ok {
					return nil
				}
				if err := infra.WriteRaw(conn, payload); err != nil {
					return err
				}
			}
		}
	}, nil
}
