package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/elimuconnect/elimu/core/message"
)

type messageApi struct {
	svc      message.Service
	hub      *Hub
	validate *validator.Validate
}

func registerMessageAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc message.Service,
	hub *Hub,
	validate *validator.Validate,
) {
	api := messageApi{
		svc:      svc,
		hub:      hub,
		validate: validate,
	}

	mg := g.Group("/messages", jwt)
	mg.POST("", api.send)
	mg.GET("/conversations", api.conversations)
	mg.GET("/conversations/:partnerId", api.conversation)
	mg.POST("/conversations/:partnerId/read", api.markRead)
	mg.GET("/unread-count", api.unreadCount)
	if hub != nil {
		mg.GET("/inbox", api.inbox)
	}
}

// Handlers

func (api *messageApi) send(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data message.NewMessage
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMessage")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	msg, err := api.svc.Send(ctx.Request().Context(), claims.Subject, data)
	if err != nil {
		return errors.Wrap(err, "sending message")
	}
	return respond(ctx, http.StatusCreated, "message sent", msg)
}

func (api *messageApi) conversations(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	inbox, err := api.svc.ConversationList(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "listing conversations")
	}
	return respond(ctx, http.StatusOK, "", inbox)
}

func (api *messageApi) conversation(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	page, _ := strconv.Atoi(ctx.QueryParam("page"))
	size, _ := strconv.Atoi(ctx.QueryParam("size"))

	pg, err := api.svc.Conversation(ctx.Request().Context(), claims.Subject, ctx.Param("partnerId"), page, size)
	if err != nil {
		return errors.Wrap(err, "querying conversation")
	}
	return respond(ctx, http.StatusOK, "", pg)
}

func (api *messageApi) markRead(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	if err := api.svc.MarkRead(ctx.Request().Context(), claims.Subject, ctx.Param("partnerId")); err != nil {
		return errors.Wrap(err, "marking conversation read")
	}
	return respond(ctx, http.StatusOK, "conversation marked read", nil)
}

func (api *messageApi) unreadCount(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	count, err := api.svc.UnreadCount(ctx.Request().Context(), claims.Subject)
	if err != nil {
		return errors.Wrap(err, "counting unread messages")
	}
	return respond(ctx, http.StatusOK, "", echo.Map{"unread_count": count})
}

// inbox upgrades to a WebSocket that receives the caller's new messages as
// they are sent; polling the REST endpoints remains the source of truth.
func (api *messageApi) inbox(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	return api.hub.serve(ctx, claims.Subject)
}
