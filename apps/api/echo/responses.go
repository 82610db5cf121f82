package echoapi

import "github.com/labstack/echo/v4"

// response is the JSON envelope every endpoint answers with.
type response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

func respond(ctx echo.Context, code int, msg string, data interface{}) error {
	return ctx.JSON(code, response{Success: true, Message: msg, Data: data})
}
