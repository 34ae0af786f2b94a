package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"payment-service/internal/apperr"
)

type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, envelope{Success: true, Data: data})
}

// respondError writes err in the error envelope. Internal errors carry a
// generic message only.
func respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(kind.HTTPStatus(), envelope{
		Error: &errorBody{Type: kind.String(), Message: apperr.PublicMessage(err)},
	})
}

func notFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, envelope{Error: &errorBody{Type: apperr.KindNotFound.String(), Message: "route not found"}})
}
