package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/roach88/vetogate/internal/types"
)

type errorBody struct {
	Kind    types.ErrorKind `json:"kind"`
	Message string          `json:"message"`
}

// statusOf maps an error kind onto an HTTP status.
func statusOf(kind types.ErrorKind) int {
	switch kind {
	case types.KindNotFound, types.KindNoSuchProposal:
		return http.StatusNotFound
	case types.KindUnauthorized, types.KindForbiddenSubdao:
		return http.StatusForbidden
	case types.KindUnknownMessage, types.KindInvalidAddress, types.KindInvalidConfig,
		types.KindMessageUnsupported:
		return http.StatusBadRequest
	case types.KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusConflict
	}
}

func errorResponse(err error) (int, errorBody) {
	kind := types.KindOf(err)
	return statusOf(kind), errorBody{Kind: kind, Message: err.Error()}
}

func (s *Server) fail(c *gin.Context, err error) {
	status, body := errorResponse(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("api request failed", "path", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": body})
}
