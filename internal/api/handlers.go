package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/roach88/vetogate/internal/config"
	"github.com/roach88/vetogate/internal/engine"
	"github.com/roach88/vetogate/internal/types"
)

const (
	defaultCommandLimit = 100
	maxCommandLimit     = 1000
)

type executeRequest struct {
	// Sender is a hex address or an account name.
	Sender string          `json:"sender" binding:"required"`
	Msg    json.RawMessage `json:"msg" binding:"required"`
}

type advanceRequest struct {
	Seconds uint64 `json:"seconds"`
	Blocks  uint64 `json:"blocks"`
}

type outcomeResponse struct {
	Outcome *engine.Outcome `json:"outcome,omitempty"`
	Error   *errorBody      `json:"error,omitempty"`
}

func (s *Server) chain(c *gin.Context) {
	st, err := s.engine.ChainState(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) advance(c *gin.Context) {
	var req advanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, types.Errorf(types.KindUnknownMessage, "advance: %v", err))
		return
	}
	if req.Seconds == 0 && req.Blocks == 0 {
		s.fail(c, types.Errorf(types.KindUnknownMessage, "advance: seconds or blocks is required"))
		return
	}
	_, err := s.engine.Submit(c.Request.Context(), engine.Request{
		Type:    engine.RequestAdvance,
		Seconds: time.Duration(req.Seconds) * time.Second,
		Blocks:  req.Blocks,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	s.chain(c)
}

func (s *Server) listContracts(c *gin.Context) {
	records, err := s.engine.Contracts(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contracts": records})
}

func (s *Server) getContract(c *gin.Context) {
	rec, err := s.engine.Lookup(c.Request.Context(), c.Param("contract"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// query takes the query message as the request body.
func (s *Server) query(c *gin.Context) {
	rec, err := s.engine.Lookup(c.Request.Context(), c.Param("contract"))
	if err != nil {
		s.fail(c, err)
		return
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		s.fail(c, err)
		return
	}
	if !json.Valid(body) {
		s.fail(c, types.Errorf(types.KindUnknownMessage, "query body is not JSON"))
		return
	}
	out, err := s.engine.Query(c.Request.Context(), rec.Address, json.RawMessage(body))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", out)
}

// execute runs a command through the engine loop. A failed command still
// returns its outcome next to the error.
func (s *Server) execute(c *gin.Context) {
	ctx := c.Request.Context()
	rec, err := s.engine.Lookup(ctx, c.Param("contract"))
	if err != nil {
		s.fail(c, err)
		return
	}
	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, types.Errorf(types.KindUnknownMessage, "execute: %v", err))
		return
	}
	sender, err := config.ResolveAccount(req.Sender)
	if err != nil {
		s.fail(c, err)
		return
	}

	out, err := s.engine.Submit(ctx, engine.Request{
		Type:     engine.RequestExecute,
		Sender:   sender,
		Contract: rec.Address,
		Msg:      req.Msg,
	})
	if err != nil {
		status, body := errorResponse(err)
		c.JSON(status, outcomeResponse{Outcome: out, Error: &body})
		return
	}
	c.JSON(http.StatusOK, outcomeResponse{Outcome: out})
}

func (s *Server) listCommands(c *gin.Context) {
	afterSeq, err := strconv.ParseInt(c.DefaultQuery("after", "0"), 10, 64)
	if err != nil || afterSeq < 0 {
		s.fail(c, types.Errorf(types.KindUnknownMessage, "after must be a non-negative integer"))
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultCommandLimit)))
	if err != nil || limit <= 0 {
		s.fail(c, types.Errorf(types.KindUnknownMessage, "limit must be a positive integer"))
		return
	}
	limit = min(limit, maxCommandLimit)

	records, err := s.engine.Commands(c.Request.Context(), afterSeq, limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"commands": records})
}
