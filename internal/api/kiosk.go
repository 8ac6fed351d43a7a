package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Proton-105/omnikiosk/internal/errors"
	"github.com/Proton-105/omnikiosk/internal/flow"
)

type selectChainRequest struct {
	ChainID int64 `json:"chainId" binding:"required,gt=0"`
}

type sessionRequest struct {
	Address string `json:"address" binding:"omitempty,eth_addr"`
	ChainID int64  `json:"chainId" binding:"gte=0"`
}

func (s *Server) respondState(c *gin.Context) {
	snapshot := s.deps.Kiosk.Snapshot()
	c.JSON(http.StatusOK, StateResponse{
		State: snapshot,
		View:  buildView(s.deps.Catalog.Translator(c.Query("lang")), snapshot),
	})
}

// act runs a flow action and answers with the resulting state.
func (s *Server) act(action func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := action(c.Request.Context()); err != nil {
			s.fail(c, err)
			return
		}
		s.respondState(c)
	}
}

func (s *Server) state(c *gin.Context) {
	s.respondState(c)
}

func (s *Server) chains(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"chains": chainOptions(s.deps.Kiosk.Config())})
}

func (s *Server) start(c *gin.Context) {
	s.act(s.deps.Kiosk.Start)(c)
}

func (s *Server) selectChain(c *gin.Context) {
	var req selectChainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, errors.NewValidationError("chainId is required"))
		return
	}

	s.act(func(ctx context.Context) error {
		return s.deps.Kiosk.SelectChain(ctx, req.ChainID)
	})(c)
}

func (s *Server) connect(c *gin.Context) {
	s.act(s.deps.Kiosk.RequestConnect)(c)
}

func (s *Server) session(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, errors.NewValidationError("address must be an EVM address and chainId a chain id"))
		return
	}

	s.act(func(ctx context.Context) error {
		return s.deps.Kiosk.OnSession(ctx, flow.Session{Address: req.Address, ChainID: req.ChainID})
	})(c)
}

func (s *Server) pay(c *gin.Context) {
	s.act(s.deps.Kiosk.Pay)(c)
}

func (s *Server) cancel(c *gin.Context) {
	s.act(s.deps.Kiosk.Cancel)(c)
}

func (s *Server) confirmCancel(c *gin.Context) {
	s.act(s.deps.Kiosk.ConfirmCancel)(c)
}

func (s *Server) dismissCancel(c *gin.Context) {
	s.act(s.deps.Kiosk.KeepGoing)(c)
}
