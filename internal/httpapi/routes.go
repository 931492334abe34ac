package httpapi

import (
	"github.com/labstack/echo/v4"

	"bounty-qa/internal/observability"
	"bounty-qa/internal/platform/correlation"
)

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(observability.Handler()))

	api := s.echo.Group("/api")

	api.POST("/questions", s.handleCreateQuestion)
	api.GET("/questions", s.handleListQuestions)
	api.GET("/questions/:id", s.handleGetQuestion)
	api.GET("/questions/:id/answers", s.handleListAnswers)

	api.POST("/answers", s.handleCreateAnswer)

	answer := scopeParam("id", correlation.WithAnswer)
	api.GET("/answers/:id", s.handleGetAnswer, answer)
	api.POST("/answers/:id/votes", s.handleCastVote, answer)
	api.GET("/answers/:id/votes", s.handleListVotes, answer)
	api.GET("/answers/:id/status", s.handleStatus, answer)
	api.POST("/answers/:id/finalize", s.handleFinalize, answer)

	validator := scopeParam("account", correlation.WithValidator)
	api.GET("/validators/:account", s.handleGetValidator, validator)
	api.POST("/validators/:account/stake", s.handleStake, validator)
	api.POST("/validators/:account/unstake", s.handleUnstake, validator)

	if s.hub != nil {
		s.echo.GET("/ws/answers/:id", s.handleWebSocket)
	}
}
