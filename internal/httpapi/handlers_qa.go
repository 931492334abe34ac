package httpapi

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"bounty-qa/internal/qa"
)

// bind decodes the JSON body into v.
func bind(c echo.Context, v any) error {
	if err := (&echo.DefaultBinder{}).BindBody(c, v); err != nil {
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	return nil
}

func (s *Server) handleCreateQuestion(c echo.Context) error {
	var req createQuestionRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	q, err := s.qa.CreateQuestion(c.Request().Context(), qa.NewQuestion{
		Title:    req.Title,
		Body:     req.Body,
		Author:   req.Author,
		Bounty:   req.Bounty,
		PostedAt: req.PostedAt,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toQuestion(q))
}

// handleListQuestions lists questions by decayed bounty, highest first.
func (s *Server) handleListQuestions(c echo.Context) error {
	ranked, err := s.qa.ListRanked(c.Request().Context())
	if err != nil {
		return err
	}

	resp := make([]questionResponse, 0, len(ranked))
	for _, r := range ranked {
		resp = append(resp, toRanked(r))
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGetQuestion(c echo.Context) error {
	q, err := s.qa.GetQuestion(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toQuestion(q))
}

func (s *Server) handleListAnswers(c echo.Context) error {
	views, err := s.qa.ListAnswers(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}

	resp := make([]answerResponse, 0, len(views))
	for _, v := range views {
		resp = append(resp, toAnswer(v))
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleCreateAnswer(c echo.Context) error {
	var req createAnswerRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	a, err := s.qa.CreateAnswer(ctx, qa.NewAnswer{
		QuestionID:   req.QuestionID,
		Body:         req.Body,
		Expert:       req.Expert,
		RewardEscrow: req.RewardEscrow,
	})
	if err != nil {
		return err
	}

	view, err := s.qa.GetAnswer(ctx, a.AnswerID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toAnswer(view))
}

func (s *Server) handleGetAnswer(c echo.Context) error {
	view, err := s.qa.GetAnswer(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toAnswer(view))
}
