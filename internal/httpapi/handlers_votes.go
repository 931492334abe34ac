package httpapi

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"bounty-qa/internal/idcodec"
	"bounty-qa/internal/platform/correlation"
)

// answerID reads and validates the :id path parameter.
func answerID(c echo.Context) (string, error) {
	id := c.Param("id")
	if err := idcodec.ValidateKey(id); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Server) handleCastVote(c echo.Context) error {
	id, err := answerID(c)
	if err != nil {
		return err
	}
	var req castVoteRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.Verdict == nil {
		return fmt.Errorf("%w: verdict is required", errInvalidBody)
	}

	ctx := correlation.WithValidator(c.Request().Context(), req.Validator)
	receipt, err := s.ledger.CastVote(ctx, id, req.Validator, *req.Verdict)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toReceipt(receipt))
}

func (s *Server) handleListVotes(c echo.Context) error {
	id, err := answerID(c)
	if err != nil {
		return err
	}

	votes, err := s.ledger.Votes(c.Request().Context(), id)
	if err != nil {
		return err
	}

	resp := make([]voteResponse, 0, len(votes))
	for _, v := range votes {
		resp = append(resp, toVote(v))
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleStatus(c echo.Context) error {
	id, err := answerID(c)
	if err != nil {
		return err
	}

	state, err := s.ledger.Status(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toStatus(state))
}

func (s *Server) handleFinalize(c echo.Context) error {
	id, err := answerID(c)
	if err != nil {
		return err
	}

	result, err := s.ledger.Finalize(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toFinalization(result))
}
