package httpapi

import (
	"fmt"
	"net/http"

	"github.com/holiman/uint256"
	"github.com/labstack/echo/v4"

	"bounty-qa/internal/registry"
)

func (s *Server) handleGetValidator(c echo.Context) error {
	v, err := s.registry.GetValidator(c.Request().Context(), c.Param("account"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toValidator(v))
}

func (s *Server) handleStake(c echo.Context) error {
	amount, err := bindAmount(c)
	if err != nil {
		return err
	}

	v, err := s.registry.Stake(c.Request().Context(), c.Param("account"), amount)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toValidator(v))
}

func (s *Server) handleUnstake(c echo.Context) error {
	amount, err := bindAmount(c)
	if err != nil {
		return err
	}

	v, err := s.registry.Unstake(c.Request().Context(), c.Param("account"), amount)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toValidator(v))
}

// bindAmount decodes {"amount": "<decimal>"}.
func bindAmount(c echo.Context) (*uint256.Int, error) {
	var req amountRequest
	if err := bind(c, &req); err != nil {
		return nil, err
	}
	amount, err := uint256.FromDecimal(req.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: amount %q: %v", registry.ErrInvalidAmount, req.Amount, err)
	}
	return amount, nil
}
