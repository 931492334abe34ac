package httpapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"bounty-qa/internal/domain"
	"bounty-qa/internal/ledger"
	"bounty-qa/internal/qa"
	"bounty-qa/internal/registry"
)

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

type errorKind struct {
	target error
	status int
	kind   string
}

// errorKinds maps the error taxonomy to HTTP. First match wins.
var errorKinds = []errorKind{
	{domain.ErrQuestionNotFound, http.StatusNotFound, "question_not_found"},
	{domain.ErrAnswerNotFound, http.StatusNotFound, "answer_not_found"},
	{domain.ErrNotAValidator, http.StatusForbidden, "not_a_validator"},
	{domain.ErrAlreadyVoted, http.StatusConflict, "already_voted"},
	{domain.ErrVotingClosed, http.StatusConflict, "voting_closed"},
	{domain.ErrVotingOpen, http.StatusConflict, "voting_open"},
	{domain.ErrDuplicateAnswer, http.StatusConflict, "duplicate_answer"},
	{domain.ErrInvalidIdentifier, http.StatusBadRequest, "invalid_identifier"},
	{domain.ErrInvalidBounty, http.StatusBadRequest, "invalid_bounty"},
	{qa.ErrMissingField, http.StatusBadRequest, "missing_field"},
	{registry.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{errInvalidBody, http.StatusBadRequest, "invalid_body"},
	{domain.ErrUpstreamTimeout, http.StatusGatewayTimeout, "upstream_timeout"},
	{domain.ErrRegistryUnavailable, http.StatusServiceUnavailable, "registry_unavailable"},
	{ledger.ErrRejected, http.StatusUnprocessableEntity, "ledger_rejected"},
}

// errInvalidBody wraps request decoding failures.
var errInvalidBody = errors.New("invalid request body")

// classifyError returns the status and kind for err.
func classifyError(err error) (int, string) {
	for _, k := range errorKinds {
		if errors.Is(err, k.target) {
			return k.status, k.kind
		}
	}
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code, kindForStatus(httpErr.Code)
	}
	return http.StatusInternalServerError, "internal"
}

func kindForStatus(status int) string {
	switch status {
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusBadRequest:
		return "bad_request"
	default:
		return "internal"
	}
}

func newErrorResponse(err error) (int, errorResponse) {
	status, kind := classifyError(err)
	msg := err.Error()
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		if m, ok := httpErr.Message.(string); ok {
			msg = m
		}
	}
	if status == http.StatusInternalServerError {
		msg = "internal server error"
	}
	return status, errorResponse{Error: kind, Message: msg, Retryable: domain.Retryable(err)}
}

// errorMiddleware converts handler errors into JSON error responses and logs
// them at a level matching their class.
func (s *Server) errorMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil || c.Response().Committed {
				return err
			}

			status, body := newErrorResponse(err)
			ctx := c.Request().Context()
			attrs := []any{"method", c.Request().Method, "path", c.Path(), "status", status, "error", err}
			switch {
			case status == http.StatusGatewayTimeout || status == http.StatusServiceUnavailable:
				s.logger.WarnContext(ctx, "request failed", attrs...)
			case status >= 500:
				s.logger.ErrorContext(ctx, "request failed", attrs...)
			default:
				s.logger.DebugContext(ctx, "request rejected", attrs...)
			}
			return c.JSON(status, body)
		}
	}
}

// httpErrorHandler renders errors raised outside handlers (unknown routes,
// panics recovered by middleware) in the same JSON shape.
func httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status, body := newErrorResponse(err)
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = c.JSON(status, body)
}
