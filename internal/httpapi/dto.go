package httpapi

import (
	"bounty-qa/internal/domain"
	"bounty-qa/internal/ranking"
)

type createQuestionRequest struct {
	Title    string  `json:"title"`
	Body     string  `json:"body"`
	Author   string  `json:"author"`
	Bounty   float64 `json:"bounty"`
	PostedAt *int64  `json:"posted_at,omitempty"`
}

type createAnswerRequest struct {
	QuestionID   string  `json:"question_id"`
	Body         string  `json:"body"`
	Expert       string  `json:"expert"`
	RewardEscrow float64 `json:"reward_escrow"`
}

type castVoteRequest struct {
	Validator string `json:"validator"`
	Verdict   *bool  `json:"verdict"`
}

type amountRequest struct {
	// Amount is a decimal token amount in base units.
	Amount string `json:"amount"`
}

type questionResponse struct {
	QuestionID string   `json:"question_id"`
	Title      string   `json:"title"`
	Body       string   `json:"body"`
	Bounty     float64  `json:"bounty"`
	Author     string   `json:"author"`
	PostedAt   int64    `json:"posted_at"`
	Score      *float64 `json:"score,omitempty"`
}

type tallyResponse struct {
	Upvotes     int64  `json:"upvotes"`
	Downvotes   int64  `json:"downvotes"`
	Finalized   bool   `json:"finalized"`
	Disposition string `json:"disposition"`
}

type answerResponse struct {
	AnswerID     string        `json:"answer_id"`
	QuestionID   string        `json:"question_id"`
	Body         string        `json:"body"`
	Expert       string        `json:"expert"`
	RewardEscrow float64       `json:"reward_escrow"`
	CreatedAt    int64         `json:"created_at"`
	Tally        tallyResponse `json:"tally"`
}

type voteResponse struct {
	AnswerID  string `json:"answer_id"`
	Validator string `json:"validator"`
	Verdict   bool   `json:"verdict"`
	CastAt    int64  `json:"cast_at"`
}

type receiptResponse struct {
	voteResponse
	Upvotes   int64 `json:"upvotes"`
	Downvotes int64 `json:"downvotes"`
}

type statusResponse struct {
	AnswerID string        `json:"answer_id"`
	Status   string        `json:"status"`
	ClosesAt int64         `json:"closes_at"`
	Tally    tallyResponse `json:"tally"`
}

type finalizationResponse struct {
	AnswerID    string `json:"answer_id"`
	Upvotes     int64  `json:"upvotes"`
	Downvotes   int64  `json:"downvotes"`
	Disposition string `json:"disposition"`
	FirstTime   bool   `json:"first_time"`
}

type validatorResponse struct {
	Account      string `json:"account"`
	IsValidator  bool   `json:"is_validator"`
	StakedAmount string `json:"staked_amount"`
}

func toQuestion(q *domain.Question) questionResponse {
	return questionResponse{
		QuestionID: q.QuestionID,
		Title:      q.Title,
		Body:       q.Body,
		Bounty:     q.Bounty,
		Author:     q.Author,
		PostedAt:   q.PostedAt,
	}
}

func toRanked(r ranking.Ranked) questionResponse {
	resp := toQuestion(r.Question)
	score := r.Score
	resp.Score = &score
	return resp
}

func toTally(t domain.Tally) tallyResponse {
	return tallyResponse{
		Upvotes:     t.Upvotes,
		Downvotes:   t.Downvotes,
		Finalized:   t.Finalized,
		Disposition: t.Disposition.String(),
	}
}

func toAnswer(v *domain.AnswerView) answerResponse {
	return answerResponse{
		AnswerID:     v.AnswerID,
		QuestionID:   v.QuestionID,
		Body:         v.Body,
		Expert:       v.Expert,
		RewardEscrow: v.RewardEscrow,
		CreatedAt:    v.CreatedAt,
		Tally:        toTally(v.Tally),
	}
}

func toVote(v *domain.Vote) voteResponse {
	return voteResponse{
		AnswerID:  v.AnswerID,
		Validator: v.Validator,
		Verdict:   v.Verdict,
		CastAt:    v.CastAt,
	}
}

func toReceipt(r *domain.VoteReceipt) receiptResponse {
	return receiptResponse{
		voteResponse: voteResponse{
			AnswerID:  r.AnswerID,
			Validator: r.Validator,
			Verdict:   r.Verdict,
			CastAt:    r.CastAt,
		},
		Upvotes:   r.Upvotes,
		Downvotes: r.Downvotes,
	}
}

func toStatus(s *domain.VotingState) statusResponse {
	return statusResponse{
		AnswerID: s.AnswerID,
		Status:   string(s.Status),
		ClosesAt: s.ClosesAt,
		Tally:    toTally(s.Tally),
	}
}

func toFinalization(r *domain.FinalizationResult) finalizationResponse {
	return finalizationResponse{
		AnswerID:    r.AnswerID,
		Upvotes:     r.Upvotes,
		Downvotes:   r.Downvotes,
		Disposition: r.Disposition.String(),
		FirstTime:   r.FirstTime,
	}
}

func toValidator(v *domain.Validator) validatorResponse {
	staked := "0"
	if v.StakedAmount != nil {
		staked = v.StakedAmount.Dec()
	}
	return validatorResponse{
		Account:      v.Account,
		IsValidator:  v.IsValidator,
		StakedAmount: staked,
	}
}
