package domain

// Question is a bounty-bearing question posted by an account.
// Corresponds to the questions table in PostgreSQL.
type Question struct {
	QuestionID string  // 32-char hex store key, immutable
	Title      string  // short title
	Body       string  // question text
	Bounty     float64 // token quantity attached, >= 0
	Author     string  // checksummed account address
	PostedAt   int64   // Unix timestamp (seconds), client-supplied or assigned at creation
}

// Answer is an expert's answer to a question.
// Vote counters and the finalized flag live in the vote ledger (see Tally);
// AnswerView joins both for callers.
type Answer struct {
	AnswerID     string  // 32-char hex store key
	QuestionID   string  // owning question
	Body         string  // answer text
	Expert       string  // checksummed account address
	RewardEscrow float64 // escrowed reward, >= 0
	CreatedAt    int64   // Unix timestamp (seconds), opens the voting window
}

// AnswerView is an answer together with its current tally.
type AnswerView struct {
	Answer
	Tally Tally
}
