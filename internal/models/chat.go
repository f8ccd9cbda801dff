package models

import "time"

// Turn is one completed (user message, bot reply) exchange. Turns are
// immutable once written; Seq makes the transcript ordering explicit
// instead of relying on insertion order.
type Turn struct {
	Seq         int64     `json:"seq"`
	Username    string    `json:"username"`
	UserMessage string    `json:"user_message"`
	BotReply    string    `json:"bot_reply"`
	CreatedAt   time.Time `json:"created_at"`
}

// SendRequest is the JSON body for POST /api/chat/send.
type SendRequest struct {
	Message string `json:"message"`
}

// SendResponse is the reply envelope for POST /api/chat/send.
type SendResponse struct {
	Reply string `json:"reply"`
}

// TraceRecord is one hosted-model invocation logged to MongoDB.
type TraceRecord struct {
	Username  string    `json:"username"   bson:"username"`
	Prompt    string    `json:"prompt"     bson:"prompt"`
	Reply     string    `json:"reply"      bson:"reply"`
	Error     string    `json:"error,omitempty" bson:"error,omitempty"`
	Model     string    `json:"model"      bson:"model"`
	LatencyMS int64     `json:"latency_ms" bson:"latency_ms"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// QuizAnswerRequest is the JSON body for POST /api/quiz/answer.
type QuizAnswerRequest struct {
	Answer string `json:"answer"`
}
