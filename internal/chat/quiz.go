package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ponraviraj/gemini-chat/internal/llm"
)

// ErrNoQuiz signals an answer submitted without a pending question.
var ErrNoQuiz = errors.New("no pending quiz question")

const quizPrompt = `You are the quiz master of a small chat mini-game.
Reply with exactly two lines:
Question: <one short trivia question>
Answer: <the short answer, a few words at most>`

// QuizQuestion asks the model for a fresh trivia question and remembers
// the expected answer for this session. Asking again replaces any
// unanswered question.
func (s *Service) QuizQuestion(ctx context.Context, sessionID string) (string, error) {
	resp, err := s.client.Generate(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: quizPrompt},
		{Role: llm.RoleUser, Content: "Give me one new trivia question."},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	question, answer, err := parseQuiz(resp.Content)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	s.mu.Lock()
	s.quizzes[sessionID] = answer
	s.mu.Unlock()
	return question, nil
}

// QuizAnswer grades a guess against the pending question. Grading is a
// local case-insensitive containment check; no model call involved.
func (s *Service) QuizAnswer(sessionID, guess string) (correct bool, expected string, err error) {
	s.mu.Lock()
	expected, ok := s.quizzes[sessionID]
	delete(s.quizzes, sessionID)
	s.mu.Unlock()
	if !ok {
		return false, "", ErrNoQuiz
	}

	g := strings.ToLower(strings.TrimSpace(guess))
	e := strings.ToLower(strings.TrimSpace(expected))
	return g != "" && (strings.Contains(g, e) || strings.Contains(e, g)), expected, nil
}

func parseQuiz(text string) (question, answer string, err error) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		lower := strings.ToLower(line)
		switch {
		case strings.HasPrefix(lower, "question:"):
			question = strings.TrimSpace(line[len("question:"):])
		case strings.HasPrefix(lower, "answer:"):
			answer = strings.TrimSpace(line[len("answer:"):])
		}
	}
	if question == "" || answer == "" {
		return "", "", fmt.Errorf("malformed quiz reply %q", text)
	}
	return question, answer, nil
}
