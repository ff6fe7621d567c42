package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrOffline is returned by Offline for narration so callers use their templates.
var ErrOffline = errors.New("offline generator")

// Scripted replays canned responses in order. When the script runs out it repeats
// the last response. Used by tests.
type Scripted struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	calls     []CompletionRequest
}

// NewScripted creates a client answering with responses in order.
func NewScripted(responses ...string) *Scripted {
	return &Scripted{responses: responses}
}

// FailWith makes the next calls fail with errs in order (nil entries succeed).
func (s *Scripted) FailWith(errs ...error) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, errs...)
	return s
}

func (s *Scripted) Complete(_ context.Context, in CompletionRequest) (CompletionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, in)

	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return CompletionResponse{}, err
		}
	}
	if len(s.responses) == 0 {
		return CompletionResponse{}, nil
	}
	out := s.responses[0]
	if len(s.responses) > 1 {
		s.responses = s.responses[1:]
	}
	return CompletionResponse{Content: out, StopReason: "end_turn"}, nil
}

func (s *Scripted) Model() string { return "scripted" }

// Calls returns the requests received so far.
func (s *Scripted) Calls() []CompletionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]CompletionRequest(nil), s.calls...)
}

// Offline answers without a model: it approves every review, declines narration
// and writes placeholder files. Used by demo mode.
type Offline struct{}

// NewOffline returns the offline client.
func NewOffline() Offline { return Offline{} }

func (Offline) Model() string { return "offline" }

func (Offline) Complete(_ context.Context, in CompletionRequest) (CompletionResponse, error) {
	switch in.Purpose {
	case PurposeVerdict:
		return CompletionResponse{
			Content:    `{"approved": true, "changesRequested": false, "body": "Read through the change set; nothing blocking.", "summary": "Looks good to me"}`,
			StopReason: "end_turn",
		}, nil
	case PurposeCode:
		title := "generated file"
		if len(in.Messages) > 0 {
			title = firstLine(in.Messages[len(in.Messages)-1].Content)
		}
		return CompletionResponse{
			Content:    fmt.Sprintf("// %s\n", strings.TrimSpace(title)),
			StopReason: "end_turn",
		}, nil
	default:
		return CompletionResponse{}, ErrOffline
	}
}
