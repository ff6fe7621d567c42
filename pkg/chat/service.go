// Package chat is the team's chat feed and the command router that turns chat
// messages into review requests and status queries.
package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"devteam/pkg/config"
	"devteam/pkg/logx"
	"devteam/pkg/persistence"
)

const (
	// DefaultMaxMessageChars is the default maximum length for a chat message.
	DefaultMaxMessageChars = 4096

	// DefaultHistorySize is how many messages the feed keeps in memory.
	DefaultHistorySize = 500

	// TruncationSuffix is appended to messages that exceed the max length.
	TruncationSuffix = " … [truncated]"
)

// Post types.
const (
	PostChat  = "chat"
	PostReply = "reply"
	PostError = "error"
)

// Message is one chat post.
type Message struct {
	ID        string    `json:"id"`
	Channel   string    `json:"channel"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	PostType  string    `json:"post_type"`
	CreatedAt time.Time `json:"created_at"`
}

// PostRequest represents a chat post request.
type PostRequest struct {
	Channel  string // defaults to the service's default channel
	Author   string
	Text     string
	PostType string // chat, reply or error (defaults to chat)
}

// Service is the in-memory chat feed with size enforcement, secret redaction,
// an optional persistence journal and subscriber fan-out.
type Service struct {
	mu          sync.RWMutex
	history     []Message
	historySize int
	subscribers map[int]func(Message)
	nextSub     int

	scanner        SecretScanner
	maxChars       int
	defaultChannel string
	journal        chan<- *persistence.Request
	now            func() time.Time
	logger         *logx.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithJournal persists every post through the persistence worker channel.
func WithJournal(ch chan<- *persistence.Request) ServiceOption {
	return func(s *Service) { s.journal = ch }
}

// WithScanner overrides the secret scanner; nil disables redaction.
func WithScanner(sc SecretScanner) ServiceOption {
	return func(s *Service) { s.scanner = sc }
}

// WithHistorySize sets how many messages are kept in memory.
func WithHistorySize(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.historySize = n
		}
	}
}

// WithNow overrides the time source.
func WithNow(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService creates a chat feed configured by cfg (nil means defaults).
func NewService(cfg *config.ChatConfig, opts ...ServiceOption) *Service {
	logger := logx.NewLogger("chat")
	s := &Service{
		historySize:    DefaultHistorySize,
		subscribers:    make(map[int]func(Message)),
		maxChars:       DefaultMaxMessageChars,
		defaultChannel: "general",
		now:            time.Now,
		logger:         logger,
	}
	if cfg != nil {
		if cfg.MaxMessageChars > 0 {
			s.maxChars = cfg.MaxMessageChars
		}
		if cfg.DefaultChannel != "" {
			s.defaultChannel = cfg.DefaultChannel
		}
	}
	if cfg == nil || cfg.ScannerEnabled {
		sc, err := NewPatternScanner()
		if err != nil {
			logger.Error("Secret scanner unavailable: %v", err)
		} else {
			s.scanner = sc
		}
	} else {
		logger.Warn("Chat secret scanner disabled")
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultChannel returns the channel used when a post names none.
func (s *Service) DefaultChannel() string {
	return s.defaultChannel
}

// Post adds a message to the feed after truncating it and redacting secrets, then
// hands it to every subscriber.
func (s *Service) Post(_ context.Context, req *PostRequest) (*Message, error) {
	if req.Author == "" {
		return nil, fmt.Errorf("author is required")
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("text is required")
	}

	text := req.Text
	if len(text) > s.maxChars && s.maxChars > len(TruncationSuffix) {
		text = text[:s.maxChars-len(TruncationSuffix)] + TruncationSuffix
		s.logger.Debug("Truncated message from %s (original: %d chars, max: %d)", req.Author, len(req.Text), s.maxChars)
	}
	if s.scanner != nil {
		text = RedactSecrets(s.scanner, text)
	}

	msg := Message{
		ID:        uuid.New().String(),
		Channel:   req.Channel,
		Author:    req.Author,
		Text:      text,
		PostType:  req.PostType,
		CreatedAt: s.now().UTC(),
	}
	if msg.Channel == "" {
		msg.Channel = s.defaultChannel
	}
	if msg.PostType == "" {
		msg.PostType = PostChat
	}

	s.mu.Lock()
	s.history = append(s.history, msg)
	if over := len(s.history) - s.historySize; over > 0 {
		s.history = append([]Message(nil), s.history[over:]...)
	}
	subs := make([]func(Message), 0, len(s.subscribers))
	for i := 0; i < s.nextSub; i++ {
		if fn, ok := s.subscribers[i]; ok {
			subs = append(subs, fn)
		}
	}
	s.mu.Unlock()

	persistence.PersistChatMessage(&persistence.ChatMessage{
		ID:        msg.ID,
		Channel:   msg.Channel,
		Author:    msg.Author,
		Text:      msg.Text,
		PostType:  msg.PostType,
		CreatedAt: msg.CreatedAt,
	}, s.journal)

	s.logger.Debug("Posted chat message id=%s author=%s channel=%s length=%d", msg.ID, msg.Author, msg.Channel, len(msg.Text))
	for _, fn := range subs {
		fn(msg)
	}
	return &msg, nil
}

// Subscribe registers fn to receive every posted message in posting order. It is
// called on the posting goroutine and must not block. The returned func unsubscribes.
func (s *Service) Subscribe(fn func(Message)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

// History returns up to limit of the most recent messages in channel, oldest first.
// An empty channel means every channel; limit <= 0 means no limit.
func (s *Service) History(channel string, limit int) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Message
	for _, m := range s.history {
		if channel == "" || m.Channel == channel {
			out = append(out, m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return append([]Message(nil), out...)
}

// Restore seeds the in-memory history from journaled messages, oldest first. It does
// not notify subscribers.
func (s *Service) Restore(msgs []persistence.ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		s.history = append(s.history, Message{
			ID:        m.ID,
			Channel:   m.Channel,
			Author:    m.Author,
			Text:      m.Text,
			PostType:  m.PostType,
			CreatedAt: m.CreatedAt,
		})
	}
	if over := len(s.history) - s.historySize; over > 0 {
		s.history = append([]Message(nil), s.history[over:]...)
	}
}

// FormatAuthor renders an author as @id.
func FormatAuthor(id string) string {
	if strings.HasPrefix(id, "@") {
		return id
	}
	return "@" + id
}
