package mocks

import (
	"context"
	"sync"
)

// MockCodeGenerator returns canned file content. Safe for concurrent use.
type MockCodeGenerator struct {
	GenerateCodeFunc func(ctx context.Context, prompt string) (string, error)

	mu      sync.Mutex
	Prompts []string
}

// NewMockCodeGenerator answers every prompt with content.
func NewMockCodeGenerator(content string) *MockCodeGenerator {
	return &MockCodeGenerator{
		GenerateCodeFunc: func(context.Context, string) (string, error) { return content, nil },
	}
}

func (m *MockCodeGenerator) GenerateCode(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.Prompts = append(m.Prompts, prompt)
	m.mu.Unlock()
	return m.GenerateCodeFunc(ctx, prompt)
}
