package intel

import (
	"context"
	"sync"

	"github.com/leapstack-labs/structon/pkg/core"
)

// MockProvider is a deterministic in-memory provider for tests and
// offline runs. Responses are consumed in order; when they run out the
// last one repeats.
type MockProvider struct {
	mu        sync.Mutex
	responses []string
	calls     []Request
	err       error
}

var _ Provider = (*MockProvider)(nil)

// NewMock creates a provider that replays the given responses.
func NewMock(responses ...string) *MockProvider {
	return &MockProvider{responses: responses}
}

// Fail makes every subsequent Submit return the given error wrapped as
// an external-service failure.
func (p *MockProvider) Fail(err error) *MockProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
	return p
}

// Name implements Provider.
func (p *MockProvider) Name() string {
	return "mock"
}

// Submit implements Provider.
func (p *MockProvider) Submit(_ context.Context, req Request) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, req)
	if p.err != nil {
		return "", core.WrapError(core.ErrExternalService, p.err, "mock provider error")
	}
	if len(p.responses) == 0 {
		return "", core.NewError(core.ErrExternalService, "mock provider has no responses")
	}

	idx := len(p.calls) - 1
	if idx >= len(p.responses) {
		idx = len(p.responses) - 1
	}
	return p.responses[idx], nil
}

// Calls returns a copy of the requests seen so far.
func (p *MockProvider) Calls() []Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Request(nil), p.calls...)
}
