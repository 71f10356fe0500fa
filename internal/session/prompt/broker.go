package prompt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentdeck/agentdeck/internal/common/logger"
)

// pendingRequest pairs a request with its single-shot response channel.
type pendingRequest struct {
	request    *Request
	responseCh chan *Response
	createdAt  time.Time
}

// Broker manages pending interactive requests. It provides thread-safe
// storage and notification when responses arrive.
type Broker struct {
	mu      sync.RWMutex
	pending map[string]*pendingRequest
	// byKind enforces at most one pending request per kind per session.
	byKind  map[string]map[Kind]string
	timeout time.Duration
	logger  *logger.Logger
}

// NewBroker creates a broker. A zero timeout disables inactivity
// expiry; requests then wait until answered or the session stops.
func NewBroker(timeout time.Duration, log *logger.Logger) *Broker {
	return &Broker{
		pending: make(map[string]*pendingRequest),
		byKind:  make(map[string]map[Kind]string),
		timeout: timeout,
		logger:  log,
	}
}

// Create registers a request and returns its id. An existing pending
// request of the same kind for the same session is force-resolved with
// the deny default first.
func (b *Broker) Create(req *Request) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	req.CreatedAt = time.Now().UTC()

	if kinds, ok := b.byKind[req.SessionID]; ok {
		if prevID, ok := kinds[req.Kind]; ok {
			b.resolveLocked(prevID, &Response{
				RequestID: prevID,
				Approved:  false,
				Cancelled: true,
			})
		}
	}

	b.pending[req.ID] = &pendingRequest{
		request:    req,
		responseCh: make(chan *Response, 1),
		createdAt:  req.CreatedAt,
	}
	if b.byKind[req.SessionID] == nil {
		b.byKind[req.SessionID] = make(map[Kind]string)
	}
	b.byKind[req.SessionID][req.Kind] = req.ID

	return req.ID
}

// WaitForResponse blocks until a response arrives or the context is
// cancelled. The request is consumed either way.
func (b *Broker) WaitForResponse(ctx context.Context, requestID string) (*Response, error) {
	b.mu.RLock()
	pending, ok := b.pending[requestID]
	b.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("interactive request not found: %s", requestID)
	}

	waitCtx := ctx
	if b.timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	select {
	case resp := <-pending.responseCh:
		b.remove(requestID)
		return resp, nil
	case <-waitCtx.Done():
		b.remove(requestID)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("interactive request timed out: %s", requestID)
	}
}

// Ask creates a request and waits for its resolution.
func (b *Broker) Ask(ctx context.Context, req *Request) (*Response, error) {
	id := b.Create(req)
	return b.WaitForResponse(ctx, id)
}

// Respond submits a response to a pending request. A late response to
// a consumed or unknown request id returns an error and has no other
// effect.
func (b *Broker) Respond(requestID string, resp *Response) error {
	b.mu.RLock()
	pending, ok := b.pending[requestID]
	b.mu.RUnlock()

	if !ok {
		return fmt.Errorf("interactive request not found: %s", requestID)
	}

	resp.RequestID = requestID
	resp.RespondedAt = time.Now().UTC()

	// Non-blocking send; the channel holds one response.
	select {
	case pending.responseCh <- resp:
		return nil
	default:
		return fmt.Errorf("response already submitted for: %s", requestID)
	}
}

// Get returns a pending request by id.
func (b *Broker) Get(requestID string) (*Request, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	pending, ok := b.pending[requestID]
	if !ok {
		return nil, false
	}
	return pending.request, true
}

// ListPending returns the pending requests for a session, or all
// pending requests when sessionID is empty.
func (b *Broker) ListPending(sessionID string) []*Request {
	b.mu.RLock()
	defer b.mu.RUnlock()

	requests := make([]*Request, 0, len(b.pending))
	for _, pending := range b.pending {
		if sessionID != "" && pending.request.SessionID != sessionID {
			continue
		}
		requests = append(requests, pending.request)
	}
	return requests
}

// CancelSession force-resolves every pending request for a session
// with the deny default.
func (b *Broker) CancelSession(sessionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	count := 0
	for id, pending := range b.pending {
		if pending.request.SessionID != sessionID {
			continue
		}
		b.resolveLocked(id, &Response{
			RequestID: id,
			Approved:  false,
			Cancelled: true,
		})
		count++
	}
	if count > 0 && b.logger != nil {
		b.logger.Debug("cancelled pending interactive requests",
			zap.String("session_id", sessionID),
			zap.Int("count", count))
	}
	return count
}

// CleanupExpired removes requests older than the configured timeout,
// resolving each with the deny default. No-op when expiry is disabled.
func (b *Broker) CleanupExpired() int {
	if b.timeout <= 0 {
		return 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	count := 0
	now := time.Now()
	for id, pending := range b.pending {
		if now.Sub(pending.createdAt) > b.timeout {
			b.resolveLocked(id, &Response{
				RequestID: id,
				Approved:  false,
				Cancelled: true,
			})
			count++
		}
	}
	return count
}

// resolveLocked delivers a forced response and drops the request.
// Callers hold b.mu.
func (b *Broker) resolveLocked(requestID string, resp *Response) {
	pending, ok := b.pending[requestID]
	if !ok {
		return
	}
	resp.RespondedAt = time.Now().UTC()
	select {
	case pending.responseCh <- resp:
	default:
	}
	b.removeLocked(requestID)
}

func (b *Broker) remove(requestID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(requestID)
}

func (b *Broker) removeLocked(requestID string) {
	pending, ok := b.pending[requestID]
	if !ok {
		return
	}
	delete(b.pending, requestID)
	if kinds, ok := b.byKind[pending.request.SessionID]; ok {
		if kinds[pending.request.Kind] == requestID {
			delete(kinds, pending.request.Kind)
		}
		if len(kinds) == 0 {
			delete(b.byKind, pending.request.SessionID)
		}
	}
}
