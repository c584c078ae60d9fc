package memory

import (
	"context"

	"github.com/bluelamp/cligate/internal/core/domain"
	"github.com/bluelamp/cligate/pkg/cmap"
)

// PromptStore keeps the real prompts.
type PromptStore struct {
	prompts *cmap.Map[string, *domain.Prompt]
}

// NewPromptStore creates an empty store.
func NewPromptStore() *PromptStore {
	return &PromptStore{prompts: cmap.New[string, *domain.Prompt]()}
}

// Get returns the prompt or domain.ErrNotFound.
func (s *PromptStore) Get(_ context.Context, id string) (*domain.Prompt, error) {
	p, ok := s.prompts.Get(id)
	if !ok {
		return nil, domain.ErrNotFound
	}
	return p.Clone(), nil
}

// List returns every prompt in no particular order.
func (s *PromptStore) List(context.Context) ([]*domain.Prompt, error) {
	all := s.prompts.Values()
	out := make([]*domain.Prompt, 0, len(all))
	for _, p := range all {
		out = append(out, p.Clone())
	}
	return out, nil
}

// IncrementUsage bumps UsageCount and returns the new value.
func (s *PromptStore) IncrementUsage(_ context.Context, id string) (int64, error) {
	next, ok := s.prompts.UpdateIf(id, func(cur *domain.Prompt) (*domain.Prompt, bool) {
		p := cur.Clone()
		p.UsageCount++
		return p, true
	})
	if !ok {
		return 0, domain.ErrNotFound
	}
	return next.UsageCount, nil
}

// Upsert stores p.
func (s *PromptStore) Upsert(_ context.Context, p *domain.Prompt) error {
	if p.ID == "" {
		return domain.ErrBadRequest.WithDetails("prompt requires id")
	}
	s.prompts.Set(p.ID, p.Clone())
	return nil
}

// TrapPromptStore keeps decoys and the explicit real-id mapping.
type TrapPromptStore struct {
	traps  *cmap.Map[string, *domain.TrapPrompt]
	byReal *cmap.Map[string, string]
}

// NewTrapPromptStore creates an empty store.
func NewTrapPromptStore() *TrapPromptStore {
	return &TrapPromptStore{
		traps:  cmap.New[string, *domain.TrapPrompt](),
		byReal: cmap.New[string, string](),
	}
}

// GetByRealResourceID returns the decoy mapped to realID.
func (s *TrapPromptStore) GetByRealResourceID(_ context.Context, realID string) (*domain.TrapPrompt, error) {
	id, ok := s.byReal.Get(realID)
	if !ok {
		return nil, domain.ErrNotFound
	}
	tp, ok := s.traps.Get(id)
	if !ok {
		return nil, domain.ErrNotFound
	}
	return tp.Clone(), nil
}

// IncrementAccess bumps AccessCount and returns the new value.
func (s *TrapPromptStore) IncrementAccess(_ context.Context, id string) (int64, error) {
	next, ok := s.traps.UpdateIf(id, func(cur *domain.TrapPrompt) (*domain.TrapPrompt, bool) {
		tp := cur.Clone()
		tp.AccessCount++
		return tp, true
	})
	if !ok {
		return 0, domain.ErrNotFound
	}
	return next.AccessCount, nil
}

// List returns every decoy.
func (s *TrapPromptStore) List(context.Context) ([]*domain.TrapPrompt, error) {
	all := s.traps.Values()
	out := make([]*domain.TrapPrompt, 0, len(all))
	for _, tp := range all {
		out = append(out, tp.Clone())
	}
	return out, nil
}

// Upsert stores p. Each real id maps to at most one decoy; AccessCount
// survives an update.
func (s *TrapPromptStore) Upsert(_ context.Context, p *domain.TrapPrompt) error {
	if p.ID == "" || p.RealResourceID == "" {
		return domain.ErrBadRequest.WithDetails("trap prompt requires id and real_resource_id")
	}
	if owner, loaded := s.byReal.LoadOrStore(p.RealResourceID, p.ID); loaded && owner != p.ID {
		return domain.ErrBadRequest.WithDetails("real resource " + p.RealResourceID + " already mapped to " + owner)
	}

	var prev *domain.TrapPrompt
	for {
		_, updated := s.traps.UpdateIf(p.ID, func(cur *domain.TrapPrompt) (*domain.TrapPrompt, bool) {
			prev = cur
			next := p.Clone()
			next.AccessCount = max(next.AccessCount, cur.AccessCount)
			if next.CreatedAt.IsZero() {
				next.CreatedAt = cur.CreatedAt
			}
			return next, true
		})
		if updated {
			break
		}
		if _, loaded := s.traps.LoadOrStore(p.ID, p.Clone()); !loaded {
			break
		}
	}

	if prev != nil && prev.RealResourceID != p.RealResourceID {
		s.byReal.DeleteIf(prev.RealResourceID, func(id string) bool { return id == p.ID })
	}
	return nil
}
