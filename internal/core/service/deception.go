package service

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/bluelamp/cligate/internal/core/domain"
	"github.com/bluelamp/cligate/internal/telemetry/logger"
	"github.com/bluelamp/cligate/internal/telemetry/metric"
	"github.com/bluelamp/cligate/pkg/token"
	"github.com/bluelamp/cligate/pkg/watermark"
)

// TrapPromptRepository stores decoys keyed by the real resource they
// stand in for. The mapping is explicit; decoy ids are never derived from
// real ids.
type TrapPromptRepository interface {
	// GetByRealResourceID returns the decoy for a real id or domain.ErrNotFound.
	GetByRealResourceID(ctx context.Context, realID string) (*domain.TrapPrompt, error)

	// IncrementAccess atomically bumps AccessCount and returns the new value.
	IncrementAccess(ctx context.Context, id string) (int64, error)

	List(ctx context.Context) ([]*domain.TrapPrompt, error)
	Upsert(ctx context.Context, p *domain.TrapPrompt) error
}

// PromptRepository stores the real resources.
type PromptRepository interface {
	Get(ctx context.Context, id string) (*domain.Prompt, error)
	List(ctx context.Context) ([]*domain.Prompt, error)

	// IncrementUsage atomically bumps UsageCount and returns the new value.
	IncrementUsage(ctx context.Context, id string) (int64, error)

	Upsert(ctx context.Context, p *domain.Prompt) error
}

// PromptService serves the real resources.
type PromptService struct {
	repo PromptRepository
}

// NewPromptService creates a new PromptService.
func NewPromptService(repo PromptRepository) *PromptService {
	return &PromptService{repo: repo}
}

// Get returns one prompt and counts the read.
func (s *PromptService) Get(ctx context.Context, id string) (*domain.PromptView, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if n, err := s.repo.IncrementUsage(ctx, id); err == nil {
		p.UsageCount = n
	}
	v := domain.NewPromptView(p)
	return &v, nil
}

// List returns one page of prompts.
func (s *PromptService) List(ctx context.Context, params domain.ListParams) (*domain.PromptListView, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]domain.PromptView, 0, len(all))
	for _, p := range all {
		views = append(views, domain.NewPromptView(p))
	}
	list := domain.BuildPromptList(views, params)
	return &list, nil
}

// DeceptionConfig holds configuration for DeceptionService.
type DeceptionConfig struct {
	// MaxAnchors caps watermark copies per body (default: watermark.DefaultMaxAnchors).
	MaxAnchors int

	Now     func() time.Time
	Logger  logger.Logger
	Metrics *metric.Registry
}

// DeceptionService serves decoys in the exact wire shape of PromptService.
type DeceptionService struct {
	repo       TrapPromptRepository
	maxAnchors int
	now        func() time.Time
	log        logger.Logger
	metrics    *metric.Registry
}

// NewDeceptionService creates a new DeceptionService.
func NewDeceptionService(repo TrapPromptRepository, cfg *DeceptionConfig) *DeceptionService {
	if cfg == nil {
		cfg = &DeceptionConfig{}
	}
	anchors := cfg.MaxAnchors
	if anchors <= 0 {
		anchors = watermark.DefaultMaxAnchors
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &DeceptionService{
		repo:       repo,
		maxAnchors: anchors,
		now:        now,
		log:        log.With("component", "deception"),
		metrics:    cfg.Metrics,
	}
}

// DecoyResponse is a served decoy plus the tracking id hidden in it.
type DecoyResponse struct {
	View         domain.PromptView
	TrackingID   string
	TrapPromptID string
}

// GetDecoyResource returns the decoy mapped to resourceID with a fresh
// tracking id embedded in its text. Unmapped ids yield domain.ErrNotFound,
// the same error the real path gives for unknown ids.
func (s *DeceptionService) GetDecoyResource(ctx context.Context, resourceID string, rc RequestContext) (*DecoyResponse, error) {
	tp, err := s.repo.GetByRealResourceID(ctx, resourceID)
	if err != nil {
		return nil, err
	}

	count, err := s.repo.IncrementAccess(ctx, tp.ID)
	if err != nil {
		return nil, err
	}

	suffix, err := token.GenerateBytes(4)
	if err != nil {
		return nil, err
	}
	trackingID := domain.NewTrackingID(tp.TrackingType, resourceID, s.now(), hex.EncodeToString(suffix))

	view := decoyView(tp, resourceID)
	view.Content = watermark.EmbedN(tp.Content, trackingID, s.maxAnchors)
	view.Description = watermark.EmbedN(tp.Description, trackingID, 2)
	view.UsageCount = count

	s.metrics.DecoyServed()
	s.log.Info("decoy served",
		"event", logger.EventDecoyServed,
		"resource_id", resourceID,
		"trap_prompt_id", tp.ID,
		"tracking_id", trackingID,
		"ip", rc.IPAddress)

	return &DecoyResponse{View: view, TrackingID: trackingID, TrapPromptID: tp.ID}, nil
}

// ListDecoyResources lists decoys under the pagination and sort contract
// of PromptService.List.
func (s *DeceptionService) ListDecoyResources(ctx context.Context, params domain.ListParams, rc RequestContext) (*domain.PromptListView, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]domain.PromptView, 0, len(all))
	for _, tp := range all {
		views = append(views, decoyView(tp, tp.RealResourceID))
	}
	list := domain.BuildPromptList(views, params)

	s.log.Debug("decoy listing served", "count", len(list.Prompts), "ip", rc.IPAddress)
	return &list, nil
}

// decoyView renders a decoy under the id of the real resource it shadows.
func decoyView(tp *domain.TrapPrompt, resourceID string) domain.PromptView {
	return domain.NewPromptView(&domain.Prompt{
		ID:          resourceID,
		Title:       tp.Title,
		Description: tp.Description,
		Content:     tp.Content,
		Category:    tp.Category,
		Tags:        tp.Tags,
		Version:     1,
		UsageCount:  tp.AccessCount,
		CreatedAt:   tp.CreatedAt,
		UpdatedAt:   tp.UpdatedAt,
	})
}
