package domain

import (
	"sort"
	"strings"
	"time"
)

// Prompt is the protected resource served under /prompts.
type Prompt struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Content     string    `json:"content"`
	Category    string    `json:"category"`
	Tags        []string  `json:"tags"`
	Version     int       `json:"version"`
	UsageCount  int64     `json:"usage_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Clone creates a deep copy of the prompt.
func (p *Prompt) Clone() *Prompt {
	if p == nil {
		return nil
	}
	c := *p
	c.Tags = append([]string(nil), p.Tags...)
	return &c
}

// PromptView is the wire shape of a single prompt. Real and decoy
// responses are both built from it.
type PromptView struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Content     string    `json:"content"`
	Category    string    `json:"category"`
	Tags        []string  `json:"tags"`
	Version     int       `json:"version"`
	UsageCount  int64     `json:"usageCount"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// PromptSummary is the wire shape of a prompt inside a listing.
type PromptSummary struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Tags        []string  `json:"tags"`
	UsageCount  int64     `json:"usageCount"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Pagination describes a page of a listing.
type Pagination struct {
	Page       int    `json:"page"`
	Limit      int    `json:"limit"`
	Total      int    `json:"total"`
	TotalPages int    `json:"totalPages"`
	Sort       string `json:"sort"`
	Order      string `json:"order"`
}

// PromptListView is the wire shape of GET /prompts.
type PromptListView struct {
	Prompts    []PromptSummary `json:"prompts"`
	Pagination Pagination      `json:"pagination"`
}

// NewPromptView renders a real prompt.
func NewPromptView(p *Prompt) PromptView {
	return PromptView{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Content:     p.Content,
		Category:    p.Category,
		Tags:        nonNilTags(p.Tags),
		Version:     p.Version,
		UsageCount:  p.UsageCount,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

// Summary drops the content body.
func (v PromptView) Summary() PromptSummary {
	return PromptSummary{
		ID:          v.ID,
		Title:       v.Title,
		Description: v.Description,
		Category:    v.Category,
		Tags:        v.Tags,
		UsageCount:  v.UsageCount,
		UpdatedAt:   v.UpdatedAt,
	}
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return append([]string(nil), tags...)
}

// Listing defaults and bounds.
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
	SortUpdatedAt    = "updatedAt"
	SortCreatedAt    = "createdAt"
	SortTitle        = "title"
	SortUsage        = "usageCount"
	OrderAsc         = "asc"
	OrderDesc        = "desc"
)

// ListParams is the pagination and sort contract of prompt listings.
type ListParams struct {
	Page     int
	Limit    int
	Sort     string
	Order    string
	Category string
}

// Normalize applies defaults and clamps out-of-range values.
func (p ListParams) Normalize() ListParams {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	switch p.Sort {
	case SortUpdatedAt, SortCreatedAt, SortTitle, SortUsage:
	default:
		p.Sort = SortUpdatedAt
	}
	p.Order = strings.ToLower(p.Order)
	if p.Order != OrderAsc {
		p.Order = OrderDesc
	}
	return p
}

// BuildPromptList filters by category, sorts and paginates views.
func BuildPromptList(views []PromptView, params ListParams) PromptListView {
	params = params.Normalize()

	filtered := make([]PromptView, 0, len(views))
	for _, v := range views {
		if params.Category != "" && !strings.EqualFold(v.Category, params.Category) {
			continue
		}
		filtered = append(filtered, v)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		if params.Order == OrderDesc {
			return lessBy(filtered[j], filtered[i], params.Sort)
		}
		return lessBy(filtered[i], filtered[j], params.Sort)
	})

	total := len(filtered)
	start := (params.Page - 1) * params.Limit
	if start > total {
		start = total
	}
	end := start + params.Limit
	if end > total {
		end = total
	}

	items := make([]PromptSummary, 0, end-start)
	for _, v := range filtered[start:end] {
		items = append(items, v.Summary())
	}

	pages := 0
	if total > 0 {
		pages = (total + params.Limit - 1) / params.Limit
	}
	return PromptListView{
		Prompts: items,
		Pagination: Pagination{
			Page:       params.Page,
			Limit:      params.Limit,
			Total:      total,
			TotalPages: pages,
			Sort:       params.Sort,
			Order:      params.Order,
		},
	}
}

func lessBy(a, b PromptView, field string) bool {
	switch field {
	case SortCreatedAt:
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
	case SortTitle:
		if a.Title != b.Title {
			return a.Title < b.Title
		}
	case SortUsage:
		if a.UsageCount != b.UsageCount {
			return a.UsageCount < b.UsageCount
		}
	default:
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.Before(b.UpdatedAt)
		}
	}
	return a.ID < b.ID
}
