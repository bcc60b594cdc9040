// internal/service/content_service.go
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/content-pipeline/internal/errors"
	"github.com/unclebandit/content-pipeline/internal/model"
	"github.com/unclebandit/content-pipeline/internal/repository"
)

// ContentService implements the reviewer-facing lifecycle actions.
type ContentService struct {
	ContentRepo repository.ContentItemRepositoryInterface
	Events      *EventLogger
	Dispatcher  *Dispatcher
	Now         func() time.Time
}

type CreateContentInput struct {
	Platform model.Platform `json:"platform"`
	Status   model.Status   `json:"status"`
	Payload  model.Payload  `json:"payload"`
}

func (s *ContentService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Create stores a new item from the content generator, as a draft unless it
// asks to go straight to review.
func (s *ContentService) Create(ctx context.Context, in CreateContentInput) (*model.ContentItem, error) {
	if !in.Platform.IsValid() {
		return nil, appErrors.Validation("unknown platform %q", in.Platform)
	}
	if in.Status == "" {
		in.Status = model.StatusDraft
	}
	if in.Status != model.StatusDraft && in.Status != model.StatusPendingReview {
		return nil, appErrors.Validation("new content must start as draft or pending_review, got %q", in.Status)
	}
	if strings.TrimSpace(in.Payload.Title) == "" && strings.TrimSpace(in.Payload.Caption) == "" {
		return nil, appErrors.Validation("payload needs a title or a caption")
	}

	now := s.now()
	item := &model.ContentItem{
		Platform:  in.Platform,
		Status:    in.Status,
		Payload:   in.Payload,
		CreatedAt: now,
	}
	if err := s.ContentRepo.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("create content item: %w", err)
	}

	s.Events.Append(ctx, &model.PipelineEvent{
		EventType:   model.CreatedEvent(item.Platform),
		SubjectID:   &item.ID,
		OccurredAt:  now,
		Title:       fmt.Sprintf("%s content created", item.Platform),
		Description: itemTitle(item),
		Metadata:    map[string]any{"platform": string(item.Platform), "status": string(item.Status)},
	})
	return item, nil
}

func (s *ContentService) Get(ctx context.Context, id uuid.UUID) (*model.ContentItem, error) {
	return s.ContentRepo.GetByID(ctx, id)
}

// List fetches content items with pagination, newest first.
func (s *ContentService) List(ctx context.Context, page, pageSize int, platform, status string) ([]*model.ContentItem, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	filter := model.ListFilter{Platform: model.Platform(platform), Status: model.Status(status)}
	if filter.Platform != "" && !filter.Platform.IsValid() {
		return nil, nil, appErrors.Validation("unknown platform %q", platform)
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, nil, appErrors.Validation("unknown status %q", status)
	}

	items, total, err := s.ContentRepo.List(ctx, filter, offset, pageSize)
	if err != nil {
		return nil, nil, err
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}
	return items, pagination, nil
}

func (s *ContentService) SubmitForReview(ctx context.Context, id uuid.UUID) (*model.ContentItem, error) {
	return s.ContentRepo.SubmitForReview(ctx, id, s.now())
}

// Approve accepts a pending item. With scheduledFor it becomes scheduled,
// otherwise approved and due immediately.
func (s *ContentService) Approve(ctx context.Context, id uuid.UUID, scheduledFor *time.Time) (*model.ContentItem, error) {
	now := s.now()
	if scheduledFor != nil {
		at := scheduledFor.UTC()
		scheduledFor = &at
	}
	item, err := s.ContentRepo.Approve(ctx, id, scheduledFor, now)
	if err != nil {
		return nil, err
	}

	event := &model.PipelineEvent{
		EventType:   model.EventContentApproved,
		SubjectID:   &item.ID,
		OccurredAt:  now,
		Title:       "Content approved",
		Description: itemTitle(item),
		Metadata:    map[string]any{"platform": string(item.Platform)},
	}
	if item.Status == model.StatusScheduled {
		event.EventType = model.EventContentScheduled
		event.Title = "Content scheduled"
		event.Metadata["scheduled_for"] = item.ScheduledFor.Format(time.RFC3339)
	}
	s.Events.Append(ctx, event)
	return item, nil
}

func (s *ContentService) Reject(ctx context.Context, id uuid.UUID, reason string) (*model.ContentItem, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, appErrors.Validation("a rejection reason is required")
	}
	now := s.now()
	item, err := s.ContentRepo.Reject(ctx, id, reason, now)
	if err != nil {
		return nil, err
	}

	s.Events.Append(ctx, &model.PipelineEvent{
		EventType:   model.EventContentRejected,
		SubjectID:   &item.ID,
		OccurredAt:  now,
		Title:       "Content rejected",
		Description: itemTitle(item),
		Metadata:    map[string]any{"platform": string(item.Platform), "reason": reason},
	})
	return item, nil
}

func (s *ContentService) UpdatePayload(ctx context.Context, id uuid.UUID, payload model.Payload) (*model.ContentItem, error) {
	return s.ContentRepo.UpdatePayload(ctx, id, payload, s.now())
}

// Resubmit retries a failed item right away.
func (s *ContentService) Resubmit(ctx context.Context, id uuid.UUID) (*Outcome, error) {
	if s.Dispatcher == nil {
		return nil, fmt.Errorf("resubmit: dispatcher not configured")
	}
	return s.Dispatcher.Resubmit(ctx, id, s.now())
}
