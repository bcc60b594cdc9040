// internal/model/content_item.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// Platform is the channel a content item is published to.
type Platform string

const (
	PlatformBlog      Platform = "blog"
	PlatformInstagram Platform = "instagram"
	PlatformLinkedIn  Platform = "linkedin"
)

// Platforms lists every supported platform in a stable order.
var Platforms = []Platform{PlatformBlog, PlatformInstagram, PlatformLinkedIn}

func (p Platform) String() string { return string(p) }

func (p Platform) IsValid() bool {
	switch p {
	case PlatformBlog, PlatformInstagram, PlatformLinkedIn:
		return true
	}
	return false
}

// Status is the publication state of a content item.
type Status string

const (
	StatusDraft         Status = "draft"
	StatusPendingReview Status = "pending_review"
	StatusApproved      Status = "approved"
	StatusScheduled     Status = "scheduled"
	StatusPublishing    Status = "publishing"
	StatusPublished     Status = "published"
	StatusFailed        Status = "failed"
	StatusRejected      Status = "rejected"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusPendingReview, StatusApproved, StatusScheduled,
		StatusPublishing, StatusPublished, StatusFailed, StatusRejected:
		return true
	}
	return false
}

// PayloadMutable reports whether the payload may still be edited in status s.
func (s Status) PayloadMutable() bool {
	switch s {
	case StatusDraft, StatusPendingReview, StatusApproved, StatusScheduled:
		return true
	}
	return false
}

// IsClaimable reports whether a publish claim may start from s.
// failed is only claimable through a manual resubmit.
func (s Status) IsClaimable() bool {
	return CanTransition(s, StatusPublishing)
}

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusDraft, StatusPendingReview, StatusApproved, StatusScheduled,
	StatusPublishing, StatusPublished, StatusFailed, StatusRejected}

var transitions = map[Status][]Status{
	StatusDraft:         {StatusPendingReview},
	StatusPendingReview: {StatusApproved, StatusScheduled, StatusRejected},
	StatusApproved:      {StatusPublishing},
	StatusScheduled:     {StatusPublishing},
	StatusPublishing:    {StatusPublished, StatusFailed},
	StatusFailed:        {StatusPublishing},
}

// CanTransition reports whether from -> to is an edge of the lifecycle DAG.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Sources lists, in lifecycle order, the statuses that may move to to.
func Sources(to Status) []Status {
	var from []Status
	for _, s := range Statuses {
		if CanTransition(s, to) {
			from = append(from, s)
		}
	}
	return from
}

// Payload is the publishable body of a content item.
type Payload struct {
	Title      string   `json:"title,omitempty"`
	Excerpt    string   `json:"excerpt,omitempty"`
	Body       string   `json:"body,omitempty"`
	Caption    string   `json:"caption,omitempty"`
	CoverImage string   `json:"cover_image,omitempty"`
	MediaRefs  []string `json:"media_refs,omitempty"`
	Category   string   `json:"category,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Hashtags   []string `json:"hashtags,omitempty"`
}

// ContentItem is a unit of publishable content tracked through its lifecycle.
type ContentItem struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	Platform     Platform   `db:"platform" json:"platform"`
	Status       Status     `db:"status" json:"status"`
	Payload      Payload    `db:"payload" json:"payload"`
	ScheduledFor *time.Time `db:"scheduled_for" json:"scheduled_for,omitempty"`
	PublishedAt  *time.Time `db:"published_at" json:"published_at,omitempty"`
	ExternalRef  string     `db:"external_ref" json:"external_ref,omitempty"`
	LastError    string     `db:"last_error" json:"last_error,omitempty"`
	ReviewNote   string     `db:"review_note" json:"review_note,omitempty"`
	SourceID     *uuid.UUID `db:"source_id" json:"source_id,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// IsDue reports whether the item is waiting for publication at now.
func (c *ContentItem) IsDue(now time.Time) bool {
	if c.Status != StatusApproved && c.Status != StatusScheduled {
		return false
	}
	return c.ScheduledFor != nil && !c.ScheduledFor.After(now)
}

// Clone returns a deep copy so callers never share slices with a store.
func (c *ContentItem) Clone() *ContentItem {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Payload.MediaRefs = append([]string(nil), c.Payload.MediaRefs...)
	cp.Payload.Tags = append([]string(nil), c.Payload.Tags...)
	cp.Payload.Hashtags = append([]string(nil), c.Payload.Hashtags...)
	if c.ScheduledFor != nil {
		t := *c.ScheduledFor
		cp.ScheduledFor = &t
	}
	if c.PublishedAt != nil {
		t := *c.PublishedAt
		cp.PublishedAt = &t
	}
	if c.SourceID != nil {
		id := *c.SourceID
		cp.SourceID = &id
	}
	return &cp
}

// ListFilter narrows content item listings.
type ListFilter struct {
	Platform Platform
	Status   Status
}
