package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ContentKind tags the variant of a content item.
type ContentKind string

const (
	KindPost              ContentKind = "POST"
	KindNews              ContentKind = "NEWS"
	KindSystemMessage     ContentKind = "SYSTEM_MESSAGE"
	KindEvent             ContentKind = "EVENT"
	KindQuestionnaire     ContentKind = "QUESTIONNAIRE"
	KindReward            ContentKind = "REWARD"
	KindGroupAnnouncement ContentKind = "GROUP_ANNOUNCEMENT"
)

// Valid reports whether k is a known content kind.
func (k ContentKind) Valid() bool {
	switch k {
	case KindPost, KindNews, KindSystemMessage, KindEvent, KindQuestionnaire, KindReward, KindGroupAnnouncement:
		return true
	}
	return false
}

// ContentItem is the common head of every targetable content variant. The
// evaluator only ever looks at Predicate; Payload is kind specific.
type ContentItem struct {
	ID        int64           `json:"id"`
	Kind      ContentKind     `json:"kind"`
	Version   int             `json:"version"`
	AuthorID  *int64          `json:"author_id,omitempty"`
	Predicate Predicate       `json:"predicate"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// EffectivePinned reports whether the pin is still in force at now.
func (c ContentItem) EffectivePinned(now time.Time) bool {
	if !c.Predicate.IsPinned {
		return false
	}
	return c.Predicate.PinnedUntil == nil || !c.Predicate.PinnedUntil.Before(now)
}

// RankTime is the timestamp used for ordering: published_at, or created_at
// for items that never had one, truncated to milliseconds.
func (c ContentItem) RankTime() time.Time {
	t := c.CreatedAt
	if c.Predicate.PublishedAt != nil {
		t = *c.Predicate.PublishedAt
	}
	return t.UTC().Truncate(time.Millisecond)
}

// RankKey returns the ordering key of the item at now.
func (c ContentItem) RankKey(now time.Time) Cursor {
	return Cursor{Pinned: c.EffectivePinned(now), PublishedMs: c.RankTime().UnixMilli(), ID: c.ID}
}

// Payload is implemented by every kind specific body.
type Payload interface {
	Kind() ContentKind
}

type PostPayload struct {
	Body     string   `json:"body" validate:"required"`
	MediaIDs []string `json:"media_ids,omitempty"`
}

func (PostPayload) Kind() ContentKind { return KindPost }

type NewsPayload struct {
	Title   string `json:"title" validate:"required"`
	Summary string `json:"summary,omitempty"`
	Body    string `json:"body" validate:"required"`
}

func (NewsPayload) Kind() ContentKind { return KindNews }

type SystemMessagePayload struct {
	Title string `json:"title" validate:"required"`
	Body  string `json:"body" validate:"required"`
}

func (SystemMessagePayload) Kind() ContentKind { return KindSystemMessage }

type EventPayload struct {
	Title    string     `json:"title" validate:"required"`
	StartsAt time.Time  `json:"starts_at" validate:"required"`
	EndsAt   *time.Time `json:"ends_at,omitempty"`
	Location string     `json:"location,omitempty"`
	Capacity *int       `json:"capacity,omitempty" validate:"omitempty,min=0"`
}

func (EventPayload) Kind() ContentKind { return KindEvent }

type QuestionnairePayload struct {
	Title     string   `json:"title" validate:"required"`
	Questions []string `json:"questions" validate:"required,min=1"`
	Anonymous bool     `json:"anonymous"`
}

func (QuestionnairePayload) Kind() ContentKind { return KindQuestionnaire }

type RewardPayload struct {
	Title  string `json:"title" validate:"required"`
	Points int    `json:"points" validate:"min=0"`
}

func (RewardPayload) Kind() ContentKind { return KindReward }

type GroupAnnouncementPayload struct {
	GroupID int64  `json:"group_id" validate:"required"`
	Body    string `json:"body" validate:"required"`
}

func (GroupAnnouncementPayload) Kind() ContentKind { return KindGroupAnnouncement }

// DecodePayload parses raw into the payload type registered for kind.
func DecodePayload(kind ContentKind, raw json.RawMessage) (Payload, error) {
	var p Payload
	switch kind {
	case KindPost:
		p = &PostPayload{}
	case KindNews:
		p = &NewsPayload{}
	case KindSystemMessage:
		p = &SystemMessagePayload{}
	case KindEvent:
		p = &EventPayload{}
	case KindQuestionnaire:
		p = &QuestionnairePayload{}
	case KindReward:
		p = &RewardPayload{}
	case KindGroupAnnouncement:
		p = &GroupAnnouncementPayload{}
	default:
		return nil, fmt.Errorf("unknown content kind %q", kind)
	}
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", kind, err)
	}
	return p, nil
}
