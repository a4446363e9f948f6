package models

import "time"

// Cursor is the ranking key of the last item of a page.
type Cursor struct {
	Pinned      bool
	PublishedMs int64
	ID          int64
}

// Less reports whether c ranks after other in feed order.
func (c Cursor) Less(other Cursor) bool {
	if c.Pinned != other.Pinned {
		return !c.Pinned
	}
	if c.PublishedMs != other.PublishedMs {
		return c.PublishedMs < other.PublishedMs
	}
	return c.ID < other.ID
}

// MemberScope restricts the candidate pool by member type.
type MemberScope string

const (
	MemberScopeYouth    MemberScope = "YOUTH"
	MemberScopeGuardian MemberScope = "GUARDIAN"
	MemberScopeAdmins   MemberScope = "ADMINS"
	MemberScopeAny      MemberScope = "ANY"
)

// Narrowing is the index friendly candidate filter for one user.
type Narrowing struct {
	Kind           ContentKind
	Now            time.Time
	MemberScope    MemberScope
	ClubID         *int64
	MunicipalityID *int64
	Groups         []int64
	Interests      []int64
	// Wide drops the scope disjunction entirely.
	Wide bool
}

// CandidatePage requests one keyset page of candidates.
type CandidatePage struct {
	After *Cursor
	Limit int
}

// Engagement aggregates reactions and comments for one item.
type Engagement struct {
	ItemID        int64   `db:"item_id" json:"-"`
	ReactionCount int     `db:"reaction_count" json:"reaction_count"`
	CommentCount  int     `db:"comment_count" json:"comment_count"`
	MyReaction    *string `db:"my_reaction" json:"my_reaction"`
}

// FeedItem is a visible item annotated for the requesting user.
type FeedItem struct {
	ContentItem
	Pinned     bool       `json:"pinned"`
	Engagement Engagement `json:"engagement"`
}

// FeedQuery parameterises one forward query call.
type FeedQuery struct {
	UserID       int64
	Kind         ContentKind
	Cursor       string
	Limit        int
	AdminPreview bool
}

// FeedPage is one page of a user's feed.
type FeedPage struct {
	Items      []FeedItem `json:"items"`
	NextCursor string     `json:"next_cursor,omitempty"`
	Limit      int        `json:"limit"`
}
