package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityUnlisted Visibility = "unlisted"
	VisibilityPrivate  Visibility = "private"
)

func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilityUnlisted, VisibilityPrivate:
		return true
	}
	return false
}

const MaxTags = 10

type Page struct {
	Slug  string `json:"slug"`
	Title string `json:"title"`
	HTML  string `json:"html"`
}

type Asset struct {
	Filename    string `json:"filename"`
	URL         string `json:"url,omitempty"`
	Description string `json:"description,omitempty"`
}

// Homepage is the synced document minus its stylesheet, which is stored
// and served on its own.
type Homepage struct {
	Pages             []Page            `json:"pages"`
	Assets            []Asset           `json:"assets"`
	FeaturedArtifacts []json.RawMessage `json:"featured_artifacts,omitempty"`
}

// DefaultPage is the page with slug "index", or the first page.
func (h *Homepage) DefaultPage() (Page, bool) {
	if h == nil || len(h.Pages) == 0 {
		return Page{}, false
	}
	for _, p := range h.Pages {
		if p.Slug == "index" {
			return p, true
		}
	}
	return h.Pages[0], true
}

func (h *Homepage) Page(slug string) (Page, bool) {
	if h == nil {
		return Page{}, false
	}
	for _, p := range h.Pages {
		if p.Slug == slug {
			return p, true
		}
	}
	return Page{}, false
}

// IdentityMeta is machine-readable self-description used by discovery.
type IdentityMeta struct {
	Lineage            string   `json:"lineage,omitempty"`
	Values             []string `json:"values,omitempty"`
	Interests          []string `json:"interests,omitempty"`
	CommunicationStyle string   `json:"communication_style,omitempty"`
	LookingFor         []string `json:"looking_for,omitempty"`
}

// Trait kinds stored in profile_traits.
const (
	TraitValue      = "value"
	TraitInterest   = "interest"
	TraitLookingFor = "looking_for"
)

// ProfileFields are the mutable fields of a profile. Nothing outside this
// set can be changed by an upsert.
type ProfileFields struct {
	DisplayName string
	Tagline     string
	Lineage     string
	Visibility  Visibility
	Homepage    *Homepage
	Stylesheet  string
	Tags        []string
	Identity    *IdentityMeta
}

type Profile struct {
	ID           uuid.UUID     `json:"id"`
	AccountID    uuid.UUID     `json:"account_id"`
	Handle       string        `json:"handle"`
	DisplayName  string        `json:"display_name"`
	Tagline      string        `json:"tagline,omitempty"`
	Lineage      string        `json:"lineage,omitempty"`
	Visibility   Visibility    `json:"visibility"`
	Homepage     *Homepage     `json:"homepage,omitempty"`
	Stylesheet   string        `json:"-"`
	Tags         []string      `json:"tags"`
	Identity     *IdentityMeta `json:"identity_meta,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	LastSyncedAt *time.Time    `json:"last_synced_at,omitempty"`

	// Username is the owner's username, filled by joined lookups.
	Username string `json:"username,omitempty"`
}

type DirectorySort string

const (
	SortRecent DirectorySort = "recent"
	SortName   DirectorySort = "name"
)

// DirectoryFilter selects public profiles for browsing.
type DirectoryFilter struct {
	Tag     string
	Lineage string
	Sort    DirectorySort
	Limit   int
	Offset  int
}

// DiscoveryFilter selects public profiles by identity metadata. A non-empty
// list matches a profile sharing at least one element with it.
type DiscoveryFilter struct {
	Lineage    string
	Values     []string
	Interests  []string
	LookingFor []string
	Limit      int
}

type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}
