package interview

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"
)

// Record types used at the persistence boundary.
const (
	RecordTypeArtifact         = "artifact_record"
	RecordTypeApplicantProfile = "applicant_profile"
	RecordTypeKnowledgeCard    = "knowledge_card"
	RecordTypeTimelineEntry    = "timeline_entry"
	RecordTypePublicationCard  = "publication_card"
)

// ArtifactContent is the closed set of typed payloads an ArtifactRecord can carry.
type ArtifactContent interface {
	RecordType() string
	Validate() error
}

// DocumentExcerpt is text extracted from a user-uploaded document.
type DocumentExcerpt struct {
	Filename     string `json:"filename"`
	ContentType  string `json:"content_type,omitempty"`
	Purpose      string `json:"purpose,omitempty"`
	Excerpt      string `json:"excerpt,omitempty"`
	SourceCallID string `json:"source_call_id,omitempty"`
}

func (d *DocumentExcerpt) RecordType() string { return RecordTypeArtifact }

func (d *DocumentExcerpt) Validate() error {
	if d.Filename == "" {
		return errors.New("document excerpt: filename is required")
	}
	return nil
}

// ApplicantProfile holds contact and headline data.
type ApplicantProfile struct {
	Name     string   `json:"name"`
	Email    string   `json:"email,omitempty"`
	Phone    string   `json:"phone,omitempty"`
	Location string   `json:"location,omitempty"`
	Headline string   `json:"headline,omitempty"`
	Links    []string `json:"links,omitempty"`
}

func (p *ApplicantProfile) RecordType() string { return RecordTypeApplicantProfile }

func (p *ApplicantProfile) Validate() error {
	if p.Name == "" {
		return errors.New("applicant profile: name is required")
	}
	return nil
}

// KnowledgeCard is a synthesized, evidence-backed summary of one role or project.
type KnowledgeCard struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Organization string   `json:"organization,omitempty"`
	Summary      string   `json:"summary,omitempty"`
	Achievements []string `json:"achievements,omitempty"`
	Skills       []string `json:"skills,omitempty"`
	PlanItemID   string   `json:"plan_item_id,omitempty"`
}

func (k *KnowledgeCard) RecordType() string { return RecordTypeKnowledgeCard }

func (k *KnowledgeCard) Validate() error {
	if k.ID == "" {
		return errors.New("knowledge card: id is required")
	}
	if k.Title == "" {
		return errors.New("knowledge card: title is required")
	}
	return nil
}

// TimelineEntry is one position on the applicant's skeleton timeline.
type TimelineEntry struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Organization string `json:"organization,omitempty"`
	Location     string `json:"location,omitempty"`
	Start        string `json:"start,omitempty"`
	End          string `json:"end,omitempty"`
	Summary      string `json:"summary,omitempty"`
}

func (t *TimelineEntry) RecordType() string { return RecordTypeTimelineEntry }

func (t *TimelineEntry) Validate() error {
	if t.ID == "" {
		return errors.New("timeline entry: id is required")
	}
	if t.Title == "" {
		return errors.New("timeline entry: title is required")
	}
	return nil
}

// PublicationCard describes a publication, talk or patent.
type PublicationCard struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Venue   string   `json:"venue,omitempty"`
	Year    int      `json:"year,omitempty"`
	URL     string   `json:"url,omitempty"`
	Authors []string `json:"authors,omitempty"`
}

func (p *PublicationCard) RecordType() string { return RecordTypePublicationCard }

func (p *PublicationCard) Validate() error {
	if p.Title == "" {
		return errors.New("publication card: title is required")
	}
	return nil
}

// GenericDocument carries model-authored data for record types this engine
// does not model explicitly (for example the candidate dossier).
type GenericDocument struct {
	Type   string         `json:"type"`
	Fields map[string]any `json:"fields"`
}

func (g *GenericDocument) RecordType() string { return g.Type }

func (g *GenericDocument) Validate() error {
	if g.Type == "" {
		return errors.New("generic document: type is required")
	}
	if len(g.Fields) == 0 {
		return errors.New("generic document: fields are required")
	}
	return nil
}

// ArtifactRecord is a unit of collected evidence owned by the session store.
type ArtifactRecord struct {
	ID          string          `json:"id"`
	Content     ArtifactContent `json:"content"`
	PersistedID string          `json:"persisted_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// RecordType returns the content's record type.
func (r *ArtifactRecord) RecordType() string {
	if r == nil || r.Content == nil {
		return ""
	}
	return r.Content.RecordType()
}

// IsPersisted reports whether the record reached the persistence collaborator.
func (r *ArtifactRecord) IsPersisted() bool {
	return r != nil && r.PersistedID != ""
}

// MarshalJSON adds the record type next to the content.
func (r *ArtifactRecord) MarshalJSON() ([]byte, error) {
	type alias ArtifactRecord
	return json.Marshal(struct {
		*alias
		RecordType string `json:"record_type"`
	}{alias: (*alias)(r), RecordType: r.RecordType()})
}

// Clone returns a deep copy, content included.
func (r *ArtifactRecord) Clone() *ArtifactRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Content = CloneArtifactContent(r.Content)
	return &c
}

// CloneArtifactContent deep-copies a content variant.
func CloneArtifactContent(content ArtifactContent) ArtifactContent {
	switch v := content.(type) {
	case *DocumentExcerpt:
		c := *v
		return &c
	case *ApplicantProfile:
		c := *v
		c.Links = slices.Clone(v.Links)
		return &c
	case *KnowledgeCard:
		c := *v
		c.Achievements = slices.Clone(v.Achievements)
		c.Skills = slices.Clone(v.Skills)
		return &c
	case *TimelineEntry:
		c := *v
		return &c
	case *PublicationCard:
		c := *v
		c.Authors = slices.Clone(v.Authors)
		return &c
	case *GenericDocument:
		c := *v
		if v.Fields != nil {
			c.Fields = cloneValue(v.Fields).(map[string]any)
		}
		return &c
	}
	return content
}

// cloneValue copies the maps and slices of decoded JSON.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	case []string:
		return slices.Clone(t)
	}
	return v
}

// EncodeArtifactContent serializes content for the persistence boundary.
func EncodeArtifactContent(content ArtifactContent) ([]byte, error) {
	if content == nil {
		return nil, errors.New("artifact content is nil")
	}
	if g, ok := content.(*GenericDocument); ok {
		return json.Marshal(g.Fields)
	}
	return json.Marshal(content)
}

// DecodeArtifactContent restores typed content from a persisted payload.
// Unknown record types decode as GenericDocument.
func DecodeArtifactContent(recordType string, data []byte) (ArtifactContent, error) {
	var content ArtifactContent
	switch recordType {
	case RecordTypeArtifact:
		content = &DocumentExcerpt{}
	case RecordTypeApplicantProfile:
		content = &ApplicantProfile{}
	case RecordTypeKnowledgeCard:
		content = &KnowledgeCard{}
	case RecordTypeTimelineEntry:
		content = &TimelineEntry{}
	case RecordTypePublicationCard:
		content = &PublicationCard{}
	default:
		fields := make(map[string]any)
		if err := json.Unmarshal(data, &fields); err != nil {
			return nil, fmt.Errorf("decode %s: %w", recordType, err)
		}
		return &GenericDocument{Type: recordType, Fields: fields}, nil
	}
	if err := json.Unmarshal(data, content); err != nil {
		return nil, fmt.Errorf("decode %s: %w", recordType, err)
	}
	return content, nil
}
