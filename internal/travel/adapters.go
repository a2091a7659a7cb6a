package travel

import (
	"encoding/json"
	"fmt"
	"time"
)

// The API is inconsistent about shapes: some endpoints wrap payloads in a
// {"data": ...} envelope, ids arrive as numbers or strings, and a few
// fields go by two names. The adapters below normalise all of that at the
// boundary so the rest of the client only ever sees the clean types.

// unwrap peels the optional {"data": ...} envelope.
func unwrap(raw []byte) []byte {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Data) > 0 {
		return env.Data
	}
	return raw
}

// flexID tolerates ids serialised as either a JSON number or a string.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id is neither string nor number: %s", b)
	}
	*f = flexID(n.String())
	return nil
}

type sceneryDTO struct {
	ID            flexID  `json:"id"`
	SceneryID     flexID  `json:"sceneryId"`
	Name          string  `json:"name"`
	Title         string  `json:"title"`
	City          string  `json:"city"`
	Price         float64 `json:"price"`
	Score         float64 `json:"score"`
	Intro         string  `json:"intro"`
	CoverURL      string  `json:"coverUrl"`
	Cover         string  `json:"cover"`
	LikeCount     int     `json:"likeCount"`
	Liked         bool    `json:"liked"`
	FavoriteCount int     `json:"favoriteCount"`
	Favorited     bool    `json:"favorited"`
}

func (d sceneryDTO) toScenery() Scenery {
	return Scenery{
		ID:            firstOf(string(d.ID), string(d.SceneryID)),
		Name:          firstOf(d.Name, d.Title),
		City:          d.City,
		Price:         d.Price,
		Score:         d.Score,
		Intro:         d.Intro,
		CoverURL:      firstOf(d.CoverURL, d.Cover),
		LikeCount:     d.LikeCount,
		Liked:         d.Liked,
		FavoriteCount: d.FavoriteCount,
		Favorited:     d.Favorited,
	}
}

func (d sceneryDTO) toRef() SceneryRef {
	return SceneryRef{
		ID:       firstOf(string(d.ID), string(d.SceneryID)),
		Name:     firstOf(d.Name, d.Title),
		City:     d.City,
		Score:    d.Score,
		CoverURL: firstOf(d.CoverURL, d.Cover),
	}
}

type commentDTO struct {
	ID        flexID  `json:"id"`
	SceneryID flexID  `json:"sceneryId"`
	Author    string  `json:"author"`
	Nickname  string  `json:"nickname"`
	Content   string  `json:"content"`
	Score     float64 `json:"score"`
	CreatedAt string  `json:"createdAt"`
}

func (d commentDTO) toComment() Comment {
	c := Comment{
		ID:        string(d.ID),
		SceneryID: string(d.SceneryID),
		Author:    firstOf(d.Author, d.Nickname),
		Content:   d.Content,
		Score:     d.Score,
	}
	if t, err := time.Parse(time.RFC3339, d.CreatedAt); err == nil {
		c.CreatedAt = t
	}
	return c
}

// SceneryFromJSON decodes a single scenery payload, enveloped or bare.
func SceneryFromJSON(raw []byte) (Scenery, error) {
	var dto sceneryDTO
	if err := json.Unmarshal(unwrap(raw), &dto); err != nil {
		return Scenery{}, fmt.Errorf("decode scenery: %w", err)
	}
	s := dto.toScenery()
	if s.ID == "" {
		return Scenery{}, fmt.Errorf("decode scenery: missing id")
	}
	return s, nil
}

// SceneryListFromJSON decodes a list of scenery cards, enveloped or bare.
func SceneryListFromJSON(raw []byte) ([]SceneryRef, error) {
	var dtos []sceneryDTO
	if err := json.Unmarshal(unwrap(raw), &dtos); err != nil {
		return nil, fmt.Errorf("decode scenery list: %w", err)
	}
	refs := make([]SceneryRef, 0, len(dtos))
	for _, d := range dtos {
		refs = append(refs, d.toRef())
	}
	return refs, nil
}

type commentPageDTO struct {
	Items    []commentDTO `json:"items"`
	List     []commentDTO `json:"list"`
	Page     int          `json:"page"`
	PageSize int          `json:"pageSize"`
	Total    int          `json:"total"`
}

// CommentPageFromJSON decodes one page of comments, enveloped or bare.
func CommentPageFromJSON(raw []byte) (CommentPage, error) {
	var dto commentPageDTO
	if err := json.Unmarshal(unwrap(raw), &dto); err != nil {
		return CommentPage{}, fmt.Errorf("decode comment page: %w", err)
	}
	items := dto.Items
	if items == nil {
		items = dto.List
	}
	page := CommentPage{
		Items:    make([]Comment, 0, len(items)),
		Page:     dto.Page,
		PageSize: dto.PageSize,
		Total:    dto.Total,
	}
	for _, d := range items {
		page.Items = append(page.Items, d.toComment())
	}
	return page, nil
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
