// Package travel is the domain layer: scenery spots, comments, and the
// page controller that glues fetching and mutations together for the UI.
package travel

import "time"

// Scenery is a travel spot as the detail page shows it.
type Scenery struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	City          string  `json:"city"`
	Price         float64 `json:"price"`
	Score         float64 `json:"score"`
	Intro         string  `json:"intro"`
	CoverURL      string  `json:"coverUrl"`
	LikeCount     int     `json:"likeCount"`
	Liked         bool    `json:"liked"`
	FavoriteCount int     `json:"favoriteCount"`
	Favorited     bool    `json:"favorited"`
}

// SceneryRef is the abbreviated card used in "nearby" listings.
type SceneryRef struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	City     string  `json:"city"`
	Score    float64 `json:"score"`
	CoverURL string  `json:"coverUrl"`
}

// Comment is one visitor comment on a scenery spot.
type Comment struct {
	ID        string    `json:"id"`
	SceneryID string    `json:"sceneryId"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	Score     float64   `json:"score"`
	CreatedAt time.Time `json:"createdAt"`
}

// CommentPage is one page of comments with its pagination totals.
type CommentPage struct {
	Items    []Comment `json:"items"`
	Page     int       `json:"page"`
	PageSize int       `json:"pageSize"`
	Total    int       `json:"total"`
}
