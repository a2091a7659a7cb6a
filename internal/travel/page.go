package travel

import (
	"context"

	"github.com/google/uuid"

	"wayfare.org/internal/fetch"
	"wayfare.org/internal/mutate"
	"wayfare.org/internal/notify"
	"wayfare.org/internal/obs"
)

const defaultCommentPageSize = 10

// Page is the controller behind a scenery detail view. It owns the three
// remote collections the view renders and the toggle engine for likes and
// favorites.
type Page struct {
	SessionID string

	svc       *Service
	sceneryID string
	pageSize  int

	primary  *fetch.Orchestrator[Scenery]
	related  *fetch.Orchestrator[[]SceneryRef]
	comments *fetch.Loader[CommentPage]
	engine   *mutate.Engine
}

// NewPage builds the controller for one scenery spot. opts tune the fetch
// timings, which tests shrink.
func NewPage(svc *Service, notices *notify.Hub, sceneryID string, opts ...fetch.Option) *Page {
	p := &Page{
		SessionID: uuid.NewString(),
		svc:       svc,
		sceneryID: sceneryID,
		pageSize:  defaultCommentPageSize,
	}
	p.primary = fetch.NewOrchestrator("scenery", func(ctx context.Context) (Scenery, error) {
		return svc.Scenery(ctx, sceneryID)
	}, opts...)
	p.related = fetch.NewOrchestrator("nearby", func(ctx context.Context) ([]SceneryRef, error) {
		return svc.Nearby(ctx, sceneryID)
	}, opts...)
	p.comments = fetch.NewLoader("comments", func(ctx context.Context, req fetch.PageRequest) (CommentPage, fetch.Cursor, error) {
		page, err := svc.Comments(ctx, req.ParentID, req.Page, req.PageSize)
		if err != nil {
			return CommentPage{}, fetch.Cursor{}, err
		}
		return page, fetch.Cursor{Page: page.Page, PageSize: page.PageSize, Total: page.Total}, nil
	}, opts...)
	p.engine = mutate.NewEngine(svc, p, notices)
	return p
}

// Mount loads everything the view needs on first render.
func (p *Page) Mount(ctx context.Context) {
	obs.LogEvent(map[string]any{
		"event":   "page_mount",
		"session": p.SessionID,
		"scenery": p.sceneryID,
	})
	p.primary.Load(ctx)
	p.related.Load(ctx)
	p.comments.LoadPage(ctx, fetch.PageRequest{ParentID: p.sceneryID, Page: 1, PageSize: p.pageSize})
}

// Refresh reloads every collection on the page, discarding whatever was
// pending.
func (p *Page) Refresh(ctx context.Context) {
	p.primary.Refresh(ctx)
	p.related.Refresh(ctx)
	p.comments.Refresh(ctx)
}

// LoadCommentsPage flips to another comment page through the debounced
// loader.
func (p *Page) LoadCommentsPage(ctx context.Context, page int) {
	p.comments.LoadPage(ctx, fetch.PageRequest{ParentID: p.sceneryID, Page: page, PageSize: p.pageSize})
}

// ToggleLike flips the like on the loaded spot.
func (p *Page) ToggleLike(ctx context.Context) error {
	return p.engine.Toggle(ctx, p.sceneryID, mutate.ActionLike)
}

// ToggleFavorite flips the favorite on the loaded spot.
func (p *Page) ToggleFavorite(ctx context.Context) error {
	return p.engine.Toggle(ctx, p.sceneryID, mutate.ActionFavorite)
}

// Scenery returns the loaded detail record.
func (p *Page) Scenery() (Scenery, bool) { return p.primary.Snapshot() }

// Related returns the loaded nearby cards.
func (p *Page) Related() ([]SceneryRef, bool) { return p.related.Snapshot() }

// Comments returns the last successfully loaded comment page.
func (p *Page) Comments() (CommentPage, bool) {
	page, _, ok := p.comments.Snapshot()
	return page, ok
}

// SceneryState exposes the request state of the detail record.
func (p *Page) SceneryState() fetch.State { return p.primary.State() }

// RelatedState exposes the request state of the nearby cards.
func (p *Page) RelatedState() fetch.State { return p.related.State() }

// CommentsState exposes the request state of the comment list.
func (p *Page) CommentsState() fetch.State { return p.comments.State() }

// Get makes the page the local target of the toggle engine: it reads the
// current flag off the loaded snapshot.
func (p *Page) Get(entityID string, action mutate.ActionKind) (bool, bool) {
	s, ok := p.primary.Snapshot()
	if !ok || s.ID != entityID {
		return false, false
	}
	switch action {
	case mutate.ActionLike:
		return s.Liked, true
	case mutate.ActionFavorite:
		return s.Favorited, true
	default:
		return false, false
	}
}

// Apply flips the flag and its counter on the snapshot in place.
func (p *Page) Apply(entityID string, action mutate.ActionKind, value bool) {
	p.primary.Mutate(func(s *Scenery) {
		if s.ID != entityID {
			return
		}
		switch action {
		case mutate.ActionLike:
			if s.Liked != value {
				s.Liked = value
				s.LikeCount += delta(value)
			}
		case mutate.ActionFavorite:
			if s.Favorited != value {
				s.Favorited = value
				s.FavoriteCount += delta(value)
			}
		}
	})
}

func delta(on bool) int {
	if on {
		return 1
	}
	return -1
}
