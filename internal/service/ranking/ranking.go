// Package ranking wraps the highscore commands into a small query
// service.
package ranking

import (
	"context"

	"go.uber.org/zap"

	"github.com/nmxmxh/empire-core/internal/request"
	gameerr "github.com/nmxmxh/empire-core/pkg/errors"
)

// Service queries the server highscore lists.
type Service struct {
	api *request.API
	log *zap.Logger
}

func New(api *request.API, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{api: api, log: log.With(zap.String("service", "ranking"))}
}

// Around returns the page centered on the own rank.
func (s *Service) Around(ctx context.Context, kind request.RankingKind) (*request.RankingPage, error) {
	return s.page(ctx, request.Highscore{Kind: kind})
}

// Search returns the page centered on a player name.
func (s *Service) Search(ctx context.Context, kind request.RankingKind, name string) (*request.RankingPage, error) {
	if name == "" {
		return nil, &gameerr.ValidationError{Field: "name", Reason: "must not be empty"}
	}
	return s.page(ctx, request.Highscore{Kind: kind, SearchValue: name})
}

// Page returns the page starting at a fixed rank offset.
func (s *Service) Page(ctx context.Context, kind request.RankingKind, rank int) (*request.RankingPage, error) {
	return s.page(ctx, request.LocalRanking{Kind: kind, Rank: rank})
}

// Top returns the first page of a list.
func (s *Service) Top(ctx context.Context, kind request.RankingKind) (*request.RankingPage, error) {
	return s.Page(ctx, kind, 0)
}

func (s *Service) page(ctx context.Context, req request.Request) (*request.RankingPage, error) {
	v, err := s.api.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	page, ok := v.(*request.RankingPage)
	if !ok {
		return nil, gameerr.New("unexpected ranking response shape")
	}
	s.log.Debug("ranking page fetched",
		zap.Int("kind", int(page.Kind)),
		zap.Int("entries", len(page.Entries)))
	return page, nil
}
