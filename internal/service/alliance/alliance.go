// Package alliance covers alliance chat and the mutual-help loop.
package alliance

import (
	"context"

	"go.uber.org/zap"

	"github.com/nmxmxh/empire-core/internal/dispatch"
	"github.com/nmxmxh/empire-core/internal/protocol"
	"github.com/nmxmxh/empire-core/internal/request"
	gameerr "github.com/nmxmxh/empire-core/pkg/errors"
)

// Service exposes alliance chat and help operations.
type Service struct {
	api  *request.API
	disp *dispatch.Dispatcher
	log  *zap.Logger
}

func New(api *request.API, disp *dispatch.Dispatcher, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{api: api, disp: disp, log: log.With(zap.String("service", "alliance"))}
}

// Say posts a chat line. The server fans the line back out to every
// member including the sender, so this is fire-and-forget; the echo
// arrives through OnMessage.
func (s *Service) Say(ctx context.Context, text string) error {
	return s.api.Send(ctx, request.SendChat{Text: text})
}

// History fetches the chat backlog, oldest first.
func (s *Service) History(ctx context.Context) ([]request.ChatMessage, error) {
	v, err := s.api.Do(ctx, request.ChatLog{})
	if err != nil {
		return nil, err
	}
	messages, ok := v.([]request.ChatMessage)
	if !ok {
		return nil, gameerr.New("unexpected chat log response shape")
	}
	return messages, nil
}

// OnMessage subscribes fn to the chat fan-out. Frames that do not
// carry a chat line are ignored.
func (s *Service) OnMessage(fn func(request.ChatMessage)) *dispatch.Subscription {
	return s.disp.Subscribe(protocol.CmdAllianceChat, func(pkt *protocol.Packet) {
		msg, ok := request.ParseChatMessage(pkt)
		if !ok {
			s.log.Debug("discarding chat frame without message body")
			return
		}
		fn(msg)
	})
}

// Unsubscribe detaches a chat subscription.
func (s *Service) Unsubscribe(sub *dispatch.Subscription) {
	s.disp.Unsubscribe(sub)
}

// Info fetches the public alliance profile as a raw payload.
func (s *Service) Info(ctx context.Context, allianceID int64) (map[string]any, error) {
	v, err := s.api.Do(ctx, request.AllianceInfo{AllianceID: allianceID})
	if err != nil {
		return nil, err
	}
	pkt, ok := v.(*protocol.Packet)
	if !ok {
		return nil, gameerr.New("unexpected alliance info response shape")
	}
	body := pkt.PayloadMap()
	if body == nil {
		return nil, &gameerr.DecodeError{Reason: "alliance info body is not an object", Frame: pkt.RawBody}
	}
	return body, nil
}

// HelpAll serves every open help request and reports how many were
// answered.
func (s *Service) HelpAll(ctx context.Context) (*request.HelpOverview, error) {
	v, err := s.api.Do(ctx, request.HelpAll{})
	if err != nil {
		return nil, err
	}
	overview, ok := v.(*request.HelpOverview)
	if !ok {
		return nil, gameerr.New("unexpected help response shape")
	}
	if overview.Count > 0 {
		s.log.Info("alliance help served", zap.Int("count", overview.Count))
	}
	return overview, nil
}

// HelpMember serves one member's open request.
func (s *Service) HelpMember(ctx context.Context, playerID int64, castleID int, kind request.HelpKind) error {
	_, err := s.api.Do(ctx, request.HelpMember{PlayerID: playerID, CastleID: castleID, Kind: kind})
	return err
}

// AskHelp opens a help request for an own castle. buildingID narrows
// repair help and may be zero.
func (s *Service) AskHelp(ctx context.Context, castleID int, kind request.HelpKind, buildingID int) error {
	_, err := s.api.Do(ctx, request.AskHelp{CastleID: castleID, Kind: kind, BuildingID: buildingID})
	return err
}
