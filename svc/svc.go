// Package svc exposes the solver over NATS. Solves are request/reply on
// rotaplan.solve with JSON bodies; progress events stream on
// rotaplan.progress.<gameID> while the solve runs. Division suggestions
// use rotaplan.suggest the same way.
package svc

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/rotaplanhq/rotaplan/divopt"
	"github.com/rotaplanhq/rotaplan/lineup"
	"github.com/rotaplanhq/rotaplan/orchestrator"
	"github.com/rotaplanhq/rotaplan/store"
)

const (
	SubjectSolve   = "rotaplan.solve"
	SubjectSuggest = "rotaplan.suggest"
	// SubjectProgress is the per-game progress stream prefix; the game id
	// is appended.
	SubjectProgress = "rotaplan.progress."
)

// SolveResponse is the reply to a solve request. Error is set instead of
// Schedule when the request cannot be satisfied; a cancelled solve
// reports itself as an error too, since request/reply has no "nothing"
// answer.
type SolveResponse struct {
	Schedule *lineup.RotationSchedule `json:"schedule,omitempty"`
	Outliers []lineup.PlayerID        `json:"outliers,omitempty"`
	Error    string                   `json:"error,omitempty"`
}

// SuggestResponse is the reply to a division-suggestion request.
type SuggestResponse struct {
	Suggestion *lineup.OptimizationSuggestion `json:"suggestion,omitempty"`
	Error      string                         `json:"error,omitempty"`
}

// Service serves solve and suggest requests from a NATS connection.
type Service struct {
	nc   *nats.Conn
	orch *orchestrator.Orchestrator
	opt  *divopt.Optimizer
	// st is optional; when set, accepted schedules are persisted.
	st *store.Store

	subs []*nats.Subscription
}

func NewService(nc *nats.Conn, orch *orchestrator.Orchestrator, opt *divopt.Optimizer, st *store.Store) *Service {
	return &Service{nc: nc, orch: orch, opt: opt, st: st}
}

// Start subscribes the handlers. Handlers run until Close.
func (s *Service) Start(ctx context.Context) error {
	sub, err := s.nc.Subscribe(SubjectSolve, func(m *nats.Msg) {
		go func() {
			reply := s.handleSolve(ctx, m.Data, func(subject string, data []byte) {
				if err := s.nc.Publish(subject, data); err != nil {
					log.Error().Err(err).Str("subject", subject).Msg("progress-publish-failed")
				}
			})
			if err := m.Respond(reply); err != nil {
				log.Error().Err(err).Msg("solve-respond-failed")
			}
		}()
	})
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)

	sub, err = s.nc.Subscribe(SubjectSuggest, func(m *nats.Msg) {
		go func() {
			if err := m.Respond(s.handleSuggest(ctx, m.Data)); err != nil {
				log.Error().Err(err).Msg("suggest-respond-failed")
			}
		}()
	})
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)

	if err := s.nc.Flush(); err != nil {
		return err
	}
	log.Info().Str("solve", SubjectSolve).Str("suggest", SubjectSuggest).Msg("listening")
	return nil
}

// Close drains the subscriptions; in-flight handlers finish first.
func (s *Service) Close() {
	for _, sub := range s.subs {
		if err := sub.Drain(); err != nil {
			log.Error().Err(err).Msg("drain-failed")
		}
	}
}

func errorReply[T any](build func(string) T, msg string, err error) []byte {
	if err != nil {
		msg = msg + ": " + err.Error()
	}
	data, _ := json.Marshal(build(msg))
	return data
}

func solveError(msg string) SolveResponse { return SolveResponse{Error: msg} }

func suggestError(msg string) SuggestResponse { return SuggestResponse{Error: msg} }

func (s *Service) handleSolve(ctx context.Context, data []byte, publish func(subject string, data []byte)) []byte {
	var req lineup.SolveRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return errorReply(solveError, "bad request", err)
	}
	log.Info().Str("gameID", req.GameID).Int("roster", len(req.Roster)).Msg("solve-request")

	solve := s.orch.Start(ctx, &req)
	for ev := range solve.Progress {
		body, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		publish(SubjectProgress+req.GameID, body)
	}

	res, ok := <-solve.Done
	if !ok {
		return errorReply(solveError, "solve cancelled", nil)
	}
	if res.Err != nil {
		return errorReply(solveError, "solve failed", res.Err)
	}

	if s.st != nil {
		if _, err := s.st.SaveRequest(ctx, &req); err != nil {
			log.Error().Err(err).Str("gameID", req.GameID).Msg("persist-request-failed")
		} else if err := s.st.SaveSchedule(ctx, req.GameID, res.Schedule); err != nil {
			log.Error().Err(err).Str("gameID", req.GameID).Msg("persist-schedule-failed")
		}
	}

	reply, err := json.Marshal(SolveResponse{Schedule: res.Schedule, Outliers: res.Outliers})
	if err != nil {
		return errorReply(solveError, "encode response", err)
	}
	return reply
}

func (s *Service) handleSuggest(ctx context.Context, data []byte) []byte {
	var req lineup.SolveRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return errorReply(suggestError, "bad request", err)
	}
	baseline := s.orch.Accepted(req.GameID)
	if baseline == nil && s.st != nil {
		var err error
		baseline, err = s.st.LoadSchedule(ctx, req.GameID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return errorReply(suggestError, "load schedule", err)
		}
	}
	if baseline == nil {
		return errorReply(suggestError, "no accepted schedule for game "+req.GameID, nil)
	}

	sug, err := s.opt.Suggest(ctx, &req, baseline)
	if err != nil {
		return errorReply(suggestError, "suggest failed", err)
	}
	reply, err := json.Marshal(SuggestResponse{Suggestion: sug})
	if err != nil {
		return errorReply(suggestError, "encode response", err)
	}
	return reply
}

// Client is the caller side of the service.
type Client struct {
	nc *nats.Conn
	// Timeout bounds each request round trip.
	Timeout time.Duration
}

func NewClient(nc *nats.Conn) *Client {
	return &Client{nc: nc, Timeout: 60 * time.Second}
}

// Solve sends a solve request and waits for the reply.
func (c *Client) Solve(ctx context.Context, req *lineup.SolveRequest) (*SolveResponse, error) {
	return request[SolveResponse](ctx, c, SubjectSolve, req)
}

// Suggest asks for division candidates against the game's accepted
// schedule.
func (c *Client) Suggest(ctx context.Context, req *lineup.SolveRequest) (*SuggestResponse, error) {
	return request[SuggestResponse](ctx, c, SubjectSuggest, req)
}

// SubscribeProgress delivers a game's progress events to fn until the
// returned unsubscribe func is called.
func (c *Client) SubscribeProgress(gameID string, fn func(lineup.Progress)) (func(), error) {
	sub, err := c.nc.Subscribe(SubjectProgress+gameID, func(m *nats.Msg) {
		var ev lineup.Progress
		if err := json.Unmarshal(m.Data, &ev); err != nil {
			log.Debug().Err(err).Msg("bad progress event")
			return
		}
		fn(ev)
	})
	if err != nil {
		return nil, err
	}
	return func() {
		if err := sub.Unsubscribe(); err != nil {
			log.Debug().Err(err).Msg("unsubscribe failed")
		}
	}, nil
}

func request[T any](ctx context.Context, c *Client, subject string, req *lineup.SolveRequest) (*T, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()
	msg, err := c.nc.RequestWithContext(ctx, subject, data)
	if err != nil {
		if c.nc.LastError() != nil {
			log.Error().Msgf("%v for request", c.nc.LastError())
		}
		return nil, err
	}
	var resp T
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
