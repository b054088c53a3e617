package rpc

import (
	"context"

	"github.com/Klingon-tech/lashd/internal/store"
)

// ── Relay / pending event endpoints ─────────────────────────────────────

func (s *Server) handleRelayPublish(ctx context.Context, req *Request) (interface{}, *Error) {
	if s.backend.Events == nil {
		return nil, disabled("event queue")
	}
	var params EventParam
	if err := parseEventParam(req, &params); err != nil {
		return nil, err
	}

	d, err := s.backend.Events.PublishOrEnqueue(ctx, params.Event, params.OwnerKey)
	if err != nil {
		return nil, toError(err, d)
	}
	return d, nil
}

func (s *Server) handleRelayQueueEvent(ctx context.Context, req *Request) (interface{}, *Error) {
	if s.backend.Events == nil {
		return nil, disabled("event queue")
	}
	var params EventParam
	if err := parseEventParam(req, &params); err != nil {
		return nil, err
	}

	row, err := s.backend.Events.Enqueue(ctx, params.Event, params.OwnerKey)
	if err != nil {
		return nil, toError(err, nil)
	}
	return row, nil
}

func (s *Server) handleRelayGetPending(ctx context.Context, req *Request) (interface{}, *Error) {
	if s.backend.Events == nil {
		return nil, disabled("event queue")
	}
	var params OwnerParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.OwnerKey == "" {
		return nil, invalidParams("owner_key is required")
	}

	rows, err := s.backend.Events.Pending(ctx, params.OwnerKey)
	if err != nil {
		return nil, toError(err, nil)
	}
	if rows == nil {
		rows = []*store.PendingEvent{}
	}
	return &PendingResult{OwnerKey: params.OwnerKey, Count: len(rows), Events: rows}, nil
}

func (s *Server) handleRelayRetryEvent(ctx context.Context, req *Request) (interface{}, *Error) {
	if s.backend.Events == nil {
		return nil, disabled("event queue")
	}
	var params RetryParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	switch {
	case params.OldEventID == "":
		return nil, invalidParams("old_event_id is required")
	case params.Event == nil:
		return nil, invalidParams("event is required")
	case params.OwnerKey == "":
		return nil, invalidParams("owner_key is required")
	}

	d, err := s.backend.Events.Retry(ctx, params.OldEventID, params.Event, params.OwnerKey)
	if err != nil {
		return nil, toError(err, d)
	}
	return d, nil
}

func (s *Server) handleRelayResolveEvent(ctx context.Context, req *Request) (interface{}, *Error) {
	if s.backend.Events == nil {
		return nil, disabled("event queue")
	}
	var params ResolveParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	if params.EventID == "" {
		return nil, invalidParams("event_id is required")
	}
	if params.Reason == "" {
		params.Reason = "resolved by operator"
	}

	if err := s.backend.Events.Resolve(ctx, params.EventID, params.Reason); err != nil {
		return nil, toError(err, nil)
	}
	return &ResolveResult{EventID: params.EventID, Status: store.StatusFailed}, nil
}

func parseEventParam(req *Request, params *EventParam) *Error {
	if err := parseParams(req, params); err != nil {
		return err
	}
	if params.Event == nil {
		return invalidParams("event is required")
	}
	if params.OwnerKey == "" {
		return invalidParams("owner_key is required")
	}
	return nil
}
