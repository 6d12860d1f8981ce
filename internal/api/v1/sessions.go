package v1

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/taskbot/internal/conversation"
	"github.com/gosuda/taskbot/internal/domain"
	"github.com/gosuda/taskbot/internal/server/middleware"
)

type SessionInput struct {
	UserKey string `path:"userKey" minLength:"1" doc:"Phone number or email the user is known by"`
}

type SessionView struct {
	SessionID string           `json:"session_id"`
	State     string           `json:"state" doc:"Conversation state the user is in"`
	History   []domain.Message `json:"history"`
}

type GetSessionOutput struct {
	Body *SessionView
}

func RegisterSessionRoutes(api huma.API, sessions SessionStore) {
	huma.Register(api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/sessions/{userKey}",
		Summary:     "Show a user's active conversation",
		Tags:        []string{"Sessions"},
	}, func(ctx context.Context, input *SessionInput) (*GetSessionOutput, error) {
		sid, ok, err := sessions.ActiveSession(ctx, input.UserKey)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to read session", err)
		}
		if !ok {
			return nil, huma.Error404NotFound("no active session")
		}

		history, err := sessions.History(ctx, sid)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to read history", err)
		}

		state := conversation.StateFresh
		raw, found, err := sessions.GetPending(ctx, sid)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to read pending state", err)
		}
		if found {
			p, decodeErr := conversation.DecodePending(raw)
			if decodeErr != nil {
				log.Warn().Err(decodeErr).Str("session_id", sid).Msg("api: undecodable pending state")
			} else {
				state = conversation.StateOf(p)
			}
		}

		if history == nil {
			history = []domain.Message{}
		}
		return &GetSessionOutput{Body: &SessionView{SessionID: sid, State: string(state), History: history}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "end-session",
		Method:        http.MethodDelete,
		Path:          "/sessions/{userKey}",
		Summary:       "End a user's active conversation",
		Tags:          []string{"Sessions"},
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *SessionInput) (*struct{}, error) {
		sid, ok, err := sessions.ActiveSession(ctx, input.UserKey)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to read session", err)
		}
		if !ok {
			return nil, huma.Error404NotFound("no active session")
		}

		if err := sessions.EndSession(ctx, input.UserKey, sid); err != nil {
			return nil, huma.Error500InternalServerError("failed to end session", err)
		}

		operator, _ := middleware.SubjectFromContext(ctx)
		log.Info().Str("user_key", input.UserKey).Str("session_id", sid).Str("operator", operator).Msg("api: session ended by operator")
		return nil, nil
	})
}
