package web

import (
	"time"

	"github.com/freekieb7/playlog/internal/group"
	"github.com/freekieb7/playlog/internal/library"
	"github.com/freekieb7/playlog/internal/playsession"
	"github.com/freekieb7/playlog/internal/util"

	"github.com/google/uuid"
)

type MemberResponse struct {
	UserID   string     `json:"user_id"`
	Role     group.Role `json:"role"`
	JoinedAt time.Time  `json:"joined_at"`
}

type GroupResponse struct {
	ID          uuid.UUID        `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	OwnerUserID string           `json:"owner_user_id"`
	Members     []MemberResponse `json:"members"`
	Version     int64            `json:"version"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

func newGroupResponse(g *group.Group) GroupResponse {
	members := g.Members()
	resp := GroupResponse{
		ID:          g.ID(),
		Name:        g.Name(),
		Description: g.Description(),
		OwnerUserID: g.Owner().UserID,
		Members:     make([]MemberResponse, len(members)),
		Version:     g.Version(),
		CreatedAt:   g.CreatedAt(),
		UpdatedAt:   g.UpdatedAt(),
	}
	for i, m := range members {
		resp.Members[i] = MemberResponse{UserID: m.UserID, Role: m.Role, JoinedAt: m.JoinedAt}
	}
	return resp
}

type InviteCodeResponse struct {
	ID              uuid.UUID `json:"id"`
	Code            string    `json:"code"`
	CreatedByUserID string    `json:"created_by_user_id"`
	CreatedAt       time.Time `json:"created_at"`
	ExpiresAt       time.Time `json:"expires_at"`
}

func newInviteCodeResponse(c group.InviteCode) InviteCodeResponse {
	return InviteCodeResponse{
		ID:              c.ID,
		Code:            c.Code,
		CreatedByUserID: c.CreatedByUserID,
		CreatedAt:       c.CreatedAt,
		ExpiresAt:       c.ExpiresAt,
	}
}

type EntryResponse struct {
	ID          uuid.UUID                `json:"id"`
	OwnerUserID string                   `json:"owner_user_id"`
	GroupID     util.Optional[uuid.UUID] `json:"group_id"`
	Title       string                   `json:"title"`
	Publisher   string                   `json:"publisher"`
	MinPlayers  int                      `json:"min_players"`
	MaxPlayers  int                      `json:"max_players"`
	Notes       string                   `json:"notes"`
	CreatedAt   time.Time                `json:"created_at"`
	UpdatedAt   time.Time                `json:"updated_at"`
}

func newEntryResponse(e *library.Entry) EntryResponse {
	return EntryResponse{
		ID:          e.ID,
		OwnerUserID: e.OwnerUserID(),
		GroupID:     e.GroupID(),
		Title:       e.Title,
		Publisher:   e.Publisher,
		MinPlayers:  e.MinPlayers,
		MaxPlayers:  e.MaxPlayers,
		Notes:       e.Notes,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

type SessionResponse struct {
	ID              uuid.UUID                `json:"id"`
	OwnerUserID     string                   `json:"owner_user_id"`
	GroupID         util.Optional[uuid.UUID] `json:"group_id"`
	EntryID         util.Optional[uuid.UUID] `json:"entry_id"`
	GameTitle       string                   `json:"game_title"`
	PlayedAt        time.Time                `json:"played_at"`
	DurationMinutes int                      `json:"duration_minutes"`
	Players         []playsession.Player     `json:"players"`
	Winners         []string                 `json:"winners"`
	Notes           string                   `json:"notes"`
	CreatedAt       time.Time                `json:"created_at"`
	UpdatedAt       time.Time                `json:"updated_at"`
}

func newSessionResponse(s *playsession.Session) SessionResponse {
	winners := s.Winners()
	if winners == nil {
		winners = []string{}
	}
	return SessionResponse{
		ID:              s.ID,
		OwnerUserID:     s.OwnerUserID(),
		GroupID:         s.GroupID(),
		EntryID:         s.EntryID,
		GameTitle:       s.GameTitle,
		PlayedAt:        s.PlayedAt,
		DurationMinutes: s.DurationMinutes,
		Players:         s.Players,
		Winners:         winners,
		Notes:           s.Notes,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}
