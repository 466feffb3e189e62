// Package web exposes the group, library and play session commands over a
// JSON HTTP API.
package web

import (
	"context"
	"log/slog"
	"time"

	"github.com/freekieb7/playlog/internal/group"
	"github.com/freekieb7/playlog/internal/library"
	"github.com/freekieb7/playlog/internal/playsession"
	"github.com/freekieb7/playlog/internal/util"
	"github.com/freekieb7/playlog/internal/validator"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type groupService interface {
	CreateGroup(ctx context.Context, params group.CreateGroupParams) (*group.Group, error)
	GetGroup(ctx context.Context, groupID uuid.UUID) (*group.Group, error)
	ListMyGroups(ctx context.Context) ([]*group.Group, error)
	UpdateGroup(ctx context.Context, params group.UpdateGroupParams) (*group.Group, error)
	JoinByInviteCode(ctx context.Context, code string, now time.Time) (*group.Group, error)
	RemoveMember(ctx context.Context, groupID uuid.UUID, memberUserID string) error
	LeaveGroup(ctx context.Context, groupID uuid.UUID) error
	TransferOwnership(ctx context.Context, groupID uuid.UUID, newOwnerUserID string) error
	CreateInviteCode(ctx context.Context, groupID uuid.UUID) (group.InviteCode, error)
	RevokeInviteCode(ctx context.Context, groupID, codeID uuid.UUID) error
	ListInviteCodes(ctx context.Context, groupID uuid.UUID) ([]group.InviteCode, error)
	DeleteGroup(ctx context.Context, groupID uuid.UUID) error
}

type libraryService interface {
	AddEntry(ctx context.Context, details library.EntryDetails) (*library.Entry, error)
	GetEntry(ctx context.Context, id uuid.UUID) (*library.Entry, error)
	ListEntries(ctx context.Context, params library.ListEntriesParams) ([]*library.Entry, error)
	UpdateEntry(ctx context.Context, id uuid.UUID, details library.EntryDetails) (*library.Entry, error)
	DeleteEntry(ctx context.Context, id uuid.UUID) error
	ShareEntry(ctx context.Context, id, groupID uuid.UUID) (*library.Entry, error)
	UnshareEntry(ctx context.Context, id uuid.UUID) (*library.Entry, error)
}

type sessionService interface {
	LogSession(ctx context.Context, details playsession.SessionDetails) (*playsession.Session, error)
	GetSession(ctx context.Context, id uuid.UUID) (*playsession.Session, error)
	ListSessions(ctx context.Context, params playsession.ListSessionsParams) ([]*playsession.Session, error)
	DeleteSession(ctx context.Context, id uuid.UUID) error
	ShareSession(ctx context.Context, id, groupID uuid.UUID) (*playsession.Session, error)
	UnshareSession(ctx context.Context, id uuid.UUID) (*playsession.Session, error)
}

type APIHandler struct {
	Logger    *slog.Logger
	DB        pinger
	Groups    groupService
	Library   libraryService
	Sessions  sessionService
	Validator *validator.Validator
	now       func() time.Time
}

func NewAPIHandler(logger *slog.Logger, db pinger, groups groupService, lib libraryService, sessions sessionService, v *validator.Validator) *APIHandler {
	return &APIHandler{
		Logger:    logger,
		DB:        db,
		Groups:    groups,
		Library:   lib,
		Sessions:  sessions,
		Validator: v,
		now:       time.Now,
	}
}

func (h *APIHandler) Healthy(c *fiber.Ctx) error {
	if err := h.DB.Ping(c.UserContext()); err != nil {
		h.Logger.ErrorContext(c.UserContext(), "Database connection failed", "error", err)
		return ErrorResponse(c, fiber.StatusServiceUnavailable, "UNHEALTHY", "Database connection failed")
	}
	return JSONResponse(c, fiber.StatusOK, fiber.Map{"status": "healthy"})
}

// Groups

type CreateGroupRequest struct {
	Name        string `json:"name" validate:"notblank,max=100"`
	Description string `json:"description" validate:"max=500"`
}

func (h *APIHandler) CreateGroup(c *fiber.Ctx) error {
	var req CreateGroupRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}

	g, err := h.Groups.CreateGroup(c.UserContext(), group.CreateGroupParams{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		return err
	}
	return JSONResponse(c, fiber.StatusCreated, newGroupResponse(g))
}

func (h *APIHandler) ListGroups(c *fiber.Ctx) error {
	groups, err := h.Groups.ListMyGroups(c.UserContext())
	if err != nil {
		return err
	}

	items := make([]GroupResponse, len(groups))
	for i, g := range groups {
		items[i] = newGroupResponse(g)
	}
	return JSONResponse(c, fiber.StatusOK, Page[GroupResponse]{Items: items})
}

func (h *APIHandler) GetGroup(c *fiber.Ctx) error {
	groupID, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	g, err := h.Groups.GetGroup(c.UserContext(), groupID)
	if err != nil {
		return err
	}
	return JSONResponse(c, fiber.StatusOK, newGroupResponse(g))
}

type UpdateGroupRequest struct {
	Name        *string `json:"name" validate:"omitempty,notblank,max=100"`
	Description *string `json:"description" validate:"omitempty,max=500"`
}

func (h *APIHandler) UpdateGroup(c *fiber.Ctx) error {
	groupID, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	var req UpdateGroupRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}

	params := group.UpdateGroupParams{
		GroupID:     groupID,
		Name:        util.FromPtr(req.Name),
		Description: util.FromPtr(req.Description),
	}

	g, err := h.Groups.UpdateGroup(c.UserContext(), params)
	if err != nil {
		return err
	}
	return JSONResponse(c, fiber.StatusOK, newGroupResponse(g))
}

func (h *APIHandler) DeleteGroup(c *fiber.Ctx) error {
	groupID, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	if err := h.Groups.DeleteGroup(c.UserContext(), groupID); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandler) LeaveGroup(c *fiber.Ctx) error {
	groupID, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	if err := h.Groups.LeaveGroup(c.UserContext(), groupID); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandler) RemoveMember(c *fiber.Ctx) error {
	groupID, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	if err := h.Groups.RemoveMember(c.UserContext(), groupID, c.Params("userID")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type TransferOwnershipRequest struct {
	UserID string `json:"user_id" validate:"notblank"`
}

func (h *APIHandler) TransferOwnership(c *fiber.Ctx) error {
	groupID, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	var req TransferOwnershipRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}

	if err := h.Groups.TransferOwnership(c.UserContext(), groupID, req.UserID); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandler) CreateInviteCode(c *fiber.Ctx) error {
	groupID, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	code, err := h.Groups.CreateInviteCode(c.UserContext(), groupID)
	if err != nil {
		return err
	}
	return JSONResponse(c, fiber.StatusCreated, newInviteCodeResponse(code))
}

func (h *APIHandler) ListInviteCodes(c *fiber.Ctx) error {
	groupID, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	codes, err := h.Groups.ListInviteCodes(c.UserContext(), groupID)
	if err != nil {
		return err
	}

	items := make([]InviteCodeResponse, len(codes))
	for i, code := range codes {
		items[i] = newInviteCodeResponse(code)
	}
	return JSONResponse(c, fiber.StatusOK, Page[InviteCodeResponse]{Items: items})
}

func (h *APIHandler) RevokeInviteCode(c *fiber.Ctx) error {
	groupID, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	codeID, err := paramUUID(c, "codeID")
	if err != nil {
		return err
	}
	if err := h.Groups.RevokeInviteCode(c.UserContext(), groupID, codeID); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type JoinGroupRequest struct {
	Code string `json:"code" validate:"required,invite_code"`
}

func (h *APIHandler) JoinGroup(c *fiber.Ctx) error {
	req := JoinGroupRequest{Code: c.Params("code")}
	if err := h.Validator.Validate(req); err != nil {
		return err
	}

	g, err := h.Groups.JoinByInviteCode(c.UserContext(), req.Code, h.now())
	if err != nil {
		return err
	}
	return JSONResponse(c, fiber.StatusOK, newGroupResponse(g))
}

// Library

type EntryRequest struct {
	Title      string `json:"title" validate:"notblank,max=200"`
	Publisher  string `json:"publisher" validate:"max=200"`
	MinPlayers int    `json:"min_players" validate:"gte=0,lte=100"`
	MaxPlayers int    `json:"max_players" validate:"gte=0,lte=100"`
	Notes      string `json:"notes" validate:"max=2000"`
}

func (r EntryRequest) details() library.EntryDetails {
	return library.EntryDetails{
		Title:      r.Title,
		Publisher:  r.Publisher,
		MinPlayers: r.MinPlayers,
		MaxPlayers: r.MaxPlayers,
		Notes:      r.Notes,
	}
}

func (h *APIHandler) AddEntry(c *fiber.Ctx) error {
	var req EntryRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}

	e, err := h.Library.AddEntry(c.UserContext(), req.details())
	if err != nil {
		return err
	}
	return JSONResponse(c, fiber.StatusCreated, newEntryResponse(e))
}

func (h *APIHandler) ListEntries(c *fiber.Ctx) error {
	groupID, err := queryUUID(c, "group_id")
	if err != nil {
		return err
	}
	params := library.ListEntriesParams{
		GroupID: groupID,
		Limit:   library.PageSize(c.QueryInt("limit")),
		Offset:  max(c.QueryInt("offset"), 0),
	}
	if search := c.Query("search"); search != "" {
		params.Search = util.Some(search)
	}

	entries, err := h.Library.ListEntries(c.UserContext(), params)
	if err != nil {
		return err
	}

	items := make([]EntryResponse, len(entries))
	for i, e := range entries {
		items[i] = newEntryResponse(e)
	}
	return PaginationResponse(c, items, params.Offset, params.Limit)
}

func (h *APIHandler) GetEntry(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	e, err := h.Library.GetEntry(c.UserContext(), id)
	if err != nil {
		return err
	}
	return JSONResponse(c, fiber.StatusOK, newEntryResponse(e))
}

func (h *APIHandler) UpdateEntry(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	var req EntryRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}

	e, err := h.Library.UpdateEntry(c.UserContext(), id, req.details())
	if err != nil {
		return err
	}
	return JSONResponse(c, fiber.StatusOK, newEntryResponse(e))
}

func (h *APIHandler) DeleteEntry(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	if err := h.Library.DeleteEntry(c.UserContext(), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type ShareRequest struct {
	GroupID string `json:"group_id" validate:"required,uuid"`
}

func (h *APIHandler) ShareEntry(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	groupID, err := h.bindShare(c)
	if err != nil {
		return err
	}

	e, err := h.Library.ShareEntry(c.UserContext(), id, groupID)
	if err != nil {
		return err
	}
	return JSONResponse(c, fiber.StatusOK, newEntryResponse(e))
}

func (h *APIHandler) UnshareEntry(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	e, err := h.Library.UnshareEntry(c.UserContext(), id)
	if err != nil {
		return err
	}
	return JSONResponse(c, fiber.StatusOK, newEntryResponse(e))
}

// Play sessions

type PlayerRequest struct {
	Name   string `json:"name" validate:"notblank,max=100"`
	Score  int    `json:"score"`
	Winner bool   `json:"winner"`
}

type SessionRequest struct {
	EntryID         string          `json:"entry_id" validate:"omitempty,uuid"`
	GameTitle       string          `json:"game_title" validate:"required_without=EntryID,max=200"`
	PlayedAt        time.Time       `json:"played_at" validate:"required"`
	DurationMinutes int             `json:"duration_minutes" validate:"gte=0,lte=10080"`
	Players         []PlayerRequest `json:"players" validate:"required,min=1,max=50,dive"`
	Notes           string          `json:"notes" validate:"max=2000"`
}

func (h *APIHandler) LogSession(c *fiber.Ctx) error {
	var req SessionRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}

	details := playsession.SessionDetails{
		GameTitle:       req.GameTitle,
		PlayedAt:        req.PlayedAt,
		DurationMinutes: req.DurationMinutes,
		Notes:           req.Notes,
	}
	if req.EntryID != "" {
		details.EntryID = util.Some(uuid.MustParse(req.EntryID))
	}
	for _, p := range req.Players {
		details.Players = append(details.Players, playsession.Player{Name: p.Name, Score: p.Score, Winner: p.Winner})
	}

	s, err := h.Sessions.LogSession(c.UserContext(), details)
	if err != nil {
		return err
	}
	return JSONResponse(c, fiber.StatusCreated, newSessionResponse(s))
}

func (h *APIHandler) ListSessions(c *fiber.Ctx) error {
	groupID, err := queryUUID(c, "group_id")
	if err != nil {
		return err
	}
	entryID, err := queryUUID(c, "entry_id")
	if err != nil {
		return err
	}
	from, err := queryTime(c, "from")
	if err != nil {
		return err
	}
	to, err := queryTime(c, "to")
	if err != nil {
		return err
	}

	params := playsession.ListSessionsParams{
		GroupID:     groupID,
		EntryID:     entryID,
		From:        from,
		To:          to,
		OldestFirst: c.Query("order") == "oldest",
		Limit:       playsession.PageSize(c.QueryInt("limit")),
		Offset:      max(c.QueryInt("offset"), 0),
	}

	sessions, err := h.Sessions.ListSessions(c.UserContext(), params)
	if err != nil {
		return err
	}

	items := make([]SessionResponse, len(sessions))
	for i, s := range sessions {
		items[i] = newSessionResponse(s)
	}
	return PaginationResponse(c, items, params.Offset, params.Limit)
}

func (h *APIHandler) GetSession(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	s, err := h.Sessions.GetSession(c.UserContext(), id)
	if err != nil {
		return err
	}
	return JSONResponse(c, fiber.StatusOK, newSessionResponse(s))
}

func (h *APIHandler) DeleteSession(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	if err := h.Sessions.DeleteSession(c.UserContext(), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandler) ShareSession(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	groupID, err := h.bindShare(c)
	if err != nil {
		return err
	}

	s, err := h.Sessions.ShareSession(c.UserContext(), id, groupID)
	if err != nil {
		return err
	}
	return JSONResponse(c, fiber.StatusOK, newSessionResponse(s))
}

func (h *APIHandler) UnshareSession(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}

	s, err := h.Sessions.UnshareSession(c.UserContext(), id)
	if err != nil {
		return err
	}
	return JSONResponse(c, fiber.StatusOK, newSessionResponse(s))
}

// bind decodes the JSON body into out and checks its validate tags.
func (h *APIHandler) bind(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	return h.Validator.Validate(out)
}

func (h *APIHandler) bindShare(c *fiber.Ctx) (uuid.UUID, error) {
	var req ShareRequest
	if err := h.bind(c, &req); err != nil {
		return uuid.Nil, err
	}
	return uuid.MustParse(req.GroupID), nil
}

func paramUUID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "Invalid "+name)
	}
	return id, nil
}

func queryUUID(c *fiber.Ctx, name string) (util.Optional[uuid.UUID], error) {
	raw := c.Query(name)
	if raw == "" {
		return util.None[uuid.UUID](), nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return util.None[uuid.UUID](), fiber.NewError(fiber.StatusBadRequest, "Invalid "+name)
	}
	return util.Some(id), nil
}

func queryTime(c *fiber.Ctx, name string) (util.Optional[time.Time], error) {
	raw := c.Query(name)
	if raw == "" {
		return util.None[time.Time](), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return util.None[time.Time](), fiber.NewError(fiber.StatusBadRequest, "Invalid "+name+", expected RFC 3339")
	}
	return util.Some(t), nil
}
