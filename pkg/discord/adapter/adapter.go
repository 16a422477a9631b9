// Package adapter implements the moderation.DiscordAdapter seam on top of a
// live discordgo.Session, translating gateway calls and discordgo.RESTError
// responses into the moderation package's fixed AdapterError sum type.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/duskward/wardencore/pkg/moderation"
)

var permissionBits = map[string]int64{
	"ban_members":      discordgo.PermissionBanMembers,
	"kick_members":     discordgo.PermissionKickMembers,
	"moderate_members": discordgo.PermissionModerateMembers,
	"manage_roles":     discordgo.PermissionManageRoles,
}

// Session wraps a live *discordgo.Session and implements
// moderation.DiscordAdapter on top of it.
type Session struct {
	*discordgo.Session
}

// New wraps a live discordgo.Session as a moderation.DiscordAdapter.
func New(session *discordgo.Session) *Session {
	return &Session{Session: session}
}

func reqOpts(ctx context.Context, reason string) []discordgo.RequestOption {
	opts := []discordgo.RequestOption{discordgo.WithContext(ctx)}
	if reason != "" {
		opts = append(opts, discordgo.WithAuditLogReason(reason))
	}
	return opts
}

func (s *Session) SendDM(ctx context.Context, userID, text string) error {
	ch, err := s.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return classify(err)
	}
	if _, err := s.ChannelMessageSend(ch.ID, text, discordgo.WithContext(ctx)); err != nil {
		return classify(err)
	}
	return nil
}

func (s *Session) Ban(ctx context.Context, guildID, userID string, purgeDays int, reason string) error {
	if err := s.GuildBanCreateWithReason(guildID, userID, reason, purgeDays, discordgo.WithContext(ctx)); err != nil {
		return classify(err)
	}
	return nil
}

func (s *Session) Unban(ctx context.Context, guildID, userID, reason string) error {
	if err := s.GuildBanDelete(guildID, userID, reqOpts(ctx, reason)...); err != nil {
		return classify(err)
	}
	return nil
}

func (s *Session) Kick(ctx context.Context, guildID, userID, reason string) error {
	if err := s.GuildMemberDeleteWithReason(guildID, userID, reason, discordgo.WithContext(ctx)); err != nil {
		return classify(err)
	}
	return nil
}

func (s *Session) Timeout(ctx context.Context, guildID, userID string, until time.Time, reason string) error {
	if err := s.GuildMemberTimeout(guildID, userID, &until, reqOpts(ctx, reason)...); err != nil {
		return classify(err)
	}
	return nil
}

func (s *Session) RemoveTimeout(ctx context.Context, guildID, userID, reason string) error {
	if err := s.GuildMemberTimeout(guildID, userID, nil, reqOpts(ctx, reason)...); err != nil {
		return classify(err)
	}
	return nil
}

func (s *Session) AddRoles(ctx context.Context, guildID, userID string, roleIDs []string, reason string) error {
	for _, roleID := range roleIDs {
		if err := s.GuildMemberRoleAdd(guildID, userID, roleID, reqOpts(ctx, reason)...); err != nil {
			return classify(err)
		}
	}
	return nil
}

func (s *Session) RemoveRoles(ctx context.Context, guildID, userID string, roleIDs []string, reason string) error {
	for _, roleID := range roleIDs {
		if err := s.GuildMemberRoleRemove(guildID, userID, roleID, reqOpts(ctx, reason)...); err != nil {
			return classify(err)
		}
	}
	return nil
}

func toMessageEmbed(e moderation.Embed) *discordgo.MessageEmbed {
	fields := make([]*discordgo.MessageEmbedField, 0, len(e.Fields))
	for _, f := range e.Fields {
		fields = append(fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	embed := &discordgo.MessageEmbed{
		Title:       e.Title,
		Description: e.Description,
		Color:       e.Color,
		Fields:      fields,
	}
	if !e.Timestamp.IsZero() {
		embed.Timestamp = e.Timestamp.Format(time.RFC3339)
	}
	return embed
}

func (s *Session) SendMessage(ctx context.Context, channelID string, embed moderation.Embed) (*moderation.SentMessage, error) {
	msg, err := s.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{toMessageEmbed(embed)},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify(err)
	}
	return &moderation.SentMessage{ChannelID: channelID, MessageID: msg.ID}, nil
}

func (s *Session) FetchMessage(ctx context.Context, channelID, messageID string) (*moderation.SentMessage, error) {
	msg, err := s.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify(err)
	}
	return &moderation.SentMessage{ChannelID: channelID, MessageID: msg.ID}, nil
}

func (s *Session) EditMessage(ctx context.Context, channelID, messageID string, embed moderation.Embed) error {
	embeds := []*discordgo.MessageEmbed{toMessageEmbed(embed)}
	edit := &discordgo.MessageEdit{
		Channel: channelID,
		ID:      messageID,
		Embeds:  &embeds,
	}
	if _, err := s.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx)); err != nil {
		return classify(err)
	}
	return nil
}

func toMember(m *discordgo.Member, guildID string, roles []*discordgo.Role) *moderation.Member {
	byID := rolesByID(roles)
	return &moderation.Member{
		UserID:     m.User.ID,
		RoleIDs:    m.Roles,
		TopRolePos: highestPosition(m.Roles, guildID, byID),
	}
}

func (s *Session) GetMember(ctx context.Context, guildID, userID string) (*moderation.Member, error) {
	member, err := s.guildMember(ctx, guildID, userID)
	if err != nil {
		return nil, classify(err)
	}
	roles, err := s.guildRoles(ctx, guildID)
	if err != nil {
		return nil, classify(err)
	}
	return toMember(member, guildID, roles), nil
}

func (s *Session) BotMember(ctx context.Context, guildID string) (*moderation.Member, error) {
	if s.State == nil || s.State.User == nil {
		return nil, &moderation.AdapterError{Kind: moderation.AdapterUnknown, Cause: fmt.Errorf("session state has no authenticated user")}
	}
	return s.GetMember(ctx, guildID, s.State.User.ID)
}

func (s *Session) HasPermission(ctx context.Context, guildID, permission string) (bool, error) {
	bit, ok := permissionBits[permission]
	if !ok {
		return false, &moderation.AdapterError{Kind: moderation.AdapterUnknown, Cause: fmt.Errorf("unrecognized permission %q", permission)}
	}
	if s.State == nil || s.State.User == nil {
		return false, &moderation.AdapterError{Kind: moderation.AdapterUnknown, Cause: fmt.Errorf("session state has no authenticated user")}
	}
	member, err := s.guildMember(ctx, guildID, s.State.User.ID)
	if err != nil {
		return false, classify(err)
	}
	roles, err := s.guildRoles(ctx, guildID)
	if err != nil {
		return false, classify(err)
	}
	byID := rolesByID(roles)
	var perms int64
	if everyone, ok := byID[guildID]; ok {
		perms |= everyone.Permissions
	}
	for _, roleID := range member.Roles {
		if role, ok := byID[roleID]; ok {
			perms |= role.Permissions
		}
	}
	if perms&discordgo.PermissionAdministrator != 0 {
		return true, nil
	}
	return perms&bit != 0, nil
}

func (s *Session) ManageableRoles(ctx context.Context, guildID string, roleIDs []string, jailRoleID string) ([]string, error) {
	bot, err := s.BotMember(ctx, guildID)
	if err != nil {
		return nil, err
	}
	roles, err := s.guildRoles(ctx, guildID)
	if err != nil {
		return nil, classify(err)
	}
	byID := rolesByID(roles)

	manageable := make([]string, 0, len(roleIDs))
	for _, roleID := range roleIDs {
		if roleID == guildID || roleID == jailRoleID {
			continue
		}
		role, ok := byID[roleID]
		if !ok {
			continue
		}
		if role.Managed {
			continue
		}
		if role.Tags != nil && (role.Tags.PremiumSubscriber || role.Tags.BotID != "" || role.Tags.IntegrationID != "") {
			continue
		}
		if role.Position >= bot.TopRolePos {
			continue
		}
		manageable = append(manageable, roleID)
	}
	return manageable, nil
}

func (s *Session) guildMember(ctx context.Context, guildID, userID string) (*discordgo.Member, error) {
	if s.State != nil {
		if m, err := s.State.Member(guildID, userID); err == nil && m != nil {
			return m, nil
		}
	}
	return s.GuildMember(guildID, userID, discordgo.WithContext(ctx))
}

func (s *Session) guildRoles(ctx context.Context, guildID string) ([]*discordgo.Role, error) {
	if s.State != nil {
		if g, err := s.State.Guild(guildID); err == nil && g != nil && len(g.Roles) > 0 {
			return g.Roles, nil
		}
	}
	return s.GuildRoles(guildID, discordgo.WithContext(ctx))
}

func rolesByID(roles []*discordgo.Role) map[string]*discordgo.Role {
	byID := make(map[string]*discordgo.Role, len(roles))
	for _, r := range roles {
		byID[r.ID] = r
	}
	return byID
}

func highestPosition(roleIDs []string, guildID string, byID map[string]*discordgo.Role) int {
	pos := -1
	if everyone, ok := byID[guildID]; ok {
		pos = everyone.Position
	}
	for _, roleID := range roleIDs {
		if role, ok := byID[roleID]; ok && role.Position > pos {
			pos = role.Position
		}
	}
	return pos
}

// classify turns a discordgo/network error into the moderation package's
// fixed AdapterError sum type (§9's "dynamic dispatch" boundary).
func classify(err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctxClassify(err); ctxErr != nil {
		return ctxErr
	}

	restErr, ok := err.(*discordgo.RESTError)
	if !ok {
		return &moderation.AdapterError{Kind: moderation.AdapterUnknown, Cause: err}
	}

	status := 0
	var body string
	if restErr.Response != nil {
		status = restErr.Response.StatusCode
	}
	if restErr.ResponseBody != nil {
		body = string(restErr.ResponseBody)
	}

	switch status {
	case http.StatusTooManyRequests:
		return &moderation.AdapterError{Kind: moderation.AdapterRateLimited, Status: status, Body: body, RetryAfter: retryAfter(restErr), Cause: err}
	case http.StatusNotFound:
		return &moderation.AdapterError{Kind: moderation.AdapterNotFound, Status: status, Body: body, Cause: err}
	case http.StatusForbidden, http.StatusUnauthorized:
		return &moderation.AdapterError{Kind: moderation.AdapterForbidden, Status: status, Body: body, Cause: err}
	default:
		return &moderation.AdapterError{Kind: moderation.AdapterHTTPError, Status: status, Body: body, Cause: err}
	}
}

func ctxClassify(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &moderation.AdapterError{Kind: moderation.AdapterTimedOut, Cause: err}
	case errors.Is(err, context.Canceled):
		return &moderation.AdapterError{Kind: moderation.AdapterCancelled, Cause: err}
	default:
		return nil
	}
}

func retryAfter(restErr *discordgo.RESTError) time.Duration {
	if restErr.Response == nil {
		return 0
	}
	values, ok := restErr.Response.Header["Retry-After"]
	if !ok || len(values) == 0 {
		return 0
	}
	var seconds float64
	if _, err := fmt.Sscanf(values[0], "%f", &seconds); err != nil {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

var _ moderation.DiscordAdapter = (*Session)(nil)
