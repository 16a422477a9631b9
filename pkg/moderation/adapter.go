package moderation

import (
	"context"
	"time"
)

// Embed is the minimal mod-log/response payload the coordinator builds;
// the adapter translates it into whatever wire format the gateway library
// expects. Kept deliberately narrow so the coordinator never imports a
// gateway-specific embed type (§9 "dynamic dispatch" note).
type Embed struct {
	Title       string
	Description string
	Fields      []EmbedField
	Color       int
	Timestamp   time.Time
}

// EmbedField is one name/value pair on an Embed.
type EmbedField struct {
	Name    string
	Value   string
	Inline  bool
}

// Member is the subset of guild-member state the coordinator needs to
// evaluate bot-capability and role-precedence checks (Phase 3) and to
// snapshot/restore jail roles (§4.I).
type Member struct {
	UserID      string
	RoleIDs     []string
	TopRolePos  int
}

// SentMessage is the adapter's handle to a message it posted, used to
// persist mod_log_message_id / audit_log_message_id.
type SentMessage struct {
	ChannelID string
	MessageID string
}

// DiscordAdapter is the seam between the moderation core and the gateway
// library (§6). The core never sees library-specific types or error
// values; every call returns either a concrete result or an *AdapterError
// drawn from the fixed sum type described in §9.
type DiscordAdapter interface {
	SendDM(ctx context.Context, userID, text string) error

	Ban(ctx context.Context, guildID, userID string, purgeDays int, reason string) error
	Unban(ctx context.Context, guildID, userID, reason string) error
	Kick(ctx context.Context, guildID, userID, reason string) error
	Timeout(ctx context.Context, guildID, userID string, until time.Time, reason string) error
	RemoveTimeout(ctx context.Context, guildID, userID, reason string) error

	AddRoles(ctx context.Context, guildID, userID string, roleIDs []string, reason string) error
	RemoveRoles(ctx context.Context, guildID, userID string, roleIDs []string, reason string) error

	SendMessage(ctx context.Context, channelID string, embed Embed) (*SentMessage, error)
	FetchMessage(ctx context.Context, channelID, messageID string) (*SentMessage, error)
	EditMessage(ctx context.Context, channelID, messageID string, embed Embed) error

	// GetMember returns the current member state for (guildID, userID), or
	// an AdapterError{Kind: NotFound} if the target has left the guild.
	GetMember(ctx context.Context, guildID, userID string) (*Member, error)

	// BotMember returns the bot's own member state in guildID, used for
	// Phase 3's role-position precedence check.
	BotMember(ctx context.Context, guildID string) (*Member, error)

	// HasPermission reports whether the bot's own member holds the named
	// Discord permission bit in guildID (ban_members, kick_members,
	// moderate_members, etc.).
	HasPermission(ctx context.Context, guildID, permission string) (bool, error)

	// ManageableRoles returns the subset of roleIDs the bot may assign or
	// remove for a member in guildID: assignable by the bot, not
	// @everyone, not the jail role, not bot-managed, not a
	// premium-subscriber role, not an integration role (§4.I).
	ManageableRoles(ctx context.Context, guildID string, roleIDs []string, jailRoleID string) ([]string, error)
}

// RequiredPermission maps a case type to the Discord permission bit the bot
// must hold to execute it (Phase 3).
func RequiredPermission(caseType string) string {
	switch caseType {
	case "BAN", "TEMPBAN", "UNBAN":
		return "ban_members"
	case "KICK":
		return "kick_members"
	case "TIMEOUT", "UNTIMEOUT":
		return "moderate_members"
	case "JAIL", "UNJAIL":
		return "manage_roles"
	default:
		return "moderate_members"
	}
}
