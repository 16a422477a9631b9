// Package moderation registers the guild-administration slash command and
// dispatches each subcommand into the moderation core's seven-phase
// pipeline (ban/unban/kick/timeout/untimeout/warn/jail/unjail and the
// poll/snippet feature bans).
package moderation

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	logutil "github.com/duskward/wardencore/pkg/logging"
	"github.com/duskward/wardencore/pkg/moderation"
	"github.com/duskward/wardencore/pkg/storage"
)

const (
	maxAuditLogReasonLen = 512
	minSnowflakeLength   = 15
	maxSnowflakeLength   = 21
	timeoutMaxMinutes    = 28 * 24 * 60
)

var userMentionRe = regexp.MustCompile(`^<@!?(\d+)>$`)

// Handler wires Discord interactions into moderation.Coordinator.Execute.
type Handler struct {
	coord    *moderation.Coordinator
	adapter  moderation.DiscordAdapter
	store    *storage.Store
	jailRole func(guildID string) string
}

// NewHandler builds a command Handler bound to a running coordinator.
// jailRoleFor resolves the guild's configured jail role id, used by the
// jail/unjail subcommands (§4.I).
func NewHandler(coord *moderation.Coordinator, adapter moderation.DiscordAdapter, store *storage.Store, jailRoleFor func(guildID string) string) *Handler {
	return &Handler{coord: coord, adapter: adapter, store: store, jailRole: jailRoleFor}
}

// Definitions returns the application command payload to register with
// Discord (guild or global, at the caller's discretion).
func Definitions() []*discordgo.ApplicationCommand {
	userOpt := func(name, desc string) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionString, Name: name, Description: desc, Required: true}
	}
	reasonOpt := &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionString, Name: "reason", Description: "Reason for this action", Required: false}

	sub := func(name, desc string, opts ...*discordgo.ApplicationCommandOption) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type: discordgo.ApplicationCommandOptionSubCommand, Name: name, Description: desc, Options: opts,
		}
	}

	return []*discordgo.ApplicationCommand{
		{
			Name:        "mod",
			Description: "Moderation actions",
			Options: []*discordgo.ApplicationCommandOption{
				sub("ban", "Ban a member", userOpt("user", "Member to ban"), reasonOpt,
					&discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionInteger, Name: "purge_days", Description: "Days of messages to purge (0-7)"}),
				sub("tempban", "Temporarily ban a member", userOpt("user", "Member to ban"),
					&discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionInteger, Name: "minutes", Description: "Ban duration in minutes", Required: true},
					reasonOpt),
				sub("unban", "Lift a ban", userOpt("user", "User ID to unban"), reasonOpt),
				sub("kick", "Kick a member", userOpt("user", "Member to kick"), reasonOpt),
				sub("timeout", "Time out a member", userOpt("user", "Member to time out"),
					&discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionInteger, Name: "minutes", Description: "Timeout duration in minutes", Required: true},
					reasonOpt),
				sub("untimeout", "Remove a member's timeout", userOpt("user", "Member to restore"), reasonOpt),
				sub("warn", "Warn a member", userOpt("user", "Member to warn"), reasonOpt),
				sub("jail", "Jail a member", userOpt("user", "Member to jail"), reasonOpt),
				sub("unjail", "Release a member from jail", userOpt("user", "Member to release"), reasonOpt),
				sub("pollban", "Ban a member from creating polls", userOpt("user", "Member to restrict"), reasonOpt),
				sub("pollunban", "Lift a poll ban", userOpt("user", "Member to restore"), reasonOpt),
				sub("snippetban", "Ban a member from submitting snippets", userOpt("user", "Member to restrict"), reasonOpt),
				sub("snippetunban", "Lift a snippet ban", userOpt("user", "Member to restore"), reasonOpt),
			},
		},
	}
}

// HandleInteraction is the discordgo InteractionCreate handler for the
// "mod" command. It should be registered once per session.
func (h *Handler) HandleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	if data.Name != "mod" || len(data.Options) == 0 {
		return
	}
	sub := data.Options[0]
	opts := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(sub.Options))
	for _, o := range sub.Options {
		opts[o.Name] = o
	}

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	resp := h.dispatch(ctx, i, sub.Name, opts)
	h.reply(s, i, resp)
}

func (h *Handler) dispatch(ctx context.Context, i *discordgo.InteractionCreate, sub string, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) *moderation.Response {
	guildID := i.GuildID
	moderatorID := i.Member.User.ID
	moderatorRoles := i.Member.Roles
	adapter := h.adapter

	targetID, ok := normalizeUserID(stringOpt(opts, "user"))
	if !ok {
		return &moderation.Response{Err: moderation.NewError(moderation.KindInvariant, "invalid user", nil), Message: "Invalid user ID or mention."}
	}
	reason, _ := sanitizeReason(stringOpt(opts, "reason"))

	switch sub {
	case "ban":
		purge := intOpt(opts, "purge_days")
		req := moderation.BuildBanRequest(guildID, moderatorID, moderatorRoles, targetID, reason, purge, adapter)
		return h.coord.Execute(ctx, req)
	case "tempban":
		minutes := intOpt(opts, "minutes")
		req := moderation.BuildTempbanRequest(guildID, moderatorID, moderatorRoles, targetID, reason, 0, time.Now().Add(time.Duration(minutes)*time.Minute), adapter)
		return h.coord.Execute(ctx, req)
	case "unban":
		req := moderation.BuildUnbanRequest(guildID, moderatorID, moderatorRoles, targetID, reason, adapter)
		return h.coord.Execute(ctx, req)
	case "kick":
		req := moderation.BuildKickRequest(guildID, moderatorID, moderatorRoles, targetID, reason, adapter)
		return h.coord.Execute(ctx, req)
	case "timeout":
		minutes := intOpt(opts, "minutes")
		if minutes <= 0 || minutes > timeoutMaxMinutes {
			return &moderation.Response{Err: moderation.NewError(moderation.KindInvariant, "invalid duration", nil), Message: "Timeout duration must be between 1 and 40320 minutes (28 days)."}
		}
		req := moderation.BuildTimeoutRequest(guildID, moderatorID, moderatorRoles, targetID, reason, time.Duration(minutes)*time.Minute, adapter)
		return h.coord.Execute(ctx, req)
	case "untimeout":
		req := moderation.BuildUntimeoutRequest(guildID, moderatorID, moderatorRoles, targetID, reason, adapter)
		return h.coord.Execute(ctx, req)
	case "warn":
		req := moderation.BuildWarnRequest(guildID, moderatorID, moderatorRoles, targetID, reason)
		return h.coord.Execute(ctx, req)
	case "jail":
		jailRoleID := h.jailRole(guildID)
		if jailRoleID == "" {
			return &moderation.Response{Err: moderation.NewError(moderation.KindInvariant, "no jail role configured", nil), Message: "This guild has no jail role configured."}
		}
		req, err := moderation.BuildJailRequest(ctx, guildID, moderatorID, moderatorRoles, targetID, reason, jailRoleID, adapter)
		if err != nil {
			return &moderation.Response{Err: moderation.NewError(moderation.KindInfrastructure, "could not prepare jail", err), Message: "Could not prepare the jail action."}
		}
		return h.coord.Execute(ctx, req)
	case "unjail":
		jailRoleID := h.jailRole(guildID)
		req, matched, err := moderation.BuildUnjailRequest(ctx, h.store, guildID, moderatorID, moderatorRoles, targetID, reason, jailRoleID, adapter)
		if err != nil {
			return &moderation.Response{Err: moderation.NewError(moderation.KindInfrastructure, "could not prepare unjail", err), Message: "Could not prepare the unjail action."}
		}
		if !matched {
			return &moderation.Response{Err: moderation.NewError(moderation.KindTargetState, "not jailed", nil), Message: "This member's latest case is not a jail."}
		}
		return h.coord.Execute(ctx, req)
	case "pollban":
		return h.coord.Execute(ctx, moderation.BuildPollbanRequest(guildID, moderatorID, moderatorRoles, targetID, reason))
	case "pollunban":
		return h.coord.Execute(ctx, moderation.BuildPollunbanRequest(guildID, moderatorID, moderatorRoles, targetID, reason))
	case "snippetban":
		return h.coord.Execute(ctx, moderation.BuildSnippetbanRequest(guildID, moderatorID, moderatorRoles, targetID, reason))
	case "snippetunban":
		return h.coord.Execute(ctx, moderation.BuildSnippetunbanRequest(guildID, moderatorID, moderatorRoles, targetID, reason))
	default:
		return &moderation.Response{Err: moderation.NewError(moderation.KindInvariant, "unknown subcommand", nil), Message: "Unknown moderation subcommand."}
	}
}

func (h *Handler) reply(s *discordgo.Session, i *discordgo.InteractionCreate, resp *moderation.Response) {
	content := resp.Message
	if content == "" {
		if resp.Success {
			content = fmt.Sprintf("Done. Case #%d.", resp.CaseNumber)
		} else {
			content = "The action failed."
		}
	}
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	}); err != nil {
		logutil.GlobalLogger.WithError(err).Warn("failed to deliver moderation command response")
	}
}

func stringOpt(opts map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	if o, ok := opts[name]; ok {
		return o.StringValue()
	}
	return ""
}

func intOpt(opts map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) int {
	if o, ok := opts[name]; ok {
		return int(o.IntValue())
	}
	return 0
}

func sanitizeReason(input string) (string, bool) {
	reason := strings.TrimSpace(input)
	if reason == "" {
		return "No reason provided", false
	}
	reason = strings.ReplaceAll(reason, "\r", " ")
	reason = strings.ReplaceAll(reason, "\n", " ")
	reason = strings.TrimSpace(reason)
	if len(reason) <= maxAuditLogReasonLen {
		return reason, false
	}
	return reason[:maxAuditLogReasonLen], true
}

func normalizeUserID(input string) (string, bool) {
	clean := strings.TrimSpace(input)
	if clean == "" {
		return "", false
	}
	if match := userMentionRe.FindStringSubmatch(clean); len(match) == 2 {
		return match[1], true
	}
	if !isLikelySnowflake(clean) {
		return "", false
	}
	return clean, true
}

func isLikelySnowflake(value string) bool {
	if len(value) < minSnowflakeLength || len(value) > maxSnowflakeLength {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
