package moderation

import (
	"context"
	"time"

	"github.com/duskward/wardencore/pkg/storage"
)

// BuildBanRequest assembles the action list for a permanent ban.
func BuildBanRequest(guildID, moderatorID string, moderatorRoles []string, targetID, reason string, purgeDays int, adapter DiscordAdapter) Request {
	return Request{
		GuildID: guildID, CommandName: "ban", ModeratorID: moderatorID, ModeratorRoleIDs: moderatorRoles,
		TargetID: targetID, CaseType: storage.CaseBan, Reason: reason,
		Actions: []PlannedAction{{
			Name: "ban",
			Fn: func(ctx context.Context) error {
				return adapter.Ban(ctx, guildID, targetID, purgeDays, reason)
			},
		}},
	}
}

// BuildTempbanRequest assembles the action list for a time-bounded ban;
// expiry enforcement (the eventual unban) is external to the core.
func BuildTempbanRequest(guildID, moderatorID string, moderatorRoles []string, targetID, reason string, purgeDays int, expiresAt time.Time, adapter DiscordAdapter) Request {
	req := BuildBanRequest(guildID, moderatorID, moderatorRoles, targetID, reason, purgeDays, adapter)
	req.CaseType = storage.CaseTempban
	req.ExpiresAt = &expiresAt
	req.Duration = time.Until(expiresAt)
	return req
}

// BuildUnbanRequest assembles the action list for lifting a ban. Unban is
// not a REMOVAL_ACTIONS member, so there is no pre-action DM; the request
// is marked Silent (the target is, by definition, not in the guild to DM),
// which skips the post-action DM as well.
func BuildUnbanRequest(guildID, moderatorID string, moderatorRoles []string, targetID, reason string, adapter DiscordAdapter) Request {
	return Request{
		GuildID: guildID, CommandName: "unban", ModeratorID: moderatorID, ModeratorRoleIDs: moderatorRoles,
		TargetID: targetID, CaseType: storage.CaseUnban, Reason: reason, Silent: true,
		Actions: []PlannedAction{{
			Name: "unban",
			Fn: func(ctx context.Context) error {
				return adapter.Unban(ctx, guildID, targetID, reason)
			},
		}},
	}
}

// BuildKickRequest assembles the action list for a kick.
func BuildKickRequest(guildID, moderatorID string, moderatorRoles []string, targetID, reason string, adapter DiscordAdapter) Request {
	return Request{
		GuildID: guildID, CommandName: "kick", ModeratorID: moderatorID, ModeratorRoleIDs: moderatorRoles,
		TargetID: targetID, CaseType: storage.CaseKick, Reason: reason,
		Actions: []PlannedAction{{
			Name: "kick",
			Fn: func(ctx context.Context) error {
				return adapter.Kick(ctx, guildID, targetID, reason)
			},
		}},
	}
}

// BuildTimeoutRequest assembles the action list for a timed mute.
func BuildTimeoutRequest(guildID, moderatorID string, moderatorRoles []string, targetID, reason string, duration time.Duration, adapter DiscordAdapter) Request {
	until := time.Now().Add(duration)
	return Request{
		GuildID: guildID, CommandName: "timeout", ModeratorID: moderatorID, ModeratorRoleIDs: moderatorRoles,
		TargetID: targetID, CaseType: storage.CaseTimeout, Reason: reason, Duration: duration,
		ExpiresAt: &until,
		Actions: []PlannedAction{{
			Name: "timeout",
			Fn: func(ctx context.Context) error {
				return adapter.Timeout(ctx, guildID, targetID, until, reason)
			},
		}},
	}
}

// BuildUntimeoutRequest assembles the action list for clearing a timeout.
func BuildUntimeoutRequest(guildID, moderatorID string, moderatorRoles []string, targetID, reason string, adapter DiscordAdapter) Request {
	return Request{
		GuildID: guildID, CommandName: "untimeout", ModeratorID: moderatorID, ModeratorRoleIDs: moderatorRoles,
		TargetID: targetID, CaseType: storage.CaseUntimeout, Reason: reason,
		Actions: []PlannedAction{{
			Name: "untimeout",
			Fn: func(ctx context.Context) error {
				return adapter.RemoveTimeout(ctx, guildID, targetID, reason)
			},
		}},
	}
}

// BuildWarnRequest assembles a WARN case, which performs no Discord action
// beyond the DM/persistence the pipeline already handles.
func BuildWarnRequest(guildID, moderatorID string, moderatorRoles []string, targetID, reason string) Request {
	return Request{
		GuildID: guildID, CommandName: "warn", ModeratorID: moderatorID, ModeratorRoleIDs: moderatorRoles,
		TargetID: targetID, CaseType: storage.CaseWarn, Reason: reason,
	}
}

// BuildPollbanRequest and BuildSnippetbanRequest/their inverses record
// guild-scoped feature bans that carry no Discord-side action of their own;
// the bot's own command handlers consult the latest case before allowing
// poll creation or snippet submission.
func BuildPollbanRequest(guildID, moderatorID string, moderatorRoles []string, targetID, reason string) Request {
	return Request{GuildID: guildID, CommandName: "pollban", ModeratorID: moderatorID, ModeratorRoleIDs: moderatorRoles,
		TargetID: targetID, CaseType: storage.CasePollban, Reason: reason, Silent: true}
}

func BuildPollunbanRequest(guildID, moderatorID string, moderatorRoles []string, targetID, reason string) Request {
	return Request{GuildID: guildID, CommandName: "pollunban", ModeratorID: moderatorID, ModeratorRoleIDs: moderatorRoles,
		TargetID: targetID, CaseType: storage.CasePollunban, Reason: reason, Silent: true}
}

func BuildSnippetbanRequest(guildID, moderatorID string, moderatorRoles []string, targetID, reason string) Request {
	return Request{GuildID: guildID, CommandName: "snippetban", ModeratorID: moderatorID, ModeratorRoleIDs: moderatorRoles,
		TargetID: targetID, CaseType: storage.CaseSnippetban, Reason: reason, Silent: true}
}

func BuildSnippetunbanRequest(guildID, moderatorID string, moderatorRoles []string, targetID, reason string) Request {
	return Request{GuildID: guildID, CommandName: "snippetunban", ModeratorID: moderatorID, ModeratorRoleIDs: moderatorRoles,
		TargetID: targetID, CaseType: storage.CaseSnippetUnb, Reason: reason, Silent: true}
}

// BuildJailRequest assembles the jail action list (§4.I): snapshot every
// manageable role the target currently holds, add the configured jail
// role, then remove the snapshotted roles. The snapshot is attached to the
// Request so Phase 7 persists it as the case's role-restore point.
func BuildJailRequest(ctx context.Context, guildID, moderatorID string, moderatorRoles []string, targetID, reason, jailRoleID string, adapter DiscordAdapter) (Request, error) {
	member, err := adapter.GetMember(ctx, guildID, targetID)
	if err != nil {
		return Request{}, err
	}
	manageable, err := manageableSnapshot(ctx, adapter, guildID, member, jailRoleID)
	if err != nil {
		return Request{}, err
	}

	return Request{
		GuildID: guildID, CommandName: "jail", ModeratorID: moderatorID, ModeratorRoleIDs: moderatorRoles,
		TargetID: targetID, CaseType: storage.CaseJail, Reason: reason, UserRoles: manageable,
		Actions: []PlannedAction{
			{
				Name: "add_jail_role",
				Fn: func(ctx context.Context) error {
					return adapter.AddRoles(ctx, guildID, targetID, []string{jailRoleID}, reason)
				},
			},
			{
				Name: "remove_manageable_roles",
				Fn: func(ctx context.Context) error {
					if len(manageable) == 0 {
						return nil
					}
					return adapter.RemoveRoles(ctx, guildID, targetID, manageable, reason)
				},
			},
		},
	}, nil
}

// BuildUnjailRequest reads the latest case for (guildID, targetID); if it
// is a JAIL, its role snapshot (intersected with roles still present and
// still manageable) is restored and the jail role is removed (§4.I, §8.7).
// If the latest case is not a JAIL, ok is false and no action is taken.
func BuildUnjailRequest(ctx context.Context, store *storage.Store, guildID, moderatorID string, moderatorRoles []string, targetID, reason, jailRoleID string, adapter DiscordAdapter) (req Request, ok bool, err error) {
	latest, err := store.GetLatestCaseByUser(guildID, targetID)
	if err != nil {
		return Request{}, false, err
	}
	if latest == nil || latest.CaseType != storage.CaseJail {
		return Request{}, false, nil
	}

	restorable, err := rolesStillPresent(ctx, adapter, guildID, latest.UserRoles, jailRoleID)
	if err != nil {
		return Request{}, false, err
	}

	req = Request{
		GuildID: guildID, CommandName: "unjail", ModeratorID: moderatorID, ModeratorRoleIDs: moderatorRoles,
		TargetID: targetID, CaseType: storage.CaseUnjail, Reason: reason,
		Actions: []PlannedAction{
			{
				Name: "remove_jail_role",
				Fn: func(ctx context.Context) error {
					return adapter.RemoveRoles(ctx, guildID, targetID, []string{jailRoleID}, reason)
				},
			},
			{
				Name: "restore_roles",
				Fn: func(ctx context.Context) error {
					if len(restorable) == 0 {
						return nil
					}
					return adapter.AddRoles(ctx, guildID, targetID, restorable, reason)
				},
			},
		},
	}
	return req, true, nil
}
