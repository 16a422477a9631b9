package moderation

import (
	"context"
	"time"

	"github.com/duskward/wardencore/pkg/cache"
	"github.com/duskward/wardencore/pkg/storage"
)

// jailStatusTTL bounds how long a rejoin lookup trusts a cached "was this
// user's latest case a JAIL" answer before re-reading the store (§4.I).
const jailStatusTTL = 300 * time.Second

// JailStatusCache fronts the "is the latest case for (guild,user) a JAIL"
// lookup used by the member-join rejoin handler, avoiding a DB read on
// every join event.
type JailStatusCache struct {
	cache *cache.Backend
	store *storage.Store
}

// NewJailStatusCache builds a cache over store, using backend for storage.
func NewJailStatusCache(store *storage.Store, backend *cache.Backend) *JailStatusCache {
	return &JailStatusCache{store: store, cache: backend}
}

func (j *JailStatusCache) key(guildID, userID string) string {
	return "jail:status:" + guildID + ":" + userID
}

// IsJailed reports whether the latest case for (guildID, userID) is a JAIL
// (as opposed to UNJAIL or any other type), consulting the cache first.
func (j *JailStatusCache) IsJailed(guildID, userID string) (bool, error) {
	key := j.key(guildID, userID)
	if j.cache != nil {
		if v, ok := j.cache.Get(key); ok {
			if jailed, ok := v.(bool); ok {
				return jailed, nil
			}
		}
	}

	latest, err := j.store.GetLatestCaseByUser(guildID, userID)
	if err != nil {
		return false, err
	}
	jailed := latest != nil && latest.CaseType == storage.CaseJail

	if j.cache != nil {
		j.cache.Set(key, jailed, jailStatusTTL)
	}
	return jailed, nil
}

// Refresh forces the cache entry for (guildID, userID) to the given value,
// called after a JAIL or UNJAIL case is created so a subsequent rejoin
// within the TTL window sees the fresh status immediately.
func (j *JailStatusCache) Refresh(guildID, userID string, jailed bool) {
	if j.cache == nil {
		return
	}
	j.cache.Set(j.key(guildID, userID), jailed, jailStatusTTL)
}

// manageableSnapshot computes the role snapshot to persist at jail time:
// the subset of the target's current roles the bot can manage (§4.I).
func manageableSnapshot(ctx context.Context, adapter DiscordAdapter, guildID string, member *Member, jailRoleID string) ([]string, error) {
	return adapter.ManageableRoles(ctx, guildID, member.RoleIDs, jailRoleID)
}

// rolesStillPresent intersects saved (a role snapshot captured at jail
// time) with current (the guild's present role ids, derived from a fresh
// ManageableRoles call against the full saved set) so UNJAIL never tries
// to re-add a role that was deleted from the guild in the
// meantime (§4.I, §8.7).
func rolesStillPresent(ctx context.Context, adapter DiscordAdapter, guildID string, saved []string, jailRoleID string) ([]string, error) {
	if len(saved) == 0 {
		return nil, nil
	}
	return adapter.ManageableRoles(ctx, guildID, saved, jailRoleID)
}

// HandleMemberJoin implements the rejoin cross-cutting concern (§4.I,
// §8.8): if the latest case for (guildID, userID) is a JAIL, the jail role
// is re-applied immediately with a fixed reason; if it is anything else
// (including UNJAIL), nothing happens. No new case is created.
func (c *Coordinator) HandleMemberJoin(ctx context.Context, guildID, userID string) error {
	jailed, err := c.jailStatus.IsJailed(guildID, userID)
	if err != nil {
		return err
	}
	if !jailed {
		return nil
	}

	cfg, err := c.store.GetGuildConfig(guildID)
	if err != nil {
		return err
	}
	if cfg.JailRoleID == "" {
		return nil
	}

	return c.adapter.AddRoles(ctx, guildID, userID, []string{cfg.JailRoleID}, "Re-jail on rejoin (was jailed before leaving)")
}
