package moderation

import (
	"sort"
	"strings"
	"time"

	"github.com/duskward/wardencore/pkg/cache"
	"github.com/duskward/wardencore/pkg/storage"
)

// rankCacheTTL is shared by all three Permission Engine caches (§4.B).
const rankCacheTTL = 7200 * time.Second

// PermissionEngine resolves command permission for a (guild, user) pair per
// §4.B. It fronts the relational store with three TTL caches and never
// silently denies on infrastructure failure: store errors propagate
// unchanged so the coordinator can surface them to the moderator.
type PermissionEngine struct {
	store *storage.Store
	cache *cache.Backend
}

// NewPermissionEngine builds a Permission Engine over store, using backend
// for the rank/assignment/command caches.
func NewPermissionEngine(store *storage.Store, backend *cache.Backend) *PermissionEngine {
	return &PermissionEngine{store: store, cache: backend}
}

// InitializeGuild idempotently seeds the eight default ranks for guildID.
func (e *PermissionEngine) InitializeGuild(guildID string) error {
	if err := e.store.InitializeGuildRanks(guildID); err != nil {
		return err
	}
	e.invalidateRanks(guildID)
	return nil
}

// Check resolves permission for (guildID, userID) against commandName,
// given the user's current role ids (§4.B resolution algorithm).
func (e *PermissionEngine) Check(guildID, userID string, userRoleIDs []string, commandName string) (Decision, error) {
	pc, err := e.resolveCommand(guildID, commandName)
	if err != nil {
		return Decision{}, err
	}
	if pc == nil {
		return Decision{NotConfigured: true, CommandName: commandName}, nil
	}

	userRank, err := e.resolveUserRank(guildID, userRoleIDs)
	if err != nil {
		return Decision{}, err
	}

	return Decision{
		Allowed:      userRank >= pc.RequiredRank,
		RequiredRank: pc.RequiredRank,
		UserRank:     userRank,
		CommandName:  commandName,
	}, nil
}

// resolveCommand implements step 1: exact match, then right-to-left
// ancestor walk on the dotted/space-separated command path. The first hit
// wins; a more specific configured entry always beats a parent.
func (e *PermissionEngine) resolveCommand(guildID, commandName string) (*storage.PermissionCommand, error) {
	name := strings.ToLower(strings.TrimSpace(commandName))
	segments := strings.Fields(name)
	for i := len(segments); i >= 1; i-- {
		candidate := strings.Join(segments[:i], " ")
		pc, err := e.commandCached(guildID, candidate)
		if err != nil {
			return nil, err
		}
		if pc != nil {
			return pc, nil
		}
	}
	return nil, nil
}

func (e *PermissionEngine) commandCacheKey(guildID, name string) string {
	return "perm:cmd:" + guildID + ":" + name
}

// commandCached wraps the store lookup to distinguish "cached absent" from
// "cache miss": an absent result is cached as a sentinel rather than simply
// not being cached, so repeated misses on ancestor segments don't each hit
// the store.
func (e *PermissionEngine) commandCached(guildID, name string) (*storage.PermissionCommand, error) {
	key := e.commandCacheKey(guildID, name)
	if e.cache != nil {
		if v, ok := e.cache.Get(key); ok {
			if v == nil {
				return nil, nil
			}
			if pc, ok := v.(*storage.PermissionCommand); ok {
				return pc, nil
			}
		}
	}

	pc, err := e.store.GetPermissionCommand(guildID, name)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		e.cache.Set(key, pc, rankCacheTTL)
	}
	return pc, nil
}

// resolveUserRank implements step 2: intersect the user's roles with the
// guild's assignments, join with ranks, return the maximum rank (0 if none).
func (e *PermissionEngine) resolveUserRank(guildID string, userRoleIDs []string) (int, error) {
	sorted := append([]string(nil), userRoleIDs...)
	sort.Strings(sorted)
	key := "perm:userrank:" + guildID + ":" + strings.Join(sorted, ",")

	if e.cache != nil {
		if v, ok := e.cache.Get(key); ok {
			if rank, ok := v.(int); ok {
				return rank, nil
			}
		}
	}

	assignments, err := e.assignmentsCached(guildID)
	if err != nil {
		return 0, err
	}
	ranks, err := e.ranksCached(guildID)
	if err != nil {
		return 0, err
	}

	rankByID := make(map[int64]int, len(ranks))
	for _, r := range ranks {
		rankByID[r.ID] = r.Rank
	}

	roleSet := make(map[string]bool, len(sorted))
	for _, r := range sorted {
		roleSet[r] = true
	}

	best := 0
	for _, a := range assignments {
		if !roleSet[a.RoleID] {
			continue
		}
		if rank, ok := rankByID[a.PermissionRankID]; ok && rank > best {
			best = rank
		}
	}

	if e.cache != nil {
		e.cache.Set(key, best, rankCacheTTL)
	}
	return best, nil
}

func (e *PermissionEngine) ranksCached(guildID string) ([]*storage.PermissionRank, error) {
	key := "perm:ranks:" + guildID
	if e.cache != nil {
		if v, ok := e.cache.Get(key); ok {
			if r, ok := v.([]*storage.PermissionRank); ok {
				return r, nil
			}
		}
	}
	ranks, err := e.store.ListPermissionRanks(guildID)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		e.cache.Set(key, ranks, rankCacheTTL)
	}
	return ranks, nil
}

func (e *PermissionEngine) assignmentsCached(guildID string) ([]*storage.PermissionAssignment, error) {
	key := "perm:assignments:" + guildID
	if e.cache != nil {
		if v, ok := e.cache.Get(key); ok {
			if a, ok := v.([]*storage.PermissionAssignment); ok {
				return a, nil
			}
		}
	}
	assignments, err := e.store.ListPermissionAssignments(guildID)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		e.cache.Set(key, assignments, rankCacheTTL)
	}
	return assignments, nil
}

func (e *PermissionEngine) invalidateRanks(guildID string) {
	if e.cache == nil {
		return
	}
	_ = e.cache.Delete("perm:ranks:" + guildID)
	_ = e.cache.Delete("perm:assignments:" + guildID)
}

func (e *PermissionEngine) invalidateCommand(guildID, name string) {
	if e.cache == nil {
		return
	}
	segments := strings.Fields(strings.ToLower(name))
	for i := len(segments); i >= 1; i-- {
		_ = e.cache.Delete(e.commandCacheKey(guildID, strings.Join(segments[:i], " ")))
	}
}

// SetCommandPermission configures the required rank for commandName,
// rejecting restricted commands (§4.B invariant 4, §8.4).
func (e *PermissionEngine) SetCommandPermission(guildID, commandName string, requiredRank int, description string) error {
	if err := e.store.SetPermissionCommand(guildID, commandName, requiredRank, description); err != nil {
		return err
	}
	e.invalidateCommand(guildID, commandName)
	return nil
}

// AssignRoleToRank assigns roleID to permissionRankID, invalidating the
// rank and assignment caches (the write commits before invalidation,
// per §5's shared-resource ordering policy). Cached resolved user ranks are
// not purged; they expire after rankCacheTTL.
func (e *PermissionEngine) AssignRoleToRank(guildID string, permissionRankID int64, roleID string) error {
	if err := e.store.AssignRoleToRank(guildID, permissionRankID, roleID); err != nil {
		return err
	}
	e.invalidateRanks(guildID)
	return nil
}

// IsRestrictedCommand reports whether name is a hardwired bot-owner-only
// command (eval/e/jsk/jishaku) that must never go through this engine.
func IsRestrictedCommand(name string) bool {
	return storage.IsRestrictedCommand(name)
}
