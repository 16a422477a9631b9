package moderation

import (
	"context"
	"fmt"
	"time"

	logutil "github.com/duskward/wardencore/pkg/logging"
	"github.com/duskward/wardencore/pkg/storage"
)

// systemCommandName is never configured in the permission_commands table, so
// PermissionEngine.Check always reports NotConfigured and the coordinator's
// Phase 2 authorization check passes the sweep through unchallenged.
const systemCommandName = "system.expiry_sweep"

// SystemModeratorID marks cases created by the expiry sweep rather than a
// human moderator, distinguishing automatic unbans/untimeouts in the mod log.
const SystemModeratorID = "system"

// ExpirySweeper finds TEMPBAN and TIMEOUT cases past their expiry and lifts
// them through the ordinary coordinator pipeline, so the reversal gets the
// same case record, mod-log post, and audit event as a manual action.
type ExpirySweeper struct {
	store *storage.Store
	coord *Coordinator
}

// NewExpirySweeper builds a sweeper over store, driving reversals through coord.
func NewExpirySweeper(store *storage.Store, coord *Coordinator) *ExpirySweeper {
	return &ExpirySweeper{store: store, coord: coord}
}

// Sweep lifts every active case expired at or before now and returns the
// number it attempted; a failure on one case does not stop the others.
func (s *ExpirySweeper) Sweep(ctx context.Context, now time.Time) (int, error) {
	expired, err := s.store.ListExpiredActiveCases(now)
	if err != nil {
		return 0, fmt.Errorf("list expired cases: %w", err)
	}

	for _, c := range expired {
		req, ok := s.reversalRequest(c)
		if !ok {
			continue
		}
		resp := s.coord.Execute(ctx, req)
		if resp.Err != nil {
			logutil.GlobalLogger.WithError(resp.Err).Warn(fmt.Sprintf("expiry sweep failed to reverse case #%d in guild %s", c.CaseNumber, c.GuildID))
		}
	}
	return len(expired), nil
}

func (s *ExpirySweeper) reversalRequest(c *storage.Case) (Request, bool) {
	reason := fmt.Sprintf("automatic expiry of case #%d", c.CaseNumber)
	switch c.CaseType {
	case storage.CaseTempban:
		req := BuildUnbanRequest(c.GuildID, SystemModeratorID, nil, c.UserID, reason, s.coord.adapter)
		req.CommandName = systemCommandName
		return req, true
	case storage.CaseTimeout:
		req := BuildUntimeoutRequest(c.GuildID, SystemModeratorID, nil, c.UserID, reason, s.coord.adapter)
		req.CommandName = systemCommandName
		return req, true
	default:
		return Request{}, false
	}
}
