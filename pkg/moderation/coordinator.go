package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	logutil "github.com/duskward/wardencore/pkg/logging"
	"github.com/duskward/wardencore/pkg/storage"
	"github.com/duskward/wardencore/pkg/theme"
)

// PlannedAction is one Discord API call the coordinator submits through the
// Retrier in Phase 5, paired with a label used for logging and error
// annotation (§4.G Phase 5's "(action-fn, expected-type)" pairs).
type PlannedAction struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Request carries everything the seven-phase pipeline needs for one
// moderation attempt (§4.G).
type Request struct {
	GuildID          string
	CommandName      string
	ModeratorID      string
	ModeratorRoleIDs []string
	TargetID         string

	CaseType storage.CaseType
	Reason   string

	Silent   bool
	DMAction string // defaults to strings.ToLower(string(CaseType)) if empty

	Actions []PlannedAction

	Duration  time.Duration // informational, surfaced in the response embed
	ExpiresAt *time.Time

	// UserRoles, when set, is persisted verbatim as the case's role
	// snapshot (used by JAIL; populated by BuildJailRequest).
	UserRoles []string
}

// Response is the moderator-facing outcome of Execute (§4.G Phase 7).
type Response struct {
	Success     bool
	CaseNumber  int64
	CaseID      int64
	Message     string
	Err         *ModerationError
	DMSent      bool
	PersistFail bool
}

// Coordinator is the Moderation Coordinator (§4.G): it binds the Permission
// Engine, Lock Manager, Retrier, Timeout Harness, Case Store, Audit
// Monitor, and Discord adapter into the seven-phase pipeline.
type Coordinator struct {
	store      *storage.Store
	perm       *PermissionEngine
	locks      *LockManager
	retrier    *Retrier
	timeouts   *TimeoutHarness
	monitor    *Monitor
	adapter    DiscordAdapter
	jailStatus *JailStatusCache
	logger     *logutil.Logger
}

// NewCoordinator wires the seven-phase pipeline's collaborators.
func NewCoordinator(store *storage.Store, perm *PermissionEngine, locks *LockManager, retrier *Retrier, timeouts *TimeoutHarness, monitor *Monitor, adapter DiscordAdapter, jailStatus *JailStatusCache) *Coordinator {
	return &Coordinator{
		store:      store,
		perm:       perm,
		locks:      locks,
		retrier:    retrier,
		timeouts:   timeouts,
		monitor:    monitor,
		adapter:    adapter,
		jailStatus: jailStatus,
		logger:     logutil.WithField("component", "moderation_coordinator"),
	}
}

// Execute drives req through all seven phases and always returns a
// Response; it has no separate error return, and moderation-domain
// failures are surfaced via Response.Err.
func (c *Coordinator) Execute(ctx context.Context, req Request) *Response {
	start := time.Now()
	class := ClassForCaseType(req.CaseType)
	dmAction := req.DMAction
	if dmAction == "" {
		dmAction = strings.ToLower(string(req.CaseType))
	}

	ev := AuditEvent{
		Timestamp:     start,
		OperationType: class,
		GuildID:       req.GuildID,
		UserID:        req.TargetID,
		ModeratorID:   req.ModeratorID,
		CaseType:      string(req.CaseType),
	}
	flush := func(resp *Response) *Response {
		ev.ResponseTime = time.Since(start)
		ev.Success = resp.Success
		ev.DMSent = resp.DMSent
		ev.CaseCreated = resp.CaseNumber > 0 && !resp.PersistFail
		ev.CaseNumber = resp.CaseNumber
		if resp.Err != nil {
			ev.ErrorMessage = resp.Err.Error()
		}
		c.monitor.Record(ev)
		return resp
	}

	// Phase 2 - Authorization.
	decision, err := c.perm.Check(req.GuildID, req.ModeratorID, req.ModeratorRoleIDs, req.CommandName)
	if err != nil {
		return flush(&Response{Err: NewError(KindInfrastructure, "permission lookup failed", err),
			Message: "Could not verify your permissions right now; the action was not attempted."})
	}
	if !decision.NotConfigured && !decision.Allowed {
		return flush(&Response{
			Err: NewError(KindAuthorization, "Authorization failed", nil),
			Message: fmt.Sprintf("You need rank %d to run this command (you have rank %d).",
				decision.RequiredRank, decision.UserRank),
		})
	}

	// Phase 3 - Bot capability.
	if resp := c.checkBotCapability(ctx, req); resp != nil {
		return flush(resp)
	}

	// Phase 4 - Preparation: acquire the per-user lock, pre-action DM for
	// removal actions.
	if c.locks.Waiting(req.GuildID, req.TargetID) {
		c.monitor.RecordLockContention()
	}
	handle := c.locks.Acquire(req.GuildID, req.TargetID)
	defer handle.Release()

	if err := ctx.Err(); err != nil {
		return flush(&Response{Err: NewError(KindCancelled, "cancelled", err), Message: "Action cancelled."})
	}

	dmSent := false
	removal := storage.RemovalActions[req.CaseType]
	if removal && !req.Silent {
		dmSent = c.attemptDM(ctx, class, req.TargetID, dmAction, req.Reason)
	}

	// Phase 5 - Action execution.
	if failResp := c.executeActions(ctx, req, class); failResp != nil {
		failResp.DMSent = dmSent
		return flush(failResp)
	}

	// Phase 6 - Post-action DM (non-removal).
	if !removal && !req.Silent {
		dmSent = c.attemptDM(ctx, class, req.TargetID, dmAction, req.Reason)
	}

	// Phase 7 - Persistence and audit surface.
	return flush(c.persistAndRespond(ctx, req, class, dmSent, start))
}

// checkBotCapability implements Phase 3: confirm the bot holds the Discord
// permission required by req.CaseType and that its top role outranks the
// target's.
func (c *Coordinator) checkBotCapability(ctx context.Context, req Request) *Response {
	perm := RequiredPermission(string(req.CaseType))
	ok, err := c.adapter.HasPermission(ctx, req.GuildID, perm)
	if err != nil {
		return &Response{Err: NewError(KindInfrastructure, "could not verify bot permissions", err),
			Message: "Could not verify my own permissions; the action was not attempted."}
	}
	if !ok {
		return &Response{Err: NewError(KindBotCapability, "missing permission: "+perm, nil),
			Message: fmt.Sprintf("I am missing the `%s` permission required for this action.", perm)}
	}

	bot, err := c.adapter.BotMember(ctx, req.GuildID)
	if err != nil {
		return &Response{Err: NewError(KindInfrastructure, "could not load bot member", err),
			Message: "Could not verify my role position; the action was not attempted."}
	}
	target, err := c.adapter.GetMember(ctx, req.GuildID, req.TargetID)
	if err != nil {
		if ae, ok := err.(*AdapterError); ok && ae.Kind == AdapterNotFound {
			// Target already absent; let Phase 5 void the case with the
			// correct "target not found" annotation rather than failing here.
			return nil
		}
		return &Response{Err: NewError(KindInfrastructure, "could not load target member", err),
			Message: "Could not look up the target; the action was not attempted."}
	}
	if bot.TopRolePos <= target.TopRolePos {
		return &Response{Err: NewError(KindBotCapability, "role position", nil),
			Message: "My highest role is not above the target's highest role."}
	}
	return nil
}

// attemptDM sends the pre/post-action DM under the class's DM budget. A
// deadline exceeded or any adapter failure degrades gracefully to
// dm_sent=false; it never aborts the pipeline (§4.F, §8.9).
func (c *Coordinator) attemptDM(ctx context.Context, class OperationClass, userID, action, reason string) bool {
	dmCtx, cancel := c.timeouts.WithDM(ctx, class)
	defer cancel()

	text := fmt.Sprintf("You have been %s. Reason: %s", action, reason)
	err := c.adapter.SendDM(dmCtx, userID, text)
	return err == nil
}

// executeActions implements Phase 5: submit each planned action through the
// Retrier under the class's operation_total/api_budget, classifying any
// hard failure into a voided case per the table in §4.G.
func (c *Coordinator) executeActions(ctx context.Context, req Request, class OperationClass) *Response {
	for _, action := range req.Actions {
		err := c.runActionUnderBudget(ctx, class, action)
		if err == nil {
			continue
		}

		return c.voidForActionFailure(req, action.Name, err)
	}
	return nil
}

// runActionUnderBudget bounds one action's full retry sequence by the
// class's operation_total, deriving a per-attempt api_budget context inside
// the Retrier's callback. If operation_total elapses and the class allows
// extensions (§4.F), the budget is extended up to max_extend_attempts
// times before the action is treated as a hard failure.
func (c *Coordinator) runActionUnderBudget(ctx context.Context, class OperationClass, action PlannedAction) error {
	budget := c.timeouts.Profile(class).OperationTotal
	extendsUsed := 0
	for {
		opCtx, cancel := context.WithTimeout(ctx, budget)
		err := c.retrier.Do(opCtx, class, func(actionCtx context.Context, attempt int) error {
			apiCtx, apiCancel := c.timeouts.WithAPI(actionCtx, class)
			defer apiCancel()
			return action.Fn(apiCtx)
		})
		cancel()

		if err == nil || !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		next, ok := c.timeouts.Extend(class, extendsUsed)
		if !ok {
			return err
		}
		extendsUsed++
		budget = next
	}
}

// voidForActionFailure persists a voided case for a Phase 5 hard failure and
// returns the matching user-facing message (§4.G Phase 5 table, §7).
func (c *Coordinator) voidForActionFailure(req Request, actionName string, err error) *Response {
	var annotation, userMsg string
	var kind ErrorKind

	switch e := err.(type) {
	case *AdapterError:
		switch e.Kind {
		case AdapterForbidden:
			kind = KindBotCapability
			annotation = "[Discord action failed: missing permissions]"
			userMsg = "Discord rejected the action: missing permissions."
		case AdapterNotFound:
			kind = KindTargetState
			annotation = "[Discord action failed: target not found]"
			userMsg = "The target left the server or could not be found."
		case AdapterHTTPError:
			kind = KindTransient
			annotation = fmt.Sprintf("[Discord action failed: http %d]", e.Status)
			userMsg = fmt.Sprintf("Discord returned an error (status %d).", e.Status)
		case AdapterTimedOut:
			kind = KindTransient
			annotation = "[Discord action failed: timed out]"
			userMsg = "The action timed out after retrying; please try again."
		default:
			kind = KindInfrastructure
			annotation = "[Discord action failed: unknown error]"
			userMsg = "An unexpected error occurred while performing the action."
		}
	case *ModerationError:
		switch e.Kind {
		case KindCircuitOpen:
			kind = KindCircuitOpen
			annotation = "[Discord action failed: circuit open]"
			userMsg = "This action is temporarily disabled after repeated failures; try again shortly."
		case KindCancelled:
			kind = KindCancelled
			annotation = "[Discord action failed: cancelled]"
			userMsg = "The action was cancelled."
		default:
			kind = KindTransient
			annotation = "[Discord action failed: retries exhausted]"
			userMsg = "The action failed after retrying; please try again."
		}
	default:
		kind = KindInfrastructure
		annotation = "[Discord action failed: unknown error]"
		userMsg = "An unexpected error occurred while performing the action."
	}

	reason := strings.TrimSpace(annotation + " " + req.Reason)
	voided, caseErr := c.store.CreateVoidedCase(req.GuildID, req.TargetID, req.ModeratorID, req.CaseType, reason)

	resp := &Response{
		Err:     NewError(kind, annotation+" on action "+actionName, err),
		Message: userMsg,
	}
	if caseErr == nil && voided != nil {
		resp.CaseNumber = voided.CaseNumber
		resp.CaseID = voided.CaseID
	}
	return resp
}

// persistAndRespond implements Phase 7: create the case, post the mod-log
// embed, update the case with the mod-log message id, and build the
// moderator-facing response. A Phase 7 database failure never retracts the
// Phase 5 success already visible to the target (§7, §8.3/E2E-3).
func (c *Coordinator) persistAndRespond(ctx context.Context, req Request, class OperationClass, dmSent bool, start time.Time) *Response {
	dbCtx, cancel := c.timeouts.WithDatabase(ctx, class)
	defer cancel()

	type caseResult struct {
		created *storage.Case
		err     error
	}
	caseDone := make(chan caseResult, 1)
	go func() {
		created, err := c.store.CreateCase(req.GuildID, req.TargetID, req.ModeratorID, req.CaseType, req.Reason, req.ExpiresAt, req.UserRoles)
		caseDone <- caseResult{created, err}
	}()

	var created *storage.Case
	var err error
	select {
	case r := <-caseDone:
		created, err = r.created, r.err
	case <-dbCtx.Done():
		err = dbCtx.Err()
	}

	if err != nil {
		c.logger.WithField("guild_id", req.GuildID).WithField("user_id", req.TargetID).
			WithField("case_type", string(req.CaseType)).WithError(err).
			Error("case persistence failed after Discord action succeeded")
		return &Response{
			Success:     true,
			DMSent:      dmSent,
			PersistFail: true,
			Err:         NewError(KindInfrastructure, "persistence unavailable", err),
			Message:     "Action completed, but the case could not be saved. Please record it manually if needed.",
		}
	}

	if req.CaseType == storage.CaseJail || req.CaseType == storage.CaseUnjail {
		c.jailStatus.Refresh(req.GuildID, req.TargetID, req.CaseType == storage.CaseJail)
	}

	resp := &Response{
		Success:    true,
		CaseNumber: created.CaseNumber,
		CaseID:     created.CaseID,
		DMSent:     dmSent,
		Message:    c.buildResponseMessage(req, created.CaseNumber),
	}

	cfg, err := c.store.GetGuildConfig(req.GuildID)
	if err != nil || cfg.ModLogChannelID == "" {
		return resp
	}

	embed := c.buildModLogEmbed(req, created)
	msg, err := c.adapter.SendMessage(ctx, cfg.ModLogChannelID, embed)
	if err != nil {
		c.logger.WithField("guild_id", req.GuildID).WithError(err).Warn("mod-log send failed; case persisted without mod_log_message_id")
		return resp
	}
	if err := c.store.UpdateModLogMessageID(created.CaseID, msg.MessageID); err != nil {
		c.logger.WithField("guild_id", req.GuildID).WithError(err).Warn("failed to record mod_log_message_id")
	}
	return resp
}

func (c *Coordinator) buildResponseMessage(req Request, caseNumber int64) string {
	msg := fmt.Sprintf("Case #%d: %s applied to <@%s>.", caseNumber, req.CaseType, req.TargetID)
	if req.Reason != "" {
		msg += " Reason: " + req.Reason
	}
	if req.Duration > 0 {
		msg += fmt.Sprintf(" Duration: %s.", req.Duration)
	}
	return msg
}

func (c *Coordinator) buildModLogEmbed(req Request, created *storage.Case) Embed {
	fields := []EmbedField{
		{Name: "Target", Value: fmt.Sprintf("<@%s> (%s)", req.TargetID, req.TargetID)},
		{Name: "Moderator", Value: fmt.Sprintf("<@%s> (%s)", req.ModeratorID, req.ModeratorID)},
		{Name: "Reason", Value: orDefault(req.Reason, "No reason provided")},
	}
	if req.Duration > 0 {
		fields = append(fields, EmbedField{Name: "Duration", Value: req.Duration.String()})
	}
	return Embed{
		Title:       fmt.Sprintf("Case #%d — %s", created.CaseNumber, req.CaseType),
		Description: fmt.Sprintf("A %s action was recorded.", req.CaseType),
		Fields:      fields,
		Color:       colorForCaseType(req.CaseType),
		Timestamp:   created.CreatedAt,
	}
}

// colorForCaseType picks the mod-log embed accent color for a case type,
// using the restorative/punitive/neutral grouping the theme registry exposes.
func colorForCaseType(t storage.CaseType) theme.Color {
	th := theme.Current()
	switch t {
	case storage.CaseUnban, storage.CaseUntimeout, storage.CaseUnjail, storage.CasePollunban, storage.CaseSnippetUnb:
		return th.Success
	case storage.CaseWarn:
		return th.Warning
	case storage.CaseBan, storage.CaseTempban, storage.CaseKick, storage.CaseJail:
		return th.Danger
	default:
		return th.Muted
	}
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
