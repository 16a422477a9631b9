package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// CaseType enumerates the kinds of moderation action a Case can record.
type CaseType string

const (
	CaseBan         CaseType = "BAN"
	CaseTempban     CaseType = "TEMPBAN"
	CaseUnban       CaseType = "UNBAN"
	CaseKick        CaseType = "KICK"
	CaseTimeout     CaseType = "TIMEOUT"
	CaseUntimeout   CaseType = "UNTIMEOUT"
	CaseWarn        CaseType = "WARN"
	CaseJail        CaseType = "JAIL"
	CaseUnjail      CaseType = "UNJAIL"
	CasePollban     CaseType = "POLLBAN"
	CasePollunban   CaseType = "POLLUNBAN"
	CaseSnippetban  CaseType = "SNIPPETBAN"
	CaseSnippetUnb  CaseType = "SNIPPETUNBAN"
)

// RemovalActions is the set of case types that remove the target from the
// guild outright; the Moderation Coordinator uses it to decide whether the
// DM happens before or after the Discord action (§4.G Phase 4/6).
var RemovalActions = map[CaseType]bool{
	CaseBan:     true,
	CaseTempban: true,
	CaseKick:    true,
}

// Case mirrors the relational Case entity (§3).
type Case struct {
	CaseID            int64
	GuildID           string
	CaseNumber        int64
	CaseType          CaseType
	UserID            string
	ModeratorID       string
	Reason            string
	Status            bool
	CreatedAt         time.Time
	ExpiresAt         *time.Time
	UserRoles         []string
	ModLogMessageID   string
	AuditLogMessageID string
}

// GuildConfig mirrors the relational GuildConfig entity (§3). Every field
// is nullable; the zero value (empty string) means "feature disabled".
type GuildConfig struct {
	GuildID             string
	ModLogChannelID     string
	AuditLogChannelID   string
	JoinLogChannelID    string
	PrivateLogChannelID string
	ReportLogChannelID  string
	DevLogChannelID     string
	JailChannelID       string
	GeneralChannelID    string
	StarboardChannelID  string
	JailRoleID          string
	QuarantineRoleID    string
	BaseStaffRoleID     string
	BaseMemberRoleID    string
	CommandPrefix       string
}

// PermissionRank mirrors the relational PermissionRank entity (§3).
type PermissionRank struct {
	ID          int64
	GuildID     string
	Rank        int
	Name        string
	Description string
	Color       string
	Enabled     bool
}

// PermissionAssignment mirrors the relational PermissionAssignment entity (§3).
type PermissionAssignment struct {
	ID               int64
	GuildID          string
	PermissionRankID int64
	RoleID           string
}

// PermissionCommand mirrors the relational PermissionCommand entity (§3).
type PermissionCommand struct {
	ID            int64
	GuildID       string
	CommandName   string
	RequiredRank  int
	Description   string
}

func ensureModerationSchema(db *sql.DB) error {
	const createGuilds = `
CREATE TABLE IF NOT EXISTS guilds (
  guild_id   TEXT PRIMARY KEY,
  joined_at  TIMESTAMP NOT NULL,
  case_count INTEGER NOT NULL DEFAULT 0
);`

	const createGuildConfigs = `
CREATE TABLE IF NOT EXISTS guild_configs (
  guild_id               TEXT PRIMARY KEY REFERENCES guilds(guild_id),
  mod_log_channel_id     TEXT,
  audit_log_channel_id   TEXT,
  join_log_channel_id    TEXT,
  private_log_channel_id TEXT,
  report_log_channel_id  TEXT,
  dev_log_channel_id     TEXT,
  jail_channel_id        TEXT,
  general_channel_id     TEXT,
  starboard_channel_id   TEXT,
  jail_role_id           TEXT,
  quarantine_role_id     TEXT,
  base_staff_role_id     TEXT,
  base_member_role_id    TEXT,
  command_prefix         TEXT
);`

	const createPermissionRanks = `
CREATE TABLE IF NOT EXISTS permission_ranks (
  id          INTEGER PRIMARY KEY AUTOINCREMENT,
  guild_id    TEXT NOT NULL,
  rank        INTEGER NOT NULL,
  name        TEXT NOT NULL,
  description TEXT,
  color       TEXT,
  enabled     INTEGER NOT NULL DEFAULT 1,
  UNIQUE(guild_id, rank)
);`

	const createPermissionAssignments = `
CREATE TABLE IF NOT EXISTS permission_assignments (
  id                 INTEGER PRIMARY KEY AUTOINCREMENT,
  guild_id           TEXT NOT NULL,
  permission_rank_id INTEGER NOT NULL REFERENCES permission_ranks(id) ON DELETE CASCADE,
  role_id            TEXT NOT NULL,
  UNIQUE(guild_id, role_id)
);`

	const createPermissionCommands = `
CREATE TABLE IF NOT EXISTS permission_commands (
  id            INTEGER PRIMARY KEY AUTOINCREMENT,
  guild_id      TEXT NOT NULL,
  command_name  TEXT NOT NULL,
  required_rank INTEGER NOT NULL,
  description   TEXT,
  UNIQUE(guild_id, command_name)
);`

	const createCases = `
CREATE TABLE IF NOT EXISTS cases (
  case_id            INTEGER PRIMARY KEY AUTOINCREMENT,
  guild_id           TEXT NOT NULL,
  case_number        INTEGER NOT NULL,
  case_type          TEXT NOT NULL,
  user_id            TEXT NOT NULL,
  moderator_id       TEXT NOT NULL,
  reason             TEXT,
  status             INTEGER NOT NULL DEFAULT 1,
  created_at         TIMESTAMP NOT NULL,
  expires_at         TIMESTAMP,
  user_roles         TEXT,
  mod_log_message_id TEXT,
  audit_log_message_id TEXT,
  UNIQUE(guild_id, case_number)
);
CREATE INDEX IF NOT EXISTS idx_cases_user ON cases(guild_id, user_id, case_number DESC);`

	stmts := []string{
		createGuilds,
		createGuildConfigs,
		createPermissionRanks,
		createPermissionAssignments,
		createPermissionCommands,
		createCases,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("create moderation schema: %w", err)
		}
	}
	return nil
}

// EnsureGuild lazily creates a Guild row if it does not already exist.
func (s *Store) EnsureGuild(guildID string) error {
	if s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	_, err := s.db.Exec(
		`INSERT INTO guilds (guild_id, joined_at, case_count) VALUES (?, ?, 0)
         ON CONFLICT(guild_id) DO NOTHING`,
		guildID, time.Now().UTC(),
	)
	return err
}

// CreateCase allocates the next case number for guildID and inserts the
// Case row in the same transaction, satisfying the monotonic-no-gap
// invariant (§8.1) via a serialized read-increment-insert.
func (s *Store) CreateCase(guildID, userID, moderatorID string, caseType CaseType, reason string, expiresAt *time.Time, userRoles []string) (*Case, error) {
	if s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	guildID = strings.TrimSpace(guildID)
	if guildID == "" {
		return nil, fmt.Errorf("guildID is empty")
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(
		`INSERT INTO guilds (guild_id, joined_at, case_count) VALUES (?, ?, 0)
         ON CONFLICT(guild_id) DO NOTHING`,
		guildID, time.Now().UTC(),
	); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(
		`UPDATE guilds SET case_count = case_count + 1 WHERE guild_id = ?`,
		guildID,
	); err != nil {
		return nil, err
	}

	var caseNumber int64
	if err := tx.QueryRow(`SELECT case_count FROM guilds WHERE guild_id = ?`, guildID).Scan(&caseNumber); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var expiresVal any
	if expiresAt != nil {
		expiresVal = expiresAt.UTC()
	}

	res, err := tx.Exec(
		`INSERT INTO cases (guild_id, case_number, case_type, user_id, moderator_id, reason, status, created_at, expires_at, user_roles)
         VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?, ?)`,
		guildID, caseNumber, string(caseType), userID, moderatorID, reason, now, expiresVal, encodeRoles(userRoles),
	)
	if err != nil {
		return nil, err
	}
	caseID, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &Case{
		CaseID:      caseID,
		GuildID:     guildID,
		CaseNumber:  caseNumber,
		CaseType:    caseType,
		UserID:      userID,
		ModeratorID: moderatorID,
		Reason:      reason,
		Status:      true,
		CreatedAt:   now,
		ExpiresAt:   expiresAt,
		UserRoles:   userRoles,
	}, nil
}

// CreateVoidedCase records a case whose Discord action did not complete,
// per §4.G Phase 5's classified-failure handling. reason should already be
// annotated with the failure class.
func (s *Store) CreateVoidedCase(guildID, userID, moderatorID string, caseType CaseType, reason string) (*Case, error) {
	c, err := s.CreateCase(guildID, userID, moderatorID, caseType, reason, nil, nil)
	if err != nil {
		return nil, err
	}
	if err := s.UpdateCaseByNumber(guildID, c.CaseNumber, nil, boolPtr(false)); err != nil {
		return nil, err
	}
	c.Status = false
	return c, nil
}

func boolPtr(b bool) *bool { return &b }

func scanCase(row interface{ Scan(dest ...any) error }) (*Case, error) {
	var c Case
	var reason, userRoles, modLogID, auditLogID sql.NullString
	var expiresAt sql.NullTime
	var status int
	var caseType string
	if err := row.Scan(
		&c.CaseID, &c.GuildID, &c.CaseNumber, &caseType, &c.UserID, &c.ModeratorID,
		&reason, &status, &c.CreatedAt, &expiresAt, &userRoles, &modLogID, &auditLogID,
	); err != nil {
		return nil, err
	}
	c.CaseType = CaseType(caseType)
	c.Reason = reason.String
	c.Status = status != 0
	if expiresAt.Valid {
		t := expiresAt.Time
		c.ExpiresAt = &t
	}
	c.UserRoles = decodeRoles(userRoles.String)
	c.ModLogMessageID = modLogID.String
	c.AuditLogMessageID = auditLogID.String
	return &c, nil
}

const caseColumns = `case_id, guild_id, case_number, case_type, user_id, moderator_id, reason, status, created_at, expires_at, user_roles, mod_log_message_id, audit_log_message_id`

// GetCaseByID fetches a case by its surrogate id.
func (s *Store) GetCaseByID(caseID int64) (*Case, error) {
	if s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	row := s.db.QueryRow(`SELECT `+caseColumns+` FROM cases WHERE case_id = ?`, caseID)
	c, err := scanCase(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

// GetCaseByNumber fetches a case by its per-guild case number.
func (s *Store) GetCaseByNumber(guildID string, number int64) (*Case, error) {
	if s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	row := s.db.QueryRow(`SELECT `+caseColumns+` FROM cases WHERE guild_id = ? AND case_number = ?`, guildID, number)
	c, err := scanCase(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

// GetCasesByUser returns every case recorded against userID in guildID,
// most recent first.
func (s *Store) GetCasesByUser(guildID, userID string) ([]*Case, error) {
	if s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	rows, err := s.db.Query(`SELECT `+caseColumns+` FROM cases WHERE guild_id = ? AND user_id = ? ORDER BY case_number DESC`, guildID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetLatestCaseByUser returns the most recent case for (guild, user), used
// by jail rejoin logic to read the role snapshot (§4.I).
func (s *Store) GetLatestCaseByUser(guildID, userID string) (*Case, error) {
	cases, err := s.GetCasesByUser(guildID, userID)
	if err != nil {
		return nil, err
	}
	if len(cases) == 0 {
		return nil, nil
	}
	return cases[0], nil
}

// ListExpiredActiveCases returns every case across all guilds whose
// expires_at has passed and which is still marked active, used by the
// tempban/timeout expiry sweep to find work without a per-guild scan.
func (s *Store) ListExpiredActiveCases(before time.Time) ([]*Case, error) {
	if s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	rows, err := s.db.Query(`SELECT `+caseColumns+` FROM cases WHERE status = 1 AND expires_at IS NOT NULL AND expires_at <= ? ORDER BY expires_at ASC`, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateCaseByNumber partially updates a case; nil fields are left unchanged.
func (s *Store) UpdateCaseByNumber(guildID string, number int64, reason *string, status *bool) error {
	if s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	if reason == nil && status == nil {
		return nil
	}
	sets := []string{}
	args := []any{}
	if reason != nil {
		sets = append(sets, "reason = ?")
		args = append(args, *reason)
	}
	if status != nil {
		sets = append(sets, "status = ?")
		args = append(args, boolToInt(*status))
	}
	args = append(args, guildID, number)
	query := `UPDATE cases SET ` + strings.Join(sets, ", ") + ` WHERE guild_id = ? AND case_number = ?`
	_, err := s.db.Exec(query, args...)
	return err
}

// UpdateModLogMessageID idempotently records the mod-log embed's message id.
func (s *Store) UpdateModLogMessageID(caseID int64, messageID string) error {
	if s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	_, err := s.db.Exec(`UPDATE cases SET mod_log_message_id = ? WHERE case_id = ?`, messageID, caseID)
	return err
}

// UpdateAuditLogMessageID idempotently records the audit-log embed's message id.
func (s *Store) UpdateAuditLogMessageID(caseID int64, messageID string) error {
	if s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	_, err := s.db.Exec(`UPDATE cases SET audit_log_message_id = ? WHERE case_id = ?`, messageID, caseID)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func encodeRoles(roles []string) string {
	if len(roles) == 0 {
		return ""
	}
	return strings.Join(roles, ",")
}

func decodeRoles(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// --- GuildConfig ---

// GetGuildConfig returns the guild's configuration, or a zero-value config
// with GuildID set if none has been stored yet.
func (s *Store) GetGuildConfig(guildID string) (*GuildConfig, error) {
	if s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	row := s.db.QueryRow(`SELECT guild_id, mod_log_channel_id, audit_log_channel_id, join_log_channel_id,
        private_log_channel_id, report_log_channel_id, dev_log_channel_id, jail_channel_id, general_channel_id,
        starboard_channel_id, jail_role_id, quarantine_role_id, base_staff_role_id, base_member_role_id, command_prefix
        FROM guild_configs WHERE guild_id = ?`, guildID)

	var gc GuildConfig
	var modLog, auditLog, joinLog, privateLog, reportLog, devLog, jail, general, starboard,
		jailRole, quarantineRole, baseStaff, baseMember, prefix sql.NullString
	err := row.Scan(&gc.GuildID, &modLog, &auditLog, &joinLog, &privateLog, &reportLog, &devLog,
		&jail, &general, &starboard, &jailRole, &quarantineRole, &baseStaff, &baseMember, &prefix)
	if err == sql.ErrNoRows {
		return &GuildConfig{GuildID: guildID}, nil
	}
	if err != nil {
		return nil, err
	}
	gc.ModLogChannelID = modLog.String
	gc.AuditLogChannelID = auditLog.String
	gc.JoinLogChannelID = joinLog.String
	gc.PrivateLogChannelID = privateLog.String
	gc.ReportLogChannelID = reportLog.String
	gc.DevLogChannelID = devLog.String
	gc.JailChannelID = jail.String
	gc.GeneralChannelID = general.String
	gc.StarboardChannelID = starboard.String
	gc.JailRoleID = jailRole.String
	gc.QuarantineRoleID = quarantineRole.String
	gc.BaseStaffRoleID = baseStaff.String
	gc.BaseMemberRoleID = baseMember.String
	gc.CommandPrefix = prefix.String
	return &gc, nil
}

// UpsertGuildConfig writes the full configuration row for a guild.
func (s *Store) UpsertGuildConfig(gc *GuildConfig) error {
	if s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	if err := s.EnsureGuild(gc.GuildID); err != nil {
		return err
	}
	_, err := s.db.Exec(`INSERT INTO guild_configs (
        guild_id, mod_log_channel_id, audit_log_channel_id, join_log_channel_id, private_log_channel_id,
        report_log_channel_id, dev_log_channel_id, jail_channel_id, general_channel_id, starboard_channel_id,
        jail_role_id, quarantine_role_id, base_staff_role_id, base_member_role_id, command_prefix
      ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
      ON CONFLICT(guild_id) DO UPDATE SET
        mod_log_channel_id=excluded.mod_log_channel_id,
        audit_log_channel_id=excluded.audit_log_channel_id,
        join_log_channel_id=excluded.join_log_channel_id,
        private_log_channel_id=excluded.private_log_channel_id,
        report_log_channel_id=excluded.report_log_channel_id,
        dev_log_channel_id=excluded.dev_log_channel_id,
        jail_channel_id=excluded.jail_channel_id,
        general_channel_id=excluded.general_channel_id,
        starboard_channel_id=excluded.starboard_channel_id,
        jail_role_id=excluded.jail_role_id,
        quarantine_role_id=excluded.quarantine_role_id,
        base_staff_role_id=excluded.base_staff_role_id,
        base_member_role_id=excluded.base_member_role_id,
        command_prefix=excluded.command_prefix`,
		gc.GuildID, gc.ModLogChannelID, gc.AuditLogChannelID, gc.JoinLogChannelID, gc.PrivateLogChannelID,
		gc.ReportLogChannelID, gc.DevLogChannelID, gc.JailChannelID, gc.GeneralChannelID, gc.StarboardChannelID,
		gc.JailRoleID, gc.QuarantineRoleID, gc.BaseStaffRoleID, gc.BaseMemberRoleID, gc.CommandPrefix,
	)
	return err
}

// --- PermissionRank / PermissionAssignment / PermissionCommand ---

// InitializeGuildRanks idempotently seeds the eight default ranks (§4.B).
func (s *Store) InitializeGuildRanks(guildID string) error {
	if s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	if err := s.EnsureGuild(guildID); err != nil {
		return err
	}
	defaults := []struct {
		rank int
		name string
	}{
		{0, "Member"},
		{1, "Trusted"},
		{2, "Junior Moderator"},
		{3, "Moderator"},
		{4, "Senior Moderator"},
		{5, "Administrator"},
		{6, "Head Administrator"},
		{7, "Server Owner"},
	}
	for _, d := range defaults {
		if _, err := s.db.Exec(
			`INSERT INTO permission_ranks (guild_id, rank, name, enabled) VALUES (?, ?, ?, 1)
             ON CONFLICT(guild_id, rank) DO NOTHING`,
			guildID, d.rank, d.name,
		); err != nil {
			return err
		}
	}
	return nil
}

// ListPermissionRanks returns every configured rank for a guild.
func (s *Store) ListPermissionRanks(guildID string) ([]*PermissionRank, error) {
	if s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	rows, err := s.db.Query(`SELECT id, guild_id, rank, name, description, color, enabled FROM permission_ranks WHERE guild_id = ? ORDER BY rank`, guildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*PermissionRank
	for rows.Next() {
		var r PermissionRank
		var desc, color sql.NullString
		var enabled int
		if err := rows.Scan(&r.ID, &r.GuildID, &r.Rank, &r.Name, &desc, &color, &enabled); err != nil {
			return nil, err
		}
		r.Description = desc.String
		r.Color = color.String
		r.Enabled = enabled != 0
		out = append(out, &r)
	}
	return out, rows.Err()
}

// ListPermissionAssignments returns every role->rank assignment for a guild.
func (s *Store) ListPermissionAssignments(guildID string) ([]*PermissionAssignment, error) {
	if s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	rows, err := s.db.Query(`SELECT id, guild_id, permission_rank_id, role_id FROM permission_assignments WHERE guild_id = ?`, guildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*PermissionAssignment
	for rows.Next() {
		var a PermissionAssignment
		if err := rows.Scan(&a.ID, &a.GuildID, &a.PermissionRankID, &a.RoleID); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// AssignRoleToRank assigns roleID to the permission rank permissionRankID,
// replacing any prior assignment the role held (a role may hold at most
// one rank per guild, §3).
func (s *Store) AssignRoleToRank(guildID string, permissionRankID int64, roleID string) error {
	if s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	_, err := s.db.Exec(
		`INSERT INTO permission_assignments (guild_id, permission_rank_id, role_id) VALUES (?, ?, ?)
         ON CONFLICT(guild_id, role_id) DO UPDATE SET permission_rank_id = excluded.permission_rank_id`,
		guildID, permissionRankID, roleID,
	)
	return err
}

// GetPermissionCommand resolves the exact configured entry for
// (guildID, commandName), or nil if absent.
func (s *Store) GetPermissionCommand(guildID, commandName string) (*PermissionCommand, error) {
	if s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	row := s.db.QueryRow(`SELECT id, guild_id, command_name, required_rank, description FROM permission_commands WHERE guild_id = ? AND command_name = ?`, guildID, strings.ToLower(commandName))
	var pc PermissionCommand
	var desc sql.NullString
	if err := row.Scan(&pc.ID, &pc.GuildID, &pc.CommandName, &pc.RequiredRank, &desc); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	pc.Description = desc.String
	return &pc, nil
}

// restrictedCommandNames must never be configurable (§4.B, invariant 4).
var restrictedCommandNames = map[string]bool{
	"eval": true, "e": true, "jsk": true, "jishaku": true,
}

// IsRestrictedCommand reports whether name (any single path segment) is a
// hardwired bot-owner-only command that the Permission Engine must refuse
// to configure.
func IsRestrictedCommand(name string) bool {
	return restrictedCommandNames[strings.ToLower(strings.TrimSpace(name))]
}

// SetPermissionCommand configures the required rank for commandName.
// Restricted commands (eval/e/jsk/jishaku, case-insensitive) are rejected.
func (s *Store) SetPermissionCommand(guildID, commandName string, requiredRank int, description string) error {
	if s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	name := strings.ToLower(strings.TrimSpace(commandName))
	for _, segment := range strings.Fields(name) {
		if IsRestrictedCommand(segment) {
			return fmt.Errorf("storage: %q is a restricted command and cannot be configured", commandName)
		}
	}
	_, err := s.db.Exec(
		`INSERT INTO permission_commands (guild_id, command_name, required_rank, description) VALUES (?, ?, ?, ?)
         ON CONFLICT(guild_id, command_name) DO UPDATE SET required_rank = excluded.required_rank, description = excluded.description`,
		guildID, name, requiredRank, description,
	)
	return err
}

// ListPermissionCommands returns every configured command entry for a guild.
func (s *Store) ListPermissionCommands(guildID string) ([]*PermissionCommand, error) {
	if s.db == nil {
		return nil, fmt.Errorf("store not initialized")
	}
	rows, err := s.db.Query(`SELECT id, guild_id, command_name, required_rank, description FROM permission_commands WHERE guild_id = ?`, guildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*PermissionCommand
	for rows.Next() {
		var pc PermissionCommand
		var desc sql.NullString
		if err := rows.Scan(&pc.ID, &pc.GuildID, &pc.CommandName, &pc.RequiredRank, &desc); err != nil {
			return nil, err
		}
		pc.Description = desc.String
		out = append(out, &pc)
	}
	return out, rows.Err()
}
