package moderation

import (
	"context"
	"sync"
	"time"
)

// mockAdapter is a minimal, deterministic DiscordAdapter stand-in used by
// the moderation core's tests. It never talks to a real gateway.
type mockAdapter struct {
	mu sync.Mutex

	banned     map[string]bool
	members    map[string]*Member
	botMember  *Member
	permission bool

	banErr     error
	dmErr      error
	sentDMs    []string
	sentEmbeds []Embed

	roles map[string][]string // userID -> current role ids
}

func newMockAdapter() *mockAdapter {
	return &mockAdapter{
		banned:     make(map[string]bool),
		members:    make(map[string]*Member),
		botMember:  &Member{UserID: "bot", TopRolePos: 100},
		permission: true,
		roles:      make(map[string][]string),
	}
}

func (m *mockAdapter) addMember(userID string, topRolePos int, roleIDs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[userID] = &Member{UserID: userID, RoleIDs: roleIDs, TopRolePos: topRolePos}
	m.roles[userID] = append([]string(nil), roleIDs...)
}

func (m *mockAdapter) SendDM(ctx context.Context, userID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dmErr != nil {
		return m.dmErr
	}
	m.sentDMs = append(m.sentDMs, userID)
	return nil
}

func (m *mockAdapter) Ban(ctx context.Context, guildID, userID string, purgeDays int, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.banErr != nil {
		return m.banErr
	}
	if m.banned[userID] {
		return &AdapterError{Kind: AdapterNotFound}
	}
	m.banned[userID] = true
	return nil
}

func (m *mockAdapter) Unban(ctx context.Context, guildID, userID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.banned, userID)
	return nil
}

func (m *mockAdapter) Kick(ctx context.Context, guildID, userID, reason string) error { return nil }

func (m *mockAdapter) Timeout(ctx context.Context, guildID, userID string, until time.Time, reason string) error {
	return nil
}

func (m *mockAdapter) RemoveTimeout(ctx context.Context, guildID, userID, reason string) error {
	return nil
}

func (m *mockAdapter) AddRoles(ctx context.Context, guildID, userID string, roleIDs []string, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := make(map[string]bool)
	for _, r := range m.roles[userID] {
		set[r] = true
	}
	for _, r := range roleIDs {
		set[r] = true
	}
	m.roles[userID] = keysOf(set)
	return nil
}

func (m *mockAdapter) RemoveRoles(ctx context.Context, guildID, userID string, roleIDs []string, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	remove := make(map[string]bool)
	for _, r := range roleIDs {
		remove[r] = true
	}
	var kept []string
	for _, r := range m.roles[userID] {
		if !remove[r] {
			kept = append(kept, r)
		}
	}
	m.roles[userID] = kept
	return nil
}

func (m *mockAdapter) SendMessage(ctx context.Context, channelID string, embed Embed) (*SentMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sentEmbeds = append(m.sentEmbeds, embed)
	return &SentMessage{ChannelID: channelID, MessageID: "msg-1"}, nil
}

func (m *mockAdapter) FetchMessage(ctx context.Context, channelID, messageID string) (*SentMessage, error) {
	return &SentMessage{ChannelID: channelID, MessageID: messageID}, nil
}

func (m *mockAdapter) EditMessage(ctx context.Context, channelID, messageID string, embed Embed) error {
	return nil
}

func (m *mockAdapter) GetMember(ctx context.Context, guildID, userID string) (*Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.members[userID]
	if !ok {
		return nil, &AdapterError{Kind: AdapterNotFound}
	}
	cp := *mem
	cp.RoleIDs = m.roles[userID]
	return &cp, nil
}

func (m *mockAdapter) BotMember(ctx context.Context, guildID string) (*Member, error) {
	return m.botMember, nil
}

func (m *mockAdapter) HasPermission(ctx context.Context, guildID, permission string) (bool, error) {
	return m.permission, nil
}

func (m *mockAdapter) ManageableRoles(ctx context.Context, guildID string, roleIDs []string, jailRoleID string) ([]string, error) {
	var out []string
	for _, r := range roleIDs {
		if r != jailRoleID && r != "everyone" {
			out = append(out, r)
		}
	}
	return out, nil
}

func keysOf(set map[string]bool) []string {
	var out []string
	for k := range set {
		out = append(out, k)
	}
	return out
}

var _ DiscordAdapter = (*mockAdapter)(nil)
