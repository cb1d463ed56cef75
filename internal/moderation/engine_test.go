package moderation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/intenise/sentry/internal/telegram"
	"github.com/intenise/sentry/pkg/models"
)

type restrictCall struct {
	chatID, userID int64
	until          time.Time
	perms          telegram.Permissions
}

type kickCall struct {
	chatID, userID int64
	until          *time.Time
}

// fakePlatform implements telegram.API for engine tests
type fakePlatform struct {
	admins    []int64
	adminsErr error

	members   map[int64]telegram.Member
	memberErr error

	restrictErr error
	kickErr     error
	unbanErr    error

	restricts []restrictCall
	kicks     []kickCall
	unbans    []int64
	messages  []string
}

func (f *fakePlatform) SendMessage(ctx context.Context, chatID int64, text string, button *telegram.Button) error {
	f.messages = append(f.messages, text)
	return nil
}

func (f *fakePlatform) SendPhoto(ctx context.Context, chatID int64, photoID, caption string, button *telegram.Button) error {
	return nil
}

func (f *fakePlatform) SendDocument(ctx context.Context, chatID int64, name string, data []byte) error {
	return nil
}

func (f *fakePlatform) GetChatAdministrators(ctx context.Context, chatID int64) ([]int64, error) {
	return f.admins, f.adminsErr
}

func (f *fakePlatform) GetChatMember(ctx context.Context, chatID, userID int64) (telegram.Member, error) {
	if f.memberErr != nil {
		return telegram.Member{}, f.memberErr
	}
	if m, ok := f.members[userID]; ok {
		return m, nil
	}
	return telegram.Member{ID: userID, Status: "member", DisplayName: fmt.Sprintf("User %d", userID)}, nil
}

func (f *fakePlatform) RestrictMember(ctx context.Context, chatID, userID int64, until time.Time, perms telegram.Permissions) error {
	if f.restrictErr != nil {
		return f.restrictErr
	}
	f.restricts = append(f.restricts, restrictCall{chatID: chatID, userID: userID, until: until, perms: perms})
	return nil
}

func (f *fakePlatform) KickMember(ctx context.Context, chatID, userID int64, until *time.Time) error {
	if f.kickErr != nil {
		return f.kickErr
	}
	f.kicks = append(f.kicks, kickCall{chatID: chatID, userID: userID, until: until})
	return nil
}

func (f *fakePlatform) UnbanMember(ctx context.Context, chatID, userID int64) error {
	if f.unbanErr != nil {
		return f.unbanErr
	}
	f.unbans = append(f.unbans, userID)
	return nil
}

// fakeStore implements Store for engine tests
type fakeStore struct {
	entries   []*models.AuditEntry
	appendErr error

	usernames map[string]int64
	findErr   error
}

func (f *fakeStore) AppendAudit(ctx context.Context, entry *models.AuditEntry) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	entry.LogID = int64(len(f.entries) + 1)
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeStore) FindUserIDByUsername(ctx context.Context, chatID int64, username string) (int64, bool, error) {
	if f.findErr != nil {
		return 0, false, f.findErr
	}
	id, ok := f.usernames[strings.ToLower(username)]
	return id, ok, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(platform *fakePlatform, store *fakeStore) *Engine {
	logger := testLogger()
	eng := NewEngine(platform, NewAuthorizer(platform, logger), store, logger)
	eng.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return eng
}

const (
	testChatID  = int64(-100500)
	testAdminID = int64(42)
)

func TestMute(t *testing.T) {
	platform := &fakePlatform{admins: []int64{testAdminID}}
	store := &fakeStore{}
	eng := newTestEngine(platform, store)

	reply, err := eng.Mute(context.Background(), testChatID, testAdminID, []string{"123", "30"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(reply, "30 мин.") {
		t.Errorf("expected reply to contain duration, got %q", reply)
	}

	if len(platform.restricts) != 1 {
		t.Fatalf("expected 1 restrict call, got %d", len(platform.restricts))
	}
	call := platform.restricts[0]
	if call.userID != 123 {
		t.Errorf("expected restrict target 123, got %d", call.userID)
	}
	if call.perms.CanSendMessages {
		t.Error("expected send-messages permission to be disabled")
	}
	wantUntil := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	if !call.until.Equal(wantUntil) {
		t.Errorf("expected until %v, got %v", wantUntil, call.until)
	}

	if len(store.entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(store.entries))
	}
	entry := store.entries[0]
	if entry.Action != models.ActionMute {
		t.Errorf("expected action mute, got %s", entry.Action)
	}
	if !strings.Contains(entry.Details, "123") || !strings.Contains(entry.Details, "30") {
		t.Errorf("expected details to mention target and duration, got %q", entry.Details)
	}
	if entry.IssuedBy != testAdminID {
		t.Errorf("expected issued_by %d, got %d", testAdminID, entry.IssuedBy)
	}
}

func TestMuteLongDurationFormat(t *testing.T) {
	platform := &fakePlatform{admins: []int64{testAdminID}}
	eng := newTestEngine(platform, &fakeStore{})

	reply, err := eng.Mute(context.Background(), testChatID, testAdminID, []string{"123", "90"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(reply, "1 ч. 30 мин.") {
		t.Errorf("expected reply to contain '1 ч. 30 мин.', got %q", reply)
	}
}

func TestMuteMalformed(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "no args", args: nil},
		{name: "missing duration", args: []string{"123"}},
		{name: "non-integer duration", args: []string{"123", "soon"}},
		{name: "negative duration", args: []string{"123", "-5"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			platform := &fakePlatform{admins: []int64{testAdminID}}
			store := &fakeStore{}
			eng := newTestEngine(platform, store)

			_, err := eng.Mute(context.Background(), testChatID, testAdminID, tt.args)
			if KindOf(err) != KindMalformedCommand {
				t.Fatalf("expected KindMalformedCommand, got %v (err %v)", KindOf(err), err)
			}
			if len(platform.restricts) != 0 || len(store.entries) != 0 {
				t.Error("malformed command must not mutate anything")
			}
		})
	}
}

func TestBanPermanent(t *testing.T) {
	platform := &fakePlatform{admins: []int64{testAdminID}}
	store := &fakeStore{}
	eng := newTestEngine(platform, store)

	reply, err := eng.Ban(context.Background(), testChatID, testAdminID, []string{"123"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(reply, "забанен") {
		t.Errorf("unexpected reply %q", reply)
	}

	if len(platform.kicks) != 1 {
		t.Fatalf("expected 1 kick call, got %d", len(platform.kicks))
	}
	if platform.kicks[0].until != nil {
		t.Error("permanent ban must not carry an until time")
	}

	if len(store.entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(store.entries))
	}
	if !strings.Contains(store.entries[0].Details, "permanently") {
		t.Errorf("expected details to mention 'permanently', got %q", store.entries[0].Details)
	}
}

func TestBanBounded(t *testing.T) {
	platform := &fakePlatform{admins: []int64{testAdminID}}
	store := &fakeStore{}
	eng := newTestEngine(platform, store)

	_, err := eng.Ban(context.Background(), testChatID, testAdminID, []string{"123", "15"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(platform.kicks) != 1 {
		t.Fatalf("expected 1 kick call, got %d", len(platform.kicks))
	}
	until := platform.kicks[0].until
	if until == nil {
		t.Fatal("bounded ban must carry an until time")
	}
	wantUntil := time.Date(2025, 6, 1, 12, 15, 0, 0, time.UTC)
	if !until.Equal(wantUntil) {
		t.Errorf("expected until %v, got %v", wantUntil, *until)
	}

	if !strings.Contains(store.entries[0].Details, "15 minutes") {
		t.Errorf("expected details to mention '15 minutes', got %q", store.entries[0].Details)
	}
}

func TestUnban(t *testing.T) {
	platform := &fakePlatform{admins: []int64{testAdminID}}
	store := &fakeStore{}
	eng := newTestEngine(platform, store)

	reply, err := eng.Unban(context.Background(), testChatID, testAdminID, []string{"123"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(reply, "разбанен") {
		t.Errorf("unexpected reply %q", reply)
	}

	if len(platform.unbans) != 1 || platform.unbans[0] != 123 {
		t.Fatalf("expected unban call for 123, got %v", platform.unbans)
	}
	if store.entries[0].Action != models.ActionUnban {
		t.Errorf("expected action unban, got %s", store.entries[0].Action)
	}
}

func TestUnmuteRestoresPermissions(t *testing.T) {
	platform := &fakePlatform{admins: []int64{testAdminID}}
	store := &fakeStore{}
	eng := newTestEngine(platform, store)

	_, err := eng.Unmute(context.Background(), testChatID, testAdminID, []string{"123"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(platform.restricts) != 1 {
		t.Fatalf("expected 1 restrict call, got %d", len(platform.restricts))
	}
	perms := platform.restricts[0].perms
	if !perms.CanSendMessages || !perms.CanSendMediaMessages || !perms.CanSendOtherMessages || !perms.CanAddWebPagePreviews {
		t.Errorf("expected all permissions re-granted, got %+v", perms)
	}
	if store.entries[0].Action != models.ActionUnmute {
		t.Errorf("expected action unmute, got %s", store.entries[0].Action)
	}
}

func TestNonAdminRejectedWithoutMutation(t *testing.T) {
	type command func(*Engine) (string, error)

	ctx := context.Background()
	commands := map[string]command{
		"mute":   func(e *Engine) (string, error) { return e.Mute(ctx, testChatID, 99, []string{"123", "30"}) },
		"ban":    func(e *Engine) (string, error) { return e.Ban(ctx, testChatID, 99, []string{"123"}) },
		"unban":  func(e *Engine) (string, error) { return e.Unban(ctx, testChatID, 99, []string{"123"}) },
		"unmute": func(e *Engine) (string, error) { return e.Unmute(ctx, testChatID, 99, []string{"123"}) },
	}

	for name, run := range commands {
		t.Run(name, func(t *testing.T) {
			platform := &fakePlatform{admins: []int64{testAdminID}}
			store := &fakeStore{}
			eng := newTestEngine(platform, store)

			_, err := run(eng)
			if KindOf(err) != KindUnauthorized {
				t.Fatalf("expected KindUnauthorized, got %v (err %v)", KindOf(err), err)
			}
			if len(platform.restricts)+len(platform.kicks)+len(platform.unbans) != 0 {
				t.Error("non-admin command must not reach the platform")
			}
			if len(store.entries) != 0 {
				t.Error("non-admin command must not produce audit entries")
			}
		})
	}
}

func TestHandleTargetResolution(t *testing.T) {
	platform := &fakePlatform{
		admins: []int64{testAdminID},
		members: map[int64]telegram.Member{
			777: {ID: 777, Status: "member", Username: "bob", DisplayName: "@bob"},
		},
	}
	store := &fakeStore{usernames: map[string]int64{"bob": 777}}
	eng := newTestEngine(platform, store)

	_, err := eng.Ban(context.Background(), testChatID, testAdminID, []string{"@bob"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(platform.kicks) != 1 || platform.kicks[0].userID != 777 {
		t.Fatalf("expected kick for resolved user 777, got %v", platform.kicks)
	}
}

func TestHandleUnknownIsNotMember(t *testing.T) {
	platform := &fakePlatform{admins: []int64{testAdminID}}
	store := &fakeStore{usernames: map[string]int64{}}
	eng := newTestEngine(platform, store)

	_, err := eng.Unban(context.Background(), testChatID, testAdminID, []string{"@ghost"})
	if KindOf(err) != KindTargetNotMember {
		t.Fatalf("expected KindTargetNotMember, got %v (err %v)", KindOf(err), err)
	}
}

func TestGoneMemberRejected(t *testing.T) {
	for _, status := range []string{"left", "kicked"} {
		t.Run(status, func(t *testing.T) {
			platform := &fakePlatform{
				admins:  []int64{testAdminID},
				members: map[int64]telegram.Member{123: {ID: 123, Status: status}},
			}
			store := &fakeStore{}
			eng := newTestEngine(platform, store)

			_, err := eng.Mute(context.Background(), testChatID, testAdminID, []string{"123", "30"})
			if KindOf(err) != KindTargetNotMember {
				t.Fatalf("expected KindTargetNotMember, got %v (err %v)", KindOf(err), err)
			}
			if len(platform.restricts) != 0 {
				t.Error("gone member must not be restricted")
			}
		})
	}
}

func TestPlatformFailureKind(t *testing.T) {
	platform := &fakePlatform{
		admins:      []int64{testAdminID},
		restrictErr: errors.New("boom"),
	}
	store := &fakeStore{}
	eng := newTestEngine(platform, store)

	_, err := eng.Mute(context.Background(), testChatID, testAdminID, []string{"123", "30"})
	if KindOf(err) != KindPlatformCallFailed {
		t.Fatalf("expected KindPlatformCallFailed, got %v (err %v)", KindOf(err), err)
	}
	if len(store.entries) != 0 {
		t.Error("failed platform call must not produce audit entries")
	}
}

func TestStorageFailureOnHandleResolution(t *testing.T) {
	platform := &fakePlatform{admins: []int64{testAdminID}}
	store := &fakeStore{findErr: errors.New("db down")}
	eng := newTestEngine(platform, store)

	_, err := eng.Ban(context.Background(), testChatID, testAdminID, []string{"@bob"})
	if KindOf(err) != KindStorageFailure {
		t.Fatalf("expected KindStorageFailure, got %v (err %v)", KindOf(err), err)
	}
}

func TestAuditFailureDoesNotFailCommand(t *testing.T) {
	platform := &fakePlatform{admins: []int64{testAdminID}}
	store := &fakeStore{appendErr: errors.New("db down")}
	eng := newTestEngine(platform, store)

	reply, err := eng.Mute(context.Background(), testChatID, testAdminID, []string{"123", "30"})
	if err != nil {
		t.Fatalf("mutation succeeded, audit failure must not raise: %v", err)
	}
	if reply == "" {
		t.Error("expected a success reply despite audit failure")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		minutes int
		want    string
	}{
		{minutes: 1, want: "1 мин."},
		{minutes: 30, want: "30 мин."},
		{minutes: 59, want: "59 мин."},
		{minutes: 60, want: "1 ч. 0 мин."},
		{minutes: 90, want: "1 ч. 30 мин."},
		{minutes: 135, want: "2 ч. 15 мин."},
	}

	for _, tt := range tests {
		if got := FormatDuration(tt.minutes); got != tt.want {
			t.Errorf("FormatDuration(%d) = %q, want %q", tt.minutes, got, tt.want)
		}
	}
}
