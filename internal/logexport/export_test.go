package logexport

import (
	"strings"
	"testing"
	"time"

	"github.com/intenise/sentry/pkg/models"
)

func TestRender(t *testing.T) {
	entries := []*models.AuditEntry{
		{
			LogID:     2,
			ChatID:    -100500,
			UserID:    123,
			CreatedAt: time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC),
			Action:    models.ActionBan,
			Details:   "User 123 banned permanently.",
		},
		{
			LogID:     1,
			ChatID:    -100500,
			UserID:    456,
			CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
			Action:    models.ActionMute,
			Details:   "User 456 muted for 30 minutes.",
		},
	}

	out, err := Render(entries, "@TestBot")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	html := string(out)
	for _, want := range []string{
		"2025-06-01 12:30:00",
		"<td>123</td>",
		"<td>456</td>",
		"ban",
		"User 456 muted for 30 minutes.",
		"searchLogs",
		"@TestBot",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("expected export to contain %q", want)
		}
	}

	// Newest entry first, matching the order given
	if strings.Index(html, "<td>123</td>") > strings.Index(html, "<td>456</td>") {
		t.Error("expected rows to keep the given order")
	}
}

func TestRenderEscapesDetails(t *testing.T) {
	entries := []*models.AuditEntry{
		{
			UserID:    1,
			CreatedAt: time.Unix(0, 0),
			Action:    models.ActionMute,
			Details:   `<script>alert("x")</script>`,
		},
	}

	out, err := Render(entries, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if strings.Contains(string(out), `<script>alert`) {
		t.Error("expected details to be HTML-escaped")
	}
}

func TestRenderEmpty(t *testing.T) {
	out, err := Render(nil, "@TestBot")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(out), "log-table") {
		t.Error("expected an empty table to still render")
	}
}
