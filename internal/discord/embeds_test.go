package discord

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/hunterjsb/doorknock/internal/domain"
	"github.com/hunterjsb/doorknock/internal/ledger"
)

func TestFormatLeaderboard(t *testing.T) {
	bot := &DiscordBot{now: time.Now}

	var entries []domain.LeaderboardEntry
	for i := 1; i <= 12; i++ {
		entries = append(entries, domain.LeaderboardEntry{UserID: fmt.Sprintf("u%d", i), Points: 20 - i, Rank: i})
	}
	baseline := time.Date(2026, 10, 13, 0, 0, 0, 0, time.UTC)
	ranking := ledger.Ranking{
		Window:  domain.Weekly,
		AsOf:    time.Date(2026, 10, 14, 15, 0, 0, 0, time.UTC),
		Entries: entries,
		Skipped: []*domain.DataIntegrityError{{Table: "deals", Key: "x", Reason: "bad"}},
	}
	movement := ledger.Movement{UserID: "u3", Current: 3, Previous: 5, Baseline: &baseline}

	embed := bot.formatLeaderboard(ranking, movement)

	if embed.Title != "🏆 Weekly Leaderboard" {
		t.Errorf("Expected title '🏆 Weekly Leaderboard', got '%s'", embed.Title)
	}

	lines := strings.Split(embed.Description, "\n")
	if len(lines) != leaderboardSize {
		t.Fatalf("Expected %d rows, got %d", leaderboardSize, len(lines))
	}
	if lines[0] != "🥇 <@u1> · **19** pts" {
		t.Errorf("Unexpected first row: %s", lines[0])
	}
	if !strings.HasPrefix(lines[3], "`#4`") {
		t.Errorf("Expected rank 4 to be numbered, got %s", lines[3])
	}

	if embed.Footer == nil {
		t.Fatal("Expected footer")
	}
	want := "You are #3 with 17 pts (moved up 2) · 1 unreadable records skipped"
	if embed.Footer.Text != want {
		t.Errorf("Expected footer '%s', got '%s'", want, embed.Footer.Text)
	}
	if embed.Timestamp != "2026-10-14T15:00:00Z" {
		t.Errorf("Expected timestamp of the ranking, got %s", embed.Timestamp)
	}
}

func TestFormatLeaderboard_Empty(t *testing.T) {
	bot := &DiscordBot{now: time.Now}

	embed := bot.formatLeaderboard(ledger.Ranking{Window: domain.AllTime}, ledger.Movement{UserID: "u1"})

	if embed.Title != "🏆 All-Time Leaderboard" {
		t.Errorf("Unexpected title: %s", embed.Title)
	}
	if embed.Description != "No points on the board yet." {
		t.Errorf("Unexpected description: %s", embed.Description)
	}
	if embed.Footer.Text != "You are not ranked yet" {
		t.Errorf("Unexpected footer: %s", embed.Footer.Text)
	}
}

func TestFormatScore(t *testing.T) {
	bot := &DiscordBot{now: time.Now}

	score := domain.NewScore([]domain.CategoryScore{
		{Key: "rapport", Label: "rapport", Score: 90, Weight: 0.6, Feedback: "Warm opener"},
		{Key: "closing", Label: "closing", Score: 50, Weight: 0.4},
	}, "Good energy, ask for the appointment.")

	embed := bot.formatScore(&score, 1, domain.EndByUser)

	if embed.Title != "📋 Session Score: 74 (C+)" {
		t.Errorf("Unexpected title: %s", embed.Title)
	}
	if len(embed.Fields) != 4 {
		t.Fatalf("Expected 4 fields, got %d", len(embed.Fields))
	}
	if embed.Fields[0].Name != "Rapport (60%)" {
		t.Errorf("Unexpected field name: %s", embed.Fields[0].Name)
	}
	if embed.Fields[0].Value != "**90**/100\nWarm opener" {
		t.Errorf("Unexpected field value: %s", embed.Fields[0].Value)
	}
	if embed.Fields[2].Value != "Strong rapport" {
		t.Errorf("Unexpected strengths: %s", embed.Fields[2].Value)
	}
	if embed.Fields[3].Value != "Improve closing" {
		t.Errorf("Unexpected improvements: %s", embed.Fields[3].Value)
	}
	if embed.Color != 0x9acd32 {
		t.Errorf("Expected yellow-green, got %x", embed.Color)
	}
}

func TestFormatStats(t *testing.T) {
	bot := &DiscordBot{now: time.Now}
	user := &domain.UserProfile{ID: "u1", DisplayName: "Sam", Niche: domain.NicheSolar}
	stats := ledger.Stats{
		UserID:            "u1",
		ApprovedByRole:    map[domain.DealRole]int{domain.RoleSetter: 2, domain.RoleSelfGenerated: 1},
		DealPoints:        4,
		SessionPoints:     3,
		SessionsCompleted: 2,
		MeanScore:         80,
		ScoreStdDev:       14.14,
		BestScore:         90,
	}

	embed := bot.formatStats(user, stats, domain.LeaderboardEntry{UserID: "u1", Rank: 2, Points: 5})

	if embed.Title != "📊 Sam's Stats" {
		t.Errorf("Unexpected title: %s", embed.Title)
	}
	expected := map[string]string{
		"Niche":          "Solar",
		"Total Points":   "7",
		"This Week":      "#2 (5 pts)",
		"Approved Deals": "Self-generated: 1\nSetter: 2",
		"Practice":       "2 sessions\nMean 80.0 · Best 90 · σ 14.1",
	}
	for _, f := range embed.Fields {
		if want, ok := expected[f.Name]; ok && f.Value != want {
			t.Errorf("Field %s: expected %q, got %q", f.Name, want, f.Value)
		}
	}
	if embed.Footer != nil {
		t.Errorf("Expected no footer, got %s", embed.Footer.Text)
	}
}

func TestFormatDeal_Rejected(t *testing.T) {
	bot := &DiscordBot{now: time.Now}
	deal := &domain.Deal{ID: "d1", SubmitterID: "u1", Role: domain.RoleSetter, Niche: domain.NicheFiber, State: domain.DealRejected, DecisionNote: "duplicate"}

	embed := bot.formatDeal(deal)

	if embed.Title != "❌ Deal Rejected" {
		t.Errorf("Unexpected title: %s", embed.Title)
	}
	last := embed.Fields[len(embed.Fields)-1]
	if last.Name != "Reason" || last.Value != "duplicate" {
		t.Errorf("Expected reason field, got %s: %s", last.Name, last.Value)
	}
	if embed.Fields[3].Value != "$0.00" {
		t.Errorf("Expected zero amount, got %s", embed.Fields[3].Value)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("Expected unchanged string, got %s", got)
	}
	if got := truncate("ééééé", 3); got != "éé…" {
		t.Errorf("Expected rune-safe truncation, got %s", got)
	}
}
