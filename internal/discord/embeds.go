package discord

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/hunterjsb/doorknock/internal/domain"
	"github.com/hunterjsb/doorknock/internal/ledger"
	"github.com/hunterjsb/doorknock/internal/personality"
)

const (
	colorError   = 0xff0000
	colorNeutral = 0x5865f2
	colorPending = 0xffa500
	colorGood    = 0x00ff00

	maxFieldValue   = 1024
	maxDescription  = 4096
	leaderboardSize = 10
	reviewQueueSize = 15
)

func errorEmbed(title, description string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       colorError,
	}
}

// formatSessionStarted shows the personality and its opening line
func (b *DiscordBot) formatSessionStarted(sess *domain.PracticeSession, profile personality.Profile) *discordgo.MessageEmbed {
	opening := ""
	if len(sess.Transcript) > 0 {
		opening = sess.Transcript[0].Text
	}
	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("🚪 Knocking on %s's door", profile.Name()),
		Description: truncate("*"+opening+"*", maxDescription),
		Color:       colorNeutral,
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:   "Homeowner",
				Value:  truncate(profile.Description(), maxFieldValue),
				Inline: false,
			},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Reply with /practice say · finish with /practice end",
		},
		Timestamp: b.now().Format(time.RFC3339),
	}
}

// formatReply shows one exchange of the conversation
func (b *DiscordBot) formatReply(speaker, message, reply string) *discordgo.MessageEmbed {
	if speaker == "" {
		speaker = "You"
	}
	return &discordgo.MessageEmbed{
		Color: colorNeutral,
		Fields: []*discordgo.MessageEmbedField{
			{Name: speaker, Value: truncate(message, maxFieldValue)},
			{Name: "🏠 Homeowner", Value: truncate(reply, maxFieldValue)},
		},
	}
}

// formatScore formats a session score with its category breakdown
func (b *DiscordBot) formatScore(score *domain.Score, points int, reason domain.EndReason) *discordgo.MessageEmbed {
	fields := make([]*discordgo.MessageEmbedField, 0, len(score.Breakdown)+2)
	for _, c := range score.Breakdown {
		value := fmt.Sprintf("**%d**/100", c.Score)
		if c.Feedback != "" {
			value += "\n" + c.Feedback
		}
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:   fmt.Sprintf("%s (%.0f%%)", capitalizeFirst(c.Label), c.Weight*100),
			Value:  truncate(value, maxFieldValue),
			Inline: true,
		})
	}
	if len(score.Strengths) > 0 {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:  "💪 Strengths",
			Value: truncate(strings.Join(score.Strengths, "\n"), maxFieldValue),
		})
	}
	if len(score.Improvements) > 0 {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:  "🎯 Work On",
			Value: truncate(strings.Join(score.Improvements, "\n"), maxFieldValue),
		})
	}

	footer := fmt.Sprintf("+%d points", points)
	if reason == domain.EndByNatural {
		footer = "The conversation reached its end · " + footer
	}
	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("📋 Session Score: %d (%s)", score.Value, score.Grade),
		Description: truncate(score.Feedback, maxDescription),
		Color:       b.getColorByScore(score.Value),
		Fields:      fields,
		Footer:      &discordgo.MessageEmbedFooter{Text: footer},
		Timestamp:   b.now().Format(time.RFC3339),
	}
}

// formatLeaderboard formats the top of a ranking and the viewer's movement
func (b *DiscordBot) formatLeaderboard(r ledger.Ranking, m ledger.Movement) *discordgo.MessageEmbed {
	var lines []string
	for i, e := range r.Entries {
		if i >= leaderboardSize {
			break
		}
		lines = append(lines, fmt.Sprintf("%s <@%s> · **%d** pts", b.getRankEmoji(e.Rank), e.UserID, e.Points))
	}
	description := "No points on the board yet."
	if len(lines) > 0 {
		description = strings.Join(lines, "\n")
	}

	footer := "You are not ranked yet"
	if e, ok := r.Entry(m.UserID); ok {
		footer = fmt.Sprintf("You are #%d with %d pts (%s)", e.Rank, e.Points, m)
	}
	if len(r.Skipped) > 0 {
		footer += fmt.Sprintf(" · %d unreadable records skipped", len(r.Skipped))
	}

	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("🏆 %s Leaderboard", windowTitle(r.Window)),
		Description: truncate(description, maxDescription),
		Color:       colorNeutral,
		Footer:      &discordgo.MessageEmbedFooter{Text: footer},
		Timestamp:   r.AsOf.Format(time.RFC3339),
	}
}

// formatStats formats a user's all-time stats
func (b *DiscordBot) formatStats(user *domain.UserProfile, s ledger.Stats, weekly domain.LeaderboardEntry) *discordgo.MessageEmbed {
	roles := make([]string, 0, len(s.ApprovedByRole))
	for role, n := range s.ApprovedByRole {
		roles = append(roles, fmt.Sprintf("%s: %d", roleLabel(role), n))
	}
	sort.Strings(roles)
	approved := "None yet"
	if len(roles) > 0 {
		approved = strings.Join(roles, "\n")
	}

	scores := "No scored sessions"
	if s.SessionsCompleted > 0 {
		scores = fmt.Sprintf("Mean %.1f · Best %d", s.MeanScore, s.BestScore)
		if s.SessionsCompleted > 1 {
			scores += fmt.Sprintf(" · σ %.1f", s.ScoreStdDev)
		}
	}

	weeklyRank := "Not ranked"
	if weekly.Rank > 0 {
		weeklyRank = fmt.Sprintf("#%d (%d pts)", weekly.Rank, weekly.Points)
	}

	embed := &discordgo.MessageEmbed{
		Title: fmt.Sprintf("📊 %s's Stats", user.DisplayName),
		Color: colorNeutral,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Niche", Value: capitalizeFirst(string(user.Niche)), Inline: true},
			{Name: "Total Points", Value: fmt.Sprintf("%d", s.TotalPoints()), Inline: true},
			{Name: "This Week", Value: weeklyRank, Inline: true},
			{Name: "Approved Deals", Value: approved, Inline: true},
			{Name: "Pending / Rejected", Value: fmt.Sprintf("%d / %d", s.PendingDeals, s.RejectedDeals), Inline: true},
			{Name: "Practice", Value: fmt.Sprintf("%d sessions\n%s", s.SessionsCompleted, scores), Inline: true},
		},
		Timestamp: b.now().Format(time.RFC3339),
	}
	if s.SessionsUnscored > 0 || s.Skipped > 0 {
		embed.Footer = &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("%d sessions awaiting a score · %d unreadable records skipped", s.SessionsUnscored, s.Skipped),
		}
	}
	return embed
}

// formatPersonalityList lists the built-in and custom personalities
func (b *DiscordBot) formatPersonalityList(profiles []personality.Profile) *discordgo.MessageEmbed {
	var builtins, customs []string
	for _, p := range profiles {
		line := fmt.Sprintf("**%s** `%s`\n%s", p.Name(), p.ID(), p.Description())
		if p.Origin().Kind == personality.BuiltIn {
			builtins = append(builtins, line)
		} else {
			customs = append(customs, line)
		}
	}

	fields := []*discordgo.MessageEmbedField{
		{Name: "Built-in", Value: joinOr(builtins, "None")},
		{Name: "Yours", Value: joinOr(customs, "Create one with /personality create")},
	}
	return &discordgo.MessageEmbed{
		Title:  "🎭 Personalities",
		Color:  colorNeutral,
		Fields: fields,
		Footer: &discordgo.MessageEmbedFooter{Text: "Start with /practice start personality:<id>"},
	}
}

func (b *DiscordBot) formatPersonalityCreated(p *personality.CustomProfile) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("🎭 Created %s", p.Name()),
		Description: truncate(p.Description(), maxDescription),
		Color:       colorGood,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "ID", Value: "`" + p.ID() + "`", Inline: true},
			{Name: "Traits", Value: p.Traits().Render(), Inline: false},
		},
	}
}

// formatDeal shows a deal and where it is in review
func (b *DiscordBot) formatDeal(d *domain.Deal) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Color: colorPending,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Rep", Value: "<@" + d.SubmitterID + ">", Inline: true},
			{Name: "Role", Value: roleLabel(d.Role), Inline: true},
			{Name: "Niche", Value: capitalizeFirst(string(d.Niche)), Inline: true},
			{Name: "Amount", Value: "$" + d.Amount.StringFixed(2), Inline: true},
			{Name: "ID", Value: "`" + d.ID + "`", Inline: false},
		},
		Timestamp: b.now().Format(time.RFC3339),
	}
	if d.Description != "" {
		embed.Description = truncate(d.Description, maxDescription)
	}

	switch d.State {
	case domain.DealApproved:
		embed.Title = fmt.Sprintf("✅ Deal Approved · +%d points", d.Points)
		embed.Color = colorGood
	case domain.DealRejected:
		embed.Title = "❌ Deal Rejected"
		embed.Color = colorError
		if d.DecisionNote != "" {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Reason", Value: truncate(d.DecisionNote, maxFieldValue)})
		}
	default:
		embed.Title = "📝 Deal Submitted"
		embed.Footer = &discordgo.MessageEmbedFooter{Text: "Waiting for an admin to review"}
	}
	return embed
}

// formatPendingDeals lists the oldest deals awaiting review
func (b *DiscordBot) formatPendingDeals(deals []*domain.Deal) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: fmt.Sprintf("🗂️ Pending Deals (%d)", len(deals)),
		Color: colorPending,
	}
	if len(deals) == 0 {
		embed.Description = "Nothing to review."
		return embed
	}

	var lines []string
	for i, d := range deals {
		if i >= reviewQueueSize {
			lines = append(lines, fmt.Sprintf("…and %d more", len(deals)-reviewQueueSize))
			break
		}
		lines = append(lines, fmt.Sprintf("`%s` <@%s> · %s · %s · $%s", d.ID, d.SubmitterID,
			roleLabel(d.Role), capitalizeFirst(string(d.Niche)), d.Amount.StringFixed(2)))
	}
	embed.Description = truncate(strings.Join(lines, "\n"), maxDescription)
	embed.Footer = &discordgo.MessageEmbedFooter{Text: "Review with /deal approve or /deal reject"}
	return embed
}

func (b *DiscordBot) formatRegistered(u *domain.UserProfile, created bool) *discordgo.MessageEmbed {
	title := "👋 Welcome aboard, " + u.DisplayName
	if !created {
		title = "✏️ Profile updated"
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "Niche", Value: capitalizeFirst(string(u.Niche)), Inline: true},
	}
	if u.ExperienceLevel != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Experience", Value: u.ExperienceLevel, Inline: true})
	}
	if u.RoleType != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Role", Value: capitalizeFirst(u.RoleType), Inline: true})
	}
	return &discordgo.MessageEmbed{
		Title:  title,
		Color:  colorGood,
		Fields: fields,
		Footer: &discordgo.MessageEmbedFooter{Text: "Try /practice start personality:owl"},
	}
}

// getColorByScore returns a color based on a 0-100 score
func (b *DiscordBot) getColorByScore(value int) int {
	switch {
	case value >= 85:
		return 0x00ff00 // Green
	case value >= 70:
		return 0x9acd32 // Yellow-green
	case value >= 55:
		return 0xffa500 // Orange
	default:
		return 0xff4500 // Red-orange
	}
}

// getRankEmoji returns an emoji for a leaderboard rank
func (b *DiscordBot) getRankEmoji(rank int) string {
	switch rank {
	case 1:
		return "🥇"
	case 2:
		return "🥈"
	case 3:
		return "🥉"
	default:
		return fmt.Sprintf("`#%d`", rank)
	}
}

func windowTitle(w domain.Window) string {
	switch w {
	case domain.Weekly:
		return "Weekly"
	case domain.Monthly:
		return "Monthly"
	default:
		return "All-Time"
	}
}

func roleLabel(r domain.DealRole) string {
	if r == domain.RoleSelfGenerated {
		return "Self-generated"
	}
	return capitalizeFirst(string(r))
}

func joinOr(lines []string, empty string) string {
	if len(lines) == 0 {
		return empty
	}
	return truncate(strings.Join(lines, "\n\n"), maxFieldValue)
}

// truncate shortens s to at most limit runes
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit-1]) + "…"
}

// capitalizeFirst capitalizes the first letter of a string
func capitalizeFirst(s string) string {
	if s == "" {
		return ""
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
