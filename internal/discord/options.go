package discord

import (
	"strings"

	"github.com/bwmarrin/discordgo"
)

// Options indexes command options by name.
type Options map[string]*discordgo.ApplicationCommandInteractionDataOption

// ParseOptions flattens a command's options. For commands with subcommands it
// returns the subcommand name and that subcommand's options.
func ParseOptions(options []*discordgo.ApplicationCommandInteractionDataOption) (string, Options) {
	sub := ""
	if len(options) == 1 && options[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		sub = options[0].Name
		options = options[0].Options
	}
	out := make(Options, len(options))
	for _, opt := range options {
		out[opt.Name] = opt
	}
	return sub, out
}

// String returns a trimmed string option, or "" if absent.
func (o Options) String(name string) string {
	if opt, ok := o[name]; ok {
		return strings.TrimSpace(opt.StringValue())
	}
	return ""
}

// Int returns an integer option, or def if absent.
func (o Options) Int(name string, def int) int {
	if opt, ok := o[name]; ok {
		return int(opt.IntValue())
	}
	return def
}

// Float returns a number option and whether it was given.
func (o Options) Float(name string) (float64, bool) {
	if opt, ok := o[name]; ok {
		return opt.FloatValue(), true
	}
	return 0, false
}

// UserID returns the id of a user option, or "" if absent.
func (o Options) UserID(name string) string {
	if opt, ok := o[name]; ok {
		if u := opt.UserValue(nil); u != nil {
			return u.ID
		}
	}
	return ""
}
