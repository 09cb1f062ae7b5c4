package discord

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
)

// SetupCloseHandler creates a handler that will catch SIGINT and SIGTERM signals
// and gracefully close the application
func SetupCloseHandler(log zerolog.Logger, cleanupFunc func() error) {
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-c
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
		if err := cleanupFunc(); err != nil {
			log.Error().Err(err).Msg("Error during cleanup")
			os.Exit(1)
		}
		os.Exit(0)
	}()
}

func hasRole(roles []string, roleID string) bool {
	if roleID == "" {
		return false
	}
	for _, r := range roles {
		if r == roleID {
			return true
		}
	}
	return false
}

func displayName(u *discordgo.User) string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}
