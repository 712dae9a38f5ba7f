// Package main provides the Flowdeck tracker, the consumer that persists
// task transition events produced by the execution engine.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/flowdeck/flowdeck/pkg/cmd"
	"github.com/flowdeck/flowdeck/pkg/engine"
	"github.com/flowdeck/flowdeck/pkg/log"
	"github.com/flowdeck/flowdeck/pkg/otelhelper"
)

const defaultSessionCacheTTL = 24 * time.Hour

func main() {
	app := &cli.Command{
		Name:                  "flowdeck-tracker",
		Usage:                 "Track task execution state from engine events",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "tracker-id",
				Aliases: []string{"id"},
				Usage:   "Custom tracker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("TRACKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus provider (kafka, gochannel)",
				Required: true,
				Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the session event cache (disabled when empty)",
				Value:   "",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			trackerID := command.String("tracker-id")
			if trackerID == "" {
				trackerID = fmt.Sprintf("tracker-%s", uuid.New().String()[:8])
			}

			logger := log.WithModule("tracker").With("tracker_id", trackerID)

			logger.InfoContext(ctx, "Initializing Flowdeck Tracker")

			tracer, err := otelhelper.NewTracer(ctx, "flowdeck-tracker")
			if err != nil {
				return fmt.Errorf("failed to initialize tracer: %w", err)
			}

			eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			persistence := cmd.MustNewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			var sessionCache *engine.SessionCache

			if redisURL := command.String("redis-url"); redisURL != "" {
				var err error

				sessionCache, err = engine.NewSessionCache(logger, redisURL, defaultSessionCacheTTL)
				if err != nil {
					return fmt.Errorf("failed to create session cache: %w", err)
				}

				defer func() {
					if err := sessionCache.Close(); err != nil {
						logger.ErrorContext(ctx, "Failed to close session cache", "error", err)
					}
				}()
			}

			tracker := NewTracker(
				trackerID,
				persistence,
				eventBus,
				sessionCache,
				tracer,
				logger,
			)

			tracker.Start(ctx)

			return nil
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
