package main

import (
	"context"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"mailnexy/config"
	"mailnexy/internal/clock"
	"mailnexy/internal/dayadvancer"
	"mailnexy/internal/dispatcher"
	"mailnexy/internal/engagement"
	"mailnexy/internal/mailclient"
	"mailnexy/internal/planner"
	"mailnexy/internal/replymatcher"
	"mailnexy/internal/score"
	"mailnexy/internal/spamrecovery"
	"mailnexy/internal/store"
	"mailnexy/middleware"
	"mailnexy/models"
	"mailnexy/routes"
	"mailnexy/worker"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if err := config.LoadConfig(); err != nil {
		logger.WithError(err).Fatal("failed to load configuration")
	}
	if err := config.VerifyEncryptionKey(); err != nil {
		logger.WithError(err).Fatal("encryption key self-check failed")
	}
	if err := config.ConnectDB(); err != nil {
		logger.WithError(err).Fatal("failed to connect to database")
	}

	realClock := clock.Real{}
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))

	clients := mailclient.NewRegistry()
	clients.Register(models.ProviderOther, mailclient.NewSMTPIMAPClient())
	clients.Register(models.ProviderGmail, mailclient.NewOAuth2GmailClient(config.AppConfig.Google.ClientID, config.AppConfig.Google.ClientSecret))

	st := store.New(config.DB, config.AppConfig.Plan.GraceWindow, config.AppConfig.Plan.FireWindow)
	generator := mailclient.NewStaticContentGenerator(rnd)
	businessHours := clock.Config{StartHour: config.AppConfig.BusinessHoursStart, EndHour: config.AppConfig.BusinessHoursEnd}
	bands := planner.BandWeights{Peak: config.AppConfig.Bands.Peak, Normal: config.AppConfig.Bands.Normal, Low: config.AppConfig.Bands.Low}
	timing := engagement.Timing{
		OpenDelayMin:    config.AppConfig.Engagement.OpenDelayMin,
		OpenDelayMax:    config.AppConfig.Engagement.OpenDelayMax,
		ReplyDelayMin:   config.AppConfig.Engagement.ReplyDelayMin,
		ReplyDelayMax:   config.AppConfig.Engagement.ReplyDelayMax,
		StarProbability: config.AppConfig.Engagement.StarProbability,
	}

	dispatcherEngine := dispatcher.New(config.DB, st, realClock, clients, generator, rnd, logger, businessHours, bands)
	engagementEngine := engagement.New(config.DB, realClock, clients, rnd, logger, timing)
	replyMatcher := replymatcher.New(config.DB, clients, logger)
	spamRecovery := spamrecovery.New(config.DB, clients, logger)
	dayAdvancer := dayadvancer.New(config.DB, realClock, logger)
	scoreEngine := score.New(config.DB, realClock, logger)

	ctx, cancel := context.WithCancel(context.Background())

	workers := []interface {
		Start(context.Context)
	}{
		worker.NewDispatcherWorker(dispatcherEngine, config.AppConfig.Intervals.Dispatch, logger),
		worker.NewEngagementWorker(engagementEngine, config.AppConfig.Intervals.Engagement, logger),
		worker.NewReplyMatcherWorker(replyMatcher, realClock, config.AppConfig.Intervals.ReplyPoll, logger),
		worker.NewSpamRecoveryWorker(spamRecovery, realClock, config.AppConfig.Intervals.SpamRecovery, logger),
		worker.NewDayAdvancerWorker(dayAdvancer, config.AppConfig.Intervals.DayAdvance, logger),
		worker.NewScoreWorker(scoreEngine, config.AppConfig.Intervals.Score, logger),
		worker.NewPurgeWorker(st, realClock, config.AppConfig.Plan.Retention, logger),
	}
	for _, w := range workers {
		go w.Start(ctx)
	}

	app := fiber.New()
	app.Use(middleware.CORS())

	routes.SetupRoutes(app, routes.Deps{
		DB:          config.DB,
		Store:       st,
		Clients:     clients,
		ScoreEngine: scoreEngine,
		Clock:       realClock,
		Log:         logger,
	})

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "running", "version": "1.0.0"})
	})

	go func() {
		logger.WithField("port", config.AppConfig.ServerPort).Info("server starting")
		if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	cancel()
	_ = app.ShutdownWithTimeout(10 * time.Second)
}
