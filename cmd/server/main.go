package main

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/evgrid/qr-charging/internal/config"
	"github.com/evgrid/qr-charging/internal/database"
	"github.com/evgrid/qr-charging/internal/handler"
	"github.com/evgrid/qr-charging/internal/payment"
	"github.com/evgrid/qr-charging/internal/queue"
	"github.com/evgrid/qr-charging/internal/repository"
	"github.com/evgrid/qr-charging/internal/router"
	"github.com/evgrid/qr-charging/internal/service"
	"github.com/evgrid/qr-charging/internal/sms"
	"github.com/evgrid/qr-charging/internal/timeslot"
)

func main() {
	_ = godotenv.Load() // optional .env; real deployments set the environment directly

	cfg := config.Load()
	rlCfg := config.LoadRateLimitConfig()

	var logger *zap.Logger
	var err error
	if cfg.Env == "prod" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database open: %v", err)
	}
	defer db.Close()

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Printf("redis unavailable; otp rate limiting disabled")
	}

	var events service.EventSink
	if cfg.RabbitURL != "" {
		events = service.NewEventPublisher(cfg.RabbitURL)
		go func() {
			if err := queue.StartSettlementConsumer(cfg.RabbitURL); err != nil {
				log.Printf("settlement consumer stopped: %v", err)
			}
		}()
	}

	svc := service.NewQRService(service.Deps{
		DB:           db,
		Guests:       repository.NewGuestRepo(db),
		Reservations: repository.NewReservationRepo(db),
		Payments:     repository.NewPaymentRepo(db),
		Timeslots:    timeslot.New(cfg.BookingServiceURL, cfg.BookingServiceAuth),
		Tokens:       payment.NewTokenSource(cfg.AuthModuleURL, cfg.AuthModuleGrantType, cfg.AuthModuleBasicAuth),
		GCash:        payment.NewGCashClient(cfg.GCashSourceURL, cfg.GCashPaymentURL),
		Maya:         payment.NewMayaClient(cfg.MayaPaymentURL, cfg.MayaResolveURL),
		SMS:          sms.NewClient(cfg.SMSAPIURL, cfg.SMSAPIKey),
		Events:       events,
		Logger:       logger,
	})

	e := echo.New()
	e.HideBanner = true
	router.Register(e, handler.NewQRHandler(svc), cfg, rlCfg, rdb)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
