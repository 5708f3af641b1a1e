package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/tazhate/studentbot/config"
	"github.com/tazhate/studentbot/internal/api"
	"github.com/tazhate/studentbot/internal/bot"
	"github.com/tazhate/studentbot/internal/clients/caldav"
	"github.com/tazhate/studentbot/internal/clients/ursei"
	"github.com/tazhate/studentbot/internal/domain"
	"github.com/tazhate/studentbot/internal/notify"
	"github.com/tazhate/studentbot/internal/scheduler"
	"github.com/tazhate/studentbot/internal/service"
	"github.com/tazhate/studentbot/internal/storage"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Загрузка конфига
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация storage
	files, err := storage.NewFiles(cfg.DataDir)
	if err != nil {
		log.Fatalf("Failed to init data dir: %v", err)
	}
	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to init storage: %v", err)
	}
	defer store.Close()

	fetcher := ursei.NewClient(cfg.ScheduleAPIURL, cfg.ScheduleLegacyURL, cfg.ScheduleSource, cfg.HTTPTimeout)

	// Уведомления уходят в Telegram, без бота только в лог
	notifier := &notify.Fallback{Secondary: notify.Log{}}

	// Инициализация сервисов
	settingsSvc := service.NewSettingsService(files)
	scheduleSvc := service.NewScheduleService(files, settingsSvc, fetcher, store, notifier, service.ScheduleOptions{
		DiffKey:       domain.ParseDiffKey(cfg.DiffKey),
		MaxAge:        cfg.MaxAge,
		Timezone:      cfg.Timezone,
		DefaultGroups: cfg.GroupIDs,
	})
	noteSvc := service.NewNoteService(files, scheduleSvc)
	scheduleSvc.OnGroupChange(noteSvc.Clear)

	if err := scheduleSvc.Load(); err != nil {
		log.Printf("Error loading cached schedule: %v", err)
	}
	if err := noteSvc.Load(); err != nil {
		log.Printf("Error loading notes: %v", err)
	}

	// Контекст для graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mux := http.NewServeMux()
	api.New(cfg, scheduleSvc, noteSvc, settingsSvc).Register(mux)

	// Инициализация бота
	var tgBot *bot.Bot
	if cfg.TelegramToken != "" {
		tgBot, err = bot.New(cfg, store, scheduleSvc, noteSvc, settingsSvc)
		if err != nil {
			log.Fatalf("Failed to init bot: %v", err)
		}
		notifier.Primary = tgBot
	} else {
		log.Println("TELEGRAM_BOT_TOKEN not set, running without bot")
	}

	// Инициализация scheduler
	sched := scheduler.New(cfg, scheduleSvc, noteSvc, settingsSvc, notifier)
	if cfg.CalDAVEnabled() {
		sched.SetSyncer(caldav.NewClient(cfg.CalDAVURL, cfg.CalDAVUsername, cfg.CalDAVPassword, cfg.CalDAVCalendar, cfg.Timezone, cfg.HTTPTimeout))
	}

	// Свежее расписание при старте, если кэш устарел
	go func() {
		refreshed, err := scheduleSvc.EnsureFresh(ctx)
		if err != nil {
			log.Printf("Startup refresh: %v", err)
		} else if refreshed {
			log.Println("Schedule refreshed on startup")
		}
	}()

	// Запуск scheduler в горутине
	go func() {
		if err := sched.Start(ctx); err != nil {
			log.Printf("Scheduler error: %v", err)
		}
	}()

	// Запуск бота в горутине
	if tgBot != nil {
		go func() {
			if err := tgBot.Start(ctx, mux); err != nil {
				log.Printf("Bot error: %v", err)
			}
		}()
	}

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("HTTP server listening on :%s", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	log.Println("StudentBot started")

	// Ожидание сигнала завершения
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")

	// Graceful shutdown
	cancel()
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error stopping HTTP server: %v", err)
	}

	log.Println("StudentBot stopped")
}
