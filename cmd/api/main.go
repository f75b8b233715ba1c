package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"eventguard.org/internal/alert"
	"eventguard.org/internal/auth"
	"eventguard.org/internal/directory"
	"eventguard.org/internal/httpapi"
	"eventguard.org/internal/incident"
	"eventguard.org/internal/live"
	"eventguard.org/internal/mailer"
	"eventguard.org/internal/media"
	"eventguard.org/internal/obs"
	"eventguard.org/internal/store/pg"
	"eventguard.org/internal/vision"
)

var version = "0.3.0"

func main() {
	_ = godotenv.Load()
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("EVENTGUARD_COMMIT"))

	// Persistence: Postgres when a DSN is configured, in-memory otherwise.
	var (
		users     directory.Store
		alerts    alert.Ledger
		incidents incident.Store
		ready     httpapi.ReadyProbe
	)
	if dsn := os.Getenv("EVENTGUARD_PG_DSN"); dsn != "" {
		store, err := pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer store.Close()
		users = store
		alerts = store
		incidents = store.Incidents()
		ready = httpapi.ReadyProbe{DB: store.DB()}
		log.Printf("using postgres storage")
	} else {
		users = directory.NewInMemory()
		alerts = alert.NewInMemory()
		incidents = incident.NewInMemory()
		log.Printf("EVENTGUARD_PG_DSN not set, using in-memory storage")
	}

	var dirOpts []directory.Option
	if smtp := mailer.NewSMTPFromEnv(); smtp != nil {
		base := os.Getenv("EVENTGUARD_PUBLIC_URL")
		if base == "" {
			base = "http://localhost:3000"
		}
		dirOpts = append(dirOpts, directory.WithMailer(smtp, base))
	}
	dir := directory.NewService(users, dirOpts...)

	uploadDir := os.Getenv("EVENTGUARD_UPLOAD_DIR")
	if uploadDir == "" {
		uploadDir = "uploads"
	}
	mediaStore, err := media.NewStore(uploadDir, "/uploads")
	if err != nil {
		log.Fatalf("media store: %v", err)
	}

	registry := live.NewRegistry(auth.NewAuthenticator(dir))
	gateway := live.NewGateway(registry, alerts)

	api := httpapi.New(httpapi.Config{
		Directory: dir,
		Alerts:    alerts,
		Incidents: incidents,
		Gateway:   gateway,
		Authn:     auth.NewAuthenticator(dir),
		Vision:    vision.NewClientFromEnv(),
		Media:     mediaStore,
		Ready:     ready,
		Version:   version,
	})

	addr := os.Getenv("EVENTGUARD_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      0, // live sockets stay open
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting eventguard-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
