package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	precognition "github.com/SimonDaKappa/go-precognition"
)

type signup struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *signup) Validate() error {
	ve := precognition.NewValidationError("The given data was invalid.")
	if strings.TrimSpace(s.Name) == "" {
		ve.Add("name", "The name field is required.")
	}
	if !strings.Contains(s.Email, "@") {
		ve.Add("email", "The email must be a valid email address.")
	}
	if len(s.Password) < 8 {
		ve.Addf("password", "The password must be at least %d characters.", 8)
	}
	return ve.OrNil()
}

func main() {
	mode := flag.String("mode", "serve", "mode: serve | check")
	addr := flag.String("addr", "127.0.0.1:8080", "listen address (serve) or target host:port (check)")
	configPath := flag.String("config", "", "TOML config file (defaults to PRECOGNITION_* env vars)")
	only := flag.String("only", "", "check: comma-separated keys to validate")
	payload := flag.String("data", `{"name":"","email":"","password":""}`, "check: JSON form data")
	flag.Parse()

	log := precognition.NewConsoleLogger("precogdemo", os.Stderr)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	switch *mode {
	case "serve":
		err = serve(*addr, cfg, log)
	case "check":
		err = check(*addr, cfg, *payload, *only, log)
	default:
		err = fmt.Errorf("unknown mode: %s", *mode)
	}
	if err != nil {
		log.Fatal().Err(err).Msg(*mode)
	}
}

func loadConfig(path string) (precognition.Config, error) {
	if path != "" {
		return precognition.LoadConfigFile(path)
	}
	return precognition.LoadConfigFromEnv()
}

func serve(addr string, cfg precognition.Config, log zerolog.Logger) error {
	srv, err := precognition.NewServer(precognition.ServerOpts{Config: cfg, Logger: &log})
	if err != nil {
		return err
	}

	users, err := srv.Handler(precognition.EventHandler{
		OnRequest: []precognition.RequestValidator{
			func(r *http.Request) error {
				var s signup
				return precognition.DecodeRequest(r, &s)
			},
		},
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Info().Str("path", r.URL.Path).Msg("user created")
			w.WriteHeader(http.StatusCreated)
		}),
	})
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("POST /users", users)

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Middleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("listening")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func check(addr string, cfg precognition.Config, payload, only string, log zerolog.Logger) error {
	cfg.BackendValidation = true
	cfg.EnableFlatClientErrorParser = true

	transport, err := precognition.NewHTTPTransport(precognition.HTTPTransportOpts{
		URL:            "http://" + addr + "/users",
		Config:         cfg,
		StrictProtocol: true,
		Logger:         &log,
	})
	if err != nil {
		return err
	}

	form, err := precognition.NewForm(precognition.Data{"name": "", "email": "", "password": ""}, transport, precognition.FormOpts{
		Config: cfg,
		Logger: &log,
	})
	if err != nil {
		return err
	}
	defer form.Close()

	if err := form.MergePatch([]byte(payload)); err != nil {
		return err
	}

	var keys []string
	for _, key := range strings.Split(only, ",") {
		if key = strings.TrimSpace(key); key != "" {
			keys = append(keys, key)
		}
	}

	form.Validate(keys...)
	form.Wait()

	if err := form.Err(); err != nil {
		return err
	}
	if form.Valid(keys...) {
		fmt.Println("valid")
		return nil
	}
	for key, msg := range form.Errors() {
		fmt.Printf("%s: %s\n", key, msg)
	}
	return nil
}
