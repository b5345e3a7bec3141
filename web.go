package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const timeout time.Duration = 10 * time.Second

func securityHeaders(cfg *Config, w http.ResponseWriter) {
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	if cfg.scheme() == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
	}
}

func realIP(r *http.Request) string {
	host, port, _ := net.SplitHostPort(r.RemoteAddr)
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	} else if ip := r.Header.Get("X-Real-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	}
	if net.ParseIP(host) != nil && strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		return host + ":" + port
	}
	return host
}

// getLanIPv4List collects the non-loopback IPv4 addresses of this
// machine, so the startup log can print URLs reachable from the team
// computers on the same network.
func getLanIPv4List() []string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil
	}

	var out []string
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			out = append(out, ip4.String())
		}
	}
	return out
}

func setupLogging(cfg *Config) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if cfg.verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}

func ServePage(ctx context.Context, cfg *Config, args []string) error {
	var err error

	timeZone := os.Getenv("TZ")
	if timeZone != "" {
		time.Local, err = time.LoadLocation(timeZone)
		if err != nil {
			return err
		}
	}

	setupLogging(cfg)

	log.Info().Str("version", releaseVersion).Msg("starting matchup")

	if err := os.MkdirAll(cfg.uploadDir, 0o755); err != nil {
		return fmt.Errorf("failed to create upload dir: %w", err)
	}

	clock := clockwork.NewRealClock()
	history := loadHistory(cfg.historyFile)
	hosts := newHostTracker(cfg)

	hub := newHub(cfg, clock, history, hosts)
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.run(hubCtx)

	mux := httprouter.New()

	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, i any) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusInternalServerError)

		io.WriteString(w, newPage("Server Error", "An error has occurred. Please try again."))
	}

	cfg.prefix = strings.TrimSuffix(cfg.prefix, "/")

	mux.GET(cfg.prefix+"/ws", serveWS(hub))

	mux.POST(cfg.prefix+"/upload", serveUpload(cfg, hosts))
	mux.GET(cfg.prefix+"/uploads/:file", serveUploads(cfg))

	mux.GET(cfg.prefix+"/healthz", serveHealthCheck(cfg))
	mux.GET(cfg.prefix+"/api/status", serveStatus(hosts))
	mux.GET(cfg.prefix+"/api/history", serveHistory(hub))

	mux.GET(cfg.prefix+"/robots.txt", serveRobots(cfg))
	mux.GET(cfg.prefix+"/version", serveVersion(cfg))

	mux.GET(cfg.prefix+"/qr/:page", serveQR(cfg))

	if cfg.profile {
		registerProfileHandlers(cfg, mux)
	}

	// Everything else falls through to the page files (admin, team
	// boards, dashboard, and any assets next to them).
	mux.NotFound = servePages(cfg)

	handler := cors.AllowAll().Handler(captureHost(hosts, mux))

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.bind, strconv.Itoa(cfg.port)),
		Handler:           handler,
		IdleTimeout:       10 * time.Minute,
		ReadTimeout:       timeout,
		ReadHeaderTimeout: timeout,
	}

	go func() {
		var err error
		log.Info().Str("addr", fmt.Sprintf("%s://%s%s/", cfg.scheme(), srv.Addr, cfg.prefix)).Msg("listening")
		if cfg.tlsKey != "" && cfg.tlsCert != "" {
			err = srv.ListenAndServeTLS(cfg.tlsCert, cfg.tlsKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
		}
	}()

	for _, page := range []string{"admin", "teamA", "teamB", "dashboard"} {
		log.Info().Str("page", page).Str("url", fmt.Sprintf("http://localhost:%d%s/%s", cfg.port, cfg.prefix, page)).Msg("open in your browser")
	}
	if lanIPs := getLanIPv4List(); len(lanIPs) > 0 {
		for _, page := range []string{"admin", "teamA", "teamB", "dashboard"} {
			log.Info().Str("page", page).Str("url", fmt.Sprintf("http://%s:%d%s/%s", lanIPs[0], cfg.port, cfg.prefix, page)).Msg("reachable on the local network")
		}
	}

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	return nil
}
