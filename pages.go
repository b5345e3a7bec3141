/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"
)

// routeToFile maps the well-known page routes to files in the pages
// directory. The browser clients themselves are outside the
// coordinator; we only serve them.
var routeToFile = map[string]string{
	"/":               "admin.html",
	"/admin":          "admin.html",
	"/admin.html":     "admin.html",
	"/dashboard":      "dashboard.html",
	"/dashboard.html": "dashboard.html",
	"/teamA":          "teamA.html",
	"/teamA.html":     "teamA.html",
	"/teamB":          "teamB.html",
	"/teamB.html":     "teamB.html",
	"/index.html":     "index.html",
}

var contentTypeByExt = map[string]string{
	".html": "text/html; charset=utf-8",
	".css":  "text/css; charset=utf-8",
	".js":   "application/javascript; charset=utf-8",
	".json": "application/json; charset=utf-8",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".ico":  "image/x-icon",
}

// servePages resolves page routes and direct file paths against the
// pages directory, refusing anything that escapes it. It backs the
// router's NotFound handler, so explicit routes always win.
func servePages(cfg *Config) http.HandlerFunc {
	root, err := filepath.Abs(cfg.pagesDir)
	if err != nil {
		root = cfg.pagesDir
	}

	return func(w http.ResponseWriter, r *http.Request) {
		urlPath := strings.TrimPrefix(r.URL.Path, cfg.prefix)
		if urlPath == "" {
			urlPath = "/"
		}

		mapped, ok := routeToFile[urlPath]
		if !ok {
			mapped = strings.TrimPrefix(urlPath, "/")
		}

		absPath := filepath.Join(root, filepath.Clean("/"+mapped))
		if !strings.HasPrefix(absPath, root) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		info, err := os.Stat(absPath)
		if err != nil || info.IsDir() {
			http.Error(w, "Not Found", http.StatusNotFound)
			return
		}

		data, err := os.ReadFile(absPath)
		if err != nil {
			http.Error(w, "Not Found", http.StatusNotFound)
			return
		}

		contentType := contentTypeByExt[strings.ToLower(filepath.Ext(absPath))]
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "no-store, max-age=0")
		securityHeaders(cfg, w)

		_, _ = w.Write(data)
	}
}

func serveHealthCheck(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)

		_, _ = w.Write([]byte("Ok\n"))
	}
}

func serveVersion(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)

		_, _ = w.Write([]byte("matchup v" + releaseVersion + "\n"))
	}
}

func serveRobots(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		data := "User-agent: *\nDisallow: /\n"

		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		securityHeaders(cfg, w)

		_, _ = w.Write([]byte(data))
	}
}

// serveQR renders a PNG QR code linking to one of the game pages, so a
// team machine can be pointed at its board by scanning a phone.
func serveQR(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		page := p.ByName("page")
		if _, ok := routeToFile["/"+page]; !ok {
			http.Error(w, "unknown page", http.StatusBadRequest)
			return
		}

		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}

		target := scheme + "://" + r.Host + cfg.prefix + "/" + page

		const qrSize = 320
		png, err := qrcode.Encode(target, qrcode.Medium, qrSize)
		if err != nil {
			log.Warn().Err(err).Str("target", target).Msg("qr generation failed")
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}
}
