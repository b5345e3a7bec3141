/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
)

const maxUploadBytes = 10 << 20

var extByMime = map[string]string{
	"image/jpeg": "jpg",
	"image/jpg":  "jpg",
	"image/png":  "png",
	"image/webp": "webp",
	"image/gif":  "gif",
}

var mimeByExt = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
}

// hostTracker remembers the most recent Host header seen on any request,
// so shared image URLs can be rewritten to an address other machines on
// the network can actually reach. Unlike the game session this is
// touched from HTTP handler goroutines, hence the lock.
type hostTracker struct {
	mu       sync.RWMutex
	host     string
	fallback string
}

func newHostTracker(cfg *Config) *hostTracker {
	fallback := "localhost:" + strconv.Itoa(cfg.port)
	if cfg.bind != "" && cfg.bind != "0.0.0.0" && cfg.bind != "::" {
		fallback = net.JoinHostPort(cfg.bind, strconv.Itoa(cfg.port))
	}
	return &hostTracker{fallback: fallback}
}

func (t *hostTracker) observe(host string) {
	if host == "" {
		return
	}
	t.mu.Lock()
	t.host = host
	t.mu.Unlock()
}

func (t *hostTracker) get() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.host != "" {
		return t.host
	}
	return t.fallback
}

// captureHost records the Host header of every request before routing.
func captureHost(t *hostTracker, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.observe(r.Host)
		next.ServeHTTP(w, r)
	})
}

// normalizeSharedImageURL rewrites localhost-style hosts in a shared
// image URL to the tracked public host, so team machines resolve it.
func normalizeSharedImageURL(raw, publicHost string) string {
	if raw == "" {
		return raw
	}

	base, err := url.Parse("http://" + publicHost)
	if err != nil {
		return raw
	}
	u, err := base.Parse(raw)
	if err != nil {
		return raw
	}

	if u.Hostname() == "localhost" || u.Hostname() == "127.0.0.1" {
		u.Host = publicHost
	}
	return u.String()
}

var dataURLPattern = regexp.MustCompile(`^data:(image/[a-zA-Z0-9.+-]+);base64,(.+)$`)

// saveDataURLImage persists an inline data: image to the upload
// directory and returns its shareable URL.
func saveDataURLImage(cfg *Config, hosts *hostTracker, dataURL string) (string, bool) {
	m := dataURLPattern.FindStringSubmatch(dataURL)
	if m == nil {
		return "", false
	}

	ext, ok := extByMime[strings.ToLower(m[1])]
	if !ok {
		ext = "jpg"
	}

	data, err := base64.StdEncoding.DecodeString(m[2])
	if err != nil {
		log.Warn().Err(err).Msg("failed to decode inline image")
		return "", false
	}

	fileName := "current-" + uuid.NewString() + "." + ext
	absPath := filepath.Join(cfg.uploadDir, fileName)
	if err := os.WriteFile(absPath, data, 0o644); err != nil {
		log.Error().Err(err).Str("path", absPath).Msg("failed to save inline image")
		return "", false
	}

	return "http://" + hosts.get() + "/uploads/" + fileName, true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store, max-age=0")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type uploadResponse struct {
	OK    bool   `json:"ok"`
	URL   string `json:"url,omitempty"`
	Error string `json:"error,omitempty"`
}

// serveUpload accepts raw image bytes and returns a normalized absolute
// URL other clients can load.
func serveUpload(cfg *Config, hosts *hostTracker) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		contentType := strings.ToLower(strings.TrimSpace(strings.Split(r.Header.Get("Content-Type"), ";")[0]))
		ext, ok := extByMime[contentType]
		if !ok {
			writeJSON(w, http.StatusBadRequest, uploadResponse{Error: "Unsupported image type"})
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeJSON(w, http.StatusRequestEntityTooLarge, uploadResponse{Error: "Upload too large (max 10MB)"})
				return
			}
			writeJSON(w, http.StatusInternalServerError, uploadResponse{Error: err.Error()})
			return
		}
		if len(body) == 0 {
			writeJSON(w, http.StatusBadRequest, uploadResponse{Error: "Empty upload"})
			return
		}

		fileName := "current-" + uuid.NewString() + "." + ext
		absPath := filepath.Join(cfg.uploadDir, fileName)
		if err := os.WriteFile(absPath, body, 0o644); err != nil {
			log.Error().Err(err).Str("path", absPath).Msg("failed to store upload")
			writeJSON(w, http.StatusInternalServerError, uploadResponse{Error: "Failed to store upload"})
			return
		}

		uploadURL := "http://" + hosts.get() + "/uploads/" + fileName

		log.Debug().
			Str("file", fileName).
			Str("size", humanReadableSize(int64(len(body)))).
			Str("from", realIP(r)).
			Dur("elapsed", time.Since(startTime).Round(time.Microsecond)).
			Msg("image uploaded")

		writeJSON(w, http.StatusOK, uploadResponse{OK: true, URL: uploadURL})
	}
}

// serveUploads serves previously uploaded images.
func serveUploads(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		fileName := filepath.Base(p.ByName("file"))
		if fileName == "." || fileName == "/" || fileName == ".." {
			http.Error(w, "Not Found", http.StatusNotFound)
			return
		}

		absPath := filepath.Join(cfg.uploadDir, fileName)
		data, err := os.ReadFile(absPath)
		if err != nil {
			http.Error(w, "Not Found", http.StatusNotFound)
			return
		}

		contentType := mimeByExt[strings.ToLower(filepath.Ext(fileName))]
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "no-store, max-age=0")
		_, _ = w.Write(data)
	}
}

type statusResponse struct {
	OK bool   `json:"ok"`
	WS string `json:"ws"`
}

func serveStatus(hosts *hostTracker) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writeJSON(w, http.StatusOK, statusResponse{OK: true, WS: "ws://" + hosts.get()})
	}
}

type historyResponse struct {
	OK      bool           `json:"ok"`
	History []historyEntry `json:"history"`
}

// serveHistory exposes the log for the admin dashboard. The snapshot is
// requested from the hub goroutine, which owns the log.
func serveHistory(h *Hub) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writeJSON(w, http.StatusOK, historyResponse{OK: true, History: h.historySnapshot()})
	}
}
