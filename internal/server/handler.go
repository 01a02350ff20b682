package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/randomizedcoder/go-callapp/internal/charset"
	"github.com/randomizedcoder/go-callapp/internal/config"
	"github.com/randomizedcoder/go-callapp/internal/launcher"
	"github.com/randomizedcoder/go-callapp/internal/process"
)

// SuccessBody is returned when a detached launch was accepted.
const SuccessBody = "Success"

type launchHandler struct {
	launcher Launcher
	prefix   string
	charset  charset.Charset
	logger   *slog.Logger
	reject   func(reason string)
}

func (h *launchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		writeText(w, h.charset, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	name, ok := AppName(r.URL.Path, h.prefix)
	var app config.AppDefinition
	if ok {
		app, ok = h.launcher.Lookup(name)
	}
	if !ok {
		h.reject(RejectUnknownApp)
		h.logger.Warn("unknown_app", "path", r.URL.Path)
		writeText(w, h.charset, http.StatusNotFound, notDefinedMessage(r.URL.Path))
		return
	}

	query := r.URL.Query()
	if r.URL.RawQuery != "" {
		h.logger.Info("launch_request", "app", name, "query", r.URL.RawQuery, "remote", r.RemoteAddr)
	}
	extra := ContextArgs(app.ContextArgNames(), query)

	if wantsWait(app, query) {
		h.launchAndWait(w, r, name, extra)
		return
	}

	if _, err := h.launcher.LaunchAsync(r.Context(), name, extra); err != nil {
		h.refuse(w, name, err)
		return
	}
	writeText(w, h.charset, http.StatusOK, SuccessBody)
}

func (h *launchHandler) launchAndWait(w http.ResponseWriter, r *http.Request, name, extra string) {
	out, err := h.launcher.Launch(r.Context(), name, extra)
	if err != nil {
		h.refuse(w, name, err)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(StatusFor(out.State))
	if err := json.NewEncoder(w).Encode(out); err != nil {
		h.logger.Debug("response_write_failed", "app", name, "error", err)
	}
}

// refuse answers a launch that never started.
func (h *launchHandler) refuse(w http.ResponseWriter, name string, err error) {
	switch {
	case errors.Is(err, launcher.ErrShuttingDown):
		h.reject(RejectShuttingDown)
		writeText(w, h.charset, http.StatusServiceUnavailable, "Service is shutting down")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		h.reject(RejectBusy)
		h.logger.Warn("launch_refused_busy", "app", name)
		writeText(w, h.charset, http.StatusServiceUnavailable, "Too many concurrent invocations")
	case errors.Is(err, launcher.ErrUnknownApp):
		h.reject(RejectUnknownApp)
		writeText(w, h.charset, http.StatusNotFound, err.Error())
	default:
		h.logger.Error("launch_failed", "app", name, "error", err)
		writeText(w, h.charset, http.StatusInternalServerError, "Error: "+err.Error())
	}
}

// AppName extracts the app name: the last segment of path below prefix.
func AppName(path, prefix string) (string, bool) {
	if !strings.HasPrefix(path, prefix) {
		return "", false
	}
	name := path[strings.LastIndex(path, "/")+1:]
	if strings.TrimSpace(name) == "" {
		return "", false
	}
	return name, true
}

// ContextArgs joins the forwarded query parameters as "k=v;k2=v2", in the
// order of names, wrapped in double quotes. Parameters not listed are
// ignored; repeated values are comma-joined. No match yields "".
func ContextArgs(names []string, query url.Values) string {
	var pairs []string
	for _, n := range names {
		values, ok := query[n]
		if !ok {
			continue
		}
		pairs = append(pairs, n+"="+strings.Join(values, ","))
	}
	if len(pairs) == 0 {
		return ""
	}
	return `"` + strings.Join(pairs, ";") + `"`
}

// StatusFor maps a terminal state onto the HTTP status of a waited launch.
func StatusFor(state process.State) int {
	switch state {
	case process.StateCompleted:
		return http.StatusOK
	case process.StateTimedOut:
		return http.StatusGatewayTimeout
	case process.StateCancelled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func wantsWait(app config.AppDefinition, query url.Values) bool {
	if app.Wait {
		return true
	}
	if !app.AllowWait {
		return false
	}
	v, err := strconv.ParseBool(query.Get("wait"))
	return err == nil && v
}

func notDefinedMessage(path string) string {
	return fmt.Sprintf("The program '%s' is not defined in the service configuration.", strings.TrimPrefix(path, "/"))
}

func writeText(w http.ResponseWriter, cs charset.Charset, status int, body string) {
	data, err := cs.Encode(body)
	if err != nil {
		data = []byte(body)
	}
	w.Header().Set("Content-Type", cs.ContentType("text/plain"))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return "/"
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix
}
