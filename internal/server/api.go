package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"wifihid-agent/internal/core"
	"wifihid-agent/internal/ducky"
	"wifihid-agent/internal/storage"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debugf("[Server] Could not write response: %v", err)
	}
}

func writeOK(w http.ResponseWriter, fields map[string]interface{}) {
	body := map[string]interface{}{"status": "ok"}
	for k, v := range fields {
		body[k] = v
	}
	writeJSON(w, http.StatusOK, body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"status": "error", "message": msg})
}

// writeStoreError maps storage errors onto HTTP status codes.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, storage.ErrInvalidName):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("[Server] Storage error: %v", err)
		writeError(w, http.StatusInternalServerError, "storage error")
	}
}

// params reads request arguments from a JSON object body, a form body or
// the query string.
func params(r *http.Request) (map[string]string, error) {
	out := map[string]string{}
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		raw := map[string]interface{}{}
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&raw); err != nil {
			return nil, fmt.Errorf("invalid json body: %w", err)
		}
		for k, v := range raw {
			switch v := v.(type) {
			case string:
				out[k] = v
			case nil:
			default:
				out[k] = fmt.Sprint(v)
			}
		}
		for k, v := range r.URL.Query() {
			if _, ok := out[k]; !ok && len(v) > 0 {
				out[k] = v[0]
			}
		}
		return out, nil
	}
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("invalid form body: %w", err)
	}
	for k, v := range r.Form {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out, nil
}

// require reads params and checks that every name is non-empty.
func require(w http.ResponseWriter, r *http.Request, names ...string) (map[string]string, bool) {
	p, err := params(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	for _, n := range names {
		if strings.TrimSpace(p[n]) == "" {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("missing '%s'", n))
			return nil, false
		}
	}
	return p, true
}

func (s *Server) storageChanged(kind string) {
	if s.eventBus != nil {
		s.eventBus.Publish(core.Event{Type: core.StorageChangedEvent, Payload: map[string]string{"kind": kind}})
	}
}

func resultFields(res core.Result) map[string]interface{} {
	return map[string]interface{}{
		"executed": res.Executed,
		"reply":    res.Reply,
		"commands": res.Commands,
		"skipped":  res.Skipped,
	}
}

// submitLine runs a wire command and writes the outcome.
func (s *Server) submitLine(w http.ResponseWriter, r *http.Request, line string) {
	res, err := core.SubmitLine(r.Context(), s.requests, "http", line)
	switch {
	case errors.Is(err, core.ErrUnknownCommand), errors.Is(err, core.ErrMalformed):
		writeError(w, http.StatusBadRequest, "Unknown command")
	case err != nil:
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeOK(w, resultFields(res))
	}
}

func (s *Server) submitScript(w http.ResponseWriter, r *http.Request, script string) {
	res, err := core.SubmitScript(r.Context(), s.requests, "http", script)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeOK(w, resultFields(res))
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	p, ok := require(w, r, "cmd")
	if !ok {
		return
	}
	s.submitLine(w, r, p["cmd"])
}

func (s *Server) handleScript(w http.ResponseWriter, r *http.Request) {
	p, ok := require(w, r, "script")
	if !ok {
		return
	}
	s.submitScript(w, r, p["script"])
}

// handleJiggler maps ?enable=1&type=&diameter=&delay= onto JIGGLE_ON/JIGGLE_OFF.
func (s *Server) handleJiggler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	switch q.Get("enable") {
	case "0", "false", "off":
		s.submitLine(w, r, "JIGGLE_OFF")
	case "1", "true", "on":
		line := "JIGGLE_ON"
		motion, diameter, delay := q.Get("type"), q.Get("diameter"), q.Get("delay")
		if motion == "" && (diameter != "" || delay != "") {
			motion = "-"
		}
		if diameter == "" && delay != "" {
			diameter = "0"
		}
		for _, arg := range []string{motion, diameter, delay} {
			if arg == "" {
				break
			}
			line += " " + arg
		}
		s.submitLine(w, r, line)
	default:
		writeError(w, http.StatusBadRequest, "missing 'enable'")
	}
}

func (s *Server) statusPayload() map[string]interface{} {
	st := s.state.Clone()
	return map[string]interface{}{
		"backend":       st.Backend,
		"usb_enabled":   st.USBEnabled,
		"led_on":        st.LEDOn,
		"jiggler":       st.Jiggler,
		"last_command":  st.LastCommand,
		"running_macro": st.RunningMacro,
		"status_line":   st.Jiggler.StatusLine(st.USBEnabled),
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeOK(w, s.statusPayload())
}

func (s *Server) handleListScripts(w http.ResponseWriter, r *http.Request) {
	names, err := s.store.ListScripts()
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeOK(w, map[string]interface{}{"scripts": names})
}

func (s *Server) handleSaveScript(w http.ResponseWriter, r *http.Request) {
	p, ok := require(w, r, "name", "script")
	if !ok {
		return
	}
	if err := s.store.SaveScript(p["name"], p["script"]); err != nil {
		writeStoreError(w, err)
		return
	}
	s.storageChanged("scripts")
	writeOK(w, nil)
}

func (s *Server) handleLoadScript(w http.ResponseWriter, r *http.Request) {
	p, ok := require(w, r, "name")
	if !ok {
		return
	}
	script, err := s.store.LoadScript(p["name"])
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeOK(w, map[string]interface{}{"name": p["name"], "script": script})
}

func (s *Server) handleDeleteScript(w http.ResponseWriter, r *http.Request) {
	p, ok := require(w, r, "name")
	if !ok {
		return
	}
	if err := s.store.DeleteScript(p["name"]); err != nil {
		writeStoreError(w, err)
		return
	}
	s.storageChanged("scripts")
	writeOK(w, nil)
}

func (s *Server) handleRunScript(w http.ResponseWriter, r *http.Request) {
	p, ok := require(w, r, "name")
	if !ok {
		return
	}
	script, err := s.store.LoadScript(p["name"])
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.submitScript(w, r, script)
}

func (s *Server) handleListQuickActions(w http.ResponseWriter, r *http.Request) {
	osName := r.URL.Query().Get("os")
	if osName == "" {
		writeError(w, http.StatusBadRequest, "missing 'os'")
		return
	}
	actions, err := s.store.QuickActions(osName)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeOK(w, map[string]interface{}{"os": osName, "actions": actions})
}

func (s *Server) handleSaveQuickAction(w http.ResponseWriter, r *http.Request) {
	p, ok := require(w, r, "os", "cmd", "label")
	if !ok {
		return
	}
	a := storage.QuickAction{Cmd: p["cmd"], Label: p["label"], Desc: p["desc"], Class: p["class"]}
	if err := s.store.SaveQuickAction(p["os"], a); err != nil {
		writeStoreError(w, err)
		return
	}
	s.storageChanged("quickactions")
	writeOK(w, nil)
}

// handleDeleteQuickAction removes one action, or all of them with all=1.
func (s *Server) handleDeleteQuickAction(w http.ResponseWriter, r *http.Request) {
	p, ok := require(w, r, "os")
	if !ok {
		return
	}
	var err error
	switch {
	case p["all"] == "1" || p["all"] == "true":
		err = s.store.DeleteAllQuickActions(p["os"])
	case p["cmd"] != "":
		err = s.store.DeleteQuickAction(p["os"], p["cmd"])
	default:
		writeError(w, http.StatusBadRequest, "missing 'cmd'")
		return
	}
	if err != nil {
		writeStoreError(w, err)
		return
	}
	s.storageChanged("quickactions")
	writeOK(w, nil)
}

// handleReorderQuickActions takes order as a comma separated list of commands.
func (s *Server) handleReorderQuickActions(w http.ResponseWriter, r *http.Request) {
	p, ok := require(w, r, "os", "order")
	if !ok {
		return
	}
	var cmds []string
	for _, c := range strings.Split(p["order"], ",") {
		if c = strings.TrimSpace(c); c != "" {
			cmds = append(cmds, c)
		}
	}
	if err := s.store.ReorderQuickActions(p["os"], cmds); err != nil {
		writeStoreError(w, err)
		return
	}
	s.storageChanged("quickactions")
	writeOK(w, nil)
}

// handleQuickScript lists the built-in scripts for os, or runs one when name is set.
func (s *Server) handleQuickScript(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	osName, name := q.Get("os"), q.Get("name")
	if !ducky.BuiltinOS(osName) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no quick scripts for '%s'", osName))
		return
	}
	if name == "" {
		writeOK(w, map[string]interface{}{"os": osName, "scripts": ducky.QuickScriptNames(osName)})
		return
	}
	script := ducky.QuickScript(name, osName)
	if script == "" {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown quick script '%s'", name))
		return
	}
	s.submitScript(w, r, script)
}

func (s *Server) handleListCustomOS(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.CustomOS()
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeOK(w, map[string]interface{}{"os": list})
}

func (s *Server) handleAddCustomOS(w http.ResponseWriter, r *http.Request) {
	p, ok := require(w, r, "name")
	if !ok {
		return
	}
	if err := s.store.AddCustomOS(p["name"]); err != nil {
		writeStoreError(w, err)
		return
	}
	s.storageChanged("customos")
	writeOK(w, nil)
}

func (s *Server) handleDeleteCustomOS(w http.ResponseWriter, r *http.Request) {
	p, ok := require(w, r, "name")
	if !ok {
		return
	}
	if err := s.store.DeleteCustomOS(p["name"]); err != nil {
		writeStoreError(w, err)
		return
	}
	s.storageChanged("customos")
	writeOK(w, nil)
}
