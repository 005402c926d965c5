package classd

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/five82/tally/internal/classapi"
)

const (
	codeLength   = 5
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	codeAttempts = 20
)

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		badRequest(w, "malformed form")
		return
	}
	variables := trimAll(r.PostForm["variable"])
	groups := trimAll(r.PostForm["group"])
	switch {
	case len(variables) < 1 || len(variables) > 2:
		badRequest(w, "want 1 or 2 variables")
		return
	case len(variables) == 2 && len(groups) > 0:
		badRequest(w, "paired sessions cannot have groups")
		return
	case hasBlank(variables) || hasBlank(groups):
		badRequest(w, "names must not be empty")
		return
	}

	ctx := r.Context()
	code, err := s.newCode(r)
	if err != nil {
		s.internalError(w, "allocate code", err)
		return
	}
	now := s.clock.Now()
	sess := session{
		Code:      code,
		Admin:     uuid.NewString(),
		Variables: variables,
		Groups:    groups,
		Expires:   now.Add(s.sessionTTL).UTC(),
	}
	if err := s.repo.create(ctx, sess); err != nil {
		s.internalError(w, "create session", err)
		return
	}
	s.logger.Info("session created", "session", code, "variables", len(variables), "groups", len(groups))
	writeJSON(w, classapi.Credentials{Code: sess.Code, Admin: sess.Admin, Expires: sess.Expires})
}

func (s *Server) newCode(r *http.Request) (string, error) {
	for range codeAttempts {
		var b strings.Builder
		for range codeLength {
			b.WriteByte(codeAlphabet[rand.IntN(len(codeAlphabet))])
		}
		taken, err := s.repo.exists(r.Context(), b.String())
		if err != nil {
			return "", err
		}
		if !taken {
			return b.String(), nil
		}
	}
	return "", errors.New("no free session code")
}

func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.load(w, r)
	if !ok {
		return
	}
	admin := r.URL.Query().Get("admin")
	writeJSON(w, classapi.SessionInfo{
		Code:       sess.Code,
		Variables:  sess.Variables,
		Groups:     sess.Groups,
		Enabled:    sess.Enabled,
		Expires:    sess.Expires,
		AdminValid: adminMatches(sess, admin),
	})
}

func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) {
	code := routeCode(r)
	now := s.clock.Now()
	fresh := r.URL.Query().Get("nocache") == "1" || strings.Contains(r.Header.Get("Cache-Control"), "no-cache")

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if !fresh {
		if body, ok := s.cache.get(code, now); ok {
			_, _ = w.Write(body)
			return
		}
	}

	sess, err := s.repo.session(r.Context(), code, now)
	if errors.Is(err, classapi.ErrSessionNotFound) {
		s.cache.drop(code)
		return
	}
	if err != nil {
		s.internalError(w, "load session", err)
		return
	}
	snap, err := s.repo.snapshot(r.Context(), sess)
	if err != nil {
		s.internalError(w, "load snapshot", err)
		return
	}
	body := classapi.EncodeSnapshot(snap)
	s.cache.put(code, body, now)
	_, _ = w.Write(body)
}

func (s *Server) writeData(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.load(w, r)
	if !ok {
		return
	}
	if !sess.Enabled {
		reject(w, "data collection is closed")
		return
	}

	if sess.mode() == classapi.ModePaired {
		xs, errX := classapi.SplitValues(r.PostFormValue("x"))
		ys, errY := classapi.SplitValues(r.PostFormValue("y"))
		switch {
		case errX != nil || errY != nil:
			badRequest(w, "bad value")
			return
		case len(xs) == 0 || len(xs) != len(ys):
			badRequest(w, "x and y must be non-empty and the same length")
			return
		}
		if err := s.repo.insertPoints(r.Context(), sess.Code, 0, xs, ys); err != nil {
			s.internalError(w, "write pairs", err)
			return
		}
		s.logger.Debug("pairs written", "session", sess.Code, "count", len(xs))
		return
	}

	group, ok := groupParam(w, sess, r.PostFormValue("group"))
	if !ok {
		return
	}
	values, err := classapi.SplitValues(r.PostFormValue("values"))
	if err != nil || len(values) == 0 {
		badRequest(w, "values must be a non-empty list of numbers")
		return
	}
	if err := s.repo.insertPoints(r.Context(), sess.Code, group, values, nil); err != nil {
		s.internalError(w, "write group", err)
		return
	}
	s.logger.Debug("values written", "session", sess.Code, "group", group, "count", len(values))
}

func (s *Server) deletePoint(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.load(w, r)
	if !ok {
		return
	}

	var (
		grp  int
		x, y float64
		err  error
	)
	if sess.mode() == classapi.ModePaired {
		x, err = classapi.ParseValue(r.PostFormValue("x"))
		if err == nil {
			y, err = classapi.ParseValue(r.PostFormValue("y"))
		}
	} else {
		if grp, ok = groupParam(w, sess, r.PostFormValue("group")); !ok {
			return
		}
		x, err = classapi.ParseValue(r.PostFormValue("value"))
	}
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	found, err := s.repo.deleteOne(r.Context(), sess.Code, grp, x, y)
	if err != nil {
		s.internalError(w, "delete point", err)
		return
	}
	if !found {
		reject(w, "no matching point")
	}
}

func (s *Server) deleteGroupData(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadAdmin(w, r)
	if !ok {
		return
	}
	if sess.mode() != classapi.ModeGrouped {
		badRequest(w, "session has no groups")
		return
	}
	group, ok := groupParam(w, sess, r.PostFormValue("group"))
	if !ok {
		return
	}
	if err := s.repo.deletePoints(r.Context(), sess.Code, group); err != nil {
		s.internalError(w, "delete group data", err)
	}
}

func (s *Server) deleteAll(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadAdmin(w, r)
	if !ok {
		return
	}
	if err := s.repo.deletePoints(r.Context(), sess.Code, 0); err != nil {
		s.internalError(w, "delete all", err)
		return
	}
	s.logger.Info("session data cleared", "session", sess.Code)
}

func (s *Server) renameVariable(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadAdmin(w, r)
	if !ok {
		return
	}
	index, _ := strconv.Atoi(mux.Vars(r)["index"])
	if index < 1 || index > len(sess.Variables) {
		badRequest(w, fmt.Sprintf("variable %d out of range 1..%d", index, len(sess.Variables)))
		return
	}
	name, ok := nameParam(w, r)
	if !ok {
		return
	}
	sess.Variables[index-1] = name
	if err := s.repo.setNames(r.Context(), sess.Code, sess.Variables, sess.Groups); err != nil {
		s.internalError(w, "rename variable", err)
	}
}

func (s *Server) addGroup(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadAdmin(w, r)
	if !ok {
		return
	}
	if sess.mode() != classapi.ModeGrouped {
		badRequest(w, "paired sessions cannot have groups")
		return
	}
	name, ok := nameParam(w, r)
	if !ok {
		return
	}
	if err := s.repo.setNames(r.Context(), sess.Code, sess.Variables, append(sess.Groups, name)); err != nil {
		s.internalError(w, "add group", err)
	}
}

// changeGroup renames a group, or removes it when the form carries delete=1.
func (s *Server) changeGroup(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadAdmin(w, r)
	if !ok {
		return
	}
	index, _ := strconv.Atoi(mux.Vars(r)["index"])
	if index < 1 || index > len(sess.Groups) {
		badRequest(w, fmt.Sprintf("group %d out of range 1..%d", index, len(sess.Groups)))
		return
	}

	if r.PostFormValue("delete") == "1" {
		remaining := append(sess.Groups[:index-1:index-1], sess.Groups[index:]...)
		if err := s.repo.removeGroup(r.Context(), sess, index, remaining); err != nil {
			s.internalError(w, "delete group", err)
		}
		return
	}

	name, ok := nameParam(w, r)
	if !ok {
		return
	}
	sess.Groups[index-1] = name
	if err := s.repo.setNames(r.Context(), sess.Code, sess.Variables, sess.Groups); err != nil {
		s.internalError(w, "rename group", err)
	}
}

func (s *Server) setEnabled(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadAdmin(w, r)
	if !ok {
		return
	}
	enabled, err := strconv.ParseBool(r.PostFormValue("enabled"))
	if err != nil {
		badRequest(w, "enabled must be 0 or 1")
		return
	}
	if err := s.repo.setEnabled(r.Context(), sess.Code, enabled); err != nil {
		s.internalError(w, "set enabled", err)
		return
	}
	s.logger.Info("collection toggled", "session", sess.Code, "enabled", enabled)
}

func (s *Server) extend(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadAdmin(w, r)
	if !ok {
		return
	}
	expires := s.clock.Now().Add(s.sessionTTL).UTC()
	if err := s.repo.setExpires(r.Context(), sess.Code, expires); err != nil {
		s.internalError(w, "extend", err)
		return
	}
	writeJSON(w, struct {
		Expires time.Time `json:"expires"`
	}{expires})
}

// load resolves the routed session, answering 404 when it is unknown or
// expired.
func (s *Server) load(w http.ResponseWriter, r *http.Request) (session, bool) {
	sess, err := s.repo.session(r.Context(), routeCode(r), s.clock.Now())
	if errors.Is(err, classapi.ErrSessionNotFound) {
		http.Error(w, "session not found", http.StatusNotFound)
		return session{}, false
	}
	if err != nil {
		s.internalError(w, "load session", err)
		return session{}, false
	}
	return sess, true
}

// loadAdmin is load plus a check of the form's admin token.
func (s *Server) loadAdmin(w http.ResponseWriter, r *http.Request) (session, bool) {
	sess, ok := s.load(w, r)
	if !ok {
		return session{}, false
	}
	if !adminMatches(sess, r.PostFormValue("admin")) {
		http.Error(w, "admin token rejected", http.StatusForbidden)
		return session{}, false
	}
	return sess, true
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.logger.Error("request failed", "op", op, "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func adminMatches(sess session, token string) bool {
	token = strings.TrimSpace(token)
	return token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(sess.Admin)) == 1
}

func routeCode(r *http.Request) string {
	return classapi.NormalizeCode(mux.Vars(r)["code"])
}

func groupParam(w http.ResponseWriter, sess session, raw string) (int, bool) {
	group, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || group < 1 || group > sess.groupCount() {
		badRequest(w, fmt.Sprintf("group %q out of range 1..%d", raw, sess.groupCount()))
		return 0, false
	}
	return group, true
}

func nameParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := strings.TrimSpace(r.PostFormValue("name"))
	if name == "" {
		badRequest(w, "name must not be empty")
		return "", false
	}
	return name, true
}

// reject reports a refused operation the way the store protocol expects: a
// non-empty body on an otherwise successful response.
func reject(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(msg))
}

func badRequest(w http.ResponseWriter, msg string) {
	http.Error(w, msg, http.StatusBadRequest)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, strings.TrimSpace(v))
	}
	return out
}

func hasBlank(values []string) bool {
	for _, v := range values {
		if v == "" {
			return true
		}
	}
	return false
}
