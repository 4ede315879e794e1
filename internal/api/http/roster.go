package http

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/mind-engage/mindengage-grades/internal/dojo"
)

type Roster interface {
	ImportRoster(ctx context.Context, dojoID string, entries []dojo.RosterEntry) (dojo.ImportResult, error)
	RosterUsers(ctx context.Context, dojoID string) ([]dojo.User, error)
}

// POST /dojos/{dojo}/admin/roster
//
// Accepts a JSON array, a CSV body (text/csv) or a multipart file= holding
// either. CSV needs id and username columns; role and password are optional.
func ImportRosterHandler(store Roster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dojoID, ok := dojoParam(w, r)
		if !ok {
			return
		}
		var src io.Reader = r.Body
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			f, _, err := r.FormFile("file")
			if err != nil {
				http.Error(w, "file required", http.StatusBadRequest)
				return
			}
			defer f.Close()
			src = f
		}
		entries, err := decodeRoster(src)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if len(entries) == 0 {
			writeJSON(w, dojo.ImportResult{})
			return
		}
		res, err := store.ImportRoster(r.Context(), dojoID, entries)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, res)
	}
}

// GET /dojos/{dojo}/admin/roster
func ListRosterHandler(store Roster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dojoID, ok := dojoParam(w, r)
		if !ok {
			return
		}
		users, err := store.RosterUsers(r.Context(), dojoID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, users)
	}
}

// decodeRoster sniffs JSON against CSV by the first non-space byte.
func decodeRoster(r io.Reader) ([]dojo.RosterEntry, error) {
	br := bufio.NewReader(r)
	for {
		b, err := br.Peek(1)
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if b[0] != ' ' && b[0] != '\n' && b[0] != '\r' && b[0] != '\t' {
			break
		}
		_, _ = br.ReadByte()
	}
	if b, _ := br.Peek(1); b[0] == '[' {
		var entries []dojo.RosterEntry
		if err := json.NewDecoder(br).Decode(&entries); err != nil {
			return nil, errors.New("bad json: " + err.Error())
		}
		return entries, nil
	}
	entries, err := parseRosterCSV(br)
	if err != nil {
		return nil, errors.New("bad csv: " + err.Error())
	}
	return entries, nil
}

func parseRosterCSV(r io.Reader) ([]dojo.RosterEntry, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	hdr, err := cr.Read()
	if err != nil {
		return nil, err
	}
	idx := map[string]int{}
	for i, h := range hdr {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, k := range []string{"id", "username"} {
		if _, ok := idx[k]; !ok {
			return nil, errors.New("missing column: " + k)
		}
	}
	optional := func(rec []string, col string) string {
		if i, ok := idx[col]; ok && i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}
	var out []dojo.RosterEntry
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		id, err := strconv.ParseInt(strings.TrimSpace(rec[idx["id"]]), 10, 64)
		if err != nil {
			return nil, errors.New("bad id: " + rec[idx["id"]])
		}
		out = append(out, dojo.RosterEntry{
			User: dojo.User{
				ID:       id,
				Username: strings.TrimSpace(rec[idx["username"]]),
				Role:     strings.ToLower(optional(rec, "role")),
			},
			Password: optional(rec, "password"),
		})
	}
	return out, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
