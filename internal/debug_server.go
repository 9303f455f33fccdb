package internal

import (
	"chat-relay/repositories"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dgraph-io/badger/v4"
)

const inspectPage = `<!doctype html>
<html><head><meta charset="utf-8"><title>relay inspect</title>
<style>body{font-family:monospace}td{padding:2px 8px}</style></head>
<body>
<form><input name="prefix" value="{{.Prefix}}"> <button>inspect</button>
{{range .Prefixes}} <a href="?prefix={{.}}">{{.}}</a>{{end}}</form>
<h3>stats</h3>
<table>{{range $k, $v := .Stats}}<tr><td>{{$k}}</td><td>{{$v}}</td></tr>{{end}}</table>
<h3>{{len .Items}} keys</h3>
<table>{{range .Items}}<tr><td>{{.Type}}</td><td>{{.Timestamp}}</td><td>{{.Key}}</td><td>{{.Detail}}</td></tr>{{end}}</table>
</body></html>`

const maxInspectedKeys = 500

type InspectRow struct {
	Key       string
	Type      string
	Timestamp string
	Detail    string
}

type RowMapper func(key string, val []byte) InspectRow
type StatsProvider func() map[string]any

type PageData struct {
	Prefix   string
	Prefixes []string
	Items    []InspectRow
	Stats    map[string]any
}

// StartDebugServer serves a badger key browser on endpoint plus the given
// extra routes. It returns the server so the caller can shut it down.
func StartDebugServer(log *slog.Logger, db *badger.DB, port int, endpoint string,
	mapper RowMapper, statsProvider StatsProvider, routes map[string]http.Handler) *http.Server {
	mux := http.NewServeMux()
	tmpl := template.Must(template.New("inspect").Parse(inspectPage))

	if mapper == nil {
		mapper = RelayMapper
	}

	mux.HandleFunc(endpoint, func(w http.ResponseWriter, r *http.Request) {
		prefix := r.URL.Query().Get("prefix")
		if prefix == "" {
			prefix = "room:"
		}

		data := PageData{
			Prefix:   prefix,
			Prefixes: repositories.Prefixes,
			Stats:    make(map[string]any),
		}
		if statsProvider != nil {
			data.Stats = statsProvider()
		}

		err := db.View(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()
			for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)) && len(data.Items) < maxInspectedKeys; it.Next() {
				item := it.Item()
				if err := item.Value(func(val []byte) error {
					data.Items = append(data.Items, mapper(string(item.KeyCopy(nil)), val))
					return nil
				}); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = tmpl.Execute(w, data)
	})
	for pattern, handler := range routes {
		mux.Handle(pattern, handler)
	}

	server := &http.Server{Addr: fmt.Sprintf("0.0.0.0:%d", port), Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("debug server stopped", "error", err)
		}
	}()
	return server
}

// RelayMapper renders relay records; password hashes never reach the page.
func RelayMapper(key string, val []byte) InspectRow {
	record := repositories.Describe(key, val)
	row := InspectRow{
		Key:       key,
		Type:      record.Kind,
		Timestamp: "--:--:--",
		Detail:    record.Summary,
	}
	if !record.Time.IsZero() {
		row.Timestamp = record.Time.Format("15:04:05")
	}
	if row.Detail == "" {
		row.Detail = "Size: " + strconv.Itoa(len(val)) + " bytes"
	}
	return row
}
