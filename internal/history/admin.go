package history

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/pathview/internal/httputil"
	"github.com/tailscale/tailsql/server/tailsql"
	"tailscale.com/tsweb"
)

// AttachAdminRoutes mounts the tsweb debugger on mux with a live SQL
// console over the history database, a backup download and per-feed
// counts.
func (s *Store) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)

	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+filepath.Base(s.path), s.DB, &tailsql.DBOptions{
		Label: "Snapshot history",
	})
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
	debug.Handle("history", "Stored snapshot counts per feed", s.CountsHandler())
	debug.Handle("backup", "Create and download a backup of the database now", s.BackupHandler())
	debug.Handle("schema", "Schema migration version (JSON)", s.SchemaHandler())
	return nil
}

// SchemaHandler serves the applied migration version and dirty flag.
func (s *Store) SchemaHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		version, dirty, err := s.MigrateVersion()
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, map[string]interface{}{"version": version, "dirty": dirty})
	})
}

// CountsHandler serves the number of stored snapshots per feed as JSON.
func (s *Store) CountsHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		counts := make(map[string]int, 3)
		for _, f := range []string{FeedStatus, FeedCode, FeedPath} {
			n, err := s.Count(r.Context(), f)
			if err != nil {
				httputil.InternalServerError(w, err.Error())
				return
			}
			counts[f] = n
		}
		httputil.WriteJSONOK(w, counts)
	})
}

// BackupHandler snapshots the database with VACUUM INTO and streams it
// gzip-compressed.
func (s *Store) BackupHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := fmt.Sprintf("pathview-backup-%d.db", time.Now().Unix())
		backupPath := filepath.Join(os.TempDir(), name)
		if err := s.Backup(r.Context(), backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		defer os.Remove(backupPath)

		f, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}
		defer f.Close()

		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", name))
		w.Header().Set("Content-Type", "application/gzip")

		gz := gzip.NewWriter(w)
		defer gz.Close()
		if _, err := io.Copy(gz, f); err != nil {
			http.Error(w, fmt.Sprintf("Failed to write backup file: %v", err), http.StatusInternalServerError)
		}
	})
}

// Backup writes a consistent copy of the database to path.
func (s *Store) Backup(ctx context.Context, path string) error {
	if _, err := s.ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
		return fmt.Errorf("vacuum into %s: %w", path, err)
	}
	return nil
}
