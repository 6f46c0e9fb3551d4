package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"minimizer/internal/archive"
	"minimizer/internal/platform/logger"
	"minimizer/internal/platform/sqlite"
	trialservice "minimizer/internal/trial/service"
	trialstore "minimizer/internal/trial/store"
	id "minimizer/pkg/domain"
	"minimizer/pkg/platform/audit/publisher"
	auditsqlite "minimizer/pkg/platform/audit/store/sqlite"
	"minimizer/pkg/requestcontext"
)

// app carries the global flags and the service opened for one invocation.
type app struct {
	dbPath     string
	archiveDir string
	user       string
	jsonOut    bool
	verbose    bool

	out   io.Writer
	actor id.Username
	db    *sql.DB
	svc   *trialservice.Service
}

func defaultUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "operator"
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}

	root := &cobra.Command{
		Use:           "minimizer",
		Short:         "Allocate trial patients to arms by minimisation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd.Context())
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.close()
		},
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVar(&a.dbPath, "db", "minimizer.db", "SQLite database path")
	flags.StringVar(&a.archiveDir, "archive-dir", "archive", "directory for trial archive bundles")
	flags.StringVarP(&a.user, "user", "u", defaultUser(), "operator name recorded in the audit trail")
	flags.BoolVar(&a.jsonOut, "json", false, "print JSON instead of tables")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log debug output to stderr")

	root.AddCommand(
		newTrialCmd(a),
		newPatientCmd(a),
		newBalanceCmd(a),
		newAuditCmd(a),
	)
	return root
}

func (a *app) open(ctx context.Context) error {
	actor, err := id.ParseUsername(a.user)
	if err != nil {
		return fmt.Errorf("--user: %w", err)
	}
	a.actor = actor
	level := "warn"
	if a.verbose {
		level = "debug"
	}
	log := logger.NewWithWriter(os.Stderr, level, "text")

	db, err := sqlite.Open(ctx, a.dbPath)
	if err != nil {
		return err
	}
	a.db = db

	archiveStore, err := archive.NewFS(a.archiveDir)
	if err != nil {
		return err
	}
	auditor := publisher.New(auditsqlite.New(db), publisher.WithLogger(log))
	a.svc = trialservice.New(
		trialstore.NewSQLite(db),
		trialstore.NewSQLiteTx(db, 0),
		auditor,
		trialservice.WithLogger(log),
		trialservice.WithArchive(archiveStore),
	)
	slog.SetDefault(log)
	return nil
}

func (a *app) close() error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

// actorContext stamps ctx with the operator. The local operator owns the
// database file and acts as an administrator.
func (a *app) actorContext(ctx context.Context) context.Context {
	ctx = requestcontext.WithActor(ctx, a.actor)
	ctx = requestcontext.WithAdmin(ctx, true)
	return requestcontext.WithRequestID(ctx, uuid.NewString())
}
