package testutil

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"feedroutes/lib/telemetry"

	_ "modernc.org/sqlite"
)

type ServiceParams struct {
	Name string
	// if false, it will skip setting up a db
	WithDB bool
}

type ServiceResult struct {
	DB *sql.DB
	// DBPath is the file backing DB, reopen it to simulate a restart.
	DBPath string
}

func SetupService(t testing.TB, params ServiceParams) (ServiceResult, func()) {
	cleanup := telemetry.SetupForTesting(t, fmt.Sprintf("test:%s", params.Name))
	if !params.WithDB {
		return ServiceResult{}, cleanup
	}

	dbpath := filepath.Join(t.TempDir(), "cache.db")
	db, err := sql.Open("sqlite", dbpath)
	if err != nil {
		t.Fatal(err)
	}

	return ServiceResult{DB: db, DBPath: dbpath}, func() {
		db.Close()
		cleanup()
	}
}
