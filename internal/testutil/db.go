// Package testutil holds shared fixtures for package tests.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"natrip-payments/internal/database"
	"natrip-payments/internal/logging"
)

var dbSeq atomic.Int64

// NewSQLite returns a migrated in-memory database private to t.
func NewSQLite(t *testing.T) database.Service {
	t.Helper()

	name := fmt.Sprintf("%s_%d", strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()), dbSeq.Add(1))
	db, err := database.OpenSQLiteMemory(name)
	require.NoError(t, err)

	svc := database.Wrap(db, database.SQLite, name, logging.Discard())
	t.Cleanup(func() { _ = svc.Close() })

	require.NoError(t, svc.Migrate(context.Background()))
	return svc
}
