package dbutil_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/ragbase/internal/pkg/dbutil"
)

func TestFinalizeRebind(t *testing.T) {
	query, args := dbutil.Finalize("SELECT id FROM documents WHERE status = ? AND ctime > ?", []interface{}{"ready", 123})
	require.Equal(t, "SELECT id FROM documents WHERE status = $1 AND ctime > $2", query)
	require.Equal(t, []interface{}{"ready", 123}, args)
}

func TestFinalizeLimitRewrite(t *testing.T) {
	query, args := dbutil.Finalize("SELECT id FROM documents WHERE status = ? LIMIT ?,?", []interface{}{"ready", 10, 5})
	require.Equal(t, "SELECT id FROM documents WHERE status = $1 LIMIT $2 OFFSET $3", query)
	// gendry emits offset,count; postgres wants count first.
	require.Equal(t, []interface{}{"ready", 5, 10}, args)
}
