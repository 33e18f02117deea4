package dberr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type codedErr struct {
	code string
	msg  string
}

func (e *codedErr) Error() string     { return e.msg }
func (e *codedErr) ErrorCode() string { return e.code }

func TestClassifyRaw_Permission(t *testing.T) {
	cases := []Raw{
		{Code: "42501", Message: "new row violates row-level security"},
		{Code: "42P17", Message: "something odd"},
		{Message: "infinite RECURSION detected in policy for relation \"users\""},
		{Message: "Policy check failed"},
		{Code: "XX000", Message: "Permission Denied for table sales"},
	}
	for _, c := range cases {
		assert.Equal(t, KindPermission, ClassifyRaw(c), "%+v", c)
	}
}

func TestClassifyRaw_Conflict(t *testing.T) {
	assert.Equal(t, KindConflict, ClassifyRaw(Raw{Code: "23505", Message: "duplicate key"}))
	assert.Equal(t, KindConflict, ClassifyRaw(Raw{Code: "23503", Message: "violates foreign key constraint"}))
}

func TestClassifyRaw_PermissionWinsOverConflict(t *testing.T) {
	// Message rules for permission are checked before conflict codes.
	assert.Equal(t, KindPermission, ClassifyRaw(Raw{Code: "23505", Message: "blocked by policy"}))
}

func TestClassifyRaw_NotFound(t *testing.T) {
	assert.Equal(t, KindNotFound, ClassifyRaw(Raw{Code: CodeNoRows, Message: "JSON object requested, multiple (or no) rows returned"}))
}

func TestClassifyRaw_Network(t *testing.T) {
	assert.Equal(t, KindNetwork, ClassifyRaw(Raw{Code: "weird", Message: "TypeError: Failed to fetch"}))
	assert.Equal(t, KindNetwork, ClassifyRaw(Raw{Message: "dial tcp: connection refused"}))
}

func TestClassifyRaw_Unknown(t *testing.T) {
	assert.Equal(t, KindUnknown, ClassifyRaw(Raw{}))
	assert.Equal(t, KindUnknown, ClassifyRaw(Raw{Code: "22P02", Message: "invalid input syntax"}))
}

func TestClassify_Nil(t *testing.T) {
	assert.Nil(t, Classify(nil))
}

func TestClassify_NetworkIsRetriable(t *testing.T) {
	c := Classify(&codedErr{code: "bogus", msg: "failed to fetch"})
	require.NotNil(t, c)
	assert.Equal(t, KindNetwork, c.Kind)
	assert.True(t, c.Retriable)
}

func TestClassify_UnknownNotRetriable(t *testing.T) {
	c := Classify(errors.New("boom"))
	assert.Equal(t, KindUnknown, c.Kind)
	assert.False(t, c.Retriable)
	assert.ErrorIs(t, c, ErrUnknown)
}

func TestClassify_PgError(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "42501", Message: "new row violates row-level security policy for table \"products\""}
	c := Classify(fmt.Errorf("insert products: %w", pgErr))

	assert.Equal(t, KindPermission, c.Kind)
	assert.Equal(t, "42501", c.Code)
	assert.ErrorIs(t, c, ErrPermission)

	var unwrapped *pgconn.PgError
	assert.True(t, errors.As(c, &unwrapped))
}

func TestClassify_ErrorCodeInterface(t *testing.T) {
	c := Classify(&codedErr{code: "23505", msg: "duplicate key value"})
	assert.Equal(t, KindConflict, c.Kind)
	assert.ErrorIs(t, c, ErrConflict)
}

func TestClassify_AlreadyClassified(t *testing.T) {
	orig := NotFound("customers", "c1")
	c := Classify(fmt.Errorf("wrapped: %w", orig))
	assert.Same(t, orig, c)
}

func TestClassify_Transport(t *testing.T) {
	c := Classify(&net.OpError{Op: "dial", Net: "tcp", Err: errors.New("refused")})
	assert.Equal(t, KindNetwork, c.Kind)
	assert.True(t, c.Retriable)

	c = Classify(context.DeadlineExceeded)
	assert.Equal(t, KindNetwork, c.Kind)
}

func TestConstructors(t *testing.T) {
	assert.ErrorIs(t, NotFound("t", "1"), ErrNotFound)
	assert.ErrorIs(t, Conflict("t", "1"), ErrConflict)
	assert.NotErrorIs(t, Conflict("t", "1"), ErrNotFound)
	assert.Contains(t, NotFound("products", "p9").Error(), "p9")
}
