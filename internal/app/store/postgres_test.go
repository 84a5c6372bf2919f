package store

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"value too long", &pgconn.PgError{Code: "22001"}, ErrValueTooLong},
		{"foreign key", &pgconn.PgError{Code: "23503"}, ErrInvalidReference},
		{"bad uuid literal", &pgconn.PgError{Code: "22P02"}, ErrInvalidReference},
		{"undefined column", &pgconn.PgError{Code: "42703"}, ErrSchemaMismatch},
		{"undefined table", &pgconn.PgError{Code: "42P01"}, ErrSchemaMismatch},
		{"unique", &pgconn.PgError{Code: "23505"}, ErrEmailTaken},
		{"no rows", pgx.ErrNoRows, ErrNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, classify("op", tc.err), tc.want)
		})
	}

	assert.NoError(t, classify("op", nil))

	other := errors.New("connection reset")
	got := classify("op", other)
	assert.ErrorIs(t, got, other)
	for _, sentinel := range []error{ErrValueTooLong, ErrInvalidReference, ErrSchemaMismatch} {
		assert.NotErrorIs(t, got, sentinel)
	}
}

func TestCanonicalIDNormalizesCase(t *testing.T) {
	id, err := canonicalID("6F9619FF-8B86-D011-B42D-00C04FC964FF")
	assert.NoError(t, err)
	assert.Equal(t, "6f9619ff-8b86-d011-b42d-00c04fc964ff", id)

	_, err = canonicalID("not-a-uuid")
	assert.ErrorIs(t, err, ErrInvalidReference)
}
