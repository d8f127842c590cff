package slug

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joydrop/backend/internal/apperr"
)

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want string
		ok   bool
	}{
		{"alice", "alice", true},
		{"  Acme-Corp ", "acme-corp", true},
		{"a", "a", true},
		{"a1-b2-c3", "a1-b2-c3", true},
		{strings.Repeat("x", 30), strings.Repeat("x", 30), true},
		{strings.Repeat("x", 31), "", false},
		{"", "", false},
		{"-alice", "", false},
		{"alice-", "", false},
		{"al ice", "", false},
		{"al_ice", "", false},
		{"ünïcode", "", false},
	} {
		got, err := Validate(tc.in)
		if tc.ok {
			require.NoError(t, err, tc.in)
			assert.Equal(t, tc.want, got)
		} else {
			assert.True(t, errors.Is(err, apperr.ErrInvalidFormat), "%q: %v", tc.in, err)
		}
	}
}

func TestFromName(t *testing.T) {
	for _, tc := range []struct {
		name string
		want string
	}{
		{"Acme Corp", "acme-corp"},
		{"  The  Good -- Deeds! ", "the-good-deeds"},
		{"!!!", "org"},
		{"Helping Hands of the Greater Metropolitan Area", "helping-hands-of-the-greater-m"},
		{"abcdefghijklmnopqrstuvwxyz abcd efg", "abcdefghijklmnopqrstuvwxyz-abc"},
		{"abcdefghijklmnopqrstuvwxyzabc -x", "abcdefghijklmnopqrstuvwxyzabc"},
	} {
		got := FromName(tc.name)
		assert.Equal(t, tc.want, got, tc.name)
		_, err := Validate(got)
		assert.NoError(t, err, got)
	}
}

func TestWithSuffix(t *testing.T) {
	s, err := WithSuffix("acme-corp")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(s, "acme-corp-"), s)
	assert.Len(t, s, len("acme-corp-")+SuffixLength)

	long, err := WithSuffix(strings.Repeat("a", 30))
	require.NoError(t, err)
	assert.Len(t, long, MaxLength)
	_, err = Validate(long)
	assert.NoError(t, err)
}

func TestDeriveFallback(t *testing.T) {
	assert.Equal(t, "jane-doe", Derive("jane.doe", "user"))
	assert.Equal(t, "user", Derive("+++", "user"))
	assert.Equal(t, "org", FromName("!!!"))
}
