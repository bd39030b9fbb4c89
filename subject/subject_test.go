package subject

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidToken(t *testing.T) {
	cases := []struct {
		token string
		valid bool
	}{
		{"", false},
		{"*", true},
		{">", true},
		{">>", true},
		{"!", true},
		{"á", true},
		{"probe", true},
		{"pröbe", true},
		{"$SYS", true},
		{"ab.cd", false},
		{"ab cd", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.valid, ValidToken(tc.token), "token %q", tc.token)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		subject string
		valid   bool
	}{
		{"", false},
		{"*", true},
		{">", true},
		{"abc.12345.cda.>", true},
		{"uu.12345", true},
		{"fAN.*.sdb.*", true},
		{"zzz.>.cdc", false},
		{"zzz.*.", false},
		{".dot", false},
		{"dot..dot", false},
		{">>", true},
		{"hi.**.no", true},
		{"with space", false},
		{"with\ttab", false},
	}
	for _, tc := range cases {
		err := Validate(tc.subject)
		if tc.valid {
			assert.NoError(t, err, "subject %q", tc.subject)
		} else {
			assert.Error(t, err, "subject %q", tc.subject)
		}
	}
}

func TestValidateLiteral(t *testing.T) {
	assert.NoError(t, ValidateLiteral("orders.us.created"))
	assert.Error(t, ValidateLiteral("orders.*.created"))
	assert.Error(t, ValidateLiteral("orders.>"))
	assert.Error(t, ValidateLiteral(""))
}

func TestMatches(t *testing.T) {
	cases := []struct {
		filter  string
		subject string
		match   bool
	}{
		{"cba", "abc", false},
		{"cba.*", "cba.abc", true},
		{"cba.*.zzz", "cba.abc.zzz", true},
		{"ab.cd.ef", "ab.cd", false},
		{"ab.cd", "ab.cd.ef", false},
		{">", "cba.abc.zzz", true},
		{">", "cba.*.zzz", true},
		{"cba.>", "cba.abc.zzz", true},
		{"*.>", "cba.abc.zzz", true},
		{"cba.*.zzz", "cba.abc.yyy", false},
		{"cba.>", "cba", false},
		{"foo.bar", "foo.bar", true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.match, Matches(tc.filter, tc.subject),
			"filter %q subject %q", tc.filter, tc.subject)
	}
}

func TestMatchesIsSymmetricOnWildcards(t *testing.T) {
	assert.True(t, Matches("cba.abc", "cba.*"))
	assert.True(t, Matches("cba.abc.zzz", ">"))
}

func TestJoin(t *testing.T) {
	got, err := Join("abc", "def")
	require.NoError(t, err)
	assert.Equal(t, "abc.def", got)

	got, err = Join("abc", "def", "ghi", "012")
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi.012", got)

	got, err = Join("abc.def", "*", "fed")
	require.NoError(t, err)
	assert.Equal(t, "abc.def.*.fed", got)

	got, err = Join("abc", ">")
	require.NoError(t, err)
	assert.Equal(t, "abc.>", got)
}

func TestJoinRejectsMultiWildcardBase(t *testing.T) {
	_, err := Join(">", "abc")
	assert.Error(t, err)

	_, err = Join("abc.def.>", "abc")
	assert.Error(t, err)

	_, err = Join("abc", ">", "cba")
	assert.Error(t, err)
}

func TestJoinRejectsInvalidToken(t *testing.T) {
	_, err := Join("abc", "de.f")
	assert.Error(t, err)

	_, err = Join("abc", "")
	assert.Error(t, err)
}

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"foo", "bar", "baz"}, Tokens("foo.bar.baz"))
	assert.Equal(t, []string{"foo"}, Tokens("foo"))
	assert.Nil(t, Tokens(""))
}

func TestHasWildcards(t *testing.T) {
	assert.True(t, HasWildcards("foo.*"))
	assert.True(t, HasWildcards("foo.>"))
	assert.False(t, HasWildcards("foo.bar"))
	assert.False(t, HasWildcards("a>b.c*d"))
}
