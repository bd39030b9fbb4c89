package subject

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/natswire/errors"
)

func TestParseTemplate(t *testing.T) {
	cases := []struct {
		pattern string
		valid   bool
	}{
		{"orders.{region}.{id}", true},
		{"{>prefix}.api.{number}.{>rest}", true},
		{"{>prefix}.api.{number}", true},
		{"events.{>path}", true},
		{"plain.literal", true},
		{"", false},
		{".orders", false},
		{"orders.", false},
		{"orders.{}", false},
		{"orders.{a b}", false},
		{"orders.{a}.{a}", false},
		{"orders.{>a}.{b}", false},
		{"orders.*.{id}", false},
		{"orders.{a*}", false},
	}
	for _, tc := range cases {
		_, err := ParseTemplate(tc.pattern)
		if tc.valid {
			assert.NoError(t, err, "pattern %q", tc.pattern)
		} else {
			assert.ErrorIs(t, err, errors.ErrBadSubject, "pattern %q", tc.pattern)
		}
	}
}

func TestTemplateNamesAndFilter(t *testing.T) {
	tpl, err := ParseTemplate("orders.{region}.shipments.{>path}")
	require.NoError(t, err)
	assert.Equal(t, []string{"region", "path"}, tpl.Names())

	filter, err := tpl.Filter()
	require.NoError(t, err)
	assert.Equal(t, "orders.*.shipments.>", filter)

	mid, err := ParseTemplate("{>prefix}.api.{number}")
	require.NoError(t, err)
	_, err = mid.Filter()
	assert.ErrorIs(t, err, errors.ErrBadSubject)
}

func TestTemplateFormat(t *testing.T) {
	tpl, err := ParseTemplate("orders.{region}.{>path}")
	require.NoError(t, err)

	s, err := tpl.Format(map[string]string{"region": "eu", "path": "a.b"})
	require.NoError(t, err)
	assert.Equal(t, "orders.eu.a.b", s)

	_, err = tpl.Format(map[string]string{"region": "eu"})
	assert.ErrorIs(t, err, errors.ErrBadSubject, "missing field")
	_, err = tpl.Format(map[string]string{"region": "e.u", "path": "a"})
	assert.ErrorIs(t, err, errors.ErrBadSubject, "separator in single field")
	_, err = tpl.Format(map[string]string{"region": "*", "path": "a"})
	assert.ErrorIs(t, err, errors.ErrBadSubject, "wildcard field value")
	_, err = tpl.Format(map[string]string{"region": "eu", "path": "a.>"})
	assert.ErrorIs(t, err, errors.ErrBadSubject, "wildcard in multi field value")
}

func TestTemplateBind(t *testing.T) {
	cases := []struct {
		pattern string
		subject string
		fields  map[string]string
	}{
		{"orders.{region}.{id}", "orders.eu.42",
			map[string]string{"region": "eu", "id": "42"}},
		{"events.{>path}", "events.a.b.c",
			map[string]string{"path": "a.b.c"}},
		{"{>prefix}.api.{number}", "cluster.east.api.7",
			map[string]string{"prefix": "cluster.east", "number": "7"}},
		{"{>prefix}.api.{number}.{>rest}", "east.api.7.v1.get",
			map[string]string{"prefix": "east", "number": "7", "rest": "v1.get"}},
		{"{>prefix}.api", "a.api.b.api",
			map[string]string{"prefix": "a.api.b"}},
		{"plain.literal", "plain.literal", map[string]string{}},
	}
	for _, tc := range cases {
		tpl, err := ParseTemplate(tc.pattern)
		require.NoError(t, err, "pattern %q", tc.pattern)
		fields, err := tpl.Bind(tc.subject)
		require.NoError(t, err, "bind %q against %q", tc.subject, tc.pattern)
		assert.Equal(t, tc.fields, fields, "bind %q against %q", tc.subject, tc.pattern)
	}
}

func TestTemplateBindMismatch(t *testing.T) {
	cases := []struct {
		pattern string
		subject string
	}{
		{"orders.{region}.{id}", "invoices.eu.42"},
		{"orders.{region}.{id}", "orders.eu"},
		{"orders.{region}.{id}", "orders.eu.42.extra"},
		{"events.{>path}.end", "events.a.b"},
		{"{>prefix}.api.{number}", "api.7"},
	}
	for _, tc := range cases {
		tpl, err := ParseTemplate(tc.pattern)
		require.NoError(t, err, "pattern %q", tc.pattern)
		_, err = tpl.Bind(tc.subject)
		assert.ErrorIs(t, err, errors.ErrTemplateMismatch,
			"bind %q against %q", tc.subject, tc.pattern)
	}
}

func TestTemplateBindRejectsWildcardSubject(t *testing.T) {
	tpl, err := ParseTemplate("orders.{region}")
	require.NoError(t, err)
	_, err = tpl.Bind("orders.*")
	assert.ErrorIs(t, err, errors.ErrBadSubject)
}
