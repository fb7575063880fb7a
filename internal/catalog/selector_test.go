package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtxerr/trending/internal/errors"
)

func TestParseSelector(t *testing.T) {
	tests := []struct {
		selector string
		path     string
		want     bool
	}{
		{"*/Runtime/FreeMemory", "mcm/Runtime/FreeMemory", true},
		{"*/Runtime/FreeMemory", "mcm/Runtime/freememory", true},
		{"*/FreeMemory", "mcm/Runtime/FreeMemory", false},
		{"**/FreeMemory", "mcm/Runtime/FreeMemory", true},
		{"glob:mcm/*", "mcm/Runtime", true},
		{"glob:mcm/*", "mcm/Runtime/FreeMemory", false},
		{"mcm/Runtime/?reeMemory", "mcm/Runtime/FreeMemory", true},
		{"mcm/Runtime/?", "mcm/Runtime/", false},
		{"{mcm,mpm}/**", "mpm/State/Alert", true},
		{"{mcm,mpm}/**", "lamp/State/Alert", false},
		{"rebpower/Reb[0-2]/*", "rebpower/Reb1/Power", true},
		{"rebpower/Reb[!0-2]/*", "rebpower/Reb5/Power", true},
		{"rebpower/Reb[!0-2]/*", "rebpower/Reb1/Power", false},
		{"a+b.c", "a+b.c", true},
		{"a+b.c", "aab_c", false},
		{`x\*y`, "x*y", true},
		{"regex:focal-plane/.*", "focal-plane/R22/Temp", true},
		{"regex:focal-plane/.*", "x/focal-plane/R22", false},
		{"regex:.*/R34/.*/rds/.*", "focal-plane/r34/Reb0/RDS/Delay", true},
		{"**/température", "focal/température", true},
		{"**/TEMPÉRATURE", "focal/température", true},
		{"**/température", "focal/temperature", false},
		{"cryo/?C", "cryo/°C", true},
		{`x\é`, "xé", true},
		{"[éè]tat/*", "état/ok", true},
		{"", "", true},
		{"", "anything", false},
	}

	for _, tt := range tests {
		t.Run(tt.selector+"~"+tt.path, func(t *testing.T) {
			pred, err := ParseSelector(tt.selector)
			require.NoError(t, err)
			assert.Equal(t, tt.want, pred(tt.path))
		})
	}
}

func TestParseSelectorErrors(t *testing.T) {
	tests := []struct {
		name     string
		selector string
	}{
		{"unknown syntax", "sql:select"},
		{"bad regex", "regex:(unclosed"},
		{"unterminated class", "mcm/[abc"},
		{"unterminated group", "{mcm,mpm/**"},
		{"nested group", "{a,{b,c}}"},
		{"separator in class", "mcm[/]x"},
		{"dangling escape", `mcm\`},
		{"newline", "mcm\n/*"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pred, err := ParseSelector(tt.selector)
			assert.Nil(t, pred)
			assert.ErrorIs(t, err, errors.ErrSelector)
		})
	}
}

func TestGlobToRegexp(t *testing.T) {
	tests := []struct {
		glob string
		want string
	}{
		{"a/*", "a/[^/]*"},
		{"**", ".*"},
		{"a?", "a[^/]"},
		{"{x,y}", "(?:x|y)"},
		{"a,b", "a,b"},
		{"[!ab]", "[^/ab]"},
		{"a.b", `a\.b`},
		{"**/température", ".*/température"},
		{`\°C`, "°C"},
		{"Δ*", "Δ[^/]*"},
	}
	for _, tt := range tests {
		got, err := GlobToRegexp(tt.glob)
		require.NoError(t, err, tt.glob)
		assert.Equal(t, tt.want, got, tt.glob)
	}
}
