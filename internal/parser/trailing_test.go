package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/combatlog/combatlog/pkg/combatlog/event"
)

func TestParseTrailingRegion_None(t *testing.T) {
	tail := parseTrailingRegion("")
	assert.Equal(t, event.TrailingNone, tail.Kind)
	assert.Nil(t, tail.Threat)

	tail = parseTrailingRegion("   ")
	assert.Equal(t, event.TrailingNone, tail.Kind)
}

func TestParseTrailingRegion_ThreatOnly(t *testing.T) {
	tail := parseTrailingRegion(" <1.5>")
	assert.Equal(t, event.TrailingNone, tail.Kind)
	require.NotNil(t, tail.Threat)
	assert.InDelta(t, 1.5, *tail.Threat, 1e-9)
}

func TestParseTrailingRegion_Charges(t *testing.T) {
	tail := parseTrailingRegion("(3 charges)")
	assert.Equal(t, event.TrailingCharges, tail.Kind)
	assert.Equal(t, int32(3), tail.Charges)
}

func TestParseTrailingRegion_ChargesWithThreat(t *testing.T) {
	tail := parseTrailingRegion("(2 charges) <0.75>")
	assert.Equal(t, event.TrailingCharges, tail.Kind)
	assert.Equal(t, int32(2), tail.Charges)
	require.NotNil(t, tail.Threat)
	assert.InDelta(t, 0.75, *tail.Threat, 1e-9)
}

func TestParseTrailingRegion_Numeric(t *testing.T) {
	tail := parseTrailingRegion("(4200)")
	require.Equal(t, event.TrailingNumeric, tail.Kind)
	assert.Equal(t, int64(4200), tail.Numeric.Amount)
	assert.False(t, tail.Numeric.Crit)
}

func TestParseTrailingRegion_UnknownShape(t *testing.T) {
	tail := parseTrailingRegion("not parenthesized")
	assert.Equal(t, event.TrailingUnknown, tail.Kind)
	assert.Equal(t, "not parenthesized", tail.Unparsed)
}

func TestParseTrailingRegion_UnbalancedParens(t *testing.T) {
	tail := parseTrailingRegion("(4200")
	assert.Equal(t, event.TrailingUnknown, tail.Kind)
}

func TestParseTrailingRegion_TrailingGarbageAfterGroup(t *testing.T) {
	tail := parseTrailingRegion("(4200) garbage")
	assert.Equal(t, event.TrailingUnknown, tail.Kind)
}

func TestParseChargesGroup(t *testing.T) {
	n, ok := parseChargesGroup("3 charges")
	assert.True(t, ok)
	assert.Equal(t, int32(3), n)

	_, ok = parseChargesGroup("3 charge")
	assert.False(t, ok)

	_, ok = parseChargesGroup("charges")
	assert.False(t, ok)

	_, ok = parseChargesGroup("3 charges extra")
	assert.False(t, ok)
}

func TestParseValueGroup_Basic(t *testing.T) {
	v, ok := parseValueGroup("4200")
	require.True(t, ok)
	assert.Equal(t, int64(4200), v.Amount)
	assert.False(t, v.Crit)
	assert.Nil(t, v.Secondary)
	assert.Nil(t, v.School)
	assert.True(t, v.Mitigation.Empty())
}

func TestParseValueGroup_CritAndSecondary(t *testing.T) {
	v, ok := parseValueGroup("4200* ~100")
	require.True(t, ok)
	assert.True(t, v.Crit)
	require.NotNil(t, v.Secondary)
	assert.Equal(t, int64(100), *v.Secondary)
}

func TestParseValueGroup_NegativeAmount(t *testing.T) {
	v, ok := parseValueGroup("-500")
	require.True(t, ok)
	assert.Equal(t, int64(-500), v.Amount)
}

func TestParseValueGroup_School(t *testing.T) {
	v, ok := parseValueGroup("4200 kinetic {5}")
	require.True(t, ok)
	require.NotNil(t, v.School)
	assert.Equal(t, "kinetic", v.School.Name)
	assert.Equal(t, uint64(5), v.School.ID)
}

func TestParseValueGroup_SchoolWithoutId(t *testing.T) {
	v, ok := parseValueGroup("4200 kinetic")
	require.True(t, ok)
	require.NotNil(t, v.School)
	assert.Equal(t, "kinetic", v.School.Name)
	assert.Equal(t, uint64(0), v.School.ID)
}

func TestParseValueGroup_SingleMitigation(t *testing.T) {
	v, ok := parseValueGroup("0 -miss")
	require.True(t, ok)
	assert.True(t, v.Mitigation.Has(event.MitigationMiss))
}

func TestParseValueGroup_UnknownMitigationToken(t *testing.T) {
	_, ok := parseValueGroup("0 -bogus")
	assert.False(t, ok)
}

func TestParseValueGroup_ShieldWithAbsorbed(t *testing.T) {
	v, ok := parseValueGroup("4200 kinetic {5} -shield {6}(50 absorbed {7})")
	require.True(t, ok)
	assert.True(t, v.Mitigation.Has(event.MitigationShield))
	require.NotNil(t, v.Shield)
	assert.Equal(t, uint64(6), v.Shield.EffectID)
	assert.Equal(t, int64(50), v.Shield.Absorbed)
	assert.Equal(t, uint64(7), v.Shield.AbsorbedID)
}

func TestParseValueGroup_ShieldWithoutAbsorbed(t *testing.T) {
	v, ok := parseValueGroup("4200 -shield {6}")
	require.True(t, ok)
	require.NotNil(t, v.Shield)
	assert.Equal(t, uint64(6), v.Shield.EffectID)
	assert.Equal(t, int64(0), v.Shield.Absorbed)
}

func TestParseValueGroup_MultipleMitigationTokens(t *testing.T) {
	v, ok := parseValueGroup("0 -deflect -miss")
	require.True(t, ok)
	assert.True(t, v.Mitigation.Has(event.MitigationDeflect))
	assert.True(t, v.Mitigation.Has(event.MitigationMiss))
}

func TestParseValueGroup_TrailingGarbage(t *testing.T) {
	_, ok := parseValueGroup("4200 kinetic garbage-")
	assert.False(t, ok)
}

func TestParseValueGroup_NoAmount(t *testing.T) {
	_, ok := parseValueGroup("kinetic")
	assert.False(t, ok)
}

func TestParseAbsorbedGroup(t *testing.T) {
	absorbed, id, ok := parseAbsorbedGroup("50 absorbed {7}")
	assert.True(t, ok)
	assert.Equal(t, int64(50), absorbed)
	assert.Equal(t, uint64(7), id)

	_, _, ok = parseAbsorbedGroup("50 absorbed")
	assert.False(t, ok)

	_, _, ok = parseAbsorbedGroup("absorbed {7}")
	assert.False(t, ok)
}
