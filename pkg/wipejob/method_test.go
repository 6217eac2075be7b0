package wipejob

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveMethod(t *testing.T) {
	tests := []struct {
		level      Level
		rotational bool
		want       Method
	}{
		{LevelLow, true, MethodHDDZero},
		{LevelMed, true, MethodHDDRandom},
		{LevelHigh, true, MethodHDDDoD},
		{LevelLow, false, MethodSSDDiscard},
		{LevelMed, false, MethodSSDDiscardZero},
		{LevelHigh, false, MethodSSDSecureErase},
	}

	for _, tt := range tests {
		got, err := ResolveMethod(tt.level, tt.rotational)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got,
			"level=%s rotational=%v", tt.level, tt.rotational)
	}

	_, err := ResolveMethod(Level("paranoid"), true)
	assert.Error(t, err)
}

func TestMethodFamily(t *testing.T) {
	assert.Equal(t, FamilyDD, MethodHDDZero.Family())
	assert.Equal(t, FamilyDD, MethodHDDRandom.Family())
	assert.Equal(t, FamilyDD, MethodSSDDiscardZero.Family())
	assert.Equal(t, FamilyShred, MethodHDDDoD.Family())
	assert.Equal(t, FamilyStatus, MethodSSDDiscard.Family())
	assert.Equal(t, FamilyStatus, MethodSSDSecureErase.Family())
}

func TestParseLevel(t *testing.T) {
	for _, s := range []string{"low", "med", "high", "LOW", "High"} {
		_, err := ParseLevel(s)
		assert.NoError(t, err, s)
	}
	for _, s := range []string{"", "medium", "3", "low; rm -rf /"} {
		_, err := ParseLevel(s)
		assert.Error(t, err, s)
	}
}
