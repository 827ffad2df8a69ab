package quantum

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadCalibrationFileRoundTrip(t *testing.T) {
	cal := DefaultCalibration()
	path := filepath.Join(t.TempDir(), "calibration.json")

	require.NoError(t, SaveCalibrationFile(path, cal))
	loaded, err := LoadCalibrationFile(path)
	require.NoError(t, err)

	assert.Equal(t, cal.ModelID, loaded.ModelID)
	assert.Equal(t, cal.ModelVersion, loaded.ModelVersion)
	assert.Equal(t, cal.Global.Mean, loaded.Global.Mean)
	assert.Len(t, loaded.Categories, len(cal.Categories))
}

func TestLoadCalibrationFileRejectsMissingRequiredFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"PriorAlpha": 1}`), 0o600))

	_, err := LoadCalibrationFile(path)
	assert.Error(t, err, "expected schema validation error for missing required fields")
}

func TestLoadCalibrationFileRejectsInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "invalid.json")
	require.NoError(t, os.WriteFile(path, []byte(`not json`), 0o600))

	_, err := LoadCalibrationFile(path)
	assert.Error(t, err)
}

func TestGlobalCalibrationDefaultsWithoutSet(t *testing.T) {
	got := CurrentCalibration()
	want := DefaultCalibration()
	assert.Equal(t, want.ModelID, got.ModelID)
}

func TestSetGlobalCalibrationOverrides(t *testing.T) {
	custom := DefaultCalibration()
	custom.ModelID = "custom-calibration"
	SetGlobalCalibration(custom)
	defer SetGlobalCalibration(DefaultCalibration())

	assert.Equal(t, "custom-calibration", CurrentCalibration().ModelID)
}
