package vocabulary

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/indicate-eu/data-dictionary/internal/domain"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel) // Reduce noise in tests
	return logger
}

func writeExportFile(t *testing.T, dir, name string, lines []string) {
	t.Helper()
	content := ""
	for _, line := range lines {
		content += line + "\n"
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func createTestExport(t *testing.T) string {
	t.Helper()

	dir, err := os.MkdirTemp("", "athena-export-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	writeExportFile(t, dir, conceptFile, []string{
		"concept_id\tconcept_name\tdomain_id\tvocabulary_id\tconcept_class_id\tstandard_concept\tconcept_code\tvalid_start_date\tvalid_end_date\tinvalid_reason",
		"100\tHemoglobin A1c measurement\tMeasurement\tLOINC\tLab Test\tS\t4548-4\t19700101\t20991231\t",
		"101\tGlycated hemoglobin\tMeasurement\tLOINC\tLab Test\t\t4549-2\t19700101\t20991231\tD",
		"102\tHbA1c panel\tMeasurement\tLOINC\tLab Test\tS\t4550-0\t19700101\t20991231\t",
	})

	writeExportFile(t, dir, relationshipFile, []string{
		"concept_id_1\tconcept_id_2\trelationship_id\tvalid_start_date\tvalid_end_date\tinvalid_reason",
		"100\t101\tMaps to\t19700101\t20991231\t",
		"101\t100\tMapped from\t19700101\t20991231\t",
	})

	writeExportFile(t, dir, ancestorFile, []string{
		"ancestor_concept_id\tdescendant_concept_id\tmin_levels_of_separation\tmax_levels_of_separation",
		"100\t102\t1\t1",
		"100\t100\t0\t0",
	})

	return dir
}

func TestLoader_ImportDirectory(t *testing.T) {
	store := createTestStore(t)
	loader := NewLoader(store, 2, testLogger())
	exportDir := createTestExport(t)

	ctx := context.Background()

	stats, err := loader.ImportDirectory(ctx, exportDir)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Concepts)
	assert.Equal(t, int64(2), stats.Relationships)
	assert.Equal(t, int64(2), stats.Ancestors)

	// Concepts are queryable with tier and invalidity preserved
	c, err := store.Concept(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, "Hemoglobin A1c measurement", c.Name)
	assert.Equal(t, domain.STANDARD, c.StandardTier)

	invalid, err := store.Concept(ctx, 101)
	require.NoError(t, err)
	assert.Equal(t, "D", invalid.InvalidReason)
	assert.False(t, invalid.IsValidConcept())

	// Relationship edges round-trip
	ids, err := store.RelationshipsFrom(ctx, 100, []string{domain.RelationshipMapsTo})
	require.NoError(t, err)
	assert.Equal(t, []int64{101}, ids)

	// Closure rows round-trip, self row excluded from descendants
	desc, err := store.DescendantsOf(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, []int64{102}, desc)
}

func TestLoader_ImportDirectory_Rerun(t *testing.T) {
	store := createTestStore(t)
	loader := NewLoader(store, 100, testLogger())
	exportDir := createTestExport(t)

	ctx := context.Background()

	_, err := loader.ImportDirectory(ctx, exportDir)
	require.NoError(t, err)

	// Re-import replaces rather than duplicates
	stats, err := loader.ImportDirectory(ctx, exportDir)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Concepts)

	count, err := store.ConceptCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestLoader_ImportDirectory_MissingFile(t *testing.T) {
	store := createTestStore(t)
	loader := NewLoader(store, 100, testLogger())

	dir, err := os.MkdirTemp("", "athena-empty-*")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	_, err = loader.ImportDirectory(context.Background(), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), conceptFile)
}

func TestLoader_SkipsMalformedRows(t *testing.T) {
	store := createTestStore(t)
	loader := NewLoader(store, 100, testLogger())

	dir, err := os.MkdirTemp("", "athena-malformed-*")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	writeExportFile(t, dir, conceptFile, []string{
		"concept_id\tconcept_name\tdomain_id\tvocabulary_id\tconcept_class_id\tstandard_concept\tconcept_code\tvalid_start_date\tvalid_end_date\tinvalid_reason",
		"not-a-number\tBad row\tMeasurement\tLOINC\tLab Test\tS\tX\t19700101\t20991231\t",
		"short\trow",
		"100\tGood row\tMeasurement\tLOINC\tLab Test\tS\t4548-4\t19700101\t20991231\t",
	})
	writeExportFile(t, dir, relationshipFile, []string{
		"concept_id_1\tconcept_id_2\trelationship_id\tvalid_start_date\tvalid_end_date\tinvalid_reason",
	})
	writeExportFile(t, dir, ancestorFile, []string{
		"ancestor_concept_id\tdescendant_concept_id\tmin_levels_of_separation\tmax_levels_of_separation",
	})

	stats, err := loader.ImportDirectory(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Concepts)
}
