package ingest

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/tutoring-hub/internal/domain/shared"
)

const canonicalHeader = "learner_external_id,learner_display_name,subject_name,topic_label,exam_date,day_label,instructor_display_name,score"

func readAll(t *testing.T, b *Batch) ([]Record, error) {
	t.Helper()
	var out []Record
	for {
		rec, err := b.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}

func TestOpenBatch_CanonicalHeader(t *testing.T) {
	data := canonicalHeader + "\n" +
		"S001,Jane Doe,Mathematics,Algebra,2024-03-10,Monday,Mr Smith,85.5\n"

	b, err := OpenBatch("grades.csv", strings.NewReader(data))
	require.NoError(t, err)

	recs, err := readAll(t, b)
	require.NoError(t, err)
	require.Len(t, recs, 1)

	rec := recs[0]
	assert.Equal(t, 2, rec.Line)
	assert.Equal(t, "S001", rec.LearnerCode)
	assert.Equal(t, "Jane Doe", rec.LearnerName)
	assert.Equal(t, "Mathematics", rec.Subject)
	assert.Equal(t, "Algebra", rec.Topic)
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), rec.ExamDate)
	assert.Equal(t, "Monday", rec.DayLabel)
	assert.Equal(t, "Mr Smith", rec.InstructorName)
	assert.Equal(t, 85.5, rec.Score)
}

func TestOpenBatch_LegacyHeaderAndColumnOrder(t *testing.T) {
	data := "\xEF\xBB\xBFScore,Student_ID,Student_Name,Subject,Topic,Test_Date,Day,Teacher_Name\n" +
		"72,S002,John Roe,Physics,Optics,2024-02-01,Thursday,Ms Lee\n"

	b, err := OpenBatch("legacy.csv", strings.NewReader(data))
	require.NoError(t, err)

	recs, err := readAll(t, b)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "S002", recs[0].LearnerCode)
	assert.Equal(t, 72.0, recs[0].Score)
	assert.Equal(t, "Ms Lee", recs[0].InstructorName)
}

func TestOpenBatch_MissingColumnIsSchemaError(t *testing.T) {
	data := "learner_external_id,learner_display_name,subject_name,topic_label,exam_date,day_label,score\n"

	_, err := OpenBatch("broken.csv", strings.NewReader(data))
	require.Error(t, err)
	assert.True(t, shared.IsSchema(err))
	assert.Contains(t, err.Error(), ColInstructorName)
}

func TestOpenBatch_HeaderIsCaseSensitive(t *testing.T) {
	data := strings.ToUpper(canonicalHeader) + "\n"

	_, err := OpenBatch("upper.csv", strings.NewReader(data))
	assert.True(t, shared.IsSchema(err))
}

func TestOpenBatch_EmptyInputIsSchemaError(t *testing.T) {
	_, err := OpenBatch("empty.csv", strings.NewReader(""))
	assert.True(t, shared.IsSchema(err))
}

func TestBatchNext_Errors(t *testing.T) {
	tests := []struct {
		name  string
		row   string
		check func(error) bool
	}{
		{"bad date", "S001,Jane,Math,Algebra,10/03/2024x,Monday,Mr Smith,80", shared.IsParse},
		{"bad score", "S001,Jane,Math,Algebra,2024-03-10,Monday,Mr Smith,eighty", shared.IsParse},
		{"nan score", "S001,Jane,Math,Algebra,2024-03-10,Monday,Mr Smith,NaN", shared.IsParse},
		{"empty learner code", ",Jane,Math,Algebra,2024-03-10,Monday,Mr Smith,80", shared.IsValidation},
		{"empty score", "S001,Jane,Math,Algebra,2024-03-10,Monday,Mr Smith,", shared.IsValidation},
		{"short row", "S001,Jane,Math", shared.IsValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := OpenBatch("rows.csv", strings.NewReader(canonicalHeader+"\n"+tt.row+"\n"))
			require.NoError(t, err)

			_, err = b.Next()
			require.Error(t, err)
			assert.True(t, tt.check(err), err.Error())
			assert.Contains(t, err.Error(), "line 2")
		})
	}
}

func TestBatchNext_EmptyDayLabelAllowed(t *testing.T) {
	data := canonicalHeader + "\nS001,Jane,Math,Algebra,2024-03-10,,Mr Smith,80\n"

	b, err := OpenBatch("rows.csv", strings.NewReader(data))
	require.NoError(t, err)

	rec, err := b.Next()
	require.NoError(t, err)
	assert.Empty(t, rec.DayLabel)
}

func TestBatchNext_SkipsBlankRecords(t *testing.T) {
	data := canonicalHeader + "\n" +
		"S001,Jane,Math,Algebra,2024-03-10,Monday,Mr Smith,80\n" +
		",,,,,,,\n" +
		"S002,John,Math,Algebra,2024-03-10,Monday,Mr Smith,90\n"

	b, err := OpenBatch("rows.csv", strings.NewReader(data))
	require.NoError(t, err)

	recs, err := readAll(t, b)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 4, recs[1].Line)
}
