package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/alem-hub/tutoring-hub/internal/domain/shared"
	"github.com/alem-hub/tutoring-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// BATCH FORMAT
// A batch is a CSV file with one header row. Column names are case-sensitive.
// ══════════════════════════════════════════════════════════════════════════════

// Canonical column names.
const (
	ColLearnerCode    = "learner_external_id"
	ColLearnerName    = "learner_display_name"
	ColSubject        = "subject_name"
	ColTopic          = "topic_label"
	ColExamDate       = "exam_date"
	ColDayLabel       = "day_label"
	ColInstructorName = "instructor_display_name"
	ColScore          = "score"
)

// RequiredColumns lists every column a batch header must carry.
var RequiredColumns = []string{
	ColLearnerCode,
	ColLearnerName,
	ColSubject,
	ColTopic,
	ColExamDate,
	ColDayLabel,
	ColInstructorName,
	ColScore,
}

// legacyColumns maps the legacy export header onto canonical names.
var legacyColumns = map[string]string{
	"Student_ID":   ColLearnerCode,
	"Student_Name": ColLearnerName,
	"Subject":      ColSubject,
	"Topic":        ColTopic,
	"Test_Date":    ColExamDate,
	"Day":          ColDayLabel,
	"Teacher_Name": ColInstructorName,
	"Score":        ColScore,
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Source supplies one batch.
type Source interface {
	// Name identifies the batch in reports and logs.
	Name() string

	// Open returns the batch content. The caller closes it.
	Open(ctx context.Context) (io.ReadCloser, error)
}

// StaticSource is a batch held in memory.
type StaticSource struct {
	SourceName string
	Data       []byte
}

// Name implements Source.
func (s StaticSource) Name() string { return s.SourceName }

// Open implements Source.
func (s StaticSource) Open(context.Context) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(s.Data)), nil
}

// Row is one raw CSV record with its values trimmed.
type Row struct {
	Line           int
	LearnerCode    string `validate:"required"`
	LearnerName    string `validate:"required"`
	Subject        string `validate:"required"`
	Topic          string `validate:"required"`
	ExamDate       string `validate:"required"`
	DayLabel       string
	InstructorName string `validate:"required"`
	Score          string `validate:"required"`
}

// Record is a validated and converted row.
type Record struct {
	Line           int
	LearnerCode    string
	LearnerName    string
	Subject        string
	Topic          string
	ExamDate       time.Time
	DayLabel       string
	InstructorName string
	Score          float64
}

// Batch reads records from one CSV source in file order.
type Batch struct {
	name   string
	reader *csv.Reader
	index  map[string]int
	line   int
}

// OpenBatch reads and checks the header. A missing required column
// yields a SchemaError before any row is read.
func OpenBatch(name string, r io.Reader) (*Batch, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, shared.SchemaError("OpenBatch", fmt.Sprintf("%s: empty batch, no header row", name))
	}
	if err != nil {
		return nil, shared.ParseError("OpenBatch", fmt.Sprintf("%s: unreadable header", name), err)
	}

	index := make(map[string]int, len(header))
	for i, col := range header {
		if i == 0 {
			col = string(bytes.TrimPrefix([]byte(col), utf8BOM))
		}
		col = strings.TrimSpace(col)
		if canonical, ok := legacyColumns[col]; ok {
			col = canonical
		}
		if _, dup := index[col]; !dup {
			index[col] = i
		}
	}

	var missing []string
	for _, col := range RequiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, shared.SchemaError("OpenBatch",
			fmt.Sprintf("%s: missing required columns: %s", name, strings.Join(missing, ", ")))
	}

	return &Batch{name: name, reader: reader, index: index, line: 1}, nil
}

// Name returns the batch name.
func (b *Batch) Name() string { return b.name }

// Next returns the next record, or io.EOF when the batch is exhausted.
func (b *Batch) Next() (Record, error) {
	for {
		fields, err := b.reader.Read()
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				b.line = perr.Line
			}
			return Record{}, shared.ParseError("Next", fmt.Sprintf("%s line %d: malformed CSV", b.name, b.line), err)
		}
		b.line, _ = b.reader.FieldPos(0)
		if blank(fields) {
			continue
		}
		return b.convert(b.row(fields))
	}
}

func (b *Batch) row(fields []string) Row {
	get := func(col string) string {
		i := b.index[col]
		if i >= len(fields) {
			return ""
		}
		return strings.TrimSpace(fields[i])
	}
	return Row{
		Line:           b.line,
		LearnerCode:    get(ColLearnerCode),
		LearnerName:    get(ColLearnerName),
		Subject:        get(ColSubject),
		Topic:          get(ColTopic),
		ExamDate:       get(ColExamDate),
		DayLabel:       get(ColDayLabel),
		InstructorName: get(ColInstructorName),
		Score:          get(ColScore),
	}
}

func (b *Batch) convert(row Row) (Record, error) {
	if err := validate.Struct(row); err != nil {
		return Record{}, shared.ValidationError("ingest", "Next",
			fmt.Sprintf("%s line %d: %s", b.name, row.Line, describeValidation(err)))
	}

	examDate, err := timeutil.ParseDate(row.ExamDate)
	if err != nil {
		return Record{}, shared.ParseError("Next", fmt.Sprintf("%s line %d: exam date", b.name, row.Line), err)
	}

	score, err := strconv.ParseFloat(row.Score, 64)
	if err == nil && (math.IsNaN(score) || math.IsInf(score, 0)) {
		err = fmt.Errorf("score %q is not a finite number", row.Score)
	}
	if err != nil {
		return Record{}, shared.ParseError("Next", fmt.Sprintf("%s line %d: score", b.name, row.Line), err)
	}

	return Record{
		Line:           row.Line,
		LearnerCode:    row.LearnerCode,
		LearnerName:    row.LearnerName,
		Subject:        row.Subject,
		Topic:          row.Topic,
		ExamDate:       examDate,
		DayLabel:       row.DayLabel,
		InstructorName: row.InstructorName,
		Score:          score,
	}, nil
}

// describeValidation lists the empty fields reported by the validator.
func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	names := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		names = append(names, fieldColumn(fe.Field()))
	}
	return "empty required fields: " + strings.Join(names, ", ")
}

func fieldColumn(field string) string {
	switch field {
	case "LearnerCode":
		return ColLearnerCode
	case "LearnerName":
		return ColLearnerName
	case "Subject":
		return ColSubject
	case "Topic":
		return ColTopic
	case "ExamDate":
		return ColExamDate
	case "InstructorName":
		return ColInstructorName
	case "Score":
		return ColScore
	}
	return field
}

func blank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
