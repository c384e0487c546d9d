package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/reprotrace/internal/stats"
	"github.com/roach88/reprotrace/internal/trace"
)

// RecordRow is one exported (record, argument) row.
// Summary fields are NaN when NULL in the database.
type RecordRow struct {
	Position  int64
	ArgIndex  int
	ID        int64
	Label     trace.Label
	Module    string
	Function  string
	Name      string
	Time      uint64
	Arg       string
	Kind      string
	DType     trace.DType
	Count     int
	Mean      float64
	Std       float64
	Sig       float64
	MeanIm    float64
	StdIm     float64
	SigIm     float64
	Backtrace trace.Backtrace
}

// IsComplex reports whether the row carries imaginary parts.
func (r RecordRow) IsComplex() bool {
	return r.DType.IsComplex()
}

// ArrayRow holds the dense summary of one array statistic.
type ArrayRow struct {
	Label trace.Label
	Arg   string
	Time  uint64
	Mean  stats.Array
	Std   stats.Array
	Sig   stats.Array
}

const recordColumns = `
	position, arg_index, id, label, module, function, name, time, arg, kind, dtype, count,
	mean, std, sig, mean_im, std_im, sig_im,
	filename, source_line, line_number, caller_name`

// ReadRecords returns a session's rows ordered by position then argument.
// Returns an empty slice (not nil) if the session has none.
func (s *Store) ReadRecords(ctx context.Context, sessionID string) ([]RecordRow, error) {
	return s.queryRecords(ctx, `
		SELECT `+recordColumns+`
		FROM records
		WHERE session_id = ?
		ORDER BY position ASC, arg_index ASC
	`, sessionID)
}

// ReadRecordsByName returns the rows of one qualified function name.
func (s *Store) ReadRecordsByName(ctx context.Context, sessionID, name string) ([]RecordRow, error) {
	return s.queryRecords(ctx, `
		SELECT `+recordColumns+`
		FROM records
		WHERE session_id = ? AND name = ?
		ORDER BY position ASC, arg_index ASC
	`, sessionID, name)
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]RecordRow, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	out := []RecordRow{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

func scanRecord(row scanner) (RecordRow, error) {
	var (
		r                    RecordRow
		label, dtype         string
		t                    int64
		mean, std, sig       sql.NullFloat64
		meanIm, stdIm, sigIm sql.NullFloat64
	)
	err := row.Scan(
		&r.Position, &r.ArgIndex, &r.ID, &label, &r.Module, &r.Function, &r.Name, &t,
		&r.Arg, &r.Kind, &dtype, &r.Count,
		&mean, &std, &sig, &meanIm, &stdIm, &sigIm,
		&r.Backtrace.Filename, &r.Backtrace.SourceLine, &r.Backtrace.LineNumber, &r.Backtrace.CallerName,
	)
	if err != nil {
		return RecordRow{}, fmt.Errorf("scan record: %w", err)
	}
	r.Label = trace.Label(label)
	r.DType = trace.DType(dtype)
	r.Time = uint64(t)
	r.Mean, r.Std, r.Sig = fromNullable(mean), fromNullable(std), fromNullable(sig)
	r.MeanIm, r.StdIm, r.SigIm = fromNullable(meanIm), fromNullable(stdIm), fromNullable(sigIm)
	return r, nil
}

const arrayColumns = `label, arg, time, shape, mean, std, sig, mean_im, std_im, sig_im`

// ReadArrays returns a session's array statistics ordered by time, label
// and argument.
// Returns an empty slice (not nil) if there are none.
func (s *Store) ReadArrays(ctx context.Context, sessionID string) ([]ArrayRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+arrayColumns+`
		FROM arrays
		WHERE session_id = ?
		ORDER BY time ASC, label ASC, arg COLLATE BINARY ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query arrays: %w", err)
	}
	defer rows.Close()

	out := []ArrayRow{}
	for rows.Next() {
		a, err := scanArray(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate arrays: %w", err)
	}
	return out, nil
}

// ReadArray retrieves one array statistic by its export key.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadArray(ctx context.Context, sessionID string, label trace.Label, arg string, time uint64) (ArrayRow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+arrayColumns+`
		FROM arrays
		WHERE session_id = ? AND label = ? AND arg = ? AND time = ?
	`, sessionID, string(label), arg, int64(time))

	a, err := scanArray(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ArrayRow{}, sql.ErrNoRows
	}
	return a, err
}

func scanArray(row scanner) (ArrayRow, error) {
	var (
		a                    ArrayRow
		label, shapeText     string
		t                    int64
		mean, std, sig       []byte
		meanIm, stdIm, sigIm []byte
	)
	if err := row.Scan(&label, &a.Arg, &t, &shapeText, &mean, &std, &sig, &meanIm, &stdIm, &sigIm); err != nil {
		return ArrayRow{}, fmt.Errorf("scan array: %w", err)
	}
	a.Label = trace.Label(label)
	a.Time = uint64(t)

	shape, err := unmarshalShape(shapeText)
	if err != nil {
		return ArrayRow{}, err
	}

	parts := []struct {
		dst    *stats.Array
		re, im []byte
	}{
		{&a.Mean, mean, meanIm},
		{&a.Std, std, stdIm},
		{&a.Sig, sig, sigIm},
	}
	for _, p := range parts {
		re, err := decodeFloats(p.re)
		if err != nil {
			return ArrayRow{}, err
		}
		im, err := decodeOptional(p.im)
		if err != nil {
			return ArrayRow{}, err
		}
		*p.dst = stats.Array{Shape: shape, Re: re, Im: im}
	}
	return a, nil
}
