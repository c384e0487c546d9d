package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/reprotrace/internal/merge"
	"github.com/roach88/reprotrace/internal/stats"
)

// Statistic kinds as stored in records.kind.
const (
	KindEmpty  = "empty"
	KindScalar = "scalar"
	KindArray  = "array"
	KindSparse = "sparse"
)

// leaf is one exported statistic. Tuple statistics are flattened into one
// leaf per position, named arg[i].
type leaf struct {
	arg  string
	stat *stats.Statistic
}

func flatten(dst []leaf, name string, st *stats.Statistic) []leaf {
	if st.Kind() == stats.KindTuple && len(st.Items()) > 0 {
		for i, item := range st.Items() {
			dst = flatten(dst, fmt.Sprintf("%s[%d]", name, i), item)
		}
		return dst
	}
	return append(dst, leaf{arg: name, stat: st})
}

func leafKind(st *stats.Statistic) string {
	switch {
	case st.Kind() != stats.KindArray:
		return KindEmpty
	case st.IsScalar():
		return KindScalar
	case st.IsSparse():
		return KindSparse
	}
	return KindArray
}

// WriteRecords appends merged records to a session in one transaction.
//
// Every argument yields a records row. Scalar statistics are stored inline
// with NaN as NULL; array statistics get a row in arrays holding their
// dense mean, std and sig. A record without arguments is stored as a single
// row with arg_index -1 so that every position is visible.
func (s *Store) WriteRecords(ctx context.Context, sessionID string, recs []merge.MergedRecord) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write records: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	recStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records
		(session_id, position, arg_index, id, label, module, function, name, time,
		 arg, kind, dtype, count, mean, std, sig, mean_im, std_im, sig_im,
		 filename, source_line, line_number, caller_name)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("write records: prepare: %w", err)
	}
	defer recStmt.Close()

	arrStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO arrays
		(session_id, label, arg, time, shape, mean, std, sig, mean_im, std_im, sig_im)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("write records: prepare: %w", err)
	}
	defer arrStmt.Close()

	var leaves []leaf
	for _, rec := range recs {
		leaves = leaves[:0]
		for _, as := range rec.Stats {
			leaves = flatten(leaves, as.Name, as.Stat)
		}

		if len(leaves) == 0 {
			if err := insertRecord(ctx, recStmt, sessionID, rec, -1, leaf{arg: "", stat: stats.Empty(0)}); err != nil {
				return err
			}
			continue
		}

		for i, l := range leaves {
			if err := insertRecord(ctx, recStmt, sessionID, rec, i, l); err != nil {
				return err
			}
			if k := leafKind(l.stat); k == KindArray || k == KindSparse {
				if err := insertArray(ctx, arrStmt, sessionID, rec, l); err != nil {
					return err
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write records: commit: %w", err)
	}
	return nil
}

func insertRecord(ctx context.Context, stmt *sql.Stmt, sessionID string, rec merge.MergedRecord, argIndex int, l leaf) error {
	kind := leafKind(l.stat)
	var mean, std, sig, meanIm, stdIm, sigIm any
	if kind == KindScalar {
		m, sd, sg := l.stat.Mean(), l.stat.Std(), l.stat.Sig()
		mean, std, sig = nullable(m.Re[0]), nullable(sd.Re[0]), nullable(sg.Re[0])
		if m.IsComplex() {
			meanIm, stdIm, sigIm = nullable(m.Im[0]), nullable(sd.Im[0]), nullable(sg.Im[0])
		}
	}

	_, err := stmt.ExecContext(ctx,
		sessionID,
		rec.Position,
		argIndex,
		rec.ID,
		string(rec.Label),
		rec.Module,
		rec.Function,
		rec.Name(),
		int64(rec.Time),
		l.arg,
		kind,
		string(l.stat.DType()),
		l.stat.Count(),
		mean, std, sig,
		meanIm, stdIm, sigIm,
		rec.Backtrace.Filename,
		rec.Backtrace.SourceLine,
		rec.Backtrace.LineNumber,
		rec.Backtrace.CallerName,
	)
	if err != nil {
		return fmt.Errorf("write record %d arg %q: %w", rec.Position, l.arg, err)
	}
	return nil
}

func insertArray(ctx context.Context, stmt *sql.Stmt, sessionID string, rec merge.MergedRecord, l leaf) error {
	shape, err := marshalShape(l.stat.Shape())
	if err != nil {
		return err
	}
	m, sd, sg := l.stat.Mean(), l.stat.Std(), l.stat.Sig()

	_, err = stmt.ExecContext(ctx,
		sessionID,
		string(rec.Label),
		l.arg,
		int64(rec.Time),
		shape,
		encodeFloats(m.Re), encodeFloats(sd.Re), encodeFloats(sg.Re),
		encodeOptional(m.Im), encodeOptional(sd.Im), encodeOptional(sg.Im),
	)
	if err != nil {
		return fmt.Errorf("write array %s/%s@%d: %w", rec.Label, l.arg, rec.Time, err)
	}
	return nil
}
