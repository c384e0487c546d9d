package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/reprotrace/internal/store"
)

// ShowOptions holds flags for the show command.
type ShowOptions struct {
	*RootOptions
	Database string
	Session  string
	Name     string
	Sessions bool
}

// RecordView is a stored record row as printed by show. Missing or NaN
// summaries are null.
type RecordView struct {
	Position   int64    `json:"position"`
	ID         int64    `json:"id"`
	Label      string   `json:"label"`
	Name       string   `json:"name"`
	Time       uint64   `json:"time"`
	Arg        string   `json:"arg"`
	Kind       string   `json:"kind"`
	DType      string   `json:"dtype,omitempty"`
	Count      int      `json:"count"`
	Mean       *float64 `json:"mean"`
	Std        *float64 `json:"std"`
	Sig        *float64 `json:"sig"`
	MeanIm     *float64 `json:"mean_im,omitempty"`
	StdIm      *float64 `json:"std_im,omitempty"`
	SigIm      *float64 `json:"sig_im,omitempty"`
	Filename   string   `json:"filename"`
	LineNumber int      `json:"line_number"`
	CallerName string   `json:"caller_name"`
}

// ShowResult is the payload of show.
type ShowResult struct {
	Session store.Session `json:"session"`
	Records []RecordView  `json:"records"`
}

// SessionList is the payload of show --sessions.
type SessionList struct {
	Sessions []store.Session `json:"sessions"`
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print merged records stored in an export database",
		Long: `Print the merged records of one session of an export database.

Without --session the most recent session is shown. Array statistics are
listed with an empty summary; their dense values live in the arrays table.

Examples:
  reprotrace show --db out.db
  reprotrace show --db out.db --sessions
  reprotrace show --db out.db --session 0190c6c4-... --name numpy.dot --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite export database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session id (default latest)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "only records of this qualified function name")
	cmd.Flags().BoolVar(&opts.Sessions, "sessions", false, "list sessions instead of records")

	return cmd
}

func runShow(opts *ShowOptions, cmd *cobra.Command) error {
	if err := opts.prepare(cmd); err != nil {
		return err
	}
	out := opts.formatter(cmd)
	ctx := context.Background()

	st, err := store.Open(opts.Database, store.MustExist())
	if errors.Is(err, store.ErrNoDatabase) {
		return out.Fail(ExitCommandError, CodeStore, "database not found", err, nil)
	}
	if err != nil {
		return out.Fail(ExitCommandError, CodeStore, "failed to open database", err, nil)
	}
	defer st.Close()

	if opts.Sessions {
		sessions, err := st.ListSessions(ctx)
		if err != nil {
			return out.Fail(ExitCommandError, CodeStore, "failed to list sessions", err, nil)
		}
		if opts.Format == "json" {
			return out.Success(SessionList{Sessions: sessions})
		}
		return writeSessions(out, sessions)
	}

	var sess store.Session
	if opts.Session != "" {
		sess, err = st.ReadSession(ctx, opts.Session)
	} else {
		sess, err = st.LatestSession(ctx)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return out.Fail(ExitCommandError, CodeStore, "session not found", nil, map[string]string{"session": opts.Session})
	}
	if err != nil {
		return out.Fail(ExitCommandError, CodeStore, "failed to read session", err, nil)
	}

	var rows []store.RecordRow
	if opts.Name != "" {
		rows, err = st.ReadRecordsByName(ctx, sess.ID, opts.Name)
	} else {
		rows, err = st.ReadRecords(ctx, sess.ID)
	}
	if err != nil {
		return out.Fail(ExitCommandError, CodeStore, "failed to read records", err, nil)
	}

	result := ShowResult{Session: sess, Records: make([]RecordView, 0, len(rows))}
	for _, r := range rows {
		result.Records = append(result.Records, recordView(r))
	}
	if opts.Format == "json" {
		return out.Success(result)
	}
	return writeRecords(out, result)
}

func recordView(r store.RecordRow) RecordView {
	v := RecordView{
		Position:   r.Position,
		ID:         r.ID,
		Label:      string(r.Label),
		Name:       r.Name,
		Time:       r.Time,
		Arg:        r.Arg,
		Kind:       r.Kind,
		DType:      string(r.DType),
		Count:      r.Count,
		Mean:       finite(r.Mean),
		Std:        finite(r.Std),
		Sig:        finite(r.Sig),
		Filename:   r.Backtrace.Filename,
		LineNumber: r.Backtrace.LineNumber,
		CallerName: r.Backtrace.CallerName,
	}
	if r.IsComplex() {
		v.MeanIm, v.StdIm, v.SigIm = finite(r.MeanIm), finite(r.StdIm), finite(r.SigIm)
	}
	return v
}

// finite returns nil for NaN, which JSON cannot encode.
func finite(x float64) *float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return nil
	}
	return &x
}

func formatOptional(x *float64) string {
	if x == nil {
		return "-"
	}
	return strconv.FormatFloat(*x, 'g', 6, 64)
}

func writeSessions(out *Reporter, sessions []store.Session) error {
	if len(sessions) == 0 {
		fmt.Fprintln(out.Stdout, "No sessions found in database.")
		return nil
	}
	tw := tabwriter.NewWriter(out.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tSESSION\tRUNS\tMETHOD\tBATCH\tONLINE")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%d\t%t\n", s.CreatedSeq, s.ID, s.Runs, s.Method, s.BatchSize, s.Online)
	}
	return tw.Flush()
}

func writeRecords(out *Reporter, result ShowResult) error {
	s := result.Session
	fmt.Fprintf(out.Stdout, "Session: %s (runs=%d, method=%s)\n", s.ID, s.Runs, s.Method)
	if len(result.Records) == 0 {
		fmt.Fprintln(out.Stdout, "No records found.")
		return nil
	}

	tw := tabwriter.NewWriter(out.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "POS\tLABEL\tNAME\tARG\tKIND\tMEAN\tSTD\tSIG\tSITE")
	for _, r := range result.Records {
		mean, std, sig := formatOptional(r.Mean), formatOptional(r.Std), formatOptional(r.Sig)
		if r.MeanIm != nil || r.StdIm != nil || r.SigIm != nil {
			mean += "," + formatOptional(r.MeanIm)
			std += "," + formatOptional(r.StdIm)
			sig += "," + formatOptional(r.SigIm)
		}
		site := ""
		if r.Filename != "" {
			site = r.Filename + ":" + strconv.Itoa(r.LineNumber)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Position, strings.ToUpper(r.Label), r.Name, r.Arg, r.Kind, mean, std, sig, site)
	}
	return tw.Flush()
}
