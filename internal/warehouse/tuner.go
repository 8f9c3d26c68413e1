package warehouse

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"retflow/pkg/errors"
)

// Thresholds above which the planner schedules maintenance statements.
const (
	statsStaleThreshold = 10.0 // percent of rows with stale statistics
	unsortedThreshold   = 20.0 // percent of unsorted/bloated rows
)

// StepAction identifies a tuning step type.
type StepAction string

const (
	ActionAlterLayout StepAction = "alter_layout"
	ActionAnalyze     StepAction = "analyze"
	ActionVacuum      StepAction = "vacuum"
)

// TuningStep is one statement of a tuning plan.
type TuningStep struct {
	Action StepAction
	SQL    string
	Reason string
}

// StepResult records the outcome of an applied tuning step.
type StepResult struct {
	Step     TuningStep
	Duration time.Duration
	Err      error
}

// ScanEstimate summarizes the planner's estimate for the aggregation
// scan, extracted from EXPLAIN output.
type ScanEstimate struct {
	Cost     float64
	Rows     int64
	Warnings []string
}

// TableReport is the result of inspecting a table before tuning.
type TableReport struct {
	Info    *TableInfo
	Desired Layout
	Scan    *ScanEstimate
}

// Tuner inspects a table's physical layout and plans the statements
// that prepare it for the aggregation scan.
type Tuner struct {
	svc *Service
}

// NewTuner creates a tuner on top of a connected service.
func NewTuner(svc *Service) *Tuner {
	return &Tuner{svc: svc}
}

// Inspect reads the table's catalog entry and, when a sample query is
// given, the planner's estimate for it.
func (t *Tuner) Inspect(ctx context.Context, schema, table string, desired Layout, sampleQuery string) (*TableReport, error) {
	if !t.svc.connected {
		return nil, errors.New(errors.ErrCodeConnectionFailed, "Not connected to warehouse")
	}

	info, err := t.svc.dialect.InspectTable(ctx, t.svc.db, schema, table)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSQLExecution, "Table inspection failed").
			WithContext("table", table)
	}

	report := &TableReport{Info: info, Desired: desired}

	if sampleQuery != "" {
		scan, err := t.AnalyzeScan(ctx, sampleQuery)
		if err != nil {
			// The estimate is advisory; inspection still stands.
			report.Scan = &ScanEstimate{Warnings: []string{fmt.Sprintf("explain failed: %v", err)}}
		} else {
			report.Scan = scan
		}
	}

	return report, nil
}

// AnalyzeScan runs EXPLAIN on a query and extracts cost and row
// estimates from the plan text.
func (t *Tuner) AnalyzeScan(ctx context.Context, query string) (*ScanEstimate, error) {
	rows, err := t.svc.Query(ctx, t.svc.dialect.Explain(query))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	estimate := &ScanEstimate{}
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, err
		}
		parsePlanLine(line, estimate)
	}

	return estimate, rows.Err()
}

var (
	costPattern = regexp.MustCompile(`cost=(?:[0-9.]+\.\.)?([0-9.]+)`)
	rowsPattern = regexp.MustCompile(`rows=([0-9]+)`)
)

// parsePlanLine extracts estimates from one EXPLAIN output line. The
// format differs per engine so this only keys on the cost/rows markers
// both emit.
func parsePlanLine(line string, estimate *ScanEstimate) {
	if match := costPattern.FindStringSubmatch(line); len(match) > 1 {
		if cost, err := strconv.ParseFloat(match[1], 64); err == nil && cost > estimate.Cost {
			estimate.Cost = cost
		}
	}
	if match := rowsPattern.FindStringSubmatch(line); len(match) > 1 {
		if n, err := strconv.ParseInt(match[1], 10, 64); err == nil && n > estimate.Rows {
			estimate.Rows = n
		}
	}
	if strings.Contains(line, "DS_BCAST_INNER") || strings.Contains(line, "DS_DIST_BOTH") {
		estimate.Warnings = append(estimate.Warnings, "plan redistributes rows across nodes; check the distribution key")
	}
}

// Plan produces the ordered tuning steps for a report. Layout changes
// come first so ANALYZE and VACUUM run against the final layout.
func (t *Tuner) Plan(report *TableReport) []TuningStep {
	var steps []TuningStep
	d := t.svc.dialect
	table := report.Info.Table

	if !layoutSatisfied(d, report.Info, report.Desired) {
		for _, stmt := range d.AlterLayout(table, report.Desired) {
			steps = append(steps, TuningStep{
				Action: ActionAlterLayout,
				SQL:    stmt,
				Reason: fmt.Sprintf("layout does not match desired dist key %q / sort keys %v", report.Desired.DistKey, report.Desired.SortKeys),
			})
		}
	}

	if report.Info.StatsStalePct > statsStaleThreshold {
		steps = append(steps, TuningStep{
			Action: ActionAnalyze,
			SQL:    d.Analyze(table),
			Reason: fmt.Sprintf("statistics stale for %.1f%% of rows", report.Info.StatsStalePct),
		})
	}

	if report.Info.UnsortedPct > unsortedThreshold {
		steps = append(steps, TuningStep{
			Action: ActionVacuum,
			SQL:    d.Vacuum(table),
			Reason: fmt.Sprintf("%.1f%% of rows unsorted", report.Info.UnsortedPct),
		})
	}

	return steps
}

// Apply executes the tuning steps in order and stops at the first
// failure. Per-step outcomes are returned for reporting either way.
func (t *Tuner) Apply(ctx context.Context, steps []TuningStep) ([]StepResult, error) {
	results := make([]StepResult, 0, len(steps))

	for _, step := range steps {
		start := time.Now()
		err := t.svc.Exec(ctx, step.SQL)
		results = append(results, StepResult{
			Step:     step,
			Duration: time.Since(start),
			Err:      err,
		})
		if err != nil {
			return results, errors.Wrap(err, errors.ErrCodeSQLExecution,
				fmt.Sprintf("Tuning step %s failed", step.Action)).
				WithContext("statement", step.SQL)
		}
	}

	return results, nil
}

// BackupTable snapshots a table before layout changes and returns the
// backup table name.
func (t *Tuner) BackupTable(ctx context.Context, table, runID string) (string, error) {
	backup := fmt.Sprintf("%s_backup_%s", table, identSuffix(runID))
	stmt := t.svc.dialect.CreateTableAs(backup, fmt.Sprintf("SELECT * FROM %s", table))
	if err := t.svc.Exec(ctx, stmt); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeSQLExecution, "Failed to back up table").
			WithContext("table", table)
	}
	return backup, nil
}

// identSuffix reduces a run identifier to characters valid in an
// unquoted SQL identifier. Run IDs carry a "run-" prefix that would
// otherwise put a hyphen into the table name.
func identSuffix(runID string) string {
	var b strings.Builder
	for _, r := range strings.TrimPrefix(runID, "run-") {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// layoutSatisfied reports whether the current layout already matches
// the desired one for the active dialect.
func layoutSatisfied(d Dialect, info *TableInfo, desired Layout) bool {
	if desired.DistKey == "" && len(desired.SortKeys) == 0 {
		return true
	}

	switch d.Name() {
	case "snowflake":
		want := make([]string, 0, len(desired.SortKeys)+1)
		if desired.DistKey != "" {
			want = append(want, desired.DistKey)
		}
		for _, k := range desired.SortKeys {
			if k != desired.DistKey {
				want = append(want, k)
			}
		}
		if len(info.ClusterKeys) != len(want) {
			return false
		}
		for i, k := range want {
			if !strings.EqualFold(info.ClusterKeys[i], k) {
				return false
			}
		}
		return true
	default:
		if desired.DistKey != "" && !strings.EqualFold(info.DistKey, desired.DistKey) {
			return false
		}
		// svv_table_info only exposes the leading sort key column.
		if len(desired.SortKeys) > 0 {
			if len(info.SortKeys) == 0 || !strings.EqualFold(info.SortKeys[0], desired.SortKeys[0]) {
				return false
			}
		}
		return true
	}
}
