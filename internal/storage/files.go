package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nixlim/cc-sentinel/internal/limits"
	"github.com/nixlim/cc-sentinel/internal/scheduler"
	"github.com/nixlim/cc-sentinel/internal/tokens"
)

const (
	jobsFile       = "jobs.json"
	jobsLockFile   = "jobs.lock"
	runsDir        = "runs"
	runsPrefix     = "scheduled_runs_"
	tokensDir      = "tokens"
	ledgerPrefix   = "ledger_"
	limitsDir      = "limits"
	warningsPrefix = "limit_warnings_"

	compactDate = "20060102"
)

// FileStore keeps jobs, run history, limit warnings and the token ledger
// as JSON files under one data directory.
type FileStore struct {
	dir string

	jobsMu   sync.Mutex
	jobsSeen os.FileInfo // jobs.json as last loaded or saved; nil if absent
	appendMu sync.Mutex
}

var _ scheduler.SharedJobStore = (*FileStore)(nil)

// NewFileStore creates the data directory layout under dir.
func NewFileStore(dir string) (*FileStore, error) {
	for _, sub := range []string{"", runsDir, tokensDir, limitsDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the data directory.
func (f *FileStore) Dir() string { return f.dir }

func (f *FileStore) LoadJobs() (scheduler.JobSet, error) {
	f.jobsMu.Lock()
	defer f.jobsMu.Unlock()

	var set scheduler.JobSet
	path := filepath.Join(f.dir, jobsFile)
	f.jobsSeen, _ = os.Stat(path)
	ok, err := ReadJSON(path, &set)
	if err != nil {
		return scheduler.JobSet{NextID: 1}, err
	}
	if !ok {
		return scheduler.JobSet{NextID: 1}, nil
	}
	if set.Jobs == nil {
		set.Jobs = []scheduler.Job{}
	}
	return set, nil
}

func (f *FileStore) SaveJobs(set scheduler.JobSet) error {
	f.jobsMu.Lock()
	defer f.jobsMu.Unlock()

	if set.Jobs == nil {
		set.Jobs = []scheduler.Job{}
	}
	path := filepath.Join(f.dir, jobsFile)
	if err := WriteJSONAtomic(path, set); err != nil {
		return err
	}
	f.jobsSeen, _ = os.Stat(path)
	return nil
}

// JobsChanged reports whether jobs.json was replaced since this store last
// loaded or saved it. Every save renames a new file into place, so the file
// identity changes along with its mtime and size.
func (f *FileStore) JobsChanged() (bool, error) {
	f.jobsMu.Lock()
	defer f.jobsMu.Unlock()

	cur, err := os.Stat(filepath.Join(f.dir, jobsFile))
	if errors.Is(err, fs.ErrNotExist) {
		return f.jobsSeen != nil, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking jobs file: %w", err)
	}
	prev := f.jobsSeen
	if prev == nil {
		return true, nil
	}
	return !os.SameFile(prev, cur) || !cur.ModTime().Equal(prev.ModTime()) || cur.Size() != prev.Size(), nil
}

func (f *FileStore) runsPath(t time.Time) string {
	return filepath.Join(f.dir, runsDir, runsPrefix+t.Local().Format(compactDate)+".jsonl")
}

func (f *FileStore) AppendRun(rec scheduler.RunRecord) error {
	f.appendMu.Lock()
	defer f.appendMu.Unlock()
	return AppendJSONL(f.runsPath(rec.FiredAt), rec)
}

// Runs reads every daily run file and filters the merged history.
func (f *FileStore) Runs(jobID, limit int) ([]scheduler.RunRecord, error) {
	paths, err := f.datedFiles(runsDir, runsPrefix, ".jsonl")
	if err != nil {
		return nil, err
	}
	var all []scheduler.RunRecord
	for _, p := range paths {
		recs, err := readJSONL[scheduler.RunRecord](p.path)
		if err != nil {
			log.Printf("ERROR: %v", err)
		}
		all = append(all, recs...)
	}
	return scheduler.FilterRuns(all, jobID, limit), nil
}

func (f *FileStore) warningsPath(t time.Time) string {
	return filepath.Join(f.dir, limitsDir, warningsPrefix+t.Local().Format(compactDate)+".jsonl")
}

func (f *FileStore) AppendWarning(w limits.Warning) error {
	f.appendMu.Lock()
	defer f.appendMu.Unlock()
	return AppendJSONL(f.warningsPath(w.At), w)
}

// Warnings returns the warnings logged on the local day of day.
func (f *FileStore) Warnings(day time.Time) ([]limits.Warning, error) {
	return readJSONL[limits.Warning](f.warningsPath(day))
}

func (f *FileStore) ledgerPath(date string) string {
	return filepath.Join(f.dir, tokensDir, ledgerPrefix+date+".json")
}

func (f *FileStore) SaveDay(day tokens.DayTotals) error {
	if _, err := time.Parse(tokens.DateLayout, day.Date); err != nil {
		return fmt.Errorf("invalid ledger date %q: %w", day.Date, err)
	}
	return WriteJSONAtomic(f.ledgerPath(day.Date), day)
}

func (f *FileStore) LoadDay(date string) (tokens.DayTotals, bool, error) {
	var day tokens.DayTotals
	ok, err := ReadJSON(f.ledgerPath(date), &day)
	if err != nil || !ok {
		return tokens.DayTotals{}, false, err
	}
	if day.DistinctSources == nil {
		day.DistinctSources = []string{}
	}
	return day, true, nil
}

// LedgerDays returns the dates that have a ledger file, oldest first.
func (f *FileStore) LedgerDays() ([]string, error) {
	files, err := f.datedFiles(tokensDir, ledgerPrefix, ".json")
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(files))
	for _, df := range files {
		out = append(out, df.day.Format(tokens.DateLayout))
	}
	return out, nil
}

type datedFile struct {
	path string
	day  time.Time
}

// datedFiles lists files in sub named prefix+date+suffix, sorted by date.
// Both the compact and the dashed date layouts are accepted.
func (f *FileStore) datedFiles(sub, prefix, suffix string) ([]datedFile, error) {
	entries, err := os.ReadDir(filepath.Join(f.dir, sub))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing %s: %w", sub, err)
	}

	var out []datedFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimPrefix(name, prefix), suffix)
		day, err := time.ParseInLocation(compactDate, stamp, time.Local)
		if err != nil {
			day, err = time.ParseInLocation(tokens.DateLayout, stamp, time.Local)
			if err != nil {
				continue
			}
		}
		out = append(out, datedFile{path: filepath.Join(f.dir, sub, name), day: day})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].day.Before(out[j].day) })
	return out, nil
}

// Prune removes dated run, warning and ledger files whose day is more than
// retentionDays before now. jobs.json is never pruned.
func (f *FileStore) Prune(retentionDays int, now time.Time) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	y, m, d := now.Local().Date()
	cutoff := time.Date(y, m, d, 0, 0, 0, 0, time.Local).AddDate(0, 0, -retentionDays)

	removed := 0
	for _, kind := range []struct{ sub, prefix, suffix string }{
		{runsDir, runsPrefix, ".jsonl"},
		{limitsDir, warningsPrefix, ".jsonl"},
		{tokensDir, ledgerPrefix, ".json"},
	} {
		files, err := f.datedFiles(kind.sub, kind.prefix, kind.suffix)
		if err != nil {
			return removed, err
		}
		for _, df := range files {
			if !df.day.Before(cutoff) {
				continue
			}
			if err := os.Remove(df.path); err != nil {
				log.Printf("WARNING: removing %s: %v", df.path, err)
				continue
			}
			removed++
		}
	}
	return removed, nil
}
