package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nvandessel/episim/internal/constants"
)

// Info describes an archive on disk.
type Info struct {
	Path      string    `json:"path"`
	RunID     string    `json:"run_id"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// RetentionPolicy decides which archives to keep.
type RetentionPolicy interface {
	Apply(archives []Info) (keep []Info)
}

// CountPolicy keeps the N most recent archives. Zero keeps everything.
type CountPolicy struct {
	MaxCount int
}

// Apply keeps the first MaxCount archives (assumed sorted newest-first).
func (p *CountPolicy) Apply(archives []Info) []Info {
	if p.MaxCount <= 0 || len(archives) <= p.MaxCount {
		return archives
	}
	return archives[:p.MaxCount]
}

// AgePolicy keeps archives newer than MaxAge.
type AgePolicy struct {
	MaxAge time.Duration
	now    func() time.Time
}

// Apply keeps archives whose CreatedAt is within MaxAge of now.
func (p *AgePolicy) Apply(archives []Info) []Info {
	now := time.Now
	if p.now != nil {
		now = p.now
	}
	cutoff := now().Add(-p.MaxAge)
	var keep []Info
	for _, a := range archives {
		if a.CreatedAt.After(cutoff) {
			keep = append(keep, a)
		}
	}
	return keep
}

// CompositePolicy keeps an archive if ANY sub-policy wants it.
type CompositePolicy struct {
	Policies []RetentionPolicy
}

// Apply returns the union of archives kept by any sub-policy, in input order.
func (p *CompositePolicy) Apply(archives []Info) []Info {
	kept := make(map[string]bool)
	for _, policy := range p.Policies {
		for _, a := range policy.Apply(archives) {
			kept[a.Path] = true
		}
	}

	var result []Info
	for _, a := range archives {
		if kept[a.Path] {
			result = append(result, a)
		}
	}
	return result
}

// List scans dir for run archives and returns them newest run first.
// A missing directory yields no archives.
func List(dir string) ([]Info, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading archive directory: %w", err)
	}

	var archives []Info
	seq := make(map[string]int64)
	for _, e := range entries {
		runID, ok := parseFileName(e.Name())
		if e.IsDir() || !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}

		a := Info{
			Path:      filepath.Join(dir, e.Name()),
			RunID:     runID,
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
		}
		if h, err := ReadHeader(a.Path); err == nil {
			a.CreatedAt = h.CreatedAt
		}
		seq[a.Path], _ = strconv.ParseInt(runID, 10, 64)
		archives = append(archives, a)
	}

	// Run ids grow past their padded width, so order numerically.
	sort.Slice(archives, func(i, j int) bool {
		return seq[archives[i].Path] > seq[archives[j].Path]
	})
	return archives, nil
}

// ApplyRetention deletes archives not kept by the policy and returns the
// removed paths.
func ApplyRetention(dir string, policy RetentionPolicy) (deleted []string, err error) {
	archives, err := List(dir)
	if err != nil {
		return nil, err
	}

	keep := policy.Apply(archives)
	keepSet := make(map[string]bool, len(keep))
	for _, a := range keep {
		keepSet[a.Path] = true
	}

	for _, a := range archives {
		if !keepSet[a.Path] {
			if err := os.Remove(a.Path); err != nil {
				return deleted, fmt.Errorf("removing %s: %w", filepath.Base(a.Path), err)
			}
			deleted = append(deleted, a.Path)
		}
	}
	return deleted, nil
}

// ParseDuration parses durations like "30d", "2w" and "720h".
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("empty duration string")
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}

	suffix := s[len(s)-1]
	num, err := strconv.Atoi(s[:len(s)-1])
	if err != nil {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}
	switch suffix {
	case 'd':
		return time.Duration(num) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(num) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unknown duration suffix %q in %q", string(suffix), s)
	}
}

// parseFileName extracts the run id from run_<id>.episim.gz.
func parseFileName(name string) (string, bool) {
	if !strings.HasPrefix(name, "run_") || !strings.HasSuffix(name, constants.ArchiveExt) {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(name, "run_"), constants.ArchiveExt)
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		return "", false
	}
	return id, true
}
