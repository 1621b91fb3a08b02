package pipeline

import (
	"sort"

	"github.com/snapetech/strmsync/internal/classify"
	"github.com/snapetech/strmsync/internal/indexer"
)

// Sample is one classified entry shown in an analysis report.
type Sample struct {
	Line     int
	Name     string
	Kind     classify.Kind
	Skip     classify.SkipReason
	Via      string
	Identity classify.Identity
}

// Report is a dry-run classification of a playlist. Nothing is registered
// or written.
type Report struct {
	Total        int
	ByKind       map[classify.Kind]int
	SkippedBy    map[classify.SkipReason]int
	ByResolution map[classify.Resolution]int
	ByRule       map[string]int
	Samples      []Sample // first samplesPerKind of each kind and skip reason
}

const samplesPerKind = 5

// Analyze classifies entries with the runner's classifier.
func (r *Runner) Analyze(entries []indexer.RawEntry) Report {
	return Analyze(r.cfg.Classifier, entries, r.cfg.Workers, r.cfg.BatchSize)
}

// Analyze classifies entries in parallel and tallies the outcomes.
func Analyze(c *classify.Classifier, entries []indexer.RawEntry, workers, batchSize int) Report {
	r := &Runner{cfg: Config{Classifier: c, Workers: max(workers, 1), BatchSize: max(batchSize, 1)}}
	outcomes := r.classifyAll(entries)

	rep := Report{
		Total:        len(entries),
		ByKind:       make(map[classify.Kind]int),
		SkippedBy:    make(map[classify.SkipReason]int),
		ByResolution: make(map[classify.Resolution]int),
		ByRule:       make(map[string]int),
	}
	seen := make(map[string]int)
	for _, o := range outcomes {
		rep.ByRule[o.Via]++
		key := string(o.Skip)
		if o.Skipped() {
			rep.SkippedBy[o.Skip]++
		} else {
			rep.ByKind[o.Identity.Kind]++
			rep.ByResolution[o.Identity.Resolution]++
			key = string(o.Identity.Kind)
		}
		if seen[key] < samplesPerKind {
			seen[key]++
			rep.Samples = append(rep.Samples, Sample{
				Line:     o.Entry.Line,
				Name:     classify.DisplayName(o.Entry.Info),
				Kind:     o.Identity.Kind,
				Skip:     o.Skip,
				Via:      o.Via,
				Identity: o.Identity,
			})
		}
	}
	sort.SliceStable(rep.Samples, func(i, j int) bool { return rep.Samples[i].Line < rep.Samples[j].Line })
	return rep
}
