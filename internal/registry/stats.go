package registry

import (
	"sort"
	"strconv"
	"strings"
)

// ProviderStat summarizes one provider's share of the registry.
type ProviderStat struct {
	ID        string
	Name      string
	URL       string
	FirstSeen string
	Items     int // records the provider offers
	Preferred int // records where it is the canonical source
}

// Stats is a point-in-time summary of the registry.
type Stats struct {
	Movies       int
	Episodes     int
	Shows        int
	MultiSource  int // records offered by more than one provider
	ByResolution map[string]int
	Providers    []ProviderStat // most preferred first
}

// Stats walks the whole document.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Stats{
		Movies:       len(r.doc.Movies),
		Episodes:     len(r.doc.TVShows),
		ByResolution: make(map[string]int),
	}
	byID := make(map[string]*ProviderStat, len(r.doc.Providers))
	for id, p := range r.doc.Providers {
		byID[id] = &ProviderStat{ID: id, Name: p.Name, URL: p.URL, FirstSeen: p.FirstSeen}
	}
	shows := make(map[string]struct{})
	count := func(rec *ContentRecord) {
		res := rec.Resolution
		if res == "" {
			res = "unknown"
		}
		st.ByResolution[res]++
		if len(rec.Providers) > 1 {
			st.MultiSource++
		}
		for pid := range rec.Providers {
			ps, ok := byID[pid]
			if !ok {
				ps = &ProviderStat{ID: pid, Name: pid}
				byID[pid] = ps
			}
			ps.Items++
			if pid == rec.PreferredProvider {
				ps.Preferred++
			}
		}
	}
	for _, rec := range r.doc.Movies {
		count(rec)
	}
	for _, rec := range r.doc.TVShows {
		count(rec)
		shows[strings.ToLower(rec.Title)] = struct{}{}
	}
	st.Shows = len(shows)
	for _, ps := range byID {
		st.Providers = append(st.Providers, *ps)
	}
	sort.Slice(st.Providers, func(i, j int) bool {
		a, b := st.Providers[i], st.Providers[j]
		if a.Preferred != b.Preferred {
			return a.Preferred > b.Preferred
		}
		return a.ID < b.ID
	})
	return st
}

// Gap lists the episode numbers missing from one season, between the lowest
// and highest episode the registry knows of.
type Gap struct {
	Show    string
	Season  string
	Have    int
	Missing []int
}

// EpisodeGaps returns seasons with holes, ordered by show then season.
// Date-numbered episodes carry no episode number and are ignored.
func (r *Registry) EpisodeGaps() []Gap {
	r.mu.Lock()
	type key struct{ show, season string }
	seasons := make(map[key]map[int]struct{})
	names := make(map[key]string)
	for _, rec := range r.doc.TVShows {
		if rec.Season == "" || rec.Episode == "" {
			continue
		}
		n, err := strconv.Atoi(rec.Episode)
		if err != nil {
			continue
		}
		k := key{strings.ToLower(rec.Title), pad2(rec.Season)}
		if seasons[k] == nil {
			seasons[k] = make(map[int]struct{})
			names[k] = rec.Title
		}
		seasons[k][n] = struct{}{}
	}
	r.mu.Unlock()

	var gaps []Gap
	for k, eps := range seasons {
		lo, hi := -1, -1
		for n := range eps {
			if lo < 0 || n < lo {
				lo = n
			}
			if n > hi {
				hi = n
			}
		}
		var missing []int
		for n := lo + 1; n < hi; n++ {
			if _, ok := eps[n]; !ok {
				missing = append(missing, n)
			}
		}
		if len(missing) > 0 {
			gaps = append(gaps, Gap{Show: names[k], Season: k.season, Have: len(eps), Missing: missing})
		}
	}
	sort.Slice(gaps, func(i, j int) bool {
		if a, b := strings.ToLower(gaps[i].Show), strings.ToLower(gaps[j].Show); a != b {
			return a < b
		}
		return gaps[i].Season < gaps[j].Season
	})
	return gaps
}

// LookupProvider finds a provider by id or exact URL.
func (r *Registry) LookupProvider(idOrURL string) (string, ProviderRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.doc.Providers[idOrURL]; ok {
		return idOrURL, *p, true
	}
	for id, p := range r.doc.Providers {
		if p.URL == idOrURL {
			return id, *p, true
		}
	}
	return "", ProviderRecord{}, false
}
