package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/snapetech/strmsync/internal/classify"
	"github.com/snapetech/strmsync/internal/materializer"
	"github.com/snapetech/strmsync/internal/registry"
	"github.com/snapetech/strmsync/internal/store"
)

// process registers one classified entry and, when its provider is now the
// canonical source, writes the artifact and records the change.
func (r *Runner) process(ctx context.Context, rn *run, o classify.Outcome) error {
	id := registryIdentity(o.Identity)
	path := r.artifactPath(o.Identity)
	res := string(o.Identity.Resolution)

	// Same-content entries are serialized end to end so artifact writes land
	// in registry decision order.
	unlock := r.locks.lock(id.Fingerprint())
	defer unlock()

	reg, err := r.cfg.Registry.RegisterOrUpdate(ctx, id, o.Entry.URL, path, rn.providerURL, res)
	if err != nil {
		return fmt.Errorf("register %q: %w", o.Identity.Title, err)
	}
	if !reg.Materialize() {
		return nil
	}

	// The registry has committed; the artifact must follow even if the
	// entry deadline has passed meanwhile.
	outcome, err := r.cfg.Artifacts.Write(path, o.Entry.URL)
	if err != nil {
		return fmt.Errorf("materialize %q: %w", o.Identity.Title, err)
	}
	r.cfg.Metrics.Artifact(string(outcome))
	if reg.PreviousPath != "" {
		if err := r.cfg.Artifacts.Remove(reg.PreviousPath); err != nil {
			r.log.Warn("pipeline: remove superseded artifact failed", "run_id", rn.id, "path", reg.PreviousPath, "err", err)
		} else {
			r.cfg.Metrics.Artifact("removed")
		}
	}
	r.recordChange(context.WithoutCancel(ctx), rn, o, reg, outcome)
	return nil
}

func (r *Runner) recordChange(ctx context.Context, rn *run, o classify.Outcome, reg registry.Result, outcome materializer.Outcome) {
	if r.cfg.Changes == nil || (outcome == materializer.Unchanged && !reg.Created) {
		return
	}
	action := store.ActionUpdated
	if reg.Created {
		action = store.ActionAdded
	}
	var details []string
	if res := o.Identity.Resolution; res != "" {
		details = append(details, "resolution="+string(res))
	}
	if reg.BecamePreferred && !reg.Created {
		details = append(details, "preferred provider switched")
	}
	if reg.PreviousPath != "" {
		details = append(details, "replaces "+reg.PreviousPath)
	}
	change := store.Change{
		ContentType: string(registryIdentity(o.Identity).Type),
		Action:      action,
		ItemName:    itemName(o.Identity),
		ProviderURL: rn.providerURL,
		Details:     strings.Join(details, "; "),
		RunID:       rn.id,
	}
	if err := r.cfg.Changes.Append(ctx, change); err != nil {
		r.log.Warn("pipeline: append change failed", "run_id", rn.id, "item", change.ItemName, "err", err)
	}
}

func (r *Runner) artifactPath(id classify.Identity) string {
	if id.Kind == classify.KindTV {
		return r.cfg.Layout.EpisodePath(materializer.Episode{
			Show:       id.Title,
			Season:     id.Season,
			Episode:    id.Episode,
			AirDate:    id.AirDate,
			Name:       id.EpisodeName,
			Resolution: string(id.Resolution),
		})
	}
	return r.cfg.Layout.MoviePath(id.Title, string(id.Resolution))
}

func registryIdentity(id classify.Identity) registry.Identity {
	out := registry.Identity{
		Type:  registry.Movie,
		Title: id.Title,
		Year:  id.Year,
	}
	if id.Kind == classify.KindTV {
		out = registry.Identity{
			Type:    registry.TVShow,
			Title:   id.Title,
			Season:  id.Season,
			Episode: id.Episode,
			AirDate: id.AirDate,
		}
	}
	return out
}

func itemName(id classify.Identity) string {
	switch {
	case id.Kind != classify.KindTV:
		if id.Year != "" {
			return fmt.Sprintf("%s (%s)", id.Title, id.Year)
		}
		return id.Title
	case id.Season != "" && id.Episode != "":
		return fmt.Sprintf("%s S%sE%s", id.Title, id.Season, id.Episode)
	default:
		return id.Title + " " + id.AirDate
	}
}
