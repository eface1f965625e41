package roster

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	ports "github.com/ZanzyTHEbar/roundtable/roundtable/orchestration/ports"
)

// HandleFactory creates the backend handle for a newly added agent.
type HandleFactory func(profile *AgentProfile) (ports.AgentHandle, error)

// Sync reconciles the roster with a roster file: unknown ids are queued for
// add, ids missing from the file are queued for removal, and existing
// profiles get their flags updated in place.
func Sync(r *Roster, f *File, handles HandleFactory, logger zerolog.Logger) error {
	wanted := make(map[string]AgentSpec, len(f.Agents))
	for _, spec := range f.Agents {
		wanted[spec.ID] = spec
	}

	pendingAdds, _ := r.Pending()
	queued := make(map[string]struct{}, len(pendingAdds))
	for _, id := range pendingAdds {
		queued[id] = struct{}{}
	}

	for _, p := range r.Agents() {
		spec, keep := wanted[p.ID]
		if !keep {
			r.QueueRemoveAgent(p.ID)
			continue
		}
		r.CancelRemoval(p.ID)
		r.UpdateProfile(p.ID, spec.Apply)
		delete(wanted, p.ID)
	}

	for _, spec := range f.Agents {
		if _, add := wanted[spec.ID]; !add {
			continue
		}
		if _, already := queued[spec.ID]; already {
			continue
		}
		profile := spec.Profile()
		if handles != nil {
			h, err := handles(profile)
			if err != nil {
				return fmt.Errorf("failed to create handle for agent %s: %w", spec.ID, err)
			}
			profile.Handle = h
		}
		if r.QueueAddAgent(profile) {
			logger.Info().Str("agent_id", profile.ID).Str("agent", profile.Name).Msg("Agent joins at next round")
		}
	}
	return nil
}

// Watcher reloads a roster file whenever it changes.
type Watcher struct {
	path    string
	roster  *Roster
	handles HandleFactory
	logger  zerolog.Logger
}

// NewWatcher creates a watcher for path.
func NewWatcher(path string, r *Roster, handles HandleFactory, logger zerolog.Logger) *Watcher {
	return &Watcher{
		path:    path,
		roster:  r,
		handles: handles,
		logger:  logger.With().Str("component", "roster_watcher").Str("path", path).Logger(),
	}
}

// Reload reads the file once and syncs the roster.
func (w *Watcher) Reload() error {
	f, err := LoadFile(w.path)
	if err != nil {
		return err
	}
	return Sync(w.roster, f, w.handles, w.logger)
}

// Run watches the file's directory until ctx is done. Editors often replace
// files atomically, so the directory is watched rather than the file.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create roster watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.path, err)
	}

	target := filepath.Clean(w.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			if err := w.Reload(); err != nil {
				w.logger.Warn().Err(err).Msg("Roster reload failed")
				continue
			}
			w.logger.Info().Msg("Roster file reloaded")
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("Roster watcher error")
		}
	}
}
