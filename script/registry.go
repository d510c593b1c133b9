// Package script holds user automation scripts and the sandbox that runs them.
package script

import (
	"fmt"
	"sync"
	"time"

	"github.com/robertmeta/feedcore/model"
)

// Persister stores script definitions. *store.Store satisfies it.
type Persister interface {
	SaveScript(sc model.Script) error
	DeleteScript(id int64) error
}

// Registry is the ordered collection of scripts. Order is registration order
// and is the order in which matching scripts run.
type Registry struct {
	mu      sync.RWMutex
	scripts []model.Script
	nextID  int64
	store   Persister
}

// NewRegistry builds a registry from previously stored scripts (ordered by
// id). A nil persister keeps scripts in memory only.
func NewRegistry(p Persister, scripts []model.Script) *Registry {
	r := &Registry{store: p, nextID: 1}
	for _, sc := range scripts {
		r.scripts = append(r.scripts, sc)
		if sc.ID >= r.nextID {
			r.nextID = sc.ID + 1
		}
	}
	return r
}

// Register validates and appends a script, assigning its id.
func (r *Registry) Register(sc model.Script) (model.Script, error) {
	if err := sc.Validate(); err != nil {
		return model.Script{}, model.NewValidationError("invalid script", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sc.ID = r.nextID
	sc.LastRun = nil
	sc.LastError = ""
	if err := r.save(sc); err != nil {
		return model.Script{}, err
	}
	r.nextID++
	r.scripts = append(r.scripts, sc)
	return sc, nil
}

// Update replaces the definition of an existing script. Its position and run
// history are kept.
func (r *Registry) Update(sc model.Script) (model.Script, error) {
	if err := sc.Validate(); err != nil {
		return model.Script{}, model.NewValidationError("invalid script", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.index(sc.ID)
	if i < 0 {
		return model.Script{}, model.Integrityf("script %d not found", sc.ID)
	}
	sc.LastRun = r.scripts[i].LastRun
	sc.LastError = r.scripts[i].LastError
	if err := r.save(sc); err != nil {
		return model.Script{}, err
	}
	r.scripts[i] = sc
	return sc, nil
}

// Remove deletes the registry entry only. Posts and script folder memberships
// are not touched.
func (r *Registry) Remove(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.index(id)
	if i < 0 {
		return model.Integrityf("script %d not found", id)
	}
	if r.store != nil {
		if err := r.store.DeleteScript(id); err != nil {
			return model.NewStorageError("failed to delete script", err)
		}
	}
	r.scripts = append(r.scripts[:i], r.scripts[i+1:]...)
	return nil
}

// Match returns the enabled scripts subscribed to kind whose scope contains
// feedID, in registration order.
func (r *Registry) Match(feedID int64, kind model.EventKind) []model.Script {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []model.Script
	for _, sc := range r.scripts {
		if sc.Matches(feedID, kind) {
			out = append(out, sc)
		}
	}
	return out
}

// List returns every script in registration order.
func (r *Registry) List() []model.Script {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]model.Script{}, r.scripts...)
}

func (r *Registry) Get(id int64) (model.Script, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i := r.index(id)
	if i < 0 {
		return model.Script{}, model.Integrityf("script %d not found", id)
	}
	return r.scripts[i], nil
}

// RecordRun stores the outcome of a run. A nil error clears the last error.
// Scripts removed while running are ignored.
func (r *Registry) RecordRun(id int64, at time.Time, runErr error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.index(id)
	if i < 0 {
		return nil
	}
	sc := r.scripts[i]
	at = at.UTC().Truncate(time.Second)
	sc.LastRun = &at
	sc.LastError = ""
	if runErr != nil {
		sc.LastError = runErr.Error()
	}
	if err := r.save(sc); err != nil {
		return err
	}
	r.scripts[i] = sc
	return nil
}

func (r *Registry) index(id int64) int {
	for i := range r.scripts {
		if r.scripts[i].ID == id {
			return i
		}
	}
	return -1
}

func (r *Registry) save(sc model.Script) error {
	if r.store == nil {
		return nil
	}
	if err := r.store.SaveScript(sc); err != nil {
		return model.NewStorageError(fmt.Sprintf("failed to save script %d", sc.ID), err)
	}
	return nil
}
