package link

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/basket/udo/internal/state"
)

// Project is the in-memory view of one linked working directory. It is
// rebuilt by every Load and never persisted as a whole.
type Project struct {
	WorkingPath  string
	StoragePath  string
	Name         string
	StorageID    string
	InProject    bool
	State        state.ProjectState
	SessionStart time.Time

	store *state.Store
}

// Store returns the state store of the project's storage path.
func (p *Project) Store() *state.Store { return p.store }

// SessionsPath returns the absolute session ledger directory.
func (p *Project) SessionsPath() string {
	return filepath.Join(p.StoragePath, filepath.FromSlash(SessionsDir))
}

// SaveState replaces the stored record with st and updates the snapshot.
func (p *Project) SaveState(st state.ProjectState) error {
	if p.store == nil {
		return fmt.Errorf("link: project %s has no state store", p.Name)
	}
	saved, err := p.store.Save(st)
	if err != nil {
		return err
	}
	p.State = saved
	return nil
}
