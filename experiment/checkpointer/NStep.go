package checkpointer

import (
	"fmt"
	"path/filepath"
	"sort"
)

// Set is a named collection of Persistables stored under a common
// directory. Each Persistable is stored at filepath.Join(dir, name).
type Set struct {
	dir     string
	objects map[string]Persistable
}

// NewSet returns a new, empty Set rooted at dir
func NewSet(dir string) *Set {
	return &Set{dir: dir, objects: make(map[string]Persistable)}
}

// Register adds a Persistable to the Set under name. Register panics
// if name is already registered.
func (s *Set) Register(name string, p Persistable) {
	if _, ok := s.objects[name]; ok {
		panic(fmt.Sprintf("register: %v already registered", name))
	}
	s.objects[name] = p
}

// Names returns the sorted names of all registered Persistables
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.objects))
	for name := range s.objects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Path returns the path at which the Persistable name is stored
func (s *Set) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Store stores every registered Persistable
func (s *Set) Store() error {
	for _, name := range s.Names() {
		if err := s.objects[name].Store(s.Path(name)); err != nil {
			return fmt.Errorf("store %v: %v", name, err)
		}
	}
	return nil
}

// Restore restores every registered Persistable. Persistables that
// have no stored state are left freshly initialized, and their names
// are returned in fresh.
func (s *Set) Restore() (fresh []string, err error) {
	for _, name := range s.Names() {
		err := s.objects[name].Restore(s.Path(name))
		if IsNotExist(err) {
			fresh = append(fresh, name)
			continue
		} else if err != nil {
			return fresh, fmt.Errorf("restore %v: %v", name, err)
		}
	}
	return fresh, nil
}

// NStep implements checkpointing a Set every N updates
type NStep struct {
	interval int
	set      *Set
}

// NewNStep returns a checkpointer that stores set every n updates
func NewNStep(n int, set *Set) *NStep {
	if n < 1 {
		panic("newNStep: interval must be >= 1")
	}
	return &NStep{interval: n, set: set}
}

// Checkpoint stores the Set if update is a multiple of the interval
// or if last is true. It returns whether a checkpoint was written.
func (n *NStep) Checkpoint(update int, last bool) (bool, error) {
	if update%n.interval == 0 || last {
		return true, n.set.Store()
	}
	return false, nil
}
