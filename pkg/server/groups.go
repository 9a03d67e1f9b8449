package server

import (
	"errors"
	"sort"
	"sync"

	"github.com/NicolasHaas/gochat/pkg/model"
)

var ErrGroupExists = errors.New("server: group already exists")
var ErrGroupNotFound = errors.New("server: group not found")

// GroupDirectory maps group names to member sets. The reserved Global group
// is not stored here: it is implicit in the session registry. Groups are
// never deleted; membership shrinks only when a member's session ends.
type GroupDirectory struct {
	mu      sync.RWMutex
	members map[string]map[string]struct{} // group name -> set of usernames
}

// NewGroupDirectory creates an empty directory.
func NewGroupDirectory() *GroupDirectory {
	return &GroupDirectory{
		members: make(map[string]map[string]struct{}),
	}
}

// Create adds a new group with creator as its sole initial member. Invalid
// names (empty, reserved, bad charset) and duplicates are rejected.
func (d *GroupDirectory) Create(name, creator string) error {
	if err := model.ValidateGroupName(name); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.members[name]; exists {
		return ErrGroupExists
	}
	d.members[name] = map[string]struct{}{creator: {}}
	return nil
}

// Ensure creates an empty group if it does not exist. Used for startup
// bootstrap, where there is no creator to enroll.
func (d *GroupDirectory) Ensure(name string) error {
	if err := model.ValidateGroupName(name); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.members[name]; !exists {
		d.members[name] = make(map[string]struct{})
	}
	return nil
}

// Join adds username to the group. Idempotent: joining twice has no
// additional effect.
func (d *GroupDirectory) Join(name, username string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	set, exists := d.members[name]
	if !exists {
		return ErrGroupNotFound
	}
	set[username] = struct{}{}
	return nil
}

// Members returns a snapshot of the group's member usernames. The second
// return value reports whether the group exists.
func (d *GroupDirectory) Members(name string) ([]string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	set, exists := d.members[name]
	if !exists {
		return nil, false
	}
	result := make([]string, 0, len(set))
	for username := range set {
		result = append(result, username)
	}
	return result, true
}

// Names returns the sorted group names.
func (d *GroupDirectory) Names() []string {
	d.mu.RLock()
	names := make([]string, 0, len(d.members))
	for name := range d.members {
		names = append(names, name)
	}
	d.mu.RUnlock()
	sort.Strings(names)
	return names
}

// RemoveEverywhere excises username from every group. Called on disconnect so
// a departed user never receives group deliveries.
func (d *GroupDirectory) RemoveEverywhere(username string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, set := range d.members {
		delete(set, username)
	}
}

// Count returns the number of named groups.
func (d *GroupDirectory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.members)
}
