// Package directory resolves user ids to display names and roles.
package directory

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Role is what a user may do in the review workflow
type Role string

const (
	RoleReviewer  Role = "reviewer"
	RoleSubmitter Role = "submitter"
)

// User is a directory entry
type User struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Role Role   `yaml:"role"`
}

type file struct {
	Users []User `yaml:"users"`
}

// Static is an in-memory directory, usually loaded from YAML
type Static struct {
	users map[string]User
}

// New builds a directory from users. Entries with an empty role are submitters.
func New(users []User) (*Static, error) {
	d := &Static{users: make(map[string]User, len(users))}
	for _, u := range users {
		u.ID = strings.TrimSpace(u.ID)
		if u.ID == "" {
			return nil, fmt.Errorf("user with empty id")
		}
		if _, dup := d.users[u.ID]; dup {
			return nil, fmt.Errorf("duplicate user id: %s", u.ID)
		}
		switch u.Role {
		case "":
			u.Role = RoleSubmitter
		case RoleReviewer, RoleSubmitter:
		default:
			return nil, fmt.Errorf("user %s: unknown role %q", u.ID, u.Role)
		}
		d.users[u.ID] = u
	}
	return d, nil
}

// Parse reads a directory from YAML of the form
//
//	users:
//	  - id: alice
//	    name: Alice Smith
//	    role: reviewer
func Parse(data []byte) (*Static, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing directory: %w", err)
	}
	return New(f.Users)
}

// Load reads a directory file from disk
func Load(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}
	return Parse(data)
}

// Lookup returns the user with the given id
func (d *Static) Lookup(id string) (User, bool) {
	u, ok := d.users[id]
	return u, ok
}

// DisplayName returns the user's name, falling back to the id
func (d *Static) DisplayName(id string) string {
	if u, ok := d.users[id]; ok && u.Name != "" {
		return u.Name
	}
	return id
}

// IsReviewer reports whether id is a known reviewer
func (d *Static) IsReviewer(id string) bool {
	u, ok := d.users[id]
	return ok && u.Role == RoleReviewer
}
