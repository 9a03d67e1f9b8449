package server

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/NicolasHaas/gochat/pkg/datastore"
	"gopkg.in/yaml.v3"
)

// GroupYAML represents a group in YAML config.
type GroupYAML struct {
	Name string `yaml:"name"`
}

// GroupsConfig is the top-level YAML config for predefined groups.
type GroupsConfig struct {
	Groups []GroupYAML `yaml:"groups"`
}

// UserYAML represents a user in YAML export.
type UserYAML struct {
	Username  string `yaml:"username"`
	CreatedAt string `yaml:"created_at"`
}

// UsersExport is the top-level YAML for user export.
type UsersExport struct {
	Users []UserYAML `yaml:"users"`
}

// LoadGroupsFromYAML reads a groups YAML file and ensures each group exists
// in the directory. Bootstrap groups start empty; membership grows as users
// join at runtime.
func LoadGroupsFromYAML(path string, dir *GroupDirectory) error {
	data, err := os.ReadFile(path) //nolint:gosec // path from user-provided CLI config
	if err != nil {
		return fmt.Errorf("read groups config: %w", err)
	}

	var cfg GroupsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse groups config: %w", err)
	}

	for _, g := range cfg.Groups {
		if err := dir.Ensure(g.Name); err != nil {
			slog.Error("failed to create group from config", "name", g.Name, "err", err)
		}
	}

	slog.Info("loaded groups from YAML", "count", len(cfg.Groups))
	return nil
}

// ExportUsersYAML exports all registered users as YAML.
func ExportUsersYAML(st datastore.Store) ([]byte, error) {
	users, err := st.ListUsers()
	if err != nil {
		return nil, err
	}

	export := UsersExport{}
	for _, u := range users {
		export.Users = append(export.Users, UserYAML{
			Username:  u.Username,
			CreatedAt: u.CreatedAt.Format("2006-01-02T15:04:05Z"),
		})
	}
	return yaml.Marshal(&export)
}
