// Package projectsettings implements the ProjectSettings external
// collaborator from spec §6: per-(gamespace, app) and per-gamespace-server
// repo/branch/commit bindings, persisted in SQLite via gorm.
package projectsettings

import (
	"context"
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// Settings is the {repo_url, branch, ssh_key, current_commit} record spec §6
// names for ProjectSettings.get/get_server.
type Settings struct {
	GamespaceID    string `gorm:"primaryKey;column:gamespace_id"`
	ApplicationKey string `gorm:"primaryKey;column:application_key"` // app name, or "$server" for get_server
	RepoURL        string `gorm:"column:repo_url"`
	Branch         string `gorm:"column:branch"`
	SSHKey         string `gorm:"column:ssh_key"`
	CurrentCommit  string `gorm:"column:current_commit"`
}

func (Settings) TableName() string { return "project_settings" }

// ServerKey is the ApplicationKey sentinel used by get_server, since the
// Server Code build (spec §4.8) has no application name/version of its own.
// Exported so callers building a buildcache project identifier for the
// Server Code path (router.Router.CallServer) can reuse the same constant.
const ServerKey = "$server"

const serverKey = ServerKey

// ProjectSettings resolves a gamespace/app to its source binding.
type ProjectSettings interface {
	Get(ctx context.Context, gamespace, app string) (Settings, error)
	GetServer(ctx context.Context, gamespace string) (Settings, error)
}

// Store is the default ProjectSettings, backed by a SQLite table.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if absent) the SQLite database at path and migrates
// the project_settings table.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("projectsettings: opening %s: %w", path, err)
	}
	if err := db.AutoMigrate(&Settings{}); err != nil {
		return nil, fmt.Errorf("projectsettings: migrating: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Get(ctx context.Context, gamespace, app string) (Settings, error) {
	var rec Settings
	err := s.db.WithContext(ctx).
		Where("gamespace_id = ? AND application_key = ?", gamespace, app).
		First(&rec).Error
	if err != nil {
		return Settings{}, fmt.Errorf("projectsettings: %s/%s: %w", gamespace, app, err)
	}
	return rec, nil
}

func (s *Store) GetServer(ctx context.Context, gamespace string) (Settings, error) {
	return s.Get(ctx, gamespace, serverKey)
}

// Put upserts a Settings record (used by admin tooling / scriptrtctl, not by
// the execution engine itself).
func (s *Store) Put(ctx context.Context, rec Settings) error {
	return s.db.WithContext(ctx).Save(&rec).Error
}
