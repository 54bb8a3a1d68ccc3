// Package functionrepo implements the FunctionRepo external collaborator
// from spec §6: standalone, gamespace-scoped function records bindable to
// applications, with an import list resolved transitively at read time.
// Grounded on the original system's functions/application_functions tables
// (model/function.py): a function has a name, source code, and a
// comma-joined import list of other function names in the same gamespace.
package functionrepo

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// importNamePattern is the same identifier shape the original validates
// imports against (model/function.py's IMPORTS_PATTERN).
var importNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Function is one row of the functions table.
type Function struct {
	GamespaceID string `gorm:"primaryKey;column:gamespace_id"`
	Name        string `gorm:"primaryKey;column:function_name"`
	Code        string `gorm:"column:function_code"`
	Imports     string `gorm:"column:function_imports"` // comma-joined function names
}

func (Function) TableName() string { return "functions" }

// Binding is one row of the application_functions table: which application
// may invoke which standalone function.
type Binding struct {
	GamespaceID     string `gorm:"primaryKey;column:gamespace_id"`
	ApplicationName string `gorm:"primaryKey;column:application_name"`
	FunctionName    string `gorm:"primaryKey;column:function_name"`
}

func (Binding) TableName() string { return "application_functions" }

// NameSource is one (name, source) pair FunctionRepo.get_with_deps returns.
type NameSource struct {
	Name   string
	Source string
}

// FunctionRepo resolves a standalone function, plus every function it
// imports, by name.
type FunctionRepo interface {
	GetWithDeps(ctx context.Context, gamespace, fnName, app string) ([]NameSource, error)
}

// ValidateImports mirrors the original's Imports.validate: every entry must
// be a bare identifier.
func ValidateImports(imports []string) bool {
	for _, imp := range imports {
		if !importNamePattern.MatchString(imp) {
			return false
		}
	}
	return true
}

// ParseImports splits the stored comma-joined import list, mirroring
// Imports.parse. An empty string parses to no imports.
func ParseImports(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// Store is the default FunctionRepo, backed by SQLite via gorm.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if absent) the SQLite database at path and migrates
// the functions and application_functions tables.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("functionrepo: opening %s: %w", path, err)
	}
	if err := db.AutoMigrate(&Function{}, &Binding{}); err != nil {
		return nil, fmt.Errorf("functionrepo: migrating: %w", err)
	}
	return &Store{db: db}, nil
}

// GetWithDeps resolves fnName for app (if app is non-empty, the function
// must be bound to it via application_functions; if app is empty, no
// binding is checked and the gamespace-scoped lookup is used directly),
// then resolves every function named in its Imports list,
// mirroring get_function_with_dependencies.
func (s *Store) GetWithDeps(ctx context.Context, gamespace, fnName, app string) ([]NameSource, error) {
	db := s.db.WithContext(ctx)

	var fn Function
	if app != "" {
		err := db.
			Table("functions").
			Joins("JOIN application_functions ON application_functions.function_name = functions.function_name AND application_functions.gamespace_id = functions.gamespace_id").
			Where("functions.function_name = ? AND functions.gamespace_id = ? AND application_functions.application_name = ?", fnName, gamespace, app).
			First(&fn).Error
		if err != nil {
			return nil, fmt.Errorf("functionrepo: %s/%s/%s: %w", gamespace, app, fnName, err)
		}
	} else {
		if err := db.Where("gamespace_id = ? AND function_name = ?", gamespace, fnName).First(&fn).Error; err != nil {
			return nil, fmt.Errorf("functionrepo: %s/%s: %w", gamespace, fnName, err)
		}
	}

	imports := ParseImports(fn.Imports)
	result := make([]NameSource, 0, len(imports)+1)

	if len(imports) > 0 {
		var deps []Function
		if err := db.Where("gamespace_id = ? AND function_name IN ?", gamespace, imports).Find(&deps).Error; err != nil {
			return nil, fmt.Errorf("functionrepo: resolving imports of %s: %w", fnName, err)
		}
		for _, d := range deps {
			result = append(result, NameSource{Name: d.Name, Source: d.Code})
		}
	}
	result = append(result, NameSource{Name: fn.Name, Source: fn.Code})
	return result, nil
}

// Put creates or updates a function's code and import list, rejecting
// malformed import names the same way the original's Imports.validate does.
func (s *Store) Put(ctx context.Context, gamespace, name, code string, imports []string) error {
	if !ValidateImports(imports) {
		return fmt.Errorf("functionrepo: invalid import name in %v", imports)
	}
	fn := Function{
		GamespaceID: gamespace,
		Name:        name,
		Code:        code,
		Imports:     strings.Join(imports, ","),
	}
	return s.db.WithContext(ctx).Save(&fn).Error
}

// Bind grants app permission to call fnName, mirroring application_functions.
func (s *Store) Bind(ctx context.Context, gamespace, app, fnName string) error {
	return s.db.WithContext(ctx).Save(&Binding{
		GamespaceID:     gamespace,
		ApplicationName: app,
		FunctionName:    fnName,
	}).Error
}

// List returns every function recorded for gamespace.
func (s *Store) List(ctx context.Context, gamespace string) ([]Function, error) {
	var fns []Function
	if err := s.db.WithContext(ctx).Where("gamespace_id = ?", gamespace).Find(&fns).Error; err != nil {
		return nil, fmt.Errorf("functionrepo: listing %s: %w", gamespace, err)
	}
	return fns, nil
}
