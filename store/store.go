// Package store persists VPC documents as a flat directory of JSON files,
// one per VPC. Writes are atomic (temp + rename in the same directory), so a
// document is only ever observable in a fully consistent form.
package store

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/projecteru2/vpcctl/types"
	"github.com/projecteru2/vpcctl/utils"
)

const (
	filePrefix = "vpc_"
	fileSuffix = ".json"
)

// Store reads and writes VPC documents under a data directory.
type Store struct {
	dir string
}

// New returns a Store rooted at dir. The directory must already exist.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the data directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the document path for a VPC name. The filename encodes the
// name reversibly so List can recover it.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, filePrefix+url.PathEscape(name)+fileSuffix)
}

// Exists reports whether a document for name is present.
func (s *Store) Exists(name string) bool {
	_, err := os.Stat(s.Path(name))
	return err == nil
}

// Load reads and parses the document for name. A missing file is
// ErrNotFound; an unparsable or inconsistent file is ErrStateCorrupt.
func (s *Store) Load(name string) (*types.VPC, error) {
	raw, err := os.ReadFile(s.Path(name)) //nolint:gosec // path derived from vpcctl data dir
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("VPC %q: %w", name, types.ErrNotFound)
		}
		return nil, fmt.Errorf("read VPC %q: %w", name, err)
	}
	v := &types.VPC{}
	if err := json.Unmarshal(raw, v); err != nil {
		return nil, fmt.Errorf("%w: VPC %q: %s", types.ErrStateCorrupt, name, err)
	}
	if v.Name != name {
		return nil, fmt.Errorf("%w: file for %q names %q", types.ErrStateCorrupt, name, v.Name)
	}
	return v, nil
}

// Save atomically replaces the document for v.Name, stamping UpdatedAt.
func (s *Store) Save(v *types.VPC) error {
	if v.Name == "" {
		return fmt.Errorf("%w: document without name", types.ErrStateCorrupt)
	}
	v.UpdatedAt = time.Now()
	if err := utils.AtomicWriteJSON(s.Path(v.Name), v); err != nil {
		return fmt.Errorf("save VPC %q: %w", v.Name, err)
	}
	return nil
}

// Delete removes the document for name. Deleting an absent document is an
// error so callers notice lost state.
func (s *Store) Delete(name string) error {
	if err := os.Remove(s.Path(name)); err != nil {
		return fmt.Errorf("delete VPC %q: %w", name, err)
	}
	return nil
}

// List returns the names of all stored VPCs, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read data dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		n := e.Name()
		if e.IsDir() || !strings.HasPrefix(n, filePrefix) || !strings.HasSuffix(n, fileSuffix) {
			continue
		}
		encoded := strings.TrimSuffix(strings.TrimPrefix(n, filePrefix), fileSuffix)
		name, err := url.PathUnescape(encoded)
		if err != nil {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// SavePolicy persists an applied or auto-generated policy document for
// inspection. The VPC document remains the authoritative record.
func (s *Store) SavePolicy(vpc, subnet string, p *types.Policy) (string, error) {
	name := fmt.Sprintf("policy_%s_%s.json", url.PathEscape(vpc), url.PathEscape(subnet))
	path := filepath.Join(s.dir, name)
	if err := utils.AtomicWriteJSON(path, p); err != nil {
		return "", fmt.Errorf("save policy for %s/%s: %w", vpc, subnet, err)
	}
	return path, nil
}
