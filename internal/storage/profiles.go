package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultProfileName = "default"

	insightDir       = ".pytest_insight"
	profilesFileName = "profiles.json"
	sessionsFileName = "sessions.json"
)

// Profile names a storage target so CLI and API callers can switch between
// independent session histories (per team, per environment, scratch data).
type Profile struct {
	Name        string    `json:"name"`
	StorageType string    `json:"storage_type"`
	FilePath    string    `json:"file_path,omitempty"`
	Created     time.Time `json:"created"`
}

func (p *Profile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("profile name cannot be empty")
	}
	switch p.StorageType {
	case TypeJSON:
		if p.FilePath == "" {
			return fmt.Errorf("profile %s: json storage requires a file path", p.Name)
		}
	case TypeMemory:
	default:
		return fmt.Errorf("profile %s: invalid storage type %q, must be one of: json, memory", p.Name, p.StorageType)
	}
	return nil
}

type profilesFile struct {
	Profiles      map[string]*Profile `json:"profiles"`
	ActiveProfile string              `json:"active_profile"`
}

// ProfileManager owns the profile registry file. Instances are constructed
// explicitly by callers; there is no package-level registry.
type ProfileManager struct {
	path string
	log  logrus.FieldLogger

	// memory-profile stores live for the manager's lifetime
	memStores map[string]*MemoryStorage
}

func NewProfileManager(path string, log logrus.FieldLogger) *ProfileManager {
	return &ProfileManager{
		path:      path,
		log:       log.WithField("component", "profiles"),
		memStores: map[string]*MemoryStorage{},
	}
}

// DefaultProfilesPath is ~/.pytest_insight/profiles.json.
func DefaultProfilesPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, insightDir, profilesFileName), nil
}

func (m *ProfileManager) List() ([]*Profile, error) {
	file, err := m.load()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(file.Profiles))
	for name := range file.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)

	profiles := make([]*Profile, 0, len(names))
	for _, name := range names {
		profiles = append(profiles, file.Profiles[name])
	}
	return profiles, nil
}

func (m *ProfileManager) Get(name string) (*Profile, error) {
	file, err := m.load()
	if err != nil {
		return nil, err
	}
	p, ok := file.Profiles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}
	return p, nil
}

// Active returns the currently selected profile.
func (m *ProfileManager) Active() (*Profile, error) {
	file, err := m.load()
	if err != nil {
		return nil, err
	}
	p, ok := file.Profiles[file.ActiveProfile]
	if !ok {
		return nil, fmt.Errorf("%w: active profile %s", ErrProfileNotFound, file.ActiveProfile)
	}
	return p, nil
}

// Create registers a new profile. An empty filePath for json storage gets a
// default location under the registry's profile directory.
func (m *ProfileManager) Create(name, storageType, filePath string) (*Profile, error) {
	file, err := m.load()
	if err != nil {
		return nil, err
	}
	if _, ok := file.Profiles[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrProfileExists, name)
	}

	if storageType == TypeJSON && filePath == "" {
		filePath = filepath.Join(filepath.Dir(m.path), "profiles", name+".json")
	}

	p := &Profile{
		Name:        name,
		StorageType: storageType,
		FilePath:    filePath,
		Created:     time.Now().UTC(),
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	file.Profiles[name] = p
	if err := m.save(file); err != nil {
		return nil, err
	}
	m.log.WithField("profile", name).Info("created profile")
	return p, nil
}

// Switch makes the named profile active.
func (m *ProfileManager) Switch(name string) (*Profile, error) {
	file, err := m.load()
	if err != nil {
		return nil, err
	}
	p, ok := file.Profiles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}

	file.ActiveProfile = name
	if err := m.save(file); err != nil {
		return nil, err
	}
	return p, nil
}

// Delete removes a profile. The active profile cannot be deleted; switch
// away first. The backing data file is left on disk.
func (m *ProfileManager) Delete(name string) error {
	file, err := m.load()
	if err != nil {
		return err
	}
	if _, ok := file.Profiles[name]; !ok {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}
	if name == file.ActiveProfile {
		return fmt.Errorf("%w: %s", ErrActiveProfile, name)
	}

	delete(file.Profiles, name)
	delete(m.memStores, name)
	return m.save(file)
}

// StorageFor resolves a profile name to its storage backend. An empty name
// means the active profile. Memory-profile stores are shared per manager so
// repeated lookups see the same data.
func (m *ProfileManager) StorageFor(name string) (SessionStorage, error) {
	var (
		p   *Profile
		err error
	)
	if name == "" {
		p, err = m.Active()
	} else {
		p, err = m.Get(name)
	}
	if err != nil {
		return nil, err
	}

	switch p.StorageType {
	case TypeMemory:
		store, ok := m.memStores[p.Name]
		if !ok {
			store = NewMemoryStorage()
			m.memStores[p.Name] = store
		}
		return store, nil
	case TypeJSON:
		return NewJSONStorage(p.FilePath, m.log), nil
	default:
		return nil, fmt.Errorf("profile %s: invalid storage type %q", p.Name, p.StorageType)
	}
}

// load reads the registry, synthesizing the default profile when the file
// does not exist yet.
func (m *ProfileManager) load() (*profilesFile, error) {
	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return m.defaultRegistry(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read profile registry %s: %w", m.path, err)
	}

	var file profilesFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse profile registry %s: %w", m.path, err)
	}
	if file.Profiles == nil {
		file.Profiles = map[string]*Profile{}
	}
	if _, ok := file.Profiles[DefaultProfileName]; !ok {
		file.Profiles[DefaultProfileName] = m.defaultProfile()
	}
	if file.ActiveProfile == "" {
		file.ActiveProfile = DefaultProfileName
	}
	return &file, nil
}

func (m *ProfileManager) save(file *profilesFile) error {
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode profile registry: %w", err)
	}
	return writeAtomicFile(m.path, data, sessionFileMode)
}

func (m *ProfileManager) defaultRegistry() *profilesFile {
	return &profilesFile{
		Profiles:      map[string]*Profile{DefaultProfileName: m.defaultProfile()},
		ActiveProfile: DefaultProfileName,
	}
}

func (m *ProfileManager) defaultProfile() *Profile {
	return &Profile{
		Name:        DefaultProfileName,
		StorageType: TypeJSON,
		FilePath:    filepath.Join(filepath.Dir(m.path), sessionsFileName),
		Created:     time.Now().UTC(),
	}
}
