package credentials

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// maxProfiles bounds the stored history to the most recent networks.
const maxProfiles = 10

// Logger defines the logging interface used by the store.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Profile is one saved network credential.
type Profile struct {
	ID         string    `yaml:"id"`
	SSID       string    `yaml:"ssid"`
	Password   string    `yaml:"password"`
	LastUsedAt time.Time `yaml:"last_used_at"`
}

// Snapshot mirrors the single most-recently-used credential, kept as a
// separate document key for quick default-fill by other subsystems.
type Snapshot struct {
	SSID     string `yaml:"ssid"`
	Password string `yaml:"password"`
}

// Result reports the outcome of a write operation. Failures carry a
// message naming the backing file so callers can surface it; the store
// itself never panics or returns raw errors for these.
type Result struct {
	OK      bool
	Message string
}

func failure(format string, args ...any) Result {
	return Result{OK: false, Message: fmt.Sprintf(format, args...)}
}

// Store persists network credential profiles inside a shared YAML
// document.
//
// The document may hold arbitrary keys owned by other subsystems; the
// store rewrites only its own two keys on every save and passes all
// other keys through structurally unchanged. History is bounded: at most
// the ten most recently used networks survive, newest first, unique by
// exact SSID.
type Store struct {
	mu     sync.Mutex
	path   string
	logger Logger
}

// NewStore creates a credential store backed by the document at path.
func NewStore(path string) *Store {
	return &Store{path: path, logger: noopLogger{}}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// Path returns the backing document path.
func (s *Store) Path() string {
	return s.path
}

// Load returns all saved profiles, newest first.
// A missing or unreadable document degrades to an empty list.
func (s *Store) Load() []Profile {
	s.mu.Lock()
	defer s.mu.Unlock()

	root, err := readDocument(s.path)
	if err != nil {
		s.logger.Warn("loading credential profiles", "path", s.path, "error", err)
		return nil
	}
	return decodeProfiles(root)
}

// Save stores a credential, updating the profile with the same SSID in
// place or appending a new one. The profile becomes the most recently
// used; history is truncated to the newest ten and the active snapshot
// is refreshed.
func (s *Store) Save(ssid, password string) Result {
	ssid = strings.TrimSpace(ssid)
	if ssid == "" {
		return failure("network name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	root, err := readDocument(s.path)
	if err != nil {
		return failure("cannot read credential store at %s: %v", s.path, err)
	}

	profiles := decodeProfiles(root)
	now := time.Now().UTC()

	found := false
	for i := range profiles {
		if profiles[i].SSID == ssid {
			profiles[i].Password = password
			profiles[i].LastUsedAt = now
			found = true
			break
		}
	}
	if !found {
		profiles = append(profiles, Profile{
			ID:         uuid.New().String(),
			SSID:       ssid,
			Password:   password,
			LastUsedAt: now,
		})
	}

	profiles = sortAndTruncate(profiles)

	if err := s.writeOwnedKeys(root, profiles); err != nil {
		return failure("cannot write credential store at %s: %v", s.path, err)
	}

	s.logger.Debug("credential profile saved", "ssid", ssid, "profiles", len(profiles))
	return Result{OK: true}
}

// Delete removes a profile by id. An unknown id is a successful no-op.
// When the last profile is removed the active snapshot is cleared;
// otherwise it is refreshed to the newest remaining profile.
func (s *Store) Delete(id string) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	root, err := readDocument(s.path)
	if err != nil {
		return failure("cannot read credential store at %s: %v", s.path, err)
	}

	profiles := decodeProfiles(root)
	kept := profiles[:0]
	for _, p := range profiles {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	kept = sortAndTruncate(kept)

	if err := s.writeOwnedKeys(root, kept); err != nil {
		return failure("cannot write credential store at %s: %v", s.path, err)
	}

	return Result{OK: true}
}

// ActiveSnapshot returns the most-recently-used credential, or an empty
// snapshot when no profiles exist.
func (s *Store) ActiveSnapshot() Snapshot {
	profiles := s.Load()
	if len(profiles) == 0 {
		return Snapshot{}
	}
	return Snapshot{SSID: profiles[0].SSID, Password: profiles[0].Password}
}

// ActiveCredential returns the newest saved credential.
// ok is false when no profile exists.
func (s *Store) ActiveCredential() (ssid, password string, ok bool) {
	snap := s.ActiveSnapshot()
	if snap.SSID == "" {
		return "", "", false
	}
	return snap.SSID, snap.Password, true
}

// writeOwnedKeys rewrites the store's two document keys and persists.
// All other keys in root are carried through untouched.
func (s *Store) writeOwnedKeys(root *yaml.Node, profiles []Profile) error {
	snapshot := Snapshot{}
	if len(profiles) > 0 {
		snapshot = Snapshot{SSID: profiles[0].SSID, Password: profiles[0].Password}
	}

	snapNode, err := marshalNode(snapshot)
	if err != nil {
		return err
	}

	// A nil slice encodes as null; the document key should stay a list.
	if profiles == nil {
		profiles = []Profile{}
	}
	listNode, err := marshalNode(profiles)
	if err != nil {
		return err
	}

	setMapValue(root, keyActiveNetwork, snapNode)
	setMapValue(root, keyNetworkProfiles, listNode)

	return writeDocument(s.path, root)
}

// decodeProfiles extracts the profile list from the document, newest
// first. Entries that fail to decode are dropped.
func decodeProfiles(root *yaml.Node) []Profile {
	node := mapValue(root, keyNetworkProfiles)
	if node == nil {
		return nil
	}

	var profiles []Profile
	if err := node.Decode(&profiles); err != nil {
		return nil
	}
	return sortAndTruncate(profiles)
}

// sortAndTruncate orders profiles newest first and bounds the history.
func sortAndTruncate(profiles []Profile) []Profile {
	sort.SliceStable(profiles, func(i, j int) bool {
		return profiles[i].LastUsedAt.After(profiles[j].LastUsedAt)
	})
	if len(profiles) > maxProfiles {
		profiles = profiles[:maxProfiles]
	}
	return profiles
}
