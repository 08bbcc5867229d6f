package state

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	apperrors "github.com/zepposd/docudigitize/internal/errors"
	"github.com/zepposd/docudigitize/internal/models"
	bolt "go.etcd.io/bbolt"
)

const (
	// stateDirPerm is the permission mode for the data directory (~/.docudigitize/).
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the workspace database file.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt database lock.
	stateOpenTimeout = 5 * time.Second
)

// Collection names. They double as bucket names.
const (
	CollectionFiles                     = "files"
	CollectionMetadataTitles            = "metadata_titles"
	CollectionMetadataRawInputs         = "metadata_raw_inputs"
	CollectionMetadataSettingsHistory   = "metadata_settings_history"
	CollectionUsers                     = "users"
	CollectionCategories                = "categories"
	CollectionCategoryRawInputs         = "category_raw_inputs"
	CollectionCategorySettingsHistory   = "category_settings_history"
	CollectionClassificationGoal        = "classification_goal"
	CollectionClassificationGoalHistory = "classification_goal_history"
)

var (
	appBucket             = []byte("app")
	initializedKey        = []byte("initialized")
	classificationGoalKey = []byte("classification_goal")
)

// Op is the kind of mutation reported to subscribers.
type Op string

const (
	OpCreate  Op = "create"
	OpUpdate  Op = "update"
	OpDelete  Op = "delete"
	OpReplace Op = "replace"
)

// Change describes a committed mutation. ID is empty for OpReplace.
type Change struct {
	Collection string
	Op         Op
	ID         string
}

// DefaultMetadataTitles seeds a freshly created workspace.
var DefaultMetadataTitles = []models.MetadataTitle{
	{ID: "meta-1", Name: "Χρονολογία"},
	{ID: "meta-2", Name: "Αριθμός πρωτοκόλλου"},
	{ID: "meta-3", Name: "Ποιος συντάσσει έγγραφο"},
	{ID: "meta-4", Name: "Πού/τόπος"},
	{ID: "meta-5", Name: "Σε ποιον το απευθύνει"},
	{ID: "meta-6", Name: "Φάκελος εγγράφου/αρχείο/αρ φωτογρ"},
}

// Contents is a consistent copy of every collection, taken under one lock.
type Contents struct {
	Files                     []models.DigitizedFile
	MetadataTitles            []models.MetadataTitle
	MetadataRawInputs         []models.MetadataRawInput
	MetadataSettingsHistory   []models.MetadataSettingsSnapshot
	Users                     []models.User
	Categories                []models.Category
	CategoryRawInputs         []models.CategoryRawInput
	CategorySettingsHistory   []models.CategorySettingsSnapshot
	ClassificationGoal        string
	ClassificationGoalHistory []models.ClassificationGoalSnapshot
}

// State is the local entity store. Every collection is held in memory in
// insertion order and written through to bbolt before a mutation returns.
// When the disk write fails the in-memory change is kept for the session
// and the caller gets an error wrapping apperrors.ErrPersistence.
type State struct {
	db  *bolt.DB
	ids IDGenerator

	mu     sync.Mutex
	subs   map[int]func(Change)
	nextID int

	classificationGoal string

	Files                     *Collection[models.DigitizedFile]
	MetadataTitles            *Collection[models.MetadataTitle]
	MetadataRawInputs         *Collection[models.MetadataRawInput]
	MetadataSettingsHistory   *Collection[models.MetadataSettingsSnapshot]
	Users                     *Collection[models.User]
	Categories                *Collection[models.Category]
	CategoryRawInputs         *Collection[models.CategoryRawInput]
	CategorySettingsHistory   *Collection[models.CategorySettingsSnapshot]
	ClassificationGoalHistory *Collection[models.ClassificationGoalSnapshot]
}

// Option configures LoadAt.
type Option func(*options)

type options struct {
	ids        IDGenerator
	seedTitles []models.MetadataTitle
}

// WithIDGenerator overrides the UUID generator used by Create.
func WithIDGenerator(g IDGenerator) Option {
	return func(o *options) { o.ids = g }
}

// WithSeedTitles sets the metadata titles written the first time the
// database is created. Reopening an existing database ignores it.
func WithSeedTitles(titles []models.MetadataTitle) Option {
	return func(o *options) { o.seedTitles = titles }
}

// Load opens the workspace database at ~/.docudigitize/workspace.db.
func Load(opts ...Option) (*State, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}

	return LoadAt(path, opts...)
}

// LoadAt opens a workspace database at the given path, creating it if it
// does not exist, and reads every collection into memory.
func LoadAt(path string, opts ...Option) (*State, error) {
	o := options{ids: UUIDGenerator{}}
	for _, opt := range opts {
		opt(&o)
	}

	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	s := &State{
		db:   db,
		ids:  o.ids,
		subs: make(map[int]func(Change)),
	}
	s.initCollections()

	if err := s.init(o.seedTitles); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state db: %w", err)
	}

	if err := s.load(); err != nil {
		db.Close()
		return nil, fmt.Errorf("reading state db: %w", err)
	}

	return s, nil
}

func (s *State) initCollections() {
	s.Files = newCollection(s, CollectionFiles,
		func(f models.DigitizedFile) string { return f.ID },
		func(f *models.DigitizedFile, id string) { f.ID = id },
		models.DigitizedFile.Clone)
	s.MetadataTitles = newCollection(s, CollectionMetadataTitles,
		func(t models.MetadataTitle) string { return t.ID },
		func(t *models.MetadataTitle, id string) { t.ID = id },
		nil)
	s.MetadataRawInputs = newCollection(s, CollectionMetadataRawInputs,
		func(r models.MetadataRawInput) string { return r.ID },
		func(r *models.MetadataRawInput, id string) { r.ID = id },
		nil)
	s.MetadataSettingsHistory = newCollection(s, CollectionMetadataSettingsHistory,
		func(h models.MetadataSettingsSnapshot) string { return h.ID },
		func(h *models.MetadataSettingsSnapshot, id string) { h.ID = id },
		func(h models.MetadataSettingsSnapshot) models.MetadataSettingsSnapshot {
			h.MetadataTitles = models.CloneTitles(h.MetadataTitles)
			return h
		})
	s.Users = newCollection(s, CollectionUsers,
		func(u models.User) string { return models.NameKey(u.Name) },
		nil,
		nil)
	s.Categories = newCollection(s, CollectionCategories,
		func(c models.Category) string { return c.ID },
		func(c *models.Category, id string) { c.ID = id },
		nil)
	s.CategoryRawInputs = newCollection(s, CollectionCategoryRawInputs,
		func(r models.CategoryRawInput) string { return r.ID },
		func(r *models.CategoryRawInput, id string) { r.ID = id },
		nil)
	s.CategorySettingsHistory = newCollection[models.CategorySettingsSnapshot](s, CollectionCategorySettingsHistory,
		nil, nil, nil)
	s.ClassificationGoalHistory = newCollection(s, CollectionClassificationGoalHistory,
		func(g models.ClassificationGoalSnapshot) string { return g.ID },
		func(g *models.ClassificationGoalSnapshot, id string) { g.ID = id },
		nil)
}

// loaders returns every collection's bucket loader, in a fixed order.
func (s *State) loaders() []interface {
	bucketName() []byte
	loadFrom(b *bolt.Bucket) error
} {
	return []interface {
		bucketName() []byte
		loadFrom(b *bolt.Bucket) error
	}{
		s.Files,
		s.MetadataTitles,
		s.MetadataRawInputs,
		s.MetadataSettingsHistory,
		s.Users,
		s.Categories,
		s.CategoryRawInputs,
		s.CategorySettingsHistory,
		s.ClassificationGoalHistory,
	}
}

func (s *State) init(seedTitles []models.MetadataTitle) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		app, err := tx.CreateBucketIfNotExists(appBucket)
		if err != nil {
			return err
		}

		for _, l := range s.loaders() {
			if _, err := tx.CreateBucketIfNotExists(l.bucketName()); err != nil {
				return err
			}
		}

		if app.Get(initializedKey) != nil {
			return nil
		}

		if len(seedTitles) > 0 {
			if err := s.MetadataTitles.Replacement(seedTitles).persist(tx); err != nil {
				return err
			}
		}

		return app.Put(initializedKey, []byte("1"))
	})
}

func (s *State) load() error {
	return s.db.View(func(tx *bolt.Tx) error {
		for _, l := range s.loaders() {
			if err := l.loadFrom(tx.Bucket(l.bucketName())); err != nil {
				return err
			}
		}

		if v := tx.Bucket(appBucket).Get(classificationGoalKey); v != nil {
			s.classificationGoal = string(v)
		}

		return nil
	})
}

// IDs returns the generator Create uses for new ids.
func (s *State) IDs() IDGenerator {
	return s.ids
}

// Close closes the database.
func (s *State) Close() error {
	return s.db.Close()
}

// Subscribe registers fn to be called synchronously after every committed
// mutation, on the goroutine that made it. No store lock is held during
// the call, so fn may read the store. The returned func unsubscribes.
func (s *State) Subscribe(fn func(Change)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *State) notify(changes ...Change) {
	s.mu.Lock()
	subs := make([]func(Change), 0, len(s.subs))
	for i := 0; i < s.nextID; i++ {
		if fn, ok := s.subs[i]; ok {
			subs = append(subs, fn)
		}
	}
	s.mu.Unlock()

	for _, c := range changes {
		for _, fn := range subs {
			fn(c)
		}
	}
}

// Contents returns a copy of every collection taken under one lock.
func (s *State) Contents() Contents {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Contents{
		Files:                     s.Files.snapshot(),
		MetadataTitles:            s.MetadataTitles.snapshot(),
		MetadataRawInputs:         s.MetadataRawInputs.snapshot(),
		MetadataSettingsHistory:   s.MetadataSettingsHistory.snapshot(),
		Users:                     s.Users.snapshot(),
		Categories:                s.Categories.snapshot(),
		CategoryRawInputs:         s.CategoryRawInputs.snapshot(),
		CategorySettingsHistory:   s.CategorySettingsHistory.snapshot(),
		ClassificationGoal:        s.classificationGoal,
		ClassificationGoalHistory: s.ClassificationGoalHistory.snapshot(),
	}
}

// ClassificationGoal returns the legacy classification goal text.
func (s *State) ClassificationGoal() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.classificationGoal
}

// SetClassificationGoal persists the legacy classification goal text.
func (s *State) SetClassificationGoal(goal string) error {
	return s.Replace(s.ClassificationGoalReplacement(goal))
}

// ClassificationGoalReplacement stages a write of the legacy goal text.
func (s *State) ClassificationGoalReplacement(goal string) Replacement {
	return Replacement{
		collection: CollectionClassificationGoal,
		persist: func(tx *bolt.Tx) error {
			return tx.Bucket(appBucket).Put(classificationGoalKey, []byte(goal))
		},
		commit: func() { s.classificationGoal = goal },
	}
}

// Replacement is a staged full overwrite of one collection. Build one per
// collection with Collection.Replacement and commit them together with
// State.Replace.
type Replacement struct {
	collection string
	persist    func(tx *bolt.Tx) error
	commit     func()
}

// Collection returns the name of the collection being replaced.
func (r Replacement) Collection() string {
	return r.collection
}

// Replace overwrites every staged collection in a single bbolt
// transaction. Either all of them reach disk or none do; the in-memory
// view is switched over in both cases.
func (s *State) Replace(reps ...Replacement) error {
	if len(reps) == 0 {
		return nil
	}

	s.mu.Lock()

	err := s.db.Update(func(tx *bolt.Tx) error {
		for _, r := range reps {
			if err := r.persist(tx); err != nil {
				return fmt.Errorf("writing %s: %w", r.collection, err)
			}
		}

		return nil
	})

	for _, r := range reps {
		r.commit()
	}

	s.mu.Unlock()

	changes := make([]Change, 0, len(reps))
	for _, r := range reps {
		changes = append(changes, Change{Collection: r.collection, Op: OpReplace})
	}

	s.notify(changes...)

	return persistErr(err)
}

func persistErr(err error) error {
	if err == nil {
		return nil
	}

	return errors.Join(apperrors.ErrPersistence, err)
}

// DefaultPath returns ~/.docudigitize/workspace.db.
func DefaultPath() (string, error) {
	dir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(dir, ".docudigitize", "workspace.db"), nil
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)

	return k
}

func encode(v any) ([]byte, error) {
	return json.Marshal(v)
}
