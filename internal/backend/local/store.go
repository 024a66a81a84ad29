// Package local implements the embedded graph backend: the whole graph lives
// in memory and is persisted as one JSON document, rewritten atomically after
// every committed change.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/graphrouter/internal/backend"
	"github.com/persistorai/graphrouter/internal/models"
)

// Options configures the embedded store.
type Options struct {
	// Path of the JSON document. Empty keeps the graph in memory only.
	Path string
	// OntologyVersion reports the schema version persisted with the document.
	OntologyVersion func() uint64
}

// Store is the embedded backend driver.
type Store struct {
	opts Options
	log  *logrus.Logger
	now  func() time.Time

	mu        sync.RWMutex
	doc       *document
	connected bool
}

var _ backend.Driver = (*Store)(nil)

// New creates an embedded store. Call Connect before opening connections.
func New(opts Options, log *logrus.Logger) *Store {
	if opts.OntologyVersion == nil {
		opts.OntologyVersion = func() uint64 { return 0 }
	}

	return &Store{opts: opts, log: log, now: time.Now}
}

// Name identifies the store for cache fingerprints.
func (s *Store) Name() string {
	if s.opts.Path == "" {
		return "local:memory"
	}

	return "local:" + s.opts.Path
}

// Capabilities reports that transactions are staged rather than native.
func (s *Store) Capabilities() backend.Capabilities {
	return backend.Capabilities{LabelPushdown: true}
}

// Connect loads the document from disk, creating an empty graph when the file
// does not exist yet.
func (s *Store) Connect(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return &models.ConnectionError{Backend: s.Name(), Op: "connect", Err: err}
	}

	if doc.OntologyVersion != 0 && doc.OntologyVersion != s.opts.OntologyVersion() {
		s.log.WithFields(logrus.Fields{
			"path":           s.opts.Path,
			"stored_version": doc.OntologyVersion,
			"active_version": s.opts.OntologyVersion(),
		}).Warn("graph document was written under a different ontology version")
	}

	s.doc = doc
	s.connected = true

	return nil
}

// Disconnect flushes the document and releases it.
func (s *Store) Disconnect(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil
	}

	err := s.persist(s.doc)
	s.connected = false
	s.doc = nil

	return err
}

// Open returns a connection to the store.
func (s *Store) Open(_ context.Context) (backend.Conn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.connected {
		return nil, models.ErrNotConnected
	}

	return &conn{store: s}, nil
}

func (s *Store) load() (*document, error) {
	if s.opts.Path == "" {
		return newDocument(), nil
	}

	data, err := os.ReadFile(s.opts.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return newDocument(), nil
	}

	if err != nil {
		return nil, fmt.Errorf("reading graph document: %w", err)
	}

	doc := newDocument()
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("decoding graph document: %w", err)
	}

	if doc.Nodes == nil {
		doc.Nodes = make(map[string]models.Node)
	}

	if doc.Edges == nil {
		doc.Edges = make(map[string]models.Edge)
	}

	return doc, nil
}

// persist writes doc to a temp file in the target directory and renames it
// over the document, so readers of the file never see a partial write.
func (s *Store) persist(doc *document) error {
	if s.opts.Path == "" {
		return nil
	}

	doc.OntologyVersion = s.opts.OntologyVersion()

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding graph document: %w", err)
	}

	dir := filepath.Dir(s.opts.Path)

	tmp, err := os.CreateTemp(dir, ".graph-*.json")
	if err != nil {
		return fmt.Errorf("creating temp document: %w", err)
	}

	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after a successful rename.

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck,gosec // already failing.

		return fmt.Errorf("writing temp document: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close() //nolint:errcheck,gosec // already failing.

		return fmt.Errorf("syncing temp document: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp document: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.opts.Path); err != nil {
		return fmt.Errorf("replacing graph document: %w", err)
	}

	return nil
}

// mutate applies fn to a copy of the committed document, persists the copy and
// swaps it in. A failing fn or persist leaves the committed state untouched.
func (s *Store) mutate(fn func(d *document, now time.Time) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return models.ErrNotConnected
	}

	next := s.doc.clone()
	if err := fn(next, s.now()); err != nil {
		return err
	}

	if err := s.persist(next); err != nil {
		return &models.ConnectionError{Backend: s.Name(), Op: "persist", Err: err}
	}

	s.doc = next

	return nil
}

// view runs fn against the committed document under a read lock.
func (s *Store) view(fn func(d *document) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.connected {
		return models.ErrNotConnected
	}

	return fn(s.doc)
}

// snapshot returns a private copy of the committed document.
func (s *Store) snapshot() (*document, error) {
	var d *document

	err := s.view(func(doc *document) error {
		d = doc.clone()

		return nil
	})

	return d, err
}
