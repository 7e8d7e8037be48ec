// Package gitstore provides a Git plumbing-based implementation of domain.Store.
package gitstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage"

	"github.com/runoshun/research-crew/internal/domain"
)

// entryFile is the file name of an audit entry inside its commit tree.
const entryFile = "entry.json"

// Store implements domain.Store using Git plumbing (refs, blobs and commits).
//
// Data structure:
//
//	refs/<namespace>/
//	  initialized  → blob (marker)
//	  meta         → blob (next creation sequence)
//	  tasks/<id>    → blob (task record JSON)
//	  sessions/<id> → blob (session JSON)
//	  audit        → commit chain, one commit per entry, newest at the tip
//
// A process-wide mutex serializes writers of one Store. Task and audit refs
// move with CheckAndSetReference, so another process writing the same
// repository is detected instead of overwritten.
type Store struct {
	repo      *git.Repository
	namespace string // e.g., "rcrew"
	mu        sync.RWMutex
}

// meta contains store metadata.
type meta struct {
	NextSeq int `json:"next_seq"`
}

// record is the blob stored under a task ref.
// Seq preserves creation order, which refs cannot express.
type record struct {
	Task *domain.Task `json:"task"`
	Seq  int          `json:"seq"`
}

// New opens the repository at repoPath, creating a bare repository if
// none exists yet.
func New(repoPath, namespace string) (*Store, error) {
	repo, err := git.PlainOpen(repoPath)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		repo, err = git.PlainInit(repoPath, true)
	}
	if err != nil {
		return nil, fmt.Errorf("open git repository: %w", err)
	}
	return NewWithRepo(repo, namespace), nil
}

// NewWithRepo creates a new Store with an existing repository instance.
func NewWithRepo(repo *git.Repository, namespace string) *Store {
	if namespace == "" {
		namespace = domain.DefaultNamespace
	}
	return &Store{
		repo:      repo,
		namespace: namespace,
	}
}

// refPrefix returns the ref prefix for this namespace.
func (s *Store) refPrefix() string {
	return "refs/" + s.namespace + "/"
}

func (s *Store) taskRef(id string) plumbing.ReferenceName {
	return plumbing.ReferenceName(s.refPrefix() + "tasks/" + id)
}

func (s *Store) sessionRef(id string) plumbing.ReferenceName {
	return plumbing.ReferenceName(s.refPrefix() + "sessions/" + id)
}

func (s *Store) auditRef() plumbing.ReferenceName {
	return plumbing.ReferenceName(s.refPrefix() + "audit")
}

func (s *Store) metaRef() plumbing.ReferenceName {
	return plumbing.ReferenceName(s.refPrefix() + "meta")
}

func (s *Store) initializedRef() plumbing.ReferenceName {
	return plumbing.ReferenceName(s.refPrefix() + "initialized")
}

// Get retrieves a task by ID. Returns nil if not found.
func (s *Store) Get(ctx context.Context, id string) (*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rec, _, err := s.loadRecord(id)
	if err != nil || rec == nil {
		return nil, err
	}
	return rec.Task, nil
}

// ListBySession retrieves the tasks of a session in creation order.
func (s *Store) ListBySession(ctx context.Context, sessionID string) ([]*domain.Task, error) {
	return s.listTasks(ctx, func(t *domain.Task) bool {
		return t.SessionID == sessionID
	})
}

// ListByPredecessor retrieves tasks whose DependsOn contains taskID.
func (s *Store) ListByPredecessor(ctx context.Context, taskID string) ([]*domain.Task, error) {
	return s.listTasks(ctx, func(t *domain.Task) bool {
		return t.DependsOnTask(taskID)
	})
}

// ListStaleCandidates retrieves tasks in one of statuses last updated before updatedBefore.
func (s *Store) ListStaleCandidates(ctx context.Context, statuses []domain.Status, updatedBefore time.Time) ([]*domain.Task, error) {
	return s.listTasks(ctx, func(t *domain.Task) bool {
		return slices.Contains(statuses, t.Status) && t.UpdatedAt.Before(updatedBefore)
	})
}

func (s *Store) listTasks(ctx context.Context, match func(*domain.Task) bool) ([]*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	var records []*record
	err := s.forEachRef("tasks/", func(ref *plumbing.Reference) error {
		var rec record
		if err := s.readJSON(ref.Hash(), &rec); err != nil {
			return fmt.Errorf("read task %s: %w", ref.Name().Short(), err)
		}
		if rec.Task != nil && match(rec.Task) {
			records = append(records, &rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Seq < records[j].Seq })
	tasks := make([]*domain.Task, 0, len(records))
	for _, rec := range records {
		tasks = append(tasks, rec.Task)
	}
	return tasks, nil
}

// Save creates or replaces a task and appends entry to the audit chain.
// If the audit append fails, the task ref is moved back so that neither
// change is visible.
func (s *Store) Save(ctx context.Context, task *domain.Task, expectedVersion int, entry *domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(ctx); err != nil {
		return err
	}

	current, oldRef, err := s.loadRecord(task.ID)
	if err != nil {
		return err
	}
	currentVersion := 0
	if current != nil {
		currentVersion = current.Task.Version
	}
	if currentVersion != expectedVersion {
		return fmt.Errorf("task %s: expected version %d, found %d: %w",
			task.ID, expectedVersion, currentVersion, domain.ErrConcurrentModification)
	}

	rec := record{Task: task.Clone()}
	rec.Task.Version = expectedVersion + 1
	if current != nil {
		rec.Seq = current.Seq
	} else {
		if rec.Seq, err = s.nextSeq(); err != nil {
			return err
		}
	}

	hash, err := s.writeJSON(rec)
	if err != nil {
		return err
	}
	newRef := plumbing.NewHashReference(s.taskRef(task.ID), hash)
	if err := s.repo.Storer.CheckAndSetReference(newRef, oldRef); err != nil {
		return fmt.Errorf("task %s: set task ref: %w", task.ID, refError(err))
	}

	if entry != nil {
		if err := s.appendAudit(*entry); err != nil {
			if rbErr := s.restoreRef(newRef, oldRef); rbErr != nil {
				// The task ref stays committed without its audit entry.
				return errors.Join(err, fmt.Errorf("task %s: roll back task ref: %w", task.ID, rbErr))
			}
			return err
		}
	}

	task.Version = rec.Task.Version
	return nil
}

// restoreRef moves a task ref back to old, or removes it if the task was new.
func (s *Store) restoreRef(current, old *plumbing.Reference) error {
	if old == nil {
		return s.repo.Storer.RemoveReference(current.Name())
	}
	return s.repo.Storer.CheckAndSetReference(old, current)
}

// Delete removes a task. Its audit entries are kept.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(ctx); err != nil {
		return err
	}
	return s.removeRef(s.taskRef(id))
}

// GetSession retrieves a session by ID. Returns nil if not found.
func (s *Store) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	ref, err := s.repo.Reference(s.sessionRef(id), true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session ref: %w", err)
	}

	var session domain.Session
	if err := s.readJSON(ref.Hash(), &session); err != nil {
		return nil, fmt.Errorf("read session %s: %w", id, err)
	}
	return &session, nil
}

// ListSessions retrieves all sessions ordered by creation time.
func (s *Store) ListSessions(ctx context.Context) ([]*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	sessions := []*domain.Session{}
	err := s.forEachRef("sessions/", func(ref *plumbing.Reference) error {
		var session domain.Session
		if err := s.readJSON(ref.Hash(), &session); err != nil {
			return fmt.Errorf("read session %s: %w", ref.Name().Short(), err)
		}
		sessions = append(sessions, &session)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions, nil
}

// SaveSession creates or replaces a session.
func (s *Store) SaveSession(ctx context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(ctx); err != nil {
		return err
	}

	hash, err := s.writeJSON(session)
	if err != nil {
		return err
	}
	ref := plumbing.NewHashReference(s.sessionRef(session.ID), hash)
	if err := s.repo.Storer.SetReference(ref); err != nil {
		return fmt.Errorf("set session ref: %w", err)
	}
	return nil
}

// DeleteSession removes a session and all of its tasks.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ready(ctx); err != nil {
		return err
	}

	var toDelete []plumbing.ReferenceName
	err := s.forEachRef("tasks/", func(ref *plumbing.Reference) error {
		var rec record
		if err := s.readJSON(ref.Hash(), &rec); err != nil {
			return fmt.Errorf("read task %s: %w", ref.Name().Short(), err)
		}
		if rec.Task != nil && rec.Task.SessionID == id {
			toDelete = append(toDelete, ref.Name())
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, name := range toDelete {
		if err := s.removeRef(name); err != nil {
			return err
		}
	}
	return s.removeRef(s.sessionRef(id))
}

// ListAudit retrieves the entries of a task in insertion order.
func (s *Store) ListAudit(ctx context.Context, taskID string) ([]domain.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	entries := []domain.AuditEntry{}
	err := s.walkAudit(func(e domain.AuditEntry) {
		if e.TaskID == taskID {
			entries = append(entries, e)
		}
	})
	if err != nil {
		return nil, err
	}
	slices.Reverse(entries)
	return entries, nil
}

// ListAuditSince retrieves entries written at or after since, newest first.
func (s *Store) ListAuditSince(ctx context.Context, since time.Time) ([]domain.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	entries := []domain.AuditEntry{}
	err := s.walkAudit(func(e domain.AuditEntry) {
		if !e.Timestamp.Before(since) {
			entries = append(entries, e)
		}
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Initialize creates the initialized marker if it doesn't exist.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := s.repo.Reference(s.initializedRef(), true)
	if err == nil {
		return nil // Already initialized
	}
	if !errors.Is(err, plumbing.ErrReferenceNotFound) {
		return fmt.Errorf("check initialized ref: %w", err)
	}

	hash, err := s.writeBlob([]byte("initialized"))
	if err != nil {
		return err
	}
	ref := plumbing.NewHashReference(s.initializedRef(), hash)
	if err := s.repo.Storer.SetReference(ref); err != nil {
		return fmt.Errorf("set initialized ref: %w", err)
	}
	return nil
}

// IsInitialized checks if the store has been initialized.
func (s *Store) IsInitialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err := s.repo.Reference(s.initializedRef(), true)
	return err == nil
}

// Close is a no-op; go-git holds no open handles between calls.
func (s *Store) Close() error {
	return nil
}

// ready fails when ctx is done or the store was never initialized.
func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.repo.Reference(s.initializedRef(), true); err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return domain.ErrNotInitialized
		}
		return fmt.Errorf("check initialized ref: %w", err)
	}
	return nil
}

// loadRecord returns the task record and the ref it was read from.
// Both are nil if the task does not exist.
func (s *Store) loadRecord(id string) (*record, *plumbing.Reference, error) {
	ref, err := s.repo.Reference(s.taskRef(id), true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("get task ref: %w", err)
	}

	var rec record
	if err := s.readJSON(ref.Hash(), &rec); err != nil {
		return nil, nil, fmt.Errorf("read task %s: %w", id, err)
	}
	if rec.Task == nil {
		return nil, nil, fmt.Errorf("read task %s: empty record", id)
	}
	return &rec, ref, nil
}

// nextSeq returns the next creation sequence number and advances the counter.
func (s *Store) nextSeq() (int, error) {
	m := meta{NextSeq: 1}
	ref, err := s.repo.Reference(s.metaRef(), true)
	switch {
	case err == nil:
		if err := s.readJSON(ref.Hash(), &m); err != nil {
			return 0, fmt.Errorf("read meta: %w", err)
		}
	case !errors.Is(err, plumbing.ErrReferenceNotFound):
		return 0, fmt.Errorf("get meta ref: %w", err)
	}

	seq := m.NextSeq
	m.NextSeq++
	hash, err := s.writeJSON(m)
	if err != nil {
		return 0, err
	}
	if err := s.repo.Storer.SetReference(plumbing.NewHashReference(s.metaRef(), hash)); err != nil {
		return 0, fmt.Errorf("set meta ref: %w", err)
	}
	return seq, nil
}

// appendAudit writes entry as a new commit on top of the audit chain.
func (s *Store) appendAudit(entry domain.AuditEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	blob, err := s.writeBlob(data)
	if err != nil {
		return err
	}

	tree := &object.Tree{Entries: []object.TreeEntry{
		{Name: entryFile, Mode: filemode.Regular, Hash: blob},
	}}
	treeObj := s.repo.Storer.NewEncodedObject()
	if err := tree.Encode(treeObj); err != nil {
		return fmt.Errorf("encode tree: %w", err)
	}
	treeHash, err := s.repo.Storer.SetEncodedObject(treeObj)
	if err != nil {
		return fmt.Errorf("store tree: %w", err)
	}

	oldRef, err := s.repo.Reference(s.auditRef(), true)
	if err != nil && !errors.Is(err, plumbing.ErrReferenceNotFound) {
		return fmt.Errorf("get audit ref: %w", err)
	}
	var parents []plumbing.Hash
	if oldRef != nil {
		parents = []plumbing.Hash{oldRef.Hash()}
	}

	sig := object.Signature{Name: "rcrew", Email: "rcrew@localhost", When: entry.Timestamp}
	commit := &object.Commit{
		Author:       sig,
		Committer:    sig,
		Message:      fmt.Sprintf("%s: %s -> %s\n", entry.TaskID, displayStatus(entry.OldStatus), entry.NewStatus),
		TreeHash:     treeHash,
		ParentHashes: parents,
	}
	commitObj := s.repo.Storer.NewEncodedObject()
	if err := commit.Encode(commitObj); err != nil {
		return fmt.Errorf("encode audit commit: %w", err)
	}
	commitHash, err := s.repo.Storer.SetEncodedObject(commitObj)
	if err != nil {
		return fmt.Errorf("store audit commit: %w", err)
	}

	newRef := plumbing.NewHashReference(s.auditRef(), commitHash)
	if err := s.repo.Storer.CheckAndSetReference(newRef, oldRef); err != nil {
		return fmt.Errorf("set audit ref: %w", refError(err))
	}
	return nil
}

// walkAudit visits audit entries from newest to oldest.
func (s *Store) walkAudit(fn func(domain.AuditEntry)) error {
	ref, err := s.repo.Reference(s.auditRef(), true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil
		}
		return fmt.Errorf("get audit ref: %w", err)
	}

	hash := ref.Hash()
	for {
		commit, err := s.repo.CommitObject(hash)
		if err != nil {
			return fmt.Errorf("read audit commit %s: %w", hash, err)
		}
		file, err := commit.File(entryFile)
		if err != nil {
			return fmt.Errorf("read audit entry %s: %w", hash, err)
		}
		content, err := file.Contents()
		if err != nil {
			return fmt.Errorf("read audit entry %s: %w", hash, err)
		}
		var entry domain.AuditEntry
		if err := json.Unmarshal([]byte(content), &entry); err != nil {
			return fmt.Errorf("decode audit entry %s: %w", hash, err)
		}
		fn(entry)

		if commit.NumParents() == 0 {
			return nil
		}
		hash = commit.ParentHashes[0]
	}
}

// forEachRef visits the refs under the namespace's kind/ prefix.
func (s *Store) forEachRef(kind string, fn func(*plumbing.Reference) error) error {
	prefix := s.refPrefix() + kind
	refs, err := s.repo.References()
	if err != nil {
		return fmt.Errorf("list refs: %w", err)
	}
	defer refs.Close()

	return refs.ForEach(func(ref *plumbing.Reference) error {
		name := string(ref.Name())
		if len(name) <= len(prefix) || !strings.HasPrefix(name, prefix) {
			return nil
		}
		return fn(ref)
	})
}

func (s *Store) removeRef(name plumbing.ReferenceName) error {
	if err := s.repo.Storer.RemoveReference(name); err != nil {
		if !errors.Is(err, plumbing.ErrReferenceNotFound) {
			return fmt.Errorf("remove ref %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) writeJSON(v any) (plumbing.Hash, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("marshal: %w", err)
	}
	return s.writeBlob(data)
}

func (s *Store) readJSON(hash plumbing.Hash, v any) error {
	data, err := s.readBlob(hash)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

// writeBlob writes data to a blob and returns the hash.
func (s *Store) writeBlob(data []byte) (plumbing.Hash, error) {
	obj := s.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	obj.SetSize(int64(len(data)))

	writer, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("create blob writer: %w", err)
	}

	if _, writeErr := writer.Write(data); writeErr != nil {
		_ = writer.Close()
		return plumbing.ZeroHash, fmt.Errorf("write blob: %w", writeErr)
	}
	_ = writer.Close()

	hash, err := s.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("store blob: %w", err)
	}

	return hash, nil
}

// readBlob reads the full content of a blob.
func (s *Store) readBlob(hash plumbing.Hash) ([]byte, error) {
	blob, err := s.repo.BlobObject(hash)
	if err != nil {
		return nil, fmt.Errorf("get blob: %w", err)
	}

	reader, err := blob.Reader()
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	defer func() { _ = reader.Close() }()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read blob data: %w", err)
	}
	return data, nil
}

// refError marks a lost ref race as a concurrent modification.
func refError(err error) error {
	if errors.Is(err, storage.ErrReferenceHasChanged) {
		return errors.Join(err, domain.ErrConcurrentModification)
	}
	return err
}

func displayStatus(s domain.Status) string {
	if s == "" {
		return "created"
	}
	return string(s)
}

// Ensure Store implements domain.Store.
var _ domain.Store = (*Store)(nil)
