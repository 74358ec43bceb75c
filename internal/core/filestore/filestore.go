// Package filestore implements core.Store on the local filesystem.
//
// All state lives under a base directory:
//
//	<base>/
//	  users/<user_id>/user.json
//	  users/<user_id>/sessions/<session_id>/
//	    session.json
//	    chat_history.jsonl         # one JSON per line: {role, content, ts}
//	    documents/<file_hash>.json
//	    storage/<doc_id>.json      # where the raw bytes live
//	    caches/<hash>_<mode>.json  # chunk sequences + mode results
//	    vectors/<doc_id>_<model>.json
//	  extraction_cache/<file_hash>.txt
package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/junwei-liu/docgate/internal/core"
	"github.com/junwei-liu/docgate/internal/models"
)

type FileStore struct {
	base string
	mu   sync.Mutex
}

var _ core.Store = (*FileStore)(nil)

func New(baseDir string) (*FileStore, error) {
	for _, d := range []string{baseDir, filepath.Join(baseDir, "users"), filepath.Join(baseDir, "extraction_cache")} {
		if err := os.MkdirAll(d, 0o750); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	return &FileStore{base: baseDir}, nil
}

func (s *FileStore) Close() error { return nil }

// checkIdents rejects identifiers that would escape the base directory once
// joined into a path: empty strings, dot segments, separators.
func checkIdents(ids ...string) error {
	for _, id := range ids {
		if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) || filepath.IsAbs(id) {
			return fmt.Errorf("invalid identifier: %q", id)
		}
	}
	return nil
}

func (s *FileStore) userDir(userID string) string {
	return filepath.Join(s.base, "users", userID)
}

func (s *FileStore) sessionDir(userID, sessionID string) string {
	return filepath.Join(s.userDir(userID), "sessions", sessionID)
}

// writeJSON writes via a temp file and rename so readers never observe a
// half-written entry.
func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(data, v)
}

// ----- users & sessions -----

func (s *FileStore) EnsureUser(ctx context.Context, userID string) error {
	if err := checkIdents(userID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.userDir(userID)
	path := filepath.Join(dir, "user.json")
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	now := time.Now().UTC()
	return writeJSON(path, &models.User{UserID: userID, CreatedAt: now, UpdatedAt: now})
}

func (s *FileStore) GetOrCreateSession(ctx context.Context, userID, sessionID string) (*models.Session, error) {
	if err := checkIdents(userID, sessionID); err != nil {
		return nil, err
	}
	if err := s.EnsureUser(ctx, userID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.sessionDir(userID, sessionID)
	path := filepath.Join(dir, "session.json")

	var sess models.Session
	ok, err := readJSON(path, &sess)
	if err != nil {
		return nil, err
	}
	if ok {
		sess.LastActivity = time.Now().UTC()
		return &sess, writeJSON(path, &sess)
	}

	for _, d := range []string{dir, filepath.Join(dir, "documents"), filepath.Join(dir, "storage"), filepath.Join(dir, "caches"), filepath.Join(dir, "vectors")} {
		if err := os.MkdirAll(d, 0o750); err != nil {
			return nil, err
		}
	}
	now := time.Now().UTC()
	sess = models.Session{ID: userID + "/" + sessionID, UserID: userID, SessionID: sessionID, CreatedAt: now, LastActivity: now}
	return &sess, writeJSON(path, &sess)
}

func (s *FileStore) TouchSession(ctx context.Context, userID, sessionID string) error {
	if err := checkIdents(userID, sessionID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.sessionDir(userID, sessionID), "session.json")
	var sess models.Session
	ok, err := readJSON(path, &sess)
	if err != nil || !ok {
		return err
	}
	sess.LastActivity = time.Now().UTC()
	return writeJSON(path, &sess)
}

// ----- chat history -----

func (s *FileStore) AppendTurn(ctx context.Context, userID, sessionID string, turn *models.ChatTurn) error {
	if err := checkIdents(userID, sessionID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.sessionDir(userID, sessionID), "chat_history.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return err
	}
	defer f.Close()

	line, err := json.Marshal(turn)
	if err != nil {
		return err
	}
	_, err = f.Write(append(line, '\n'))
	return err
}

func (s *FileStore) RecentTurns(ctx context.Context, userID, sessionID string, limit int) ([]models.ChatTurn, error) {
	if err := checkIdents(userID, sessionID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.sessionDir(userID, sessionID), "chat_history.jsonl")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var turns []models.ChatTurn
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var t models.ChatTurn
		if err := json.Unmarshal([]byte(line), &t); err != nil {
			continue // skip corrupted lines, keep the rest readable
		}
		turns = append(turns, t)
	}
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns, nil
}

// ----- documents -----

func (s *FileStore) CreateDocument(ctx context.Context, doc *models.Document) error {
	if err := checkIdents(doc.UserID, doc.SessionID, doc.FileHash); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.sessionDir(doc.UserID, doc.SessionID), "documents", doc.FileHash+".json")
	return writeJSON(path, doc)
}

func (s *FileStore) GetDocumentByHash(ctx context.Context, userID, sessionID, fileHash string) (*models.Document, error) {
	if err := checkIdents(userID, sessionID, fileHash); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var doc models.Document
	ok, err := readJSON(filepath.Join(s.sessionDir(userID, sessionID), "documents", fileHash+".json"), &doc)
	if err != nil || !ok {
		return nil, err
	}
	return &doc, nil
}

func (s *FileStore) ListSessionDocuments(ctx context.Context, userID, sessionID string) ([]models.Document, error) {
	if err := checkIdents(userID, sessionID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.sessionDir(userID, sessionID), "documents")
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []models.Document
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		var doc models.Document
		if ok, err := readJSON(filepath.Join(dir, e.Name()), &doc); err == nil && ok {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (s *FileStore) UpdateDocumentStatus(ctx context.Context, docID, status, failReason string, processedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, doc, err := s.findDocumentByID(docID)
	if err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("document not found: %s", docID)
	}
	doc.Status = status
	doc.FailReason = failReason
	doc.ProcessedAt = processedAt
	return writeJSON(path, doc)
}

// findDocumentByID scans session document dirs. Acceptable for the file
// backend's scale; the database backend indexes this.
func (s *FileStore) findDocumentByID(docID string) (string, *models.Document, error) {
	var foundPath string
	var found *models.Document
	err := filepath.WalkDir(filepath.Join(s.base, "users"), func(path string, d os.DirEntry, err error) error {
		if err != nil || found != nil {
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(path, ".json") || filepath.Base(filepath.Dir(path)) != "documents" {
			return nil
		}
		var doc models.Document
		if ok, err := readJSON(path, &doc); err == nil && ok && doc.ID == docID {
			foundPath, found = path, &doc
		}
		return nil
	})
	return foundPath, found, err
}

func (s *FileStore) PutFileStorage(ctx context.Context, fs *models.FileStorage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, doc, err := s.findDocumentByID(fs.DocumentID)
	if err != nil {
		return err
	}
	if doc == nil {
		return fmt.Errorf("document not found: %s", fs.DocumentID)
	}
	path := filepath.Join(s.sessionDir(doc.UserID, doc.SessionID), "storage", fs.DocumentID+".json")
	return writeJSON(path, fs)
}

// ----- extraction cache (global, keyed by content hash) -----

func (s *FileStore) GetExtractedText(ctx context.Context, fileHash string) (string, bool, error) {
	if err := checkIdents(fileHash); err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(filepath.Join(s.base, "extraction_cache", fileHash+".txt"))
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(data), true, nil
}

func (s *FileStore) PutExtractedText(ctx context.Context, fileHash, text string) error {
	if err := checkIdents(fileHash); err != nil {
		return err
	}
	path := filepath.Join(s.base, "extraction_cache", fileHash+".txt")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(text), 0o640); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ----- processing caches -----

func cacheFile(hash, mode string) string {
	return hash + "_" + mode + ".json"
}

func (s *FileStore) GetCache(ctx context.Context, userID, sessionID, docHash, mode string) (*models.ProcessingCache, error) {
	if err := checkIdents(userID, sessionID, docHash, mode); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var entry models.ProcessingCache
	path := filepath.Join(s.sessionDir(userID, sessionID), "caches", cacheFile(docHash, mode))
	ok, err := readJSON(path, &entry)
	if err != nil || !ok {
		return nil, err
	}
	return &entry, nil
}

func (s *FileStore) PutCache(ctx context.Context, entry *models.ProcessingCache) error {
	if err := checkIdents(entry.UserID, entry.SessionID, entry.DocumentHash, entry.Mode); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.sessionDir(entry.UserID, entry.SessionID), "caches")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	return writeJSON(filepath.Join(dir, cacheFile(entry.DocumentHash, entry.Mode)), entry)
}

// ----- chunk embeddings -----

type vectorSet struct {
	Chunks  []models.DocumentChunk `json:"chunks"`
	Vectors [][]float32            `json:"vectors"`
}

func (s *FileStore) vectorPath(docID, model string) (string, error) {
	_, doc, err := s.findDocumentByID(docID)
	if err != nil {
		return "", err
	}
	if doc == nil {
		return "", fmt.Errorf("document not found: %s", docID)
	}
	return filepath.Join(s.sessionDir(doc.UserID, doc.SessionID), "vectors", docID+"_"+model+".json"), nil
}

func (s *FileStore) SaveChunkEmbeddings(ctx context.Context, docID, model string, chunks []models.DocumentChunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunk/vector count mismatch: %d vs %d", len(chunks), len(vectors))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.vectorPath(docID, model)
	if err != nil {
		return err
	}
	return writeJSON(path, &vectorSet{Chunks: chunks, Vectors: vectors})
}

func (s *FileStore) HasChunkEmbeddings(ctx context.Context, docID, model string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.vectorPath(docID, model)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

func (s *FileStore) SearchChunkEmbeddings(ctx context.Context, docID, model string, queryVec []float32, limit int) ([]models.DocumentChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.vectorPath(docID, model)
	if err != nil {
		return nil, err
	}
	var set vectorSet
	ok, err := readJSON(path, &set)
	if err != nil || !ok {
		return nil, err
	}

	type scored struct {
		chunk models.DocumentChunk
		score float64
	}
	ranked := make([]scored, 0, len(set.Chunks))
	for i, c := range set.Chunks {
		ranked = append(ranked, scored{chunk: c, score: cosine(queryVec, set.Vectors[i])})
	}
	// insertion sort by descending similarity; chunk counts are small
	for i := 1; i < len(ranked); i++ {
		for j := i; j > 0 && ranked[j].score > ranked[j-1].score; j-- {
			ranked[j], ranked[j-1] = ranked[j-1], ranked[j]
		}
	}
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]models.DocumentChunk, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, r.chunk)
	}
	return out, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// ----- cleanup -----

func (s *FileStore) CleanupInactiveSessions(ctx context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	usersDir := filepath.Join(s.base, "users")
	users, err := os.ReadDir(usersDir)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, u := range users {
		if !u.IsDir() {
			continue
		}
		sessionsDir := filepath.Join(usersDir, u.Name(), "sessions")
		sessions, err := os.ReadDir(sessionsDir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return removed, err
		}
		for _, se := range sessions {
			if !se.IsDir() {
				continue
			}
			dir := filepath.Join(sessionsDir, se.Name())
			var sess models.Session
			ok, err := readJSON(filepath.Join(dir, "session.json"), &sess)
			if err != nil || !ok {
				continue
			}
			if sess.LastActivity.Before(olderThan) {
				if err := os.RemoveAll(dir); err != nil {
					return removed, err
				}
				removed++
			}
		}
	}
	return removed, nil
}
