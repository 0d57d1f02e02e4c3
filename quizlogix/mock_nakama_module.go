package quizlogix

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/heroiclabs/nakama-common/api"
	"github.com/heroiclabs/nakama-common/runtime"
	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// mockLogger is a no-op runtime.Logger shared by the package tests.
type mockLogger struct{}

func (l *mockLogger) Debug(format string, v ...interface{})                   {}
func (l *mockLogger) Info(format string, v ...interface{})                    {}
func (l *mockLogger) Warn(format string, v ...interface{})                    {}
func (l *mockLogger) Error(format string, v ...interface{})                   {}
func (l *mockLogger) WithField(key string, value interface{}) runtime.Logger  { return l }
func (l *mockLogger) WithFields(fields map[string]interface{}) runtime.Logger { return l }
func (l *mockLogger) Fields() map[string]interface{}                          { return map[string]interface{}{} }

// MockNakamaModule is an in-memory stand-in for the Nakama storage engine used
// by the package tests. It keeps versioned storage objects and enforces the
// same conditional write semantics the real server does: version "*" requires
// the object to not exist, any other non-empty version must match the stored
// one. A multi-object write batch is applied atomically, a rejected batch has
// no partial effect. Methods the engine does not use fall through to the
// embedded nil interface and panic if called.
type MockNakamaModule struct {
	runtime.NakamaModule

	mu         sync.Mutex
	logger     *zap.Logger
	storage    map[storageKey]*storedObject
	users      map[string]*api.User
	versionSeq int

	// writeErrs is a queue of errors returned by upcoming StorageWrite calls,
	// used to simulate storage failures.
	writeErrs []error

	// collectionErrs fails the next write batch touching the collection,
	// used to target one write path while others proceed.
	collectionErrs map[string]error

	// conflictKey, when set, has its stored version bumped just before the
	// next batch touching it is validated, so that batch loses its version
	// check the way a competing writer would make it lose.
	conflictKey *storageKey
}

type storageKey struct {
	collection string
	key        string
	userID     string
}

type storedObject struct {
	value   string
	version string
}

// NewMockNakama returns a new in-memory module for use in tests.
func NewMockNakama() *MockNakamaModule {
	logger, _ := zap.NewDevelopment()
	return &MockNakamaModule{
		logger:         logger,
		storage:        make(map[storageKey]*storedObject),
		users:          make(map[string]*api.User),
		collectionErrs: make(map[string]error),
	}
}

// AddUser registers display metadata returned by UsersGetId.
func (m *MockNakamaModule) AddUser(userID, username, avatarUrl string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[userID] = &api.User{
		Id:         userID,
		Username:   username,
		AvatarUrl:  avatarUrl,
		CreateTime: timestamppb.Now(),
		UpdateTime: timestamppb.Now(),
	}
}

// FailNextStorageWrite queues an error for the next StorageWrite call.
func (m *MockNakamaModule) FailNextStorageWrite(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErrs = append(m.writeErrs, err)
}

// FailNextStorageWriteTo fails the next write batch that touches the given
// collection. Batches for other collections are unaffected.
func (m *MockNakamaModule) FailNextStorageWriteTo(collection string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collectionErrs[collection] = err
}

// ConflictNextStorageWrite makes the next write batch touching the given
// object lose its version check, as if a concurrent writer committed first.
func (m *MockNakamaModule) ConflictNextStorageWrite(collection, key, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conflictKey = &storageKey{collection, key, userID}
}

// ObjectCount reports how many objects are stored in a collection.
func (m *MockNakamaModule) ObjectCount(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for key := range m.storage {
		if key.collection == collection {
			count++
		}
	}
	return count
}

func (m *MockNakamaModule) StorageRead(ctx context.Context, reads []*runtime.StorageRead) ([]*api.StorageObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*api.StorageObject
	for _, read := range reads {
		obj, ok := m.storage[storageKey{read.Collection, read.Key, read.UserID}]
		if !ok {
			continue
		}
		result = append(result, &api.StorageObject{
			Collection: read.Collection,
			Key:        read.Key,
			UserId:     read.UserID,
			Value:      obj.value,
			Version:    obj.version,
		})
	}
	return result, nil
}

func (m *MockNakamaModule) StorageWrite(ctx context.Context, writes []*runtime.StorageWrite) ([]*api.StorageObjectAck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.writeErrs) > 0 {
		err := m.writeErrs[0]
		m.writeErrs = m.writeErrs[1:]
		m.logger.Debug("storage write failed by test hook", zap.Error(err))
		return nil, err
	}
	for _, write := range writes {
		if err, ok := m.collectionErrs[write.Collection]; ok {
			delete(m.collectionErrs, write.Collection)
			m.logger.Debug("storage write failed by test hook", zap.String("collection", write.Collection), zap.Error(err))
			return nil, err
		}
	}
	if m.conflictKey != nil {
		for _, write := range writes {
			if (storageKey{write.Collection, write.Key, write.UserID}) == *m.conflictKey {
				m.bumpLocked(*m.conflictKey)
				m.conflictKey = nil
				break
			}
		}
	}

	// Validate the whole batch before applying anything, matching the
	// server's transactional multi-object write.
	for _, write := range writes {
		cur := m.storage[storageKey{write.Collection, write.Key, write.UserID}]
		if write.Version == "*" && cur != nil {
			return nil, runtime.NewError("storage write rejected: object already exists", 3)
		}
		if write.Version != "" && write.Version != "*" && (cur == nil || cur.version != write.Version) {
			return nil, runtime.NewError("storage write rejected: version check failed", 3)
		}
	}

	var acks []*api.StorageObjectAck
	for _, write := range writes {
		m.versionSeq++
		obj := &storedObject{value: write.Value, version: fmt.Sprintf("v%d", m.versionSeq)}
		m.storage[storageKey{write.Collection, write.Key, write.UserID}] = obj
		acks = append(acks, &api.StorageObjectAck{
			Collection: write.Collection,
			Key:        write.Key,
			UserId:     write.UserID,
			Version:    obj.version,
		})
	}
	return acks, nil
}

// bumpLocked gives the object a fresh version, creating it when absent.
// Callers must hold the mutex.
func (m *MockNakamaModule) bumpLocked(key storageKey) {
	m.versionSeq++
	version := fmt.Sprintf("v%d", m.versionSeq)
	if obj, ok := m.storage[key]; ok {
		obj.version = version
		return
	}
	m.storage[key] = &storedObject{value: "{}", version: version}
}

func (m *MockNakamaModule) StorageList(ctx context.Context, callerID, userID, collection string, limit int, cursor string) ([]*api.StorageObject, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*api.StorageObject
	for key, obj := range m.storage {
		if key.collection != collection {
			continue
		}
		if userID != "" && key.userID != userID {
			continue
		}
		result = append(result, &api.StorageObject{
			Collection: key.collection,
			Key:        key.key,
			UserId:     key.userID,
			Value:      obj.value,
			Version:    obj.version,
		})
	}
	// The whole result fits in one page for test-sized data sets.
	return result, "", nil
}

func (m *MockNakamaModule) StorageDelete(ctx context.Context, deletes []*runtime.StorageDelete) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, del := range deletes {
		delete(m.storage, storageKey{del.Collection, del.Key, del.UserID})
	}
	return nil
}

func (m *MockNakamaModule) UsersGetId(ctx context.Context, userIDs []string, facebookIDs []string) ([]*api.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*api.User
	for _, userID := range userIDs {
		if user, ok := m.users[userID]; ok {
			result = append(result, user)
		}
	}
	return result, nil
}

func (m *MockNakamaModule) ReadFile(path string) (*os.File, error) {
	return os.Open(path)
}
