package orchestrators

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"gymhub/internal/adapters/blob"
	"gymhub/internal/domain/account"
	"gymhub/internal/domain/broadcast"
	"gymhub/internal/domain/message"
)

var fixedTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return fixedTime }

func fixedID() string { return "test-id-001" }

var errStoreDown = errors.New("store down")

type mockMessageStore struct {
	saved   []message.Message
	saveErr error
}

func (m *mockMessageStore) Save(_ context.Context, msg message.Message) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, msg)
	return nil
}

type publishedInsert struct {
	topic, table string
	row          any
}

type mockPublisher struct {
	mu        sync.Mutex
	published []publishedInsert
	err       error
}

func (p *mockPublisher) PublishInsert(topic, table string, row any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, publishedInsert{topic: topic, table: table, row: row})
	return nil
}

type denyAfter struct {
	n    int
	seen map[string]int
}

func (d *denyAfter) Allow(key string) bool {
	if d.seen == nil {
		d.seen = make(map[string]int)
	}
	d.seen[key]++
	return d.seen[key] <= d.n
}

type mockBroadcastStore struct {
	rows      map[string]broadcast.Broadcast
	saveErr   error
	deleteErr error
	listErr   error
}

func newMockBroadcastStore() *mockBroadcastStore {
	return &mockBroadcastStore{rows: make(map[string]broadcast.Broadcast)}
}

func (m *mockBroadcastStore) Save(_ context.Context, b broadcast.Broadcast) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.rows[b.ID] = b
	return nil
}

func (m *mockBroadcastStore) ListExpiredBefore(_ context.Context, cutoff time.Time) ([]broadcast.Broadcast, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []broadcast.Broadcast
	for _, b := range m.rows {
		if !b.ExpiresAt.After(cutoff) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *mockBroadcastStore) Delete(_ context.Context, id string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.rows, id)
	return nil
}

// mockBlobs accepts anything whose first bytes are "RIFF" as audio/wav.
type mockBlobs struct {
	objects   map[string][]byte
	deleted   []string
	putErr    error
	deleteErr map[string]error
}

func newMockBlobs() *mockBlobs {
	return &mockBlobs{objects: make(map[string][]byte), deleteErr: make(map[string]error)}
}

func (m *mockBlobs) Put(_ context.Context, data []byte) (blob.Object, error) {
	if m.putErr != nil {
		return blob.Object{}, m.putErr
	}
	if !strings.HasPrefix(string(data), "RIFF") {
		return blob.Object{}, blob.ErrUnsupportedType
	}
	key := "blob-1.wav"
	m.objects[key] = data
	return blob.Object{Key: key, ContentType: "audio/wav", Size: int64(len(data))}, nil
}

func (m *mockBlobs) Delete(_ context.Context, key string) error {
	if err := m.deleteErr[key]; err != nil {
		return err
	}
	delete(m.objects, key)
	m.deleted = append(m.deleted, key)
	return nil
}

func (m *mockBlobs) URL(key string) string { return "http://gym.test/audio/" + key }

type mockAccountStore struct {
	accounts map[string]account.Account // keyed by lower-case email
	saves    int
}

func newMockAccountStore() *mockAccountStore {
	return &mockAccountStore{accounts: make(map[string]account.Account)}
}

func (m *mockAccountStore) GetByEmail(_ context.Context, email string) (account.Account, error) {
	a, ok := m.accounts[strings.ToLower(email)]
	if !ok {
		return account.Account{}, errors.New("not found")
	}
	return a, nil
}

func (m *mockAccountStore) Save(_ context.Context, a account.Account) error {
	m.saves++
	m.accounts[strings.ToLower(a.Email)] = a
	return nil
}

func (m *mockAccountStore) Count(_ context.Context) (int, error) {
	return len(m.accounts), nil
}
