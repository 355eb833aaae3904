// store.go – the Store collaborator (spec §6): persistence for addresses,
// pubkeys, payloads, messages and queue records. Store is the external
// boundary the Orchestrator and Resolver depend on; memStore is a
// reference implementation only, grounded on the teacher's in-process
// MessageQueue bookkeeping style, not a production datastore.
package core

import (
	"sync"

	"github.com/google/uuid"
)

// Store is the persistence boundary named in spec §6. Implementations
// must be safe for concurrent use.
type Store interface {
	PutIdentity(priv *Identity) error
	GetIdentity(addr Address) (*Identity, error)
	ListIdentities() ([]*Identity, error)

	PutPubkey(addr Address, pub *Pubkey) error
	GetPubkey(addr Address) (*Pubkey, error)
	DeletePubkey(addr Address) error
	ListPubkeysByRipe(ripe [20]byte) ([]*Pubkey, error)

	PutPayload(p *Payload) error
	GetPayload(id string) (*Payload, error)
	DeletePayload(id string) error
	ListPayloadsByType(t ObjectType) ([]*Payload, error)

	PutMessage(m *Message) error
	GetMessage(id string) (*Message, error)
	ListMessagesByStatus(s MessageStatus) ([]*Message, error)

	PutQueueRecord(r *QueueRecord) error
	GetQueueRecord(id string) (*QueueRecord, error)
	DeleteQueueRecord(id string) error
	ListQueueRecordsByTask(task TaskKind, object0 string) ([]*QueueRecord, error)
	ListDueQueueRecords(now int64) ([]*QueueRecord, error)
}

// Identity bundles an address with the private keys that control it, the
// unit the "create-identity" task produces and cmd/bitseal manages.
type Identity struct {
	Address    Address
	SigningKey []byte // 32-byte ECDSA private scalar
	EncryptKey []byte // 32-byte ECDSA private scalar
	Label      string
}

// memStore is a lock-protected, process-local Store. It exists for tests,
// the CLI's default run mode, and as a reference for a real backing store;
// it is not meant to survive a process restart.
type memStore struct {
	mu sync.RWMutex

	identities map[string]*Identity
	pubkeys    map[string]*Pubkey
	payloads   map[string]*Payload
	messages   map[string]*Message
	queue      map[string]*QueueRecord
}

// NewMemStore constructs an empty in-memory Store.
func NewMemStore() Store {
	return &memStore{
		identities: map[string]*Identity{},
		pubkeys:    map[string]*Pubkey{},
		payloads:   map[string]*Payload{},
		messages:   map[string]*Message{},
		queue:      map[string]*QueueRecord{},
	}
}

func (s *memStore) PutIdentity(id *Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identities[id.Address.String()] = id
	return nil
}

func (s *memStore) GetIdentity(addr Address) (*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.identities[addr.String()]
	if !ok {
		return nil, newErr(KindNotFound, "store.GetIdentity", errString("identity not found"))
	}
	return id, nil
}

func (s *memStore) ListIdentities() ([]*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Identity, 0, len(s.identities))
	for _, id := range s.identities {
		out = append(out, id)
	}
	return out, nil
}

func (s *memStore) PutPubkey(addr Address, pub *Pubkey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pubkeys[addr.String()] = pub
	return nil
}

func (s *memStore) GetPubkey(addr Address) (*Pubkey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pub, ok := s.pubkeys[addr.String()]
	if !ok {
		return nil, newErr(KindNotFound, "store.GetPubkey", errString("pubkey not found"))
	}
	return pub, nil
}

func (s *memStore) DeletePubkey(addr Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pubkeys, addr.String())
	return nil
}

// ListPubkeysByRipe returns every stored pubkey whose own keys hash to
// ripe, regardless of the address version/stream under which it was
// filed. Pubkey.Address() reconstructs the full address from its own
// fields, so no secondary ripe-hash index is needed.
func (s *memStore) ListPubkeysByRipe(ripe [20]byte) ([]*Pubkey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Pubkey
	for _, p := range s.pubkeys {
		if p.RipeHash() == ripe {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memStore) PutPayload(p *Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	s.payloads[p.ID] = p
	return nil
}

func (s *memStore) GetPayload(id string) (*Payload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payloads[id]
	if !ok {
		return nil, newErr(KindNotFound, "store.GetPayload", errString("payload not found"))
	}
	return p, nil
}

func (s *memStore) DeletePayload(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.payloads, id)
	return nil
}

func (s *memStore) ListPayloadsByType(t ObjectType) ([]*Payload, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Payload
	for _, p := range s.payloads {
		if p.Type == t {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memStore) PutMessage(m *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	s.messages[m.ID] = m
	return nil
}

func (s *memStore) GetMessage(id string) (*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.messages[id]
	if !ok {
		return nil, newErr(KindNotFound, "store.GetMessage", errString("message not found"))
	}
	return m, nil
}

func (s *memStore) ListMessagesByStatus(status MessageStatus) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Message
	for _, m := range s.messages {
		if m.Status == status {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memStore) PutQueueRecord(r *QueueRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	s.queue[r.ID] = r
	return nil
}

func (s *memStore) GetQueueRecord(id string) (*QueueRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.queue[id]
	if !ok {
		return nil, newErr(KindNotFound, "store.GetQueueRecord", errString("queue record not found"))
	}
	return r, nil
}

func (s *memStore) DeleteQueueRecord(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.queue, id)
	return nil
}

func (s *memStore) ListQueueRecordsByTask(task TaskKind, object0 string) ([]*QueueRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*QueueRecord
	for _, r := range s.queue {
		if r.Task == task && r.Object0 == object0 {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) ListDueQueueRecords(now int64) ([]*QueueRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*QueueRecord
	for _, r := range s.queue {
		if r.TriggerTime <= now {
			out = append(out, r)
		}
	}
	return out, nil
}
