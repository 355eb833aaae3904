package core

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeGateway is an in-process Gateway double: submitted objects are kept
// so a test can resolve a just-published pubkey without a real network.
type fakeGateway struct {
	mu       sync.Mutex
	byTag    map[[32]byte][]byte
	byRipe   map[[20]byte][]byte
	messages map[string][][]byte
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		byTag:    map[[32]byte][]byte{},
		byRipe:   map[[20]byte][]byte{},
		messages: map[string][][]byte{},
	}
}

func (g *fakeGateway) SubmitObject(ctx context.Context, objType ObjectType, data []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if objType == ObjectPubkey {
		if tag, ok := extractPubkeyTag(data); ok {
			g.byTag[tag] = data
		}
	}
	if objType == ObjectMsg {
		g.messages["_all"] = append(g.messages["_all"], data)
	}
	return nil
}

// extractPubkeyTag reads just enough of a v4+ pubkey object's outer
// framing to recover its lookup tag, without needing the address-derived
// key that decrypts the envelope — the same information a real gateway
// would index objects by.
func extractPubkeyTag(data []byte) (tag [32]byte, ok bool) {
	if len(data) < 8 {
		return tag, false
	}
	data = data[8:]
	_, n, err := DecodeTimeField(data)
	if err != nil {
		return tag, false
	}
	data = data[n:]

	version, n, err := GetVarInt(data)
	if err != nil || version < 4 {
		return tag, false
	}
	data = data[n:]

	_, n, err = GetVarInt(data)
	if err != nil {
		return tag, false
	}
	data = data[n:]

	if len(data) < 32 {
		return tag, false
	}
	copy(tag[:], data[:32])
	return tag, true
}

func (g *fakeGateway) FetchPubkeyByTag(ctx context.Context, tag [32]byte) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	data, ok := g.byTag[tag]
	if !ok {
		return nil, newErr(KindNotFound, "fakeGateway.FetchPubkeyByTag", errString("not found"))
	}
	return data, nil
}

func (g *fakeGateway) FetchPubkeyByRipe(ctx context.Context, ripe [20]byte) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	data, ok := g.byRipe[ripe]
	if !ok {
		return nil, newErr(KindNotFound, "fakeGateway.FetchPubkeyByRipe", errString("not found"))
	}
	return data, nil
}

func (g *fakeGateway) PollMessages(ctx context.Context, addr Address, since int64) ([][]byte, error) {
	return nil, nil
}

func testPolicy() RetryPolicy {
	return RetryPolicy{
		FirstAttemptTTLSeconds:       3600,
		SubsequentAttemptsTTLSeconds: 86400,
		MinimumTimeToLiveSeconds:     120,
		MaximumAttempts:              3,
	}
}

func TestOrchestratorCreateIdentityAndDisseminate(t *testing.T) {
	store := NewMemStore()
	gw := newFakeGateway()
	resolver := NewResolver(store, gw, TimeFieldAuto)
	orch := NewOrchestrator(store, gw, resolver, testPolicy(), 1000, 1000, 2, TimeFieldAuto)

	now := time.Now().Unix()
	id, err := orch.CreateIdentity("alice", now)
	if err != nil {
		t.Fatalf("CreateIdentity: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	// create-identity persists the Identity and enqueues disseminate-pubkey
	// on one Tick; a second Tick is needed to run that newly-enqueued task.
	for i := 0; i < 2; i++ {
		if err := orch.Tick(ctx, now); err != nil {
			t.Fatalf("Tick #%d: %v", i, err)
		}
	}

	if _, err := store.GetPubkey(id.Address); err != nil {
		t.Fatalf("expected pubkey to be persisted after dissemination, got: %v", err)
	}

	due, err := store.ListDueQueueRecords(now + 1)
	if err != nil {
		t.Fatalf("ListDueQueueRecords: %v", err)
	}
	for _, r := range due {
		if r.Task == TaskDisseminatePubkey && r.Object0 == id.Address.String() {
			t.Errorf("disseminate-pubkey task should be cleared on success")
		}
	}
}

func TestOrchestratorSendMessageEndToEnd(t *testing.T) {
	store := NewMemStore()
	gw := newFakeGateway()
	resolver := NewResolver(store, gw, TimeFieldAuto)
	orch := NewOrchestrator(store, gw, resolver, testPolicy(), 1000, 1000, 2, TimeFieldAuto)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	now := time.Now().Unix()

	alice, err := orch.CreateIdentity("alice", now)
	if err != nil {
		t.Fatalf("CreateIdentity alice: %v", err)
	}
	bob, err := orch.CreateIdentity("bob", now)
	if err != nil {
		t.Fatalf("CreateIdentity bob: %v", err)
	}

	// Two hops: create-identity persists the Identity, then
	// disseminate-pubkey publishes it.
	for i := 0; i < 2; i++ {
		if err := orch.Tick(ctx, now); err != nil {
			t.Fatalf("Tick (dissemination) #%d: %v", i, err)
		}
	}

	msg, err := orch.SendMessage(ctx, alice.Address, bob.Address, "hi", "hello bob", now)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if msg.Status != StatusQueued {
		t.Errorf("new message should start Queued, got %s", msg.Status)
	}

	// Two hops: send-message resolves bob's pubkey, then
	// process-outgoing-message builds, PoW-stamps and submits the object.
	for i := 0; i < 2; i++ {
		if err := orch.Tick(ctx, now); err != nil {
			t.Fatalf("Tick (process-outgoing-message) #%d: %v", i, err)
		}
	}

	stored, err := store.GetMessage(msg.ID)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if stored.Status != StatusWaitingForAck {
		t.Errorf("message should be waiting for ack after submission, got %s", stored.Status)
	}

	if err := orch.AcknowledgeMessage(stored); err != nil {
		t.Fatalf("AcknowledgeMessage: %v", err)
	}
	final, err := store.GetMessage(msg.ID)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if final.Status != StatusDelivered {
		t.Errorf("acknowledged message should be Delivered, got %s", final.Status)
	}
}

func TestOrchestratorDropsRecordAfterMaxAttempts(t *testing.T) {
	store := NewMemStore()
	gw := newFakeGateway()
	resolver := NewResolver(store, gw, TimeFieldAuto)
	policy := testPolicy()
	orch := NewOrchestrator(store, gw, resolver, policy, 1000, 1000, 2, TimeFieldAuto)

	// A process-outgoing-message task referencing a message that does not
	// exist always fails, exercising the attempt-cap eviction path. Each
	// failure reschedules the record SubsequentAttemptsTTLSeconds later, so
	// every Tick runs at the time the record next falls due.
	rec := NewQueueRecord(TaskProcessOutgoingMessage, 0, "missing-message-id", "", "")
	if err := store.PutQueueRecord(rec); err != nil {
		t.Fatalf("PutQueueRecord: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < policy.MaximumAttempts; i++ {
		if err := orch.Tick(ctx, int64(i)*policy.SubsequentAttemptsTTLSeconds); err != nil {
			t.Fatalf("Tick #%d: %v", i, err)
		}
	}

	if _, err := store.GetQueueRecord(rec.ID); err == nil {
		t.Errorf("expected the record to be evicted after exceeding MaximumAttempts")
	}
}
