package core

import "testing"

func TestMemStoreIdentityRoundTrip(t *testing.T) {
	store := NewMemStore()
	var ripe [20]byte
	addr, _ := NewAddress(4, 1, ripe)
	id := &Identity{Address: addr, Label: "alice"}

	if err := store.PutIdentity(id); err != nil {
		t.Fatalf("PutIdentity: %v", err)
	}
	got, err := store.GetIdentity(addr)
	if err != nil {
		t.Fatalf("GetIdentity: %v", err)
	}
	if got.Label != "alice" {
		t.Errorf("label mismatch: got %q", got.Label)
	}

	all, err := store.ListIdentities()
	if err != nil {
		t.Fatalf("ListIdentities: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("expected 1 identity, got %d", len(all))
	}
}

func TestMemStoreGetMissingReturnsNotFound(t *testing.T) {
	store := NewMemStore()
	var ripe [20]byte
	addr, _ := NewAddress(1, 1, ripe)

	if _, err := store.GetIdentity(addr); err == nil {
		t.Errorf("expected NotFound for missing identity")
	}
	if _, err := store.GetPubkey(addr); err == nil {
		t.Errorf("expected NotFound for missing pubkey")
	}
	if _, err := store.GetPayload("nope"); err == nil {
		t.Errorf("expected NotFound for missing payload")
	}
	if _, err := store.GetMessage("nope"); err == nil {
		t.Errorf("expected NotFound for missing message")
	}
	if _, err := store.GetQueueRecord("nope"); err == nil {
		t.Errorf("expected NotFound for missing queue record")
	}
}

func TestMemStorePayloadLifecycle(t *testing.T) {
	store := NewMemStore()
	p := &Payload{Type: ObjectMsg, ExpiresTime: 1000}
	if err := store.PutPayload(p); err != nil {
		t.Fatalf("PutPayload: %v", err)
	}
	if p.ID == "" {
		t.Fatalf("PutPayload should assign an ID")
	}

	byType, err := store.ListPayloadsByType(ObjectMsg)
	if err != nil {
		t.Fatalf("ListPayloadsByType: %v", err)
	}
	if len(byType) != 1 {
		t.Errorf("expected 1 payload of type msg, got %d", len(byType))
	}

	if err := store.DeletePayload(p.ID); err != nil {
		t.Fatalf("DeletePayload: %v", err)
	}
	if _, err := store.GetPayload(p.ID); err == nil {
		t.Errorf("expected payload to be gone after delete")
	}
}

func TestMemStoreListPubkeysByRipeAndDelete(t *testing.T) {
	store := NewMemStore()
	var zero [20]byte

	// pub3 and pub4 carry byte-identical key material, so they share a
	// ripe-hash even though they are filed under different address
	// versions (and thus different address strings).
	signingKey := embedPointPrefix(make([]byte, 64))
	encKey := embedPointPrefix(make([]byte, 64))
	pub3 := &Pubkey{AddressVersion: 3, Stream: 1, SigningKey: signingKey, EncryptionKey: encKey}
	pub4 := &Pubkey{AddressVersion: 4, Stream: 1, SigningKey: signingKey, EncryptionKey: encKey}

	addr3, _ := NewAddress(3, 1, zero)
	addr4, _ := NewAddress(4, 1, zero)

	if err := store.PutPubkey(addr3, pub3); err != nil {
		t.Fatalf("PutPubkey addr3: %v", err)
	}
	if err := store.PutPubkey(addr4, pub4); err != nil {
		t.Fatalf("PutPubkey addr4: %v", err)
	}

	wantRipe := pub3.RipeHash()
	matches, err := store.ListPubkeysByRipe(wantRipe)
	if err != nil {
		t.Fatalf("ListPubkeysByRipe: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 pubkeys sharing a ripe-hash, got %d", len(matches))
	}

	if err := store.DeletePubkey(addr3); err != nil {
		t.Fatalf("DeletePubkey: %v", err)
	}
	if _, err := store.GetPubkey(addr3); err == nil {
		t.Errorf("expected addr3's pubkey to be gone after delete")
	}
	if _, err := store.GetPubkey(addr4); err != nil {
		t.Errorf("addr4's pubkey should be unaffected: %v", err)
	}
}

func TestMemStoreMessagesByStatus(t *testing.T) {
	store := NewMemStore()
	m1 := &Message{Status: StatusQueued}
	m2 := &Message{Status: StatusDelivered}
	if err := store.PutMessage(m1); err != nil {
		t.Fatalf("PutMessage: %v", err)
	}
	if err := store.PutMessage(m2); err != nil {
		t.Fatalf("PutMessage: %v", err)
	}

	queued, err := store.ListMessagesByStatus(StatusQueued)
	if err != nil {
		t.Fatalf("ListMessagesByStatus: %v", err)
	}
	if len(queued) != 1 || queued[0].ID != m1.ID {
		t.Errorf("expected only m1 in Queued status, got %+v", queued)
	}
}
