// orchestrator.go – the task state machine (spec §4.7): drives every
// QueueRecord through its task-specific work, applying the TTL/attempt
// cap retry strategy uniformly. Grounded on the teacher's wallet.go
// identity-management flow (generate keys, derive address, persist) for
// create-identity, and on messages.go's enqueue/drain loop for the retry
// scheduling, generalized from a single FIFO into five task kinds.
package core

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	log "github.com/sirupsen/logrus"
)

// RetryPolicy carries the TTL/attempt-cap knobs named in spec §4.7.
type RetryPolicy struct {
	FirstAttemptTTLSeconds       int64
	SubsequentAttemptsTTLSeconds int64
	MinimumTimeToLiveSeconds     int64
	MaximumAttempts              int
}

// Orchestrator drives QueueRecords to completion against a Store, a
// Gateway and a Resolver (spec §4.7).
type Orchestrator struct {
	Store    Store
	Gateway  Gateway
	Resolver *Resolver
	Policy   RetryPolicy

	NetworkNonceTrialsPerByte uint64
	NetworkExtraBytes         uint64
	PowWorkers                int
	Mode                      TimeFieldMode
}

// NewOrchestrator builds an Orchestrator from its collaborators.
func NewOrchestrator(store Store, gw Gateway, resolver *Resolver, policy RetryPolicy, ntpb, eb uint64, workers int, mode TimeFieldMode) *Orchestrator {
	return &Orchestrator{
		Store:                     store,
		Gateway:                   gw,
		Resolver:                  resolver,
		Policy:                    policy,
		NetworkNonceTrialsPerByte: ntpb,
		NetworkExtraBytes:         eb,
		PowWorkers:                workers,
		Mode:                      mode,
	}
}

// CreateIdentity generates a fresh signing/encryption keypair and derives
// the v4 address they produce locally (key generation is in-process and
// not meaningfully retryable), then hands the resulting Identity to a
// create-identity QueueRecord so that its persistence — the step that can
// actually fail against a real backing store — goes through the same
// TTL/attempt-cap retry machinery as every other task (spec §4.7
// create-identity). The caller gets the address back immediately; the
// Identity is durable once the queued task runs.
func (o *Orchestrator) CreateIdentity(label string, now int64) (*Identity, error) {
	signingPriv, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, newErr(KindInvalidParameter, "orchestrator.CreateIdentity", err)
	}
	encryptPriv, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, newErr(KindInvalidParameter, "orchestrator.CreateIdentity", err)
	}

	ripe := RipeHash(ethcrypto.FromECDSAPub(&signingPriv.PublicKey)[1:], ethcrypto.FromECDSAPub(&encryptPriv.PublicKey)[1:])
	addr, err := NewAddress(4, 1, ripe)
	if err != nil {
		return nil, err
	}

	id := &Identity{
		Address:    addr,
		SigningKey: ethcrypto.FromECDSA(signingPriv),
		EncryptKey: ethcrypto.FromECDSA(encryptPriv),
		Label:      label,
	}

	keyBlob := hex.EncodeToString(id.SigningKey) + ":" + hex.EncodeToString(id.EncryptKey)
	rec := NewQueueRecord(TaskCreateIdentity, now, addr.String(), keyBlob, label)
	if err := Enqueue(o.Store, rec); err != nil {
		return nil, err
	}
	log.WithField("address", addr.String()).Info("orchestrator: identity creation queued")
	return id, nil
}

// runCreateIdentity persists the Identity a create-identity QueueRecord
// carries and, once that succeeds, enqueues the disseminate-pubkey task
// that publishes it.
func (o *Orchestrator) runCreateIdentity(rec *QueueRecord, now int64) error {
	addr, err := DecodeAddress(rec.Object0)
	if err != nil {
		return err
	}
	parts := strings.SplitN(rec.Object1, ":", 2)
	if len(parts) != 2 {
		return newErr(KindMalformed, "orchestrator.runCreateIdentity", errString("malformed key blob"))
	}
	signingKey, err := hex.DecodeString(parts[0])
	if err != nil {
		return newErr(KindMalformed, "orchestrator.runCreateIdentity", err)
	}
	encryptKey, err := hex.DecodeString(parts[1])
	if err != nil {
		return newErr(KindMalformed, "orchestrator.runCreateIdentity", err)
	}

	id := &Identity{Address: addr, SigningKey: signingKey, EncryptKey: encryptKey, Label: rec.Object2}
	if err := o.Store.PutIdentity(id); err != nil {
		return err
	}

	disseminate := NewQueueRecord(TaskDisseminatePubkey, now, addr.String(), "", "")
	return Enqueue(o.Store, disseminate)
}

func identityKeys(id *Identity) (signing, encrypt *ecdsa.PrivateKey, err error) {
	signing, err = ethcrypto.ToECDSA(id.SigningKey)
	if err != nil {
		return nil, nil, newErr(KindInvalidParameter, "orchestrator.identityKeys", err)
	}
	encrypt, err = ethcrypto.ToECDSA(id.EncryptKey)
	if err != nil {
		return nil, nil, newErr(KindInvalidParameter, "orchestrator.identityKeys", err)
	}
	return signing, encrypt, nil
}

// runDisseminatePubkey builds, PoW-stamps and submits the owning
// identity's pubkey object once and stores it. It does not reschedule
// itself; later re-dissemination is enqueued by the Scheduler.
func (o *Orchestrator) runDisseminatePubkey(ctx context.Context, rec *QueueRecord, now int64) error {
	addr, err := DecodeAddress(rec.Object0)
	if err != nil {
		return err
	}
	id, err := o.Store.GetIdentity(addr)
	if err != nil {
		return err
	}
	signingPriv, encryptPriv, err := identityKeys(id)
	if err != nil {
		return err
	}

	pub := &Pubkey{
		AddressVersion:     addr.Version,
		Stream:             addr.Stream,
		SigningKey:         ethcrypto.FromECDSAPub(&signingPriv.PublicKey),
		EncryptionKey:      ethcrypto.FromECDSAPub(&encryptPriv.PublicKey),
		NonceTrialsPerByte: o.NetworkNonceTrialsPerByte,
		ExtraBytes:         o.NetworkExtraBytes,
		ExpiresTime:        now + o.Policy.SubsequentAttemptsTTLSeconds,
	}

	if addr.Version >= 3 {
		if err := pub.Sign(signingPriv); err != nil {
			return err
		}
	}

	unsigned, err := pub.Serialize(addr, o.Mode)
	if err != nil {
		return err
	}
	nonce, err := DoPOW(ctx, unsigned, pub.ExpiresTime, now, o.NetworkNonceTrialsPerByte, o.NetworkExtraBytes, o.PowWorkers)
	if err != nil {
		return err
	}
	pub.Nonce = nonce
	pub.PowDone = true

	wire, err := pub.Serialize(addr, o.Mode)
	if err != nil {
		return err
	}
	if err := o.Gateway.SubmitObject(ctx, ObjectPubkey, wire); err != nil {
		return err
	}
	return o.Store.PutPubkey(addr, pub)
}

// SendMessage registers msg in queued state and enqueues a send-message
// task to resolve the recipient's pubkey (spec §4.7 send-message). It does
// not resolve the pubkey itself: an unknown recipient is not a caller-
// facing error here, it is the send-message task's job to keep retrying
// the resolve with back-off until it succeeds or the attempt cap is hit.
func (o *Orchestrator) SendMessage(ctx context.Context, from, to Address, subject, body string, now int64) (*Message, error) {
	msg := &Message{
		Subject:   subject,
		Body:      body,
		From:      from,
		To:        to,
		Status:    StatusQueued,
		CreatedAt: now,
	}
	if err := o.Store.PutMessage(msg); err != nil {
		return nil, err
	}

	rec := NewQueueRecord(TaskSendMessage, now, msg.ID, to.String(), from.String())
	if err := Enqueue(o.Store, rec); err != nil {
		return nil, err
	}
	return msg, nil
}

// runSendMessage attempts to resolve the recipient's pubkey. A resolve
// failure (most commonly an unknown recipient) is returned as-is so
// Tick's generic retry/back-off reschedules this same record; success
// hands the message off to the process-outgoing-message task.
func (o *Orchestrator) runSendMessage(ctx context.Context, rec *QueueRecord, now int64) error {
	to, err := DecodeAddress(rec.Object1)
	if err != nil {
		return err
	}
	if _, err := o.Resolver.Resolve(ctx, to); err != nil {
		return err
	}

	procRec := NewQueueRecord(TaskProcessOutgoingMessage, now, rec.Object0, rec.Object1, rec.Object2)
	return Enqueue(o.Store, procRec)
}

// runProcessOutgoingMessage builds, signs, encrypts and PoW-stamps a msg
// object for the given record, submits it, and transitions the Message to
// waiting-for-ack while scheduling the disseminate-message retry task.
func (o *Orchestrator) runProcessOutgoingMessage(ctx context.Context, rec *QueueRecord, now int64) error {
	msg, err := o.Store.GetMessage(rec.Object0)
	if err != nil {
		return err
	}
	recipientPub, err := o.Resolver.Resolve(ctx, msg.To)
	if err != nil {
		return err
	}
	fromID, err := o.Store.GetIdentity(msg.From)
	if err != nil {
		return err
	}
	senderPub, err := o.Store.GetPubkey(msg.From)
	if err != nil {
		return err
	}
	signingPriv, _, err := identityKeys(fromID)
	if err != nil {
		return err
	}

	expires := now + o.Policy.FirstAttemptTTLSeconds
	unsigned, err := EncodeMsgObject(msg, senderPub, signingPriv, recipientPub, 0, false, expires, o.Mode)
	if err != nil {
		return err
	}
	nonce, err := DoPOW(ctx, unsigned, expires, now, senderPub.NonceTrialsPerByte, senderPub.ExtraBytes, o.PowWorkers)
	if err != nil {
		return err
	}
	wire, err := EncodeMsgObject(msg, senderPub, signingPriv, recipientPub, nonce, true, expires, o.Mode)
	if err != nil {
		return err
	}

	if err := o.Gateway.SubmitObject(ctx, ObjectMsg, wire); err != nil {
		return err
	}

	payload := &Payload{Data: wire, Type: ObjectMsg, ExpiresTime: expires, Origin: &msg.From}
	if err := o.Store.PutPayload(payload); err != nil {
		return err
	}

	msg.Status = StatusWaitingForAck
	if err := o.Store.PutMessage(msg); err != nil {
		return err
	}

	retryRec := NewQueueRecord(TaskDisseminateMessage, now+o.Policy.FirstAttemptTTLSeconds, msg.ID, payload.ID, "")
	return Enqueue(o.Store, retryRec)
}

// runDisseminateMessage resubmits a previously-built message payload that
// has not yet been acknowledged, so long as it has not expired. On success
// it manages its own record: it either resubmits and reschedules itself,
// or reaches a terminal state (payload no longer on file, or expired) and
// deletes its own record, in both cases leaving Tick nothing further to
// do. A failed resubmission is returned to Tick, which applies the generic
// retry/attempt-cap handling to this record.
func (o *Orchestrator) runDisseminateMessage(ctx context.Context, rec *QueueRecord, now int64) error {
	payload, err := o.Store.GetPayload(rec.Object1)
	if err != nil {
		// The payload is no longer on file (for instance the Scheduler's
		// expired-payload cleaning removed it); treat as done.
		return o.Store.DeleteQueueRecord(rec.ID)
	}
	if payload.RemainingLifetime(now) < o.Policy.MinimumTimeToLiveSeconds {
		if msg, mErr := o.Store.GetMessage(rec.Object0); mErr == nil {
			msg.Status = StatusFailed
			_ = o.Store.PutMessage(msg)
		}
		if err := o.Store.DeletePayload(payload.ID); err != nil {
			return err
		}
		return o.Store.DeleteQueueRecord(rec.ID)
	}

	if err := o.Gateway.SubmitObject(ctx, payload.Type, payload.Data); err != nil {
		return err
	}
	rec.TriggerTime = now + o.Policy.SubsequentAttemptsTTLSeconds
	return o.Store.PutQueueRecord(rec)
}

// AcknowledgeMessage marks msg delivered and removes its retry records,
// called when an ack object for it is observed on the network.
func (o *Orchestrator) AcknowledgeMessage(msg *Message) error {
	msg.Status = StatusDelivered
	if err := o.Store.PutMessage(msg); err != nil {
		return err
	}
	recs, err := o.Store.ListQueueRecordsByTask(TaskDisseminateMessage, msg.ID)
	if err != nil {
		return err
	}
	for _, r := range recs {
		if err := o.Store.DeleteQueueRecord(r.ID); err != nil {
			return err
		}
	}
	return nil
}

// Tick drains every due QueueRecord, dispatching it by task kind and
// applying the retry/attempt-cap strategy: a failing record is
// rescheduled at now+SubsequentAttemptsTTLSeconds with Attempts
// incremented, unless doing so would exceed MaximumAttempts, in which
// case the record is dropped (and, for message tasks, the Message is
// marked failed).
func (o *Orchestrator) Tick(ctx context.Context, now int64) error {
	due, err := o.Store.ListDueQueueRecords(now)
	if err != nil {
		return err
	}
	for _, rec := range due {
		var runErr error
		switch rec.Task {
		case TaskCreateIdentity:
			runErr = o.runCreateIdentity(rec, now)
		case TaskDisseminatePubkey:
			runErr = o.runDisseminatePubkey(ctx, rec, now)
		case TaskSendMessage:
			runErr = o.runSendMessage(ctx, rec, now)
		case TaskProcessOutgoingMessage:
			runErr = o.runProcessOutgoingMessage(ctx, rec, now)
		case TaskDisseminateMessage:
			runErr = o.runDisseminateMessage(ctx, rec, now)
		default:
			runErr = newErr(KindInvalidParameter, "orchestrator.Tick", errString("unhandled task kind"))
		}

		if runErr == nil {
			if rec.Task != TaskDisseminateMessage {
				if err := o.Store.DeleteQueueRecord(rec.ID); err != nil {
					return err
				}
			}
			continue
		}

		log.WithFields(log.Fields{"task": rec.Task.String(), "attempts": rec.Attempts, "err": runErr}).
			Warn("orchestrator: task attempt failed")

		rec.Attempts++
		if rec.Attempts >= o.Policy.MaximumAttempts {
			if msg, mErr := o.Store.GetMessage(rec.Object0); mErr == nil {
				msg.Status = StatusFailed
				_ = o.Store.PutMessage(msg)
			}
			if err := o.Store.DeleteQueueRecord(rec.ID); err != nil {
				return err
			}
			continue
		}

		rec.TriggerTime = now + o.Policy.SubsequentAttemptsTTLSeconds
		if err := o.Store.PutQueueRecord(rec); err != nil {
			return err
		}
	}
	return nil
}
