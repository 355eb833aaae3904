// queue.go – the durable work queue (spec §5): task kinds, QueueRecord,
// and the dedup invariant that at most two live records may exist for a
// given (task, object0) pair. Grounded on the teacher's MessageQueue
// bookkeeping idiom (fixed-shape records keyed by an identifier, enqueued
// and drained by a single owner), generalized from a FIFO to a
// trigger-time-ordered retry queue.
package core

import "github.com/google/uuid"

// TaskKind enumerates the task types the Orchestrator understands
// (spec §5).
type TaskKind int

const (
	TaskCreateIdentity TaskKind = iota
	TaskDisseminatePubkey
	TaskSendMessage
	TaskProcessOutgoingMessage
	TaskDisseminateMessage
)

func (t TaskKind) String() string {
	switch t {
	case TaskCreateIdentity:
		return "create-identity"
	case TaskDisseminatePubkey:
		return "disseminate-pubkey"
	case TaskSendMessage:
		return "send-message"
	case TaskProcessOutgoingMessage:
		return "process-outgoing-message"
	case TaskDisseminateMessage:
		return "disseminate-message"
	default:
		return "unknown"
	}
}

// MaxLiveRecordsPerTask is the dedup cap named in spec §5: at most two
// live queue records may exist for the same (task, object0) pair at once
// (the current attempt and, briefly, its regenerated successor).
const MaxLiveRecordsPerTask = 2

// QueueRecord is a single durable unit of retryable work (spec §5).
// Object0/Object1/Object2 are opaque foreign keys whose meaning depends
// on Task: for TaskCreateIdentity, Object0 is the not-yet-persisted
// address string, Object1 is "hex(signingKey):hex(encryptKey)" and
// Object2 is the label; for TaskDisseminatePubkey, Object0 is the owning
// address string; for TaskSendMessage and TaskProcessOutgoingMessage,
// Object0 is the Message ID, Object1 the recipient address string and
// Object2 the sender address string; for TaskDisseminateMessage, Object0
// is the Message ID and Object1 the Payload ID.
type QueueRecord struct {
	ID          string
	Task        TaskKind
	TriggerTime int64
	Attempts    int
	Object0     string
	Object1     string
	Object2     string
}

// NewQueueRecord builds a QueueRecord with a fresh ID and zero attempts.
func NewQueueRecord(task TaskKind, triggerTime int64, object0, object1, object2 string) *QueueRecord {
	return &QueueRecord{
		ID:          uuid.NewString(),
		Task:        task,
		TriggerTime: triggerTime,
		Object0:     object0,
		Object1:     object1,
		Object2:     object2,
	}
}

// Enqueue inserts rec into store, first deleting the oldest live record
// for the same (task, object0) if doing so is necessary to respect
// MaxLiveRecordsPerTask (spec §5 dedup invariant).
func Enqueue(store Store, rec *QueueRecord) error {
	existing, err := store.ListQueueRecordsByTask(rec.Task, rec.Object0)
	if err != nil {
		return err
	}
	if len(existing) >= MaxLiveRecordsPerTask {
		oldest := existing[0]
		for _, r := range existing[1:] {
			if r.TriggerTime < oldest.TriggerTime {
				oldest = r
			}
		}
		if err := store.DeleteQueueRecord(oldest.ID); err != nil {
			return err
		}
	}
	return store.PutQueueRecord(rec)
}
