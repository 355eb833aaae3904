// scheduler.go – the Periodic Driver (spec §4.8): polls the gateway for
// newly arrived objects, drives the Orchestrator's due queue, and
// re-disseminates pubkeys on a slow cadence. Grounded on the teacher's
// background-worker idiom (a ticker loop bounded by a context, logged at
// Info on each cycle), adapted from block-production polling to message
// polling.
package core

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// SchedulerConfig carries the cadences named in spec §4.8.
type SchedulerConfig struct {
	PollInterval             time.Duration
	DatabaseCleaningInterval time.Duration
	PubkeyRedisseminateAfter time.Duration
}

// Scheduler drives an Orchestrator's periodic obligations: draining due
// queue records, polling the gateway for inbound objects addressed to the
// engine's own identities, and re-disseminating pubkeys once they grow
// stale.
type Scheduler struct {
	Orchestrator *Orchestrator
	Store        Store
	Gateway      Gateway
	Config       SchedulerConfig

	lastCleaned time.Time
}

// NewScheduler builds a Scheduler over orch/store/gateway with cfg.
func NewScheduler(orch *Orchestrator, store Store, gw Gateway, cfg SchedulerConfig) *Scheduler {
	return &Scheduler{Orchestrator: orch, Store: store, Gateway: gw, Config: cfg}
}

// Run blocks, driving one cycle every PollInterval until ctx is
// cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.Config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.RunOnce(ctx, time.Now()); err != nil {
				log.WithField("err", err).Warn("scheduler: cycle failed")
			}
		}
	}
}

// RunOnce executes a single scheduling cycle: poll for inbound objects
// for every known identity, drain due queue work, and re-disseminate any
// pubkey that has grown older than PubkeyRedisseminateAfter.
func (s *Scheduler) RunOnce(ctx context.Context, now time.Time) error {
	nowUnix := now.Unix()

	identities, err := s.Store.ListIdentities()
	if err != nil {
		return err
	}
	for _, id := range identities {
		if err := s.pollIdentity(ctx, id, nowUnix); err != nil {
			log.WithFields(log.Fields{"address": id.Address.String(), "err": err}).
				Warn("scheduler: poll failed")
		}
	}

	if err := s.Orchestrator.Tick(ctx, nowUnix); err != nil {
		return err
	}

	if s.lastCleaned.IsZero() || now.Sub(s.lastCleaned) >= s.Config.DatabaseCleaningInterval {
		if err := s.cleanExpiredPayloads(nowUnix); err != nil {
			return err
		}
		s.lastCleaned = now
	}

	return s.redisseminateStalePubkeys(nowUnix)
}

func (s *Scheduler) pollIdentity(ctx context.Context, id *Identity, since int64) error {
	objects, err := s.Gateway.PollMessages(ctx, id.Address, since)
	if err != nil {
		return err
	}
	_, encryptPriv, err := identityKeys(id)
	if err != nil {
		return err
	}
	for _, raw := range objects {
		msg, _, err := DecodeMsgObject(raw, encryptPriv, TimeFieldAuto)
		if err != nil {
			log.WithField("err", err).Debug("scheduler: dropping undecodable inbound object")
			continue
		}
		msg.To = id.Address
		if err := s.Store.PutMessage(msg); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) cleanExpiredPayloads(now int64) error {
	payloads, err := s.Store.ListPayloadsByType(ObjectMsg)
	if err != nil {
		return err
	}
	for _, p := range payloads {
		if p.RemainingLifetime(now) < 0 {
			if err := s.Store.DeletePayload(p.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Scheduler) redisseminateStalePubkeys(now int64) error {
	identities, err := s.Store.ListIdentities()
	if err != nil {
		return err
	}
	for _, id := range identities {
		pub, err := s.Store.GetPubkey(id.Address)
		if err != nil {
			continue // not yet disseminated once; the original task will handle it
		}
		// runDisseminatePubkey stamps ExpiresTime as dissemination time plus
		// SubsequentAttemptsTTLSeconds.
		age := now - (pub.ExpiresTime - s.Orchestrator.Policy.SubsequentAttemptsTTLSeconds)
		if time.Duration(age)*time.Second < s.Config.PubkeyRedisseminateAfter {
			continue
		}
		rec := NewQueueRecord(TaskDisseminatePubkey, now, id.Address.String(), "", "")
		if err := Enqueue(s.Store, rec); err != nil {
			return err
		}
	}
	return nil
}
