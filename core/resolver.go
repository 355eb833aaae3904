// resolver.go – the Pubkey Resolver (spec §4.6): look up a recipient's
// pubkey locally first, falling back to the gateway, validating and
// persisting whatever it finds. Grounded on the teacher's address-lookup
// pattern in wallet.go (check local keystore, then fall back to deriving
// from chain state) generalized to a network round-trip.
package core

import "context"

// Resolver resolves addresses to validated Pubkey objects, the
// collaborator send-message and process-outgoing-message tasks depend on.
type Resolver struct {
	Store   Store
	Gateway Gateway
	Mode    TimeFieldMode
}

// NewResolver builds a Resolver over store and gateway.
func NewResolver(store Store, gw Gateway, mode TimeFieldMode) *Resolver {
	return &Resolver{Store: store, Gateway: gw, Mode: mode}
}

// Resolve returns a validated Pubkey for addr, consulting the local store
// first and the gateway on a miss. The local lookup is keyed on addr's
// ripe-hash rather than its exact address string: if more than one pubkey
// sharing that ripe-hash is on file (e.g. collected under different
// address versions over time), Resolve keeps the one that expires latest
// and deletes the rest, restoring the store's one-pubkey-per-ripe-hash
// invariant as a side effect of resolution. A gateway hit is parsed,
// validated against addr, and persisted before being returned. It fails
// with NotFound if neither source has it and InvalidPubkey if the
// gateway's copy does not validate against addr.
func (r *Resolver) Resolve(ctx context.Context, addr Address) (*Pubkey, error) {
	if pub, err := r.collapseByRipe(addr.Ripe); err == nil {
		return pub, nil
	}

	var raw []byte
	var err error
	if addr.Version >= 4 {
		tag, _, ok := addr.TagAndKey()
		if !ok {
			return nil, newErr(KindInvalidAddress, "resolver.Resolve", errString("address missing v4 tag"))
		}
		raw, err = r.Gateway.FetchPubkeyByTag(ctx, tag)
	} else {
		raw, err = r.Gateway.FetchPubkeyByRipe(ctx, addr.Ripe)
	}
	if err != nil {
		return nil, err
	}

	pub, err := ParsePubkey(raw, addr, r.Mode)
	if err != nil {
		return nil, err
	}

	valid, err := pub.ValidFor(addr)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, newErr(KindInvalidPubkey, "resolver.Resolve", errString("pubkey does not validate against requested address"))
	}

	if err := r.Store.PutPubkey(addr, pub); err != nil {
		return nil, err
	}
	return pub, nil
}

// collapseByRipe looks up every pubkey on file sharing ripe, keeps the one
// with the latest ExpiresTime, deletes the others, and returns the kept
// copy. It fails with NotFound if none are on file.
func (r *Resolver) collapseByRipe(ripe [20]byte) (*Pubkey, error) {
	matches, err := r.Store.ListPubkeysByRipe(ripe)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, newErr(KindNotFound, "resolver.collapseByRipe", errString("no pubkey on file for ripe-hash"))
	}

	kept := matches[0]
	for _, m := range matches[1:] {
		if m.ExpiresTime > kept.ExpiresTime {
			kept = m
		}
	}
	for _, m := range matches {
		if m == kept {
			continue
		}
		dupAddr, err := m.Address()
		if err != nil {
			continue
		}
		if err := r.Store.DeletePubkey(dupAddr); err != nil {
			return nil, err
		}
	}
	return kept, nil
}
