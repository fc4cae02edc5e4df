/*
 * Copyright (C) 2026 IDX network community
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 *
 */

package issuer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nuts-foundation/go-stoabs"

	"github.com/idx-network/idx-node/openid4vc/log"
)

// Reference types under which issuance sessions are indexed.
const (
	refTypeOfferID           = "offer"
	refTypePreAuthorizedCode = "preauth"
	refTypeIssuerState       = "issuer_state"
	refTypeAuthorizationCode = "code"
)

// Store persists issuance sessions and secondary references (offer id,
// pre-authorized code, issuer state, authorization code) pointing at them.
// Lookups do not filter on session expiry, expiry is checked by the caller so an
// expired session can still be transitioned to its error state.
type Store interface {
	// Save stores a new issuance session. The session ID must not exist yet.
	Save(ctx context.Context, session IssuanceSession) error
	// Update overwrites an existing issuance session.
	Update(ctx context.Context, session IssuanceSession) error
	// GetByID returns the session with the given ID, or nil when not found.
	GetByID(ctx context.Context, id string) (*IssuanceSession, error)
	// StoreReference saves a reference to the given session for looking it up later,
	// like a database index. The reference must be unique across all sessions.
	// After the expiry the reference is automatically deleted.
	StoreReference(ctx context.Context, sessionID string, refType string, reference string, expiry time.Time) error
	// FindByReference finds a session by reference. It returns nil when the
	// reference or the session does not exist.
	FindByReference(ctx context.Context, refType string, reference string) (*IssuanceSession, error)
	// DeleteReference deletes the reference. Deleting a non-existing reference is not an error.
	DeleteReference(ctx context.Context, refType string, reference string) error
	// Close signals the store to release any owned resources.
	Close()
}

var _ Store = (*stoabsStore)(nil)

const sessionsShelf = "issuance_sessions"
const referencesShelf = "issuance_refs"
const pruneInterval = 10 * time.Minute

type stoabsStore struct {
	store    stoabs.KVStore
	routines *sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewStoabsStore creates a Store backed by a stoabs.KVStore. Expired sessions and
// references are pruned periodically.
func NewStoabsStore(store stoabs.KVStore) Store {
	result := &stoabsStore{
		store:    store,
		routines: &sync.WaitGroup{},
	}
	result.startPruning()
	return result
}

type referenceValue struct {
	SessionID string    `json:"session_id"`
	Expiry    time.Time `json:"exp"`
}

func (s *stoabsStore) Save(ctx context.Context, session IssuanceSession) error {
	return s.store.WriteShelf(ctx, sessionsShelf, func(writer stoabs.Writer) error {
		exists, err := s.sessionExists(writer, session.ID)
		if err != nil {
			return err
		}
		if exists {
			return errors.New("issuance session with this ID already exists")
		}
		data, _ := json.Marshal(session)
		return writer.Put(stoabs.BytesKey(session.ID), data)
	})
}

func (s *stoabsStore) Update(ctx context.Context, session IssuanceSession) error {
	return s.store.WriteShelf(ctx, sessionsShelf, func(writer stoabs.Writer) error {
		exists, err := s.sessionExists(writer, session.ID)
		if err != nil {
			return err
		}
		if !exists {
			return errors.New("issuance session with this ID does not exist")
		}
		data, _ := json.Marshal(session)
		return writer.Put(stoabs.BytesKey(session.ID), data)
	})
}

func (s *stoabsStore) GetByID(ctx context.Context, id string) (*IssuanceSession, error) {
	var result *IssuanceSession
	err := s.store.ReadShelf(ctx, sessionsShelf, func(reader stoabs.Reader) error {
		data, err := reader.Get(stoabs.BytesKey(id))
		if errors.Is(err, stoabs.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var session IssuanceSession
		if err := json.Unmarshal(data, &session); err != nil {
			return fmt.Errorf("invalid stored issuance session: %w", err)
		}
		result = &session
		return nil
	})
	return result, err
}

func (s *stoabsStore) StoreReference(ctx context.Context, sessionID string, refType string, reference string, expiry time.Time) error {
	if len(reference) == 0 {
		return errors.New("invalid reference")
	}
	if err := s.validateSessionExists(ctx, sessionID); err != nil {
		return err
	}
	return s.store.WriteShelf(ctx, referencesShelf, func(writer stoabs.Writer) error {
		_, err := writer.Get(s.refKey(refType, reference))
		if err == nil {
			return errors.New("reference already exists")
		}
		if !errors.Is(err, stoabs.ErrKeyNotFound) {
			return err
		}
		data, _ := json.Marshal(referenceValue{SessionID: sessionID, Expiry: expiry})
		return writer.Put(s.refKey(refType, reference), data)
	})
}

func (s *stoabsStore) FindByReference(ctx context.Context, refType string, reference string) (*IssuanceSession, error) {
	var sessionID string
	err := s.store.ReadShelf(ctx, referencesShelf, func(reader stoabs.Reader) error {
		valueBytes, err := reader.Get(s.refKey(refType, reference))
		if errors.Is(err, stoabs.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		var value referenceValue
		if err := json.Unmarshal(valueBytes, &value); err != nil {
			return fmt.Errorf("invalid stored reference: %w", err)
		}
		sessionID = value.SessionID
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(sessionID) == 0 {
		return nil, nil
	}
	return s.GetByID(ctx, sessionID)
}

func (s *stoabsStore) DeleteReference(ctx context.Context, refType string, reference string) error {
	return s.store.WriteShelf(ctx, referencesShelf, func(writer stoabs.Writer) error {
		return writer.Delete(s.refKey(refType, reference))
	})
}

func (s *stoabsStore) Close() {
	// Signal pruner to stop and wait for it to finish
	s.cancel()
	s.routines.Wait()
}

func (s *stoabsStore) startPruning() {
	s.ctx, s.cancel = context.WithCancel(context.Background())
	ticker := time.NewTicker(pruneInterval)
	s.routines.Add(1)
	go func() {
		defer s.routines.Done()
		for {
			select {
			case <-s.ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				sessionsPruned, refsPruned, err := s.prune(context.Background(), time.Now())
				if err != nil {
					log.Logger().WithError(err).Error("Failed to prune issuance sessions/references")
				}
				if sessionsPruned > 0 || refsPruned > 0 {
					log.Logger().Debugf("Pruned %d expired issuance sessions and %d expired refs", sessionsPruned, refsPruned)
				}
			}
		}
	}()
}

func (s *stoabsStore) prune(ctx context.Context, moment time.Time) (int, int, error) {
	var sessionCount int
	var refCount int
	// Find expired references and delete them
	err := s.store.WriteShelf(ctx, referencesShelf, func(writer stoabs.Writer) error {
		return writer.Iterate(func(key stoabs.Key, value []byte) error {
			var ref referenceValue
			err := json.Unmarshal(value, &ref)
			if err == nil && ref.Expiry.Before(moment) {
				refCount++
				return writer.Delete(key)
			}
			return nil
		}, stoabs.BytesKey{})
	})
	if err != nil {
		return sessionCount, refCount, err
	}
	// Find expired sessions and delete them
	err = s.store.WriteShelf(ctx, sessionsShelf, func(writer stoabs.Writer) error {
		return writer.Iterate(func(key stoabs.Key, value []byte) error {
			var session IssuanceSession
			err := json.Unmarshal(value, &session)
			if err == nil && session.ExpiresAt.Before(moment) {
				sessionCount++
				return writer.Delete(key)
			}
			return nil
		}, stoabs.BytesKey{})
	})
	return sessionCount, refCount, err
}

func (s *stoabsStore) validateSessionExists(ctx context.Context, sessionID string) error {
	// There's a small chance for a race condition here: the session could be deleted
	// between the existence check and subsequent writes, orphaning the reference.
	// Orphaned references are harmless, FindByReference treats them as not found.
	return s.store.ReadShelf(ctx, sessionsShelf, func(reader stoabs.Reader) error {
		exists, err := s.sessionExists(reader, sessionID)
		if err != nil {
			return err
		}
		if !exists {
			return errors.New("issuance session with this ID does not exist")
		}
		return nil
	})
}

func (s *stoabsStore) sessionExists(reader stoabs.Reader, sessionID string) (bool, error) {
	if len(sessionID) == 0 {
		return false, errors.New("invalid ID")
	}
	_, err := reader.Get(stoabs.BytesKey(sessionID))
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, stoabs.ErrKeyNotFound) {
		return false, err
	}
	return false, nil
}

func (s *stoabsStore) refKey(refType string, reference string) stoabs.BytesKey {
	return stoabs.BytesKey(refType + ":" + reference)
}
