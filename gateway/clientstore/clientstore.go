// SPDX-FileCopyrightText: Copyright (C) 2026 The Mixlink Authors
// SPDX-License-Identifier: AGPL-3.0-only

// Package clientstore persists the shared keys of registered clients in a
// boltdb database.
package clientstore

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	bolt "go.etcd.io/bbolt"

	"github.com/katzenpost/mixlink/core/addressing"
	"github.com/katzenpost/mixlink/gateway/registration"
)

const (
	metadataBucket = "metadata"
	clientsBucket  = "clients"
	versionKey     = "version"
	storeVersion   = 0
)

var (
	// ErrNoSuchClient is the error returned when a client was never
	// registered.
	ErrNoSuchClient = errors.New("clientstore: no such client")

	// ErrClientExists is the error returned when registering an address
	// that already has keys.
	ErrClientExists = errors.New("clientstore: client already registered")
)

type record struct {
	Keys         []byte `cbor:"1,keyasint"`
	RegisteredAt int64  `cbor:"2,keyasint"`
}

// Store is a registered client database.
type Store struct {
	sync.RWMutex

	db    *bolt.DB
	cache map[addressing.DestinationAddress]bool
}

// Exists returns true iff address is registered.
func (s *Store) Exists(address addressing.DestinationAddress) bool {
	s.RLock()
	defer s.RUnlock()
	return s.cache[address]
}

// Put stores the keys of a newly registered address.  The keys of an
// existing registration are never replaced.
func (s *Store) Put(address addressing.DestinationAddress, keys *registration.SharedKeys) error {
	b, err := cbor.Marshal(&record{
		Keys:         keys.Bytes(),
		RegisteredAt: time.Now().Unix(),
	})
	if err != nil {
		return err
	}

	if err := s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(clientsBucket))
		if bkt.Get(address.Bytes()) != nil {
			return ErrClientExists
		}
		return bkt.Put(address.Bytes(), b)
	}); err != nil {
		return err
	}

	s.Lock()
	defer s.Unlock()
	s.cache[address] = true
	return nil
}

// Keys returns the keys of address.
func (s *Store) Keys(address addressing.DestinationAddress) (*registration.SharedKeys, error) {
	var keys *registration.SharedKeys
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(clientsBucket)).Get(address.Bytes())
		if raw == nil {
			return ErrNoSuchClient
		}
		var r record
		if err := cbor.Unmarshal(raw, &r); err != nil {
			return fmt.Errorf("clientstore: corrupted record for %v: %w", address, err)
		}
		var err error
		keys, err = registration.SharedKeysFromBytes(r.Keys)
		return err
	})
	return keys, err
}

// Len returns the number of registered clients.
func (s *Store) Len() int {
	s.RLock()
	defer s.RUnlock()
	return len(s.cache)
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	if err := s.db.Sync(); err != nil {
		s.db.Close()
		return err
	}
	return s.db.Close()
}

// New creates (or loads) a client store with the given file name f.
func New(f string) (*Store, error) {
	db, err := bolt.Open(f, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	s := &Store{
		db:    db,
		cache: make(map[addressing.DestinationAddress]bool),
	}

	if err = s.db.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return err
		}
		cBkt, err := tx.CreateBucketIfNotExists([]byte(clientsBucket))
		if err != nil {
			return err
		}

		if b := bkt.Get([]byte(versionKey)); b != nil {
			if len(b) != 1 || b[0] != storeVersion {
				return fmt.Errorf("clientstore: incompatible version: %x", b)
			}
			return cBkt.ForEach(func(k, _ []byte) error {
				address, err := addressing.DestinationAddressFromBytes(k)
				if err != nil {
					return err
				}
				s.cache[address] = true
				return nil
			})
		}

		return bkt.Put([]byte(versionKey), []byte{storeVersion})
	}); err != nil {
		s.db.Close()
		return nil, err
	}

	return s, nil
}
