// SPDX-FileCopyrightText: Copyright (C) 2026 The Mixlink Authors
// SPDX-License-Identifier: AGPL-3.0-only

package clientstore

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/katzenpost/hpqc/rand"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/katzenpost/mixlink/core/addressing"
	"github.com/katzenpost/mixlink/gateway/registration"
)

func newTestKeys(t *testing.T) *registration.SharedKeys {
	b := make([]byte, registration.SharedKeysLength)
	_, err := io.ReadFull(rand.Reader, b)
	require.NoError(t, err)
	keys, err := registration.SharedKeysFromBytes(b)
	require.NoError(t, err)
	return keys
}

func TestStore(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	f := filepath.Join(t.TempDir(), "clients.db")
	s, err := New(f)
	require.NoError(err)

	address, err := addressing.NewDestinationAddress(rand.Reader)
	require.NoError(err)
	require.False(s.Exists(address))
	_, err = s.Keys(address)
	require.ErrorIs(err, ErrNoSuchClient)

	keys := newTestKeys(t)
	require.NoError(s.Put(address, keys))
	require.True(s.Exists(address))
	require.Equal(1, s.Len())

	got, err := s.Keys(address)
	require.NoError(err)
	require.True(keys.Equal(got))

	require.ErrorIs(s.Put(address, newTestKeys(t)), ErrClientExists)
	require.Equal(1, s.Len())
	require.NoError(s.Close())

	s, err = New(f)
	require.NoError(err)
	require.True(s.Exists(address))
	got, err = s.Keys(address)
	require.NoError(err)
	require.True(keys.Equal(got))
	require.ErrorIs(s.Put(address, newTestKeys(t)), ErrClientExists)
	require.NoError(s.Close())
}

func TestStoreIncompatibleVersion(t *testing.T) {
	t.Parallel()
	require := require.New(t)

	f := filepath.Join(t.TempDir(), "clients.db")
	s, err := New(f)
	require.NoError(err)
	require.NoError(s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(metadataBucket)).Put([]byte(versionKey), []byte{7})
	}))
	require.NoError(s.Close())

	_, err = New(f)
	require.ErrorContains(err, "incompatible version")
}
