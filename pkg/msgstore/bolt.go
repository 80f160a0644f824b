// Copyright (c) 2017 OysterPack, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package msgstore

import (
	"encoding/binary"
	"os"
	"strings"
	"sync"
	"time"

	bolt "github.com/coreos/bbolt"
	"github.com/json-iterator/go"
)

const (
	READ_WRITE_MODE os.FileMode = 0600

	ROOT_BUCKET         = "anycast"
	META_BUCKET         = "meta"
	DESTINATIONS_BUCKET = "destinations"

	EPOCH   = "epoch"
	CREATED = "created"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// OpenBoltStore opens the bolt database file, creating it if it does not exist.
//
// Messages are stored per destination bucket, keyed by their big endian sequence number, which means cursor order
// is message order. Reservations are not persisted: after a restart, requesters reissue their requests against the
// new epoch, which is persisted in the meta bucket.
func OpenBoltStore(filePath string) (*BoltStore, error) {
	filePath = strings.TrimSpace(filePath)
	if filePath == "" {
		return nil, ErrFilePathIsBlank
	}
	if stat, err := os.Stat(filePath); err == nil && stat.IsDir() {
		return nil, errDatabaseFilePathIsDir(filePath)
	}

	db, err := bolt.Open(filePath, READ_WRITE_MODE, &bolt.Options{Timeout: time.Second * 30})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		root, err := tx.CreateBucketIfNotExists([]byte(ROOT_BUCKET))
		if err != nil {
			return err
		}
		meta, err := root.CreateBucketIfNotExists([]byte(META_BUCKET))
		if err != nil {
			return err
		}
		if _, err := root.CreateBucketIfNotExists([]byte(DESTINATIONS_BUCKET)); err != nil {
			return err
		}
		if meta.Get([]byte(CREATED)) == nil {
			now, _ := time.Now().MarshalBinary() // ignoring err, because this will never err
			return meta.Put([]byte(CREATED), now)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, reserved: map[string]map[uint64]string{}}, nil
}

type BoltStore struct {
	db *bolt.DB

	mutex    sync.Mutex
	reserved map[string]map[uint64]string
}

// Created returns when the database was created
func (a *BoltStore) Created() (time.Time, error) {
	t := time.Time{}
	err := a.db.View(func(tx *bolt.Tx) error {
		return t.UnmarshalBinary(lookupBucket(tx, META_BUCKET).Get([]byte(CREATED)))
	})
	return t, err
}

func (a *BoltStore) Append(msg *Message) (uint64, error) {
	if err := checkMessage(msg); err != nil {
		return 0, err
	}
	var seq uint64
	err := a.db.Update(func(tx *bolt.Tx) error {
		meta := lookupBucket(tx, META_BUCKET)
		dest, err := lookupBucket(tx, DESTINATIONS_BUCKET).CreateBucketIfNotExists([]byte(msg.Destination))
		if err != nil {
			return err
		}
		if seq, err = meta.NextSequence(); err != nil {
			return err
		}
		stored := *msg
		stored.Seq = seq
		data, err := json.Marshal(&stored)
		if err != nil {
			return err
		}
		return dest.Put(seqKey(seq), data)
	})
	if err != nil {
		return 0, a.mapErr(err)
	}
	msg.Seq = seq
	return seq, nil
}

func (a *BoltStore) Get(destination string, seq uint64) (*Message, error) {
	var msg *Message
	err := a.db.View(func(tx *bolt.Tx) error {
		dest := lookupDestination(tx, destination)
		if dest == nil {
			return ErrMessageNotFound
		}
		data := dest.Get(seqKey(seq))
		if data == nil {
			return ErrMessageNotFound
		}
		msg = &Message{}
		return json.Unmarshal(data, msg)
	})
	if err != nil {
		return nil, a.mapErr(err)
	}
	return msg, nil
}

func (a *BoltStore) Reserve(destination string, match Matcher, owner string) (*Message, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	reserved := a.reserved[destination]
	var msg *Message
	err := a.db.View(func(tx *bolt.Tx) error {
		dest := lookupDestination(tx, destination)
		if dest == nil {
			return nil
		}
		cursor := dest.Cursor()
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			if _, ok := reserved[binary.BigEndian.Uint64(k)]; ok {
				continue
			}
			candidate := &Message{}
			if err := json.Unmarshal(v, candidate); err != nil {
				return err
			}
			if match(candidate) {
				msg = candidate
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, a.mapErr(err)
	}
	if msg != nil {
		if reserved == nil {
			reserved = map[uint64]string{}
			a.reserved[destination] = reserved
		}
		reserved[msg.Seq] = owner
	}
	return msg, nil
}

func (a *BoltStore) Release(destination string, seq uint64) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if _, ok := a.reserved[destination][seq]; !ok {
		return ErrNotReserved
	}
	delete(a.reserved[destination], seq)
	return nil
}

func (a *BoltStore) Complete(destination string, seq uint64) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if _, ok := a.reserved[destination][seq]; !ok {
		return ErrNotReserved
	}
	err := a.db.Update(func(tx *bolt.Tx) error {
		dest := lookupDestination(tx, destination)
		if dest == nil {
			return errBucketDoesNotExist(destination)
		}
		return dest.Delete(seqKey(seq))
	})
	if err != nil {
		return a.mapErr(err)
	}
	delete(a.reserved[destination], seq)
	return nil
}

func (a *BoltStore) Next(destination string, after uint64, match Matcher) (*Message, error) {
	var msg *Message
	err := a.db.View(func(tx *bolt.Tx) error {
		dest := lookupDestination(tx, destination)
		if dest == nil {
			return nil
		}
		cursor := dest.Cursor()
		for k, v := cursor.Seek(seqKey(after + 1)); k != nil; k, v = cursor.Next() {
			candidate := &Message{}
			if err := json.Unmarshal(v, candidate); err != nil {
				return err
			}
			if match(candidate) {
				msg = candidate
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, a.mapErr(err)
	}
	return msg, nil
}

func (a *BoltStore) Count(destination string) (int, error) {
	count := 0
	err := a.db.View(func(tx *bolt.Tx) error {
		if dest := lookupDestination(tx, destination); dest != nil {
			count = dest.Stats().KeyN
		}
		return nil
	})
	return count, a.mapErr(err)
}

func (a *BoltStore) NextEpoch() (uint64, error) {
	var epoch uint64
	err := a.db.Update(func(tx *bolt.Tx) error {
		meta := lookupBucket(tx, META_BUCKET)
		if data := meta.Get([]byte(EPOCH)); data != nil {
			epoch = binary.BigEndian.Uint64(data)
		}
		epoch++
		return meta.Put([]byte(EPOCH), seqKey(epoch))
	})
	if err != nil {
		return 0, a.mapErr(err)
	}
	return epoch, nil
}

func (a *BoltStore) Close() error {
	return a.db.Close()
}

func (a *BoltStore) mapErr(err error) error {
	if err == bolt.ErrDatabaseNotOpen {
		return ErrStoreClosed
	}
	return err
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

func lookupBucket(tx *bolt.Tx, name string) *bolt.Bucket {
	return tx.Bucket([]byte(ROOT_BUCKET)).Bucket([]byte(name))
}

func lookupDestination(tx *bolt.Tx, destination string) *bolt.Bucket {
	return lookupBucket(tx, DESTINATIONS_BUCKET).Bucket([]byte(destination))
}
