package store

import (
	"bytes"
	"encoding/binary"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fluxmarket/core/agreement"
	"github.com/fluxmarket/core/common/log"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

var (
	agreementsBucket     = []byte("agreements")
	agreementsByProposal = []byte("agreements_by_proposal")
	agreementsByExpiry   = []byte("agreements_by_expiry")
)

// ErrConcurrentModification is returned by UpdateState when the stored row
// is no longer in one of the expected origin states.
var ErrConcurrentModification = errors.New("agreement state changed concurrently")

// boltAgreementStore implements AgreementStore over a bbolt database,
// mirroring the bucket-per-concern layout and TOML value codec of the
// teacher's DKG store, extended with the secondary indexes this store's
// three lookup paths (by id, by proposal, by expiry) require.
type boltAgreementStore struct {
	sync.RWMutex
	db    *bolt.DB
	log   log.Logger
	cache *lru.Cache
}

const defaultCacheSize = 1024

// newBoltAgreementStore builds the AgreementStore half of Store over a
// shared *bolt.DB handle.
func newBoltAgreementStore(db *bolt.DB, l log.Logger) (AgreementStore, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{agreementsBucket, agreementsByProposal, agreementsByExpiry} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating agreement buckets")
	}

	cache, err := lru.New(defaultCacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "allocating read cache")
	}

	if l == nil {
		l = log.DefaultLogger()
	}

	return &boltAgreementStore{db: db, log: l, cache: cache}, nil
}

func agreementKey(id agreement.AgreementID) []byte {
	key := make([]byte, 17)
	copy(key, id.Logical[:])
	key[16] = byte(id.Owner)
	return key
}

func expiryKey(validTo time.Time, id agreement.AgreementID) []byte {
	key := make([]byte, 8+17)
	binary.BigEndian.PutUint64(key[:8], uint64(validTo.UnixNano()))
	copy(key[8:], agreementKey(id))
	return key
}

func (s *boltAgreementStore) Save(a *agreement.Agreement) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := s.putAgreement(tx, a); err != nil {
			return err
		}
		return s.indexProposal(tx, a)
	})
	if err != nil {
		return errors.Wrap(err, "saving agreement")
	}
	s.cache.Remove(a.ID)
	return nil
}

func (s *boltAgreementStore) putAgreement(tx *bolt.Tx, a *agreement.Agreement) error {
	bucket := tx.Bucket(agreementsBucket)
	if bucket == nil {
		return errors.New("agreements bucket was nil - this should never happen")
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(agreementToTOML(a)); err != nil {
		return err
	}
	if err := bucket.Put(agreementKey(a.ID), buf.Bytes()); err != nil {
		return err
	}

	expiryBucket := tx.Bucket(agreementsByExpiry)
	return expiryBucket.Put(expiryKey(a.ValidTo, a.ID), agreementKey(a.ID))
}

func (s *boltAgreementStore) indexProposal(tx *bolt.Tx, a *agreement.Agreement) error {
	root := tx.Bucket(agreementsByProposal)
	sub, err := root.CreateBucketIfNotExists(a.ProposalID[:])
	if err != nil {
		return err
	}
	return sub.Put(agreementKey(a.ID), []byte{1})
}

func (s *boltAgreementStore) Get(id agreement.AgreementID) (*agreement.Agreement, error) {
	if cached, ok := s.cache.Get(id); ok {
		return cached.(*agreement.Agreement), nil
	}

	var a *agreement.Agreement
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(agreementsBucket)
		value := bucket.Get(agreementKey(id))
		if value == nil {
			return &agreement.NotFoundError{ID: id}
		}
		var t agreementTOML
		if _, err := toml.NewDecoder(bytes.NewReader(value)).Decode(&t); err != nil {
			return err
		}
		decoded, err := agreementFromTOML(t)
		if err != nil {
			return err
		}
		a = decoded
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.Add(id, a)
	return a, nil
}

func (s *boltAgreementStore) FindByProposal(id agreement.ProposalID) ([]*agreement.Agreement, error) {
	var out []*agreement.Agreement
	err := s.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket(agreementsByProposal)
		sub := root.Bucket(id[:])
		if sub == nil {
			return nil
		}
		agreements := tx.Bucket(agreementsBucket)
		return sub.ForEach(func(k, _ []byte) error {
			value := agreements.Get(k)
			if value == nil {
				return nil
			}
			var t agreementTOML
			if _, err := toml.NewDecoder(bytes.NewReader(value)).Decode(&t); err != nil {
				return err
			}
			decoded, err := agreementFromTOML(t)
			if err != nil {
				return err
			}
			out = append(out, decoded)
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "finding agreements by proposal")
	}
	return out, nil
}

func (s *boltAgreementStore) ListExpiringBefore(ts time.Time) ([]*agreement.Agreement, error) {
	var out []*agreement.Agreement
	err := s.db.View(func(tx *bolt.Tx) error {
		expiry := tx.Bucket(agreementsByExpiry)
		agreements := tx.Bucket(agreementsBucket)
		cursor := expiry.Cursor()
		cutoff := make([]byte, 8)
		binary.BigEndian.PutUint64(cutoff, uint64(ts.UnixNano()))

		for k, v := cursor.First(); k != nil && bytes.Compare(k[:8], cutoff) < 0; k, v = cursor.Next() {
			value := agreements.Get(v)
			if value == nil {
				continue
			}
			var t agreementTOML
			if _, err := toml.NewDecoder(bytes.NewReader(value)).Decode(&t); err != nil {
				return err
			}
			decoded, err := agreementFromTOML(t)
			if err != nil {
				return err
			}
			out = append(out, decoded)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "listing expiring agreements")
	}
	return out, nil
}

func (s *boltAgreementStore) UpdateState(
	id agreement.AgreementID,
	fromSet []agreement.State,
	to agreement.State,
	mutate func(a *agreement.Agreement),
) (*agreement.Agreement, error) {
	s.Lock()
	defer s.Unlock()

	var updated *agreement.Agreement
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(agreementsBucket)
		value := bucket.Get(agreementKey(id))
		if value == nil {
			return &agreement.NotFoundError{ID: id}
		}
		var t agreementTOML
		if _, err := toml.NewDecoder(bytes.NewReader(value)).Decode(&t); err != nil {
			return err
		}
		current, err := agreementFromTOML(t)
		if err != nil {
			return err
		}

		if !stateIn(current.State, fromSet) {
			return ErrConcurrentModification
		}

		if mutate != nil {
			mutate(current)
		}
		current.State = to
		current.Version++

		if err := s.putAgreement(tx, current); err != nil {
			return err
		}
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.Add(id, updated)
	return updated, nil
}

func stateIn(s agreement.State, set []agreement.State) bool {
	for _, candidate := range set {
		if s == candidate {
			return true
		}
	}
	return false
}

// Close is a no-op: the *bolt.DB is shared with the ProposalStore and
// owned by Store, which closes it once.
func (s *boltAgreementStore) Close() error { return nil }
