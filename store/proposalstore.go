package store

import (
	"bytes"

	"github.com/BurntSushi/toml"
	"github.com/fluxmarket/core/agreement"
	"github.com/fluxmarket/core/common/log"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

var (
	proposalsBucket        = []byte("proposals")
	proposalsBySuccessorOf = []byte("proposals_by_prev")
)

type boltProposalStore struct {
	db  *bolt.DB
	log log.Logger
}

// newBoltProposalStore builds the ProposalStore half of Store over the
// same shared *bolt.DB handle as the AgreementStore.
func newBoltProposalStore(db *bolt.DB, l log.Logger) (ProposalStore, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{proposalsBucket, proposalsBySuccessorOf} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating proposal buckets")
	}

	if l == nil {
		l = log.DefaultLogger()
	}

	return &boltProposalStore{db: db, log: l}, nil
}

func (s *boltProposalStore) Save(p *agreement.Proposal) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(proposalsBucket)
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(proposalToTOML(p)); err != nil {
			return err
		}
		pid := agreement.ProposalID(p.ID)
		if err := bucket.Put(pid[:], buf.Bytes()); err != nil {
			return err
		}

		if p.IsInitial() {
			return nil
		}
		root := tx.Bucket(proposalsBySuccessorOf)
		prev := agreement.ProposalID(p.PrevID)
		sub, err := root.CreateBucketIfNotExists(prev[:])
		if err != nil {
			return err
		}
		return sub.Put(pid[:], []byte{1})
	})
	if err != nil {
		return errors.Wrap(err, "saving proposal")
	}
	return nil
}

func (s *boltProposalStore) Get(id agreement.ProposalID) (*agreement.Proposal, error) {
	var p *agreement.Proposal
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(proposalsBucket)
		idBytes := agreement.ProposalID(id)
		value := bucket.Get(idBytes[:])
		if value == nil {
			return errors.Errorf("proposal %s: not found", id)
		}
		var t proposalTOML
		if _, err := toml.NewDecoder(bytes.NewReader(value)).Decode(&t); err != nil {
			return err
		}
		decoded, err := proposalFromTOML(t)
		if err != nil {
			return err
		}
		p = decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *boltProposalStore) ExistsSuccessorOf(id agreement.ProposalID) (bool, error) {
	var exists bool
	err := s.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket(proposalsBySuccessorOf)
		idBytes := agreement.ProposalID(id)
		sub := root.Bucket(idBytes[:])
		exists = sub != nil && sub.Stats().KeyN > 0
		return nil
	})
	return exists, err
}

func (s *boltProposalStore) SetState(id agreement.ProposalID, state agreement.ProposalStatus) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(proposalsBucket)
		idBytes := agreement.ProposalID(id)
		value := bucket.Get(idBytes[:])
		if value == nil {
			return errors.Errorf("proposal %s: not found", id)
		}
		var t proposalTOML
		if _, err := toml.NewDecoder(bytes.NewReader(value)).Decode(&t); err != nil {
			return err
		}
		t.State = uint8(state)

		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(t); err != nil {
			return err
		}
		return bucket.Put(idBytes[:], buf.Bytes())
	})
}

// Close is a no-op: see boltAgreementStore.Close.
func (s *boltProposalStore) Close() error { return nil }
