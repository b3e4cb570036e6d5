package store

import (
	"path"

	"github.com/fluxmarket/core/common/log"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

// BoltFileName is the name of the file the bolt-backed stores write to.
const BoltFileName = "fluxmarket.db"

// BoltStoreOpenPerm is the permission used to open/create the db file.
const BoltStoreOpenPerm = 0660

// OpenDB opens (creating if absent) the single bbolt file backing both the
// Agreement and Proposal stores; both stores share one *bolt.DB so a
// single Close call is enough to release the file.
func OpenDB(baseFolder string, opts *bolt.Options) (*bolt.DB, error) {
	dbPath := path.Join(baseFolder, BoltFileName)
	db, err := bolt.Open(dbPath, BoltStoreOpenPerm, opts)
	if err != nil {
		return nil, errors.Wrap(err, "opening fluxmarket store")
	}
	return db, nil
}

// Store bundles the Agreement and Proposal stores over one bbolt handle.
type Store struct {
	Agreements AgreementStore
	Proposals  ProposalStore

	db  *bolt.DB
	log log.Logger
}

// Open opens both stores from a fresh or existing database under
// baseFolder.
func Open(baseFolder string, l log.Logger, opts *bolt.Options) (*Store, error) {
	if l == nil {
		l = log.DefaultLogger()
	}

	db, err := OpenDB(baseFolder, opts)
	if err != nil {
		return nil, err
	}

	agreements, err := newBoltAgreementStore(db, l)
	if err != nil {
		return nil, err
	}

	proposals, err := newBoltProposalStore(db, l)
	if err != nil {
		return nil, err
	}

	return &Store{Agreements: agreements, Proposals: proposals, db: db, log: l}, nil
}

// Close releases the underlying database file. AgreementStore.Close and
// ProposalStore.Close are no-ops when opened via Open; call this instead.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		s.log.Errorw("", "boltdb", "close", "err", err)
		return err
	}
	return nil
}
