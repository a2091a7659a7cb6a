package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

var (
	keyToken = []byte("token")
	keyUser  = []byte("user")
)

type persistedUser struct {
	Principal Principal `json:"principal"`
	IssuedAt  string    `json:"issuedAt"`
	ExpiresAt string    `json:"expiresAt"`
}

// BadgerPersister stores the session in a local Badger database.
type BadgerPersister struct {
	db *badger.DB
}

// OpenBadger opens (or creates) the session database at dir. An empty dir
// opens an in-memory database, which is what the tests use.
func OpenBadger(dir string) (*BadgerPersister, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	return &BadgerPersister{db: db}, nil
}

// Close releases the underlying database.
func (p *BadgerPersister) Close() error {
	return p.db.Close()
}

// Save writes the token and the user record in a single transaction.
func (p *BadgerPersister) Save(c Credential) error {
	user, err := json.Marshal(persistedUser{
		Principal: c.Principal,
		IssuedAt:  c.IssuedAt.UTC().Format(time.RFC3339),
		ExpiresAt: c.ExpiresAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("encode session user: %w", err)
	}
	return p.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(keyToken, []byte(c.Token)); err != nil {
			return err
		}
		return txn.Set(keyUser, user)
	})
}

// Load reads the persisted session. It returns (nil, nil) when no session is
// stored or when the stored halves do not line up.
func (p *BadgerPersister) Load() (*Credential, error) {
	var (
		token []byte
		user  []byte
	)
	err := p.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keyToken)
		if err != nil {
			return err
		}
		if token, err = item.ValueCopy(nil); err != nil {
			return err
		}
		item, err = txn.Get(keyUser)
		if err != nil {
			return err
		}
		user, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	var rec persistedUser
	if err := json.Unmarshal(user, &rec); err != nil {
		// A corrupt record is treated as signed-out rather than fatal.
		return nil, nil
	}
	c := Credential{Token: string(token), Principal: rec.Principal}
	if t, err := time.Parse(time.RFC3339, rec.IssuedAt); err == nil {
		c.IssuedAt = t
	}
	if t, err := time.Parse(time.RFC3339, rec.ExpiresAt); err == nil {
		c.ExpiresAt = t
	}
	if c.Token == "" {
		return nil, nil
	}
	return &c, nil
}

// Clear removes both halves of the session.
func (p *BadgerPersister) Clear() error {
	return p.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(keyToken); err != nil {
			return err
		}
		return txn.Delete(keyUser)
	})
}
