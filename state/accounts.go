package state

import (
	"errors"
	"fmt"
	"math/big"

	"lienchain/core/types"
	"lienchain/crypto"
)

var accountPrefix = []byte("accounts/")

var errInsufficientFunds = errors.New("state: insufficient account balance")

type storedAccount struct {
	Nonce      uint64
	Balance    *big.Int
	NoteShares *big.Int
}

// AccountStore persists participant balances. The settlement engine debits
// and credits it when escrowing and paying out keeper incentive fees.
type AccountStore struct {
	kv *KVStore
}

// NewAccountStore binds the account store to a KV backend.
func NewAccountStore(kv *KVStore) *AccountStore {
	return &AccountStore{kv: kv}
}

func accountKey(addr crypto.Address) []byte {
	buf := make([]byte, len(accountPrefix)+len(addr.Bytes()))
	copy(buf, accountPrefix)
	copy(buf[len(accountPrefix):], addr.Bytes())
	return buf
}

// GetAccount loads the account for addr, returning a zeroed account when none
// has been persisted yet.
func (s *AccountStore) GetAccount(addr crypto.Address) (*types.Account, error) {
	if s == nil || s.kv == nil {
		return nil, fmt.Errorf("state: account store not initialised")
	}
	var stored storedAccount
	ok, err := s.kv.KVGet(accountKey(addr), &stored)
	if err != nil {
		return nil, err
	}
	account := &types.Account{}
	if ok {
		account.Nonce = stored.Nonce
		account.Balance = stored.Balance
		account.NoteShares = stored.NoteShares
	}
	account.EnsureDefaults()
	return account, nil
}

// PutAccount persists the account for addr.
func (s *AccountStore) PutAccount(addr crypto.Address, account *types.Account) error {
	if s == nil || s.kv == nil {
		return fmt.Errorf("state: account store not initialised")
	}
	if account == nil {
		return fmt.Errorf("state: account must not be nil")
	}
	account.EnsureDefaults()
	stored := storedAccount{
		Nonce:      account.Nonce,
		Balance:    account.Balance,
		NoteShares: account.NoteShares,
	}
	return s.kv.KVPut(accountKey(addr), stored)
}

// Debit removes amount from the account balance, failing when the balance
// cannot cover it.
func (s *AccountStore) Debit(addr crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("state: debit amount must be positive")
	}
	account, err := s.GetAccount(addr)
	if err != nil {
		return err
	}
	if account.Balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s", errInsufficientFunds, addr.String())
	}
	account.Balance = new(big.Int).Sub(account.Balance, amount)
	return s.PutAccount(addr, account)
}

// Credit adds amount to the account balance.
func (s *AccountStore) Credit(addr crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("state: credit amount must be positive")
	}
	account, err := s.GetAccount(addr)
	if err != nil {
		return err
	}
	account.Balance = new(big.Int).Add(account.Balance, amount)
	return s.PutAccount(addr, account)
}
