package solana

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// Base account sizes shared by SPL Token and Token-2022. Token-2022 accounts
// carrying extensions are longer; the base layout is unchanged.
const (
	MintAccountSize  = 82
	TokenAccountSize = 165
)

// Token account states.
const (
	TokenAccountUninitialized uint8 = 0
	TokenAccountInitialized   uint8 = 1
	TokenAccountFrozen        uint8 = 2
)

// ErrAccountDataTooShort is returned when account data is smaller than the base layout.
var ErrAccountDataTooShort = errors.New("account data too short")

// MintAccount is the decoded base layout of a mint.
type MintAccount struct {
	MintAuthority   string // empty when none
	Supply          uint64
	Decimals        uint8
	IsInitialized   bool
	FreezeAuthority string // empty when none
}

// TokenAccount is the decoded base layout of a token account.
type TokenAccount struct {
	Mint   string
	Owner  string
	Amount uint64
	State  uint8
}

// DecodeMint decodes mint account data.
//
// Layout: mint_authority COption<Pubkey>(36) | supply u64 | decimals u8 |
// is_initialized bool | freeze_authority COption<Pubkey>(36).
func DecodeMint(data []byte) (*MintAccount, error) {
	if len(data) < MintAccountSize {
		return nil, fmt.Errorf("mint: %w (%d bytes)", ErrAccountDataTooShort, len(data))
	}
	return &MintAccount{
		MintAuthority:   decodeCOptionKey(data[0:36]),
		Supply:          binary.LittleEndian.Uint64(data[36:44]),
		Decimals:        data[44],
		IsInitialized:   data[45] != 0,
		FreezeAuthority: decodeCOptionKey(data[46:82]),
	}, nil
}

// DecodeTokenAccount decodes token account data.
//
// Layout: mint(32) | owner(32) | amount u64 | delegate COption<Pubkey>(36) | state u8 | ...
func DecodeTokenAccount(data []byte) (*TokenAccount, error) {
	if len(data) < TokenAccountSize {
		return nil, fmt.Errorf("token account: %w (%d bytes)", ErrAccountDataTooShort, len(data))
	}
	return &TokenAccount{
		Mint:   base58.Encode(data[0:32]),
		Owner:  base58.Encode(data[32:64]),
		Amount: binary.LittleEndian.Uint64(data[64:72]),
		State:  data[108],
	}, nil
}

// RawData decodes the base64 data of an AccountInfo.
func (a *AccountInfo) RawData() ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(a.Data)
	if err != nil {
		return nil, fmt.Errorf("decode account data: %w", err)
	}
	return raw, nil
}

func decodeCOptionKey(b []byte) string {
	if binary.LittleEndian.Uint32(b[0:4]) == 0 {
		return ""
	}
	return base58.Encode(b[4:36])
}

// EncodeMint is the inverse of DecodeMint, used by in-process ledgers.
func EncodeMint(m *MintAccount) ([]byte, error) {
	data := make([]byte, MintAccountSize)
	if err := encodeCOptionKey(data[0:36], m.MintAuthority); err != nil {
		return nil, err
	}
	binary.LittleEndian.PutUint64(data[36:44], m.Supply)
	data[44] = m.Decimals
	if m.IsInitialized {
		data[45] = 1
	}
	if err := encodeCOptionKey(data[46:82], m.FreezeAuthority); err != nil {
		return nil, err
	}
	return data, nil
}

// EncodeTokenAccount is the inverse of DecodeTokenAccount.
func EncodeTokenAccount(a *TokenAccount) ([]byte, error) {
	data := make([]byte, TokenAccountSize)
	mint, err := decodeKey(a.Mint)
	if err != nil {
		return nil, err
	}
	owner, err := decodeKey(a.Owner)
	if err != nil {
		return nil, err
	}
	copy(data[0:32], mint)
	copy(data[32:64], owner)
	binary.LittleEndian.PutUint64(data[64:72], a.Amount)
	data[108] = a.State
	return data, nil
}

func encodeCOptionKey(dst []byte, key string) error {
	if key == "" {
		return nil
	}
	raw, err := decodeKey(key)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(dst[0:4], 1)
	copy(dst[4:36], raw)
	return nil
}

func decodeKey(key string) ([]byte, error) {
	raw, err := base58.Decode(key)
	if err != nil {
		return nil, fmt.Errorf("decode key %q: %w", key, err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("decode key %q: expected 32 bytes, got %d", key, len(raw))
	}
	return raw, nil
}
