package address

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/gagliardetto/solana-go"
)

const (
	// MaxSeeds is the maximum number of seeds in a program address derivation.
	MaxSeeds = 16
	// MaxSeedLen is the maximum length of a single seed.
	MaxSeedLen = 32

	pdaMarker = "ProgramDerivedAddress"
)

var (
	// ErrMaxSeedsExceeded is returned when too many seeds are supplied.
	ErrMaxSeedsExceeded = errors.New("max seeds exceeded")
	// ErrSeedTooLong is returned when a seed is longer than MaxSeedLen.
	ErrSeedTooLong = errors.New("seed too long")
	// ErrNoViableBump is returned when every bump yields an on-curve point.
	ErrNoViableBump = errors.New("unable to find a viable program address bump seed")
)

// DeriveHolderAccount returns the associated token account address for
// (owner, mint) under the Token-2022 program.
// Seeds: [owner, token_2022_program_id, mint], program: associated token program.
func DeriveHolderAccount(owner, mint solana.PublicKey) solana.PublicKey {
	addr, _, err := FindProgramAddress(
		[][]byte{owner[:], Token2022ProgramID[:], mint[:]},
		AssociatedTokenProgramID,
	)
	if err != nil {
		// Three 32-byte seeds never violate the seed limits, and a missing
		// bump has probability 2^-256.
		panic(fmt.Sprintf("derive holder account for owner %s mint %s: %v", owner, mint, err))
	}
	return addr
}

// FindProgramAddress searches bumps from 255 down to 0 and returns the first
// derived address that lies off the ed25519 curve, together with its bump.
func FindProgramAddress(seeds [][]byte, programID solana.PublicKey) (solana.PublicKey, uint8, error) {
	if len(seeds) >= MaxSeeds {
		return solana.PublicKey{}, 0, ErrMaxSeedsExceeded
	}
	for _, seed := range seeds {
		if len(seed) > MaxSeedLen {
			return solana.PublicKey{}, 0, ErrSeedTooLong
		}
	}

	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		addr, err := CreateProgramAddress(withBump, programID)
		if err == nil {
			return addr, uint8(bump), nil
		}
	}
	return solana.PublicKey{}, 0, ErrNoViableBump
}

// CreateProgramAddress hashes sha256(seeds || programID || "ProgramDerivedAddress")
// and fails if the result is a valid curve point.
func CreateProgramAddress(seeds [][]byte, programID solana.PublicKey) (solana.PublicKey, error) {
	if len(seeds) > MaxSeeds {
		return solana.PublicKey{}, ErrMaxSeedsExceeded
	}

	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > MaxSeedLen {
			return solana.PublicKey{}, ErrSeedTooLong
		}
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write([]byte(pdaMarker))

	hash := h.Sum(nil)
	if isOnCurve(hash) {
		return solana.PublicKey{}, errors.New("invalid seeds: address must fall off the curve")
	}
	return solana.PublicKeyFromBytes(hash), nil
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
