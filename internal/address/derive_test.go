package address

import (
	"bytes"
	"testing"

	"github.com/gagliardetto/solana-go"
)

func newKey(t *testing.T) solana.PublicKey {
	t.Helper()
	pk, err := solana.NewRandomPrivateKey()
	if err != nil {
		t.Fatalf("new key: %v", err)
	}
	return pk.PublicKey()
}

func TestDeriveHolderAccount_Deterministic(t *testing.T) {
	owner := newKey(t)
	mint := newKey(t)

	first := DeriveHolderAccount(owner, mint)
	second := DeriveHolderAccount(owner, mint)

	if !first.Equals(second) {
		t.Errorf("derivation not deterministic: %s != %s", first, second)
	}
}

func TestDeriveHolderAccount_Distinct(t *testing.T) {
	ownerA, ownerB := newKey(t), newKey(t)
	mintA, mintB := newKey(t), newKey(t)

	seen := make(map[solana.PublicKey]string)
	pairs := []struct {
		name  string
		owner solana.PublicKey
		mint  solana.PublicKey
	}{
		{"A/A", ownerA, mintA},
		{"A/B", ownerA, mintB},
		{"B/A", ownerB, mintA},
		{"B/B", ownerB, mintB},
	}

	for _, p := range pairs {
		addr := DeriveHolderAccount(p.owner, p.mint)
		if prev, ok := seen[addr]; ok {
			t.Fatalf("pair %s collides with %s at %s", p.name, prev, addr)
		}
		seen[addr] = p.name
	}
}

func TestDeriveHolderAccount_SwappedInputsDiffer(t *testing.T) {
	a, b := newKey(t), newKey(t)
	if DeriveHolderAccount(a, b).Equals(DeriveHolderAccount(b, a)) {
		t.Error("swapping owner and mint must change the address")
	}
}

func TestDeriveHolderAccount_OffCurve(t *testing.T) {
	for i := 0; i < 16; i++ {
		addr := DeriveHolderAccount(newKey(t), newKey(t))
		if isOnCurve(addr[:]) {
			t.Fatalf("derived address %s lies on the curve", addr)
		}
	}
}

func TestFindProgramAddress_MatchesSolanaGo(t *testing.T) {
	for i := 0; i < 8; i++ {
		owner, mint := newKey(t), newKey(t)
		seeds := [][]byte{owner[:], Token2022ProgramID[:], mint[:]}

		got, gotBump, err := FindProgramAddress(seeds, AssociatedTokenProgramID)
		if err != nil {
			t.Fatalf("FindProgramAddress: %v", err)
		}
		want, wantBump, err := solana.FindProgramAddress(seeds, AssociatedTokenProgramID)
		if err != nil {
			t.Fatalf("solana.FindProgramAddress: %v", err)
		}

		if !got.Equals(want) || gotBump != wantBump {
			t.Errorf("got %s/%d, want %s/%d", got, gotBump, want, wantBump)
		}
	}
}

func TestFindProgramAddress_DoesNotMutateSeeds(t *testing.T) {
	seeds := make([][]byte, 1, 4)
	seeds[0] = []byte("metadata")
	spare := seeds[:2]
	spare[1] = []byte("untouched")

	if _, _, err := FindProgramAddress(seeds, TokenBasicsProgramID); err != nil {
		t.Fatalf("FindProgramAddress: %v", err)
	}
	if !bytes.Equal(spare[1], []byte("untouched")) {
		t.Errorf("caller's backing array was modified: %q", spare[1])
	}
}

func TestFindProgramAddress_SeedLimits(t *testing.T) {
	tests := []struct {
		name    string
		seeds   [][]byte
		wantErr error
	}{
		{"seed too long", [][]byte{make([]byte, MaxSeedLen+1)}, ErrSeedTooLong},
		{"too many seeds", make([][]byte, MaxSeeds), ErrMaxSeedsExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := FindProgramAddress(tt.seeds, TokenBasicsProgramID)
			if err != tt.wantErr {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}
