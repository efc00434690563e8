package instruction

import (
	"crypto/sha256"
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xabstracted/token-basics/internal/address"
)

type wantMeta struct {
	key      solana.PublicKey
	writable bool
	signer   bool
}

func key(t *testing.T) solana.PublicKey {
	t.Helper()
	pk, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return pk.PublicKey()
}

func assertAccounts(t *testing.T, ix *solana.GenericInstruction, want []wantMeta) {
	t.Helper()
	got := ix.Accounts()
	require.Len(t, got, len(want))
	for i, w := range want {
		assert.True(t, got[i].PublicKey.Equals(w.key), "account %d: got %s, want %s", i, got[i].PublicKey, w.key)
		assert.Equal(t, w.writable, got[i].IsWritable, "account %d writable", i)
		assert.Equal(t, w.signer, got[i].IsSigner, "account %d signer", i)
	}
}

func TestDiscriminator(t *testing.T) {
	hash := sha256.Sum256([]byte("global:mint_token"))
	assert.Equal(t, hash[:8], MintTokenDiscriminator[:])

	all := map[Discriminator]string{}
	for name, d := range map[string]Discriminator{
		"create":   CreateTokenDiscriminator,
		"mint":     MintTokenDiscriminator,
		"transfer": TransferTokenDiscriminator,
		"burn":     BurnTokenDiscriminator,
	} {
		if other, ok := all[d]; ok {
			t.Fatalf("discriminator of %s collides with %s", name, other)
		}
		all[d] = name
	}
}

func TestCreateToken(t *testing.T) {
	authority, mint := key(t), key(t)
	ix := CreateToken(authority, mint, TokenMetadata{Name: "Test Token", Symbol: "TEST", URI: "https://test.com/metadata"})

	assert.True(t, ix.ProgramID().Equals(address.TokenBasicsProgramID))
	assertAccounts(t, ix, []wantMeta{
		{authority, true, true},
		{mint, true, true},
		{address.Token2022ProgramID, false, false},
		{address.SystemProgramID, false, false},
		{address.RentSysvarID, false, false},
	})

	data, err := ix.Data()
	require.NoError(t, err)
	assert.Equal(t, CreateTokenDiscriminator[:], data[:8])

	// name: u32 len + bytes
	assert.Equal(t, uint32(len("Test Token")), binary.LittleEndian.Uint32(data[8:12]))
	assert.Equal(t, "Test Token", string(data[12:22]))
	assert.Len(t, data, 8+4+10+4+4+4+len("https://test.com/metadata"))
}

func TestMintToken(t *testing.T) {
	authority, recipient, mint := key(t), key(t), key(t)
	ix := MintToken(authority, recipient, mint, 1_000_000_000)

	assertAccounts(t, ix, []wantMeta{
		{authority, true, true},
		{recipient, false, false},
		{mint, true, false},
		{address.DeriveHolderAccount(recipient, mint), true, false},
		{address.Token2022ProgramID, false, false},
		{address.AssociatedTokenProgramID, false, false},
		{address.SystemProgramID, false, false},
		{address.RentSysvarID, false, false},
	})

	data, err := ix.Data()
	require.NoError(t, err)
	require.Len(t, data, 16)
	assert.Equal(t, MintTokenDiscriminator[:], data[:8])
	assert.Equal(t, uint64(1_000_000_000), binary.LittleEndian.Uint64(data[8:]))
}

func TestTransferToken(t *testing.T) {
	sender, recipient, mint := key(t), key(t), key(t)
	ix := TransferToken(sender, recipient, mint, 200_000_000)

	assertAccounts(t, ix, []wantMeta{
		{sender, true, true},
		{mint, false, false},
		{address.DeriveHolderAccount(sender, mint), true, false},
		{address.DeriveHolderAccount(recipient, mint), true, false},
		{recipient, false, false},
		{address.Token2022ProgramID, false, false},
		{address.AssociatedTokenProgramID, false, false},
		{address.SystemProgramID, false, false},
		{address.RentSysvarID, false, false},
	})
}

func TestBurnToken(t *testing.T) {
	authority, mint := key(t), key(t)
	ix := BurnToken(authority, authority, mint, 500_000_000)

	assertAccounts(t, ix, []wantMeta{
		{authority, true, true},
		{mint, true, false},
		{address.DeriveHolderAccount(authority, mint), true, false},
		{address.Token2022ProgramID, false, false},
		{address.SystemProgramID, false, false},
	})
}

func TestCreateHolderAccount(t *testing.T) {
	payer, owner, mint := key(t), key(t), key(t)
	ix := CreateHolderAccount(payer, owner, mint)

	assert.True(t, ix.ProgramID().Equals(address.AssociatedTokenProgramID))
	assertAccounts(t, ix, []wantMeta{
		{payer, true, true},
		{address.DeriveHolderAccount(owner, mint), true, false},
		{owner, false, false},
		{mint, false, false},
		{address.SystemProgramID, false, false},
		{address.Token2022ProgramID, false, false},
	})

	data, err := ix.Data()
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestDecode_RoundTrip(t *testing.T) {
	a, b, mint := key(t), key(t), key(t)
	meta := TokenMetadata{Name: "My Token", Symbol: "MT", URI: "https://example.com"}

	tests := []struct {
		name string
		ix   *solana.GenericInstruction
		want Decoded
	}{
		{"create", CreateToken(a, mint, meta), Decoded{Kind: KindCreateToken, Metadata: meta}},
		{"mint", MintToken(a, b, mint, 7), Decoded{Kind: KindMintToken, Amount: 7}},
		{"transfer", TransferToken(a, b, mint, 8), Decoded{Kind: KindTransferToken, Amount: 8}},
		{"burn", BurnToken(a, a, mint, 9), Decoded{Kind: KindBurnToken, Amount: 9}},
		{"holder", CreateHolderAccount(a, b, mint), Decoded{Kind: KindCreateHolder}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := tt.ix.Data()
			require.NoError(t, err)
			got, err := Decode(tt.ix.ProgramID(), data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestDecode_Malformed(t *testing.T) {
	_, err := Decode(address.TokenBasicsProgramID, []byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrShortData)

	truncated := append(MintTokenDiscriminator[:], 1, 2)
	_, err = Decode(address.TokenBasicsProgramID, truncated)
	assert.ErrorIs(t, err, ErrShortData)

	trailing := newEncoder(BurnTokenDiscriminator).u64(1).bytes()
	trailing = append(trailing, 0xff)
	_, err = Decode(address.TokenBasicsProgramID, trailing)
	assert.Error(t, err)

	got, err := Decode(address.SystemProgramID, []byte{2, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, KindUnknown, got.Kind)
}
