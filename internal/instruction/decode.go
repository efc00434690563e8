package instruction

import (
	"bytes"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/0xabstracted/token-basics/internal/address"
)

// Decoded is a parsed lifecycle instruction.
type Decoded struct {
	Kind     Kind
	Metadata TokenMetadata // create_token only
	Amount   uint64        // mint, transfer, burn
}

// Decode parses instruction data for the given program.
// Unknown programs and selectors return KindUnknown without error.
func Decode(programID solana.PublicKey, data []byte) (*Decoded, error) {
	switch {
	case programID.Equals(address.AssociatedTokenProgramID):
		// Create is encoded as empty data or a single zero byte.
		if len(data) == 0 || bytes.Equal(data, []byte{0}) {
			return &Decoded{Kind: KindCreateHolder}, nil
		}
		return &Decoded{Kind: KindUnknown}, nil
	case !programID.Equals(address.TokenBasicsProgramID):
		return &Decoded{Kind: KindUnknown}, nil
	}

	if len(data) < len(Discriminator{}) {
		return nil, fmt.Errorf("missing discriminator: %w", ErrShortData)
	}
	var disc Discriminator
	copy(disc[:], data[:8])
	d := &decoder{data: data, offset: 8}

	out := &Decoded{}
	var err error
	switch disc {
	case CreateTokenDiscriminator:
		out.Kind = KindCreateToken
		if out.Metadata.Name, err = d.str(); err != nil {
			return nil, fmt.Errorf("decode name: %w", err)
		}
		if out.Metadata.Symbol, err = d.str(); err != nil {
			return nil, fmt.Errorf("decode symbol: %w", err)
		}
		if out.Metadata.URI, err = d.str(); err != nil {
			return nil, fmt.Errorf("decode uri: %w", err)
		}
	case MintTokenDiscriminator, TransferTokenDiscriminator, BurnTokenDiscriminator:
		out.Kind = kindFor(disc)
		if out.Amount, err = d.u64(); err != nil {
			return nil, fmt.Errorf("decode amount: %w", err)
		}
	default:
		return &Decoded{Kind: KindUnknown}, nil
	}

	if err := d.done(); err != nil {
		return nil, err
	}
	return out, nil
}

func kindFor(d Discriminator) Kind {
	switch d {
	case MintTokenDiscriminator:
		return KindMintToken
	case TransferTokenDiscriminator:
		return KindTransferToken
	case BurnTokenDiscriminator:
		return KindBurnToken
	}
	return KindUnknown
}
