package domain

// TokenIdentity is a created token. Mint is the public half of the token
// keypair; the private half is discarded after creation.
// Corresponds to tokens table in PostgreSQL.
type TokenIdentity struct {
	Mint            string // PRIMARY KEY, base58 mint address
	Authority       string // mint/burn authority recorded at creation
	Name            string
	Symbol          string
	URI             string
	Decimals        uint8
	CreateSignature string // create_token transaction signature
	CreatedAt       int64  // record creation timestamp (ms)
}

// HolderAccount is the per-(mint, owner) token account at its derived address.
type HolderAccount struct {
	Mint    string
	Owner   string
	Address string
}
