package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	sdk "github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/0xabstracted/token-basics/internal/address"
	"github.com/0xabstracted/token-basics/internal/domain"
	"github.com/0xabstracted/token-basics/internal/instruction"
	"github.com/0xabstracted/token-basics/internal/orchestrator"
)

// Scenario defaults for the lifecycle command.
const (
	defaultMintAmount      = 1_000_000_000
	defaultRecipientAmount = 1
	defaultTransferAmount  = 200_000_000
	defaultBurnAmount      = 500_000_000
	defaultAirdrop         = 2_000_000_000 // lamports
)

func (c *cli) lifecycleCmd() *cobra.Command {
	var (
		meta            instruction.TokenMetadata
		recipient       string
		mintAmount      uint64
		recipientAmount uint64
		transferAmount  uint64
		burnAmount      uint64
		airdrop         uint64
	)

	cmd := &cobra.Command{
		Use:   "lifecycle",
		Short: "Create a token, mint, transfer and burn, verifying balances after each step",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, c.cfg, true)
			if err != nil {
				return err
			}
			defer a.Close()

			to, err := parseOrGenerate(recipient)
			if err != nil {
				return fmt.Errorf("recipient: %w", err)
			}
			wallet := a.payer.PublicKey()

			if airdrop > 0 {
				sig, err := a.rpc.RequestAirdrop(ctx, wallet.String(), airdrop)
				if err != nil {
					return fmt.Errorf("airdrop: %w", err)
				}
				a.logger.Info().Str("signature", sig).Uint64("lamports", airdrop).Msg("airdrop requested")
			}

			result, err := a.orch.RunLifecycle(ctx, orchestrator.LifecyclePlan{
				Metadata: meta,
				Mints: []orchestrator.MintStep{
					{Owner: wallet, Amount: mintAmount},
					{Owner: to, Amount: recipientAmount},
				},
				Transfer: orchestrator.TransferStep{From: a.payer, To: to, Amount: transferAmount},
				Burn:     orchestrator.BurnStep{Owner: wallet, Amount: burnAmount},
			})
			printLifecycle(cmd.OutOrStdout(), result)
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&meta.Name, "name", "Test Token", "Token name")
	f.StringVar(&meta.Symbol, "symbol", "TEST", "Token symbol")
	f.StringVar(&meta.URI, "uri", "", "Token metadata URI")
	f.StringVar(&recipient, "recipient", "", "Recipient public key (random if empty)")
	f.Uint64Var(&mintAmount, "mint-amount", defaultMintAmount, "Amount minted to the payer")
	f.Uint64Var(&recipientAmount, "recipient-amount", defaultRecipientAmount, "Amount minted to the recipient")
	f.Uint64Var(&transferAmount, "transfer-amount", defaultTransferAmount, "Amount transferred from payer to recipient")
	f.Uint64Var(&burnAmount, "burn-amount", defaultBurnAmount, "Amount burned from the payer")
	f.Uint64Var(&airdrop, "airdrop", 0, fmt.Sprintf("Lamports to airdrop to the payer first, test clusters only (e.g. %d)", uint64(defaultAirdrop)))
	return cmd
}

func (c *cli) createCmd() *cobra.Command {
	var meta instruction.TokenMetadata

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a token with the payer as authority",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), c.cfg, true)
			if err != nil {
				return err
			}
			defer a.Close()

			token, err := a.orch.CreateToken(cmd.Context(), meta.Name, meta.Symbol, meta.URI)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "mint:      %s\n", token.Mint)
			fmt.Fprintf(w, "authority: %s\n", token.Authority)
			fmt.Fprintf(w, "decimals:  %d\n", token.Decimals)
			fmt.Fprintf(w, "signature: %s\n", token.CreateSignature)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&meta.Name, "name", "", "Token name")
	f.StringVar(&meta.Symbol, "symbol", "", "Token symbol")
	f.StringVar(&meta.URI, "uri", "", "Token metadata URI")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("symbol")
	return cmd
}

func (c *cli) mintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mint <mint> <owner> <amount>",
		Short: "Mint to owner's holder account, creating it if needed",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			mint, owner, err := parseKeys(args[0], args[1])
			if err != nil {
				return err
			}
			amount, err := parseAmount(args[2])
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), c.cfg, true)
			if err != nil {
				return err
			}
			defer a.Close()

			sig, err := a.orch.MintTo(cmd.Context(), mint, owner, amount)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sig)
			return nil
		},
	}
}

func (c *cli) transferCmd() *cobra.Command {
	var fromPath string

	cmd := &cobra.Command{
		Use:   "transfer <mint> <to> <amount>",
		Short: "Transfer from the sender's holder account to another owner",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			mint, to, err := parseKeys(args[0], args[1])
			if err != nil {
				return err
			}
			amount, err := parseAmount(args[2])
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), c.cfg, true)
			if err != nil {
				return err
			}
			defer a.Close()

			from := a.payer
			if fromPath != "" {
				if from, err = loadKeypair(fromPath); err != nil {
					return err
				}
			}

			sig, err := a.orch.Transfer(cmd.Context(), mint, from, to, amount)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sig)
			return nil
		},
	}

	cmd.Flags().StringVar(&fromPath, "from", "", "Sender keypair file (default: payer)")
	return cmd
}

func (c *cli) burnCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "burn <mint> <amount>",
		Short: "Burn from the authority's holder account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mint, err := sdk.PublicKeyFromBase58(args[0])
			if err != nil {
				return fmt.Errorf("mint: %w", err)
			}
			amount, err := parseAmount(args[1])
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), c.cfg, true)
			if err != nil {
				return err
			}
			defer a.Close()

			sig, err := a.orch.Burn(cmd.Context(), mint, a.payer.PublicKey(), amount)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sig)
			return nil
		},
	}
}

func (c *cli) balanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance <mint> [owner...]",
		Short: "Show supply and holder balances (default owner: payer)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			mint, err := sdk.PublicKeyFromBase58(args[0])
			if err != nil {
				return fmt.Errorf("mint: %w", err)
			}

			a, err := newApp(ctx, c.cfg, true)
			if err != nil {
				return err
			}
			defer a.Close()

			supply, err := a.rpc.GetTokenSupply(ctx, mint.String(), a.orch.Commitment())
			if err != nil {
				return fmt.Errorf("get token supply: %w", err)
			}

			owners := []sdk.PublicKey{a.payer.PublicKey()}
			if len(args) > 1 {
				owners = owners[:0]
				for _, arg := range args[1:] {
					owner, err := sdk.PublicKeyFromBase58(arg)
					if err != nil {
						return fmt.Errorf("owner %s: %w", arg, err)
					}
					owners = append(owners, owner)
				}
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "supply\t\t%s\t%d\n", formatAmount(supply.Amount, supply.Decimals), supply.Amount)
			for _, owner := range owners {
				balance, err := a.orch.Balance(ctx, mint, owner)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", owner, address.DeriveHolderAccount(owner, mint),
					formatAmount(balance, supply.Decimals), balance)
			}
			return tw.Flush()
		},
	}
}

func (c *cli) reconcileCmd() *cobra.Command {
	var resend bool

	cmd := &cobra.Command{
		Use:   "reconcile [signature...]",
		Short: "Resolve journaled transactions with unknown outcome (default: all unresolved)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, c.cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			var txs []*domain.PendingTransaction
			if len(args) == 0 {
				if txs, err = a.submitter.ReconcileAll(ctx); err != nil {
					return err
				}
			} else {
				for _, sig := range args {
					tx, err := a.submitter.Reconcile(ctx, sig)
					if err != nil {
						return err
					}
					txs = append(txs, tx)
				}
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, tx := range txs {
				if resend && !tx.Status.Resolved() {
					// same signed bytes, so the ledger executes it at most once
					if _, err := a.submitter.Resend(ctx, tx); err != nil {
						a.logger.Warn().Err(err).Str("signature", tx.Signature).Msg("resend failed")
					}
					if tx, err = a.submitter.Journal().GetBySignature(ctx, tx.Signature); err != nil {
						return err
					}
				}
				reason := ""
				if tx.Error != nil {
					reason = *tx.Error
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", tx.Signature, tx.Step, tx.Status, reason)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&resend, "resend", false, "Re-broadcast transactions that are still unresolved")
	return cmd
}

func (c *cli) airdropCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "airdrop <lamports> [pubkey]",
		Short: "Request lamports on a test cluster (default recipient: payer)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lamports, err := parseAmount(args[0])
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), c.cfg, len(args) == 1)
			if err != nil {
				return err
			}
			defer a.Close()

			var to sdk.PublicKey
			if len(args) == 2 {
				if to, err = sdk.PublicKeyFromBase58(args[1]); err != nil {
					return fmt.Errorf("pubkey: %w", err)
				}
			} else {
				to = a.payer.PublicKey()
			}

			sig, err := a.rpc.RequestAirdrop(cmd.Context(), to.String(), lamports)
			if err != nil {
				return fmt.Errorf("airdrop: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), sig)
			return nil
		},
	}
}

// printLifecycle writes the steps and the last snapshot of a run.
func printLifecycle(w io.Writer, result *orchestrator.LifecycleResult) {
	if result == nil {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "run\t%s\n", result.RunID)
	if result.Token != nil {
		fmt.Fprintf(tw, "mint\t%s\n", result.Token.Mint)
	}
	fmt.Fprintf(tw, "state\t%s\n", result.State)
	for _, s := range result.Steps {
		fmt.Fprintf(tw, "%s\t%s\n", s.Step, s.Signature)
	}
	if n := len(result.Snapshots); n > 0 {
		snap := result.Snapshots[n-1]
		decimals := uint8(0)
		if result.Token != nil {
			decimals = result.Token.Decimals
		}
		fmt.Fprintf(tw, "supply\t%s\n", formatAmount(snap.Supply, decimals))
		for _, h := range snap.Holders {
			fmt.Fprintf(tw, "%s\t%s\n", h.Owner, formatAmount(h.Amount, decimals))
		}
	}
	_ = tw.Flush()
}

func parseKeys(first, second string) (sdk.PublicKey, sdk.PublicKey, error) {
	a, err := sdk.PublicKeyFromBase58(first)
	if err != nil {
		return sdk.PublicKey{}, sdk.PublicKey{}, fmt.Errorf("invalid public key %q: %w", first, err)
	}
	b, err := sdk.PublicKeyFromBase58(second)
	if err != nil {
		return sdk.PublicKey{}, sdk.PublicKey{}, fmt.Errorf("invalid public key %q: %w", second, err)
	}
	return a, b, nil
}

// parseOrGenerate parses a public key, or returns a fresh one when s is empty.
func parseOrGenerate(s string) (sdk.PublicKey, error) {
	if s == "" {
		k, err := sdk.NewRandomPrivateKey()
		if err != nil {
			return sdk.PublicKey{}, err
		}
		return k.PublicKey(), nil
	}
	return sdk.PublicKeyFromBase58(s)
}

// parseAmount parses an amount in minor units.
func parseAmount(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return v, nil
}
