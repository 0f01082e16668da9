package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"releasegate/internal/security"
)

func keygenCmd() *cobra.Command {
	var outDir string
	var force bool
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Create the ed25519 key pair used to sign ledger entries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pubPath := filepath.Join(outDir, security.PublicKeyFile)
			privPath := filepath.Join(outDir, security.PrivateKeyFile)
			if !force {
				if _, err := security.LoadPublicKey(pubPath); err == nil {
					return fmt.Errorf("%s already exists, use --force to replace it", pubPath)
				}
			}
			if err := os.MkdirAll(outDir, 0o700); err != nil {
				return err
			}
			pub, priv, err := security.GenerateKeyPair()
			if err != nil {
				return err
			}
			if err := security.SaveKeyPair(pub, priv, pubPath, privPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s and %s\n", pubPath, privPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "keys", "directory for the key files")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing keys")
	return cmd
}
