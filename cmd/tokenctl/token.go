package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cheng-cc-cc/heima-headline/pkg/token"
)

func newIssueCmd(opts *rootOptions) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "issue <user-id>",
		Short: "トークンを発行する",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadToken()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.Token.TTL
			}
			signer, err := token.NewSigner(cfg.Token.Secret, cfg.Token.Issuer, ttl)
			if err != nil {
				return err
			}
			tok, err := signer.Sign(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "有効期間（省略時は token.ttl）")
	return cmd
}

func newVerifyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <token>",
		Short: "トークンを検証して結果を表示する",
		Long: `トークンを検証し、分類結果とユーザーIDを表示する。
失効情報は参照しない。検証に失敗した場合は終了コード1で終了する。`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadToken()
			if err != nil {
				return err
			}
			validator, err := token.NewValidator(cfg.Token.Secret, token.WithIssuer(cfg.Token.Issuer))
			if err != nil {
				return err
			}

			result := validator.Validate(args[0])
			if !result.OK() {
				return fmt.Errorf("トークンが無効です: %s", result.Status)
			}
			claims := result.Claims
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "status:  %s\n", result.Status)
			fmt.Fprintf(out, "user_id: %s\n", claims.UserID)
			if claims.ExpiresAt != nil {
				fmt.Fprintf(out, "expires: %s\n", claims.ExpiresAt.Time.Format(time.RFC3339))
			}
			return nil
		},
	}
}
