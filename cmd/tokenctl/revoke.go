package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cheng-cc-cc/heima-headline/internal/config"
	"github.com/cheng-cc-cc/heima-headline/internal/gateway"
	"github.com/cheng-cc-cc/heima-headline/pkg/logging"
	"github.com/cheng-cc-cc/heima-headline/pkg/revocation"
)

// errNoStore は失効情報の保存先が設定されていないことを表す。
var errNoStore = errors.New("revocation.backend が none のため失効情報を扱えません")

// openStore は設定に従って失効情報のStoreを開く。
func openStore(ctx context.Context, cfg *config.Config) (revocation.Store, error) {
	store, err := gateway.OpenRevocationStore(ctx, cfg.Revocation, logging.NewNop())
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errNoStore
	}
	return store, nil
}

func newRevokeCmd(opts *rootOptions) *cobra.Command {
	var (
		kind    string
		subject string
		period  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "トークンまたはユーザーを失効させる",
		Long: `トークンID（jti）またはユーザーIDを失効情報として登録する。
ゲートウェイは revocation.schedule の間隔で失効情報を読み込み直す。

--for にはトークンの有効期間以上の長さを指定する。省略時は token.ttl。`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			k, err := revocation.ParseKind(kind)
			if err != nil {
				return err
			}
			if period <= 0 {
				period = cfg.Token.TTL
			}

			ctx := cmd.Context()
			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			entry := revocation.Entry{
				Kind:      k,
				Subject:   subject,
				ExpiresAt: time.Now().Add(period),
			}
			if err := store.Revoke(ctx, entry); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %s を %s まで失効させました\n",
				entry.Kind, entry.Subject, entry.ExpiresAt.Format(time.RFC3339))
			return err
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(revocation.KindUser), "失効の種類（token または user）")
	cmd.Flags().StringVar(&subject, "subject", "", "トークンIDまたはユーザーID")
	cmd.Flags().DurationVar(&period, "for", 0, "失効情報を保持する期間")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func newListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "有効な失効情報を一覧表示する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			entries, err := store.List(ctx, time.Now())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KIND\tSUBJECT\tEXPIRES")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\n", e.Kind, e.Subject, e.ExpiresAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
}
