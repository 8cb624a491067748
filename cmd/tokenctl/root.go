package main

import (
	"github.com/spf13/cobra"

	"github.com/cheng-cc-cc/heima-headline/internal/config"
)

// rootOptions は全サブコマンド共通のフラグ。
type rootOptions struct {
	configPath string
	lookup     config.LookupFunc
}

// load は設定を読み込む。
func (o *rootOptions) load() (*config.Config, error) {
	return config.LoadWithEnv(o.configPath, o.lookup)
}

// loadToken はトークンを扱うサブコマンド用に、シークレットの設定も検証して読み込む。
func (o *rootOptions) loadToken() (*config.Config, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateToken(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newRootCmd はルートコマンドを生成する。lookupは環境変数の参照先。
func newRootCmd(lookup config.LookupFunc) *cobra.Command {
	opts := &rootOptions{lookup: lookup}

	cmd := &cobra.Command{
		Use:   "tokenctl",
		Short: "アクセストークンと失効情報を管理する",
		Long: `tokenctl はゲートウェイと同じ設定を読み込み、アクセストークンの発行・検証と
失効情報の登録・一覧表示を行う。

トークンの発行は本来ログインサービスの責務であり、このコマンドは開発と運用の補助に使う。`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "設定ファイルのパス")

	cmd.AddCommand(
		newIssueCmd(opts),
		newVerifyCmd(opts),
		newRevokeCmd(opts),
		newListCmd(opts),
	)
	return cmd
}
