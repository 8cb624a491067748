// tokenctl は開発・運用向けのトークン管理ツール。
//
// 使い方:
//
//	# ユーザー1102のトークンを発行する
//	tokenctl issue 1102 --ttl 1h
//
//	# トークンを検証する
//	tokenctl verify <token>
//
//	# ユーザー1102の全トークンを失効させる
//	tokenctl revoke --kind user --subject 1102 --for 24h
//
//	# 有効な失効情報を一覧表示する
//	tokenctl list
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(os.LookupEnv).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
