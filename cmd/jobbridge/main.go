// Command jobbridge は求人マーケットプレイスのAPIサーバー・ワーカー・管理コマンドを提供する。
//
//	jobbridge [serve]      APIサーバーを起動する
//	jobbridge worker       フィード同期などの定期処理を実行する
//	jobbridge migrate      データベースマイグレーションを適用する
//	jobbridge create-admin 管理者アカウントを作成する
//	jobbridge healthcheck  /health を確認する（Dockerヘルスチェック用）
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/jobbridge/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
