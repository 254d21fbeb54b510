// Command socialfeed はフィードAPIサーバーとバックグラウンドワーカーを起動する。
//
// 使い方:
//
//	socialfeed [serve|worker|migrate [up|down]|token <memberId>|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/socialfeed/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
