// shopctl はゲートウェイを操作するコマンドラインクライアント。
package main

import (
	"fmt"
	"os"

	"github.com/nao1215/shopgate/internal/shopctl"
)

func main() {
	if err := shopctl.NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "shopctl: %v\n", err)
		os.Exit(1)
	}
}
