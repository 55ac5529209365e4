// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"fmt"
	"os"
)

// ビルド時に埋め込むバージョン情報
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	cmd := NewRootCmd()
	cmd.Version = fmt.Sprintf("%s (commit: %s)", version, commit)

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
