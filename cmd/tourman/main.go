package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/hitoshi/tourman/internal/app"
)

func main() {
	// ローカル開発用の.envを読み込む（存在しない場合は無視）
	_ = godotenv.Load()

	if err := app.Run(os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "tourman: %v\n", err)
		os.Exit(1)
	}
}
