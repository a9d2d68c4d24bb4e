// Package main 启动基于 RESP 协议的文件流服务
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := configureRootCmd(rootCmd); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
