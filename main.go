// 命令行入口：
// - run（默认）：校验配置与账号后进入循环，Ctrl+C 干净退出（退出码 0）
// - verify：仅做启动校验；stats：打印今日计数与索引统计；export：导出 JSON
// - 配置或凭据校验失败时退出码为 1
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}
