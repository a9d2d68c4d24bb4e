package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	filestream "github.com/XiXi-2024/xixi-filestream"
	"github.com/XiXi-2024/xixi-filestream/logging"
	"github.com/XiXi-2024/xixi-filestream/redis"
)

// config 命令行参数与 FILESTREAM_* 环境变量共同决定
type config struct {
	Addr  string `mapstructure:"addr"`
	Dir   string `mapstructure:"dir"`
	Debug bool   `mapstructure:"debug"`
	MaxIO int64  `mapstructure:"max-io"`
}

var rootCmd = &cobra.Command{
	Use:           "filestream-server",
	Short:         "Serve positional file streams over the Redis protocol",
	RunE:          serve,
	SilenceErrors: true, // 错误在 main 中输出
	SilenceUsage:  true,
}

func configureRootCmd(cmd *cobra.Command) error {
	flags := cmd.PersistentFlags()
	flags.String("addr", "127.0.0.1:6380", "listen address")
	flags.String("dir", os.TempDir(), "directory served to clients")
	flags.Bool("debug", false, "enable debug logging")
	flags.Int64("max-io", 0, "max concurrent async io, 0 for default")

	viper.SetEnvPrefix("filestream")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	for _, name := range []string{"addr", "dir", "debug", "max-io"} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			return errors.Wrapf(err, "bind flag %q", name)
		}
	}

	cmd.CompletionOptions.DisableDefaultCmd = true
	return nil
}

func loadConfig() (config, error) {
	var cfg config
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, errors.Wrap(err, "unable to parse configuration")
	}
	if cfg.MaxIO < 0 {
		return cfg, errors.Errorf("max-io must not be negative: %d", cfg.MaxIO)
	}
	return cfg, nil
}

func serve(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := logging.NewProductionLogger()
	if cfg.Debug {
		logger = logging.NewDebugLogger()
	}
	defer func() { _ = logger.Sync() }()

	opts := filestream.DefaultOptions
	opts.Logger = logger
	if cfg.MaxIO > 0 {
		opts.MaxConcurrentIO = cfg.MaxIO
	}

	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return errors.Wrapf(err, "create dir %q", cfg.Dir)
	}

	svr := redis.NewServer(cfg.Addr, cfg.Dir, opts)
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		_ = svr.Close()
	}()

	logger.Info("filestream server is running", zap.String("addr", cfg.Addr), zap.String("dir", cfg.Dir))
	return svr.ListenAndServe()
}
