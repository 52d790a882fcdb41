package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"gitreport/internal/config"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newConfigCmd() *cobra.Command {
	// Config command
	var configCmd = &cobra.Command{
		Use:   "config",
		Short: "配置管理",
		Long:  "管理 gitreport 的配置与密钥",
	}

	var configShowCmd = &cobra.Command{
		Use:   "show",
		Short: "显示当前配置",
		Long:  "显示当前生效的配置以及每个密钥的来源",
		Args:  cobra.NoArgs,
		Run:   runConfigShow,
	}

	var configGetCmd = &cobra.Command{
		Use:   "get <key>",
		Short: "读取配置项",
		Args:  cobra.ExactArgs(1),
		RunE:  runConfigGet,
	}

	var configSetCmd = &cobra.Command{
		Use:   "set [key value]",
		Short: "保存配置",
		Long:  "设置一个配置项并保存；不带参数时将当前的命令行参数保存为默认配置",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return fmt.Errorf("用法: gitreport config set [key value]")
			}
			return nil
		},
		RunE: runConfigSet,
	}

	var configPathCmd = &cobra.Command{
		Use:   "path",
		Short: "显示配置文件路径",
		Long:  "显示配置文件与历史记录数据库的完整路径",
		Args:  cobra.NoArgs,
		Run:   runConfigPath,
	}

	var configSetKeyCmd = &cobra.Command{
		Use:   "set-key <aliyun|groq|github>",
		Short: "保存密钥到系统钥匙串",
		Long:  "从终端读取 API Key 或 GitHub Token 并保存到系统钥匙串",
		Args:  cobra.ExactArgs(1),
		RunE:  runConfigSetKey,
	}

	var configDeleteKeyCmd = &cobra.Command{
		Use:   "delete-key <aliyun|groq|github>",
		Short: "从系统钥匙串删除密钥",
		Args:  cobra.ExactArgs(1),
		RunE:  runConfigDeleteKey,
	}

	configCmd.AddCommand(configShowCmd, configGetCmd, configSetCmd, configPathCmd, configSetKeyCmd, configDeleteKeyCmd)
	return configCmd
}

func runConfigShow(cmd *cobra.Command, args []string) {
	fmt.Printf("配置文件路径: %s\n", currentConfigPath())
	fmt.Println("\n当前配置:")
	for _, key := range config.Keys() {
		value, _ := cfg.Get(key)
		if isSecretKey(key) {
			value = config.MaskSecret(value)
		}
		fmt.Printf("  %-26s %s\n", key, value)
	}

	fmt.Println("\n密钥:")
	for _, name := range config.Secrets() {
		value, src := cfg.Secret(name)
		fmt.Printf("  %-8s %-16s (%s)\n", name, config.MaskSecret(value), src)
	}
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	value, err := cfg.Get(args[0])
	if err != nil {
		return err
	}
	fmt.Println(value)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	if len(args) == 2 {
		if err := cfg.Set(args[0], args[1]); err != nil {
			return err
		}
	}

	if err := cfg.SaveConfig(configPath); err != nil {
		return fmt.Errorf("保存配置失败: %w", err)
	}
	fmt.Printf("✅ 配置已保存到: %s\n", currentConfigPath())
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) {
	fmt.Println(currentConfigPath())
	fmt.Println(cfg.HistoryPath())
}

func runConfigSetKey(cmd *cobra.Command, args []string) error {
	name := strings.ToLower(args[0])

	secret, err := readSecret(fmt.Sprintf("请输入 %s 的密钥: ", name))
	if err != nil {
		return err
	}

	km := config.NewKeyringManager()
	km.SetLogLevel(logLevel())
	if err := km.Save(name, secret); err != nil {
		return err
	}

	fmt.Printf("✅ %s 已保存到系统钥匙串 (%s)\n", name, config.MaskSecret(secret))
	if env := config.SecretEnv(name); env != "" && os.Getenv(env) != "" {
		fmt.Printf("⚠️  环境变量 %s 已设置，会优先于钥匙串生效\n", env)
	}
	return nil
}

func runConfigDeleteKey(cmd *cobra.Command, args []string) error {
	name := strings.ToLower(args[0])

	km := config.NewKeyringManager()
	km.SetLogLevel(logLevel())
	if err := km.Delete(name); err != nil {
		return err
	}
	fmt.Printf("🗑️  已从系统钥匙串删除 %s\n", name)
	return nil
}

// readSecret reads without echo on a terminal and one line from a pipe otherwise.
func readSecret(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, prompt)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("读取密钥失败: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("读取密钥失败: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func currentConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.GetConfigPath()
}

func isSecretKey(key string) bool {
	return strings.HasSuffix(key, ".api_key") || key == "github.token"
}
