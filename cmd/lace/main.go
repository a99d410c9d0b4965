package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	llmtypes "github.com/lacehq/lace/pkg/types/llm"
)

var rootCmd = &cobra.Command{
	Use:   "lace",
	Short: "Event-sourced coding agent",
	Long: `Lace is a coding agent built on an immutable event log. Every
conversation is a thread of append-only events; the agent reconstructs
state from the log, streams model output, and executes tools under an
approval gate.`,
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) > 0 {
			runCmd.Run(cmd, args)
			return
		}
		cmd.Help()
		os.Exit(1)
	},
}

func init() {
	viper.SetEnvPrefix("LACE")
	viper.AutomaticEnv()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.lace")
	viper.AddConfigPath(".")
	_ = viper.ReadInConfig()

	viper.SetDefault("db_path", defaultDBPath())
	viper.SetDefault("log_level", "warn")
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "lace.db"
	}
	return filepath.Join(home, ".lace", "lace.db")
}

func providerConfig() llmtypes.Config {
	return llmtypes.Config{
		Provider:  viper.GetString("provider"),
		Model:     viper.GetString("model"),
		WeakModel: viper.GetString("weak_model"),
		MaxTokens: viper.GetInt("max_tokens"),
		APIKey:    viper.GetString("api_key"),
	}
}

func main() {
	rootCmd.PersistentFlags().String("provider", "", "LLM provider to use (anthropic or openai)")
	rootCmd.PersistentFlags().String("model", "", "LLM model to use (overrides config)")
	rootCmd.PersistentFlags().String("weak-model", "", "cheaper model for delegation and compaction summaries")
	rootCmd.PersistentFlags().Int("max-tokens", 0, "maximum output tokens per response (overrides config)")
	rootCmd.PersistentFlags().String("db", "", "path to the event store database")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	viper.BindPFlag("provider", rootCmd.PersistentFlags().Lookup("provider"))
	viper.BindPFlag("model", rootCmd.PersistentFlags().Lookup("model"))
	viper.BindPFlag("weak_model", rootCmd.PersistentFlags().Lookup("weak-model"))
	viper.BindPFlag("max_tokens", rootCmd.PersistentFlags().Lookup("max-tokens"))
	viper.BindPFlag("db_path", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(threadsCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
