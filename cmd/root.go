package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	app            = "resume-matcher"
	defaultLogFile = "app_similarity_score.log"
)

var (
	// Used for flags.
	cfgFile string
	rootDir string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "resume-matcher scores resumes against a job description using embeddings and a vector database",
	}
)

// Execute executes the root command. Canceling ctx aborts in-flight requests.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is scripts/similarity/config.yml under the project root)")
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "project root with Data/ and scripts/ (default is discovered from the current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")
	rootCmd.PersistentFlags().String("log-file", defaultLogFile, "file receiving a copy of the log, truncated on start (empty disables)")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	viper.BindPFlag("log-file", rootCmd.PersistentFlags().Lookup("log-file"))
}
