package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spigell/resume-matcher/internal/config"
	"github.com/spigell/resume-matcher/internal/document"
	"github.com/spigell/resume-matcher/internal/logger"
	"github.com/spigell/resume-matcher/internal/matcher"
	"github.com/spigell/resume-matcher/internal/vectorstore"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	outputText = "text"
	outputJSON = "json"
)

var errNoDocuments = errors.New("no processed documents found")

type scoreOptions struct {
	ConfigPath  string
	Root        string
	Resumes     []string
	Job         string
	Interactive bool
	Output      string
}

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score resumes against a job description",
	Long: `Score embeds every resume and the job description, indexes the resumes into a
freshly recreated collection and prints the nearest matches with their scores.
Without --resume and --job the example pair under the project root is used.`,
	Run: func(cmd *cobra.Command, _ []string) {
		score(cmd)
	},
}

func init() {
	rootCmd.AddCommand(scoreCmd)

	scoreCmd.Flags().StringArrayP("resume", "r", nil, "processed resume JSON (local path or s3://bucket/key), repeatable")
	scoreCmd.Flags().StringP("job", "J", "", "processed job description JSON (local path or s3://bucket/key)")
	scoreCmd.Flags().BoolP("interactive", "i", false, "choose the resume and job description from the processed data directories")
	scoreCmd.Flags().StringP("output", "o", outputText, "result format: text or json")
}

func score(cmd *cobra.Command) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	logger, err := logger.New(logger.Options{
		JSON:  viper.GetBool("json"),
		Debug: viper.GetBool("debug"),
		File:  viper.GetString("log-file"),
	})
	cobra.CheckErr(err)
	defer logger.Sync()

	resumes, _ := cmd.Flags().GetStringArray("resume")
	job, _ := cmd.Flags().GetString("job")
	interactive, _ := cmd.Flags().GetBool("interactive")
	output, _ := cmd.Flags().GetString("output")

	opts := scoreOptions{
		ConfigPath:  cfgFile,
		Root:        rootDir,
		Resumes:     resumes,
		Job:         job,
		Interactive: interactive,
		Output:      output,
	}

	logger.Info("starting the resume-matcher", zap.String("version", version))

	if err := runScore(ctx, opts, logger, cmd.OutOrStdout()); err != nil {
		logger.Fatal("getting similarity score", zap.Error(err), zap.String("hint", hint(err)))
	}
}

func runScore(ctx context.Context, opts scoreOptions, log *zap.Logger, out io.Writer) error {
	if opts.Output != outputText && opts.Output != outputJSON {
		return fmt.Errorf("unsupported output format %q", opts.Output)
	}

	root := projectRoot{explicit: opts.Root}

	cfgPath := opts.ConfigPath
	if cfgPath == "" {
		folder, err := config.RootFolder()
		if err != nil {
			return err
		}
		layout, err := root.layout(folder)
		if err != nil {
			return err
		}
		cfgPath = layout.ConfigFile()
	}

	log.Debug("loading config", zap.String("path", cfgPath))

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	resumePaths, jobPath, err := selectDocuments(opts, func() (document.Layout, error) {
		return root.layout(cfg.Documents.RootFolder)
	})
	if err != nil {
		return err
	}

	source, err := newDocumentSource(ctx, cfg, append([]string{jobPath}, resumePaths...))
	if err != nil {
		return err
	}

	jobDoc, err := document.Read(ctx, source, jobPath)
	if err != nil {
		return err
	}

	resumeTexts := make([]string, 0, len(resumePaths))
	for _, p := range resumePaths {
		doc, err := document.Read(ctx, source, p)
		if err != nil {
			return err
		}
		log.Debug("read resume", zap.String("path", p), zap.Int("keywords", len(doc.Keywords)))
		resumeTexts = append(resumeTexts, doc.Text)
	}

	results, err := computeSimilarity(ctx, cfg, resumeTexts, jobDoc.Text, log)
	if err != nil {
		return err
	}

	return printResults(out, results, opts.Output)
}

// computeSimilarity builds the configured collaborators and runs one scoring pass.
func computeSimilarity(ctx context.Context, cfg *config.Config, resumes []string, jobDescription string, log *zap.Logger) ([]matcher.MatchResult, error) {
	deps, err := newCollaborators(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	defer deps.Close()

	distance, err := vectorstore.ParseDistance(cfg.Collection.Distance)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrConfiguration, err)
	}

	m, err := matcher.New(deps.embedder, deps.store, matcher.Options{
		Collection:    cfg.Collection.Name,
		Distance:      distance,
		Limit:         cfg.Search.Limit,
		SnippetLength: cfg.Search.SnippetLength,
		Locker:        deps.locker,
	}, logger.WithFields(log, logger.EmbedderFields(cfg.Embedding.Provider, deps.embedder.Model())...).Named("matcher"))
	if err != nil {
		return nil, err
	}

	return m.ComputeSimilarity(ctx, resumes, jobDescription)
}

func selectDocuments(opts scoreOptions, layout func() (document.Layout, error)) ([]string, string, error) {
	if len(opts.Resumes) > 0 && opts.Job != "" {
		return opts.Resumes, opts.Job, nil
	}

	l, err := layout()
	if err != nil {
		return nil, "", err
	}

	resumes, job := opts.Resumes, opts.Job

	if opts.Interactive {
		if len(resumes) == 0 {
			picked, err := choose("Choose a resume and press ENTER", l.Resumes())
			if err != nil {
				return nil, "", err
			}
			resumes = []string{picked}
		}
		if job == "" {
			picked, err := choose("Choose a job description and press ENTER", l.JobDescriptions())
			if err != nil {
				return nil, "", err
			}
			job = picked
		}
		return resumes, job, nil
	}

	if len(resumes) == 0 {
		resumes = []string{l.ExampleResume()}
	}
	if job == "" {
		job = l.ExampleJob()
	}
	return resumes, job, nil
}

func choose(label, dir string) (string, error) {
	files, err := document.List(dir)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", fmt.Errorf("%w in %s", errNoDocuments, dir)
	}

	items := make([]string, 0, len(files))
	for _, f := range files {
		items = append(items, filepath.Base(f))
	}

	prompt := promptui.Select{
		Label: label,
		Items: items,
		Size:  10,
	}

	idx, _, err := prompt.Run()
	if err != nil {
		return "", err
	}

	return files[idx], nil
}

// projectRoot resolves the project directory on first use. An explicit dir always
// wins; a discovered one is reused only for the same folder name.
type projectRoot struct {
	explicit string
	dir      string
	folder   string
}

func (r *projectRoot) layout(folder string) (document.Layout, error) {
	if r.explicit != "" {
		return document.Layout{Root: r.explicit}, nil
	}
	if r.dir != "" && r.folder == folder {
		return document.Layout{Root: r.dir}, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return document.Layout{}, err
	}

	dir, err := document.FindRoot(cwd, folder)
	if err != nil {
		return document.Layout{}, err
	}
	r.dir, r.folder = dir, folder

	return document.Layout{Root: dir}, nil
}

func printResults(out io.Writer, results []matcher.MatchResult, format string) error {
	if format == outputJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	for _, r := range results {
		if _, err := fmt.Fprintf(out, "id=%d score=%.6f text=%s\n", r.ID, r.Score, r.Text); err != nil {
			return err
		}
	}
	return nil
}

func hint(err error) string {
	switch {
	case errors.Is(err, config.ErrConfiguration):
		return "check the config file or the RESUME_MATCHER_* environment variables"
	case errors.Is(err, document.ErrParse):
		return "processed documents must be JSON objects with an extracted_keywords array"
	case errors.Is(err, document.ErrRootNotFound):
		return "run inside the project directory or pass --root"
	case errors.Is(err, matcher.ErrEmbedding):
		return "check the embedding provider credentials and model"
	case errors.Is(err, matcher.ErrDimensionMismatch):
		return "set the dimension matching the embedding model in the config"
	case errors.Is(err, matcher.ErrVectorStore):
		return "check the vector store url and api key"
	case errors.Is(err, matcher.ErrLock):
		return "another run holds the collection lock, retry later"
	case errors.Is(err, errNoDocuments), errors.Is(err, os.ErrNotExist):
		return "pass --resume and --job or add processed documents under Data/Processed"
	default:
		return ""
	}
}
