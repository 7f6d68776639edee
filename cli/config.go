package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/aqua777/go-ragchat/settings"
)

const (
	GoRagChat    = "go-ragchat"
	GoRagChatCli = "ragchat"
)

// Default values of flags that have no settings counterpart.
const (
	DefaultEnvFile       = ".env"
	DefaultContextsFile  = "contexts.json"
	DefaultPlotFile      = "metrics.png"
	DefaultGoldensFile   = "goldens.jsonl"
	DefaultListLimit     = 20
	DefaultIngestMode    = "upload"
	DefaultChunksPerDoc  = 2
	DefaultContextSize   = 3
	DefaultSeed          = 42
	DefaultRelevanceTau  = 0.75
	DefaultJudgeAttempts = 2
	DefaultJudgeSeed     = 42
)

// Config keys for krait. Keys bound to a settings environment variable
// share its name so that the flag, the variable and the config file agree.
const (
	KeyVerbose = "verbose"

	KeyChatModel      = settings.KeyChatModel
	KeyEmbeddingModel = settings.KeyEmbeddingModel
	KeyOllamaAPIBase  = settings.KeyOllamaAPIBase
	KeyR2RHostname    = settings.KeyR2RHostname
	KeyR2RPort        = settings.KeyR2RPort
	KeyTopK           = settings.KeyTopK
	KeyTemperature    = settings.KeyTemperature
	KeyExportDir      = settings.KeyExportDirectory
	KeyFilesDir       = settings.KeyFilesDirectory
	KeyPromptsDir     = settings.KeyPromptsDirectory
	KeyIndicesDir     = settings.KeyIndicesDirectory
	KeyJudgeModel     = settings.KeyJudgeModel
	KeyJudgeCachePath = settings.KeyJudgeCachePath

	KeyConversation = "chat.conversation"
	KeyName         = "chat.name"
	KeyTaskPrompt   = "chat.task-prompt"
	KeyQuestion     = "chat.question"

	KeyMode         = "eval.mode"
	KeyChunksPerDoc = "eval.chunks-per-doc"
	KeyContextSize  = "eval.context-size"
	KeySeed         = "eval.seed"
	KeyInput        = "eval.in"
	KeyOutput       = "eval.out"
	KeyExperiment   = "eval.name"
	KeyMetrics      = "eval.metrics"
	KeyRelevance    = "eval.relevance-threshold"
	KeyAttempts     = "eval.attempts"
	KeyJudgeSeed    = "eval.judge-seed"

	KeyOffset = "list.offset"
	KeyLimit  = "list.limit"
	KeyDelete = "list.delete"
)

// flagSettings are the settings keys that can be overridden on the command line.
var flagSettings = []string{
	KeyChatModel,
	KeyEmbeddingModel,
	KeyOllamaAPIBase,
	KeyR2RHostname,
	KeyR2RPort,
	KeyTopK,
	KeyTemperature,
	KeyExportDir,
	KeyFilesDir,
	KeyPromptsDir,
	KeyIndicesDir,
	KeyJudgeModel,
	KeyJudgeCachePath,
}

// loadEnvFile preloads a dotenv file into the process environment so krait
// sees its values. Variables already set win. A missing file is ignored.
func loadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// layeredLookup resolves a settings key from the resolved flag values first
// and the environment second.
func layeredLookup(flags func(key string) (string, bool), env settings.LookupFunc) settings.LookupFunc {
	return func(key string) (string, bool) {
		if v, ok := flags(key); ok {
			return v, true
		}
		return env(key)
	}
}

// ChromemPersistPath returns the path of the chunk embedding index.
func ChromemPersistPath(indicesDir string) string {
	return filepath.Join(indicesDir, "chromem")
}

// ExportPath joins name under the export directory.
func ExportPath(exportDir, name string) string {
	return filepath.Join(exportDir, name)
}

// ResultsDir is where experiment results are written and plotted from.
func ResultsDir(exportDir string) string {
	return filepath.Join(exportDir, "results")
}

// ensureDir creates the parent directory of path.
func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0755)
}
