package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/aqua777/krait"

	"github.com/aqua777/go-ragchat/evaluation"
	"github.com/aqua777/go-ragchat/settings"
)

func main() {
	if err := loadEnvFile(DefaultEnvFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	chatCmd := krait.New("chat", "Chat with your documents", "Start an interactive, history-aware chat backed by the RAG service").
		WithStringP(KeyConversation, "Conversation id to resume", "conversation", "c", "RAGCHAT_CONVERSATION", "").
		WithStringP(KeyName, "Name of a new conversation", "name", "n", "RAGCHAT_CONVERSATION_NAME", "").
		WithStringP(KeyTaskPrompt, "Task prompt name", "task-prompt", "p", "RAGCHAT_TASK_PROMPT", "").
		WithStringP(KeyQuestion, "Ask a single question and exit", "question", "q", "RAGCHAT_QUESTION", "").
		WithRun(runChat)

	buildCmd := krait.New("build-contexts", "Build evaluation contexts", "Ingest a directory into the RAG service and sample groups of related chunks").
		WithString(KeyMode, "Ingestion mode (upload or chunks)", "mode", "RAGCHAT_INGEST_MODE", DefaultIngestMode).
		WithInt(KeyChunksPerDoc, "Seed chunks drawn per document", "chunks-per-doc", "RAGCHAT_CHUNKS_PER_DOC", DefaultChunksPerDoc).
		WithInt(KeyContextSize, "Chunks per context", "context-size", "RAGCHAT_CONTEXT_SIZE", DefaultContextSize).
		WithInt(KeySeed, "Sampling seed", "seed", "RAGCHAT_SEED", DefaultSeed).
		WithStringP(KeyOutput, "Contexts file (default <export-dir>/contexts.json)", "out", "o", "", "").
		WithRun(runBuildContexts)

	synthCmd := krait.New("synthesize", "Write goldens from contexts", "Ask the judge model for a question and expected answer per context").
		WithStringP(KeyInput, "Contexts file (default <export-dir>/contexts.json)", "in", "i", "", "").
		WithStringP(KeyOutput, "Goldens file (default <export-dir>/goldens.jsonl)", "out", "o", "", "").
		WithInt(KeyAttempts, "Judge attempts per golden", "attempts", "RAGCHAT_JUDGE_ATTEMPTS", DefaultJudgeAttempts).
		WithInt(KeyJudgeSeed, "Judge sampling seed", "judge-seed", "RAGCHAT_JUDGE_SEED", DefaultJudgeSeed).
		WithRun(runSynthesize)

	fillCmd := krait.New("fill", "Fill a dataset with RAG answers", "Run every sample of a JSONL dataset through the RAG pipeline").
		WithStringP(KeyInput, "Input dataset (JSONL)", "in", "i", "", "").
		WithStringP(KeyOutput, "Output dataset (default <in>-filled.jsonl)", "out", "o", "", "").
		WithStringP(KeyTaskPrompt, "Task prompt name (default the evaluation prompt)", "task-prompt", "p", "RAGCHAT_TASK_PROMPT", "").
		WithRun(runFill)

	runCmd := krait.New("run", "Score a filled dataset", "Score a filled JSONL dataset with LLM-judged and embedding metrics").
		WithStringP(KeyInput, "Filled dataset (JSONL)", "in", "i", "", "").
		WithStringP(KeyExperiment, "Experiment name (default the input file name)", "name", "n", "", "").
		WithStringSliceP(KeyMetrics, "Metrics to compute (default all)", "metrics", "m", "RAGCHAT_METRICS", nil).
		WithFloat64(KeyRelevance, "Similarity that makes a retrieved context relevant", "relevance-threshold", "RAGCHAT_RELEVANCE_THRESHOLD", DefaultRelevanceTau).
		WithInt(KeyAttempts, "Judge attempts per verdict", "attempts", "RAGCHAT_JUDGE_ATTEMPTS", DefaultJudgeAttempts).
		WithInt(KeyJudgeSeed, "Judge sampling seed", "judge-seed", "RAGCHAT_JUDGE_SEED", DefaultJudgeSeed).
		WithRun(runEvaluate)

	plotCmd := krait.New("plot", "Plot experiment results", "Draw the mean metric scores of every experiment under <export-dir>/results").
		WithStringP(KeyOutput, "Chart file (default <export-dir>/metrics.png)", "out", "o", "", "").
		WithRun(runPlot)

	evalCmd := krait.New("eval", "Evaluation harness", "Build contexts, synthesize and fill datasets, score them and plot the results").
		WithCommand(buildCmd).
		WithCommand(synthCmd).
		WithCommand(fillCmd).
		WithCommand(runCmd).
		WithCommand(plotCmd)

	conversationsCmd := krait.New("conversations", "List or delete conversations", "List stored conversations, or delete one with --delete").
		WithInt(KeyOffset, "Listing offset", "offset", "", 0).
		WithInt(KeyLimit, "Listing page size", "limit", "", DefaultListLimit).
		WithString(KeyDelete, "Conversation id to delete", "delete", "", "").
		WithRun(runConversations)

	promptsCmd := krait.New("prompts", "List task prompts", "List the built-in and loaded task prompts").
		WithRun(runPrompts)

	healthCmd := krait.New("health", "Check the RAG service", "Check that the RAG service answers its health endpoint").
		WithRun(runHealth)

	app := krait.App(GoRagChatCli, "RAG chat and evaluation tool", "A history-aware chat front end and evaluation harness for an R2R retrieval service").
		WithConfig("", "config", "", "RAGCHAT_CONFIG").
		WithStringP(KeyChatModel, "Generation model", "model", "m", settings.KeyChatModel, settings.DefaultChatModel).
		WithStringP(KeyEmbeddingModel, "Embedding model", "embed-model", "e", settings.KeyEmbeddingModel, settings.DefaultEmbeddingModel).
		WithString(KeyOllamaAPIBase, "Ollama API URL", "ollama-url", settings.KeyOllamaAPIBase, settings.DefaultOllamaAPIBase).
		WithString(KeyR2RHostname, "RAG service host", "r2r-host", settings.KeyR2RHostname, settings.DefaultR2RHostname).
		WithInt(KeyR2RPort, "RAG service port", "r2r-port", settings.KeyR2RPort, settings.DefaultR2RPort).
		WithIntP(KeyTopK, "Number of chunks to retrieve", "top-k", "k", settings.KeyTopK, settings.DefaultTopK).
		WithFloat64P(KeyTemperature, "Generation temperature", "temperature", "t", settings.KeyTemperature, settings.DefaultTemperature).
		WithString(KeyExportDir, "Directory of datasets and results", "export-dir", settings.KeyExportDirectory, settings.DefaultExportDirectory).
		WithString(KeyFilesDir, "Directory of documents to evaluate on", "files-dir", settings.KeyFilesDirectory, settings.DefaultFilesDirectory).
		WithString(KeyPromptsDir, "Directory of task prompt YAML files", "prompts-dir", settings.KeyPromptsDirectory, settings.DefaultPromptsDirectory).
		WithString(KeyIndicesDir, "Directory of local embedding indices", "indices-dir", settings.KeyIndicesDirectory, settings.DefaultIndicesDirectory).
		WithString(KeyJudgeModel, "Judge model (default the generation model)", "judge-model", settings.KeyJudgeModel, "").
		WithString(KeyJudgeCachePath, "SQLite file caching judge verdicts", "judge-cache", settings.KeyJudgeCachePath, "").
		WithBoolP(KeyVerbose, "Enable verbose logging", "verbose", "v", "RAGCHAT_VERBOSE", false).
		WithCommand(chatCmd).
		WithCommand(evalCmd).
		WithCommand(conversationsCmd).
		WithCommand(promptsCmd).
		WithCommand(healthCmd).
		WithRun(func(args []string) error {
			fmt.Println("ragchat - Use 'ragchat chat' to start chatting or 'ragchat eval --help' for evaluation")
			return nil
		})

	if err := app.Execute(); err != nil {
		var sampleErr *evaluation.SampleError
		if errors.As(err, &sampleErr) {
			fmt.Fprintf(os.Stderr, "Error: evaluation stopped at sample %d: %v\n", sampleErr.Index, sampleErr.Err)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
