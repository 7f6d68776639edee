package prompts

import (
	"sort"

	"github.com/aqua777/go-ragchat/ragerr"
)

// Built-in judge template names.
const (
	AnswerRelevancyName          = "answer_relevancy"
	FaithfulnessClaimsName       = "faithfulness_claims"
	FaithfulnessVerdictsName     = "faithfulness_verdicts"
	ContextPrecisionName         = "context_precision"
	ContextRecallStatementsName  = "context_recall_statements"
	ContextRecallAttributionName = "context_recall_attribution"
	HallucinationName            = "hallucination"
	GoldenSynthesisName          = "golden_synthesis"
)

func reason() *Schema {
	return String("Short justification.")
}

// AnswerRelevancyTemplate scores how well an answer addresses the question.
var AnswerRelevancyTemplate = &JudgeTemplate{
	Name: AnswerRelevancyName,
	Type: PromptTypeJudge,
	Instruction: `You are grading a question answering system.
Rate how relevant the actual output is to the input question on a scale from 0 to 1.
1 means the output fully and directly answers the question, 0 means it is unrelated.
Refusals that say the answer is not available score 0 unless the question cannot be answered.`,
	InputFields: []InputField{
		{Name: "input", Kind: InputText, Description: "the user question"},
		{Name: "actual_output", Kind: InputText, Description: "the answer to grade"},
	},
	OutputSchema: Object("AnswerRelevancy",
		Field("score", Number("Relevance between 0 and 1.", 0, 1)),
		Field("reason", reason()),
	),
	Examples: []Example{
		{
			Input: map[string]interface{}{
				"input":         "What does MRR stand for?",
				"actual_output": "MRR stands for mean reciprocal rank.",
			},
			Output: map[string]interface{}{"score": 1.0, "reason": "The output answers the question directly."},
		},
		{
			Input: map[string]interface{}{
				"input":         "What does MRR stand for?",
				"actual_output": "Cosine similarity compares vector directions.",
			},
			Output: map[string]interface{}{"score": 0.0, "reason": "The output is about a different topic."},
		},
	},
}

// FaithfulnessClaimsTemplate extracts factual claims from an answer.
var FaithfulnessClaimsTemplate = &JudgeTemplate{
	Name: FaithfulnessClaimsName,
	Type: PromptTypeDecompose,
	Instruction: `Extract every factual claim made in the actual output.
Each claim must be a short, self-contained statement that can be checked on its own.
Do not add claims that are not stated and do not merge separate facts.`,
	InputFields: []InputField{
		{Name: "actual_output", Kind: InputText, Description: "the text to decompose"},
	},
	OutputSchema: Object("Claims",
		Field("claims", ArrayOf(String("One factual claim."))),
	),
	Examples: []Example{
		{
			Input: map[string]interface{}{
				"actual_output": "Cosine similarity is the normalized dot product. It ranges from -1 to 1.",
			},
			Output: map[string]interface{}{"claims": []string{
				"Cosine similarity is the normalized dot product.",
				"Cosine similarity ranges from -1 to 1.",
			}},
		},
	},
}

// FaithfulnessVerdictsTemplate checks each claim against the retrieval context.
var FaithfulnessVerdictsTemplate = &JudgeTemplate{
	Name: FaithfulnessVerdictsName,
	Type: PromptTypeJudge,
	Instruction: `For each claim, decide whether the retrieval context supports it.
Answer "yes" if the context supports the claim, "no" if the context contradicts it,
and "idk" if the context does not mention it.
Return exactly one verdict per claim, in the same order as the claims.`,
	InputFields: []InputField{
		{Name: "claims", Kind: InputList, Description: "claims to check"},
		{Name: "retrieval_context", Kind: InputList, Description: "retrieved chunks"},
	},
	OutputSchema: Object("Verdicts",
		Field("verdicts", ArrayOf(Object("",
			Field("verdict", String("Support of the claim.", "yes", "no", "idk")),
			Field("reason", reason()),
		))),
	),
	Examples: []Example{
		{
			Input: map[string]interface{}{
				"claims":            []string{"MRR averages reciprocal ranks.", "MRR was invented in 2020."},
				"retrieval_context": []string{"Mean reciprocal rank is the mean of the reciprocal ranks of results."},
			},
			Output: map[string]interface{}{"verdicts": []interface{}{
				map[string]interface{}{"verdict": "yes", "reason": "The context defines MRR as a mean of reciprocal ranks."},
				map[string]interface{}{"verdict": "idk", "reason": "The context does not mention when MRR was introduced."},
			}},
		},
	},
}

// ContextPrecisionTemplate judges whether each retrieved node was useful.
var ContextPrecisionTemplate = &JudgeTemplate{
	Name: ContextPrecisionName,
	Type: PromptTypeJudge,
	Instruction: `For each node of the retrieval context, decide whether it was useful to arrive at the expected output for the input.
Answer "yes" if the node is relevant and "no" otherwise.
Return exactly one verdict per node, in the same order as the nodes.`,
	InputFields: []InputField{
		{Name: "input", Kind: InputText, Description: "the user question"},
		{Name: "expected_output", Kind: InputText, Description: "the reference answer"},
		{Name: "retrieval_context", Kind: InputList, Description: "retrieved nodes in rank order"},
	},
	OutputSchema: Object("Verdicts",
		Field("verdicts", ArrayOf(Object("",
			Field("verdict", String("Relevance of the node.", "yes", "no")),
			Field("reason", reason()),
		))),
	),
	Examples: []Example{
		{
			Input: map[string]interface{}{
				"input":           "What is the range of cosine similarity?",
				"expected_output": "Cosine similarity ranges from -1 to 1.",
				"retrieval_context": []string{
					"Cosine similarity lies between -1 and 1.",
					"Chunk overlap repeats tokens between chunks.",
				},
			},
			Output: map[string]interface{}{"verdicts": []interface{}{
				map[string]interface{}{"verdict": "yes", "reason": "States the range."},
				map[string]interface{}{"verdict": "no", "reason": "Unrelated to similarity."},
			}},
		},
	},
}

// ContextRecallStatementsTemplate splits the expected output into statements.
var ContextRecallStatementsTemplate = &JudgeTemplate{
	Name: ContextRecallStatementsName,
	Type: PromptTypeDecompose,
	Instruction: `Break the expected output into atomic statements.
Each statement must carry exactly one piece of information from the expected output.`,
	InputFields: []InputField{
		{Name: "expected_output", Kind: InputText, Description: "the reference answer"},
	},
	OutputSchema: Object("Statements",
		Field("statements", ArrayOf(String("One atomic statement."))),
	),
	Examples: []Example{
		{
			Input: map[string]interface{}{
				"expected_output": "Chunks are embedded and stored. Queries retrieve the closest chunks.",
			},
			Output: map[string]interface{}{"statements": []string{
				"Chunks are embedded.",
				"Chunks are stored.",
				"Queries retrieve the closest chunks.",
			}},
		},
	},
}

// ContextRecallAttributionTemplate attributes each statement to the retrieval context.
var ContextRecallAttributionTemplate = &JudgeTemplate{
	Name: ContextRecallAttributionName,
	Type: PromptTypeJudge,
	Instruction: `For each statement, decide whether it can be attributed to the retrieval context.
Use 1 if the context contains the information and 0 otherwise.
Return exactly one verdict per statement, in the same order as the statements.`,
	InputFields: []InputField{
		{Name: "statements", Kind: InputList, Description: "statements from the reference answer"},
		{Name: "retrieval_context", Kind: InputList, Description: "retrieved chunks"},
	},
	OutputSchema: Object("Attributions",
		Field("verdicts", ArrayOf(Object("",
			Field("statement", String("The statement being judged.")),
			Field("attributed", Integer("1 if attributable to the context, else 0.", 0, 1)),
			Field("reason", reason()),
		))),
	),
	Examples: []Example{
		{
			Input: map[string]interface{}{
				"statements":        []string{"Chunks are embedded.", "Embeddings are cached for 60 seconds."},
				"retrieval_context": []string{"Each chunk is embedded before it is stored."},
			},
			Output: map[string]interface{}{"verdicts": []interface{}{
				map[string]interface{}{"statement": "Chunks are embedded.", "attributed": 1, "reason": "Stated in the context."},
				map[string]interface{}{"statement": "Embeddings are cached for 60 seconds.", "attributed": 0, "reason": "Caching is not mentioned."},
			}},
		},
	},
}

// HallucinationTemplate checks whether the answer agrees with each reference context.
var HallucinationTemplate = &JudgeTemplate{
	Name: HallucinationName,
	Type: PromptTypeJudge,
	Instruction: `For each context, decide whether the actual output agrees with it.
Answer "yes" if the output agrees with or does not contradict the context, and "no" if the output contradicts it.
Return exactly one verdict per context, in the same order as the contexts.`,
	InputFields: []InputField{
		{Name: "input", Kind: InputText, Description: "the user question"},
		{Name: "actual_output", Kind: InputText, Description: "the answer to check"},
		{Name: "context", Kind: InputList, Description: "reference contexts"},
	},
	OutputSchema: Object("Verdicts",
		Field("verdicts", ArrayOf(Object("",
			Field("verdict", String("Agreement with the context.", "yes", "no")),
			Field("reason", reason()),
		))),
	),
	Examples: []Example{
		{
			Input: map[string]interface{}{
				"input":         "When is a chunk eligible?",
				"actual_output": "Markdown files are never ingested.",
				"context":       []string{"Files with .txt, .md and .pdf extensions are ingested."},
			},
			Output: map[string]interface{}{"verdicts": []interface{}{
				map[string]interface{}{"verdict": "no", "reason": "The context says Markdown files are ingested."},
			}},
		},
	},
}

// GoldenSynthesisTemplate writes a question and its expected answer from a context.
var GoldenSynthesisTemplate = &JudgeTemplate{
	Name: GoldenSynthesisName,
	Type: PromptTypeSynthesis,
	Instruction: `Write one question that a user could ask and that is answered by the context.
The question must be answerable from the context alone, without quoting it verbatim and without
mentioning "the context". Then write the expected answer using only facts stated in the context.
Prefer questions that need more than one of the given passages.`,
	InputFields: []InputField{
		{Name: "context", Kind: InputList, Description: "related passages of the corpus"},
	},
	OutputSchema: Object("Golden",
		Field("input", String("The question.")),
		Field("expected_output", String("The answer supported by the context.")),
	),
	Examples: []Example{
		{
			Input: map[string]interface{}{
				"context": []string{
					"The reciprocal rank is 1/p where p is the position of the first relevant context.",
					"MRR averages reciprocal ranks over all samples that could be scored.",
				},
			},
			Output: map[string]interface{}{
				"input":           "How is the mean reciprocal rank of an evaluation computed?",
				"expected_output": "Each sample scores 1/p for the position p of its first relevant context, and MRR is the average of those scores.",
			},
		},
	},
}

var builtinJudges = map[string]*JudgeTemplate{
	AnswerRelevancyName:          AnswerRelevancyTemplate,
	FaithfulnessClaimsName:       FaithfulnessClaimsTemplate,
	FaithfulnessVerdictsName:     FaithfulnessVerdictsTemplate,
	ContextPrecisionName:         ContextPrecisionTemplate,
	ContextRecallStatementsName:  ContextRecallStatementsTemplate,
	ContextRecallAttributionName: ContextRecallAttributionTemplate,
	HallucinationName:            HallucinationTemplate,
	GoldenSynthesisName:          GoldenSynthesisTemplate,
}

// JudgeTemplateByName returns a built-in judge template.
func JudgeTemplateByName(name string) (*JudgeTemplate, error) {
	t, ok := builtinJudges[name]
	if !ok {
		return nil, ragerr.NotFound("prompts.judge_template", name)
	}
	return t, nil
}

// JudgeTemplateNames lists the built-in judge templates.
func JudgeTemplateNames() []string {
	names := make([]string, 0, len(builtinJudges))
	for name := range builtinJudges {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
