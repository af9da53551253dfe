package models

const (
	ContextSeparator  = "\n\n---\n\n"
	SourceIDPrefix    = "SOURCE_ID: "
	TruncationMarker  = "..."
	IntermediateLabel = "INTERMEDIATE_SUMMARY_"

	NoAnswerDisclaimer = "I don't know based on the provided document."
	WikipediaPrefix    = "I couldn't find that in your uploaded documents, but here is what I found on Wikipedia:\n\n"
	NothingFoundAnswer = "I couldn't find that information in your documents or on Wikipedia."

	EmptySummarySentinel = "[EMPTY SUMMARY]"
	SummaryErrorText     = "Error generating summary."
)

var (
	MultiQueryPromptTemplate = `You are an AI language model assistant. Your task is to generate %d different versions of the given user question to retrieve relevant documents from a vector database.
By generating multiple perspectives on the user question, your goal is to help the user overcome some of the limitations of the distance-based similarity search.

Original question: %s

Provide these alternative questions separated by newlines. Do not number them.
`

	AnswerInstruction = "Using ONLY the provided context below, answer the user question precisely and concisely. " +
		"If the answer is strictly NOT present in the context, output EXACTLY this phrase: '" + NoAnswerDisclaimer + "'"

	AnswerPromptTemplate = "%s\n\nContext:\n%s\n\nQuestion: %s\n\nAnswer:"

	IntermediateInstruction = "Using ONLY the provided context, write a detailed explanation of all important ideas. " +
		"DO NOT include any '(source: ...)' or chunk IDs. " +
		"Summaries should be factual and complete, 6-10 sentences each. " +
		"Return only the rewritten explanation."

	IntermediatePromptTemplate = "%s\n\nContext:\n%s\n\nReturn the summary only."

	CompressInstruction = "You are given multiple intermediate summaries. For each " + IntermediateLabel + "x: " +
		"Produce a very short compressed summary (1-2 sentences) that preserves the main point. " +
		"Return each compressed summary in the same order, separated by a blank line."

	CompressPromptTemplate = "%s\n\n%s\n\nReturn only the compressed summaries in order."

	FinalInstruction = `You are a professional technical writer. Using ONLY the information inside the intermediate summaries provided, create a comprehensive, well-structured document summary.

INSTRUCTIONS:
1. Do NOT use generic or fixed headings. Instead, **generate your own descriptive headings** that perfectly match the specific topics discussed in the text.
2. Start with a broad **Overview** section.
3. Organize the rest of the content into logical sections based on the themes found in the text.
4. Ensure the summary flows naturally like a professionally written report.
5. Do NOT mention chunk IDs, source numbers, or internal metadata.

Goal: A structured, easy-to-read report that adapts its outline to the content.`

	FinalPromptTemplate = "%s\n\nContext (Intermediate Summaries):\n%s\n\nReturn the final structured summary."

	QuizPromptTemplate = `
You are a strict exam setter.
Using ONLY the information in the CONTEXT below, create EXACTLY %d multiple-choice questions (MCQs).

Each MCQ must have:
1. "question": The question text.
2. "options": A dictionary of 4 options with keys "A", "B", "C", "D".
3. "correct_option": The single correct key ("A", "B", "C", or "D").
4. "explanation": A detailed 1-2 sentence explanation of why the answer is correct, citing the context.

Return the output as a valid JSON Array of objects.

CONTEXT:
%s

JSON OUTPUT:
`
)
