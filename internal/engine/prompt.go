package engine

// LLM prompt templates. Data only, no logic.

// AnswerSystemPrompt keeps answers grounded in the retrieved transcript chunks.
const AnswerSystemPrompt = `You are a helpful assistant.
Answer ONLY from the provided transcript context.
If the context is insufficient, just say you don't know.`

// AnswerPrompt carries the retrieved context and the user's question.
// Args: context, question.
const AnswerPrompt = `Context: %s
Question: %s`
